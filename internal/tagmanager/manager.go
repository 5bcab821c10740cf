package tagmanager

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/PratikDhanave/tagbridge/internal/metrics"
)

// Hit is one tag firing waiting to be delivered.
type Hit struct {
	ID               string    `json:"id"`
	Tag              string    `json:"tag"`
	TagType          string    `json:"tag_type,omitempty"`
	Event            string    `json:"event"`
	ContainerID      string    `json:"container_id"`
	ContainerVersion string    `json:"container_version"`
	Timestamp        time.Time `json:"timestamp"`
	Payload          Map       `json:"payload"`
}

// HitSink delivers dispatched hits.
type HitSink interface {
	SendHits(ctx context.Context, hits []Hit) error
}

// Manager evaluates the loaded container against data-layer events and
// queues the resulting hits until they are dispatched.
type Manager struct {
	dataLayer *DataLayer
	sink      HitSink
	log       zerolog.Logger
	now       func() time.Time

	mu     sync.Mutex
	holder *ContainerHolder
	queue  []Hit

	// sendMu serialises sink deliveries so hits leave in queue order.
	sendMu sync.Mutex

	tickMu   sync.Mutex
	stopTick context.CancelFunc
	tickDone chan struct{}
}

// NewManager wires a fresh data layer to sink.
func NewManager(sink HitSink, log zerolog.Logger) *Manager {
	m := &Manager{
		dataLayer: NewDataLayer(),
		sink:      sink,
		log:       log,
		now:       time.Now,
	}
	m.dataLayer.AddListener(m.onEvent)
	return m
}

// DataLayer returns the data layer tags read from.
func (m *Manager) DataLayer() *DataLayer { return m.dataLayer }

// SetContainer installs the container whose tags fire from now on.
// A nil holder disables tag evaluation.
func (m *Manager) SetContainer(h *ContainerHolder) {
	m.mu.Lock()
	m.holder = h
	m.mu.Unlock()
}

// Container returns the installed container handle, or nil.
func (m *Manager) Container() *ContainerHolder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holder
}

// Pending returns the number of queued hits.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *Manager) onEvent(event string, snapshot Map) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.holder.Container()
	if c == nil {
		return
	}
	now := m.now().UTC()
	for _, t := range c.TagsFor(event) {
		m.queue = append(m.queue, Hit{
			ID:               uuid.NewString(),
			Tag:              t.Name,
			TagType:          t.Type,
			Event:            event,
			ContainerID:      c.ID,
			ContainerVersion: c.Version,
			Timestamp:        now,
			Payload:          copyMap(snapshot),
		})
		metrics.HitsQueued.Inc()
	}
}

// Dispatch sends every queued hit to the sink now. On failure the hits are
// put back at the head of the queue and the sink error is returned.
func (m *Manager) Dispatch(ctx context.Context) (int, error) {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	batch := m.queue
	m.queue = nil
	m.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}
	if m.sink == nil {
		metrics.HitsDispatched.WithLabelValues("dropped").Add(float64(len(batch)))
		return len(batch), nil
	}

	if err := m.sink.SendHits(ctx, batch); err != nil {
		m.mu.Lock()
		m.queue = append(batch, m.queue...)
		m.mu.Unlock()
		metrics.HitsDispatched.WithLabelValues("error").Add(float64(len(batch)))
		return 0, err
	}

	metrics.HitsDispatched.WithLabelValues("success").Add(float64(len(batch)))
	return len(batch), nil
}

// StartDispatcher dispatches queued hits every interval until
// StopDispatcher. Starting again replaces the previous schedule; a
// non-positive interval only stops it.
func (m *Manager) StartDispatcher(interval time.Duration) {
	if interval <= 0 {
		m.StopDispatcher()
		return
	}
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	if m.stopTick != nil {
		m.stopTick()
		<-m.tickDone
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.stopTick, m.tickDone = cancel, done

	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.tick(ctx, interval)
			}
		}
	}()
}

// tick runs one scheduled dispatch. Stopping the dispatcher cancels ctx,
// which aborts a delivery still in flight; its hits stay queued.
func (m *Manager) tick(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, interval)
	defer cancel()
	if n, err := m.Dispatch(ctx); err != nil {
		m.log.Warn().Err(err).Msg("scheduled dispatch failed")
	} else if n > 0 {
		m.log.Debug().Int("hits", n).Msg("scheduled dispatch")
	}
}

// StopDispatcher stops the periodic dispatcher and waits for it to exit.
func (m *Manager) StopDispatcher() {
	m.tickMu.Lock()
	stop, done := m.stopTick, m.tickDone
	m.stopTick, m.tickDone = nil, nil
	m.tickMu.Unlock()

	if stop == nil {
		return
	}
	stop()
	<-done
}

// LogSink writes hits to the process log instead of a network endpoint.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) SendHits(_ context.Context, hits []Hit) error {
	for _, h := range hits {
		s.Log.Info().
			Str("hit_id", h.ID).
			Str("tag", h.Tag).
			Str("event", h.Event).
			Str("container", h.ContainerID+"@"+h.ContainerVersion).
			Interface("payload", h.Payload).
			Msg("hit")
	}
	return nil
}
