package tagmanager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu   sync.Mutex
	hits []Hit
	err  error
}

func (s *recordingSink) SendHits(_ context.Context, hits []Hit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.hits = append(s.hits, hits...)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hits)
}

func testContainer() *ContainerHolder {
	return NewContainerHolder(&Container{
		ID:      "GTM-TEST",
		Version: "2",
		Tags: []Tag{
			{Name: "pageviews", Triggers: []string{"content-view"}},
			{Name: "everything", Triggers: []string{AnyEvent}},
		},
	}, SourceNetwork)
}

func TestManager_EventsQueueHits(t *testing.T) {
	sink := &recordingSink{}
	m := NewManager(sink, zerolog.Nop())
	m.SetContainer(testContainer())

	m.DataLayer().PushEvent("content-view", MapOf("content-name", "/home"))
	m.DataLayer().PushEvent("productClick", MapOf("value", 3))
	m.DataLayer().Push(MapOf("no-event", "x"))

	assert.Equal(t, 3, m.Pending())

	n, err := m.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, m.Pending())

	require.Len(t, sink.hits, 3)
	assert.Equal(t, "pageviews", sink.hits[0].Tag)
	assert.Equal(t, "/home", sink.hits[0].Payload["content-name"])
	assert.Equal(t, "GTM-TEST", sink.hits[0].ContainerID)
	assert.NotEmpty(t, sink.hits[0].ID)
}

func TestManager_NoContainerNoHits(t *testing.T) {
	m := NewManager(&recordingSink{}, zerolog.Nop())
	m.DataLayer().PushEvent("content-view", nil)
	assert.Equal(t, 0, m.Pending())
}

func TestManager_DispatchFailureRequeues(t *testing.T) {
	sink := &recordingSink{err: errors.New("collector down")}
	m := NewManager(sink, zerolog.Nop())
	m.SetContainer(testContainer())
	m.DataLayer().PushEvent("checkout", nil)

	_, err := m.Dispatch(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, m.Pending())

	sink.err = nil
	n, err := m.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestManager_PeriodicDispatch(t *testing.T) {
	sink := &recordingSink{}
	m := NewManager(sink, zerolog.Nop())
	m.SetContainer(testContainer())
	m.DataLayer().PushEvent("interaction", nil)

	m.StartDispatcher(10 * time.Millisecond)
	defer m.StopDispatcher()

	assert.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestManager_StopDispatcherIdempotent(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	m.StopDispatcher()
	m.StartDispatcher(time.Hour)
	m.StartDispatcher(time.Hour)
	m.StopDispatcher()
	m.StopDispatcher()
}

// blockingSink holds every delivery until its context ends.
type blockingSink struct {
	entered chan struct{}
	once    sync.Once
}

func (s *blockingSink) SendHits(ctx context.Context, _ []Hit) error {
	s.once.Do(func() { close(s.entered) })
	<-ctx.Done()
	return ctx.Err()
}

func TestManager_StopDispatcherAbortsSlowDelivery(t *testing.T) {
	sink := &blockingSink{entered: make(chan struct{})}
	m := NewManager(sink, zerolog.Nop())
	m.SetContainer(testContainer())
	m.DataLayer().PushEvent("interaction", nil)

	interval := 300 * time.Millisecond
	m.StartDispatcher(interval)
	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled dispatch never reached the sink")
	}

	// Without cancellation the delivery holds until its interval timeout.
	start := time.Now()
	m.StopDispatcher()
	assert.Less(t, time.Since(start), interval/2)
	assert.Equal(t, 1, m.Pending())
}
