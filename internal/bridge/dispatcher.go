// Package bridge maps bridge calls from host script onto the tag manager:
// one action name plus a JSON argument array in, one result string out.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/PratikDhanave/tagbridge/internal/metrics"
	tm "github.com/PratikDhanave/tagbridge/internal/tagmanager"
)

// ContainerOpenTimeout bounds every container load started by initGTM.
const ContainerOpenTimeout = 2000 * time.Millisecond

// ErrNotInitialized is returned for tracking calls before a container is loaded.
var ErrNotInitialized = errors.New("not initialized")

// ContainerLoader starts asynchronous container loads.
type ContainerLoader interface {
	LoadContainerPreferNonDefault(ctx context.Context, id string, timeout time.Duration) *tm.PendingResult
}

// Result is what a bridge call returns to host script.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Dispatcher executes bridge calls against one session. Calls are served
// one at a time.
type Dispatcher struct {
	session *Session
	manager *tm.Manager
	loader  ContainerLoader
	log     zerolog.Logger
	timeout time.Duration

	mu sync.Mutex
}

// NewDispatcher builds a dispatcher over manager with a fresh session.
func NewDispatcher(manager *tm.Manager, loader ContainerLoader, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		session: NewSession(manager),
		manager: manager,
		loader:  loader,
		log:     log,
		timeout: ContainerOpenTimeout,
	}
	d.session.OnStatus(func(st Status) {
		ev := d.log.Debug()
		if st.State == StateFailed {
			ev = d.log.Error().Err(st.Err)
		}
		ev.Str("state", st.State.String()).
			Str("container_id", st.ContainerID).
			Str("container_version", st.ContainerVersion).
			Uint64("generation", st.Generation).
			Msg("session state")
	})
	return d
}

// Session exposes the dispatcher's session.
func (d *Dispatcher) Session() *Session { return d.session }

// Manager exposes the tag manager the dispatcher pushes to.
func (d *Dispatcher) Manager() *tm.Manager { return d.manager }

// Exec runs a wire call. It never panics and never returns a Go error: every
// failure becomes Result.Error.
func (d *Dispatcher) Exec(ctx context.Context, action string, args Args) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Str("action", action).Msg("bridge action panicked")
			metrics.BridgeActions.WithLabelValues(action, "error").Inc()
			res = Result{Error: fmt.Sprintf("%s failed - %v", action, r)}
		}
	}()

	a, ok := ParseAction(action)
	if !ok {
		metrics.BridgeActions.WithLabelValues("unknown", "error").Inc()
		return Result{Error: fmt.Sprintf("invalid action: %s", action)}
	}

	// Preconditions are checked before arguments, so a caller that is not
	// initialized always learns that first.
	if a.requiresSession() && !d.session.Ready() {
		return d.finish(a, "", fmt.Errorf("%s failed - %w", a, ErrNotInitialized))
	}

	req, err := decode(a, args)
	if err != nil {
		return d.finish(a, "", err)
	}
	msg, err := d.Handle(ctx, req)
	return d.finish(a, msg, err)
}

func (d *Dispatcher) finish(a Action, msg string, err error) Result {
	switch {
	case errors.Is(err, ErrNotInitialized):
		metrics.BridgeActions.WithLabelValues(string(a), "not_initialized").Inc()
		return Result{Error: err.Error()}
	case err != nil:
		metrics.BridgeActions.WithLabelValues(string(a), "error").Inc()
		d.log.Warn().Err(err).Str("action", string(a)).Msg("bridge action failed")
		return Result{Error: err.Error()}
	}
	metrics.BridgeActions.WithLabelValues(string(a), "success").Inc()
	return Result{OK: true, Message: msg}
}

// Handle executes a typed request and returns its success message.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a := req.Action()
	if a.requiresSession() && !d.session.Ready() {
		return "", fmt.Errorf("%s failed - %w", a, ErrNotInitialized)
	}

	dl := d.manager.DataLayer()

	switch r := req.(type) {
	case InitGTM:
		d.initGTM(ctx, r)
		return fmt.Sprintf("initGTM - id = %s; interval = %d seconds", r.ContainerID, r.IntervalSeconds), nil

	case ExitGTM:
		d.session.Exit()
		return "exitGTM", nil

	case Dispatch:
		if _, err := d.manager.Dispatch(ctx); err != nil {
			return "", fmt.Errorf("dispatch failed - %w", err)
		}
		return "dispatch sent", nil

	case PushEvent:
		dl.Push(r.Data)
		return "pushEvent: " + dl.String(), nil

	case TrackPage:
		d.push(r)
		if n, err := d.manager.Dispatch(ctx); err != nil {
			d.log.Warn().Err(err).Msg("trackPage dispatch failed, hits kept queued")
		} else if n > 0 {
			d.log.Debug().Int("hits", n).Msg("trackPage dispatch")
		}
		d.clear(r)
		return "trackPage - url = " + r.URL, nil

	case TrackEvent:
		d.push(r)
		return fmt.Sprintf("trackEvent - category = %s; action = %s; label = %s; value = %d",
			r.Category, r.EventAction, r.Label, r.Value), nil

	case PushImpression:
		d.push(r)
		msg := "pushImpression: " + dl.String()
		d.clear(r)
		return msg, nil

	case PushProductClick:
		d.push(r)
		d.clear(r)
		return "pushProductClick = " + r.Product.toJSON(), nil

	case PushDetailView:
		d.push(r)
		d.clear(r)
		return "pushDetailView = " + r.Product.toJSON(), nil

	case PushAddToCart:
		d.push(r)
		d.clear(r)
		return "pushAddToCart = " + r.Product.toJSON() + " currencyCode = " + r.CurrencyCode, nil

	case PushRemoveFromCart:
		d.push(r)
		d.clear(r)
		return "pushRemoveCart = " + r.Product.toJSON(), nil

	case PushCheckout:
		d.push(r)
		msg := "pushCheckout: " + dl.String()
		d.clear(r)
		return msg, nil

	case PushTransaction:
		d.push(r)
		msg := "pushTransaction: " + dl.String()
		d.clear(r)
		return msg, nil
	}

	return "", fmt.Errorf("invalid action: %s", a)
}

// AwaitReady blocks until the latest initGTM has resolved.
func (d *Dispatcher) AwaitReady(ctx context.Context) (Status, error) {
	return d.session.Await(ctx)
}

func (d *Dispatcher) initGTM(ctx context.Context, r InitGTM) {
	gen := d.session.Begin(r.ContainerID, dispatchPeriod(r.IntervalSeconds))

	// The load outlives the bridge call that started it.
	pending := d.loader.LoadContainerPreferNonDefault(context.WithoutCancel(ctx), r.ContainerID, d.timeout)
	pending.SetResultCallback(func(h *tm.ContainerHolder, err error) {
		if err != nil {
			d.log.Error().Err(err).Str("container_id", r.ContainerID).Msg("failure loading container")
		}
		if !d.session.Complete(gen, h, err) {
			d.log.Debug().Str("container_id", r.ContainerID).Uint64("generation", gen).Msg("discarding stale container load")
		}
	})
}

// dispatchPeriod converts an initGTM interval to a ticker period. Values
// are capped at math.MaxInt32 seconds; non-positive values disable
// periodic dispatch.
func dispatchPeriod(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	if seconds > math.MaxInt32 {
		seconds = math.MaxInt32
	}
	return time.Duration(seconds) * time.Second
}

func (d *Dispatcher) push(r Request) {
	event, body, ok := payload(r)
	if !ok {
		return
	}
	d.manager.DataLayer().PushEvent(event, body)
}

func (d *Dispatcher) clear(r Request) {
	keys := clearedKeys(r)
	if len(keys) == 0 {
		return
	}
	m := make(tm.Map, len(keys))
	for _, k := range keys {
		m[k] = nil
	}
	d.manager.DataLayer().Push(m)
}
