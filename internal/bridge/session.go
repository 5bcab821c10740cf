package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/PratikDhanave/tagbridge/internal/metrics"
	tm "github.com/PratikDhanave/tagbridge/internal/tagmanager"
)

// State is the session lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of the session.
type Status struct {
	State            State
	Generation       uint64
	ContainerID      string
	ContainerVersion string
	ContainerDefault bool
	Source           tm.Source
	// Err is the most recent load failure, kept until the next successful load.
	Err error
}

// Session is the bridge's only mutable state: whether a container is loaded,
// the handle to it, and the in-flight load. Every initGTM and exitGTM bumps
// the generation; load results from an older generation are discarded.
type Session struct {
	manager *tm.Manager

	mu          sync.Mutex
	state       State
	gen         uint64
	containerID string
	interval    time.Duration
	holder      *tm.ContainerHolder
	lastErr     error
	pending     chan struct{}
	observers   []func(Status)
}

// NewSession returns an uninitialized session driving manager.
func NewSession(manager *tm.Manager) *Session {
	return &Session{manager: manager}
}

// OnStatus registers fn to observe every state change.
func (s *Session) OnStatus(fn func(Status)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Begin records a new load of containerID and returns its generation.
// A ready session stays ready on the previous container until the new load
// succeeds.
func (s *Session) Begin(containerID string, dispatchInterval time.Duration) uint64 {
	s.mu.Lock()
	s.gen++
	s.containerID = containerID
	s.interval = dispatchInterval
	if s.state != StateReady {
		s.state = StateLoading
	}
	if s.pending != nil {
		close(s.pending)
	}
	s.pending = make(chan struct{})
	gen, st, obs := s.gen, s.statusLocked(), s.observers
	s.mu.Unlock()

	notify(obs, st)
	return gen
}

// Complete applies the outcome of load gen. It reports false when the
// result is stale and was ignored.
func (s *Session) Complete(gen uint64, h *tm.ContainerHolder, err error) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}

	if err != nil {
		s.lastErr = err
		if s.state != StateReady {
			s.state = StateFailed
		}
	} else {
		s.lastErr = nil
		s.state = StateReady
		s.holder = h
		s.manager.SetContainer(h)
		s.manager.StartDispatcher(s.interval)
	}
	if s.pending != nil {
		close(s.pending)
		s.pending = nil
	}
	st, obs := s.statusLocked(), s.observers
	s.mu.Unlock()

	notify(obs, st)
	return true
}

// Exit returns the session to Uninitialized, whatever its state.
func (s *Session) Exit() {
	s.mu.Lock()
	s.gen++
	s.state = StateUninitialized
	s.containerID = ""
	s.holder = nil
	s.lastErr = nil
	s.manager.SetContainer(nil)
	s.manager.StopDispatcher()
	if s.pending != nil {
		close(s.pending)
		s.pending = nil
	}
	st, obs := s.statusLocked(), s.observers
	s.mu.Unlock()

	notify(obs, st)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether tracking calls are accepted.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateReady
}

// Holder returns the loaded container handle, or nil.
func (s *Session) Holder() *tm.ContainerHolder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holder
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Await blocks until no load is in flight and returns the resulting status.
func (s *Session) Await(ctx context.Context) (Status, error) {
	for {
		s.mu.Lock()
		ch := s.pending
		if ch == nil {
			st := s.statusLocked()
			s.mu.Unlock()
			return st, nil
		}
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return s.Status(), ctx.Err()
		}
	}
}

func (s *Session) statusLocked() Status {
	st := Status{
		State:       s.state,
		Generation:  s.gen,
		ContainerID: s.containerID,
		Err:         s.lastErr,
	}
	if c := s.holder.Container(); c != nil {
		st.ContainerID = c.ID
		st.ContainerVersion = c.Version
		st.ContainerDefault = c.Default
		st.Source = s.holder.Source()
	}
	return st
}

func notify(observers []func(Status), st Status) {
	if st.State == StateReady {
		metrics.SessionReady.Set(1)
	} else {
		metrics.SessionReady.Set(0)
	}
	for _, fn := range observers {
		fn(st)
	}
}
