package tagmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/PratikDhanave/tagbridge/internal/metrics"
)

// DefaultContainerMaxAge is how long a cached container is served without a
// network refresh.
const DefaultContainerMaxAge = 12 * time.Hour

var (
	// ErrContainerNotFound is returned by sources that have no copy of a container.
	ErrContainerNotFound = errors.New("container not found")
	// ErrContainerUnavailable means no source could provide the container.
	ErrContainerUnavailable = errors.New("container unavailable")
)

// ContainerCache persists the last non-default container fetched from the network.
type ContainerCache interface {
	LoadContainer(ctx context.Context, id string) (*Container, error)
	SaveContainer(ctx context.Context, c *Container) error
}

// ContainerFetcher retrieves the current published container.
type ContainerFetcher interface {
	FetchContainer(ctx context.Context, id string) (*Container, error)
}

// DefaultContainers provides containers bundled with the app.
type DefaultContainers interface {
	DefaultContainer(id string) (*Container, error)
}

// Loader resolves containers, preferring anything newer than the bundled default.
// Any of cache, fetcher and defaults may be nil.
type Loader struct {
	cache    ContainerCache
	fetcher  ContainerFetcher
	defaults DefaultContainers
	maxAge   time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithCache sets the container cache.
func WithCache(c ContainerCache) LoaderOption { return func(l *Loader) { l.cache = c } }

// WithFetcher sets the network fetcher.
func WithFetcher(f ContainerFetcher) LoaderOption { return func(l *Loader) { l.fetcher = f } }

// WithDefaults sets the bundled default containers.
func WithDefaults(d DefaultContainers) LoaderOption { return func(l *Loader) { l.defaults = d } }

// WithMaxAge overrides DefaultContainerMaxAge.
func WithMaxAge(d time.Duration) LoaderOption { return func(l *Loader) { l.maxAge = d } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) LoaderOption { return func(l *Loader) { l.now = now } }

// NewLoader builds a Loader.
func NewLoader(log zerolog.Logger, opts ...LoaderOption) *Loader {
	l := &Loader{
		maxAge: DefaultContainerMaxAge,
		log:    log,
		now:    time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LoadContainerPreferNonDefault starts an asynchronous load of container id.
//
// Resolution order: a fresh cached container, the network (saved to the
// cache on success), a stale cached container, then the bundled default.
// The whole load is bounded by timeout; the pending result fails with
// context.DeadlineExceeded when it elapses.
func (l *Loader) LoadContainerPreferNonDefault(ctx context.Context, id string, timeout time.Duration) *PendingResult {
	p := NewPendingResult()

	go func() {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		type outcome struct {
			holder *ContainerHolder
			err    error
		}
		done := make(chan outcome, 1)
		go func() {
			h, err := l.resolve(ctx, id)
			done <- outcome{h, err}
		}()

		select {
		case o := <-done:
			l.record(id, o.holder, o.err)
			p.Resolve(o.holder, o.err)
		case <-ctx.Done():
			err := fmt.Errorf("load container %s: %w", id, ctx.Err())
			l.record(id, nil, err)
			p.Resolve(nil, err)
		}
	}()

	return p
}

func (l *Loader) resolve(ctx context.Context, id string) (*ContainerHolder, error) {
	var stale *Container

	if l.cache != nil {
		c, err := l.cache.LoadContainer(ctx, id)
		switch {
		case err == nil && l.now().Sub(c.FetchedAt) < l.maxAge:
			return NewContainerHolder(c, SourceCache), nil
		case err == nil:
			stale = c
		case !errors.Is(err, ErrContainerNotFound):
			l.log.Warn().Err(err).Str("container_id", id).Msg("container cache read failed")
		}
	}

	if l.fetcher != nil {
		c, err := l.fetcher.FetchContainer(ctx, id)
		if err == nil {
			c.FetchedAt = l.now()
			if l.cache != nil {
				if err := l.cache.SaveContainer(ctx, c); err != nil {
					l.log.Warn().Err(err).Str("container_id", id).Msg("container cache write failed")
				}
			}
			return NewContainerHolder(c, SourceNetwork), nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("load container %s: %w", id, ctx.Err())
		}
		l.log.Warn().Err(err).Str("container_id", id).Msg("container fetch failed")
	}

	if stale != nil {
		return NewContainerHolder(stale, SourceStaleCache), nil
	}

	if l.defaults != nil {
		c, err := l.defaults.DefaultContainer(id)
		if err == nil {
			c.Default = true
			return NewContainerHolder(c, SourceDefault), nil
		}
		if !errors.Is(err, ErrContainerNotFound) {
			return nil, fmt.Errorf("load default container %s: %w", id, err)
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrContainerUnavailable, id)
}

func (l *Loader) record(id string, h *ContainerHolder, err error) {
	if err != nil {
		metrics.ContainerLoads.WithLabelValues("none", "failure").Inc()
		return
	}
	metrics.ContainerLoads.WithLabelValues(string(h.Source()), "success").Inc()
	l.log.Debug().
		Str("container_id", id).
		Str("version", h.Container().Version).
		Str("source", string(h.Source())).
		Msg("container loaded")
}

// PendingResult is the eventual outcome of a container load.
type PendingResult struct {
	done chan struct{}

	mu        sync.Mutex
	resolved  bool
	holder    *ContainerHolder
	err       error
	callbacks []func(*ContainerHolder, error)
}

// NewPendingResult returns an unresolved result for loaders to complete.
func NewPendingResult() *PendingResult {
	return &PendingResult{done: make(chan struct{})}
}

// Resolve completes the result. Only the first call has any effect.
func (p *PendingResult) Resolve(h *ContainerHolder, err error) {
	p.mu.Lock()
	if p.resolved {
		p.mu.Unlock()
		return
	}
	p.resolved = true
	p.holder, p.err = h, err
	cbs := p.callbacks
	p.callbacks = nil
	close(p.done)
	p.mu.Unlock()

	for _, cb := range cbs {
		cb(h, err)
	}
}

// SetResultCallback registers fn to run once the load completes. If it has
// already completed, fn runs immediately on the calling goroutine.
func (p *PendingResult) SetResultCallback(fn func(*ContainerHolder, error)) {
	p.mu.Lock()
	if !p.resolved {
		p.callbacks = append(p.callbacks, fn)
		p.mu.Unlock()
		return
	}
	h, err := p.holder, p.err
	p.mu.Unlock()
	fn(h, err)
}

// Done is closed when the load completes.
func (p *PendingResult) Done() <-chan struct{} { return p.done }

// Await blocks until the load completes or ctx ends.
func (p *PendingResult) Await(ctx context.Context) (*ContainerHolder, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.holder, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
