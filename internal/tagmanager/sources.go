package tagmanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// MemoryCache is an in-process ContainerCache used when no database is configured.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]Container
}

// NewMemoryCache returns an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: map[string]Container{}}
}

func (m *MemoryCache) LoadContainer(_ context.Context, id string) (*Container, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.items[id]
	if !ok {
		return nil, ErrContainerNotFound
	}
	return &c, nil
}

func (m *MemoryCache) SaveContainer(_ context.Context, c *Container) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[c.ID] = *c
	return nil
}

// DirDefaults reads bundled containers from <dir>/<id>.{yaml,yml,json}.
type DirDefaults struct {
	fsys fs.FS
}

// NewDirDefaults serves defaults from a directory on disk.
func NewDirDefaults(dir string) *DirDefaults {
	return &DirDefaults{fsys: os.DirFS(dir)}
}

// NewFSDefaults serves defaults from any fs.FS.
func NewFSDefaults(fsys fs.FS) *DirDefaults {
	return &DirDefaults{fsys: fsys}
}

func (d *DirDefaults) DefaultContainer(id string) (*Container, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("bad container id %q", id)
	}
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		name := id + ext
		b, err := fs.ReadFile(d.fsys, name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		c, err := ParseContainer(name, b)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(name), err)
		}
		if c.ID != id {
			return nil, fmt.Errorf("%w: %s declares id %q", ErrInvalidContainer, name, c.ID)
		}
		return c, nil
	}
	return nil, ErrContainerNotFound
}

// HTTPFetcher downloads container documents from a URL template in which
// "{id}" is replaced with the container id.
type HTTPFetcher struct {
	URLTemplate string
	Client      *http.Client
}

// NewHTTPFetcher builds a fetcher with a bounded client.
func NewHTTPFetcher(urlTemplate string) *HTTPFetcher {
	return &HTTPFetcher{
		URLTemplate: urlTemplate,
		Client:      &http.Client{Timeout: 5 * time.Second},
	}
}

func (f *HTTPFetcher) FetchContainer(ctx context.Context, id string) (*Container, error) {
	target := strings.ReplaceAll(f.URLTemplate, "{id}", url.PathEscape(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch container %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrContainerNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch container %s: unexpected status %d", id, resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("fetch container %s: %w", id, err)
	}
	c, err := ParseContainerJSON(b)
	if err != nil {
		return nil, err
	}
	if c.ID != id {
		return nil, fmt.Errorf("%w: fetched id %q, want %q", ErrInvalidContainer, c.ID, id)
	}
	return c, nil
}
