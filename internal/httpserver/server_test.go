package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PratikDhanave/tagbridge/internal/bridge"
	"github.com/PratikDhanave/tagbridge/internal/config"
	"github.com/PratikDhanave/tagbridge/internal/models"
	tm "github.com/PratikDhanave/tagbridge/internal/tagmanager"
)

const apiKey = "test-key"

type memorySink struct {
	mu   sync.Mutex
	hits []tm.Hit
}

func (s *memorySink) SendHits(_ context.Context, hits []tm.Hit) error {
	s.mu.Lock()
	s.hits = append(s.hits, hits...)
	s.mu.Unlock()
	return nil
}

func (s *memorySink) all() []tm.Hit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tm.Hit(nil), s.hits...)
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestServer(t *testing.T, store Pinger) (*httptest.Server, *memorySink) {
	t.Helper()
	defaults := tm.NewFSDefaults(fstest.MapFS{
		"GTM-SHOP.yaml": {Data: []byte(`
id: GTM-SHOP
version: "12"
tags:
  - name: analytics
    type: ua
    triggers: ["*"]
`)},
	})
	sink := &memorySink{}
	mgr := tm.NewManager(sink, zerolog.Nop())
	loader := tm.NewLoader(zerolog.Nop(), tm.WithCache(tm.NewMemoryCache()), tm.WithDefaults(defaults))
	d := bridge.NewDispatcher(mgr, loader, zerolog.Nop())
	t.Cleanup(mgr.StopDispatcher)

	router := NewRouter(Deps{
		Config:     config.Config{APIKeys: map[string]string{apiKey: "shop"}},
		Dispatcher: d,
		Store:      store,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, sink
}

func call(t *testing.T, srv *httptest.Server, action string, args ...any) models.ExecResponse {
	t.Helper()
	if args == nil {
		args = []any{}
	}
	body, err := json.Marshal(map[string]any{"action": action, "args": args})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/exec", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out models.ExecResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", apiKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestRouter_BridgeEndToEnd(t *testing.T) {
	srv, sink := newTestServer(t, nil)

	res := call(t, srv, "trackEvent", "c", "a", "l", 1)
	assert.False(t, res.OK)
	assert.Equal(t, "trackEvent failed - not initialized", res.Error)

	res = call(t, srv, "initGTM", "GTM-SHOP", 30)
	require.True(t, res.OK)
	assert.Equal(t, "initGTM - id = GTM-SHOP; interval = 30 seconds", res.Message)

	code, body := get(t, srv, "/session?wait=2s")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"state":"ready"`)

	res = call(t, srv, "trackPage", "/checkout")
	require.True(t, res.OK, res.Error)
	assert.Equal(t, "trackPage - url = /checkout", res.Message)

	hits := sink.all()
	require.Len(t, hits, 1)
	assert.Equal(t, "content-view", hits[0].Event)
	assert.Equal(t, "/checkout", hits[0].Payload["content-name"])
	assert.Equal(t, "12", hits[0].ContainerVersion)

	res = call(t, srv, "pushAddToCart", map[string]any{"id": "p1", "name": "Shoe", "price": "19.99"}, "EUR")
	require.True(t, res.OK, res.Error)
	res = call(t, srv, "dispatch")
	require.True(t, res.OK)
	assert.Equal(t, "dispatch sent", res.Message)

	hits = sink.all()
	require.Len(t, hits, 2)
	assert.Equal(t, "addToCart", hits[1].Event)
	assert.Equal(t, 19, hits[1].Payload["value"])

	res = call(t, srv, "exitGTM")
	assert.Equal(t, models.ExecResponse{OK: true, Message: "exitGTM"}, res)
	res = call(t, srv, "dispatch")
	assert.Equal(t, "dispatch failed - not initialized", res.Error)
}

func TestRouter_AuthAndPublicEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/exec", "application/json", strings.NewReader(`{"action":"exitGTM"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	// Without a hit store the count endpoint is not mounted.
	code, _ := get(t, srv, "/hits/count")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRouter_ReadyReportsStoreFailure(t *testing.T) {
	srv, _ := newTestServer(t, pingFunc(func(context.Context) error { return errors.New("db down") }))

	resp, err := http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "db down", body["error"])
}

func TestRouter_PeriodicDispatch(t *testing.T) {
	srv, sink := newTestServer(t, nil)

	require.True(t, call(t, srv, "initGTM", "GTM-SHOP", 1).OK)
	code, _ := get(t, srv, "/session?wait=2s")
	require.Equal(t, http.StatusOK, code)

	require.True(t, call(t, srv, "trackEvent", "video", "play", "intro", 3).OK)
	assert.Eventually(t, func() bool { return len(sink.all()) == 1 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "interaction", sink.all()[0].Event)
}

type appCounter struct{ appID string }

func (c *appCounter) CountHits(_ context.Context, appID, _ string, _, _ time.Time) (int64, error) {
	c.appID = appID
	return 1, nil
}

func TestRouter_HitCountUsesServiceAppID(t *testing.T) {
	counter := &appCounter{}
	mgr := tm.NewManager(nil, zerolog.Nop())
	router := NewRouter(Deps{
		Config:     config.Config{AppID: "default", APIKeys: map[string]string{apiKey: "shop"}},
		Dispatcher: bridge.NewDispatcher(mgr, tm.NewLoader(zerolog.Nop()), zerolog.Nop()),
		Hits:       counter,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	code, body := get(t, srv, "/hits/count?event=interaction&from=2026-01-01T00:00:00Z&to=2026-01-02T00:00:00Z")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "default", counter.appID)
}
