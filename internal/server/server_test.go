package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fixedCount struct {
	n   int
	err error
}

func (f fixedCount) Count() (int, error) { return f.n, f.err }

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthOK(t *testing.T) {
	s := New(":0", fixedCount{n: 3}, WithDependency("postgres", pinger{}))

	rec := get(t, s.Routes(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 3, body.Leads)
	assert.Equal(t, map[string]string{"postgres": "ok"}, body.Dependencies)
}

func TestHealthDegraded(t *testing.T) {
	t.Run("dependency down", func(t *testing.T) {
		s := New(":0", fixedCount{n: 1}, WithDependency("postgres", pinger{err: errors.New("refused")}))

		rec := get(t, s.Routes(), "/healthz")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"postgres":"down"`)
	})

	t.Run("store unreadable", func(t *testing.T) {
		s := New(":0", fixedCount{err: errors.New("corrupt")})

		rec := get(t, s.Routes(), "/healthz")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(":0", fixedCount{})

	rec := get(t, s.Routes(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}

func TestCORS(t *testing.T) {
	s := New(":0", fixedCount{}, WithCORS([]string{"https://dash.example.com"}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

type brokenWriter struct {
	header http.Header
}

func (b *brokenWriter) Header() http.Header       { return b.header }
func (b *brokenWriter) WriteHeader(int)           {}
func (b *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestHealthLogsWriteFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := New(":0", fixedCount{n: 1}, WithLogger(zap.New(core)))

	s.handleHealth(&brokenWriter{header: http.Header{}}, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	entries := logs.FilterMessage("Failed to write health response").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "connection reset", entries[0].ContextMap()["error"])
}
