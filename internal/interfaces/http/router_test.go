package http

import (
	"context"
	"encoding/json"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PII-Anonymizer/internal/application/anonymization"
	"github.com/turtacn/PII-Anonymizer/internal/bootstrap"
	"github.com/turtacn/PII-Anonymizer/internal/config"
)

func newRuntime(t *testing.T, mutate func(*config.Config)) *bootstrap.Runtime {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.HTTP.Mode = gin.TestMode
	cfg.Pipeline.FilterFile = filepath.Join(t.TempDir(), "absent.json")
	cfg.Metrics.Enabled = true
	if mutate != nil {
		mutate(cfg)
	}
	rt, err := bootstrap.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt
}

func request(r nethttp.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_AnonymizeEndToEnd(t *testing.T) {
	rt := newRuntime(t, nil)
	r := NewRouter(RouterConfigFromRuntime(rt, "test"))

	w := request(r, nethttp.MethodPost, "/api/v1/anonymize",
		`{"text":"Kontakt: max@example.org","placeholder_format":"angles"}`)

	require.Equal(t, nethttp.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Contains(t, w.Body.String(), `"Kontakt: <EMAIL_0>"`)

	var out anonymization.AnonymizationOutput
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "max@example.org", out.EntityMapping["<EMAIL_0>"].Text)
}

func TestRouter_DetectValidationError(t *testing.T) {
	rt := newRuntime(t, nil)
	r := NewRouter(RouterConfigFromRuntime(rt, "test"))

	w := request(r, nethttp.MethodPost, "/api/v1/detect", `{"text":"Anna","threshold":1.5}`)
	assert.Equal(t, nethttp.StatusBadRequest, w.Code)
}

func TestRouter_RateLimit(t *testing.T) {
	rt := newRuntime(t, func(c *config.Config) {
		c.Server.HTTP.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	})
	r := NewRouter(RouterConfigFromRuntime(rt, "test"))

	w := request(r, nethttp.MethodPost, "/api/v1/detect", `{"text":"Anna"}`)
	require.Equal(t, nethttp.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = request(r, nethttp.MethodPost, "/api/v1/detect", `{"text":"Anna"}`)
	assert.Equal(t, nethttp.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "COMMON_017")

	// Health routes are outside the API group.
	w = request(r, nethttp.MethodGet, "/healthz", "")
	assert.Equal(t, nethttp.StatusOK, w.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	rt := newRuntime(t, nil)
	r := NewRouter(RouterConfigFromRuntime(rt, "test"))

	assert.Equal(t, nethttp.StatusOK, request(r, nethttp.MethodGet, "/healthz", "").Code)
	assert.Equal(t, nethttp.StatusOK, request(r, nethttp.MethodGet, "/readyz", "").Code)

	request(r, nethttp.MethodPost, "/api/v1/detect", `{"text":"Kontakt: max@example.org"}`)
	w := request(r, nethttp.MethodGet, "/metrics", "")
	require.Equal(t, nethttp.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `piianon_documents_total{mode="detect",status="success"} 1`)
	assert.Contains(t, w.Body.String(), `path="/api/v1/detect"`)
}

func TestRouter_MetricsDisabled(t *testing.T) {
	rt := newRuntime(t, func(c *config.Config) { c.Metrics.Enabled = false })
	r := NewRouter(RouterConfigFromRuntime(rt, "test"))

	assert.Equal(t, nethttp.StatusNotFound, request(r, nethttp.MethodGet, "/metrics", "").Code)
}

func TestRouter_ArtifactsDisabled(t *testing.T) {
	rt := newRuntime(t, nil)
	r := NewRouter(RouterConfigFromRuntime(rt, "test"))

	w := request(r, nethttp.MethodGet, "/api/v1/runs/abc/artifacts", "")
	assert.Equal(t, nethttp.StatusNotImplemented, w.Code)
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	rt := newRuntime(t, nil)
	r := NewRouter(RouterConfigFromRuntime(rt, "test"))

	assert.Equal(t, nethttp.StatusMethodNotAllowed, request(r, nethttp.MethodGet, "/api/v1/anonymize", "").Code)
}

func TestServer_ServeAndStop(t *testing.T) {
	rt := newRuntime(t, nil)
	cfg := rt.Config.Server.HTTP
	cfg.ShutdownTimeout = time.Second
	srv := NewServer(cfg, NewRouter(RouterConfigFromRuntime(rt, "test")), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	resp, err := nethttp.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Stop(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

//Personal.AI order the ending
