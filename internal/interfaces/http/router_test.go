package http_test

import (
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molforge/graphchem/internal/infrastructure/monitoring/logging"
	"github.com/molforge/graphchem/internal/infrastructure/monitoring/metrics"
	httpapi "github.com/molforge/graphchem/internal/interfaces/http"
	"github.com/molforge/graphchem/internal/interfaces/http/handlers"
)

func testRouter(t *testing.T) nethttp.Handler {
	t.Helper()
	return httpapi.NewRouter(httpapi.RouterConfig{
		HealthHandler: handlers.NewHealthHandler(nil),
		Metrics:       metrics.New(),
		Logger:        logging.NewNopLogger(),
		Mode:          gin.TestMode,
	})
}

func TestRouter_Health(t *testing.T) {
	r := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(nethttp.MethodGet, "/healthz", nil))
	require.Equal(t, nethttp.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(nethttp.MethodGet, "/readyz", nil))
	assert.Equal(t, nethttp.StatusOK, w.Code)
}

func TestRouter_Metrics(t *testing.T) {
	r := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(nethttp.MethodGet, "/metrics", nil))
	require.Equal(t, nethttp.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "graphchem")
}

func TestRouter_UnregisteredRoutes(t *testing.T) {
	r := testRouter(t)

	// No predict or runs handlers were supplied, so the API routes are absent.
	for _, path := range []string{"/api/v1/predict", "/api/v1/runs"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(nethttp.MethodPost, path, strings.NewReader("{}")))
		assert.Equal(t, nethttp.StatusNotFound, w.Code, path)
	}
}
