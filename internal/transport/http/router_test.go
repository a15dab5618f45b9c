package httptransport

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"audittrail/internal/platform/health"
	"audittrail/internal/platform/metrics"
	"audittrail/internal/platform/middleware"
	"audittrail/pkg/platform/audit/store/memory"
)

func TestRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	logger := slog.New(slog.DiscardHandler)
	router := NewRouter(RouterConfig{
		Audit:      NewHandler(memory.New(), logger),
		Health:     health.New("test"),
		AdminToken: "admin-secret",
		Metrics:    metrics.New(reg),
		Gatherer:   reg,
	}, logger)

	serve := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set(middleware.AdminTokenHeader, token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("audit API requires the admin token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve("/audit/events", "").Code)
		assert.Equal(t, http.StatusUnauthorized, serve("/audit/statistics", "wrong").Code)
		assert.Equal(t, http.StatusOK, serve("/audit/events", "admin-secret").Code)
	})

	t.Run("probes are open", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, serve("/health/live", "").Code)
		assert.Equal(t, http.StatusOK, serve("/health/ready", "").Code)
	})

	t.Run("metrics expose request counters", func(t *testing.T) {
		rec := serve("/metrics", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "audittrail_http_requests_total")
	})

	t.Run("responses carry a request id", func(t *testing.T) {
		assert.NotEmpty(t, serve("/health/live", "").Header().Get("X-Request-ID"))
	})
}
