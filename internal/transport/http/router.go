package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"audittrail/internal/platform/health"
	"audittrail/internal/platform/metrics"
	"audittrail/internal/platform/middleware"
)

// RouterConfig collects what NewRouter mounts.
type RouterConfig struct {
	Audit      *Handler
	Health     *health.Handler
	AdminToken string
	// AdminVerifier replaces the AdminToken comparison when set.
	AdminVerifier middleware.TokenVerifier
	Metrics       *metrics.Metrics
	// Gatherer backs /metrics. Nil skips the endpoint.
	Gatherer       prometheus.Gatherer
	RequestTimeout time.Duration
}

// NewRouter wires all endpoints with middleware. Health probes and /metrics
// are open; the audit API requires the admin token.
func NewRouter(cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger, cfg.Metrics))
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		if cfg.AdminVerifier != nil {
			r.Use(middleware.RequireAdminTokenVerifier(cfg.AdminVerifier, logger))
		} else {
			r.Use(middleware.RequireAdminToken(cfg.AdminToken, logger))
		}
		cfg.Audit.Register(r)
	})

	return r
}
