package httptransport

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"

	"medvault/pkg/platform/middleware/auth"
	"medvault/pkg/platform/middleware/request"
	"medvault/pkg/validation"
)

// Module is a feature handler that mounts its routes on the protected group.
type Module interface {
	Register(r chi.Router)
}

// Config holds everything NewRouter wires. Health and Metrics are served
// without authentication.
type Config struct {
	Logger         *slog.Logger
	Validator      auth.TokenValidator
	Health         Module
	Metrics        http.Handler
	RequestMetrics *request.Metrics
	TrustedProxies []netip.Prefix
	RequestTimeout time.Duration
	Modules        []Module
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(request.RequestTime)
	r.Use(request.ClientMetadata(cfg.TrustedProxies))
	r.Use(request.Logger(cfg.Logger))
	r.Use(request.Latency(cfg.RequestMetrics))

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(request.Timeout(cfg.RequestTimeout))
		}
		r.Use(request.BodyLimit(validation.MaxBodySize))
		r.Use(request.ContentTypeJSON)
		r.Use(auth.RequireAuth(cfg.Validator, cfg.Logger))
		for _, m := range cfg.Modules {
			m.Register(r)
		}
	})

	return r
}
