package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lalithlochan/nudge/internal/metrics"
	"github.com/lalithlochan/nudge/internal/redis"
)

// RouterConfig wires the HTTP surface
type RouterConfig struct {
	TriggerToken string
	// IPLimiter throttles every caller per client IP before authentication.
	IPLimiter *redis.RateLimiter
	// PassLimiter throttles authenticated passes in one shared bucket.
	PassLimiter *redis.RateLimiter
	PassTimeout time.Duration
}

// NewRouter builds the service router: the authenticated pass trigger,
// health and metrics.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) http.Handler {
	if cfg.PassTimeout <= 0 {
		cfg.PassTimeout = 5 * time.Minute
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	r.Route("/v1", func(r chi.Router) {
		// Unauthenticated callers only ever spend their own IP's budget.
		r.Use(RateLimitMiddleware(cfg.IPLimiter, logger, IPKeyFunc))
		r.Use(BearerAuth(cfg.TriggerToken, logger))
		r.Use(RateLimitMiddleware(cfg.PassLimiter, logger, StaticKey("passes")))
		r.Use(middleware.Timeout(cfg.PassTimeout))

		r.Post("/passes", h.RunPass)
	})

	r.Get("/health", h.Health)
	r.Handle("/metrics", metrics.Handler())

	return r
}
