package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront-cart/pkg/health"
	"github.com/utafrali/storefront-cart/pkg/middleware"
)

// RequestTimeout bounds a request, including a debounced quantity commit.
const RequestTimeout = 60 * time.Second

// RouterConfig holds the per-deployment middleware settings.
type RouterConfig struct {
	CORS middleware.CORSConfig
	// CreateLimit throttles session creation per client, since every new
	// session loads a basket from the platform.
	CreateLimit middleware.RateLimitConfig
}

// NewRouter creates a chi router with all cart session routes registered.
func NewRouter(
	sessions Sessions,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("cart"))
	r.Use(middleware.Tracing("cart"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	cartHandler := NewCartHandler(sessions, logger)

	r.Route("/api/v1/cart/sessions", func(r chi.Router) {
		r.Use(ContentTypeJSONOrForm)

		r.With(middleware.RateLimit(cfg.CreateLimit, logger)).Post("/", cartHandler.CreateSession)

		r.Route("/{sessionId}", func(r chi.Router) {
			r.Use(SessionFromPath(sessions))

			r.Get("/", cartHandler.GetSession)
			r.Delete("/", cartHandler.DeleteSession)
			r.Post("/open", cartHandler.OpenCart)

			r.Put("/items/{position}/quantity", cartHandler.ChangeQuantity)
			r.Post("/items/{position}/increase", cartHandler.IncreaseQuantity)
			r.Post("/items/{position}/decrease", cartHandler.DecreaseQuantity)
			r.Delete("/items/{position}", cartHandler.DeleteItem)
		})
	})

	return r
}
