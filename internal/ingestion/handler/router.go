package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/ratelimit"
)

// RouterConfig carries everything the router needs besides the handler.
// Nil Health, Metrics or Limiter disable the corresponding feature.
type RouterConfig struct {
	JWTSecret         []byte
	AllowedOrigins    []string
	Limiter           *ratelimit.Limiter
	RequestsPerMinute int
	QueryTimeout      time.Duration
	Health            *health.Checker
	Metrics           *metrics.Metrics
}

// NewRouter builds the service's HTTP handler.
//
// Route table:
//
//	GET    /health/live
//	GET    /health/ready
//	POST   /api/v1/documents                 upload (multipart)
//	GET    /api/v1/documents                 list the caller's documents
//	GET    /api/v1/documents/{id}            status and metadata
//	POST   /api/v1/documents/{id}/reprocess
//	DELETE /api/v1/documents/{id}
//	POST   /api/v1/query
//
// Middleware chain (outermost first):
//
//	RequestID → RequestLogger → Recoverer → Metrics → CORS → Authenticate → RateLimit
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(pkgmw.RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(pkgmw.Metrics(cfg.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.LiveHandler())
		r.Get("/health/ready", cfg.Health.ReadyHandler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Authenticate(cfg.JWTSecret))
		r.Use(RateLimit(cfg.Limiter, cfg.RequestsPerMinute))

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", h.Upload)
			r.Get("/", h.List)
			r.Get("/{id}", h.Get)
			r.Post("/{id}/reprocess", h.Reprocess)
			r.Delete("/{id}", h.Delete)
		})
		r.With(pkgmw.Timeout(cfg.QueryTimeout)).Post("/query", h.Query)
	})

	return r
}
