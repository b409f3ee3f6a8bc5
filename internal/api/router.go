// Package api serves the decision engine over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/referral-cli/internal/intake"
)

// maxBodyBytes bounds request bodies. Batches are the largest payloads.
const maxBodyBytes = 8 << 20

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
	Timeout time.Duration
}

// NewRouter wires the HTTP routes onto svc.
func NewRouter(svc *intake.Service, opts Options) http.Handler {
	h := &handlers{svc: svc}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/configurations", func(r chi.Router) {
			r.Get("/", h.listConfigurations)
			r.Post("/", h.saveConfiguration)
			r.Post("/validate", h.validateConfiguration)
			r.Get("/{id}", h.getConfiguration)
		})
		r.Route("/referrals", func(r chi.Router) {
			r.Post("/evaluate", h.evaluate)
			r.Post("/batch", h.evaluateBatch)
			r.Get("/{id}/decisions", h.listDecisions)
		})
	})
	return r
}
