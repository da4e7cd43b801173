package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterOptions struct {
	AllowedOrigins []string
	Timeout        time.Duration
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:*", "https://localhost:*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.Timeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/searches", func(r chi.Router) {
			r.Post("/", h.CreateSearch)
			r.Get("/", h.ListJobs)
			r.Get("/{jobID}", h.GetJob)
			r.Get("/{jobID}/records", h.GetJobRecords)
		})
		r.Post("/staging", h.CreateStaging)
	})

	return r
}
