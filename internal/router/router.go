// Package router sets up all HTTP routes and middleware chains for the
// catalog admin. Everything the React UI talks to lives under /api; health
// and metrics sit at the top level.
package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"catalogadmin/internal/handlers"
	"catalogadmin/internal/middleware"
)

// Pinger reports whether a backing service is reachable. *sql.DB
// satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options carries the handlers and settings the router wires together.
type Options struct {
	Categories *handlers.Categories
	Products   *handlers.Products
	Imports    *handlers.Imports

	// ImportGate admits POST /api/import per client IP. Nil admits every
	// request.
	ImportGate *middleware.ImportGate

	// DB is pinged by /health. Nil reports healthy without checking.
	DB Pinger

	AllowedOrigins []string
	MetricsPath    string
}

// New creates and returns the configured Chi router with all middleware
// and route groups wired up.
func New(opts Options) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Export-Count"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler(opts.DB))
	if opts.MetricsPath != "" {
		r.Handle(opts.MetricsPath, promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/categories", func(r chi.Router) {
			c := opts.Categories
			r.Get("/", c.List)
			r.Post("/", c.Create)
			r.Get("/tree", c.Tree)
			r.Post("/bulk-delete", c.BulkDelete)
			r.Post("/merge", c.Merge)
			r.Post("/resolve", c.Resolve)
			r.Get("/{id}", c.Get)
			r.Put("/{id}", c.Update)
			r.Delete("/{id}", c.Delete)
		})

		r.Get("/products", opts.Products.List)

		r.Group(func(r chi.Router) {
			if opts.ImportGate != nil {
				r.Use(opts.ImportGate.Middleware)
			}
			r.Post("/import", opts.Imports.Import)
		})
		r.Get("/import/runs", opts.Imports.Runs)
		r.Get("/export", opts.Imports.Export)
		r.Post("/export/archive", opts.Imports.ArchiveExport)
	})

	return r
}

// healthHandler returns a simple JSON health check response. When db is
// set and does not answer within two seconds the check fails with 503.
func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				slog.Warn("health check failed", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}
}
