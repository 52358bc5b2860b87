package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"waterlily/pkg/platform/httputil"
)

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Registrar mounts a feature's routes.
type Registrar interface {
	Register(r chi.Router)
}

type RouterConfig struct {
	AllowedOrigins []string
	Gatherer       prometheus.Gatherer
	Logger         *slog.Logger
	// Ready maps a dependency name to its health check.
	Ready map[string]Pinger
}

// NewRouter wires the operational endpoints and the feature routes behind
// CORS. Features register their routes in a group with their own middleware.
func NewRouter(cfg RouterConfig, features ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(cfg.Ready, cfg.Logger))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		for _, f := range features {
			f.Register(r)
		}
	})
	return r
}

func readiness(checks map[string]Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = "unavailable"
				if logger != nil {
					logger.WarnContext(ctx, "readiness check failed", "dependency", name, "error", err)
				}
				continue
			}
			results[name] = "ok"
		}
		httputil.WriteJSON(w, status, results)
	}
}
