package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cityledger/pkg/platform/httputil"
)

// Registrar is implemented by module handlers that mount their own routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// RouterConfig collects everything the top-level router mounts.
type RouterConfig struct {
	Modules  []Registrar
	Gatherer prometheus.Gatherer
	Health   map[string]HealthCheck
}

// NewRouter wires module routes, /metrics and /healthz.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	for _, m := range cfg.Modules {
		m.Register(r)
	}
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/healthz", healthHandler(cfg.Health))
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		result := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				result[name] = err.Error()
				continue
			}
			result[name] = "ok"
		}
		httputil.WriteJSON(w, status, map[string]any{"checks": result})
	}
}
