package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joshp123/acbridge/internal/core"
)

// HTTPServer serves /health, /metrics and the Grafana dashboards the plugins ship.
type HTTPServer struct {
	Server *http.Server
}

func NewHTTPServer(addr string, handler http.Handler) *HTTPServer {
	return &HTTPServer{Server: &http.Server{Addr: addr, Handler: handler}}
}

func NewMux(plugins []core.Plugin, registry *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/health", HealthHandler(plugins))
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(registry,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))
	mux.Handle("/dashboards/", DashboardsHandler(core.DashboardsMap(plugins)))
	for _, p := range plugins {
		if registrant, ok := p.(core.HTTPRegistrant); ok {
			registrant.RegisterHTTP(mux)
		}
	}
	return mux
}

// DashboardsHandler serves dashboard JSON by path. /dashboards/ itself lists
// the available paths so Grafana provisioning scripts can discover them.
func DashboardsHandler(dashboards map[string][]byte) http.Handler {
	paths := make([]string, 0, len(dashboards))
	for path := range dashboards {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.TrimSuffix(r.URL.Path, "/") == "/dashboards" {
			_ = json.NewEncoder(w).Encode(map[string][]string{"dashboards": paths})
			return
		}
		data, ok := dashboards[r.URL.Path]
		if !ok {
			w.Header().Del("Content-Type")
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	})
}

func (s *HTTPServer) ListenAndServe() error {
	return s.Server.ListenAndServe()
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}
