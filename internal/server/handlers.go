package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/joshp123/acbridge/internal/core"
)

// HealthHandler returns ok for liveness checks, or 503 listing plugins in ERROR.
// DEGRADED plugins are listed but keep the bridge live.
func HealthHandler(plugins []core.Plugin) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		var failing, degraded []string
		for _, p := range plugins {
			health := p.Health()
			line := fmt.Sprintf("%s: %s", p.ID(), health.Message)
			switch health.Status {
			case core.HealthError:
				failing = append(failing, line)
			case core.HealthDegraded:
				degraded = append(degraded, line)
			}
		}
		if len(failing) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(strings.Join(append(failing, degraded...), "\n")))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(strings.Join(append([]string{"ok"}, degraded...), "\n")))
	}
}
