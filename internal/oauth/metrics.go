package oauth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

var (
	refreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "acbridge_oauth_refreshes_total",
		Help: "SmartThings token refreshes by result",
	}, []string{"provider", "result"})

	tokenExpiry = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "acbridge_oauth_token_expiry_timestamp_seconds",
		Help: "Expiry of the cached access token; 0 when no token is usable",
	}, []string{"provider"})

	mirrorHealthy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "acbridge_oauth_state_mirror_ok",
		Help: "Whether the last refresh-state copy to object storage succeeded",
	}, []string{"provider"})

	scopeRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "acbridge_oauth_scope_rejected_total",
		Help: "Stored states rejected for missing a declared scope",
	}, []string{"provider"})
)

// MetricsCollectors returns collectors for the shared OAuth module.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{refreshes, tokenExpiry, mirrorHealthy, scopeRejected}
}

func observeRefresh(provider string, expiry time.Time, err error) {
	if err != nil {
		refreshes.WithLabelValues(provider, resultError).Inc()
		tokenExpiry.WithLabelValues(provider).Set(0)
		return
	}
	refreshes.WithLabelValues(provider, resultOK).Inc()
	tokenExpiry.WithLabelValues(provider).Set(float64(expiry.Unix()))
}

func observeMirror(provider string, err error) {
	v := 1.0
	if err != nil {
		v = 0
	}
	mirrorHealthy.WithLabelValues(provider).Set(v)
}
