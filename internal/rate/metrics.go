package rate

import "github.com/prometheus/client_golang/prometheus"

var (
	remainingGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acbridge_rate_limit_remaining",
			Help: "Remaining requests reported by the provider",
		},
		[]string{"provider"},
	)
	limitGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acbridge_rate_limit",
			Help: "Request ceiling reported by the provider",
		},
		[]string{"provider"},
	)
	retryAfterGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acbridge_rate_limit_retry_after_seconds",
			Help: "Seconds until the provider cooldown ends",
		},
		[]string{"provider"},
	)
	lastStatusGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acbridge_rate_limit_last_status_code",
			Help: "Last HTTP status code observed by the rate-limit wrapper",
		},
		[]string{"provider"},
	)
	blockedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acbridge_rate_limit_blocked_total",
			Help: "Requests held back by the rate-limit wrapper",
		},
		[]string{"provider", "reason"},
	)
)

// MetricsCollectors exposes shared rate-limit collectors.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		remainingGauge,
		limitGauge,
		retryAfterGauge,
		lastStatusGauge,
		blockedTotal,
	}
}
