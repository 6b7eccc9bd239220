package core

import "github.com/prometheus/client_golang/prometheus"

// MetricsRegistry builds a registry from plugin collectors plus any shared ones.
func MetricsRegistry(plugins []Plugin, shared ...prometheus.Collector) *prometheus.Registry {
	registry := prometheus.NewRegistry()

	for _, collector := range shared {
		registry.MustRegister(collector)
	}
	for _, plugin := range plugins {
		for _, collector := range plugin.Collectors() {
			registry.MustRegister(collector)
		}
	}

	return registry
}
