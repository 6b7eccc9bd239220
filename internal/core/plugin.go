// Package core defines how device integrations plug into the acbridge daemon
// and the registry that describes them over gRPC.
package core

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"github.com/joshp123/acbridge/internal/oauth"
)

type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthError    HealthStatus = "ERROR"
)

// Health is a plugin's status and, unless healthy, the reason for it.
type Health struct {
	Status  HealthStatus
	Message string
}

func Healthy() Health {
	return Health{Status: HealthHealthy}
}

// Failed marks a plugin that could not start, e.g. missing SmartThings credentials.
func Failed(err error) Health {
	return Health{Status: HealthError, Message: err.Error()}
}

// Dashboard is a Grafana dashboard shipped inside the binary.
type Dashboard struct {
	Name string
	JSON []byte
}

type Manifest struct {
	PluginID    string
	DisplayName string
	Version     string
	Services    []string
}

// Plugin is a device integration compiled into the daemon. A plugin that
// fails to start is still registered and reports the failure through Health.
type Plugin interface {
	ID() string
	Manifest() Manifest
	AgentsMD() string
	Dashboards() []Dashboard
	RegisterGRPC(*grpc.Server)
	Collectors() []prometheus.Collector
	Health() Health
}

// OAuthProvider is implemented by plugins whose cloud API is reached with
// refreshable OAuth tokens.
type OAuthProvider interface {
	OAuthDeclaration() oauth.Declaration
}

type HTTPRegistrant interface {
	RegisterHTTP(*http.ServeMux)
}
