package samsungac

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"github.com/joshp123/acbridge/internal/config"
	"github.com/joshp123/acbridge/internal/core"
	"github.com/joshp123/acbridge/internal/oauth"
	"github.com/joshp123/acbridge/internal/rate"
)

//go:embed AGENTS.md
var agentsMD string

//go:embed dashboard.json
var dashboardJSON []byte

const (
	PluginID         = "samsungac"
	defaultStatePath = "/var/lib/acbridge/smartthings-credentials.json"
)

// Plugin implements the acbridge plugin contract for SmartThings air conditioners.
type Plugin struct {
	client *Client
	cfg    Config
	health core.Health
}

var (
	_ rate.RateLimited   = (*Plugin)(nil)
	_ core.OAuthProvider = Plugin{}
)

// NewPlugin constructs the plugin from config. The bool reports whether it is configured at all.
func NewPlugin(cfg *config.Config) (Plugin, bool) {
	if cfg == nil || !config.EnabledPlugins(cfg)[PluginID] {
		return Plugin{}, false
	}

	runtimeCfg, err := ConfigFromSettings(cfg.SmartThings)
	if err != nil {
		return Plugin{health: core.Failed(err)}, true
	}

	tokens, err := tokenSource(cfg)
	if err != nil {
		return Plugin{cfg: runtimeCfg, health: core.Failed(err)}, true
	}

	httpClient := rate.WrapHTTP(Plugin{}.RateLimits(), &http.Client{Timeout: runtimeCfg.Timeout})
	client, err := NewClient(runtimeCfg, tokens, httpClient)
	if err != nil {
		return Plugin{cfg: runtimeCfg, health: core.Failed(err)}, true
	}

	return Plugin{client: client, cfg: runtimeCfg, health: core.Healthy()}, true
}

// tokenSource picks OAuth when configured, otherwise the static personal access token.
func tokenSource(cfg *config.Config) (TokenSource, error) {
	st := cfg.SmartThings
	if st.OAuth == nil {
		token, err := st.ResolveToken()
		if err != nil {
			return nil, err
		}
		return StaticToken(token), nil
	}

	var blobStore oauth.BlobStore
	if cfg.Blob != nil {
		store, err := oauth.NewS3Store(cfg.Blob)
		if err != nil {
			return nil, err
		}
		blobStore = store
	}

	decl := Plugin{}.OAuthDeclaration()
	if st.OAuth.StatePath != "" {
		decl.StatePath = st.OAuth.StatePath
	}
	manager, err := oauth.NewManager(decl, st.OAuth.BootstrapFile, blobStore)
	if err != nil {
		return nil, fmt.Errorf("oauth: %w", err)
	}
	manager.StartWithInterval(context.Background(), oauth.RefreshInterval(st.OAuth))
	return manager, nil
}

func (p Plugin) ID() string {
	return PluginID
}

func (p Plugin) Manifest() core.Manifest {
	return core.Manifest{
		PluginID:    PluginID,
		DisplayName: "Samsung AC (SmartThings)",
		Version:     "0.1.0",
		Services:    []string{ServiceName},
	}
}

func (p Plugin) AgentsMD() string {
	return agentsMD
}

func (p Plugin) OAuthDeclaration() oauth.Declaration {
	return oauth.Declaration{
		Provider:     "smartthings",
		AuthorizeURL: "https://api.smartthings.com/oauth/authorize",
		TokenURL:     "https://api.smartthings.com/oauth/token",
		Scopes:       []string{"r:devices:*", "x:devices:*"},
		StatePath:    defaultStatePath,
	}
}

// RateLimits keeps well under the SmartThings per-token device API budget.
func (p Plugin) RateLimits() rate.Declaration {
	return rate.Provider("smartthings").
		MaxRequestsPer(rate.Minute, 250).
		BudgetFloor(5).
		CacheFor(30 * time.Second).
		ReadHeaders(rate.SmartThingsHeaders())
}

func (p Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "samsungac-overview", JSON: dashboardJSON}}
}

func (p Plugin) RegisterGRPC(server *grpc.Server) {
	RegisterSamsungACService(server, p.client, p.cfg)
}

func (p Plugin) Collectors() []prometheus.Collector {
	if p.client == nil {
		return nil
	}
	return []prometheus.Collector{NewMetricsCollector(p.client, p.cfg)}
}

func (p Plugin) Health() core.Health {
	return p.health
}

// Client is nil when the plugin failed to initialise.
func (p Plugin) Client() *Client {
	return p.client
}

func (p Plugin) Config() Config {
	return p.cfg
}
