package core

import (
	"context"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// RegistryServiceName is the gRPC service name for plugin discovery.
const RegistryServiceName = "acbridge.registry.v1.Registry"

// RegistryService provides plugin discovery to clients.
type RegistryService struct {
	plugins []Plugin
	mu      sync.RWMutex
}

func NewRegistryService(plugins []Plugin) *RegistryService {
	return &RegistryService{plugins: plugins}
}

// ListPlugins returns {"plugins":[{plugin_id, display_name, version, status}]}.
func (r *RegistryService) ListPlugins(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	plugins := make([]any, 0, len(r.plugins))
	for _, p := range r.plugins {
		manifest := p.Manifest()
		plugins = append(plugins, map[string]any{
			"plugin_id":    manifest.PluginID,
			"display_name": manifest.DisplayName,
			"version":      manifest.Version,
			"status":       string(p.Health().Status),
		})
	}

	return toStruct(map[string]any{"plugins": plugins})
}

// DescribePlugin expects {"plugin_id": "..."} and returns {"plugin": {...}}.
func (r *RegistryService) DescribePlugin(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	_ = ctx

	id := req.GetFields()["plugin_id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "plugin_id is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		manifest := p.Manifest()
		if manifest.PluginID != id {
			continue
		}

		services := make([]any, 0, len(manifest.Services))
		for _, svc := range manifest.Services {
			services = append(services, svc)
		}
		dashboards := make([]any, 0, len(p.Dashboards()))
		for _, d := range p.Dashboards() {
			dashboards = append(dashboards, map[string]any{
				"name": d.Name,
				"path": DashboardPath(manifest.PluginID, d.Name),
			})
		}

		health := p.Health()
		plugin := map[string]any{
			"plugin_id":      manifest.PluginID,
			"display_name":   manifest.DisplayName,
			"version":        manifest.Version,
			"services":       services,
			"agents_md":      p.AgentsMD(),
			"status":         string(health.Status),
			"health_message": health.Message,
			"dashboards":     dashboards,
		}
		if provider, ok := p.(OAuthProvider); ok {
			decl := provider.OAuthDeclaration()
			plugin["oauth"] = map[string]any{
				"provider": decl.Provider,
				"scope":    decl.Scope(),
			}
		}
		return toStruct(map[string]any{"plugin": plugin})
	}

	return nil, status.Errorf(codes.NotFound, "plugin %q not found", id)
}

func toStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}
