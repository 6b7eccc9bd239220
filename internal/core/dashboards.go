package core

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// DashboardPath is the HTTP path a plugin dashboard is served under.
func DashboardPath(pluginID, name string) string {
	return "/dashboards/" + pluginID + "/" + name + ".json"
}

// DashboardsMap keys every plugin dashboard by its DashboardPath.
func DashboardsMap(plugins []Plugin) map[string][]byte {
	result := make(map[string][]byte)
	for _, p := range plugins {
		id := p.Manifest().PluginID
		for _, d := range p.Dashboards() {
			result[DashboardPath(id, d.Name)] = d.JSON
		}
	}
	return result
}

// WriteDashboards lays dashboards out as <dir>/<plugin>/<name>.json for Grafana
// file provisioning. Files whose content is unchanged are left alone so
// Grafana does not reload them on every bridge restart. It returns the number
// of files written.
func WriteDashboards(dir string, plugins []Plugin) (int, error) {
	if dir == "" {
		return 0, nil
	}
	written := 0
	for rel, data := range dashboardFiles(plugins) {
		path := filepath.Join(dir, rel)
		if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return written, fmt.Errorf("create dashboard dir: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return written, fmt.Errorf("write dashboard %s: %w", path, err)
		}
		written++
	}
	return written, nil
}

func dashboardFiles(plugins []Plugin) map[string][]byte {
	files := make(map[string][]byte)
	for _, p := range plugins {
		id := p.Manifest().PluginID
		for _, d := range p.Dashboards() {
			files[filepath.Join(id, d.Name+".json")] = d.JSON
		}
	}
	return files
}
