package homekit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/rs/zerolog/log"

	"github.com/joshp123/acbridge/internal/config"
	"github.com/joshp123/acbridge/plugins/samsungac"
)

// Server publishes a bridge with one accessory per unit.
type Server struct {
	hap         *hap.Server
	accessories []*accessory.A
}

// Accessory builds the HomeKit accessory for a unit according to its variant.
func Accessory(api API, unit samsungac.Unit, timeout time.Duration) *accessory.A {
	if unit.Variant == config.VariantThermostat {
		return NewThermostat(api, unit, timeout).A
	}
	return NewHeaterCooler(api, unit, timeout).A
}

// NewServer builds the HAP server. Units are sorted by device ID so accessory IDs stay stable across restarts.
func NewServer(cfg config.HomeKitConfig, api API, units []samsungac.Unit, timeout time.Duration) (*Server, error) {
	bridge := accessory.NewBridge(accessory.Info{
		Name:         cfg.BridgeName,
		SerialNumber: "acbridge",
		Manufacturer: "acbridge",
		Model:        "SmartThings bridge",
	})

	sorted := make([]samsungac.Unit, len(units))
	copy(sorted, units)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Device.ID < sorted[j].Device.ID })

	accessories := make([]*accessory.A, 0, len(sorted))
	for _, unit := range sorted {
		accessories = append(accessories, Accessory(api, unit, timeout))
		log.Info().
			Str("device_id", unit.Device.ID).
			Str("name", unit.Device.DisplayName()).
			Str("variant", unit.Variant).
			Str("temperature_unit", unit.TemperatureUnit).
			Msg("homekit accessory")
	}

	store := hap.NewFsStore(cfg.StoreDir)
	server, err := hap.NewServer(store, bridge.A, accessories...)
	if err != nil {
		return nil, fmt.Errorf("hap server: %w", err)
	}
	server.Pin = cfg.Pin
	if cfg.Addr != "" {
		server.Addr = cfg.Addr
	}

	return &Server{hap: server, accessories: accessories}, nil
}

// ListenAndServe blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	return s.hap.ListenAndServe(ctx)
}

func (s *Server) Accessories() []*accessory.A {
	return s.accessories
}
