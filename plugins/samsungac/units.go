package samsungac

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/joshp123/acbridge/internal/config"
)

// Unit is a device together with how it should be exposed.
type Unit struct {
	Device          Device
	Variant         string
	TemperatureUnit string
}

// ToCelsius converts a device reading to whole degrees Celsius when the device reports Fahrenheit.
func ToCelsius(value float64, unit string) float64 {
	if unit != config.UnitFahrenheit {
		return value
	}
	return math.Round(5.0 / 9.0 * (value - 32))
}

// FromCelsius converts a HomeKit setpoint to the device unit, rounded to an integer.
func FromCelsius(celsius float64, unit string) int {
	if unit != config.UnitFahrenheit {
		return int(math.Round(celsius))
	}
	return int(math.Round(celsius*1.8 + 32))
}

// Units resolves the devices to expose. Pinned devices are looked up individually;
// otherwise the filtered device listing is used.
func (c *Client) Units(ctx context.Context, cfg Config) ([]Unit, error) {
	if len(cfg.Devices) == 0 {
		devices, err := c.Devices(ctx)
		if err != nil {
			return nil, err
		}
		units := make([]Unit, 0, len(devices))
		for _, device := range devices {
			units = append(units, Unit{Device: device, Variant: cfg.Variant, TemperatureUnit: cfg.TemperatureUnit})
		}
		return units, nil
	}

	units := make([]Unit, 0, len(cfg.Devices))
	for _, pinned := range cfg.Devices {
		device, err := c.Device(ctx, pinned.ID)
		if err != nil {
			log.Warn().Err(err).Str("device_id", pinned.ID).Msg("device lookup failed, using config")
			device = Device{ID: pinned.ID, Name: pinned.Label}
		}
		if pinned.Label != "" {
			device.Label = pinned.Label
		}
		units = append(units, Unit{Device: device, Variant: pinned.Variant, TemperatureUnit: pinned.TemperatureUnit})
	}
	return units, nil
}
