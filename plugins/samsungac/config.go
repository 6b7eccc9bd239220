package samsungac

import (
	"fmt"
	"time"

	"github.com/joshp123/acbridge/internal/config"
)

const (
	defaultBaseURL = "https://api.smartthings.com/v1"
	defaultTimeout = 10 * time.Second
)

// Config defines runtime configuration for the SmartThings client.
type Config struct {
	BaseURL    string
	DeviceName string
	Timeout    time.Duration

	// Variant and TemperatureUnit apply to discovered devices that are not pinned in Devices.
	Variant         string
	TemperatureUnit string
	Devices         []config.DeviceConfig
}

// ConfigFromSettings converts the YAML section into runtime config.
func ConfigFromSettings(st config.SmartThingsConfig) (Config, error) {
	if st.Token == "" && st.TokenFile == "" && st.OAuth == nil {
		return Config{}, fmt.Errorf("smartthings token or oauth is required")
	}

	timeout := st.RequestTimeout.Duration()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseURL := st.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return Config{
		BaseURL:         baseURL,
		DeviceName:      st.DeviceName,
		Timeout:         timeout,
		Variant:         st.Variant,
		TemperatureUnit: st.TemperatureUnit,
		Devices:         st.Devices,
	}, nil
}
