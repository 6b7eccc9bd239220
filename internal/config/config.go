package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SchemaVersion         = 1
	DefaultPath           = "/etc/acbridge/config.yaml"
	DefaultGRPCAddr       = "0.0.0.0:9000"
	DefaultHTTPAddr       = "0.0.0.0:8080"
	DefaultHAPStoreDir    = "/var/lib/acbridge/hap"
	DefaultHAPPin         = "00102003"
	DefaultBridgeName     = "Samsung AC Bridge"
	DefaultBaseURL        = "https://api.smartthings.com/v1"
	DefaultDeviceName     = "Samsung Floor A/C"
	DefaultOAuthPrefix    = "acbridge/oauth"
	DefaultMQTTPrefix     = "acbridge"
	DefaultRequestTimeout = 10 * time.Second
	DefaultRefresh        = 10 * time.Minute
	DefaultPublish        = 60 * time.Second

	VariantHeaterCooler = "heater_cooler"
	VariantThermostat   = "thermostat"

	UnitCelsius    = "C"
	UnitFahrenheit = "F"

	// TokenEnv overrides smartthings.token when set.
	TokenEnv = "SMARTTHINGS_TOKEN"
)

// Config is the root of config.yaml.
type Config struct {
	SchemaVersion int               `yaml:"schema_version"`
	Core          CoreConfig        `yaml:"core"`
	Log           LogConfig         `yaml:"log"`
	HomeKit       HomeKitConfig     `yaml:"homekit"`
	SmartThings   SmartThingsConfig `yaml:"smartthings"`
	Blob          *BlobConfig       `yaml:"blob"`
	MQTT          *MQTTConfig       `yaml:"mqtt"`
}

type CoreConfig struct {
	GRPCAddr     string `yaml:"grpc_addr"`
	HTTPAddr     string `yaml:"http_addr"`
	DashboardDir string `yaml:"dashboard_dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	Colors bool   `yaml:"colors"`
}

type HomeKitConfig struct {
	StoreDir   string `yaml:"store_dir"`
	Pin        string `yaml:"pin"`
	Addr       string `yaml:"addr"`
	BridgeName string `yaml:"bridge_name"`
}

// SmartThingsConfig describes how to reach the cloud API and which units to expose.
type SmartThingsConfig struct {
	BaseURL         string         `yaml:"base_url"`
	Token           string         `yaml:"token"`
	TokenFile       string         `yaml:"token_file"`
	OAuth           *OAuthConfig   `yaml:"oauth"`
	DeviceName      string         `yaml:"device_name"`
	Variant         string         `yaml:"variant"`
	TemperatureUnit string         `yaml:"temperature_unit"`
	RequestTimeout  Duration       `yaml:"request_timeout"`
	Devices         []DeviceConfig `yaml:"devices"`
}

// OAuthConfig switches the token source from a static token to refresh-token OAuth.
type OAuthConfig struct {
	BootstrapFile   string   `yaml:"bootstrap_file"`
	StatePath       string   `yaml:"state_path"`
	RefreshEnabled  *bool    `yaml:"refresh_enabled"`
	RefreshInterval Duration `yaml:"refresh_interval"`
}

// DeviceConfig pins a unit. Empty fields are filled from the device listing.
type DeviceConfig struct {
	ID              string `yaml:"id"`
	Label           string `yaml:"label"`
	Variant         string `yaml:"variant"`
	TemperatureUnit string `yaml:"temperature_unit"`
}

// BlobConfig mirrors OAuth state to S3-compatible storage.
type BlobConfig struct {
	Endpoint      string `yaml:"endpoint"`
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	Region        string `yaml:"region"`
	AccessKeyFile string `yaml:"access_key_file"`
	SecretKeyFile string `yaml:"secret_key_file"`
}

type MQTTConfig struct {
	Broker          string   `yaml:"broker"`
	Username        string   `yaml:"username"`
	PasswordFile    string   `yaml:"password_file"`
	TopicPrefix     string   `yaml:"topic_prefix"`
	PublishInterval Duration `yaml:"publish_interval"`
}

// Duration is a time.Duration that unmarshals from strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load parses the YAML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Core.GRPCAddr == "" {
		cfg.Core.GRPCAddr = DefaultGRPCAddr
	}
	if cfg.Core.HTTPAddr == "" {
		cfg.Core.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.HomeKit.StoreDir == "" {
		cfg.HomeKit.StoreDir = DefaultHAPStoreDir
	}
	if cfg.HomeKit.Pin == "" {
		cfg.HomeKit.Pin = DefaultHAPPin
	}
	if cfg.HomeKit.BridgeName == "" {
		cfg.HomeKit.BridgeName = DefaultBridgeName
	}

	st := &cfg.SmartThings
	if st.BaseURL == "" {
		st.BaseURL = DefaultBaseURL
	}
	if token := os.Getenv(TokenEnv); token != "" {
		st.Token = token
	}
	if st.DeviceName == "" {
		st.DeviceName = DefaultDeviceName
	}
	if st.Variant == "" {
		st.Variant = VariantHeaterCooler
	}
	st.TemperatureUnit = strings.ToUpper(strings.TrimSpace(st.TemperatureUnit))
	if st.TemperatureUnit == "" {
		st.TemperatureUnit = UnitCelsius
	}
	if st.RequestTimeout == 0 {
		st.RequestTimeout = Duration(DefaultRequestTimeout)
	}
	for i := range st.Devices {
		dev := &st.Devices[i]
		if dev.Variant == "" {
			dev.Variant = st.Variant
		}
		dev.TemperatureUnit = strings.ToUpper(strings.TrimSpace(dev.TemperatureUnit))
		if dev.TemperatureUnit == "" {
			dev.TemperatureUnit = st.TemperatureUnit
		}
	}

	if st.OAuth != nil {
		if st.OAuth.RefreshEnabled == nil {
			enabled := true
			st.OAuth.RefreshEnabled = &enabled
		}
		if st.OAuth.RefreshInterval == 0 {
			st.OAuth.RefreshInterval = Duration(DefaultRefresh)
		}
	}

	if cfg.Blob != nil && cfg.Blob.Prefix == "" {
		cfg.Blob.Prefix = DefaultOAuthPrefix
	}

	if cfg.MQTT != nil {
		if cfg.MQTT.TopicPrefix == "" {
			cfg.MQTT.TopicPrefix = DefaultMQTTPrefix
		}
		if cfg.MQTT.PublishInterval == 0 {
			cfg.MQTT.PublishInterval = Duration(DefaultPublish)
		}
	}
}

// Validate enforces required invariants beyond YAML typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %d", SchemaVersion)
	}
	if cfg.Core.GRPCAddr == "" {
		return fmt.Errorf("core.grpc_addr is required")
	}
	if cfg.Core.HTTPAddr == "" {
		return fmt.Errorf("core.http_addr is required")
	}
	if len(cfg.HomeKit.Pin) != 8 || strings.Trim(cfg.HomeKit.Pin, "0123456789") != "" {
		return fmt.Errorf("homekit.pin must be 8 digits")
	}

	st := cfg.SmartThings
	if st.OAuth == nil && st.Token == "" && st.TokenFile == "" {
		return fmt.Errorf("smartthings.token, smartthings.token_file or smartthings.oauth is required")
	}
	if st.OAuth != nil {
		if st.OAuth.BootstrapFile == "" {
			return fmt.Errorf("smartthings.oauth.bootstrap_file is required")
		}
		if st.OAuth.StatePath == "" {
			return fmt.Errorf("smartthings.oauth.state_path is required")
		}
	}
	if err := validateVariant("smartthings.variant", st.Variant); err != nil {
		return err
	}
	if err := validateUnit("smartthings.temperature_unit", st.TemperatureUnit); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for i, dev := range st.Devices {
		if dev.ID == "" {
			return fmt.Errorf("smartthings.devices[%d].id is required", i)
		}
		if seen[dev.ID] {
			return fmt.Errorf("duplicate device id: %s", dev.ID)
		}
		seen[dev.ID] = true
		if err := validateVariant(fmt.Sprintf("smartthings.devices[%d].variant", i), dev.Variant); err != nil {
			return err
		}
		if err := validateUnit(fmt.Sprintf("smartthings.devices[%d].temperature_unit", i), dev.TemperatureUnit); err != nil {
			return err
		}
	}

	if cfg.Blob != nil {
		if cfg.Blob.Endpoint == "" {
			return fmt.Errorf("blob.endpoint is required")
		}
		if cfg.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket is required")
		}
		if cfg.Blob.AccessKeyFile == "" {
			return fmt.Errorf("blob.access_key_file is required")
		}
		if cfg.Blob.SecretKeyFile == "" {
			return fmt.Errorf("blob.secret_key_file is required")
		}
	}

	if cfg.MQTT != nil && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}

	return nil
}

// EnabledPlugins maps enabled plugin IDs based on config presence.
func EnabledPlugins(cfg *Config) map[string]bool {
	enabled := make(map[string]bool)
	if cfg == nil {
		return enabled
	}
	if cfg.SmartThings.Token != "" || cfg.SmartThings.TokenFile != "" || cfg.SmartThings.OAuth != nil {
		enabled["samsungac"] = true
	}
	return enabled
}

// ResolveToken returns the static token, reading token_file when needed.
func (s SmartThingsConfig) ResolveToken() (string, error) {
	if s.Token != "" {
		return s.Token, nil
	}
	if s.TokenFile == "" {
		return "", fmt.Errorf("no smartthings token configured")
	}
	data, err := os.ReadFile(s.TokenFile)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", s.TokenFile)
	}
	return token, nil
}

func validateVariant(field, value string) error {
	switch value {
	case VariantHeaterCooler, VariantThermostat:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", field, VariantHeaterCooler, VariantThermostat, value)
	}
}

func validateUnit(field, value string) error {
	switch value {
	case UnitCelsius, UnitFahrenheit:
		return nil
	default:
		return fmt.Errorf("%s must be C or F, got %q", field, value)
	}
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands ${VAR} and ${VAR:default}.
func expandEnvVars(input string) string {
	return envPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}
