package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	t.Setenv(TokenEnv, "")

	cfg, err := Parse([]byte(`
schema_version: 1
smartthings:
  token: abc
  devices:
    - id: dev-1
    - id: dev-2
      variant: thermostat
      temperature_unit: f
`))
	require.NoError(t, err)

	assert.Equal(t, DefaultGRPCAddr, cfg.Core.GRPCAddr)
	assert.Equal(t, DefaultHTTPAddr, cfg.Core.HTTPAddr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DefaultHAPPin, cfg.HomeKit.Pin)
	assert.Equal(t, DefaultBaseURL, cfg.SmartThings.BaseURL)
	assert.Equal(t, DefaultDeviceName, cfg.SmartThings.DeviceName)
	assert.Equal(t, DefaultRequestTimeout, cfg.SmartThings.RequestTimeout.Duration())

	require.Len(t, cfg.SmartThings.Devices, 2)
	assert.Equal(t, VariantHeaterCooler, cfg.SmartThings.Devices[0].Variant)
	assert.Equal(t, UnitCelsius, cfg.SmartThings.Devices[0].TemperatureUnit)
	assert.Equal(t, VariantThermostat, cfg.SmartThings.Devices[1].Variant)
	assert.Equal(t, UnitFahrenheit, cfg.SmartThings.Devices[1].TemperatureUnit)

	assert.Nil(t, cfg.MQTT)
	assert.True(t, EnabledPlugins(cfg)["samsungac"])
}

func TestParseExpandsEnvAndOverridesToken(t *testing.T) {
	t.Setenv("ACBRIDGE_TEST_BROKER", "tcp://broker:1883")
	t.Setenv(TokenEnv, "from-env")

	cfg, err := Parse([]byte(`
schema_version: 1
smartthings:
  token: from-file
mqtt:
  broker: ${ACBRIDGE_TEST_BROKER}
  topic_prefix: ${ACBRIDGE_TEST_MISSING:home/ac}
  publish_interval: 15s
`))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.SmartThings.Token)
	require.NotNil(t, cfg.MQTT)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "home/ac", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 15*time.Second, cfg.MQTT.PublishInterval.Duration())
}

func TestValidateRejects(t *testing.T) {
	t.Setenv(TokenEnv, "")

	cases := map[string]string{
		"schema":  "schema_version: 2\nsmartthings: {token: x}\n",
		"token":   "schema_version: 1\n",
		"variant": "schema_version: 1\nsmartthings: {token: x, variant: fan}\n",
		"unit":    "schema_version: 1\nsmartthings: {token: x, temperature_unit: K}\n",
		"pin":     "schema_version: 1\nhomekit: {pin: '1234'}\nsmartthings: {token: x}\n",
		"dupe":    "schema_version: 1\nsmartthings: {token: x, devices: [{id: a}, {id: a}]}\n",
		"oauth":   "schema_version: 1\nsmartthings: {oauth: {state_path: /tmp/s.json}}\n",
		"blob":    "schema_version: 1\nsmartthings: {token: x}\nblob: {endpoint: s3.local}\n",
		"mqtt":    "schema_version: 1\nsmartthings: {token: x}\nmqtt: {topic_prefix: a}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestResolveTokenFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("  secret-token\n"), 0o600))

	token, err := SmartThingsConfig{TokenFile: path}.ResolveToken()
	require.NoError(t, err)
	assert.Equal(t, "secret-token", token)

	_, err = SmartThingsConfig{}.ResolveToken()
	assert.Error(t, err)
}
