// Package mqttmirror publishes unit state to an MQTT broker and accepts commands from it.
package mqttmirror

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/joshp123/acbridge/internal/config"
	"github.com/joshp123/acbridge/plugins/samsungac"
)

// Controller is the part of the SmartThings client the mirror needs.
type Controller interface {
	Status(ctx context.Context, deviceID string) (samsungac.DeviceStatus, error)
	SetSwitch(ctx context.Context, deviceID, status string) error
	SetMode(ctx context.Context, deviceID, mode string) error
	SetCoolingSetpoint(ctx context.Context, deviceID string, temperature int) error
	SetFanMode(ctx context.Context, deviceID, fanMode string) error
}

var _ Controller = (*samsungac.Client)(nil)

// State is the retained JSON document at <prefix>/<device_id>/state.
type State struct {
	DeviceID        string   `json:"device_id"`
	Name            string   `json:"name"`
	Switch          string   `json:"switch,omitempty"`
	Mode            string   `json:"mode,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TemperatureUnit string   `json:"temperature_unit,omitempty"`
	Humidity        *float64 `json:"humidity,omitempty"`
	CoolingSetpoint *float64 `json:"cooling_setpoint,omitempty"`
	UpdatedAt       string   `json:"updated_at"`
}

type Mirror struct {
	client   mqtt.Client
	ctl      Controller
	units    map[string]samsungac.Unit
	prefix   string
	interval time.Duration
	timeout  time.Duration

	// commands tracks command handlers still talking to the device.
	commands sync.WaitGroup
}

// New connects to the broker. The connection retries in the background if the broker is down.
func New(cfg *config.MQTTConfig, ctl Controller, units []samsungac.Unit) (*Mirror, error) {
	if cfg == nil || cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}

	m := &Mirror{
		ctl:      ctl,
		units:    make(map[string]samsungac.Unit, len(units)),
		prefix:   strings.Trim(cfg.TopicPrefix, "/"),
		interval: cfg.PublishInterval.Duration(),
		timeout:  10 * time.Second,
	}
	for _, unit := range units {
		m.units[unit.Device.ID] = unit
	}
	if m.prefix == "" {
		m.prefix = config.DefaultMQTTPrefix
	}
	if m.interval <= 0 {
		m.interval = config.DefaultPublish
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID("acbridge-" + uuid.NewString())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.PasswordFile != "" {
		data, err := os.ReadFile(cfg.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("read mqtt password: %w", err)
		}
		opts.SetPassword(strings.TrimSpace(string(data)))
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	// Handlers publish state and wait on the token; that must not hold up the router.
	opts.SetOrderMatters(false)
	opts.OnConnect = func(c mqtt.Client) {
		topic := m.prefix + "/+/set/+"
		if token := c.Subscribe(topic, 1, m.handle); token.Wait() && token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("mqtt subscribe failed")
			return
		}
		log.Info().Str("broker", cfg.Broker).Str("topic", topic).Msg("mqtt connected")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	}

	m.client = mqtt.NewClient(opts)
	if token := m.client.Connect(); token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return m, nil
}

// Run publishes every unit's state on each interval until ctx is done.
func (m *Mirror) Run(ctx context.Context) {
	defer m.client.Disconnect(250)
	defer m.commands.Wait()

	m.publishAll(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.publishAll(ctx)
		}
	}
}

func (m *Mirror) publishAll(ctx context.Context) {
	for id := range m.units {
		m.publishState(ctx, id)
	}
}

func (m *Mirror) publishState(ctx context.Context, deviceID string) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	status, err := m.ctl.Status(ctx, deviceID)
	if err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Msg("mqtt: status failed")
		return
	}
	payload, err := statePayload(m.units[deviceID], status, time.Now())
	if err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Msg("mqtt: encode state failed")
		return
	}
	topic := StateTopic(m.prefix, deviceID)
	if token := m.client.Publish(topic, 1, true, payload); token.Wait() && token.Error() != nil {
		log.Warn().Err(token.Error()).Str("topic", topic).Msg("mqtt publish failed")
	}
}

// handle validates the topic and hands the device calls to a goroutine, so the
// paho callback returns before any SmartThings request or publish wait.
func (m *Mirror) handle(_ mqtt.Client, msg mqtt.Message) {
	deviceID, field, ok := ParseCommandTopic(m.prefix, msg.Topic())
	if !ok {
		return
	}
	if _, known := m.units[deviceID]; !known {
		log.Warn().Str("device_id", deviceID).Msg("mqtt: command for unknown device")
		return
	}

	payload := string(msg.Payload())
	m.commands.Add(1)
	go func() {
		defer m.commands.Done()
		m.execute(deviceID, field, payload)
	}()
}

func (m *Mirror) execute(deviceID, field, payload string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if err := ApplyCommand(ctx, m.ctl, deviceID, field, payload); err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Str("field", field).Msg("mqtt: command failed")
		return
	}
	log.Info().Str("device_id", deviceID).Str("field", field).Msg("mqtt: command applied")
	m.publishState(context.Background(), deviceID)
}

func StateTopic(prefix, deviceID string) string {
	return prefix + "/" + deviceID + "/state"
}

// ParseCommandTopic splits <prefix>/<device_id>/set/<field>.
func ParseCommandTopic(prefix, topic string) (deviceID, field string, ok bool) {
	rest, found := strings.CutPrefix(topic, prefix+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "set" || parts[0] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[0], parts[2], true
}

// ApplyCommand executes one set/<field> payload against the device.
func ApplyCommand(ctx context.Context, ctl Controller, deviceID, field, payload string) error {
	value := strings.TrimSpace(payload)
	switch field {
	case "power":
		switch strings.ToLower(value) {
		case "on", "true", "1":
			return ctl.SetSwitch(ctx, deviceID, samsungac.SwitchOn)
		case "off", "false", "0":
			return ctl.SetSwitch(ctx, deviceID, samsungac.SwitchOff)
		default:
			return fmt.Errorf("invalid power payload %q", value)
		}
	case "mode":
		switch value {
		case samsungac.ModeCool, samsungac.ModeDry, samsungac.ModeWind, samsungac.ModeAIComfort:
			return ctl.SetMode(ctx, deviceID, value)
		default:
			return fmt.Errorf("invalid mode payload %q", value)
		}
	case "setpoint":
		setpoint, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid setpoint payload %q: %w", value, err)
		}
		return ctl.SetCoolingSetpoint(ctx, deviceID, int(math.Round(setpoint)))
	case "fan":
		return ctl.SetFanMode(ctx, deviceID, strings.ToLower(value))
	default:
		return fmt.Errorf("unknown command field %q", field)
	}
}

func statePayload(unit samsungac.Unit, status samsungac.DeviceStatus, now time.Time) ([]byte, error) {
	state := State{
		DeviceID:        unit.Device.ID,
		Name:            unit.Device.DisplayName(),
		Switch:          status.Switch,
		Mode:            status.Mode,
		Temperature:     status.Temperature,
		TemperatureUnit: status.TemperatureUnit,
		Humidity:        status.Humidity,
		CoolingSetpoint: status.CoolingSetpoint,
		UpdatedAt:       now.UTC().Format(time.RFC3339),
	}
	return json.Marshal(state)
}
