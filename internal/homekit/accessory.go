package homekit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/joshp123/acbridge/plugins/samsungac"
)

// Values reported before the first successful read.
const (
	DefaultTemperature = 27.0
	DefaultHumidity    = 50.0
	DefaultSetpoint    = 27.0

	MinSetpoint  = 16.0
	MaxSetpoint  = 30.0
	SetpointStep = 1.0

	hapStatusSuccess = 0
)

// API is the subset of the SmartThings client the accessories drive.
type API interface {
	Switch(ctx context.Context, deviceID string) (string, error)
	SetSwitch(ctx context.Context, deviceID, status string) error
	Mode(ctx context.Context, deviceID string) (string, error)
	SetMode(ctx context.Context, deviceID, mode string) error
	Temperature(ctx context.Context, deviceID string) (float64, error)
	Humidity(ctx context.Context, deviceID string) (float64, error)
	CoolingSetpoint(ctx context.Context, deviceID string) (float64, error)
	SetCoolingSetpoint(ctx context.Context, deviceID string, temperature int) error
}

var _ API = (*samsungac.Client)(nil)

// device holds the per-unit call plumbing and the last known values.
type device struct {
	api     API
	id      string
	unit    string
	timeout time.Duration
	logger  zerolog.Logger

	mu          sync.Mutex
	temperature float64
	humidity    float64
	setpoint    float64
	switchValue string
	mode        string
}

func newDevice(api API, unit samsungac.Unit, timeout time.Duration) *device {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &device{
		api:         api,
		id:          unit.Device.ID,
		unit:        unit.TemperatureUnit,
		timeout:     timeout,
		logger:      log.With().Str("device_id", unit.Device.ID).Logger(),
		temperature: DefaultTemperature,
		humidity:    DefaultHumidity,
		setpoint:    DefaultSetpoint,
	}
}

func accessoryInfo(unit samsungac.Unit) accessory.Info {
	manufacturer := unit.Device.ManufacturerName
	if manufacturer == "" {
		manufacturer = "Samsung"
	}
	model := unit.Device.DeviceTypeName
	if model == "" {
		model = unit.Device.Name
	}
	return accessory.Info{
		Name:         unit.Device.DisplayName(),
		SerialNumber: unit.Device.ID,
		Manufacturer: manufacturer,
		Model:        model,
	}
}

func (d *device) callContext(req *http.Request) (context.Context, context.CancelFunc) {
	parent := context.Background()
	if req != nil {
		parent = req.Context()
	}
	return context.WithTimeout(parent, d.timeout)
}

// serveInt answers reads from get and stores the answer, so a later write of the
// device's current value is not discarded by hap as unchanged.
func (d *device) serveInt(c *characteristic.Int, get func(context.Context) int) {
	c.ValueRequestFunc = func(req *http.Request) (interface{}, int) {
		ctx, cancel := d.callContext(req)
		defer cancel()
		v := get(ctx)
		_ = c.SetValue(v)
		return v, hapStatusSuccess
	}
}

func (d *device) serveFloat(c *characteristic.Float, get func(context.Context) float64) {
	c.ValueRequestFunc = func(req *http.Request) (interface{}, int) {
		ctx, cancel := d.callContext(req)
		defer cancel()
		v := get(ctx)
		c.SetValue(v)
		return v, hapStatusSuccess
	}
}

// acceptInt runs set for a controller write. The whole call chain shares the
// request context and a single deadline. Failures are logged by set and never
// reported to the controller.
func (d *device) acceptInt(c *characteristic.Int, set func(context.Context, int)) {
	c.SetValueRequestFunc = func(v interface{}, req *http.Request) (interface{}, int) {
		value, ok := v.(int)
		if !ok {
			return nil, hapStatusSuccess
		}
		ctx, cancel := d.callContext(req)
		defer cancel()
		set(ctx, value)
		return nil, hapStatusSuccess
	}
}

func (d *device) acceptFloat(c *characteristic.Float, set func(context.Context, float64)) {
	c.SetValueRequestFunc = func(v interface{}, req *http.Request) (interface{}, int) {
		value, ok := v.(float64)
		if !ok {
			return nil, hapStatusSuccess
		}
		ctx, cancel := d.callContext(req)
		defer cancel()
		set(ctx, value)
		return nil, hapStatusSuccess
	}
}

func (d *device) warn(err error, op string) {
	d.logger.Warn().Err(err).Str("op", op).Msg("smartthings call failed")
}

// readSwitch returns the last known value ("" before the first read) on failure.
func (d *device) readSwitch(ctx context.Context) (string, bool) {
	value, err := d.api.Switch(ctx, d.id)
	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.warn(err, "get switch")
		return d.switchValue, false
	}
	d.switchValue = value
	return value, true
}

func (d *device) readMode(ctx context.Context) (string, bool) {
	value, err := d.api.Mode(ctx, d.id)
	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.warn(err, "get mode")
		return d.mode, false
	}
	d.mode = value
	return value, true
}

func (d *device) readTemperature(ctx context.Context) float64 {
	value, err := d.api.Temperature(ctx, d.id)
	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.warn(err, "get temperature")
		return d.temperature
	}
	d.temperature = samsungac.ToCelsius(value, d.unit)
	return d.temperature
}

func (d *device) readHumidity(ctx context.Context) float64 {
	value, err := d.api.Humidity(ctx, d.id)
	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.warn(err, "get humidity")
		return d.humidity
	}
	d.humidity = value
	return value
}

func (d *device) readSetpoint(ctx context.Context) float64 {
	value, err := d.api.CoolingSetpoint(ctx, d.id)
	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.warn(err, "get cooling setpoint")
		return d.setpoint
	}
	d.setpoint = samsungac.ToCelsius(value, d.unit)
	return d.setpoint
}

func (d *device) writeSetpoint(ctx context.Context, celsius float64) error {
	if err := d.api.SetCoolingSetpoint(ctx, d.id, samsungac.FromCelsius(celsius, d.unit)); err != nil {
		d.warn(err, "set cooling setpoint")
		return err
	}
	d.mu.Lock()
	d.setpoint = celsius
	d.mu.Unlock()
	return nil
}

func (d *device) writeSwitch(ctx context.Context, value string) error {
	if err := d.api.SetSwitch(ctx, d.id, value); err != nil {
		d.warn(err, "set switch")
		return err
	}
	d.mu.Lock()
	d.switchValue = value
	d.mu.Unlock()
	return nil
}

func (d *device) writeMode(ctx context.Context, mode string) error {
	if err := d.api.SetMode(ctx, d.id, mode); err != nil {
		d.warn(err, "set mode")
		return err
	}
	d.mu.Lock()
	d.mode = mode
	d.mu.Unlock()
	return nil
}
