package homekit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/brutella/hap/accessory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshp123/acbridge/internal/config"
	"github.com/joshp123/acbridge/plugins/samsungac"
)

var errOffline = errors.New("offline")

// fakeAPI records calls in order and can be switched to fail every request.
type fakeAPI struct {
	mu       sync.Mutex
	fail     bool
	sw       string
	mode     string
	temp     float64
	humidity float64
	setpoint float64
	calls    []string
}

func (f *fakeAPI) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.fail {
		return errOffline
	}
	return nil
}

func (f *fakeAPI) Switch(_ context.Context, _ string) (string, error) {
	if err := f.record("switch"); err != nil {
		return "", err
	}
	return f.sw, nil
}

func (f *fakeAPI) SetSwitch(_ context.Context, _ string, status string) error {
	if err := f.record("set switch " + status); err != nil {
		return err
	}
	f.sw = status
	return nil
}

func (f *fakeAPI) Mode(_ context.Context, _ string) (string, error) {
	if err := f.record("mode"); err != nil {
		return "", err
	}
	return f.mode, nil
}

func (f *fakeAPI) SetMode(_ context.Context, _ string, mode string) error {
	if err := f.record("set mode " + mode); err != nil {
		return err
	}
	f.mode = mode
	return nil
}

func (f *fakeAPI) Temperature(_ context.Context, _ string) (float64, error) {
	if err := f.record("temperature"); err != nil {
		return 0, err
	}
	return f.temp, nil
}

func (f *fakeAPI) Humidity(_ context.Context, _ string) (float64, error) {
	if err := f.record("humidity"); err != nil {
		return 0, err
	}
	return f.humidity, nil
}

func (f *fakeAPI) CoolingSetpoint(_ context.Context, _ string) (float64, error) {
	if err := f.record("setpoint"); err != nil {
		return 0, err
	}
	return f.setpoint, nil
}

func (f *fakeAPI) SetCoolingSetpoint(_ context.Context, _ string, temperature int) error {
	if err := f.record(fmt.Sprintf("set setpoint %d", temperature)); err != nil {
		return err
	}
	f.setpoint = float64(temperature)
	return nil
}

func (f *fakeAPI) reset() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := f.calls
	f.calls = nil
	return calls
}

func testUnit(variant, unit string) samsungac.Unit {
	return samsungac.Unit{
		Device: samsungac.Device{
			ID:               "ac-1",
			Name:             "Samsung Floor A/C",
			Label:            "Living Room AC",
			ManufacturerName: "Samsung Electronics",
			DeviceTypeName:   "Samsung OCF Air Conditioner",
		},
		Variant:         variant,
		TemperatureUnit: unit,
	}
}

func TestHeaterCoolerTables(t *testing.T) {
	assert.Equal(t, CurrentHCCooling, CurrentHeaterCoolerState("aIComfort"))
	for _, mode := range []string{"cool", "dry", "wind"} {
		assert.Equal(t, CurrentHCInactive, CurrentHeaterCoolerState(mode), mode)
	}
	assert.Equal(t, CurrentHCIdle, CurrentHeaterCoolerState("heat"))
	assert.Equal(t, CurrentHCIdle, CurrentHeaterCoolerState(""))

	assert.Equal(t, TargetHCCool, TargetHeaterCoolerState("cool"))
	assert.Equal(t, TargetHCCool, TargetHeaterCoolerState("dry"))
	assert.Equal(t, TargetHCAuto, TargetHeaterCoolerState("aIComfort"))
	assert.Equal(t, TargetHCAuto, TargetHeaterCoolerState("wind"))

	assert.Equal(t, "aIComfort", ModeForTarget(TargetHCAuto))
	assert.Equal(t, "cool", ModeForTarget(TargetHCCool))
	assert.Equal(t, "aIComfort", ModeForTarget(TargetHCHeat))

	assert.Equal(t, Active, ActiveState("on", CurrentHCCooling))
	assert.Equal(t, Active, ActiveState("on", CurrentHCIdle))
	assert.Equal(t, Inactive, ActiveState("on", CurrentHCInactive))
	assert.Equal(t, Inactive, ActiveState("off", CurrentHCCooling))
}

func TestThermostatTables(t *testing.T) {
	assert.Equal(t, HeatingCoolingOff, ThermostatCurrentState("off", "cool"))
	for _, mode := range []string{"cool", "dry", "aIComfort"} {
		assert.Equal(t, HeatingCoolingCool, ThermostatCurrentState("on", mode), mode)
	}
	assert.Equal(t, HeatingCoolingOff, ThermostatCurrentState("on", "wind"))
	assert.Equal(t, HeatingCoolingOff, ThermostatCurrentState("on", "mystery"))

	assert.Equal(t, HeatingCoolingOff, ThermostatTargetState("off", "aIComfort"))
	assert.Equal(t, HeatingCoolingCool, ThermostatTargetState("on", "cool"))
	assert.Equal(t, HeatingCoolingCool, ThermostatTargetState("on", "dry"))
	assert.Equal(t, HeatingCoolingAuto, ThermostatTargetState("on", "aIComfort"))
	assert.Equal(t, HeatingCoolingAuto, ThermostatTargetState("on", "wind"))

	assert.Equal(t, "", ThermostatCommand(HeatingCoolingOff))
	assert.Equal(t, "cool", ThermostatCommand(HeatingCoolingCool))
	assert.Equal(t, "aIComfort", ThermostatCommand(HeatingCoolingAuto))
	assert.Equal(t, "aIComfort", ThermostatCommand(HeatingCoolingHeat))
}

func TestHeaterCoolerActive(t *testing.T) {
	api := &fakeAPI{sw: "on", mode: "aIComfort"}
	hc := NewHeaterCooler(api, testUnit(config.VariantHeaterCooler, "C"), time.Second)
	ctx := context.Background()

	assert.Equal(t, Active, hc.ActiveGet(ctx))
	assert.Equal(t, []string{"switch", "mode"}, api.reset())
	assert.Equal(t, CurrentHCCooling, hc.Service.CurrentHeaterCoolerState.Value())

	api.mode = "cool"
	assert.Equal(t, Inactive, hc.ActiveGet(ctx), "cool mode derives an inactive current state")
	api.reset()

	api.sw = "off"
	assert.Equal(t, Inactive, hc.ActiveGet(ctx))
	assert.Equal(t, []string{"switch"}, api.reset(), "mode is not read when switched off")

	hc.ActiveSet(ctx, Active)
	hc.ActiveSet(ctx, Inactive)
	hc.ActiveSet(ctx, 7)
	assert.Equal(t, []string{"set switch on", "set switch off", "set switch off"}, api.reset())
}

func TestHeaterCoolerTargetSetChain(t *testing.T) {
	api := &fakeAPI{sw: "off", mode: "wind"}
	hc := NewHeaterCooler(api, testUnit(config.VariantHeaterCooler, "C"), time.Second)
	ctx := context.Background()

	hc.TargetStateSet(ctx, TargetHCCool)
	assert.Equal(t, []string{"set mode cool", "set switch on"}, api.reset())

	hc.TargetStateSet(ctx, TargetHCAuto)
	assert.Equal(t, []string{"set mode aIComfort", "set switch on"}, api.reset())
	assert.Equal(t, TargetHCAuto, hc.TargetStateGet(ctx))

	api.fail = true
	hc.TargetStateSet(ctx, TargetHCCool)
	assert.Equal(t, []string{"set mode cool"}, api.reset(), "switch is not touched after a failed mode write")
}

func TestHeaterCoolerFallbacks(t *testing.T) {
	api := &fakeAPI{fail: true}
	hc := NewHeaterCooler(api, testUnit(config.VariantHeaterCooler, "C"), time.Second)
	ctx := context.Background()

	assert.Equal(t, DefaultTemperature, hc.CurrentTemperatureGet(ctx))
	assert.Equal(t, DefaultHumidity, hc.HumidityGet(ctx))
	assert.Equal(t, DefaultSetpoint, hc.CoolingThresholdGet(ctx))
	assert.Equal(t, Inactive, hc.ActiveGet(ctx))
	assert.Equal(t, TargetHCAuto, hc.TargetStateGet(ctx))

	api.fail = false
	api.temp, api.humidity, api.setpoint = 23.5, 38, 21
	assert.Equal(t, 23.5, hc.CurrentTemperatureGet(ctx))
	assert.Equal(t, 38.0, hc.HumidityGet(ctx))
	assert.Equal(t, 21.0, hc.CoolingThresholdGet(ctx))

	api.fail = true
	assert.Equal(t, 23.5, hc.CurrentTemperatureGet(ctx), "last known value survives a failure")
	assert.Equal(t, 38.0, hc.HumidityGet(ctx))
	assert.Equal(t, 21.0, hc.CoolingThresholdGet(ctx))
}

func TestHeaterCoolerFahrenheit(t *testing.T) {
	api := &fakeAPI{temp: 77, setpoint: 75}
	hc := NewHeaterCooler(api, testUnit(config.VariantHeaterCooler, "F"), time.Second)
	ctx := context.Background()

	assert.Equal(t, 25.0, hc.CurrentTemperatureGet(ctx))
	assert.Equal(t, 24.0, hc.CoolingThresholdGet(ctx))
	api.reset()

	hc.CoolingThresholdSet(ctx, 22)
	assert.Equal(t, []string{"set setpoint 72"}, api.reset())
}

func TestHeaterCoolerCelsiusSetpointRounds(t *testing.T) {
	api := &fakeAPI{}
	hc := NewHeaterCooler(api, testUnit(config.VariantHeaterCooler, "C"), time.Second)

	hc.CoolingThresholdSet(context.Background(), 22.5)
	assert.Equal(t, []string{"set setpoint 23"}, api.reset())
}

func TestThermostatStates(t *testing.T) {
	api := &fakeAPI{sw: "on", mode: "dry"}
	th := NewThermostat(api, testUnit(config.VariantThermostat, "C"), time.Second)
	ctx := context.Background()

	assert.Equal(t, HeatingCoolingCool, th.CurrentStateGet(ctx))
	assert.Equal(t, HeatingCoolingCool, th.TargetStateGet(ctx))

	api.mode = "aIComfort"
	assert.Equal(t, HeatingCoolingAuto, th.TargetStateGet(ctx))

	api.sw = "off"
	api.reset()
	assert.Equal(t, HeatingCoolingOff, th.CurrentStateGet(ctx))
	assert.Equal(t, []string{"switch"}, api.reset())
}

func TestThermostatTargetSetChain(t *testing.T) {
	api := &fakeAPI{sw: "on", mode: "cool"}
	th := NewThermostat(api, testUnit(config.VariantThermostat, "C"), time.Second)
	ctx := context.Background()

	th.TargetStateSet(ctx, HeatingCoolingOff)
	assert.Equal(t, []string{"set switch off"}, api.reset())

	th.TargetStateSet(ctx, HeatingCoolingCool)
	assert.Equal(t, []string{"set mode cool", "set switch on"}, api.reset())

	th.TargetStateSet(ctx, HeatingCoolingAuto)
	assert.Equal(t, []string{"set mode aIComfort", "set switch on"}, api.reset())

	th.TargetTemperatureSet(ctx, 19)
	assert.Equal(t, []string{"set setpoint 19"}, api.reset())
}

func TestThermostatFallbacks(t *testing.T) {
	api := &fakeAPI{fail: true}
	th := NewThermostat(api, testUnit(config.VariantThermostat, "C"), time.Second)
	ctx := context.Background()

	assert.Equal(t, DefaultTemperature, th.CurrentTemperatureGet(ctx))
	assert.Equal(t, DefaultSetpoint, th.TargetTemperatureGet(ctx))
	assert.Equal(t, DefaultHumidity, th.HumidityGet(ctx))
	assert.Equal(t, HeatingCoolingOff, th.CurrentStateGet(ctx))
}

func TestAccessoryVariant(t *testing.T) {
	api := &fakeAPI{}

	hc := Accessory(api, testUnit(config.VariantHeaterCooler, "C"), time.Second)
	require.Len(t, hc.Ss, 3, "information, heater-cooler and humidity services")
	assert.Equal(t, "Living Room AC", hc.Info.Name.Value())
	assert.Equal(t, "ac-1", hc.Info.SerialNumber.Value())

	th := Accessory(api, testUnit(config.VariantThermostat, "C"), time.Second)
	require.Len(t, th.Ss, 3)
}

func hapRequest(method string) *http.Request {
	return httptest.NewRequest(method, "/characteristics", nil)
}

func TestHeaterCoolerWritesMatchingDefaultsAfterRead(t *testing.T) {
	api := &fakeAPI{sw: "on", mode: "aIComfort", setpoint: 24}
	hc := NewHeaterCooler(api, testUnit(config.VariantHeaterCooler, "C"), time.Second)
	get, put := hapRequest(http.MethodGet), hapRequest(http.MethodPut)

	v, code := hc.Service.Active.ValueRequest(get)
	require.Equal(t, 0, code)
	assert.Equal(t, Active, v)
	assert.Equal(t, Active, hc.Service.Active.Value())
	api.reset()

	_, code = hc.Service.Active.SetValueRequest(Inactive, put)
	require.Equal(t, 0, code)
	assert.Equal(t, []string{"set switch off"}, api.reset(), "turning off after a read reaches the device")
	assert.Equal(t, Inactive, hc.Service.Active.Value())

	api.sw, api.mode = "on", "cool"
	v, _ = hc.Service.TargetHeaterCoolerState.ValueRequest(get)
	assert.Equal(t, TargetHCCool, v)
	api.reset()

	_, code = hc.Service.TargetHeaterCoolerState.SetValueRequest(TargetHCAuto, put)
	require.Equal(t, 0, code)
	assert.Equal(t, []string{"set mode aIComfort", "set switch on"}, api.reset())

	v, _ = hc.Threshold.ValueRequest(get)
	assert.Equal(t, 24.0, v)
	api.reset()

	_, code = hc.Threshold.SetValueRequest(27.0, put)
	require.Equal(t, 0, code)
	assert.Equal(t, []string{"set setpoint 27"}, api.reset(), "27 is the default but no longer the stored value")
}

func TestHeaterCoolerReadsPushState(t *testing.T) {
	api := &fakeAPI{sw: "on", mode: "cool", temp: 22, humidity: 41}
	hc := NewHeaterCooler(api, testUnit(config.VariantHeaterCooler, "C"), time.Second)
	get := hapRequest(http.MethodGet)

	hc.Service.CurrentHeaterCoolerState.ValueRequest(get)
	hc.Service.TargetHeaterCoolerState.ValueRequest(get)
	hc.Service.CurrentTemperature.ValueRequest(get)
	hc.Humidity.CurrentRelativeHumidity.ValueRequest(get)

	assert.Equal(t, CurrentHCInactive, hc.Service.CurrentHeaterCoolerState.Value())
	assert.Equal(t, TargetHCCool, hc.Service.TargetHeaterCoolerState.Value())
	assert.Equal(t, 22.0, hc.Service.CurrentTemperature.Value())
	assert.Equal(t, 41.0, hc.Humidity.CurrentRelativeHumidity.Value())
}

func TestHeaterCoolerWriteFailureStillSucceedsTowardHomeKit(t *testing.T) {
	api := &fakeAPI{fail: true}
	hc := NewHeaterCooler(api, testUnit(config.VariantHeaterCooler, "C"), time.Second)

	_, code := hc.Service.Active.SetValueRequest(Active, hapRequest(http.MethodPut))
	assert.Equal(t, 0, code)
	assert.Equal(t, []string{"set switch on"}, api.reset())
}

func TestHeaterCoolerWriteUsesRequestContext(t *testing.T) {
	api := &fakeAPI{}
	hc := NewHeaterCooler(api, testUnit(config.VariantHeaterCooler, "C"), time.Second)

	var deadlines []time.Time
	inner := hc.api
	hc.api = deadlineAPI{API: inner, seen: &deadlines}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := hapRequest(http.MethodPut).WithContext(context.WithValue(ctx, ctxKey{}, "hap"))

	_, code := hc.Service.TargetHeaterCoolerState.SetValueRequest(TargetHCCool, req)
	require.Equal(t, 0, code)
	require.Len(t, deadlines, 2, "mode write and switch write")
	assert.False(t, deadlines[0].IsZero(), "writes run under the request context")
	assert.Equal(t, deadlines[0], deadlines[1], "one deadline covers the whole chain")
	assert.Equal(t, []string{"set mode cool", "set switch on"}, api.reset())
}

type ctxKey struct{}

// deadlineAPI records the deadline of every write context.
type deadlineAPI struct {
	API
	seen *[]time.Time
}

func (d deadlineAPI) note(ctx context.Context) {
	deadline, _ := ctx.Deadline()
	if ctx.Value(ctxKey{}) == nil {
		deadline = time.Time{}
	}
	*d.seen = append(*d.seen, deadline)
}

func (d deadlineAPI) SetMode(ctx context.Context, id, mode string) error {
	d.note(ctx)
	return d.API.SetMode(ctx, id, mode)
}

func (d deadlineAPI) SetSwitch(ctx context.Context, id, status string) error {
	d.note(ctx)
	return d.API.SetSwitch(ctx, id, status)
}

func TestThermostatOffAfterRead(t *testing.T) {
	api := &fakeAPI{sw: "on", mode: "cool", setpoint: 24}
	th := NewThermostat(api, testUnit(config.VariantThermostat, "C"), time.Second)
	get, put := hapRequest(http.MethodGet), hapRequest(http.MethodPut)

	v, _ := th.Service.TargetHeatingCoolingState.ValueRequest(get)
	assert.Equal(t, HeatingCoolingCool, v)
	assert.Equal(t, HeatingCoolingCool, th.Service.TargetHeatingCoolingState.Value())
	api.reset()

	_, code := th.Service.TargetHeatingCoolingState.SetValueRequest(HeatingCoolingOff, put)
	require.Equal(t, 0, code)
	assert.Equal(t, []string{"set switch off"}, api.reset())

	th.Service.TargetTemperature.ValueRequest(get)
	api.reset()
	_, code = th.Service.TargetTemperature.SetValueRequest(27.0, put)
	require.Equal(t, 0, code)
	assert.Equal(t, []string{"set setpoint 27"}, api.reset())
}

func TestServerAccessoriesSortedByDeviceID(t *testing.T) {
	second := testUnit(config.VariantThermostat, "C")
	second.Device.ID = "ac-2"
	first := testUnit(config.VariantHeaterCooler, "C")

	srv, err := NewServer(config.HomeKitConfig{
		StoreDir:   t.TempDir(),
		Pin:        "00102003",
		BridgeName: "AC Bridge",
	}, &fakeAPI{}, []samsungac.Unit{second, first}, time.Second)
	require.NoError(t, err)

	accessories := srv.Accessories()
	require.Len(t, accessories, 2)
	assert.Equal(t, "ac-1", accessories[0].Info.SerialNumber.Value())
	assert.Equal(t, "ac-2", accessories[1].Info.SerialNumber.Value())
	assert.Equal(t, accessory.TypeThermostat, accessories[1].Type)
}
