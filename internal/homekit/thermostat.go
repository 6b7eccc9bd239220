package homekit

import (
	"context"
	"time"

	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/service"

	"github.com/joshp123/acbridge/plugins/samsungac"
)

// Thermostat exposes a unit as a HomeKit Thermostat. The target temperature is the cooling setpoint.
type Thermostat struct {
	*device

	A        *accessory.A
	Service  *service.Thermostat
	Humidity *service.HumiditySensor
}

func NewThermostat(api API, unit samsungac.Unit, timeout time.Duration) *Thermostat {
	th := &Thermostat{
		device:   newDevice(api, unit, timeout),
		A:        accessory.New(accessoryInfo(unit), accessory.TypeThermostat),
		Service:  service.NewThermostat(),
		Humidity: service.NewHumiditySensor(),
	}

	th.Service.CurrentHeatingCoolingState.ValidVals = currentThermoValid
	th.Service.TargetHeatingCoolingState.ValidVals = targetThermoValid

	th.Service.TargetTemperature.SetMinValue(MinSetpoint)
	th.Service.TargetTemperature.SetMaxValue(MaxSetpoint)
	th.Service.TargetTemperature.SetStepValue(SetpointStep)
	th.Service.TargetTemperature.SetValue(DefaultSetpoint)
	th.Service.CurrentTemperature.SetValue(DefaultTemperature)
	th.Service.TemperatureDisplayUnits.SetValue(displayCelsius)
	th.Humidity.CurrentRelativeHumidity.SetValue(DefaultHumidity)

	th.A.AddS(th.Service.S)
	th.A.AddS(th.Humidity.S)
	th.bind()
	return th
}

func (th *Thermostat) bind() {
	th.serveInt(th.Service.CurrentHeatingCoolingState.Int, th.CurrentStateGet)

	th.serveInt(th.Service.TargetHeatingCoolingState.Int, th.TargetStateGet)
	th.acceptInt(th.Service.TargetHeatingCoolingState.Int, th.TargetStateSet)

	th.serveFloat(th.Service.CurrentTemperature.Float, th.CurrentTemperatureGet)

	th.serveFloat(th.Service.TargetTemperature.Float, th.TargetTemperatureGet)
	th.acceptFloat(th.Service.TargetTemperature.Float, th.TargetTemperatureSet)

	th.serveFloat(th.Humidity.CurrentRelativeHumidity.Float, th.HumidityGet)
}

// switchAndMode skips the mode call when the unit is off.
func (th *Thermostat) switchAndMode(ctx context.Context) (string, string) {
	sw, _ := th.readSwitch(ctx)
	if sw != samsungac.SwitchOn {
		return sw, ""
	}
	mode, _ := th.readMode(ctx)
	return sw, mode
}

func (th *Thermostat) CurrentStateGet(ctx context.Context) int {
	return ThermostatCurrentState(th.switchAndMode(ctx))
}

func (th *Thermostat) TargetStateGet(ctx context.Context) int {
	return ThermostatTargetState(th.switchAndMode(ctx))
}

// TargetStateSet switches off for OFF; otherwise writes the mode and switches on.
func (th *Thermostat) TargetStateSet(ctx context.Context, value int) {
	mode := ThermostatCommand(value)
	if mode == "" {
		_ = th.writeSwitch(ctx, samsungac.SwitchOff)
		return
	}
	if err := th.writeMode(ctx, mode); err != nil {
		return
	}
	_ = th.writeSwitch(ctx, samsungac.SwitchOn)
}

func (th *Thermostat) CurrentTemperatureGet(ctx context.Context) float64 {
	return th.readTemperature(ctx)
}

func (th *Thermostat) TargetTemperatureGet(ctx context.Context) float64 {
	return th.readSetpoint(ctx)
}

func (th *Thermostat) TargetTemperatureSet(ctx context.Context, celsius float64) {
	_ = th.writeSetpoint(ctx, celsius)
}

func (th *Thermostat) HumidityGet(ctx context.Context) float64 {
	return th.readHumidity(ctx)
}
