package homekit

import (
	"context"
	"time"

	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"

	"github.com/joshp123/acbridge/plugins/samsungac"
)

// HeaterCooler exposes a unit as a HomeKit Heater-Cooler with a humidity sensor.
type HeaterCooler struct {
	*device

	A         *accessory.A
	Service   *service.HeaterCooler
	Threshold *characteristic.CoolingThresholdTemperature
	Humidity  *service.HumiditySensor
}

func NewHeaterCooler(api API, unit samsungac.Unit, timeout time.Duration) *HeaterCooler {
	hc := &HeaterCooler{
		device:    newDevice(api, unit, timeout),
		A:         accessory.New(accessoryInfo(unit), accessory.TypeAirConditioner),
		Service:   service.NewHeaterCooler(),
		Threshold: characteristic.NewCoolingThresholdTemperature(),
		Humidity:  service.NewHumiditySensor(),
	}

	hc.Service.CurrentHeaterCoolerState.ValidVals = currentHCValid
	hc.Service.TargetHeaterCoolerState.ValidVals = targetHCValid

	hc.Threshold.SetMinValue(MinSetpoint)
	hc.Threshold.SetMaxValue(MaxSetpoint)
	hc.Threshold.SetStepValue(SetpointStep)
	hc.Threshold.SetValue(DefaultSetpoint)
	hc.Service.AddC(hc.Threshold.C)

	hc.Service.CurrentTemperature.SetValue(DefaultTemperature)
	hc.Humidity.CurrentRelativeHumidity.SetValue(DefaultHumidity)

	hc.A.AddS(hc.Service.S)
	hc.A.AddS(hc.Humidity.S)
	hc.bind()
	return hc
}

func (hc *HeaterCooler) bind() {
	hc.serveInt(hc.Service.Active.Int, hc.ActiveGet)
	hc.acceptInt(hc.Service.Active.Int, hc.ActiveSet)

	hc.serveInt(hc.Service.CurrentHeaterCoolerState.Int, hc.CurrentStateGet)

	hc.serveInt(hc.Service.TargetHeaterCoolerState.Int, hc.TargetStateGet)
	hc.acceptInt(hc.Service.TargetHeaterCoolerState.Int, hc.TargetStateSet)

	hc.serveFloat(hc.Service.CurrentTemperature.Float, hc.CurrentTemperatureGet)

	hc.serveFloat(hc.Threshold.Float, hc.CoolingThresholdGet)
	hc.acceptFloat(hc.Threshold.Float, hc.CoolingThresholdSet)

	hc.serveFloat(hc.Humidity.CurrentRelativeHumidity.Float, hc.HumidityGet)
}

// ActiveGet reads the switch and, when on, derives activity from the current state.
func (hc *HeaterCooler) ActiveGet(ctx context.Context) int {
	sw, _ := hc.readSwitch(ctx)
	if sw != samsungac.SwitchOn {
		return Inactive
	}
	return ActiveState(sw, hc.CurrentStateGet(ctx))
}

func (hc *HeaterCooler) ActiveSet(ctx context.Context, value int) {
	status := samsungac.SwitchOff
	if value == Active {
		status = samsungac.SwitchOn
	}
	_ = hc.writeSwitch(ctx, status)
}

// CurrentStateGet maps the device mode and pushes the result to the characteristic.
func (hc *HeaterCooler) CurrentStateGet(ctx context.Context) int {
	mode, _ := hc.readMode(ctx)
	state := CurrentHeaterCoolerState(mode)
	_ = hc.Service.CurrentHeaterCoolerState.SetValue(state)
	return state
}

// TargetStateGet maps the device mode and pushes the result to the characteristic.
func (hc *HeaterCooler) TargetStateGet(ctx context.Context) int {
	mode, _ := hc.readMode(ctx)
	state := TargetHeaterCoolerState(mode)
	_ = hc.Service.TargetHeaterCoolerState.SetValue(state)
	return state
}

// TargetStateSet writes the mapped mode and then switches the unit on.
func (hc *HeaterCooler) TargetStateSet(ctx context.Context, value int) {
	if err := hc.writeMode(ctx, ModeForTarget(value)); err != nil {
		return
	}
	hc.ActiveSet(ctx, Active)
}

func (hc *HeaterCooler) CurrentTemperatureGet(ctx context.Context) float64 {
	return hc.readTemperature(ctx)
}

func (hc *HeaterCooler) CoolingThresholdGet(ctx context.Context) float64 {
	return hc.readSetpoint(ctx)
}

func (hc *HeaterCooler) CoolingThresholdSet(ctx context.Context, celsius float64) {
	_ = hc.writeSetpoint(ctx, celsius)
}

func (hc *HeaterCooler) HumidityGet(ctx context.Context) float64 {
	return hc.readHumidity(ctx)
}
