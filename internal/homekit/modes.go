package homekit

import "github.com/joshp123/acbridge/plugins/samsungac"

// Active characteristic values.
const (
	Inactive = 0
	Active   = 1
)

// CurrentHeaterCoolerState values.
const (
	CurrentHCInactive = 0
	CurrentHCIdle     = 1
	CurrentHCHeating  = 2
	CurrentHCCooling  = 3
)

// TargetHeaterCoolerState values.
const (
	TargetHCAuto = 0
	TargetHCHeat = 1
	TargetHCCool = 2
)

// Current and target heating/cooling state values of the Thermostat service.
const (
	HeatingCoolingOff  = 0
	HeatingCoolingHeat = 1
	HeatingCoolingCool = 2
	HeatingCoolingAuto = 3
)

const displayCelsius = 0

var (
	currentHCValid     = []int{CurrentHCInactive, CurrentHCIdle, CurrentHCCooling}
	targetHCValid      = []int{TargetHCAuto, TargetHCCool}
	currentThermoValid = []int{HeatingCoolingOff, HeatingCoolingCool}
	targetThermoValid  = []int{HeatingCoolingOff, HeatingCoolingCool, HeatingCoolingAuto}
)

// CurrentHeaterCoolerState maps a device mode. Only AI comfort reports cooling;
// cool, dry and wind report inactive.
func CurrentHeaterCoolerState(mode string) int {
	switch mode {
	case samsungac.ModeAIComfort:
		return CurrentHCCooling
	case samsungac.ModeCool, samsungac.ModeDry, samsungac.ModeWind:
		return CurrentHCInactive
	default:
		return CurrentHCIdle
	}
}

func TargetHeaterCoolerState(mode string) int {
	switch mode {
	case samsungac.ModeCool, samsungac.ModeDry:
		return TargetHCCool
	default:
		return TargetHCAuto
	}
}

// ModeForTarget is the device mode written for a HomeKit target state.
func ModeForTarget(target int) string {
	if target == TargetHCCool {
		return samsungac.ModeCool
	}
	return samsungac.ModeAIComfort
}

// ActiveState is active only when the switch is on and the derived current state is not inactive.
func ActiveState(switchValue string, current int) int {
	if switchValue == samsungac.SwitchOn && current != CurrentHCInactive {
		return Active
	}
	return Inactive
}

func ThermostatCurrentState(switchValue, mode string) int {
	if switchValue != samsungac.SwitchOn {
		return HeatingCoolingOff
	}
	switch mode {
	case samsungac.ModeCool, samsungac.ModeDry, samsungac.ModeAIComfort:
		return HeatingCoolingCool
	default:
		return HeatingCoolingOff
	}
}

func ThermostatTargetState(switchValue, mode string) int {
	if switchValue != samsungac.SwitchOn {
		return HeatingCoolingOff
	}
	switch mode {
	case samsungac.ModeCool, samsungac.ModeDry:
		return HeatingCoolingCool
	default:
		return HeatingCoolingAuto
	}
}

// ThermostatCommand returns the mode to set before switching on. An empty mode means switch off.
func ThermostatCommand(target int) string {
	switch target {
	case HeatingCoolingOff:
		return ""
	case HeatingCoolingCool:
		return samsungac.ModeCool
	default:
		return samsungac.ModeAIComfort
	}
}
