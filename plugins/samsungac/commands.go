package samsungac

// Command builders for the capabilities the bridge drives.

func switchCommand(status string) Command {
	return Command{Capability: "switch", Command: status}
}

func coolingSetpointCommand(temperature int) Command {
	return Command{
		Capability: "thermostatCoolingSetpoint",
		Command:    "setCoolingSetpoint",
		Arguments:  []any{temperature},
	}
}

func modeCommand(mode string) Command {
	return Command{
		Capability: "airConditionerMode",
		Command:    "setAirConditionerMode",
		Arguments:  []any{mode},
	}
}

// fanModeCommand drives the vendor execute endpoint; solo and dual select the blower layout.
func fanModeCommand(fanMode string) Command {
	return Command{
		Capability: "execute",
		Command:    "execute",
		Arguments: []any{
			"mode/vs/0",
			map[string]any{
				"x.com.samsung.da.options": []string{fanMode},
			},
		},
	}
}

func aiComfortFanCommand(fanMode string) Command {
	return Command{
		Capability: "execute",
		Command:    "execute",
		Arguments: []any{
			"mode/vs/0",
			map[string]any{
				"x.com.samsung.da.modes":   []string{"AIComfort"},
				"x.com.samsung.da.options": []string{fanMode, "ArtificialWorking_On", "ComfortAICooling_On", "AiTempChanged_On"},
			},
		},
	}
}
