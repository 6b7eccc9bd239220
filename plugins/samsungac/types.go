package samsungac

import "encoding/json"

// Switch values reported and accepted by the switch capability.
const (
	SwitchOn  = "on"
	SwitchOff = "off"
)

// Air conditioner modes used by this bridge.
const (
	ModeCool      = "cool"
	ModeDry       = "dry"
	ModeWind      = "wind"
	ModeAIComfort = "aIComfort"
)

// Fan modes accepted by the execute capability.
const (
	FanSolo = "solo"
	FanDual = "dual"
)

// Device is a SmartThings device from the /devices listing.
type Device struct {
	ID               string `json:"deviceId"`
	Name             string `json:"name"`
	Label            string `json:"label"`
	ManufacturerName string `json:"manufacturerName"`
	DeviceTypeName   string `json:"deviceTypeName"`
	LocationID       string `json:"locationId"`
}

// DisplayName prefers the user-assigned label.
func (d Device) DisplayName() string {
	if d.Label != "" {
		return d.Label
	}
	return d.Name
}

// DeviceStatus is the main-component snapshot from /devices/{id}/status.
type DeviceStatus struct {
	Switch          string
	Mode            string
	Temperature     *float64
	TemperatureUnit string
	Humidity        *float64
	CoolingSetpoint *float64
}

// Command is one entry of a /devices/{id}/commands request.
type Command struct {
	Component  string `json:"component,omitempty"`
	Capability string `json:"capability"`
	Command    string `json:"command"`
	Arguments  []any  `json:"arguments,omitempty"`
}

type attribute struct {
	Value     json.RawMessage `json:"value"`
	Unit      string          `json:"unit,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// capabilityStatus is the body of .../capabilities/{capability}/status.
type capabilityStatus map[string]attribute

type deviceList struct {
	Items []Device `json:"items"`
}

type deviceStatusBody struct {
	Components map[string]map[string]capabilityStatus `json:"components"`
}

type errorBody struct {
	RequestID string `json:"requestId"`
	Error     struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
