package samsungac

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const testToken = "test-token"

// fakeSmartThings serves a single air conditioner and records posted commands.
type fakeSmartThings struct {
	t *testing.T

	mu       sync.Mutex
	device   Device
	switchOn string
	mode     string
	temp     float64
	unit     string
	humidity float64
	setpoint float64
	commands [][]Command
	failCaps map[string]int
}

func newFakeSmartThings(t *testing.T) (*fakeSmartThings, *httptest.Server) {
	t.Helper()
	fake := &fakeSmartThings{
		t: t,
		device: Device{
			ID:               "ac-1",
			Name:             "Samsung Floor A/C",
			Label:            "Living Room AC",
			ManufacturerName: "Samsung Electronics",
			DeviceTypeName:   "Samsung OCF Air Conditioner",
		},
		switchOn: SwitchOn,
		mode:     ModeCool,
		temp:     25,
		unit:     "C",
		humidity: 41,
		setpoint: 22,
		failCaps: map[string]int{},
	}
	server := httptest.NewServer(http.HandlerFunc(fake.serveHTTP))
	t.Cleanup(server.Close)
	return fake, server
}

func (f *fakeSmartThings) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+testToken {
		writeJSON(w, http.StatusUnauthorized, `{"requestId":"req-401","error":{"code":"UnauthorizedError","message":"token rejected"}}`)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case path == "/devices" && r.Method == http.MethodGet:
		other := `{"deviceId":"tv-1","name":"Samsung TV","label":"TV"}`
		self, _ := json.Marshal(f.device)
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"items":[%s,%s]}`, self, other))
	case path == "/devices/"+f.device.ID && r.Method == http.MethodGet:
		self, _ := json.Marshal(f.device)
		writeJSON(w, http.StatusOK, string(self))
	case path == "/devices/"+f.device.ID+"/status":
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"components":{"main":{
			"switch":{"switch":{"value":%q}},
			"airConditionerMode":{"airConditionerMode":{"value":%q}},
			"temperatureMeasurement":{"temperature":{"value":%v,"unit":%q}},
			"relativeHumidityMeasurement":{"humidity":{"value":%v,"unit":"%%"}},
			"thermostatCoolingSetpoint":{"coolingSetpoint":{"value":%v,"unit":%q}}}}}`,
			f.switchOn, f.mode, f.temp, f.unit, f.humidity, f.setpoint, f.unit))
	case strings.HasPrefix(path, "/devices/"+f.device.ID+"/components/main/capabilities/"):
		capability := strings.TrimSuffix(strings.TrimPrefix(path, "/devices/"+f.device.ID+"/components/main/capabilities/"), "/status")
		if code, ok := f.failCaps[capability]; ok {
			writeJSON(w, code, `{"error":{"code":"Failure","message":"capability failed"}}`)
			return
		}
		f.capabilityStatus(w, capability)
	case path == "/devices/"+f.device.ID+"/commands" && r.Method == http.MethodPost:
		if r.Header.Get("Content-Type") != "application/json" {
			f.t.Errorf("expected JSON content type, got %q", r.Header.Get("Content-Type"))
		}
		var body struct {
			Commands []Command `json:"commands"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("decode commands: %v", err)
		}
		f.commands = append(f.commands, body.Commands)
		f.apply(body.Commands)
		writeJSON(w, http.StatusOK, `{"results":[{"status":"ACCEPTED"}]}`)
	default:
		writeJSON(w, http.StatusNotFound, `{"requestId":"req-404","error":{"code":"NotFoundError","message":"not found"}}`)
	}
}

func (f *fakeSmartThings) capabilityStatus(w http.ResponseWriter, capability string) {
	switch capability {
	case "switch":
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"switch":{"value":%q}}`, f.switchOn))
	case "airConditionerMode":
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"airConditionerMode":{"value":%q},"supportedAcModes":{"value":["cool","dry","wind","aIComfort"]}}`, f.mode))
	case "temperatureMeasurement":
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"temperature":{"value":%v,"unit":%q}}`, f.temp, f.unit))
	case "relativeHumidityMeasurement":
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"humidity":{"value":%v,"unit":"%%"}}`, f.humidity))
	case "thermostatCoolingSetpoint":
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"coolingSetpoint":{"value":%v,"unit":%q}}`, f.setpoint, f.unit))
	default:
		writeJSON(w, http.StatusNotFound, `{"error":{"code":"NotFoundError","message":"unknown capability"}}`)
	}
}

func (f *fakeSmartThings) apply(commands []Command) {
	for _, cmd := range commands {
		switch cmd.Capability + "." + cmd.Command {
		case "switch.on":
			f.switchOn = SwitchOn
		case "switch.off":
			f.switchOn = SwitchOff
		case "airConditionerMode.setAirConditionerMode":
			f.mode, _ = cmd.Arguments[0].(string)
		case "thermostatCoolingSetpoint.setCoolingSetpoint":
			f.setpoint, _ = cmd.Arguments[0].(float64)
		}
	}
}

func (f *fakeSmartThings) recorded() [][]Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]Command, len(f.commands))
	copy(out, f.commands)
	return out
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(Config{BaseURL: server.URL, DeviceName: "Samsung Floor A/C"}, StaticToken(testToken), server.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}
