package samsungac

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// TokenSource yields the bearer token for each request.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken is a SmartThings personal access token.
type StaticToken string

func (t StaticToken) AccessToken(context.Context) (string, error) {
	if t == "" {
		return "", ErrEmptyToken
	}
	return string(t), nil
}

type refresher interface {
	TriggerRefresh(ctx context.Context)
}

// Client talks to the SmartThings devices REST API.
type Client struct {
	baseURL    string
	deviceName string
	tokens     TokenSource
	httpClient *http.Client
}

// NewClient builds a client; httpClient is used as given, callers wrap it for rate limiting.
func NewClient(cfg Config, tokens TokenSource, httpClient *http.Client) (*Client, error) {
	if tokens == nil {
		return nil, ErrEmptyToken
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:    baseURL,
		deviceName: cfg.DeviceName,
		tokens:     tokens,
		httpClient: httpClient,
	}, nil
}

// Devices lists the account's devices whose name matches the configured device name.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	var resp deviceList
	if err := c.getJSON(ctx, "/devices", &resp); err != nil {
		return nil, err
	}
	if c.deviceName == "" {
		return resp.Items, nil
	}

	devices := make([]Device, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Name == c.deviceName {
			devices = append(devices, item)
		}
	}
	return devices, nil
}

// Device looks up a single device by ID.
func (c *Client) Device(ctx context.Context, deviceID string) (Device, error) {
	if deviceID == "" {
		return Device{}, ErrEmptyDeviceID
	}
	var device Device
	if err := c.getJSON(ctx, "/devices/"+url.PathEscape(deviceID), &device); err != nil {
		return Device{}, err
	}
	return device, nil
}

func (c *Client) Switch(ctx context.Context, deviceID string) (string, error) {
	return c.stringAttribute(ctx, deviceID, "switch", "switch")
}

// SetSwitch turns the unit on or off; status is "on" or "off".
func (c *Client) SetSwitch(ctx context.Context, deviceID, status string) error {
	if status != SwitchOn && status != SwitchOff {
		return fmt.Errorf("invalid switch status %q", status)
	}
	return c.ExecuteCommands(ctx, deviceID, switchCommand(status))
}

func (c *Client) Temperature(ctx context.Context, deviceID string) (float64, error) {
	return c.floatAttribute(ctx, deviceID, "temperatureMeasurement", "temperature")
}

func (c *Client) Humidity(ctx context.Context, deviceID string) (float64, error) {
	return c.floatAttribute(ctx, deviceID, "relativeHumidityMeasurement", "humidity")
}

func (c *Client) CoolingSetpoint(ctx context.Context, deviceID string) (float64, error) {
	return c.floatAttribute(ctx, deviceID, "thermostatCoolingSetpoint", "coolingSetpoint")
}

func (c *Client) SetCoolingSetpoint(ctx context.Context, deviceID string, temperature int) error {
	return c.ExecuteCommands(ctx, deviceID, coolingSetpointCommand(temperature))
}

func (c *Client) Mode(ctx context.Context, deviceID string) (string, error) {
	return c.stringAttribute(ctx, deviceID, "airConditionerMode", "airConditionerMode")
}

// SetMode sets the air conditioner mode, e.g. "cool", "dry", "wind" or "aIComfort".
func (c *Client) SetMode(ctx context.Context, deviceID, mode string) error {
	if strings.TrimSpace(mode) == "" {
		return fmt.Errorf("mode is required")
	}
	return c.ExecuteCommands(ctx, deviceID, modeCommand(mode))
}

// SetFanMode selects the "solo" or "dual" blower layout.
func (c *Client) SetFanMode(ctx context.Context, deviceID, fanMode string) error {
	if err := validateFanMode(fanMode); err != nil {
		return err
	}
	return c.ExecuteCommands(ctx, deviceID, fanModeCommand(fanMode))
}

// SetFanModeAuto switches to AI comfort with the given blower layout, then sets the setpoint.
func (c *Client) SetFanModeAuto(ctx context.Context, deviceID, fanMode string, temperature int) error {
	if err := validateFanMode(fanMode); err != nil {
		return err
	}
	if err := c.ExecuteCommands(ctx, deviceID, aiComfortFanCommand(fanMode)); err != nil {
		return err
	}
	return c.ExecuteCommands(ctx, deviceID, coolingSetpointCommand(temperature))
}

// Status fetches every main-component attribute in a single call.
func (c *Client) Status(ctx context.Context, deviceID string) (DeviceStatus, error) {
	if deviceID == "" {
		return DeviceStatus{}, ErrEmptyDeviceID
	}

	var body deviceStatusBody
	if err := c.getJSON(ctx, "/devices/"+url.PathEscape(deviceID)+"/status", &body); err != nil {
		return DeviceStatus{}, err
	}

	main := body.Components["main"]
	status := DeviceStatus{}
	if s, err := main["switch"].stringValue("switch"); err == nil {
		status.Switch = s
	}
	if s, err := main["airConditionerMode"].stringValue("airConditionerMode"); err == nil {
		status.Mode = s
	}
	if v, err := main["temperatureMeasurement"].floatValue("temperature"); err == nil {
		status.Temperature = &v
		status.TemperatureUnit = main["temperatureMeasurement"]["temperature"].Unit
	}
	if v, err := main["relativeHumidityMeasurement"].floatValue("humidity"); err == nil {
		status.Humidity = &v
	}
	if v, err := main["thermostatCoolingSetpoint"].floatValue("coolingSetpoint"); err == nil {
		status.CoolingSetpoint = &v
	}
	return status, nil
}

// ExecuteCommands posts commands to the device in a single request.
func (c *Client) ExecuteCommands(ctx context.Context, deviceID string, commands ...Command) error {
	if deviceID == "" {
		return ErrEmptyDeviceID
	}
	payload := map[string]any{"commands": commands}
	_, err := c.do(ctx, http.MethodPost, "/devices/"+url.PathEscape(deviceID)+"/commands", payload)
	return err
}

func (c *Client) stringAttribute(ctx context.Context, deviceID, capability, attr string) (string, error) {
	status, err := c.capability(ctx, deviceID, capability)
	if err != nil {
		return "", err
	}
	return status.stringValue(attr)
}

func (c *Client) floatAttribute(ctx context.Context, deviceID, capability, attr string) (float64, error) {
	status, err := c.capability(ctx, deviceID, capability)
	if err != nil {
		return 0, err
	}
	return status.floatValue(attr)
}

func (c *Client) capability(ctx context.Context, deviceID, capability string) (capabilityStatus, error) {
	if deviceID == "" {
		return nil, ErrEmptyDeviceID
	}
	path := fmt.Sprintf("/devices/%s/components/main/capabilities/%s/status", url.PathEscape(deviceID), capability)
	var status capabilityStatus
	if err := c.getJSON(ctx, path, &status); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	accessToken, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if r, ok := c.tokens.(refresher); ok {
			r.TriggerRefresh(context.WithoutCancel(ctx))
		}
	}
	if resp.StatusCode >= 300 {
		return nil, apiError(resp.StatusCode, body)
	}
	return body, nil
}

func apiError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.RequestID = parsed.RequestID
		if parsed.Error.Message != "" {
			apiErr.Message = parsed.Error.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func (s capabilityStatus) stringValue(attr string) (string, error) {
	a, ok := s[attr]
	if !ok || len(a.Value) == 0 || string(a.Value) == "null" {
		return "", fmt.Errorf("%s: %w", attr, ErrMissingValue)
	}
	var out string
	if err := json.Unmarshal(a.Value, &out); err != nil {
		return "", fmt.Errorf("decode %s: %w", attr, err)
	}
	return out, nil
}

func (s capabilityStatus) floatValue(attr string) (float64, error) {
	a, ok := s[attr]
	if !ok || len(a.Value) == 0 || string(a.Value) == "null" {
		return 0, fmt.Errorf("%s: %w", attr, ErrMissingValue)
	}
	var out float64
	if err := json.Unmarshal(a.Value, &out); err != nil {
		return 0, fmt.Errorf("decode %s: %w", attr, err)
	}
	return out, nil
}

func validateFanMode(fanMode string) error {
	switch fanMode {
	case FanSolo, FanDual:
		return nil
	default:
		return fmt.Errorf("invalid fan mode %q (want %s or %s)", fanMode, FanSolo, FanDual)
	}
}
