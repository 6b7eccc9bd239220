package samsungac

import (
	"context"
	"errors"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joshp123/acbridge/internal/rate"
	"github.com/joshp123/acbridge/internal/router"
)

// ServiceName is the gRPC service exposed by this plugin.
const ServiceName = "acbridge.samsungac.v1.SamsungACService"

type service struct {
	client *Client
	cfg    Config
}

func RegisterSamsungACService(server *grpc.Server, client *Client, cfg Config) {
	s := &service{client: client, cfg: cfg}
	server.RegisterService(router.Service(ServiceName,
		router.Unary(ServiceName, "ListDevices", s.ListDevices),
		router.Unary(ServiceName, "GetState", s.GetState),
		router.Unary(ServiceName, "SetPower", s.SetPower),
		router.Unary(ServiceName, "SetMode", s.SetMode),
		router.Unary(ServiceName, "SetCoolingSetpoint", s.SetCoolingSetpoint),
		router.Unary(ServiceName, "SetFanMode", s.SetFanMode),
	), s)
}

func (s *service) ListDevices(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.client == nil {
		return nil, status.Error(codes.FailedPrecondition, "smartthings client not configured")
	}

	units, err := s.client.Units(ctx, s.cfg)
	if err != nil {
		return nil, statusError("list devices", err)
	}

	devices := make([]any, 0, len(units))
	for _, unit := range units {
		devices = append(devices, map[string]any{
			"id":               unit.Device.ID,
			"name":             unit.Device.Name,
			"label":            unit.Device.Label,
			"manufacturer":     unit.Device.ManufacturerName,
			"type":             unit.Device.DeviceTypeName,
			"variant":          unit.Variant,
			"temperature_unit": unit.TemperatureUnit,
		})
	}
	return toStruct(map[string]any{"devices": devices})
}

func (s *service) GetState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	deviceID, err := s.deviceID(req)
	if err != nil {
		return nil, err
	}

	st, err := s.client.Status(ctx, deviceID)
	if err != nil {
		return nil, statusError("get state", err)
	}

	fields := map[string]any{
		"device_id": deviceID,
		"switch":    st.Switch,
		"mode":      st.Mode,
	}
	if st.TemperatureUnit != "" {
		fields["temperature_unit"] = st.TemperatureUnit
	}
	if st.Temperature != nil {
		fields["temperature"] = *st.Temperature
	}
	if st.Humidity != nil {
		fields["humidity"] = *st.Humidity
	}
	if st.CoolingSetpoint != nil {
		fields["cooling_setpoint"] = *st.CoolingSetpoint
	}
	return toStruct(fields)
}

func (s *service) SetPower(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	deviceID, err := s.deviceID(req)
	if err != nil {
		return nil, err
	}
	on, ok := req.GetFields()["on"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "on is required")
	}

	value := SwitchOff
	if on.GetBoolValue() {
		value = SwitchOn
	}
	if err := s.client.SetSwitch(ctx, deviceID, value); err != nil {
		return nil, statusError("set power", err)
	}
	return &structpb.Struct{}, nil
}

func (s *service) SetMode(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	deviceID, err := s.deviceID(req)
	if err != nil {
		return nil, err
	}
	mode := req.GetFields()["mode"].GetStringValue()
	if mode == "" {
		return nil, status.Error(codes.InvalidArgument, "mode is required")
	}

	if err := s.client.SetMode(ctx, deviceID, mode); err != nil {
		return nil, statusError("set mode", err)
	}
	return &structpb.Struct{}, nil
}

func (s *service) SetCoolingSetpoint(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	deviceID, err := s.deviceID(req)
	if err != nil {
		return nil, err
	}
	setpoint, err := requiredNumber(req, "setpoint")
	if err != nil {
		return nil, err
	}

	if err := s.client.SetCoolingSetpoint(ctx, deviceID, setpoint); err != nil {
		return nil, statusError("set cooling setpoint", err)
	}
	return &structpb.Struct{}, nil
}

// SetFanMode expects fan_mode; with auto=true it also needs setpoint and switches to AI comfort.
func (s *service) SetFanMode(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	deviceID, err := s.deviceID(req)
	if err != nil {
		return nil, err
	}
	fields := req.GetFields()
	fanMode := fields["fan_mode"].GetStringValue()
	if err := validateFanMode(fanMode); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if !fields["auto"].GetBoolValue() {
		if err := s.client.SetFanMode(ctx, deviceID, fanMode); err != nil {
			return nil, statusError("set fan mode", err)
		}
		return &structpb.Struct{}, nil
	}

	setpoint, err := requiredNumber(req, "setpoint")
	if err != nil {
		return nil, err
	}
	if err := s.client.SetFanModeAuto(ctx, deviceID, fanMode, setpoint); err != nil {
		return nil, statusError("set fan mode auto", err)
	}
	return &structpb.Struct{}, nil
}

func (s *service) deviceID(req *structpb.Struct) (string, error) {
	if s.client == nil {
		return "", status.Error(codes.FailedPrecondition, "smartthings client not configured")
	}
	id := req.GetFields()["device_id"].GetStringValue()
	if id == "" {
		return "", status.Error(codes.InvalidArgument, "device_id is required")
	}
	return id, nil
}

func requiredNumber(req *structpb.Struct, field string) (int, error) {
	value, ok := req.GetFields()[field]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", field)
	}
	if _, isNumber := value.GetKind().(*structpb.Value_NumberValue); !isNumber {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a number", field)
	}
	return int(math.Round(value.GetNumberValue())), nil
}

func statusError(op string, err error) error {
	var rateErr rate.RateLimitError
	switch {
	case errors.Is(err, ErrNotFound):
		return status.Errorf(codes.NotFound, "%s: %v", op, err)
	case errors.Is(err, ErrUnauthorized):
		return status.Errorf(codes.Unauthenticated, "%s: %v", op, err)
	case errors.Is(err, ErrRateLimited), errors.As(err, &rateErr):
		return status.Errorf(codes.ResourceExhausted, "%s: %v", op, err)
	case errors.Is(err, ErrMissingValue):
		return status.Errorf(codes.Unavailable, "%s: %v", op, err)
	default:
		return status.Errorf(codes.Internal, "%s: %v", op, err)
	}
}

func toStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}
