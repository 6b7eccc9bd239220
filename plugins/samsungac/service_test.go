package samsungac

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joshp123/acbridge/internal/router"
)

func dialService(t *testing.T, client *Client) *grpc.ClientConn {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	RegisterSamsungACService(server, client, Config{DeviceName: "Samsung Floor A/C", Variant: "heater_cooler", TemperatureUnit: "C"})
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func invoke(t *testing.T, conn *grpc.ClientConn, method string, fields map[string]any) (*structpb.Struct, error) {
	t.Helper()
	req, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	resp := &structpb.Struct{}
	err = conn.Invoke(context.Background(), router.FullMethod(ServiceName, method), req, resp)
	return resp, err
}

func TestServiceListAndState(t *testing.T) {
	_, server := newFakeSmartThings(t)
	conn := dialService(t, newTestClient(t, server))

	resp, err := invoke(t, conn, "ListDevices", nil)
	require.NoError(t, err)
	devices := resp.GetFields()["devices"].GetListValue().GetValues()
	require.Len(t, devices, 1)
	device := devices[0].GetStructValue().GetFields()
	assert.Equal(t, "ac-1", device["id"].GetStringValue())
	assert.Equal(t, "Living Room AC", device["label"].GetStringValue())
	assert.Equal(t, "heater_cooler", device["variant"].GetStringValue())

	resp, err = invoke(t, conn, "GetState", map[string]any{"device_id": "ac-1"})
	require.NoError(t, err)
	state := resp.GetFields()
	assert.Equal(t, "on", state["switch"].GetStringValue())
	assert.Equal(t, "cool", state["mode"].GetStringValue())
	assert.Equal(t, 25.0, state["temperature"].GetNumberValue())
	assert.Equal(t, 41.0, state["humidity"].GetNumberValue())
	assert.Equal(t, 22.0, state["cooling_setpoint"].GetNumberValue())
}

func TestServiceCommands(t *testing.T) {
	fake, server := newFakeSmartThings(t)
	conn := dialService(t, newTestClient(t, server))

	_, err := invoke(t, conn, "SetPower", map[string]any{"device_id": "ac-1", "on": false})
	require.NoError(t, err)
	_, err = invoke(t, conn, "SetMode", map[string]any{"device_id": "ac-1", "mode": "dry"})
	require.NoError(t, err)
	_, err = invoke(t, conn, "SetCoolingSetpoint", map[string]any{"device_id": "ac-1", "setpoint": 21.4})
	require.NoError(t, err)
	_, err = invoke(t, conn, "SetFanMode", map[string]any{"device_id": "ac-1", "fan_mode": "solo", "auto": true, "setpoint": 20})
	require.NoError(t, err)

	calls := fake.recorded()
	require.Len(t, calls, 5)
	assert.Equal(t, "off", calls[0][0].Command)
	assert.Equal(t, []any{"dry"}, calls[1][0].Arguments)
	assert.Equal(t, []any{21.0}, calls[2][0].Arguments)
	assert.Equal(t, "execute", calls[3][0].Capability)
	assert.Equal(t, []any{20.0}, calls[4][0].Arguments)
}

func TestServiceValidation(t *testing.T) {
	_, server := newFakeSmartThings(t)
	conn := dialService(t, newTestClient(t, server))

	cases := []struct {
		method string
		fields map[string]any
		code   codes.Code
	}{
		{"GetState", nil, codes.InvalidArgument},
		{"SetPower", map[string]any{"device_id": "ac-1"}, codes.InvalidArgument},
		{"SetMode", map[string]any{"device_id": "ac-1"}, codes.InvalidArgument},
		{"SetCoolingSetpoint", map[string]any{"device_id": "ac-1", "setpoint": "warm"}, codes.InvalidArgument},
		{"SetFanMode", map[string]any{"device_id": "ac-1", "fan_mode": "triple"}, codes.InvalidArgument},
		{"SetFanMode", map[string]any{"device_id": "ac-1", "fan_mode": "dual", "auto": true}, codes.InvalidArgument},
		{"GetState", map[string]any{"device_id": "missing"}, codes.NotFound},
	}
	for _, tc := range cases {
		_, err := invoke(t, conn, tc.method, tc.fields)
		assert.Equal(t, tc.code, status.Code(err), "%s %v", tc.method, tc.fields)
	}
}

func TestServiceWithoutClient(t *testing.T) {
	conn := dialService(t, nil)

	_, err := invoke(t, conn, "ListDevices", nil)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	_, err = invoke(t, conn, "SetMode", map[string]any{"device_id": "ac-1", "mode": "cool"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}
