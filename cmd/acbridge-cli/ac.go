package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/grpc"

	"github.com/joshp123/acbridge/plugins/samsungac"
)

func acCmd(ctx context.Context, conn *grpc.ClientConn, args []string, out outputMode) {
	if args[0] == "devices" {
		devicesCmd(ctx, conn, out)
		return
	}
	if len(args) < 2 {
		fatal(args[0], fmt.Errorf("missing device"))
	}

	deviceID := lookupDevice(ctx, conn, args[1])
	switch args[0] {
	case "state":
		stateCmd(ctx, conn, deviceID, out)
	case "power":
		if len(args) < 3 {
			fatal("power", fmt.Errorf("usage: acbridge-cli power <device> on|off"))
		}
		on, err := parsePower(args[2])
		if err != nil {
			fatal("power", err)
		}
		call(ctx, conn, "SetPower", map[string]any{"device_id": deviceID, "on": on})
		out.done(map[string]any{"device_id": deviceID, "on": on}, fmt.Sprintf("%s -> %s", deviceID, args[2]))
	case "mode":
		if len(args) < 3 {
			fatal("mode", fmt.Errorf("usage: acbridge-cli mode <device> <mode>"))
		}
		call(ctx, conn, "SetMode", map[string]any{"device_id": deviceID, "mode": args[2]})
		out.done(map[string]any{"device_id": deviceID, "mode": args[2]}, fmt.Sprintf("%s -> %s", deviceID, args[2]))
	case "setpoint":
		if len(args) < 3 {
			fatal("setpoint", fmt.Errorf("usage: acbridge-cli setpoint <device> <celsius>"))
		}
		temp, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			fatal("setpoint", fmt.Errorf("invalid temperature %q", args[2]))
		}
		call(ctx, conn, "SetCoolingSetpoint", map[string]any{"device_id": deviceID, "setpoint": temp})
		out.done(map[string]any{"device_id": deviceID, "setpoint": temp}, fmt.Sprintf("%s -> %.0f°", deviceID, temp))
	case "fan":
		fanCmd(ctx, conn, deviceID, args[2:], out)
	}
}

func devicesCmd(ctx context.Context, conn *grpc.ClientConn, out outputMode) {
	resp, err := invoke(ctx, conn, samsungac.ServiceName, "ListDevices", nil)
	if err != nil {
		fatal("devices", err)
	}
	if out.json {
		out.printJSON(resp.AsMap())
		return
	}
	rows := [][]string{{"ID", "LABEL", "VARIANT", "UNIT"}}
	for _, v := range resp.GetFields()["devices"].GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		rows = append(rows, []string{
			f["id"].GetStringValue(),
			formatValue(f["label"]),
			f["variant"].GetStringValue(),
			f["temperature_unit"].GetStringValue(),
		})
	}
	out.table(rows)
}

func stateCmd(ctx context.Context, conn *grpc.ClientConn, deviceID string, out outputMode) {
	resp, err := invoke(ctx, conn, samsungac.ServiceName, "GetState", map[string]any{"device_id": deviceID})
	if err != nil {
		fatal("state", err)
	}
	if out.json {
		out.printJSON(resp.AsMap())
		return
	}
	f := resp.GetFields()
	fmt.Printf("DEVICE:      %s\n", deviceID)
	fmt.Printf("SWITCH:      %s\n", formatValue(f["switch"]))
	fmt.Printf("MODE:        %s\n", formatValue(f["mode"]))
	fmt.Printf("TEMPERATURE: %s %s\n", formatValue(f["temperature"]), f["temperature_unit"].GetStringValue())
	fmt.Printf("HUMIDITY:    %s%%\n", formatValue(f["humidity"]))
	fmt.Printf("SETPOINT:    %s\n", formatValue(f["cooling_setpoint"]))
}

func fanCmd(ctx context.Context, conn *grpc.ClientConn, deviceID string, args []string, out outputMode) {
	if len(args) < 1 {
		fatal("fan", fmt.Errorf("usage: acbridge-cli fan <device> solo|dual [--auto --setpoint <celsius>]"))
	}
	fanMode := strings.ToLower(args[0])
	flags := flag.NewFlagSet("fan", flag.ExitOnError)
	auto := flags.Bool("auto", false, "Switch to AI comfort with this fan mode")
	setpoint := flags.Float64("setpoint", 0, "Cooling setpoint used with --auto")
	_ = flags.Parse(args[1:])

	req := map[string]any{"device_id": deviceID, "fan_mode": fanMode}
	if *auto {
		if *setpoint == 0 {
			fatal("fan", fmt.Errorf("--setpoint is required with --auto"))
		}
		req["auto"] = true
		req["setpoint"] = *setpoint
	}
	call(ctx, conn, "SetFanMode", req)
	out.done(req, fmt.Sprintf("%s fan -> %s", deviceID, fanMode))
}

func lookupDevice(ctx context.Context, conn *grpc.ClientConn, input string) string {
	resp, err := invoke(ctx, conn, samsungac.ServiceName, "ListDevices", nil)
	if err != nil {
		fatal("devices", err)
	}
	id, err := resolveDevice(input, devicesFromResponse(resp))
	if err != nil {
		fatal("resolve device", err)
	}
	return id
}

func call(ctx context.Context, conn *grpc.ClientConn, method string, fields map[string]any) {
	if _, err := invoke(ctx, conn, samsungac.ServiceName, method, fields); err != nil {
		fatal(strings.ToLower(method), err)
	}
}

func parsePower(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid power value %q (want on or off)", value)
	}
}
