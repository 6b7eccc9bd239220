package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fullstorydev/grpcurl"
	"github.com/jhump/protoreflect/grpcreflect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joshp123/acbridge/internal/config"
	"github.com/joshp123/acbridge/internal/core"
	"github.com/joshp123/acbridge/internal/router"
)

func main() {
	global := flag.NewFlagSet("acbridge-cli", flag.ExitOnError)
	jsonOutput := global.Bool("json", false, "Print JSON output")
	global.Usage = usage
	_ = global.Parse(os.Args[1:])
	args := global.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	addr := resolveAddr()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, err := grpcurl.BlockingDial(ctx, "tcp", addr, insecure.NewCredentials())
	if err != nil {
		fatal("dial", err)
	}
	defer conn.Close()

	out := outputMode{json: *jsonOutput}
	switch args[0] {
	case "plugins":
		pluginsCmd(ctx, conn, args[1:], out)
	case "services":
		servicesCmd(ctx, conn)
	case "methods":
		methodsCmd(ctx, conn, args[1:])
	case "call":
		callCmd(ctx, conn, args[1:])
	case "devices", "state", "power", "mode", "setpoint", "fan":
		acCmd(ctx, conn, args, out)
	default:
		usage()
		os.Exit(2)
	}
}

// invoke calls a Struct-based unary method.
func invoke(ctx context.Context, conn grpc.ClientConnInterface, service, method string, fields map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	resp := new(structpb.Struct)
	if err := conn.Invoke(ctx, router.FullMethod(service, method), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func pluginsCmd(ctx context.Context, conn *grpc.ClientConn, args []string, out outputMode) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "list":
		resp, err := invoke(ctx, conn, core.RegistryServiceName, "ListPlugins", nil)
		if err != nil {
			fatal("list plugins", err)
		}
		if out.json {
			out.printJSON(resp.AsMap())
			return
		}
		rows := [][]string{{"ID", "NAME", "VERSION", "STATUS"}}
		for _, p := range resp.GetFields()["plugins"].GetListValue().GetValues() {
			f := p.GetStructValue().GetFields()
			rows = append(rows, []string{
				f["plugin_id"].GetStringValue(),
				f["display_name"].GetStringValue(),
				f["version"].GetStringValue(),
				f["status"].GetStringValue(),
			})
		}
		out.table(rows)
	case "describe":
		if len(args) < 2 {
			fatal("describe", fmt.Errorf("missing plugin id"))
		}
		resp, err := invoke(ctx, conn, core.RegistryServiceName, "DescribePlugin", map[string]any{"plugin_id": args[1]})
		if err != nil {
			fatal("describe plugin", err)
		}
		if out.json {
			out.printJSON(resp.AsMap())
			return
		}
		plugin := resp.GetFields()["plugin"].GetStructValue().GetFields()
		fmt.Printf("id: %s\n", plugin["plugin_id"].GetStringValue())
		fmt.Printf("name: %s\n", plugin["display_name"].GetStringValue())
		fmt.Printf("version: %s\n", plugin["version"].GetStringValue())
		fmt.Printf("status: %s\n", plugin["status"].GetStringValue())
		if msg := plugin["health_message"].GetStringValue(); msg != "" {
			fmt.Printf("health: %s\n", msg)
		}
		fmt.Println("services:")
		for _, svc := range plugin["services"].GetListValue().GetValues() {
			fmt.Printf("  - %s\n", svc.GetStringValue())
		}
		fmt.Println("dashboards:")
		for _, dash := range plugin["dashboards"].GetListValue().GetValues() {
			d := dash.GetStructValue().GetFields()
			fmt.Printf("  - %s (%s)\n", d["name"].GetStringValue(), d["path"].GetStringValue())
		}
		fmt.Println("agents_md:")
		fmt.Println(plugin["agents_md"].GetStringValue())
	default:
		usage()
		os.Exit(2)
	}
}

func servicesCmd(ctx context.Context, conn *grpc.ClientConn) {
	descSource := reflectionSource(ctx, conn)
	services, err := grpcurl.ListServices(descSource)
	if err != nil {
		fatal("list services", err)
	}
	for _, service := range services {
		fmt.Println(service)
	}
}

func methodsCmd(ctx context.Context, conn *grpc.ClientConn, args []string) {
	if len(args) < 1 {
		fatal("methods", fmt.Errorf("missing service name"))
	}

	descSource := reflectionSource(ctx, conn)
	methods, err := grpcurl.ListMethods(descSource, args[0])
	if err != nil {
		fatal("list methods", err)
	}
	for _, method := range methods {
		fmt.Println(method)
	}
}

func callCmd(ctx context.Context, conn *grpc.ClientConn, args []string) {
	flags := flag.NewFlagSet("call", flag.ExitOnError)
	data := flags.String("data", "", "JSON request body")
	_ = flags.Parse(args)
	remaining := flags.Args()
	if len(remaining) < 1 {
		fatal("call", fmt.Errorf("missing method (service/method)"))
	}

	method := remaining[0]
	descSource := reflectionSource(ctx, conn)

	var reader io.Reader
	if *data != "" {
		reader = strings.NewReader(*data)
	} else if isStdinTerminal() {
		reader = strings.NewReader("{}")
	} else {
		reader = os.Stdin
	}

	parser, formatter, err := grpcurl.RequestParserAndFormatter(grpcurl.FormatJSON, descSource, reader, grpcurl.FormatOptions{})
	if err != nil {
		fatal("parse request", err)
	}

	handler := grpcurl.NewDefaultEventHandler(os.Stdout, descSource, formatter, false)
	if err := grpcurl.InvokeRPC(ctx, descSource, conn, method, nil, handler, parser.Next); err != nil {
		fatal("invoke", err)
	}
}

func reflectionSource(ctx context.Context, conn *grpc.ClientConn) grpcurl.DescriptorSource {
	client := grpcreflect.NewClientAuto(ctx, conn)
	return grpcurl.DescriptorSourceFromServer(ctx, client)
}

func isStdinTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return true
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func resolveAddr() string {
	if value := os.Getenv("ACBRIDGE_GRPC_ADDR"); value != "" {
		return value
	}
	for _, path := range configSearchPaths() {
		if addr := addrFromConfig(path); addr != "" {
			return addr
		}
	}
	return "localhost:9000"
}

func configSearchPaths() []string {
	paths := []string{config.DefaultPath}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "acbridge", "config.yaml"))
	}
	return paths
}

// addrFromConfig rewrites a wildcard listen host to localhost so it can be dialed.
func addrFromConfig(path string) string {
	cfg, err := config.Load(path)
	if err != nil || cfg == nil {
		return ""
	}
	addr := cfg.Core.GRPCAddr
	if rest, ok := strings.CutPrefix(addr, "0.0.0.0:"); ok {
		return "localhost:" + rest
	}
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

func usage() {
	fmt.Println("acbridge-cli [--json] <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  plugins list")
	fmt.Println("  plugins describe <plugin_id>")
	fmt.Println("  services")
	fmt.Println("  methods <service>")
	fmt.Println("  call <service/method> --data '{}' (or pipe JSON via stdin)")
	fmt.Println("  devices")
	fmt.Println("  state <device>")
	fmt.Println("  power <device> on|off")
	fmt.Println("  mode <device> cool|dry|wind|aIComfort")
	fmt.Println("  setpoint <device> <celsius>")
	fmt.Println("  fan <device> solo|dual [--auto --setpoint <celsius>]")
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
