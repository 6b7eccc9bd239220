package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/joshp123/acbridge/internal/config"
	"github.com/joshp123/acbridge/internal/core"
	"github.com/joshp123/acbridge/internal/homekit"
	"github.com/joshp123/acbridge/internal/logging"
	"github.com/joshp123/acbridge/internal/mqttmirror"
	"github.com/joshp123/acbridge/internal/oauth"
	"github.com/joshp123/acbridge/internal/plugins"
	"github.com/joshp123/acbridge/internal/rate"
	"github.com/joshp123/acbridge/internal/router"
	"github.com/joshp123/acbridge/internal/server"
	"github.com/joshp123/acbridge/plugins/samsungac"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "oauth" {
		oauthMain(os.Args[2:])
		return
	}

	flags := flag.NewFlagSet("acbridge", flag.ExitOnError)
	configPath := flags.String("config", envOrDefault("ACBRIDGE_CONFIG", config.DefaultPath), "Path to config.yaml")
	_ = flags.Parse(os.Args[1:])

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("config", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.JSON, cfg.Log.Colors)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("acbridge stopped")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	compiled := plugins.Compiled(cfg)
	enabled := config.EnabledPlugins(cfg)
	if err := core.ValidateEnabledPlugins(compiled, enabled, false); err != nil {
		return err
	}
	active := core.FilterPlugins(compiled, enabled, false)
	if err := core.ValidatePlugins(active); err != nil {
		return err
	}
	for _, p := range active {
		if health := p.Health(); health.Status != core.HealthHealthy {
			log.Warn().Str("plugin", p.ID()).Str("reason", health.Message).Msg("plugin unhealthy")
		}
	}

	grpcServer, err := server.NewGRPCServer(cfg.Core.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	router.RegisterPlugins(grpcServer.Server, active)

	shared := append(rate.MetricsCollectors(), oauth.MetricsCollectors()...)
	shared = append(shared, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "acbridge_build_info",
		Help:        "Build information",
		ConstLabels: prometheus.Labels{"version": version},
	}, func() float64 { return 1 }))
	metricsRegistry := core.MetricsRegistry(active, shared...)

	if n, err := core.WriteDashboards(cfg.Core.DashboardDir, active); err != nil {
		log.Warn().Err(err).Msg("write dashboards")
	} else if n > 0 {
		log.Info().Int("written", n).Str("dir", cfg.Core.DashboardDir).Msg("dashboards provisioned")
	}

	httpServer := server.NewHTTPServer(cfg.Core.HTTPAddr, server.NewMux(active, metricsRegistry))

	errCh := make(chan error, 4)
	go func() {
		log.Info().Str("addr", cfg.Core.HTTPAddr).Msg("http listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()
	go func() {
		log.Info().Str("addr", cfg.Core.GRPCAddr).Msg("grpc listening")
		if err := grpcServer.Serve(); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()

	if plugin, ok := findSamsungAC(active); ok && plugin.Client() != nil {
		if err := startBridge(ctx, cfg, plugin, errCh); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		log.Error().Err(err).Msg("server failed")
		shutdown(httpServer, grpcServer)
		return err
	}
	shutdown(httpServer, grpcServer)
	return nil
}

// startBridge resolves the units once and starts the HomeKit server and the optional MQTT mirror.
func startBridge(ctx context.Context, cfg *config.Config, plugin samsungac.Plugin, errCh chan<- error) error {
	client := plugin.Client()
	runtimeCfg := plugin.Config()

	lookupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	units, err := client.Units(lookupCtx, runtimeCfg)
	cancel()
	if err != nil {
		return fmt.Errorf("resolve devices: %w", err)
	}
	if len(units) == 0 {
		log.Warn().Str("device_name", runtimeCfg.DeviceName).Msg("no matching smartthings devices")
	}

	hk, err := homekit.NewServer(cfg.HomeKit, client, units, runtimeCfg.Timeout)
	if err != nil {
		return err
	}
	go func() {
		log.Info().Str("bridge", cfg.HomeKit.BridgeName).Int("accessories", len(units)).Msg("homekit serving")
		if err := hk.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("homekit serve: %w", err)
		}
	}()

	if cfg.MQTT != nil {
		mirror, err := mqttmirror.New(cfg.MQTT, client, units)
		if err != nil {
			return err
		}
		go mirror.Run(ctx)
	}
	return nil
}

func findSamsungAC(active []core.Plugin) (samsungac.Plugin, bool) {
	for _, p := range active {
		if plugin, ok := p.(samsungac.Plugin); ok {
			return plugin, true
		}
	}
	return samsungac.Plugin{}, false
}

func shutdown(httpServer *server.HTTPServer, grpcServer *server.GRPCServer) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	grpcServer.Stop()
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
