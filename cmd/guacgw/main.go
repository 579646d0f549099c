// Command guacgw runs the Guacamole protocol gateway: it loads
// configuration, starts the intake worker pool, and serves the
// WebSocket endpoint until an interrupt or termination signal arrives,
// matching the signal-handling idiom gonc's cmd.Execute uses
// (signal.NotifyContext feeding a cancellable context.Context down).
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pires/go-proxyproto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/sammck-go/guacgw/internal/config"
	"github.com/sammck-go/guacgw/internal/gateway"
	"github.com/sammck-go/guacgw/internal/intake"
	"github.com/sammck-go/guacgw/internal/metrics"
	"github.com/sammck-go/guacgw/internal/obslog"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "guacgw: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("guacgw", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to YAML configuration file")
	listenPort := flags.IntP("port", "p", 0, "override websocket.port from the config file")
	guacdHost := flags.String("guacd-host", "", "override guacd.hostname from the config file")
	logLevel := flags.String("log-level", "", "override logging.level from the config file")
	development := flags.Bool("dev", false, "use the human-readable development log encoder")
	metricsAddr := flags.String("metrics-addr", "", "address to serve /metrics on, empty disables it")
	if err := flags.Parse(args); err != nil {
		return err
	}

	store, err := config.NewStore(*configPath, obslog.Discard())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyFlagOverrides(store, *listenPort, *guacdHost, *logLevel)

	cfg := store.Current()
	logLvl := cfg.LogLevel()
	var logger obslog.Logger
	if *development || cfg.Logging.Development {
		logger, err = obslog.NewDevelopmentLogger("guacgw", logLvl)
	} else {
		logger, err = obslog.NewProductionLogger("guacgw", logLvl)
	}
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := store.WatchReload(ctx); err != nil {
		logger.WLogf("config hot-reload disabled: %s", err)
	}

	registry := prometheus.NewRegistry()
	collectors := metrics.New(registry)

	queue := intake.New(intake.Config{
		Workers:           cfg.Intake.Workers,
		QueueDepth:        cfg.Intake.QueueDepth,
		MaxSessionsPerSec: cfg.Intake.MaxSessionsPerSec,
		Logger:            logger.Fork("intake"),
		Metrics:           collectors,
	})
	queue.Start(ctx)

	handler := gateway.New(store, queue, logger.Fork("gateway"), collectors)

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, registry, logger)
	}

	addr := fmt.Sprintf(":%d", cfg.WebSocket.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if cfg.Listener.ProxyProtocol {
		listener = &proxyproto.Listener{Listener: listener}
		logger.ILogf("PROXY protocol enabled on %s", addr)
	}

	logger.ILogf("listening on %s", addr)
	server := &http.Server{Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(listener) }()

	select {
	case <-ctx.Done():
		logger.ILogf("shutting down")
		_ = server.Close()
		queue.Wait()
		return nil
	case err := <-errCh:
		return err
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger obslog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.WLogf("metrics server stopped: %s", err)
	}
}

func applyFlagOverrides(store *config.Store, port int, guacdHost, logLevel string) {
	cfg := *store.Current()
	changed := false
	if port != 0 {
		cfg.WebSocket.Port = port
		changed = true
	}
	if guacdHost != "" {
		cfg.Guacd.Hostname = guacdHost
		changed = true
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
		changed = true
	}
	if changed {
		store.Replace(&cfg)
	}
}
