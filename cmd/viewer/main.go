package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/ggw-viewer/pkg/config"
	"github.com/opd-ai/ggw-viewer/pkg/event"
	"github.com/opd-ai/ggw-viewer/pkg/health"
	"github.com/opd-ai/ggw-viewer/pkg/launcher"
	"github.com/opd-ai/ggw-viewer/pkg/logging"
	"github.com/opd-ai/ggw-viewer/pkg/network"
	"github.com/opd-ai/ggw-viewer/pkg/render"
	engorender "github.com/opd-ai/ggw-viewer/pkg/render/engo"
	"github.com/opd-ai/ggw-viewer/pkg/telemetry"
	"github.com/opd-ai/ggw-viewer/pkg/viewer"
)

// terminalLogFile keeps log output off the screen the terminal frontend
// draws on.
const terminalLogFile = "ggw-viewer.log"

func main() {
	configPath := flag.String("config", "", "Path to a JSON or YAML configuration file")
	address := flag.String("address", "", "Simulation address (overrides connection.address)")
	launch := flag.Bool("launch", false, "Start the simulation binary over stdio instead of attaching")
	binary := flag.String("binary", "", "Simulation binary for -launch (overrides launch.binary)")
	frontend := flag.String("frontend", "", "Frontend: terminal, window or headless (overrides render.frontend)")
	record := flag.String("record", "", "Record inbound snapshot lines to this file; .zst compresses")
	logLevel := flag.String("log-level", "", "Log level (overrides log.level)")
	statusAddr := flag.String("status", "", "Serve /healthz and /readyz on this address")
	flag.Parse()

	overrides := map[string]any{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "address":
			overrides["connection.address"] = *address
		case "launch":
			overrides["launch.enabled"] = *launch
		case "binary":
			overrides["launch.binary"] = *binary
		case "frontend":
			overrides["render.frontend"] = *frontend
		case "record":
			overrides["record"] = *record
		case "log-level":
			overrides["log.level"] = *logLevel
		case "status":
			overrides["status.addr"] = *statusAddr
		}
	})

	ctx := context.Background()
	cfg, err := config.Load(*configPath, overrides)
	if err != nil {
		logging.NewLogger(logging.Options{}).Error(ctx, "Failed to load configuration", err,
			"config_path", *configPath,
		)
		os.Exit(1)
	}

	logOpts := logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}
	mode := strings.ToLower(cfg.Render.Frontend)
	if mode == config.FrontendTerminal && logOpts.File == "" {
		logOpts.File = terminalLogFile
	}
	logger := logging.NewLogger(logOpts)

	metrics, err := newTelemetry(cfg, logOpts)
	if err != nil {
		logger.Error(ctx, "Failed to set up metrics", err)
		os.Exit(1)
	}

	style, err := render.NewStyle(cfg.Style)
	if err != nil {
		logger.Error(ctx, "Invalid style configuration", err)
		os.Exit(1)
	}

	var (
		dialer network.Dialer
		proc   *launcher.Process
	)
	if cfg.Launch.Enabled {
		proc, err = launcher.New(cfg.Launch.Binary, cfg.Launch.Args, logger)
		if err != nil {
			logger.Error(ctx, "Failed to resolve simulation binary", err,
				"binary", cfg.Launch.Binary,
			)
			os.Exit(1)
		}
		dialer = proc
	} else {
		dialer = network.TCPDialer{Address: cfg.Connection.Address, Timeout: cfg.Connection.ConnectTimeout}
	}

	bus := event.NewEventBus()
	subscribeToEvents(ctx, bus, logger)

	client, err := network.NewClient(dialer, network.Options{
		RetryInterval: cfg.Connection.RetryInterval,
		ReadTimeout:   cfg.Connection.ReadTimeout,
		WriteTimeout:  cfg.Connection.WriteTimeout,
		MaxLineBytes:  cfg.Connection.MaxLineBytes,
		Breaker: network.BreakerOptions{
			MaxRequests:         cfg.Breaker.MaxRequests,
			Interval:            cfg.Breaker.Interval,
			Timeout:             cfg.Breaker.Timeout,
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
		},
		Logger:        logger,
		Events:        bus,
		MeterProvider: metrics.MeterProvider(),
	})
	if err != nil {
		logger.Error(ctx, "Failed to create transport", err)
		os.Exit(1)
	}

	opts := viewer.OptionsFromConfig(cfg)
	opts.Logger = logger
	opts.Events = bus
	opts.MeterProvider = metrics.MeterProvider()
	if cfg.Record != "" {
		rec, err := network.CreateRecording(cfg.Record)
		if err != nil {
			logger.Error(ctx, "Failed to create recording", err, "path", cfg.Record)
			os.Exit(1)
		}
		opts.Recorder = rec
	}

	v, err := viewer.New(client, opts)
	if err != nil {
		logger.Error(ctx, "Failed to create viewer", err)
		os.Exit(1)
	}

	// The terminal must be taken over before any worker starts, so that a
	// frontend failure is still a clean startup fault.
	var fe viewer.Frontend
	switch mode {
	case config.FrontendTerminal:
		term, err := render.NewTerminal(style, logger)
		if err != nil {
			logger.Error(ctx, "Failed to initialize terminal", err)
			os.Exit(1)
		}
		fe = term
	case config.FrontendHeadless:
		fe = render.NewNullRenderer(logger)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := v.Start(ctx); err != nil {
		logger.Error(ctx, "Failed to start viewer", err)
		os.Exit(1)
	}
	logger.Info(ctx, "Viewer started",
		"transport", fmt.Sprint(dialer),
		"frontend", mode,
	)

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.Status.Addr != "" {
		checker := health.NewHealthChecker()
		for _, check := range v.HealthChecks() {
			checker.AddCheck(check)
		}
		checker.AddCheck(health.NewBreakerHealthCheck(func() string {
			return client.Guard().State().String()
		}))
		checker.Handle("GET /metrics", metrics.Handler())
		g.Go(func() error {
			return checker.Serve(gctx, cfg.Status.Addr, logger)
		})
	}

	if fe != nil {
		g.Go(func() error {
			defer cancel()
			defer fe.Close()
			return v.Run(gctx, fe)
		})
	} else {
		// engo needs the main goroutine.
		engorender.Run(gctx, v, engorender.Options{
			Title:  cfg.Render.Title,
			Width:  cfg.Viewport.Width,
			Height: cfg.Viewport.Height,
			VSync:  cfg.Render.VSync,
			Style:  style,
			Logger: logger,
		})
		cancel()
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(ctx, "Viewer stopped with error", err)
	}
	cancel()

	logger.Info(ctx, "Shutting down viewer")
	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer done()
	if err := v.Close(shutdownCtx); err != nil {
		logger.Error(ctx, "Viewer shutdown incomplete", err)
	}
	if proc != nil {
		if err := proc.Stop(cfg.Launch.StopTimeout); err != nil {
			logger.Warn(ctx, "Simulation did not stop cleanly", "error", err.Error())
		}
	}

	flushCtx, flushed := context.WithTimeout(context.Background(), time.Second)
	defer flushed()
	logTotals(flushCtx, logger, metrics)
	if err := metrics.Shutdown(flushCtx); err != nil {
		logger.Warn(ctx, "Metrics did not flush", "error", err.Error())
	}
}

// newTelemetry installs the meter provider. A metrics file rotates with
// the same limits as the log.
func newTelemetry(cfg *config.Config, logOpts logging.Options) (*telemetry.Provider, error) {
	tc := telemetry.Config{ServiceName: "ggw-viewer", Interval: cfg.Metrics.Interval}
	if cfg.Metrics.File != "" {
		fileOpts := logOpts
		fileOpts.File = cfg.Metrics.File
		tc.Writer = logging.RotatingFile(fileOpts)
	}
	p, err := telemetry.New(tc)
	if err != nil {
		return nil, err
	}
	p.Install()
	return p, nil
}

// logTotals records the session's headline counters.
func logTotals(ctx context.Context, logger *logging.Logger, metrics *telemetry.Provider) {
	args := []any{}
	for _, name := range []string{
		"viewer.snapshots.applied",
		"viewer.lines.dropped",
		"viewer.commands.dispatched",
		"transport.reconnects",
	} {
		n, err := metrics.Sum(ctx, name)
		if err != nil {
			logger.Warn(ctx, "Could not read metrics", "error", err.Error())
			return
		}
		args = append(args, name, n)
	}
	logger.Info(ctx, "Session totals", args...)
}

// subscribeToEvents logs transport and snapshot lifecycle events.
func subscribeToEvents(ctx context.Context, bus *event.Bus, logger *logging.Logger) {
	for _, t := range []event.Type{event.TransportConnected, event.TransportDisconnected, event.TransportClosed} {
		bus.Subscribe(t, func(e event.Event) {
			if ce, ok := e.(*event.ConnectionEvent); ok {
				logger.Info(ctx, "Transport status changed",
					"event", string(ce.GetType()),
					"address", ce.Address,
				)
			}
		})
	}
	bus.Subscribe(event.SimulationReset, func(e event.Event) {
		if se, ok := e.(*event.SnapshotEvent); ok {
			logger.Info(ctx, "Simulation clock restarted", "sim_time", se.SimTime)
		}
	})
}
