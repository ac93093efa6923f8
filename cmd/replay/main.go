package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opd-ai/ggw-viewer/pkg/logging"
	"github.com/opd-ai/ggw-viewer/pkg/network"
	"github.com/opd-ai/ggw-viewer/pkg/telemetry"
	"github.com/opd-ai/ggw-viewer/pkg/validation"
)

func main() {
	recording := flag.String("recording", "", "Recording to replay; .zst files are zstd-compressed")
	address := flag.String("address", network.DefaultAddress, "Address to listen on")
	interval := flag.Duration("interval", 100*time.Millisecond, "Delay between frames")
	loop := flag.Bool("loop", true, "Restart the recording when it ends")
	maxClients := flag.Int("max-clients", 8, "Maximum concurrent viewers")
	commandsPerMin := flag.Int("commands-per-minute", validation.MaxCommandsPerMin, "Per-client command rate limit; 0 disables")
	logLevel := flag.String("log-level", "info", "Log level")
	metricsFile := flag.String("metrics-file", "", "Export metrics as JSON to this file")
	metricsInterval := flag.Duration("metrics-interval", 30*time.Second, "Period of the metrics export")
	flag.Parse()

	logger := logging.NewLogger(logging.Options{Level: *logLevel})
	ctx := context.Background()

	tc := telemetry.Config{ServiceName: "ggw-replay", Interval: *metricsInterval}
	if *metricsFile != "" {
		tc.Writer = logging.RotatingFile(logging.Options{File: *metricsFile})
	}
	metrics, err := telemetry.New(tc)
	if err != nil {
		logger.Error(ctx, "Failed to set up metrics", err)
		os.Exit(1)
	}
	metrics.Install()
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := metrics.Shutdown(flushCtx); err != nil {
			logger.Warn(ctx, "Metrics did not flush", "error", err.Error())
		}
	}()

	if *recording == "" {
		logger.Error(ctx, "No recording given", errors.New("missing -recording"))
		os.Exit(1)
	}

	frames, err := network.LoadRecording(*recording)
	if err != nil {
		logger.Error(ctx, "Failed to load recording", err,
			"path", *recording,
		)
		os.Exit(1)
	}

	server, err := network.NewReplayServer(frames, network.ReplayOptions{
		Interval:          *interval,
		Loop:              *loop,
		MaxClients:        *maxClients,
		CommandsPerMinute: *commandsPerMin,
		Logger:            logger,
		MeterProvider:     metrics.MeterProvider(),
	})
	if err != nil {
		logger.Error(ctx, "Failed to create replay server", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "Starting replay server",
		"address", *address,
		"frames", len(frames),
		"loop", *loop,
	)
	if err := server.ListenAndServe(ctx, *address); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(ctx, "Replay server failed", err,
			"address", *address,
		)
		os.Exit(1)
	}
	sent, _ := metrics.Sum(context.Background(), "replay.frames.sent")
	received, _ := metrics.Sum(context.Background(), "replay.commands.received")
	logger.Info(ctx, "Replay server stopped", "frames_sent", sent, "commands_received", received)
}
