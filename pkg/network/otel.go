// pkg/network/otel.go
package network

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/opd-ai/ggw-viewer/pkg/network"

// meter returns the transport's meter from mp, or from the global
// provider when mp is nil.
func meter(mp metric.MeterProvider) metric.Meter {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	return mp.Meter(instrumentationName)
}

type transportMetrics struct {
	dialAttempts    metric.Int64Counter
	reconnects      metric.Int64Counter
	linesRead       metric.Int64Counter
	linesOversized  metric.Int64Counter
	commandsWritten metric.Int64Counter
}

func newTransportMetrics(mp metric.MeterProvider) (*transportMetrics, error) {
	m := meter(mp)
	tm := &transportMetrics{}
	var err error

	if tm.dialAttempts, err = m.Int64Counter("transport.dial.attempts",
		metric.WithDescription("Session establishment attempts"),
	); err != nil {
		return nil, fmt.Errorf("creating dial attempts counter: %w", err)
	}
	if tm.reconnects, err = m.Int64Counter("transport.reconnects",
		metric.WithDescription("Sessions established after the first"),
	); err != nil {
		return nil, fmt.Errorf("creating reconnects counter: %w", err)
	}
	if tm.linesRead, err = m.Int64Counter("transport.lines.read",
		metric.WithDescription("Non-empty lines read from the simulation"),
	); err != nil {
		return nil, fmt.Errorf("creating lines read counter: %w", err)
	}
	if tm.linesOversized, err = m.Int64Counter("transport.lines.oversized",
		metric.WithDescription("Lines discarded for exceeding the size limit"),
	); err != nil {
		return nil, fmt.Errorf("creating oversized lines counter: %w", err)
	}
	if tm.commandsWritten, err = m.Int64Counter("transport.commands.written",
		metric.WithDescription("Commands written to the simulation"),
	); err != nil {
		return nil, fmt.Errorf("creating commands written counter: %w", err)
	}
	return tm, nil
}

type replayMetrics struct {
	clientsActive    metric.Int64UpDownCounter
	framesSent       metric.Int64Counter
	commandsReceived metric.Int64Counter
	commandsRejected metric.Int64Counter
}

func newReplayMetrics(mp metric.MeterProvider) (*replayMetrics, error) {
	m := meter(mp)
	rm := &replayMetrics{}
	var err error

	if rm.clientsActive, err = m.Int64UpDownCounter("replay.clients.active",
		metric.WithDescription("Viewers currently connected"),
	); err != nil {
		return nil, fmt.Errorf("creating active clients counter: %w", err)
	}
	if rm.framesSent, err = m.Int64Counter("replay.frames.sent",
		metric.WithDescription("Snapshot lines written to viewers"),
	); err != nil {
		return nil, fmt.Errorf("creating frames sent counter: %w", err)
	}
	if rm.commandsReceived, err = m.Int64Counter("replay.commands.received",
		metric.WithDescription("Commands decoded, by type"),
	); err != nil {
		return nil, fmt.Errorf("creating commands received counter: %w", err)
	}
	if rm.commandsRejected, err = m.Int64Counter("replay.commands.rejected",
		metric.WithDescription("Commands refused by validation or decoding"),
	); err != nil {
		return nil, fmt.Errorf("creating commands rejected counter: %w", err)
	}
	return rm, nil
}
