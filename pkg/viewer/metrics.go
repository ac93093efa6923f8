// pkg/viewer/metrics.go
package viewer

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/opd-ai/ggw-viewer/pkg/viewer"

// meter returns the viewer's meter from mp, or from the global provider
// when mp is nil.
func meter(mp metric.MeterProvider) metric.Meter {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	return mp.Meter(instrumentationName)
}

// Reasons attached to viewer.lines.dropped.
const (
	dropMalformed = "malformed"
	dropOversized = "oversized"
)

type viewerMetrics struct {
	snapshotsApplied   metric.Int64Counter
	linesDropped       metric.Int64Counter
	commandsDispatched metric.Int64Counter
	commandsDropped    metric.Int64Counter

	trailsTracked atomic.Int64
	registration  metric.Registration
}

func newViewerMetrics(mp metric.MeterProvider) (*viewerMetrics, error) {
	m := meter(mp)
	vm := &viewerMetrics{}
	var err error

	if vm.snapshotsApplied, err = m.Int64Counter("viewer.snapshots.applied",
		metric.WithDescription("Snapshots decoded and applied"),
	); err != nil {
		return nil, fmt.Errorf("creating snapshots counter: %w", err)
	}
	if vm.linesDropped, err = m.Int64Counter("viewer.lines.dropped",
		metric.WithDescription("Inbound lines discarded, by reason"),
	); err != nil {
		return nil, fmt.Errorf("creating dropped lines counter: %w", err)
	}
	if vm.commandsDispatched, err = m.Int64Counter("viewer.commands.dispatched",
		metric.WithDescription("Commands queued for the writer"),
	); err != nil {
		return nil, fmt.Errorf("creating dispatched commands counter: %w", err)
	}
	if vm.commandsDropped, err = m.Int64Counter("viewer.commands.dropped",
		metric.WithDescription("Commands dropped because the queue was full"),
	); err != nil {
		return nil, fmt.Errorf("creating dropped commands counter: %w", err)
	}

	gauge, err := m.Int64ObservableGauge("viewer.trails.tracked",
		metric.WithDescription("Entities with a trail"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trails gauge: %w", err)
	}
	vm.registration, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, vm.trailsTracked.Load())
		return nil
	}, gauge)
	if err != nil {
		return nil, fmt.Errorf("registering trails callback: %w", err)
	}

	return vm, nil
}

func (vm *viewerMetrics) dropped(reason string) {
	vm.linesDropped.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}

func (vm *viewerMetrics) close() {
	if vm.registration != nil {
		_ = vm.registration.Unregister()
	}
}
