// pkg/viewer/viewer.go

// Package viewer runs the single-threaded viewer loop. Two supervised
// workers move lines in and commands out; everything else (decoding,
// camera, trails, selection) happens on the goroutine that owns the
// Viewer.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/opd-ai/ggw-viewer/pkg/camera"
	"github.com/opd-ai/ggw-viewer/pkg/event"
	"github.com/opd-ai/ggw-viewer/pkg/health"
	"github.com/opd-ai/ggw-viewer/pkg/input"
	"github.com/opd-ai/ggw-viewer/pkg/interaction"
	"github.com/opd-ai/ggw-viewer/pkg/logging"
	"github.com/opd-ai/ggw-viewer/pkg/network"
	"github.com/opd-ai/ggw-viewer/pkg/protocol"
	"github.com/opd-ai/ggw-viewer/pkg/resource"
	"github.com/opd-ai/ggw-viewer/pkg/trail"
	"github.com/opd-ai/ggw-viewer/pkg/validation"
)

// Transport is the line channel the viewer reads snapshots from and writes
// commands to. *network.Client implements it.
type Transport interface {
	ReadLine(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, cmd protocol.Command) error
	Status() network.Status
	Close() error
}

// LineRecorder receives every applied snapshot line.
type LineRecorder interface {
	WriteLine(line []byte) error
	Close() error
}

// Frontend draws frames and delivers operator input.
type Frontend interface {
	Events() <-chan input.Event
	Draw(f *Frame)
	Close() error
}

// Viewer composes the transport, camera, tile view, trail buffer and
// interaction controller.
type Viewer struct {
	transport Transport
	opts      Options
	logger    *logging.Logger
	events    *event.Bus
	metrics   *viewerMetrics
	manager   *resource.Manager
	faults    *validation.RateLimiter
	recorder  LineRecorder

	camera *camera.Camera
	tiles  *camera.TileView
	trails *trail.Buffer
	ctrl   *interaction.Controller

	lines    chan []byte
	commands chan protocol.Command

	width, height float64
	snap          *protocol.Snapshot
	dropped       atomic.Int64
	lastSnapshot  atomic.Int64 // unix nanoseconds, zero until the first snapshot
	reconnected   atomic.Bool  // set by the transport, consumed by Poll

	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error
}

// New creates a viewer reading from t. Call Start to launch the workers.
func New(t Transport, opts Options) (*Viewer, error) {
	opts = opts.withDefaults()

	metrics, err := newViewerMetrics(opts.MeterProvider)
	if err != nil {
		return nil, err
	}

	v := &Viewer{
		transport: t,
		opts:      opts,
		logger:    opts.Logger.With("component", "viewer"),
		events:    opts.Events,
		metrics:   metrics,
		manager: resource.NewManager(resource.Options{
			ShutdownTimeout: opts.ShutdownTimeout,
			Logger:          opts.Logger,
		}),
		faults:   validation.NewRateLimiter(1, opts.FaultLogInterval),
		recorder: opts.Recorder,
		camera:   camera.New(opts.Width, opts.Height, opts.Camera),
		tiles:    camera.NewTileView(opts.Width, opts.Height, opts.Tiles),
		trails:   trail.New(opts.TrailLength),
		lines:    make(chan []byte, opts.LineQueue),
		commands: make(chan protocol.Command, opts.CommandQueue),
		width:    opts.Width,
		height:   opts.Height,
	}
	ictl := opts.Interaction
	ictl.Logger = opts.Logger
	v.ctrl = interaction.NewController(v.camera, v.tiles, v, ictl)
	v.events.Subscribe(event.TransportConnected, func(event.Event) { v.reconnected.Store(true) })
	return v, nil
}

// Start launches the reader and writer workers.
func (v *Viewer) Start(ctx context.Context) error {
	var err error
	v.startOnce.Do(func() {
		if err = v.manager.Start(); err != nil {
			return
		}
		if err = v.manager.StartGoroutine(ctx, "reader", v.reader); err != nil {
			return
		}
		err = v.manager.StartGoroutine(ctx, "writer", v.writer)
	})
	return err
}

// reader moves lines from the transport onto the line queue. Oversized
// lines never reach the queue; they are counted here.
func (v *Viewer) reader(ctx context.Context) {
	for {
		line, err := v.transport.ReadLine(ctx)
		if err != nil {
			switch {
			case errors.Is(err, network.ErrLineTooLong):
				v.fault(dropOversized, err)
				continue
			case errors.Is(err, network.ErrClosed), ctx.Err() != nil:
				return
			}
			v.logger.Warn(ctx, "read failed", "error", err)
			continue
		}

		select {
		case v.lines <- line:
		case <-ctx.Done():
			return
		}
	}
}

// writer drains the command queue into the transport.
func (v *Viewer) writer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-v.commands:
			if err := v.transport.Send(ctx, cmd); err != nil {
				if errors.Is(err, network.ErrClosed) || ctx.Err() != nil {
					return
				}
				v.logger.Warn(ctx, "command not sent", "type", cmd.Type(), "error", err)
			}
		}
	}
}

// Dispatch queues cmd for the writer without blocking. It reports false when
// the queue is full and the command was dropped.
func (v *Viewer) Dispatch(cmd protocol.Command) bool {
	attrs := metric.WithAttributes(attribute.String("type", cmd.Type()))
	select {
	case v.commands <- cmd:
		v.metrics.commandsDispatched.Add(context.Background(), 1, attrs)
		return true
	default:
		v.metrics.commandsDropped.Add(context.Background(), 1, attrs)
		return false
	}
}

// Apply decodes one line and folds it into the view state: base scale,
// camera follow, tile layout, trails and then selection. A line that does
// not decode leaves the previous snapshot in place.
func (v *Viewer) Apply(line []byte) error {
	snap, err := protocol.Decode(line)
	if err != nil {
		v.fault(dropMalformed, err)
		v.events.Publish(event.NewSnapshotEvent(event.SnapshotRejected, v, v.simTime(), err.Error()))
		return err
	}

	if v.snap != nil && snap.SimTime < v.snap.SimTime {
		v.logger.Info(context.Background(), "simulation clock went backwards, clearing trails",
			"from", v.snap.SimTime,
			"to", snap.SimTime,
		)
		v.trails.Reset()
		v.events.Publish(event.NewSnapshotEvent(event.SimulationReset, v, snap.SimTime, "sim_time decreased"))
	}

	if v.camera.EstablishBaseScale(snap) {
		v.logger.Debug(context.Background(), "base scale established", "scale", v.camera.BaseScale())
	}
	v.camera.Update(snap)
	v.tiles.Layout(snap.Interior)
	v.trails.Update(snap)
	v.ctrl.Reconcile(snap)

	v.snap = snap
	v.lastSnapshot.Store(v.opts.Clock().UnixNano())
	v.metrics.trailsTracked.Store(int64(v.trails.Len()))
	v.metrics.snapshotsApplied.Add(context.Background(), 1)

	if v.recorder != nil {
		if err := v.recorder.WriteLine(line); err != nil {
			v.logger.Warn(context.Background(), "recording failed, disabling", "error", err)
			v.recorder = nil
		}
	}
	return nil
}

// fault counts a discarded line and logs it at most once per interval per
// reason.
func (v *Viewer) fault(reason string, err error) {
	v.dropped.Add(1)
	v.metrics.dropped(reason)
	if v.faults.Allow(reason) {
		v.logger.Warn(context.Background(), "dropped inbound line",
			"reason", reason,
			"error", err,
			"total_dropped", v.dropped.Load(),
		)
	}
}

func (v *Viewer) simTime() float64 {
	if v.snap == nil {
		return 0
	}
	return v.snap.SimTime
}

// Poll applies every line waiting on the queue without blocking and
// returns how many were taken. After the transport reports a new session
// it first repeats the operator's time scale.
func (v *Viewer) Poll() int {
	if v.reconnected.Swap(false) && v.ctrl.ResendTimeScale() {
		v.logger.Info(context.Background(), "session established, time scale sent again",
			"time_scale", v.ctrl.TimeScale())
	}
	n := 0
	for {
		select {
		case line := <-v.lines:
			v.Apply(line)
			n++
		default:
			return n
		}
	}
}

// HandleInput applies one operator event. It returns true to quit.
func (v *Viewer) HandleInput(ev input.Event) bool {
	if r, ok := ev.(input.Resize); ok && r.Width > 0 && r.Height > 0 {
		v.width, v.height = r.Width, r.Height
	}
	return v.ctrl.HandleEvent(ev)
}

// Step polls pending lines, applies events and returns the frame to draw.
// It is the entry point for frontends that own the main loop.
func (v *Viewer) Step(events []input.Event) (*Frame, bool) {
	v.Poll()
	for _, ev := range events {
		if v.HandleInput(ev) {
			return v.Frame(), true
		}
	}
	return v.Frame(), false
}

// Run is the select loop for frontends that do not own the thread. It
// returns nil when the operator quits or the frontend's event stream ends,
// and ctx.Err() when ctx is cancelled.
func (v *Viewer) Run(ctx context.Context, fe Frontend) error {
	ticker := time.NewTicker(time.Second / time.Duration(v.opts.FrameRate))
	defer ticker.Stop()

	events := fe.Events()
	fe.Draw(v.Frame())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if v.HandleInput(ev) {
				v.logger.Info(ctx, "operator quit")
				return nil
			}
		case <-ticker.C:
			v.Poll()
			fe.Draw(v.Frame())
		}
	}
}

// Close closes the transport and waits, within the shutdown timeout, for
// the workers. Commands still queued are dropped.
func (v *Viewer) Close(ctx context.Context) error {
	v.closeOnce.Do(func() {
		errs := []error{v.transport.Close()}
		if err := v.manager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping workers: %w", err))
		}
		if v.recorder != nil {
			errs = append(errs, v.recorder.Close())
		}
		v.faults.Close()
		v.metrics.close()
		v.closeErr = errors.Join(errs...)
	})
	return v.closeErr
}

// Snapshot returns the most recently applied snapshot, or nil.
func (v *Viewer) Snapshot() *protocol.Snapshot {
	return v.snap
}

// Controller exposes the interaction state machine.
func (v *Viewer) Controller() *interaction.Controller {
	return v.ctrl
}

// Camera exposes the orbit camera.
func (v *Viewer) Camera() *camera.Camera {
	return v.camera
}

// Trails exposes the trail buffer.
func (v *Viewer) Trails() *trail.Buffer {
	return v.trails
}

// Dropped is the number of inbound lines discarded so far.
func (v *Viewer) Dropped() int64 {
	return v.dropped.Load()
}

// LastSnapshot is when the newest snapshot was applied. It is safe to call
// from any goroutine.
func (v *Viewer) LastSnapshot() time.Time {
	n := v.lastSnapshot.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// HealthChecks returns the checks the status endpoint should run.
func (v *Viewer) HealthChecks() []health.HealthCheck {
	return []health.HealthCheck{
		health.NewTransportHealthCheck(func() bool {
			return v.transport.Status() == network.Connected
		}),
		health.NewSnapshotHealthCheck(v.LastSnapshot, v.opts.SnapshotMaxAge),
		resource.NewHealthCheck(v.manager),
	}
}
