// pkg/viewer/viewer_test.go
package viewer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opd-ai/ggw-viewer/pkg/config"
	"github.com/opd-ai/ggw-viewer/pkg/event"
	"github.com/opd-ai/ggw-viewer/pkg/geom"
	"github.com/opd-ai/ggw-viewer/pkg/input"
	"github.com/opd-ai/ggw-viewer/pkg/interaction"
	"github.com/opd-ai/ggw-viewer/pkg/network"
	"github.com/opd-ai/ggw-viewer/pkg/protocol"
	"github.com/opd-ai/ggw-viewer/pkg/telemetry"
)

type readResult struct {
	line []byte
	err  error
}

type fakeTransport struct {
	reads     chan readResult
	sent      chan protocol.Command
	closed    chan struct{}
	closeOnce sync.Once
	connected atomic.Bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		reads:  make(chan readResult, 16),
		sent:   make(chan protocol.Command, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadLine(ctx context.Context) ([]byte, error) {
	select {
	case r := <-f.reads:
		return r.line, r.err
	case <-f.closed:
		return nil, network.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Send(ctx context.Context, cmd protocol.Command) error {
	select {
	case f.sent <- cmd:
		return nil
	case <-f.closed:
		return network.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeTransport) Status() network.Status {
	if f.connected.Load() {
		return network.Connected
	}
	return network.Disconnected
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

type lineRecorder struct {
	lines  []string
	closed bool
}

func (r *lineRecorder) WriteLine(line []byte) error {
	r.lines = append(r.lines, string(line))
	return nil
}

func (r *lineRecorder) Close() error {
	r.closed = true
	return nil
}

func bodyJSON(id int64, x, y float64) string {
	return fmt.Sprintf(`{"id":%d,"body_type":"Ship","radius_m":10,"x":%g,"y":%g,"vx":0,"vy":0}`, id, x, y)
}

func snapshotLine(simTime float64, bodies ...string) []byte {
	return []byte(fmt.Sprintf(`{"sim_time":%g,"planet_radius_m":6371000,"mu":3.986e14,"bodies":[%s]}`,
		simTime, strings.Join(bodies, ",")))
}

func newTestViewer(t *testing.T, opts Options) (*Viewer, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	if opts.Width == 0 {
		opts.Width, opts.Height = 900, 900
	}
	v, err := New(ft, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		v.Close(ctx)
	})
	return v, ft
}

func TestApply_VanishedEntityLosesTrailAndSelection(t *testing.T) {
	v, _ := newTestViewer(t, Options{})

	require.NoError(t, v.Apply(snapshotLine(0, bodyJSON(1, 8e6, 0), bodyJSON(2, 0, 9e6))))
	require.True(t, v.Camera().Established())

	pos := v.Camera().WorldToScreen(geom.V(0, 9e6))
	v.HandleInput(input.MouseDown{Button: input.ButtonLeft, Pos: pos})
	require.Equal(t, interaction.Entity(2), v.Controller().Selection())
	id, following := v.Camera().Following()
	require.True(t, following)
	require.Equal(t, int64(2), id)

	require.NoError(t, v.Apply(snapshotLine(1, bodyJSON(1, 8e6, 100))))

	assert.True(t, v.Trails().Has(1))
	assert.False(t, v.Trails().Has(2), "trail of vanished entity")
	assert.Len(t, v.Trails().Points(1), 2)
	assert.True(t, v.Controller().Selection().IsNone())
	_, following = v.Camera().Following()
	assert.False(t, following)

	f := v.Frame()
	assert.Len(t, f.Trails, 1)
	assert.Empty(t, f.Panels)
}

func TestApply_MalformedKeepsPreviousSnapshot(t *testing.T) {
	bus := event.NewEventBus()
	var rejected []string
	bus.Subscribe(event.SnapshotRejected, func(e event.Event) {
		rejected = append(rejected, e.(*event.SnapshotEvent).Reason)
	})
	v, _ := newTestViewer(t, Options{Events: bus})

	require.NoError(t, v.Apply(snapshotLine(3, bodyJSON(1, 8e6, 0))))
	before := v.Snapshot()

	tests := []struct {
		name string
		line string
	}{
		{"not json", `{"sim_time":`},
		{"missing bodies", `{"sim_time":4,"planet_radius_m":1,"mu":1}`},
		{"unknown body type", `{"sim_time":4,"planet_radius_m":1,"mu":1,"bodies":[{"id":1,"body_type":"Comet","x":0,"y":0,"vx":0,"vy":0}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Apply([]byte(tt.line))
			if !errors.Is(err, protocol.ErrMalformed) {
				t.Fatalf("Expected ErrMalformed, got %v", err)
			}
			if v.Snapshot() != before {
				t.Error("Expected previous snapshot to stay current")
			}
		})
	}

	assert.Equal(t, int64(len(tests)), v.Dropped())
	assert.Len(t, rejected, len(tests))
	assert.True(t, v.Trails().Has(1))
	assert.Contains(t, v.Frame().Status, fmt.Sprintf("%d dropped", len(tests)))
}

func TestMetrics(t *testing.T) {
	metrics, err := telemetry.New(telemetry.Config{})
	require.NoError(t, err)
	v, _ := newTestViewer(t, Options{CommandQueue: 1, MeterProvider: metrics.MeterProvider()})
	ctx := context.Background()

	require.NoError(t, v.Apply(snapshotLine(1, bodyJSON(1, 8e6, 0), bodyJSON(2, 9e6, 0))))
	require.Error(t, v.Apply([]byte(`{"sim_time":`)))
	require.Error(t, v.Apply([]byte(`[]`)))
	v.Dispatch(protocol.SetTimeScale{TimeScale: 10})
	v.Dispatch(protocol.SetTimeScale{TimeScale: 60})

	tests := []struct {
		name  string
		attrs []attribute.KeyValue
		want  int64
	}{
		{"viewer.snapshots.applied", nil, 1},
		{"viewer.lines.dropped", []attribute.KeyValue{attribute.String("reason", "malformed")}, 2},
		{"viewer.lines.dropped", []attribute.KeyValue{attribute.String("reason", "oversized")}, 0},
		{"viewer.commands.dispatched", []attribute.KeyValue{attribute.String("type", protocol.TypeSetTimeScale)}, 1},
		{"viewer.commands.dropped", nil, 1},
		{"viewer.trails.tracked", nil, 2},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.name, tt.attrs), func(t *testing.T) {
			got, err := metrics.Sum(ctx, tt.name, tt.attrs...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApply_ClockGoingBackwardsClearsTrails(t *testing.T) {
	bus := event.NewEventBus()
	resets := 0
	bus.Subscribe(event.SimulationReset, func(event.Event) { resets++ })
	v, _ := newTestViewer(t, Options{Events: bus})

	for i, x := range []float64{8e6, 8.1e6, 8.2e6} {
		require.NoError(t, v.Apply(snapshotLine(float64(10+i), bodyJSON(1, x, 0))))
	}
	require.Len(t, v.Trails().Points(1), 3)

	require.NoError(t, v.Apply(snapshotLine(0, bodyJSON(1, 8e6, 0))))
	assert.Len(t, v.Trails().Points(1), 1)
	assert.Equal(t, 1, resets)
}

func TestApply_Records(t *testing.T) {
	rec := &lineRecorder{}
	v, _ := newTestViewer(t, Options{Recorder: rec})

	good := snapshotLine(1, bodyJSON(1, 8e6, 0))
	require.NoError(t, v.Apply(good))
	require.Error(t, v.Apply([]byte("nope")))

	assert.Equal(t, []string{string(good)}, rec.lines)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, v.Close(ctx))
	assert.True(t, rec.closed)
}

func TestDispatch_FullQueueDrops(t *testing.T) {
	v, _ := newTestViewer(t, Options{CommandQueue: 1})

	if !v.Dispatch(protocol.SetTimeScale{TimeScale: 1}) {
		t.Fatal("Expected first command to be queued")
	}
	if v.Dispatch(protocol.SetTimeScale{TimeScale: 10}) {
		t.Error("Expected second command to be dropped")
	}
}

func TestPoll_ResendsTimeScaleAfterReconnect(t *testing.T) {
	bus := event.NewEventBus()
	v, _ := newTestViewer(t, Options{Events: bus})
	connected := event.NewConnectionEvent(event.TransportConnected, nil, "test", 1, nil)

	bus.Publish(connected)
	v.Poll()
	select {
	case cmd := <-v.commands:
		t.Fatalf("Expected no command before a time scale was picked, got %v", cmd)
	default:
	}

	v.HandleInput(input.Rune('2'))
	assert.Equal(t, protocol.Command(protocol.SetTimeScale{TimeScale: 10}), <-v.commands)

	bus.Publish(connected)
	v.Poll()
	select {
	case cmd := <-v.commands:
		assert.Equal(t, protocol.Command(protocol.SetTimeScale{TimeScale: 10}), cmd)
	default:
		t.Fatal("Expected the time scale to be sent again after reconnecting")
	}

	v.Poll()
	select {
	case cmd := <-v.commands:
		t.Errorf("Expected one resend per session, got %v", cmd)
	default:
	}
}

func TestStart_MovesLinesAndCommands(t *testing.T) {
	v, ft := newTestViewer(t, Options{})
	ft.connected.Store(true)
	require.NoError(t, v.Start(context.Background()))

	ft.reads <- readResult{err: fmt.Errorf("read: %w", network.ErrLineTooLong)}
	ft.reads <- readResult{line: snapshotLine(2, bodyJSON(1, 8e6, 0))}

	require.Eventually(t, func() bool {
		v.Poll()
		return v.Snapshot() != nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2.0, v.Snapshot().SimTime)
	assert.Equal(t, int64(1), v.Dropped(), "oversized line is counted")

	v.HandleInput(input.Rune('3'))
	select {
	case cmd := <-ft.sent:
		assert.Equal(t, protocol.SetTimeScale{TimeScale: 60}, cmd)
	case <-time.After(2 * time.Second):
		t.Fatal("Expected time scale command to reach the transport")
	}
}

func TestClose_StopsWorkers(t *testing.T) {
	v, _ := newTestViewer(t, Options{})
	require.NoError(t, v.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, v.Close(ctx))
	assert.Equal(t, int64(0), v.manager.GoroutineCount())
	require.NoError(t, v.Close(ctx), "second close")
}

func TestFrame(t *testing.T) {
	v, ft := newTestViewer(t, Options{})

	f := v.Frame()
	assert.Nil(t, f.Snapshot)
	assert.Contains(t, f.Status, "awaiting snapshot")
	assert.Contains(t, f.Status, "LINK DOWN")

	ft.connected.Store(true)
	require.NoError(t, v.Apply(snapshotLine(42, bodyJSON(1, 8e6, 0))))
	v.HandleInput(input.MouseDown{Button: input.ButtonLeft, Pos: v.Camera().WorldToScreen(geom.V(8e6, 0))})
	v.HandleInput(input.Resize{Width: 640, Height: 480})

	f = v.Frame()
	assert.True(t, f.Connected)
	assert.Equal(t, 640.0, f.Width)
	assert.Equal(t, 480.0, f.Orbit.Height)
	assert.Contains(t, f.Status, "LINK UP")
	assert.Contains(t, f.Status, "t=42.0 s")
	require.Len(t, f.Panels, 1)
	assert.Equal(t, "ID 1 (Ship)", f.Panels[0].Title)
	assert.True(t, f.IsFollowing)
	assert.Equal(t, int64(1), f.Following)
	assert.Nil(t, f.ModalPanel)

	f.Trails[1][0] = geom.V(0, 0)
	assert.Equal(t, geom.V(8e6, 0), v.Trails().Points(1)[0], "frame trails are copies")
}

type fakeFrontend struct {
	events chan input.Event
	draws  atomic.Int32
}

func (f *fakeFrontend) Events() <-chan input.Event { return f.events }
func (f *fakeFrontend) Draw(*Frame)                { f.draws.Add(1) }
func (f *fakeFrontend) Close() error               { return nil }

func TestRun(t *testing.T) {
	t.Run("quit", func(t *testing.T) {
		v, _ := newTestViewer(t, Options{FrameRate: 200})
		fe := &fakeFrontend{events: make(chan input.Event, 1)}
		fe.events <- input.Quit{}

		require.NoError(t, v.Run(context.Background(), fe))
		assert.GreaterOrEqual(t, fe.draws.Load(), int32(1))
	})

	t.Run("events closed", func(t *testing.T) {
		v, _ := newTestViewer(t, Options{})
		fe := &fakeFrontend{events: make(chan input.Event)}
		close(fe.events)

		require.NoError(t, v.Run(context.Background(), fe))
	})

	t.Run("cancelled", func(t *testing.T) {
		v, ft := newTestViewer(t, Options{FrameRate: 200})
		require.NoError(t, v.Start(context.Background()))
		fe := &fakeFrontend{events: make(chan input.Event)}
		ft.reads <- readResult{line: snapshotLine(1, bodyJSON(1, 8e6, 0))}

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		err := v.Run(ctx, fe)

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Greater(t, fe.draws.Load(), int32(1))
		assert.NotNil(t, v.Snapshot(), "ticks poll the line queue")
	})
}

func TestHealthChecks(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	v, ft := newTestViewer(t, Options{Clock: func() time.Time { return now }})

	failing := func() []string {
		var names []string
		for _, c := range v.HealthChecks() {
			if c.Check(context.Background()) != nil {
				names = append(names, c.Name())
			}
		}
		return names
	}

	assert.ElementsMatch(t, []string{"transport", "snapshot"}, failing())

	ft.connected.Store(true)
	require.NoError(t, v.Apply(snapshotLine(1, bodyJSON(1, 8e6, 0))))
	assert.Equal(t, now, v.LastSnapshot())
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Viewport.Width = 1024
	cfg.Viewport.Height = 768
	cfg.Trail.Length = 50
	cfg.Camera.FollowOnSelect = false

	opts := OptionsFromConfig(cfg)

	assert.Equal(t, 1024.0, opts.Width)
	assert.Equal(t, 768.0, opts.Height)
	assert.Equal(t, 50, opts.TrailLength)
	assert.False(t, opts.Interaction.FollowOnSelect)
	assert.Equal(t, cfg.Connection.CommandQueue, opts.CommandQueue)
	assert.Equal(t, float64(cfg.Interior.MarginPx), opts.Tiles.Margin)
	assert.Equal(t, cfg.Render.FrameRate, opts.FrameRate)
}
