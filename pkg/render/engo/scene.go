// pkg/render/engo/scene.go
package engo

import (
	"context"
	"sync"

	"github.com/EngoEngine/ecs"
	"github.com/EngoEngine/engo"
	"github.com/EngoEngine/engo/common"

	"github.com/opd-ai/ggw-viewer/pkg/input"
	"github.com/opd-ai/ggw-viewer/pkg/logging"
	"github.com/opd-ai/ggw-viewer/pkg/render"
	"github.com/opd-ai/ggw-viewer/pkg/viewer"
)

// Options configures the window.
type Options struct {
	Title  string
	Width  int
	Height int
	VSync  bool
	Style  *render.Style
	Logger *logging.Logger
}

// Run opens the window and blocks until it closes or ctx is cancelled.
// engo must own the main goroutine.
func Run(ctx context.Context, v *viewer.Viewer, opts Options) {
	engo.Run(engo.RunOptions{
		Title:  opts.Title,
		Width:  opts.Width,
		Height: opts.Height,
		VSync:  opts.VSync,
	}, NewScene(ctx, v, opts))
}

// Scene is the single engo scene of the viewer.
type Scene struct {
	ctx    context.Context
	viewer *viewer.Viewer
	opts   Options
	logger *logging.Logger
	assets *Assets

	input  *InputSystem
	frames *FrameSystem

	done     chan struct{}
	doneOnce sync.Once
}

// NewScene creates the scene for v. Cancelling ctx closes the window on
// the next frame.
func NewScene(ctx context.Context, v *viewer.Viewer, opts Options) *Scene {
	if opts.Style == nil {
		opts.Style = render.DefaultStyle()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Scene{
		ctx:    ctx,
		viewer: v,
		opts:   opts,
		logger: opts.Logger.With("component", "render", "frontend", "window"),
		assets: NewAssets(),
		done:   make(chan struct{}),
	}
}

// Type returns the scene type (required by Engo)
func (s *Scene) Type() string {
	return "ViewerScene"
}

// Preload registers the embedded HUD font (required by Engo)
func (s *Scene) Preload() {
	if err := PreloadFont(); err != nil {
		s.logger.Error(context.Background(), "preloading assets", err)
	}
}

// Setup builds the systems (required by Engo)
func (s *Scene) Setup(u engo.Updater) {
	ctx := context.Background()
	world, ok := u.(*ecs.World)
	if !ok {
		s.logger.Warn(ctx, "unexpected updater, closing window")
		s.quit()
		return
	}

	common.SetBackground(s.opts.Style.Color("bg"))
	rs := &common.RenderSystem{}
	world.AddSystem(rs)

	if err := s.assets.Load(); err != nil {
		s.logger.Error(ctx, "loading assets", err)
		s.quit()
		return
	}

	vp := NewViewport(engo.WindowWidth(), engo.WindowHeight(), centerCamera)
	vp.Listen()

	s.input = NewInputSystem(vp)
	s.input.Register()
	painter := NewPainter(NewShapes(rs, s.assets.Font()), s.opts.Style, s.assets.Sprite)
	s.frames = NewFrameSystem(s.ctx, s.viewer, s.input, painter, s.quit)

	world.AddSystem(s.input)
	world.AddSystem(s.frames)
	s.logger.Info(ctx, "window ready", "width", engo.WindowWidth(), "height", engo.WindowHeight())
}

// Exit is called by engo when the window is closing.
func (s *Scene) Exit() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Done is closed once the scene has exited.
func (s *Scene) Done() <-chan struct{} {
	return s.done
}

func (s *Scene) quit() {
	s.Exit()
	engo.Exit()
}

// EventSource supplies the input gathered for one frame.
type EventSource interface {
	Drain() []input.Event
}

// FrameSystem steps the viewer once per engo frame and paints the result.
// It runs after the InputSystem.
type FrameSystem struct {
	ctx     context.Context
	viewer  *viewer.Viewer
	events  EventSource
	painter *Painter
	quit    func()

	stopped bool
	frames  int64
}

// NewFrameSystem creates the system. quit is called once, when the
// operator asks to leave or ctx is cancelled.
func NewFrameSystem(ctx context.Context, v *viewer.Viewer, events EventSource, painter *Painter, quit func()) *FrameSystem {
	return &FrameSystem{ctx: ctx, viewer: v, events: events, painter: painter, quit: quit}
}

// Remove satisfies the ecs.System interface
func (fs *FrameSystem) Remove(basic ecs.BasicEntity) {}

// Update applies pending snapshots and input, then redraws.
func (fs *FrameSystem) Update(dt float32) {
	if fs.stopped {
		return
	}
	if fs.ctx.Err() != nil {
		fs.stopped = true
		fs.quit()
		return
	}
	frame, quit := fs.viewer.Step(fs.events.Drain())
	if quit {
		fs.stopped = true
		fs.quit()
		return
	}
	fs.painter.Paint(frame)
	fs.frames++
}

// Frames returns how many frames have been painted.
func (fs *FrameSystem) Frames() int64 {
	return fs.frames
}
