// pkg/network/replay.go
package network

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/ggw-viewer/pkg/logging"
	"github.com/opd-ai/ggw-viewer/pkg/protocol"
	"github.com/opd-ai/ggw-viewer/pkg/validation"
)

// ReplayOptions configures a ReplayServer.
type ReplayOptions struct {
	Interval          time.Duration
	Loop              bool
	MaxClients        int
	CommandsPerMinute int
	Logger            *logging.Logger
	MeterProvider     metric.MeterProvider
}

// DefaultReplayOptions streams ten frames per second and loops forever.
func DefaultReplayOptions() ReplayOptions {
	return ReplayOptions{
		Interval:          100 * time.Millisecond,
		Loop:              true,
		MaxClients:        8,
		CommandsPerMinute: validation.MaxCommandsPerMin,
	}
}

// ReplayServer stands in for the simulation: it streams a recorded
// sequence of snapshot lines to every client and logs the commands they
// send back.
type ReplayServer struct {
	frames    [][]byte
	opts      ReplayOptions
	logger    *logging.Logger
	validator *validation.LineValidator
	metrics   *replayMetrics

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewReplayServer creates a server for the given frames.
func NewReplayServer(frames [][]byte, opts ReplayOptions) (*ReplayServer, error) {
	if len(frames) == 0 {
		return nil, errors.New("replay: recording has no frames")
	}
	defaults := DefaultReplayOptions()
	if opts.Interval <= 0 {
		opts.Interval = defaults.Interval
	}
	if opts.MaxClients <= 0 {
		opts.MaxClients = defaults.MaxClients
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	metrics, err := newReplayMetrics(opts.MeterProvider)
	if err != nil {
		return nil, err
	}
	return &ReplayServer{
		frames:    frames,
		opts:      opts,
		logger:    opts.Logger.With("component", "replay"),
		validator: validation.NewLineValidator(validation.MaxCommandSize, opts.CommandsPerMinute),
		metrics:   metrics,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// ListenAndServe listens on address and serves until ctx ends.
func (s *ReplayServer) ListenAndServe(ctx context.Context, address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to start replay server: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends, then closes every client
// and waits for their handlers.
func (s *ReplayServer) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info(ctx, "replay server started",
		"address", ln.Addr().String(),
		"frames", len(s.frames),
		"interval", s.opts.Interval.String(),
	)

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer s.validator.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.closeAll()
				s.wg.Wait()
				s.logger.Info(context.Background(), "replay server stopped")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				s.closeAll()
				s.wg.Wait()
				return err
			}
			s.logger.Warn(ctx, "error accepting connection", "error", err)
			continue
		}

		if !s.track(conn) {
			s.logger.Warn(ctx, "rejecting connection, server full", "peer", conn.RemoteAddr().String())
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConnection(ctx, conn)
		}()
	}
}

func (s *ReplayServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) >= s.opts.MaxClients {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *ReplayServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *ReplayServer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

// handleConnection streams frames and reads commands until either side
// gives up.
func (s *ReplayServer) handleConnection(ctx context.Context, conn net.Conn) {
	peer := conn.RemoteAddr().String()
	ctx = logging.WithCorrelationID(ctx, logging.GenerateCorrelationID())
	s.logger.Info(ctx, "client connected", "peer", peer)
	s.metrics.clientsActive.Add(context.Background(), 1)
	defer s.metrics.clientsActive.Add(context.Background(), -1)

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { conn.Close() })
	defer stop()

	g.Go(func() error { return s.stream(gctx, conn) })
	g.Go(func() error { return s.receive(gctx, conn, peer) })

	if err := g.Wait(); err != nil && !errors.Is(err, io.EOF) && ctx.Err() == nil {
		s.logger.Debug(ctx, "client session ended", "peer", peer, "error", err)
	}
	s.logger.Info(ctx, "client disconnected", "peer", peer)
}

// stream writes one frame per interval.
func (s *ReplayServer) stream(ctx context.Context, w io.Writer) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for i := 0; ; {
		if _, err := w.Write(s.frames[i]); err != nil {
			return fmt.Errorf("writing frame %d: %w", i, err)
		}
		s.metrics.framesSent.Add(context.Background(), 1)
		i++
		if i == len(s.frames) {
			if !s.opts.Loop {
				return nil
			}
			i = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// receive decodes and logs inbound commands. Malformed commands are logged
// and skipped.
func (s *ReplayServer) receive(ctx context.Context, r io.Reader, peer string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024), validation.MaxCommandSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := s.validator.ValidateLine(line, peer); err != nil {
			s.logger.Warn(ctx, "rejected command", "peer", peer, "error", err)
			s.metrics.commandsRejected.Add(context.Background(), 1)
			continue
		}
		cmd, err := protocol.DecodeCommand(line)
		if err != nil {
			s.logger.Warn(ctx, "undecodable command", "peer", peer, "error", err)
			s.metrics.commandsRejected.Add(context.Background(), 1)
			continue
		}
		s.metrics.commandsReceived.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("type", cmd.Type())))
		s.logger.Info(ctx, "command received", "peer", peer, "type", cmd.Type(), "command", fmt.Sprintf("%+v", cmd))
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// LoadRecording reads a recording of snapshot lines. Files ending in .zst
// are zstd-compressed. Blank lines are skipped; every frame is returned
// with its trailing newline.
func LoadRecording(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening recording: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if isCompressed(path) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	return readFrames(r)
}

func readFrames(r io.Reader) ([][]byte, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), validation.DefaultMaxLineSize)

	var frames [][]byte
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		frame := make([]byte, len(line)+1)
		copy(frame, line)
		frame[len(line)] = '\n'
		frames = append(frames, frame)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading recording: %w", err)
	}
	if len(frames) == 0 {
		return nil, errors.New("replay: recording has no frames")
	}
	return frames, nil
}

func isCompressed(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".zst")
}

// Recorder appends inbound lines to a recording file that LoadRecording
// can read back.
type Recorder struct {
	f   *os.File
	w   *bufio.Writer
	enc *zstd.Encoder
	mu  sync.Mutex
}

// CreateRecording creates (or truncates) a recording at path. A .zst
// suffix selects zstd compression.
func CreateRecording(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating recording: %w", err)
	}
	rec := &Recorder{f: f}
	var w io.Writer = f
	if isCompressed(path) {
		enc, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		rec.enc = enc
		w = enc
	}
	rec.w = bufio.NewWriter(w)
	return rec, nil
}

// WriteLine appends one line.
func (r *Recorder) WriteLine(line []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.w.Write(line); err != nil {
		return err
	}
	return r.w.WriteByte('\n')
}

// Close flushes and closes the recording.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.w.Flush()
	if r.enc != nil {
		err = errors.Join(err, r.enc.Close())
	}
	return errors.Join(err, r.f.Close())
}
