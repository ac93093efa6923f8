// pkg/network/client.go

// Package network carries the line-delimited JSON channel between the viewer
// and the simulation: a reconnecting client, the dialers it can use and a
// replay server that streams recorded snapshots.
package network

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/opd-ai/ggw-viewer/pkg/event"
	"github.com/opd-ai/ggw-viewer/pkg/logging"
	"github.com/opd-ai/ggw-viewer/pkg/protocol"
	"github.com/opd-ai/ggw-viewer/pkg/validation"
)

var (
	// ErrClosed is returned by every blocking call once Close has been called.
	ErrClosed = errors.New("network: client closed")

	// ErrLineTooLong reports an inbound line that exceeded the size limit and
	// was discarded. The session stays up.
	ErrLineTooLong = errors.New("network: line too long")
)

// Status is the connection state of a Client.
type Status int

const (
	Disconnected Status = iota
	Connected
)

func (s Status) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Options configures a Client.
type Options struct {
	RetryInterval time.Duration
	ReadTimeout   time.Duration // zero disables the per-read deadline
	WriteTimeout  time.Duration
	MaxLineBytes  int
	Breaker       BreakerOptions
	Logger        *logging.Logger
	Events        *event.Bus
	MeterProvider metric.MeterProvider // nil uses the global provider
}

// DefaultOptions returns the client settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		RetryInterval: time.Second,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  5 * time.Second,
		MaxLineBytes:  validation.DefaultMaxLineSize,
		Breaker:       DefaultBreakerOptions(),
	}
}

// Client owns at most one live session with the simulation and replaces it
// transparently when it breaks.
type Client struct {
	dialer  Dialer
	address string
	opts    Options
	logger  *logging.Logger
	events  *event.Bus
	guard   *DialGuard
	metrics *transportMetrics

	base   context.Context
	cancel context.CancelFunc

	// dialing is a one-slot semaphore serializing session establishment.
	dialing chan struct{}
	writeMu sync.Mutex

	mu       sync.Mutex
	sess     *session
	gen      uint64
	attempts int
	closed   bool
}

type session struct {
	conn io.ReadWriteCloser
	r    *bufio.Reader
	gen  uint64
	ctx  context.Context

	// partial holds the bytes of a line interrupted by a cancelled read.
	partial    []byte
	discarding bool

	closeOnce sync.Once
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// aLongTimeAgo is a past deadline used to unblock pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

// NewClient creates a client that obtains sessions from dialer. No
// connection is attempted until the first Connect, ReadLine or Send.
func NewClient(dialer Dialer, opts Options) (*Client, error) {
	defaults := DefaultOptions()
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaults.RetryInterval
	}
	// An open breaker must be half-open again by the next retry.
	if opts.Breaker.Timeout <= 0 || opts.Breaker.Timeout > opts.RetryInterval {
		opts.Breaker.Timeout = opts.RetryInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaults.WriteTimeout
	}
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = defaults.MaxLineBytes
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Events == nil {
		opts.Events = event.NewEventBus()
	}

	metrics, err := newTransportMetrics(opts.MeterProvider)
	if err != nil {
		return nil, err
	}

	address := describe(dialer)
	base, cancel := context.WithCancel(context.Background())
	return &Client{
		dialer:  dialer,
		address: address,
		opts:    opts,
		logger:  opts.Logger.With("component", "transport", "address", address),
		events:  opts.Events,
		guard:   NewDialGuard("ggw-transport", opts.Breaker, opts.Logger),
		metrics: metrics,
		base:    base,
		cancel:  cancel,
		dialing: make(chan struct{}, 1),
	}, nil
}

// Events returns the bus on which transport status changes are published.
func (c *Client) Events() *event.Bus {
	return c.events
}

// Status reports whether a session is currently live.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		return Connected
	}
	return Disconnected
}

// Guard exposes the dial circuit breaker for health reporting.
func (c *Client) Guard() *DialGuard {
	return c.guard
}

// Connect blocks until a session exists. It returns nil, ctx.Err() or
// ErrClosed.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.current(ctx)
	return err
}

// ReadLine returns the next non-empty line without its delimiter. Broken
// sessions are replaced and the read retried; the caller only sees latency.
// A line over the size limit is discarded and reported as ErrLineTooLong.
func (c *Client) ReadLine(ctx context.Context) ([]byte, error) {
	for {
		s, err := c.current(ctx)
		if err != nil {
			return nil, err
		}

		line, err := c.readFrom(ctx, s)
		switch {
		case err == nil:
			if len(line) == 0 {
				continue
			}
			c.metrics.linesRead.Add(context.Background(), 1)
			return line, nil
		case errors.Is(err, ErrLineTooLong):
			c.metrics.linesOversized.Add(context.Background(), 1)
			c.logger.Warn(s.ctx, "discarded oversized line", "max_bytes", c.opts.MaxLineBytes)
			return nil, err
		case c.isClosed():
			return nil, ErrClosed
		case ctx.Err() != nil:
			return nil, ctx.Err()
		}

		c.drop(s, err)
	}
}

// Send writes cmd as one line. If the write fails the session is replaced
// and the same bytes are written again, once per new session, until the
// write succeeds or ctx ends.
func (c *Client) Send(ctx context.Context, cmd protocol.Command) error {
	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return fmt.Errorf("sending command: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for {
		s, err := c.current(ctx)
		if err != nil {
			return err
		}

		err = c.writeTo(ctx, s, data)
		if err == nil {
			c.metrics.commandsWritten.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("type", cmd.Type())))
			return nil
		}
		if c.isClosed() {
			return ErrClosed
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.drop(s, err)
	}
}

// Close tears down the current session and wakes every blocked call.
// It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s := c.sess
	c.sess = nil
	c.mu.Unlock()

	c.cancel()
	if s != nil {
		s.close()
	}

	c.logger.Info(context.Background(), "transport closed")
	c.events.Publish(event.NewConnectionEvent(event.TransportClosed, c, c.address, 0, nil))
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// live returns the current session, or ErrClosed once the client is closed.
func (c *Client) live() (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.sess, nil
}

// current returns the live session, establishing one if needed.
func (c *Client) current(ctx context.Context) (*session, error) {
	if s, err := c.live(); s != nil || err != nil {
		return s, err
	}

	select {
	case c.dialing <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.base.Done():
		return nil, ErrClosed
	}
	defer func() { <-c.dialing }()

	for {
		// Another caller may have connected while we waited for the slot.
		if s, err := c.live(); s != nil || err != nil {
			return s, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		conn, attempt, err := c.dial(ctx)
		if err == nil {
			return c.install(conn)
		}
		if c.isClosed() {
			return nil, ErrClosed
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == 0 {
			// Rejected by the breaker without dialing.
			if err := c.waitRetry(ctx); err != nil {
				return nil, err
			}
			continue
		}

		c.logger.Warn(c.base, "connection attempt failed",
			"attempt", attempt,
			"error", err,
			"retry_in", c.opts.RetryInterval.String(),
		)
		c.events.Publish(event.NewConnectionEvent(event.TransportRetrying, c, c.address, attempt, err))

		if err := c.waitRetry(ctx); err != nil {
			return nil, err
		}
	}
}

func (c *Client) nextAttempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	return c.attempts
}

// waitRetry sleeps for the retry interval unless ctx ends or the client closes.
func (c *Client) waitRetry(ctx context.Context) error {
	timer := time.NewTimer(c.opts.RetryInterval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.base.Done():
		return ErrClosed
	}
}

// dial runs one attempt through the circuit breaker. The attempt is
// cancelled when either ctx ends or the client closes. The returned attempt
// number is zero when the breaker rejected the call before the dialer ran.
func (c *Client) dial(ctx context.Context) (io.ReadWriteCloser, int, error) {
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.base, cancel)
	defer stop()

	var (
		conn    io.ReadWriteCloser
		attempt int
	)
	err := c.guard.Execute(dctx, func() error {
		attempt = c.nextAttempt()
		c.metrics.dialAttempts.Add(context.Background(), 1)
		c.events.Publish(event.NewConnectionEvent(event.TransportConnecting, c, c.address, attempt, nil))

		var err error
		conn, err = c.dialer.Dial(dctx)
		return err
	})
	if err != nil {
		return nil, attempt, err
	}
	return conn, attempt, nil
}

// install makes conn the live session.
func (c *Client) install(conn io.ReadWriteCloser) (*session, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return nil, ErrClosed
	}
	c.gen++
	s := &session{
		conn: conn,
		r:    bufio.NewReaderSize(conn, 64<<10),
		gen:  c.gen,
		ctx:  logging.WithCorrelationID(c.base, logging.GenerateCorrelationID()),
	}
	c.sess = s
	attempts := c.attempts
	c.attempts = 0
	c.mu.Unlock()

	if s.gen > 1 {
		c.metrics.reconnects.Add(context.Background(), 1)
	}
	c.logger.Info(s.ctx, "connected", "generation", s.gen, "attempts", attempts)
	c.events.Publish(event.NewConnectionEvent(event.TransportConnected, c, c.address, attempts, nil))
	return s, nil
}

// drop closes s and, if it is still the live session, clears it. A failure
// reported against an older generation leaves the newer session alone.
func (c *Client) drop(s *session, cause error) {
	c.mu.Lock()
	if c.sess == nil || c.sess.gen != s.gen {
		c.mu.Unlock()
		s.close()
		return
	}
	c.sess = nil
	c.mu.Unlock()

	s.close()
	c.logger.Warn(s.ctx, "session lost", "generation", s.gen, "error", cause)
	c.events.Publish(event.NewConnectionEvent(event.TransportDisconnected, c, c.address, 0, cause))
}

// readFrom reads one line from s, honouring ctx and the read timeout.
func (c *Client) readFrom(ctx context.Context, s *session) ([]byte, error) {
	c.setReadDeadline(s)

	stop := context.AfterFunc(ctx, func() {
		if d, ok := s.conn.(readDeadliner); ok {
			_ = d.SetReadDeadline(aLongTimeAgo)
			return
		}
		// Without deadlines the only way to unblock the read is to close.
		c.drop(s, context.Cause(ctx))
	})
	defer stop()

	return s.readLine(c.opts.MaxLineBytes)
}

func (c *Client) setReadDeadline(s *session) {
	d, ok := s.conn.(readDeadliner)
	if !ok {
		return
	}
	var deadline time.Time
	if c.opts.ReadTimeout > 0 {
		deadline = time.Now().Add(c.opts.ReadTimeout)
	}
	_ = d.SetReadDeadline(deadline)
}

// writeTo writes data to s, honouring ctx and the write timeout.
func (c *Client) writeTo(ctx context.Context, s *session, data []byte) error {
	if d, ok := s.conn.(writeDeadliner); ok {
		_ = d.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}

	stop := context.AfterFunc(ctx, func() {
		if d, ok := s.conn.(writeDeadliner); ok {
			_ = d.SetWriteDeadline(aLongTimeAgo)
			return
		}
		c.drop(s, context.Cause(ctx))
	})
	defer stop()

	n, err := s.conn.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	return err
}

// readLine returns the next line with its delimiter and any trailing
// carriage return removed. Lines over max bytes are consumed and reported
// as ErrLineTooLong. An interrupted read keeps the bytes seen so far.
func (s *session) readLine(max int) ([]byte, error) {
	for {
		frag, err := s.r.ReadSlice('\n')
		if !s.discarding {
			if len(s.partial)+len(frag) > max+2 {
				s.discarding = true
				s.partial = s.partial[:0]
			} else {
				s.partial = append(s.partial, frag...)
			}
		}

		switch {
		case err == nil:
			line := bytes.TrimRight(s.partial, "\r\n")
			tooLong := s.discarding || len(line) > max
			s.discarding = false
			s.partial = s.partial[:0]
			if tooLong {
				return nil, fmt.Errorf("%w: limit %d bytes", ErrLineTooLong, max)
			}
			return append([]byte(nil), line...), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return nil, err
		}
	}
}
