// pkg/network/client_test.go
package network

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opd-ai/ggw-viewer/pkg/event"
	"github.com/opd-ai/ggw-viewer/pkg/protocol"
	"github.com/opd-ai/ggw-viewer/pkg/telemetry"
)

// pipeDialer hands out in-memory sessions and exposes the far end of each.
type pipeDialer struct {
	mu    sync.Mutex
	dials int
	fail  int // fail the first n dials
	peers chan net.Conn
}

func newPipeDialer(fail int) *pipeDialer {
	return &pipeDialer{fail: fail, peers: make(chan net.Conn, 8)}
}

func (d *pipeDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	d.mu.Lock()
	d.dials++
	n := d.dials
	d.mu.Unlock()

	if n <= d.fail {
		return nil, errors.New("connection refused")
	}
	client, server := net.Pipe()
	d.peers <- server
	return client, nil
}

func (d *pipeDialer) String() string { return "pipe" }

func (d *pipeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *pipeDialer) peer(t *testing.T) net.Conn {
	t.Helper()
	select {
	case p := <-d.peers:
		t.Cleanup(func() { p.Close() })
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no session was dialed")
		return nil
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.RetryInterval = 5 * time.Millisecond
	opts.Breaker.ConsecutiveFailures = 100
	return opts
}

func newTestClient(t *testing.T, d Dialer, opts Options) *Client {
	t.Helper()
	c, err := NewClient(d, opts)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_ReadLine(t *testing.T) {
	d := newPipeDialer(0)
	c := newTestClient(t, d, testOptions())
	ctx := context.Background()

	if c.Status() != Disconnected {
		t.Fatalf("expected disconnected before first use, got %v", c.Status())
	}
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if c.Status() != Connected {
		t.Fatalf("expected connected, got %v", c.Status())
	}

	peer := d.peer(t)
	go io.WriteString(peer, "{\"a\":1}\n\n\r\n{\"b\":2}\r\n")

	want := []string{`{"a":1}`, `{"b":2}`}
	for _, w := range want {
		line, err := c.ReadLine(ctx)
		if err != nil {
			t.Fatalf("ReadLine failed: %v", err)
		}
		if string(line) != w {
			t.Errorf("expected %q, got %q", w, line)
		}
	}
}

func TestClient_ReconnectsAfterEOF(t *testing.T) {
	d := newPipeDialer(0)
	c := newTestClient(t, d, testOptions())

	var connected, disconnected atomic.Int32
	c.Events().Subscribe(event.TransportConnected, func(event.Event) { connected.Add(1) })
	c.Events().Subscribe(event.TransportDisconnected, func(event.Event) { disconnected.Add(1) })

	go func() {
		p1 := <-d.peers
		io.WriteString(p1, "first\n")
		p1.Close()
		p2 := <-d.peers
		io.WriteString(p2, "second\n")
	}()

	ctx := context.Background()
	for _, want := range []string{"first", "second"} {
		line, err := c.ReadLine(ctx)
		if err != nil {
			t.Fatalf("ReadLine failed: %v", err)
		}
		if string(line) != want {
			t.Errorf("expected %q, got %q", want, line)
		}
	}

	if got := connected.Load(); got != 2 {
		t.Errorf("expected 2 connected events, got %d", got)
	}
	if got := disconnected.Load(); got != 1 {
		t.Errorf("expected 1 disconnected event, got %d", got)
	}
}

func TestClient_Metrics(t *testing.T) {
	metrics, err := telemetry.New(telemetry.Config{})
	if err != nil {
		t.Fatalf("telemetry.New failed: %v", err)
	}
	d := newPipeDialer(1)
	opts := testOptions()
	opts.MeterProvider = metrics.MeterProvider()
	c := newTestClient(t, d, opts)

	go func() {
		p1 := <-d.peers
		io.WriteString(p1, "first\n")
		p1.Close()
		p2 := <-d.peers
		io.WriteString(p2, "second\n")
	}()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := c.ReadLine(ctx); err != nil {
			t.Fatalf("ReadLine failed: %v", err)
		}
	}

	tests := []struct {
		name string
		want int64
	}{
		{"transport.dial.attempts", 3},
		{"transport.reconnects", 1},
		{"transport.lines.read", 2},
		{"transport.lines.oversized", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := metrics.Sum(ctx, tt.name)
			if err != nil {
				t.Fatalf("Sum failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestClient_SendRetransmitsOnceAfterReconnect(t *testing.T) {
	d := newPipeDialer(0)
	c := newTestClient(t, d, testOptions())
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	first := d.peer(t)
	first.Close()

	errc := make(chan error, 1)
	go func() { errc <- c.Send(ctx, protocol.SetTimeScale{TimeScale: 60}) }()

	second := d.peer(t)
	r := bufio.NewReader(second)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("reading retransmitted command: %v", err)
	}
	cmd, err := protocol.DecodeCommand([]byte(line))
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	if ts, ok := cmd.(protocol.SetTimeScale); !ok || ts.TimeScale != 60 {
		t.Errorf("expected set_time_scale 60, got %#v", cmd)
	}

	if err := <-errc; err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	second.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if _, err := r.ReadByte(); err == nil {
		t.Error("expected exactly one transmission after reconnect")
	}
}

func TestClient_ConnectRetriesWithFixedBackoff(t *testing.T) {
	d := newPipeDialer(2)
	c := newTestClient(t, d, testOptions())

	var retries []int
	var mu sync.Mutex
	c.Events().Subscribe(event.TransportRetrying, func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		retries = append(retries, e.(*event.ConnectionEvent).Attempt)
	})

	start := time.Now()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	elapsed := time.Since(start)

	if got := d.dialCount(); got != 3 {
		t.Errorf("expected 3 dial attempts, got %d", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("expected retry attempts [1 2], got %v", retries)
	}
	if elapsed < 10*time.Millisecond {
		t.Errorf("expected two backoff waits, returned after %v", elapsed)
	}
}

func TestClient_TrippedBreakerKeepsRetryPace(t *testing.T) {
	d := newPipeDialer(5)
	opts := DefaultOptions()
	opts.RetryInterval = 10 * time.Millisecond
	c := newTestClient(t, d, opts)

	if got := c.opts.Breaker.Timeout; got != opts.RetryInterval {
		t.Errorf("Expected breaker timeout clamped to %v, got %v", opts.RetryInterval, got)
	}

	var retries atomic.Int32
	c.Events().Subscribe(event.TransportRetrying, func(event.Event) { retries.Add(1) })

	start := time.Now()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	elapsed := time.Since(start)

	if got := d.dialCount(); got != 6 {
		t.Errorf("Expected 6 real dials, got %d", got)
	}
	if got := retries.Load(); got != 5 {
		t.Errorf("Expected one retry event per real dial failure (5), got %d", got)
	}
	if elapsed > time.Second {
		t.Errorf("Expected reconnect within a few retry intervals, took %v", elapsed)
	}
}

func TestClient_ConnectHonoursContext(t *testing.T) {
	d := newPipeDialer(1 << 30)
	c := newTestClient(t, d, testOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := c.Connect(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestClient_Close(t *testing.T) {
	t.Run("wakes blocked read", func(t *testing.T) {
		d := newPipeDialer(0)
		c := newTestClient(t, d, testOptions())
		if err := c.Connect(context.Background()); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		d.peer(t)

		errc := make(chan error, 1)
		go func() {
			_, err := c.ReadLine(context.Background())
			errc <- err
		}()
		time.Sleep(10 * time.Millisecond)
		c.Close()

		select {
		case err := <-errc:
			if !errors.Is(err, ErrClosed) {
				t.Errorf("expected ErrClosed, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("ReadLine did not return after Close")
		}
	})

	t.Run("wakes retry loop", func(t *testing.T) {
		d := newPipeDialer(1 << 30)
		c := newTestClient(t, d, testOptions())

		errc := make(chan error, 1)
		go func() { errc <- c.Connect(context.Background()) }()
		time.Sleep(20 * time.Millisecond)
		c.Close()

		select {
		case err := <-errc:
			if !errors.Is(err, ErrClosed) {
				t.Errorf("expected ErrClosed, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Connect did not return after Close")
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		c := newTestClient(t, newPipeDialer(0), testOptions())
		if err := c.Close(); err != nil {
			t.Fatalf("first Close failed: %v", err)
		}
		if err := c.Close(); err != nil {
			t.Fatalf("second Close failed: %v", err)
		}
		if err := c.Connect(context.Background()); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed after Close, got %v", err)
		}
		if err := c.Send(context.Background(), protocol.ToggleSleep{}); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed from Send, got %v", err)
		}
	})
}

func TestClient_CancelledReadKeepsSession(t *testing.T) {
	d := newPipeDialer(0)
	c := newTestClient(t, d, testOptions())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	peer := d.peer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.ReadLine(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if c.Status() != Connected {
		t.Fatalf("expected session to survive a cancelled read, got %v", c.Status())
	}

	go io.WriteString(peer, "late\n")
	line, err := c.ReadLine(context.Background())
	if err != nil {
		t.Fatalf("ReadLine failed: %v", err)
	}
	if string(line) != "late" {
		t.Errorf("expected %q, got %q", "late", line)
	}
	if got := d.dialCount(); got != 1 {
		t.Errorf("expected a single session, dialed %d times", got)
	}
}

func TestClient_OversizedLine(t *testing.T) {
	d := newPipeDialer(0)
	opts := testOptions()
	opts.MaxLineBytes = 16
	c := newTestClient(t, d, opts)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	peer := d.peer(t)
	go io.WriteString(peer, strings.Repeat("x", 40)+"\nok\n")

	if _, err := c.ReadLine(context.Background()); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("expected ErrLineTooLong, got %v", err)
	}
	line, err := c.ReadLine(context.Background())
	if err != nil {
		t.Fatalf("ReadLine failed: %v", err)
	}
	if string(line) != "ok" {
		t.Errorf("expected %q, got %q", "ok", line)
	}
	if c.Status() != Connected {
		t.Error("an oversized line must not drop the session")
	}
}

func TestClient_StaleDropIgnored(t *testing.T) {
	d := newPipeDialer(0)
	c := newTestClient(t, d, testOptions())
	ctx := context.Background()

	old, err := c.current(ctx)
	if err != nil {
		t.Fatalf("current failed: %v", err)
	}
	d.peer(t)
	c.drop(old, errors.New("broken"))

	fresh, err := c.current(ctx)
	if err != nil {
		t.Fatalf("current failed: %v", err)
	}
	d.peer(t)
	if fresh.gen <= old.gen {
		t.Fatalf("expected a newer generation, got %d after %d", fresh.gen, old.gen)
	}

	c.drop(old, errors.New("late failure report"))
	if c.Status() != Connected {
		t.Error("a failure on an old session must not tear down the new one")
	}
}

func TestTCPDialer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.WriteString(conn, "{\"sim_time\":0}\n")
		bufio.NewReader(conn).ReadString('\n')
	}()

	dialer := TCPDialer{Address: ln.Addr().String(), Timeout: time.Second}
	if dialer.String() != ln.Addr().String() {
		t.Errorf("expected %s, got %s", ln.Addr(), dialer.String())
	}
	c := newTestClient(t, dialer, testOptions())

	line, err := c.ReadLine(context.Background())
	if err != nil {
		t.Fatalf("ReadLine failed: %v", err)
	}
	if string(line) != `{"sim_time":0}` {
		t.Errorf("unexpected line %q", line)
	}
	if err := c.Send(context.Background(), protocol.MovePawn{DX: 1}); err != nil {
		t.Errorf("Send failed: %v", err)
	}
}
