package resource

import (
	"context"
	"strings"
	"testing"
	"time"
)

func testOptions() Options {
	return Options{
		MaxGoroutines:   3,
		MaxMemoryMB:     1 << 20,
		ShutdownTimeout: 200 * time.Millisecond,
		CheckInterval:   10 * time.Millisecond,
	}
}

func TestManager_StartTwice(t *testing.T) {
	m := NewManager(testOptions())
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Shutdown(context.Background())

	if err := m.Start(); err == nil {
		t.Error("expected an error starting twice")
	}
}

func TestManager_StartGoroutine(t *testing.T) {
	m := NewManager(testOptions())
	ctx := context.Background()

	ran := make(chan struct{})
	if err := m.StartGoroutine(ctx, "worker", func(context.Context) { close(ran) }); err != nil {
		t.Fatalf("StartGoroutine failed: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("worker did not run")
	}

	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if got := m.GoroutineCount(); got != 0 {
		t.Errorf("expected 0 goroutines after shutdown, got %d", got)
	}
}

func TestManager_GoroutineLimit(t *testing.T) {
	m := NewManager(testOptions())
	ctx := context.Background()
	defer m.Shutdown(ctx)

	block := func(ctx context.Context) { <-ctx.Done() }
	for i := 0; i < 3; i++ {
		if err := m.StartGoroutine(ctx, "blocker", block); err != nil {
			t.Fatalf("StartGoroutine %d failed: %v", i, err)
		}
	}

	err := m.StartGoroutine(ctx, "one too many", block)
	if err == nil || !strings.Contains(err.Error(), "limit exceeded") {
		t.Errorf("expected limit error, got %v", err)
	}
	if got := m.GoroutineCount(); got != 3 {
		t.Errorf("expected 3 goroutines, got %d", got)
	}
}

func TestManager_ShutdownCancelsWorkers(t *testing.T) {
	m := NewManager(testOptions())
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cancelled := make(chan struct{})
	m.StartGoroutine(context.Background(), "reader", func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	})

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	select {
	case <-cancelled:
	default:
		t.Error("expected worker context to be cancelled by Shutdown")
	}

	if err := m.StartGoroutine(context.Background(), "late", func(context.Context) {}); err == nil {
		t.Error("expected an error starting work after shutdown")
	}
	if err := m.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown should be a no-op, got %v", err)
	}
}

func TestManager_ShutdownTimeout(t *testing.T) {
	m := NewManager(testOptions())
	release := make(chan struct{})
	defer close(release)

	m.StartGoroutine(context.Background(), "stuck", func(context.Context) { <-release })

	start := time.Now()
	err := m.Shutdown(context.Background())
	if err == nil || !strings.Contains(err.Error(), "shutdown timeout") {
		t.Fatalf("expected shutdown timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("shutdown was not bounded, took %v", elapsed)
	}
}

func TestManager_PanicRecovery(t *testing.T) {
	m := NewManager(testOptions())
	m.StartGoroutine(context.Background(), "faulty", func(context.Context) { panic("boom") })

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if got := m.Stats().Panics; got != 1 {
		t.Errorf("expected 1 recorded panic, got %d", got)
	}
	if err := NewHealthCheck(m).Check(context.Background()); err == nil {
		t.Error("expected health check to report the panic")
	}
}

func TestHealthCheck(t *testing.T) {
	m := NewManager(testOptions())
	defer m.Shutdown(context.Background())

	hc := NewHealthCheck(m)
	if hc.Name() != "workers" {
		t.Errorf("expected name workers, got %s", hc.Name())
	}
	if err := m.CheckMemoryUsage(); err != nil {
		t.Fatalf("CheckMemoryUsage failed: %v", err)
	}
	if err := hc.Check(context.Background()); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}
}
