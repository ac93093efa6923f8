// Package resource supervises the viewer's background workers: it recovers
// their panics, tracks how many are running and bounds how long shutdown
// may wait for them.
package resource

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/ggw-viewer/pkg/logging"
)

// Options configures a Manager.
type Options struct {
	MaxGoroutines   int
	MaxMemoryMB     int64
	ShutdownTimeout time.Duration
	CheckInterval   time.Duration
	Logger          *logging.Logger
}

// DefaultOptions returns limits sized for the viewer's handful of workers.
func DefaultOptions() Options {
	return Options{
		MaxGoroutines:   16,
		MaxMemoryMB:     1024,
		ShutdownTimeout: 2 * time.Second,
		CheckInterval:   10 * time.Second,
	}
}

// Manager tracks supervised goroutines and enables graceful shutdown.
type Manager struct {
	maxGoroutines   int64
	maxMemoryMB     int64
	shutdownTimeout time.Duration
	checkInterval   time.Duration

	goroutineCount int64
	memoryUsageMB  int64
	panics         int64

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	workers sync.WaitGroup
	mu      sync.RWMutex
	running bool
	stopped bool
	logger  *logging.Logger

	lastMemoryCheck time.Time
}

// NewManager creates a manager. Zero option fields take their defaults.
func NewManager(opts Options) *Manager {
	defaults := DefaultOptions()
	if opts.MaxGoroutines <= 0 {
		opts.MaxGoroutines = defaults.MaxGoroutines
	}
	if opts.MaxMemoryMB <= 0 {
		opts.MaxMemoryMB = defaults.MaxMemoryMB
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = defaults.CheckInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		maxGoroutines:   int64(opts.MaxGoroutines),
		maxMemoryMB:     opts.MaxMemoryMB,
		shutdownTimeout: opts.ShutdownTimeout,
		checkInterval:   opts.CheckInterval,
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
		logger:          opts.Logger.With("component", "resource"),
		lastMemoryCheck: time.Now(),
	}
}

// Start begins the resource monitoring loop.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.running || m.stopped {
		m.mu.Unlock()
		return fmt.Errorf("resource manager already started")
	}
	m.running = true
	m.mu.Unlock()

	go m.monitoringLoop()

	m.logger.Info(m.ctx, "resource manager started",
		"max_memory_mb", m.maxMemoryMB,
		"max_goroutines", m.maxGoroutines,
		"check_interval", m.checkInterval.String(),
	)
	return nil
}

// StartGoroutine runs fn in a supervised goroutine. The context passed to
// fn is cancelled when either ctx ends or Shutdown begins. A panic in fn is
// logged and counted; it does not take the process down.
func (m *Manager) StartGoroutine(ctx context.Context, name string, fn func(context.Context)) error {
	m.mu.RLock()
	stopped := m.stopped
	m.mu.RUnlock()
	if stopped {
		return fmt.Errorf("resource manager is shut down")
	}

	current := atomic.AddInt64(&m.goroutineCount, 1)
	if current > m.maxGoroutines {
		atomic.AddInt64(&m.goroutineCount, -1)
		m.logger.Warn(ctx, "goroutine limit exceeded",
			"current", current-1,
			"limit", m.maxGoroutines,
			"name", name,
		)
		return fmt.Errorf("goroutine limit exceeded: %d/%d", current-1, m.maxGoroutines)
	}

	wctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.ctx, cancel)

	m.workers.Add(1)
	go func() {
		defer m.workers.Done()
		defer atomic.AddInt64(&m.goroutineCount, -1)
		defer stop()
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				atomic.AddInt64(&m.panics, 1)
				m.logger.Error(ctx, "goroutine panic",
					fmt.Errorf("panic: %v", r),
					"name", name,
				)
			}
		}()

		m.logger.Debug(ctx, "goroutine started", "name", name)
		fn(wctx)
		m.logger.Debug(ctx, "goroutine finished", "name", name)
	}()

	return nil
}

// CheckMemoryUsage checks current memory usage against limits.
func (m *Manager) CheckMemoryUsage() error {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	currentMB := int64(ms.Alloc / 1024 / 1024)
	atomic.StoreInt64(&m.memoryUsageMB, currentMB)
	m.mu.Lock()
	m.lastMemoryCheck = time.Now()
	m.mu.Unlock()

	if currentMB > m.maxMemoryMB {
		return fmt.Errorf("memory usage %dMB exceeds limit %dMB", currentMB, m.maxMemoryMB)
	}
	return nil
}

// GoroutineCount returns the number of supervised goroutines still running.
func (m *Manager) GoroutineCount() int64 {
	return atomic.LoadInt64(&m.goroutineCount)
}

// Stats returns current resource usage statistics.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	last := m.lastMemoryCheck
	m.mu.RUnlock()
	return Stats{
		GoroutineCount:  m.GoroutineCount(),
		MaxGoroutines:   m.maxGoroutines,
		MemoryUsageMB:   atomic.LoadInt64(&m.memoryUsageMB),
		MaxMemoryMB:     m.maxMemoryMB,
		Panics:          atomic.LoadInt64(&m.panics),
		LastMemoryCheck: last,
	}
}

// Stats contains resource usage statistics.
type Stats struct {
	GoroutineCount  int64     `json:"goroutine_count"`
	MaxGoroutines   int64     `json:"max_goroutines"`
	MemoryUsageMB   int64     `json:"memory_usage_mb"`
	MaxMemoryMB     int64     `json:"max_memory_mb"`
	Panics          int64     `json:"panics"`
	LastMemoryCheck time.Time `json:"last_memory_check"`
}

// Shutdown cancels every supervised goroutine and waits for them, for at
// most the configured shutdown timeout or until ctx ends.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	wasRunning := m.running
	m.running = false
	m.mu.Unlock()

	m.logger.Info(ctx, "shutting down resource manager")
	m.cancel()

	shutdownCtx, cancel := context.WithTimeout(ctx, m.shutdownTimeout)
	defer cancel()

	if wasRunning {
		select {
		case <-m.done:
		case <-shutdownCtx.Done():
			m.logger.Warn(ctx, "resource monitoring loop did not stop gracefully")
		}
	}

	return m.waitForGoroutines(shutdownCtx)
}

// waitForGoroutines waits for all supervised goroutines or ctx.
func (m *Manager) waitForGoroutines(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		m.workers.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		m.logger.Info(ctx, "all supervised goroutines finished")
		return nil
	case <-ctx.Done():
		remaining := m.GoroutineCount()
		m.logger.Warn(ctx, "shutdown timeout exceeded with goroutines still running",
			"remaining", remaining,
		)
		return fmt.Errorf("shutdown timeout: %d goroutines still running", remaining)
	}
}

func (m *Manager) monitoringLoop() {
	defer close(m.done)

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performResourceChecks()
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) performResourceChecks() {
	if err := m.CheckMemoryUsage(); err != nil {
		m.logger.Error(m.ctx, "memory limit exceeded", err,
			"limit_mb", m.maxMemoryMB,
		)
	}
	m.logger.Debug(m.ctx, "resource usage check",
		"goroutines", m.GoroutineCount(),
		"memory_mb", atomic.LoadInt64(&m.memoryUsageMB),
	)
}
