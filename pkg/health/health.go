// Package health serves the viewer's optional status endpoint: a liveness
// check and a readiness check that reports whether the simulation link is
// up and snapshots are still arriving.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/opd-ai/ggw-viewer/pkg/logging"
)

// HealthCheck defines the interface for individual health checks.
type HealthCheck interface {
	// Name returns the unique name of this health check
	Name() string
	// Check performs the health check and returns an error if unhealthy
	Check(ctx context.Context) error
}

// HealthStatus represents the overall health status of the viewer.
type HealthStatus struct {
	Status string                     `json:"status"`
	Checks map[string]ComponentHealth `json:"checks"`
}

// ComponentHealth represents the health status of an individual component.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthChecker manages and executes health checks.
type HealthChecker struct {
	checks map[string]HealthCheck
	routes map[string]http.Handler
	mu     sync.RWMutex
}

// NewHealthChecker creates a new health checker instance.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]HealthCheck),
		routes: make(map[string]http.Handler),
	}
}

// Handle serves h at pattern next to the health endpoints, for example metrics.
// Routes must be added before Handler or Serve is called.
func (hc *HealthChecker) Handle(pattern string, h http.Handler) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.routes[pattern] = h
}

// AddCheck registers a health check, replacing any with the same name.
func (hc *HealthChecker) AddCheck(check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[check.Name()] = check
}

// RemoveCheck removes a health check by name.
func (hc *HealthChecker) RemoveCheck(name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	delete(hc.checks, name)
}

// Names lists the registered checks in order.
func (hc *HealthChecker) Names() []string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckHealth executes all registered health checks. The overall status is
// "healthy" only if every check passes.
func (hc *HealthChecker) CheckHealth(ctx context.Context) HealthStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	status := HealthStatus{
		Status: "healthy",
		Checks: make(map[string]ComponentHealth),
	}

	for name, check := range hc.checks {
		if err := check.Check(ctx); err != nil {
			status.Status = "unhealthy"
			status.Checks[name] = ComponentHealth{
				Status:  "unhealthy",
				Message: err.Error(),
			}
		} else {
			status.Checks[name] = ComponentHealth{
				Status: "healthy",
			}
		}
	}

	return status
}

// LivenessHandler returns 200 whenever the process can answer at all.
func (hc *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// ReadinessHandler runs every check and returns 200 when all pass, 503
// otherwise.
func (hc *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := hc.CheckHealth(ctx)

	w.Header().Set("Content-Type", "application/json")
	if health.Status == "healthy" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}

// Handler routes /healthz to the liveness check and /readyz to readiness.
func (hc *HealthChecker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", hc.LivenessHandler)
	mux.HandleFunc("GET /readyz", hc.ReadinessHandler)

	hc.mu.RLock()
	defer hc.mu.RUnlock()
	for pattern, h := range hc.routes {
		mux.Handle(pattern, h)
	}
	return mux
}

// Serve runs the status endpoint on addr until ctx ends.
func (hc *HealthChecker) Serve(ctx context.Context, addr string, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Discard()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           hc.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info(ctx, "status endpoint listening", "addr", addr)

	select {
	case err := <-errc:
		return fmt.Errorf("status endpoint: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status endpoint shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// TransportHealthCheck reports whether a session with the simulation is live.
type TransportHealthCheck struct {
	connected func() bool
}

// NewTransportHealthCheck creates a health check for the transport link.
func NewTransportHealthCheck(connected func() bool) *TransportHealthCheck {
	return &TransportHealthCheck{connected: connected}
}

// Name returns the name of this health check.
func (t *TransportHealthCheck) Name() string {
	return "transport"
}

// Check verifies that the viewer is connected.
func (t *TransportHealthCheck) Check(ctx context.Context) error {
	if !t.connected() {
		return fmt.Errorf("not connected to simulation")
	}
	return nil
}

// SnapshotHealthCheck reports whether snapshots are still arriving.
type SnapshotHealthCheck struct {
	lastSnapshot func() time.Time
	maxAge       time.Duration
	now          func() time.Time
}

// NewSnapshotHealthCheck creates a freshness check. lastSnapshot returns
// the zero time until the first snapshot has been applied.
func NewSnapshotHealthCheck(lastSnapshot func() time.Time, maxAge time.Duration) *SnapshotHealthCheck {
	return &SnapshotHealthCheck{
		lastSnapshot: lastSnapshot,
		maxAge:       maxAge,
		now:          time.Now,
	}
}

// Name returns the name of this health check.
func (s *SnapshotHealthCheck) Name() string {
	return "snapshot"
}

// Check verifies that the newest snapshot is recent enough.
func (s *SnapshotHealthCheck) Check(ctx context.Context) error {
	last := s.lastSnapshot()
	if last.IsZero() {
		return fmt.Errorf("no snapshot received yet")
	}
	if age := s.now().Sub(last); age > s.maxAge {
		return fmt.Errorf("last snapshot is %s old (limit %s)", age.Round(time.Millisecond), s.maxAge)
	}
	return nil
}

// BreakerHealthCheck reports an open dial circuit breaker.
type BreakerHealthCheck struct {
	state func() string
}

// NewBreakerHealthCheck creates a health check around a breaker state
// reporter such as network.DialGuard.State().String.
func NewBreakerHealthCheck(state func() string) *BreakerHealthCheck {
	return &BreakerHealthCheck{state: state}
}

// Name returns the name of this health check.
func (b *BreakerHealthCheck) Name() string {
	return "circuit_breaker"
}

// Check fails while the breaker is open.
func (b *BreakerHealthCheck) Check(ctx context.Context) error {
	if state := b.state(); state == "open" {
		return fmt.Errorf("dial circuit breaker is %s", state)
	}
	return nil
}
