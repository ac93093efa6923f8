package resource

import (
	"context"
	"fmt"
)

// HealthCheck reports the manager's limits to a health.HealthChecker.
type HealthCheck struct {
	manager *Manager
}

// NewHealthCheck creates a new health check for the resource manager.
func NewHealthCheck(manager *Manager) *HealthCheck {
	return &HealthCheck{manager: manager}
}

// Name returns the name of this health check.
func (r *HealthCheck) Name() string {
	return "workers"
}

// Check verifies that resource usage is within acceptable limits and that
// no worker has panicked.
func (r *HealthCheck) Check(ctx context.Context) error {
	stats := r.manager.Stats()

	if stats.MemoryUsageMB > stats.MaxMemoryMB {
		return fmt.Errorf("memory usage %dMB exceeds limit %dMB",
			stats.MemoryUsageMB, stats.MaxMemoryMB)
	}
	if stats.Panics > 0 {
		return fmt.Errorf("%d supervised goroutines panicked", stats.Panics)
	}
	return nil
}
