package network

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/opd-ai/ggw-viewer/pkg/logging"
)

// BreakerOptions configures the circuit breaker guarding dial attempts.
type BreakerOptions struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// DefaultBreakerOptions returns the breaker settings used when none are
// configured. Timeout matches the default retry interval; a client never
// lets it exceed its own.
func DefaultBreakerOptions() BreakerOptions {
	return BreakerOptions{
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             time.Second,
		ConsecutiveFailures: 5,
	}
}

// DialGuard wraps session establishment with circuit breaker functionality.
// While the breaker is open, attempts fail immediately with
// gobreaker.ErrOpenState instead of reaching the peer.
type DialGuard struct {
	breaker *gobreaker.CircuitBreaker
	logger  *logging.Logger
}

// NewDialGuard creates a DialGuard named after the peer it protects.
func NewDialGuard(name string, opts BreakerOptions, logger *logging.Logger) *DialGuard {
	if logger == nil {
		logger = logging.Discard()
	}
	threshold := opts.ConsecutiveFailures
	if threshold == 0 {
		threshold = 1
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: opts.MaxRequests,
		Interval:    opts.Interval,
		Timeout:     opts.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A cancelled caller says nothing about the peer.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info(context.Background(), "circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &DialGuard{
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// Execute runs op through the circuit breaker.
func (g *DialGuard) Execute(ctx context.Context, op func() error) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, op()
	})
	if err != nil {
		g.logger.Debug(ctx, "guarded operation failed",
			"error", err,
			"state", g.breaker.State().String(),
		)
		return fmt.Errorf("circuit breaker: %w", err)
	}
	return nil
}

// State returns the current state of the circuit breaker
func (g *DialGuard) State() gobreaker.State {
	return g.breaker.State()
}

// Counts returns the current counts of the circuit breaker
func (g *DialGuard) Counts() gobreaker.Counts {
	return g.breaker.Counts()
}
