package circuitbreaker

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"tiercache/internal/common/logging"
)

// GoBreakerAdapter implements Breaker on top of sony/gobreaker for
// deployments that prefer its request-volume based tripping. The
// coordinator only depends on the Breaker interface, so either
// implementation can guard a tier.
type GoBreakerAdapter struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// NewGoBreaker creates a gobreaker-backed Breaker with semantics mapped
// from our Config: the circuit opens after FailureThreshold consecutive
// failures and admits a single probe after Cooldown.
func NewGoBreaker(name string, config Config, logger logging.Logger) *GoBreakerAdapter {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     config.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.FailureThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				logging.String("circuit_breaker", name),
				logging.String("from_state", from.String()),
				logging.String("to_state", to.String()),
			)
		},
	}

	return &GoBreakerAdapter{
		name: name,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

// Name returns the breaker's dependency name
func (g *GoBreakerAdapter) Name() string {
	return g.name
}

// Execute runs fn through the underlying gobreaker
func (g *GoBreakerAdapter) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := g.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrOpen, g.name)
	}
	return err
}

// State maps gobreaker's state onto ours
func (g *GoBreakerAdapter) State() State {
	switch g.cb.State() {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
