package circuitbreaker

import (
	"sync"

	"tiercache/internal/common/logging"
)

// Manager manages the per-dependency circuit breakers
type Manager struct {
	breakers map[string]*CircuitBreaker
	logger   logging.Logger
	mu       sync.RWMutex
}

// NewManager creates a new circuit breaker manager
func NewManager(logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &Manager{
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
	}
}

// GetOrCreate gets an existing circuit breaker or creates a new one with
// the given configuration, wiring state changes into the logger
func (m *Manager) GetOrCreate(name string, config Config) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if breaker, exists := m.breakers[name]; exists {
		return breaker
	}

	breaker := New(name, config)

	breaker.OnStateChange(func(name string, from, to State) {
		m.logger.Warn("circuit breaker state change",
			logging.String("circuit_breaker", name),
			logging.String("from_state", from.String()),
			logging.String("to_state", to.String()),
		)
	})

	m.breakers[name] = breaker
	return breaker
}

// Get retrieves an existing circuit breaker by name
func (m *Manager) Get(name string) (*CircuitBreaker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	breaker, exists := m.breakers[name]
	return breaker, exists
}

// Stats returns a snapshot of every registered breaker
func (m *Manager) Stats() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make([]Stats, 0, len(m.breakers))
	for _, breaker := range m.breakers {
		stats = append(stats, breaker.Stats())
	}
	return stats
}
