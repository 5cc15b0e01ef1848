package http

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal state where requests are allowed.
	CircuitClosed CircuitState = iota
	// CircuitOpen is the state where requests fail fast.
	CircuitOpen
	// CircuitHalfOpen is the testing state where one request is allowed.
	CircuitHalfOpen
)

// String returns the string representation of a circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures to open the
	// circuit. Default: 5.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before a test
	// request is let through. Default: 30 seconds.
	RecoveryTimeout time.Duration
	// IsTransientError reports whether an error should count toward the
	// failure threshold. Permanent errors (bad input, 4xx) leave the circuit
	// untouched. If nil, all errors count.
	IsTransientError func(error) bool
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// circuit holds the state for a single domain.
type circuit struct {
	state           CircuitState
	consecutive     int
	lastStateChange time.Time
	testing         bool
}

// CircuitBreaker fails fast per domain after repeated transient failures,
// letting one test request through after the recovery timeout.
type CircuitBreaker struct {
	circuits map[string]*circuit
	mu       sync.Mutex
	config   CircuitBreakerConfig
}

// NewCircuitBreaker creates a circuit breaker with the given configuration.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		circuits: make(map[string]*circuit),
		config:   cfg,
	}
}

// Allow reports whether a request to the domain should proceed. Returns
// ErrCircuitOpen when the circuit is open and not yet due for a test request.
func (cb *CircuitBreaker) Allow(domain string) error {
	if cb == nil {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(domain)
	switch c.state {
	case CircuitOpen:
		if time.Since(c.lastStateChange) >= cb.config.RecoveryTimeout {
			c.state = CircuitHalfOpen
			c.lastStateChange = time.Now()
			c.testing = true
			return nil
		}
		return ErrCircuitOpen
	case CircuitHalfOpen:
		if c.testing {
			return ErrCircuitOpen
		}
		c.testing = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess records a successful request. In half-open state this closes
// the circuit.
func (cb *CircuitBreaker) RecordSuccess(domain string) {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(domain)
	c.consecutive = 0
	if c.state == CircuitHalfOpen {
		c.state = CircuitClosed
		c.lastStateChange = time.Now()
		c.testing = false
	}
}

// RecordFailure records a failed request. Opens the circuit once the failure
// threshold is reached, or immediately when a half-open test request fails.
func (cb *CircuitBreaker) RecordFailure(domain string, err error) {
	if cb == nil {
		return
	}
	if cb.config.IsTransientError != nil && !cb.config.IsTransientError(err) {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(domain)
	c.consecutive++
	switch c.state {
	case CircuitClosed:
		if c.consecutive >= cb.config.FailureThreshold {
			c.state = CircuitOpen
			c.lastStateChange = time.Now()
		}
	case CircuitHalfOpen:
		c.state = CircuitOpen
		c.lastStateChange = time.Now()
		c.testing = false
	}
}

// State returns the current state of the circuit for a domain.
func (cb *CircuitBreaker) State(domain string) CircuitState {
	if cb == nil {
		return CircuitClosed
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[domain]
	if !ok {
		return CircuitClosed
	}
	if c.state == CircuitOpen && time.Since(c.lastStateChange) >= cb.config.RecoveryTimeout {
		return CircuitHalfOpen
	}
	return c.state
}

// Reset closes the circuit for a domain.
func (cb *CircuitBreaker) Reset(domain string) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.circuits, domain)
}

// get returns the circuit for a domain, creating one if needed.
// Must be called with the mutex held.
func (cb *CircuitBreaker) get(domain string) *circuit {
	c, ok := cb.circuits[domain]
	if !ok {
		c = &circuit{state: CircuitClosed, lastStateChange: time.Now()}
		cb.circuits[domain] = c
	}
	return c
}

// IsTransientHTTPError reports whether an HTTP error should count toward the
// circuit breaker failure threshold.
func IsTransientHTTPError(err error) bool {
	if err == nil {
		return false
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}

	// Network errors and timeouts are transient.
	return true
}
