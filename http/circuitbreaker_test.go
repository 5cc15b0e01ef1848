package http

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  time.Minute,
	})

	err := errors.New("boom")
	for i := 0; i < 3; i++ {
		if allowErr := cb.Allow("example.com"); allowErr != nil {
			t.Fatalf("Allow() before threshold = %v, want nil", allowErr)
		}
		cb.RecordFailure("example.com", err)
	}

	if got := cb.State("example.com"); got != CircuitOpen {
		t.Errorf("State() = %v, want open", got)
	}
	if allowErr := cb.Allow("example.com"); !errors.Is(allowErr, ErrCircuitOpen) {
		t.Errorf("Allow() = %v, want ErrCircuitOpen", allowErr)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
	})

	cb.RecordFailure("example.com", errors.New("boom"))
	if got := cb.State("example.com"); got != CircuitOpen {
		t.Fatalf("State() = %v, want open", got)
	}

	time.Sleep(20 * time.Millisecond)

	// One test request is allowed; success closes the circuit.
	if err := cb.Allow("example.com"); err != nil {
		t.Fatalf("Allow() after recovery timeout = %v, want nil", err)
	}
	cb.RecordSuccess("example.com")

	if got := cb.State("example.com"); got != CircuitClosed {
		t.Errorf("State() after success = %v, want closed", got)
	}
}

func TestCircuitBreaker_PermanentErrorsIgnored(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		IsTransientError: IsTransientHTTPError,
	})

	cb.RecordFailure("example.com", &HTTPError{StatusCode: 404})
	cb.RecordFailure("example.com", &HTTPError{StatusCode: 403})

	if got := cb.State("example.com"); got != CircuitClosed {
		t.Errorf("State() = %v, want closed (4xx must not trip the breaker)", got)
	}
}

func TestCircuitBreaker_DomainsIndependent(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
	})

	cb.RecordFailure("bad.example.com", errors.New("boom"))

	if err := cb.Allow("good.example.com"); err != nil {
		t.Errorf("Allow(good.example.com) = %v, want nil", err)
	}
	if err := cb.Allow("bad.example.com"); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow(bad.example.com) = %v, want ErrCircuitOpen", err)
	}
}
