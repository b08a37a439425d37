package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"casare-orchestrator/internal/models"
	. "casare-orchestrator/internal/resilience"
)

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb := New("test", DefaultConfig())

	if cb.State() != CircuitClosed {
		t.Errorf("expected initial state to be Closed, got %v", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	config := Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          100 * time.Millisecond,
		MaxRequests:      1,
	}
	cb := New("test", config)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error {
			return errors.New("test error")
		})
	}

	if cb.State() != CircuitOpen {
		t.Errorf("expected state to be Open after %d failures, got %v", config.FailureThreshold, cb.State())
	}
}

func TestCircuitBreaker_RejectsWhenOpen(t *testing.T) {
	config := Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          1 * time.Second,
		MaxRequests:      1,
	}
	cb := New("test", config)

	_ = cb.Execute(context.Background(), func() error {
		return errors.New("test error")
	})

	err := cb.Execute(context.Background(), func() error {
		return nil
	})

	if err != ErrCircuitOpen {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_TransitionsToHalfOpen(t *testing.T) {
	config := Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          50 * time.Millisecond,
		MaxRequests:      1,
	}
	cb := New("test", config)

	_ = cb.Execute(context.Background(), func() error {
		return errors.New("test error")
	})

	time.Sleep(60 * time.Millisecond)

	if cb.State() != CircuitHalfOpen {
		t.Errorf("expected state to be HalfOpen after timeout, got %v", cb.State())
	}
}

func TestCircuitBreaker_ClosesAfterSuccessInHalfOpen(t *testing.T) {
	config := Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          50 * time.Millisecond,
		MaxRequests:      2,
	}
	cb := New("test", config)

	_ = cb.Execute(context.Background(), func() error {
		return errors.New("test error")
	})

	time.Sleep(60 * time.Millisecond)

	_ = cb.Execute(context.Background(), func() error {
		return nil
	})

	if cb.State() != CircuitClosed {
		t.Errorf("expected state to be Closed after success in HalfOpen, got %v", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	config := Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          1 * time.Second,
		MaxRequests:      1,
	}
	cb := New("test", config)

	_ = cb.Execute(context.Background(), func() error {
		return errors.New("test error")
	})

	cb.Reset()

	if cb.State() != CircuitClosed {
		t.Errorf("expected state to be Closed after Reset, got %v", cb.State())
	}
}

func TestCircuitBreaker_Snapshot(t *testing.T) {
	cb := New("test-snapshot", DefaultConfig())

	snap := cb.Snapshot()

	if snap.Key != "test-snapshot" {
		t.Errorf("expected key to be 'test-snapshot', got %v", snap.Key)
	}
	if snap.State != models.BreakerClosed {
		t.Errorf("expected state to be closed, got %v", snap.State)
	}
}

func TestRegistry_GetCreatesAndReuses(t *testing.T) {
	reg := NewRegistry(DefaultConfig())

	a := reg.Get("robot-1:click")
	b := reg.Get("robot-1:click")
	if a != b {
		t.Errorf("expected Get to return the same breaker for the same key")
	}

	c := reg.Get("robot-2:click")
	if a == c {
		t.Errorf("expected distinct breakers for distinct keys")
	}

	snaps := reg.Snapshots()
	if len(snaps) != 2 {
		t.Errorf("expected 2 snapshots, got %d", len(snaps))
	}
}
