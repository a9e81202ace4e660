package resolver

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerState_String(t *testing.T) {
	tests := []struct {
		name     string
		state    BreakerState
		expected string
	}{
		{"Closed", BreakerClosed, "closed"},
		{"Open", BreakerOpen, "open"},
		{"Half Open", BreakerHalfOpen, "half_open"},
		{"Unknown", BreakerState(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("BreakerState.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := newBreaker(3, 10*time.Second)
	testErr := errors.New("backend down")

	for i := 0; i < 3; i++ {
		if err := b.call(func() error { return testErr }); !errors.Is(err, testErr) {
			t.Fatalf("call %d error = %v, want %v", i, err, testErr)
		}
	}

	if b.State() != BreakerOpen {
		t.Errorf("state = %v, want %v", b.State(), BreakerOpen)
	}

	err := b.call(func() error {
		t.Fatal("function must not be called while breaker is open")
		return nil
	})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("call() error = %v, want ErrBreakerOpen", err)
	}
}

func TestBreaker_RecoversThroughHalfOpen(t *testing.T) {
	b := newBreaker(2, 10*time.Millisecond)
	testErr := errors.New("backend down")

	_ = b.call(func() error { return testErr })
	_ = b.call(func() error { return testErr })
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want %v", b.State(), BreakerOpen)
	}

	time.Sleep(15 * time.Millisecond)

	if b.State() != BreakerHalfOpen {
		t.Fatalf("state after reset timeout = %v, want %v", b.State(), BreakerHalfOpen)
	}

	if err := b.call(func() error { return nil }); err != nil {
		t.Fatalf("probe call error = %v", err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("state after successful probe = %v, want %v", b.State(), BreakerClosed)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := newBreaker(2, time.Second)
	testErr := errors.New("flaky")

	_ = b.call(func() error { return testErr })
	_ = b.call(func() error { return nil })
	_ = b.call(func() error { return testErr })

	if b.State() != BreakerClosed {
		t.Errorf("state = %v, want %v (failures should not accumulate across successes)", b.State(), BreakerClosed)
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := newBreaker(1, time.Hour)
	_ = b.call(func() error { return errors.New("boom") })
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want %v", b.State(), BreakerOpen)
	}

	b.reset()

	if b.State() != BreakerClosed {
		t.Errorf("state after reset = %v, want %v", b.State(), BreakerClosed)
	}
}
