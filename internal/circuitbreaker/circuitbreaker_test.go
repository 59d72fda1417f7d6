package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

var errBoom = errors.New("boom")

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var transitions []string
	cb := New(Config{
		Name:             "met_api",
		FailureThreshold: 2,
		Timeout:          10 * time.Second,
		Clock:            clock,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	if err := cb.Call(fail, nil); !errors.Is(err, errBoom) {
		t.Fatalf("first call error = %v, want errBoom", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state after 1 failure = %v, want closed", cb.State())
	}
	_ = cb.Call(fail, nil)
	if cb.State() != StateOpen {
		t.Fatalf("state after 2 failures = %v, want open", cb.State())
	}

	called := false
	err := cb.Call(func() error { called = true; return nil }, nil)
	if !errors.Is(err, ErrOpen) {
		t.Errorf("call while open error = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn should not run while open")
	}
	if len(transitions) != 1 || transitions[0] != "met_api:closed->open" {
		t.Errorf("transitions = %v", transitions)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: 5 * time.Second, Clock: clock})

	_ = cb.Call(fail, nil)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
	clock.Advance(5 * time.Second)
	if err := cb.Call(succeed, nil); err != nil {
		t.Fatalf("trial request error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state after successful trial request = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := New(Config{FailureThreshold: 3, Timeout: time.Second, Clock: clock})
	for i := 0; i < 3; i++ {
		_ = cb.Call(fail, nil)
	}
	clock.Advance(2 * time.Second)
	_ = cb.Call(fail, nil)
	if cb.State() != StateOpen {
		t.Errorf("state after failed trial request = %v, want open", cb.State())
	}
	if err := cb.Call(succeed, nil); !errors.Is(err, ErrOpen) {
		t.Errorf("error = %v, want ErrOpen right after reopening", err)
	}
}

func TestCircuitBreaker_UncountedErrorsDoNotTrip(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, Clock: clockwork.NewFakeClock()})
	notCounted := func(error) bool { return false }
	for i := 0; i < 5; i++ {
		_ = cb.Call(fail, notCounted)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed when errors are not countable", cb.State())
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half_open", State(9): "unknown"}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
