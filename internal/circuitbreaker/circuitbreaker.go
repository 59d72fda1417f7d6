package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrOpen is returned by Call while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// State is the circuit breaker state (Closed, Open, HalfOpen).
type State int

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calling a failing upstream after FailureThreshold
// consecutive failures and lets a trial request through once Timeout has passed.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	openedAt         time.Time
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	name             string
	clock            clockwork.Clock
	onStateChange    func(name string, from, to State)
}

// Config holds circuit breaker parameters. Zero values take defaults.
type Config struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	Clock            clockwork.Clock
	OnStateChange    func(name string, from, to State)
}

func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout,
		name:             cfg.Name,
		clock:            cfg.Clock,
		onStateChange:    cfg.OnStateChange,
	}
}

// Call runs fn unless the breaker is open. Only errors for which countable
// returns true count as failures; a nil countable counts every error.
func (cb *CircuitBreaker) Call(fn func() error, countable func(error) bool) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err != nil && (countable == nil || countable(err)))
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return nil
	}
	if cb.clock.Since(cb.openedAt) < cb.timeout {
		return ErrOpen
	}
	cb.transitionLocked(StateHalfOpen)
	return nil
}

func (cb *CircuitBreaker) after(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if failed {
		cb.successes = 0
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.failureThreshold {
			cb.openedAt = cb.clock.Now()
			cb.transitionLocked(StateOpen)
		}
		return
	}
	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.transitionLocked(StateClosed)
		}
	}
}

// transitionLocked must be called with mu held. The callback runs under the lock
// and must not call back into the breaker.
func (cb *CircuitBreaker) transitionLocked(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
