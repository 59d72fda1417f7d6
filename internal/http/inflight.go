package http

import (
	"context"
	"sync"
)

// requestTracker counts requests being served, including a POST /run that is
// still executing its pipeline. Shutdown waits on it before flushing metrics.
type requestTracker struct {
	mu   sync.Mutex
	n    int64
	idle chan struct{} // closed while n == 0
}

func newRequestTracker() *requestTracker {
	idle := make(chan struct{})
	close(idle)
	return &requestTracker{idle: idle}
}

// begin registers a request and returns the func that ends it. Calling the
// returned func more than once has no further effect.
func (t *requestTracker) begin() func() {
	t.mu.Lock()
	if t.n == 0 {
		t.idle = make(chan struct{})
	}
	t.n++
	t.mu.Unlock()

	var once sync.Once
	return func() { once.Do(t.end) }
}

func (t *requestTracker) end() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.n--
	if t.n == 0 {
		close(t.idle)
	}
}

func (t *requestTracker) count() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}

// wait blocks until no request is in flight or ctx is done.
func (t *requestTracker) wait(ctx context.Context) error {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var inFlight = newRequestTracker()

// InFlightCount returns the number of requests currently being served.
func InFlightCount() int64 {
	return inFlight.count()
}

// WaitForInFlight blocks until in-flight requests drain or ctx is done.
func WaitForInFlight(ctx context.Context) error {
	return inFlight.wait(ctx)
}
