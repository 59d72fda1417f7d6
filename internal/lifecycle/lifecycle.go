package lifecycle

import "sync/atomic"

var (
	shuttingDown  atomic.Bool
	runInProgress atomic.Bool
)

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not start new runs.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// TryStartRun claims the single run slot. It returns false if a run is already
// in progress; callers that get true must call FinishRun.
func TryStartRun() bool {
	return runInProgress.CompareAndSwap(false, true)
}

// FinishRun releases the run slot.
func FinishRun() {
	runInProgress.Store(false)
}

// IsRunInProgress reports whether a run currently holds the slot.
func IsRunInProgress() bool {
	return runInProgress.Load()
}
