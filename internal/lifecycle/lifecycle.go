package lifecycle

import "sync/atomic"

var (
	shuttingDown atomic.Bool
	ready        atomic.Bool
)

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// MarkReady records that a first Home Assistant snapshot has been loaded.
func MarkReady() {
	ready.Store(true)
}

// IsReady reports whether a snapshot is available. Health reports "starting" until then.
func IsReady() bool {
	return ready.Load()
}

// Reset clears both flags. For tests only.
func Reset() {
	shuttingDown.Store(false)
	ready.Store(false)
}
