package coach

import "time"

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// Clock is the engine's source of time and timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock uses the time package.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// handle identifies one scheduled timer. A callback whose handle is no
// longer the one held by the current state is stale and does nothing.
type handle struct {
	t Timer
}

func (h *handle) stop() {
	if h != nil && h.t != nil {
		h.t.Stop()
	}
}
