package captions

// PartialThrottle limits how often the loop asks the engine for a partial
// hypothesis. It is owned by the loop goroutine.
type PartialThrottle struct {
	interval int
	counter  int
}

// NewPartialThrottle returns a throttle firing every interval ticks.
// Intervals below 1 are treated as 1.
func NewPartialThrottle(interval int) *PartialThrottle {
	if interval < 1 {
		interval = 1
	}
	return &PartialThrottle{interval: interval}
}

// Tick counts one non-final frame and reports whether a partial is due.
func (t *PartialThrottle) Tick() bool {
	t.counter++
	if t.counter%t.interval == 0 {
		t.counter = 0
		return true
	}
	return false
}

// Reset is called on every final result.
func (t *PartialThrottle) Reset() {
	t.counter = 0
}

// Count returns the frames seen since the last partial or final.
func (t *PartialThrottle) Count() int {
	return t.counter
}
