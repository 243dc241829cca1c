package chip8

import "time"

// TimerPeriod is the interval between delay and sound timer decrements.
const TimerPeriod = time.Second / 60

// Timers holds the delay and sound timers, which count down to zero at
// 60Hz of wall-clock time regardless of how many instructions execute.
// The sound timer is tracked but nothing plays a tone.
type Timers struct {
	Delay byte
	Sound byte

	last time.Time
}

// Reset zeroes both timers and starts a new period at now.
func (t *Timers) Reset(now time.Time) {
	t.Delay, t.Sound = 0, 0
	t.last = now
}

// Tick decrements each non-zero timer once if a full period has elapsed
// since the previous decrement, and reports whether it did so. At most one
// decrement happens per call, so time spent without calling Tick (for
// example while blocked waiting on a key) is not made up later.
func (t *Timers) Tick(now time.Time) bool {
	if now.Sub(t.last) < TimerPeriod {
		return false
	}
	t.last = now
	if t.Delay > 0 {
		t.Delay--
	}
	if t.Sound > 0 {
		t.Sound--
	}
	return true
}
