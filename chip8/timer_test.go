package chip8

import (
	"testing"
	"time"
)

func TestTimersOneSecond(t *testing.T) {
	var (
		start = time.Unix(1000, 0)
		tm    Timers
	)
	tm.Reset(start)
	tm.Delay = 200
	ticks := 0
	for ms := 1; ms <= 1000; ms++ {
		if tm.Tick(start.Add(time.Duration(ms) * time.Millisecond)) {
			ticks++
		}
	}
	if dec := 200 - int(tm.Delay); dec > 60 || dec != ticks {
		t.Errorf("delay timer decremented %d times in one second (%d ticks), want at most 60", dec, ticks)
	}
	if ticks < 50 {
		t.Errorf("only %d ticks in one second", ticks)
	}
}

func TestTimersFloor(t *testing.T) {
	var (
		now = time.Unix(1000, 0)
		tm  Timers
	)
	tm.Reset(now)
	tm.Delay, tm.Sound = 2, 1
	for i := 0; i < 5; i++ {
		now = now.Add(TimerPeriod)
		tm.Tick(now)
	}
	if tm.Delay != 0 || tm.Sound != 0 {
		t.Errorf("timers are %d, %d, want 0, 0", tm.Delay, tm.Sound)
	}
}

func TestTimersNoCatchUp(t *testing.T) {
	var (
		now = time.Unix(1000, 0)
		tm  Timers
	)
	tm.Reset(now)
	tm.Delay = 100
	if tm.Tick(now.Add(TimerPeriod / 2)) {
		t.Errorf("Tick reported a decrement before a full period")
	}
	// A long gap, as when blocked on a key, counts once.
	if !tm.Tick(now.Add(5 * time.Second)) {
		t.Errorf("Tick reported no decrement after a long gap")
	}
	if tm.Delay != 99 {
		t.Errorf("delay is %d after a long gap, want 99", tm.Delay)
	}
}
