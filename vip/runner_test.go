package vip

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nf/c8/chip8"
)

type stateEvent struct {
	kind StateKind
	pc   uint16
	v    [16]byte
}

// stateRecorder collects the states reported by a Runner.
type stateRecorder struct {
	ch chan stateEvent
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{ch: make(chan stateEvent, 100)}
}

func (s *stateRecorder) StateFunc(m *chip8.Machine, k StateKind) {
	switch k {
	case BreakState, PauseState, HaltState, DebugState:
		select {
		case s.ch <- stateEvent{k, m.PC, m.V}:
		default:
		}
	}
}

func (s *stateRecorder) wait(t *testing.T, want StateKind) stateEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-s.ch:
			if e.kind == want {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %d", want)
		}
	}
}

func rom(ops ...chip8.Op) []byte {
	var b []byte
	for _, op := range ops {
		b = append(b, byte(op>>8), byte(op))
	}
	return b
}

func repeat(op chip8.Op, n int) []chip8.Op {
	ops := make([]chip8.Op, n)
	for i := range ops {
		ops[i] = op
	}
	return ops
}

func testConfig() Config {
	c := DefaultConfig()
	c.TickRate = Uncapped
	return c
}

func startRunner(t *testing.T, r *Runner) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, errc
}

func waitErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Run to return")
		return nil
	}
}

func TestRunnerEnd(t *testing.T) {
	s := newStateRecorder()
	r, err := NewRunner(rom(0x6005, 0x7003), NullRenderer{}, testConfig(), false, s.StateFunc)
	if err != nil {
		t.Fatal(err)
	}
	_, errc := startRunner(t, r)
	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	e := s.wait(t, HaltState)
	if e.v[0] != 8 || e.pc != 0x204 {
		t.Errorf("ended with V0=%d PC=%.3x, want V0=8 PC=204", e.v[0], e.pc)
	}
	if r.Do(func(*chip8.Machine) {}) {
		t.Errorf("Do ran after Run returned")
	}
	if err := r.Swap(rom(0x6001)); !errors.Is(err, errHalted) {
		t.Errorf("Swap after Run returned %v, want %v", err, errHalted)
	}
}

func TestRunnerHaltError(t *testing.T) {
	r, err := NewRunner(rom(0x6001, 0x00ee), NullRenderer{}, testConfig(), false, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, errc := startRunner(t, r)
	err = waitErr(t, errc)
	var h chip8.HaltError
	if !errors.As(err, &h) {
		t.Fatalf("Run returned %v, want HaltError", err)
	}
	if h.HaltCode != chip8.Underflow || h.Addr != 0x202 {
		t.Errorf("got %v, want stack underflow at 202", h)
	}
}

func TestRunnerBreak(t *testing.T) {
	s := newStateRecorder()
	r, err := NewRunner(rom(repeat(0x7001, 10)...), NullRenderer{}, testConfig(), false, s.StateFunc)
	if err != nil {
		t.Fatal(err)
	}
	r.Break(0x206)
	_, errc := startRunner(t, r)

	e := s.wait(t, BreakState)
	if e.pc != 0x206 || e.v[0] != 3 {
		t.Fatalf("broke at PC=%.3x V0=%d, want PC=206 V0=3", e.pc, e.v[0])
	}
	var pc uint16
	r.Do(func(m *chip8.Machine) { pc = m.PC })
	if pc != 0x206 {
		t.Fatalf("PC moved to %.3x while paused", pc)
	}

	r.Step()
	r.Do(func(m *chip8.Machine) { pc = m.PC })
	if pc != 0x208 {
		t.Fatalf("PC is %.3x after Step, want 208", pc)
	}

	r.Resume()
	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if e := s.wait(t, HaltState); e.v[0] != 10 {
		t.Errorf("V0 is %d at end, want 10", e.v[0])
	}
}

func TestRunnerDebugPoint(t *testing.T) {
	s := newStateRecorder()
	r, err := NewRunner(rom(repeat(0x7001, 4)...), NullRenderer{}, testConfig(), false, s.StateFunc)
	if err != nil {
		t.Fatal(err)
	}
	r.Debug("d", 0x204)
	_, errc := startRunner(t, r)
	if e := s.wait(t, DebugState); e.pc != 0x204 || e.v[0] != 2 {
		t.Errorf("debug point at PC=%.3x V0=%d, want PC=204 V0=2", e.pc, e.v[0])
	}
	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

// Pausing while LD Vx, K waits leaves PC on that instruction, and the
// instruction completes once resumed and the key is released.
func TestRunnerPauseAwaitingKey(t *testing.T) {
	s := newStateRecorder()
	c := testConfig()
	c.SharedInput = true
	r, err := NewRunner(rom(0x6005, 0xf10a, 0x7201), NullRenderer{}, c, false, s.StateFunc)
	if err != nil {
		t.Fatal(err)
	}
	_, errc := startRunner(t, r)

	waitFor(t, r, func(m *chip8.Machine) bool { return m.PC == 0x202 && m.V[0] == 5 })
	r.Pause()
	if e := s.wait(t, PauseState); e.pc != 0x202 {
		t.Fatalf("paused at %.3x, want 202", e.pc)
	}

	r.Keypad().Press(0x7)
	r.Resume()
	waitFor(t, r, func(m *chip8.Machine) bool {
		k, ok := m.KeyLatched()
		return ok && k == 0x7
	})
	r.Keypad().Release(0x7)

	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if e := s.wait(t, HaltState); e.v[1] != 7 || e.v[2] != 1 {
		t.Errorf("V1=%d V2=%d at end, want 7, 1", e.v[1], e.v[2])
	}
}

func waitFor(t *testing.T, r *Runner, cond func(m *chip8.Machine) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		var ok bool
		if !r.Do(func(m *chip8.Machine) { ok = cond(m) }) {
			t.Fatal("Runner stopped")
		}
		if ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRunnerRestartOnEnd(t *testing.T) {
	c := testConfig()
	c.RestartOnEnd = true
	r, err := NewRunner(rom(0x7001), NullRenderer{}, c, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	cancel, errc := startRunner(t, r)
	waitFor(t, r, func(m *chip8.Machine) bool { return m.V[0] > 3 })
	cancel()
	if err := waitErr(t, errc); !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func TestRunnerSwap(t *testing.T) {
	s := newStateRecorder()
	r, err := NewRunner(rom(0x6001), NullRenderer{}, testConfig(), true, s.StateFunc)
	if err != nil {
		t.Fatal(err)
	}
	_, errc := startRunner(t, r)
	s.wait(t, HaltState)

	snap, err := r.Save()
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Swap(make([]byte, chip8.MaxROMSize+1)); !errors.Is(err, chip8.ErrROMTooLarge) {
		t.Errorf("Swap of large ROM returned %v, want ErrROMTooLarge", err)
	}
	if err := r.Swap(rom(0x6002, 0x6103)); err != nil {
		t.Fatal(err)
	}
	if e := s.wait(t, HaltState); e.v[0] != 2 || e.v[1] != 3 {
		t.Errorf("after Swap V0=%d V1=%d, want 2, 3", e.v[0], e.v[1])
	}

	if err := r.Restore(snap); err != nil {
		t.Fatal(err)
	}
	var v0 byte
	r.Do(func(m *chip8.Machine) { v0 = m.V[0] })
	if v0 != 1 {
		t.Errorf("after Restore V0=%d, want 1", v0)
	}

	r.Halt()
	if err := waitErr(t, errc); err != nil {
		t.Errorf("Run returned %v after Halt", err)
	}
}

func TestRunnerThrottle(t *testing.T) {
	c := testConfig()
	c.TickRate = 500
	r, err := NewRunner(rom(repeat(0x7001, 50)...), NullRenderer{}, c, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	_, errc := startRunner(t, r)
	if err := waitErr(t, errc); err != nil {
		t.Fatal(err)
	}
	// 50 instructions at 500 per second take about 100ms.
	if d := time.Since(start); d < 80*time.Millisecond {
		t.Errorf("50 instructions took %v at 500/s", d)
	}
}

func blank(fb *FrameBuffer, bg Color) bool {
	pix := fb.Image().Pix
	for i := 0; i < len(pix); i += 4 {
		if pix[i] != bg.R || pix[i+1] != bg.G || pix[i+2] != bg.B {
			return false
		}
	}
	return true
}

// A frame held back by the refresh limit, and the ghosts it leaves, are
// still printed after the program stops running.
func TestRunnerFlushesAfterEnd(t *testing.T) {
	for _, dev := range []bool{false, true} {
		t.Run(fmt.Sprintf("dev=%v", dev), func(t *testing.T) {
			s := newStateRecorder()
			fb := NewFrameBuffer()
			c := testConfig()
			_, bg := c.Colors()
			// Draw the font's 0 then clear it at once.
			r, err := NewRunner(rom(0xa000, 0xd005, 0x00e0), fb, c, dev, s.StateFunc)
			if err != nil {
				t.Fatal(err)
			}
			_, errc := startRunner(t, r)
			if !dev {
				if err := waitErr(t, errc); err != nil {
					t.Fatalf("Run returned %v", err)
				}
				if !blank(fb, bg) {
					t.Fatal("screen not blank when Run returned")
				}
				return
			}
			s.wait(t, HaltState)
			deadline := time.Now().Add(2 * time.Second)
			for !blank(fb, bg) {
				if time.Now().After(deadline) {
					t.Fatal("screen not blank after program ended")
				}
				time.Sleep(5 * time.Millisecond)
			}
			var queued bool
			r.Do(func(*chip8.Machine) { queued = r.screen.Queued() })
			if queued {
				t.Error("screen still has a queued print")
			}
			r.Halt()
			if err := waitErr(t, errc); err != nil {
				t.Errorf("Run returned %v after Halt", err)
			}
		})
	}
}

// The delay timer stands still while LD Vx, K waits and counts down again
// once it completes.
func TestRunnerTimersFrozenAwaitingKey(t *testing.T) {
	c := testConfig()
	c.SharedInput = true
	// DT = 10; wait for a key; loop forever.
	r, err := NewRunner(rom(0x600a, 0xf015, 0xf10a, 0x1206), NullRenderer{}, c, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	cancel, errc := startRunner(t, r)

	var dt byte
	waitFor(t, r, func(m *chip8.Machine) bool {
		dt = m.Timers.Delay
		return m.PC == 0x204
	})
	if dt == 0 {
		t.Fatal("delay timer ran out before LD V1, K")
	}
	time.Sleep(200 * time.Millisecond)
	var now byte
	r.Do(func(m *chip8.Machine) { now = m.Timers.Delay })
	if now != dt {
		t.Fatalf("delay timer went from %d to %d while awaiting a key", dt, now)
	}

	r.Keypad().Press(0x1)
	waitFor(t, r, func(m *chip8.Machine) bool {
		_, ok := m.KeyLatched()
		return ok
	})
	r.Keypad().Release(0x1)
	waitFor(t, r, func(m *chip8.Machine) bool { return m.Timers.Delay < dt })

	cancel()
	if err := waitErr(t, errc); !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func TestRunnerTraceAwaitingKey(t *testing.T) {
	c := testConfig()
	c.SharedInput = true
	c.Trace = true
	r, err := NewRunner(rom(0x6001, 0xf10a, 0x7201), NullRenderer{}, c, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, errc := startRunner(t, r)

	waitFor(t, r, func(m *chip8.Machine) bool { return m.PC == 0x202 && m.V[0] == 1 })
	// Several retries of LD V1, K happen in this time.
	time.Sleep(100 * time.Millisecond)
	lines := r.Trace()
	if len(lines) != 2 {
		t.Fatalf("trace has %d lines, want 2:\n%s", len(lines), strings.Join(lines, "\n"))
	}
	if !strings.HasPrefix(lines[1], "202 f10a") {
		t.Errorf("trace line %q, want LD V1, K at 202", lines[1])
	}

	r.Keypad().Press(0x3)
	waitFor(t, r, func(m *chip8.Machine) bool {
		_, ok := m.KeyLatched()
		return ok
	})
	r.Keypad().Release(0x3)
	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

// A press and release that reach the queued keypad together still satisfy
// LD Vx, K.
func TestRunnerQueuedTap(t *testing.T) {
	s := newStateRecorder()
	r, err := NewRunner(rom(0xf10a), NullRenderer{}, testConfig(), false, s.StateFunc)
	if err != nil {
		t.Fatal(err)
	}
	r.Keypad().Press(0x5)
	r.Keypad().Release(0x5)
	_, errc := startRunner(t, r)
	if err := waitErr(t, errc); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if e := s.wait(t, HaltState); e.v[1] != 5 {
		t.Errorf("V1 is %d, want 5", e.v[1])
	}
}
