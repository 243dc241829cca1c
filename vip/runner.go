// Package vip runs CHIP-8 programs the way the COSMAC VIP did: a keypad,
// a 60Hz display with phosphor ghosting, and an interpreter paced to a
// configurable instruction rate.
package vip

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nf/c8/chip8"
)

// StateKind describes why a StateFunc is being called.
type StateKind int

const (
	ClearState StateKind = iota // execution resumed
	DebugState                  // debug point reached; execution continues
	BreakState                  // breakpoint reached; execution paused
	PauseState                  // paused, or stepped while paused
	HaltState                   // program halted or ended
	QuietState                  // periodic update while running
)

// StateFunc observes the machine. It is called on the goroutine executing
// instructions and must not retain m.
type StateFunc func(m *chip8.Machine, k StateKind)

// Runner executes a program on a Machine, pacing instructions, ticking
// the timers and driving the Screen.
type Runner struct {
	m      *chip8.Machine
	screen *Screen
	keys   *Keypad
	pause  PauseSignal
	cfg    Config
	dev    bool
	state  StateFunc
	rom    []byte

	do     chan func()
	resume chan struct{}
	done   chan struct{}
	halt   atomic.Bool
	brk    atomic.Int32
	dbg    atomic.Int32
	ips    atomic.Int64

	skipBreak bool
	awaiting  bool // last Exec was LD Vx, K waiting at awaitPC
	awaitPC   uint16
	trace     backlog
	count     int64 // instructions since last IPS sample
	hz        int   // timer ticks since last IPS sample
	now       func() time.Time
}

const noAddr = -1

// NewRunner loads rom into a new Machine whose display prints to r.
// In dev mode the Runner keeps going after the program halts or ends, so
// that a new program may be swapped in.
func NewRunner(rom []byte, r Renderer, c Config, dev bool, state StateFunc) (*Runner, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var (
		keys   = NewKeypad(c.SharedInput)
		screen = NewScreen(r, &c)
	)
	m, err := chip8.New(rom, screen, keys)
	if err != nil {
		return nil, err
	}
	run := &Runner{
		m:      m,
		screen: screen,
		keys:   keys,
		cfg:    c,
		dev:    dev,
		state:  state,
		rom:    rom,
		do:     make(chan func()),
		resume: make(chan struct{}, 1),
		done:   make(chan struct{}),
		now:    time.Now,
	}
	run.brk.Store(noAddr)
	run.dbg.Store(noAddr)
	return run, nil
}

// Keypad returns the keypad read by the program.
func (r *Runner) Keypad() *Keypad { return r.keys }

// IPS returns the number of instructions executed in the most recent
// full second.
func (r *Runner) IPS() int64 { return r.ips.Load() }

// Done is closed when Run returns.
func (r *Runner) Done() <-chan struct{} { return r.done }

var (
	errPaused = errors.New("paused")
	errHalted = errors.New("halted")
)

// Run executes the program until it ends, halts, Halt is called or ctx is
// done. It returns the HaltError that stopped the program, if any.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)
	for {
		skip := r.skipBreak
		r.skipBreak = false
		err := r.exec(ctx, skip)
		switch {
		case err == nil:
			if r.cfg.RestartOnEnd && r.m.End > chip8.ProgramStart {
				r.m.PC = chip8.ProgramStart
				continue
			}
			r.report(HaltState)
			if !r.dev {
				r.flush(ctx)
				return nil
			}
			log.Printf("program ended at %.3x", r.m.PC)
		case errors.Is(err, errPaused):
		case errors.Is(err, errHalted):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			if r.cfg.Trace {
				r.trace.Emit()
			}
			r.report(HaltState)
			if !r.dev {
				r.flush(ctx)
				return err
			}
			log.Print(err)
		}
		r.pause.Pause()
		if err := r.wait(ctx); err != nil {
			if errors.Is(err, errHalted) {
				return nil
			}
			return err
		}
	}
}

// wait blocks while paused, running functions passed to Do and printing
// frames held back by the screen until it settles.
func (r *Runner) wait(ctx context.Context) error {
	for r.pause.Paused() && !r.halt.Load() {
		var frame <-chan time.Time
		if r.screen.Queued() {
			frame = time.After(MaxRefresh)
		}
		select {
		case <-r.resume:
		case f := <-r.do:
			f()
		case <-frame:
			r.screen.PrintIfQueued()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if r.halt.Load() {
		return errHalted
	}
	r.report(ClearState)
	return nil
}

// flush prints held-back and fading frames until the screen settles,
// Halt is called or ctx is done.
func (r *Runner) flush(ctx context.Context) {
	for r.screen.Queued() && !r.halt.Load() {
		t := time.NewTimer(MaxRefresh)
		select {
		case <-t.C:
			r.screen.PrintIfQueued()
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
}

// exec runs instructions until the program ends or an error occurs.
// If skipBreak is set a breakpoint at the current PC is ignored, so that
// resuming from a breakpoint makes progress.
func (r *Runner) exec(ctx context.Context, skipBreak bool) error {
	var (
		m      = r.m
		period time.Duration
		next   = r.now()
	)
	if r.cfg.TickRate.Capped() {
		period = time.Second / time.Duration(r.cfg.TickRate)
	}
	for m.PC < m.End && m.Stack.Valid() {
		select {
		case f := <-r.do:
			f()
		default:
		}
		if r.halt.Load() {
			return errHalted
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pc := int32(m.PC)
		if pc == r.brk.Load() && !skipBreak {
			r.pause.Pause()
			r.skipBreak = true
			r.report(BreakState)
			return errPaused
		}
		if r.pause.Paused() {
			r.report(PauseState)
			return errPaused
		}
		skipBreak = false
		if pc == r.dbg.Load() {
			r.report(DebugState)
		}

		if err := r.step(); errors.Is(err, chip8.ErrAwaitingKey) {
			if err := r.awaitKey(ctx); err != nil {
				return err
			}
			next = r.now()
			continue
		} else if err != nil {
			return err
		}

		if period > 0 {
			next = next.Add(period)
			now := r.now()
			if d := next.Sub(now); d > 0 {
				time.Sleep(d)
			} else if d < -MaxRefresh {
				// Fell behind; don't try to catch up.
				next = now
			}
		}
	}
	return nil
}

// step executes one instruction and ticks the timers.
func (r *Runner) step() error {
	m := r.m
	r.keys.Poll()
	// A waiting LD Vx, K is traced once, not on every retry.
	if r.cfg.Trace && !(r.awaiting && m.PC == r.awaitPC) {
		op := m.OpAt(m.PC)
		r.trace.LazyPrintf("%.3x %.4x %v V=%x I=%.3x", m.PC, uint16(op), op, m.V, m.I)
	}
	err := m.Exec()
	r.awaiting, r.awaitPC = errors.Is(err, chip8.ErrAwaitingKey), m.PC
	if err != nil {
		return err
	}
	r.count++
	if m.Timers.Tick(r.now()) {
		r.screen.PrintIfQueued()
		r.report(QuietState)
		if r.hz++; r.hz == 60 {
			r.ips.Store(r.count)
			if r.cfg.Trace {
				log.Printf("IPS: %d", r.count)
			}
			r.hz, r.count = 0, 0
		}
	}
	return nil
}

// awaitKey waits for a key event, the next frame, a call to Do or ctx.
// Timers are not ticked while waiting.
func (r *Runner) awaitKey(ctx context.Context) error {
	t := time.NewTimer(MaxRefresh)
	defer t.Stop()
	select {
	case <-r.keys.Ready():
	case <-t.C:
		r.screen.PrintIfQueued()
	case f := <-r.do:
		f()
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (r *Runner) report(k StateKind) {
	if r.state != nil {
		r.state(r.m, k)
	}
}

// Do runs f on the goroutine executing instructions, between
// instructions, and waits for it to return. It reports false without
// calling f if Run has returned.
func (r *Runner) Do(f func(m *chip8.Machine)) bool {
	done := make(chan struct{})
	select {
	case r.do <- func() { f(r.m); close(done) }:
	case <-r.done:
		return false
	}
	<-done
	return true
}

func (r *Runner) Pause() { r.pause.Pause() }

func (r *Runner) Resume() {
	r.pause.Resume()
	select {
	case r.resume <- struct{}{}:
	default:
	}
}

func (r *Runner) Paused() bool { return r.pause.Paused() }

// Halt stops the Runner; Run returns nil.
func (r *Runner) Halt() {
	r.halt.Store(true)
	r.Resume()
}

// Step executes a single instruction while paused.
func (r *Runner) Step() {
	r.Do(func(m *chip8.Machine) {
		if !r.pause.Paused() || m.PC >= m.End {
			return
		}
		if err := r.step(); err != nil && !errors.Is(err, chip8.ErrAwaitingKey) {
			log.Print(err)
		}
		r.skipBreak = true
		r.report(PauseState)
	})
}

// Break sets a breakpoint at addr. A negative addr clears it.
func (r *Runner) Break(addr int) { r.brk.Store(int32(clampAddr(addr))) }

// DebugPoint reports DebugState whenever execution reaches addr, without
// pausing. A negative addr clears it.
func (r *Runner) DebugPoint(addr int) { r.dbg.Store(int32(clampAddr(addr))) }

func clampAddr(addr int) int {
	if addr < 0 {
		return noAddr
	}
	return addr & (chip8.MemSize - 1)
}

// Swap loads a new program and resumes execution from its start.
func (r *Runner) Swap(rom []byte) error {
	if len(rom) > chip8.MaxROMSize {
		return fmt.Errorf("%w: %d bytes", chip8.ErrROMTooLarge, len(rom))
	}
	var err error
	if !r.Do(func(m *chip8.Machine) {
		r.rom = rom
		err = r.load()
	}) {
		return errHalted
	}
	if err != nil {
		return err
	}
	r.Resume()
	return nil
}

// Reset restarts the current program.
func (r *Runner) Reset() error {
	var err error
	r.Do(func(*chip8.Machine) { err = r.load() })
	return err
}

func (r *Runner) load() error {
	if err := r.m.Load(r.rom); err != nil {
		return err
	}
	r.screen.Reset()
	r.screen.Print()
	r.keys.Reset()
	r.trace.Reset()
	r.skipBreak = false
	r.awaiting = false
	return nil
}

// Save returns a snapshot of the machine.
func (r *Runner) Save() (b []byte, err error) {
	if !r.Do(func(m *chip8.Machine) { b, err = m.MarshalState() }) {
		return nil, errHalted
	}
	return
}

// Restore loads a snapshot returned by Save. The display is cleared, as
// snapshots do not include it.
func (r *Runner) Restore(b []byte) error {
	var err error
	if !r.Do(func(m *chip8.Machine) {
		if err = m.UnmarshalState(b); err == nil {
			r.awaiting = false
			r.screen.Reset()
			r.screen.Print()
		}
	}) {
		return errHalted
	}
	return err
}

// Trace returns the most recently executed instructions, oldest first.
// Tracing must be enabled in the Config.
func (r *Runner) Trace() []string {
	var lines []string
	r.Do(func(*chip8.Machine) {
		r.trace.Each(func(format string, args ...any) {
			lines = append(lines, fmt.Sprintf(format, args...))
		})
	})
	return lines
}

// Debug runs a debugger command. Commands that take an address use addr.
func (r *Runner) Debug(cmd string, addr int) {
	switch cmd {
	case "b", "break":
		r.Break(addr)
	case "d", "debug":
		r.DebugPoint(addr)
	case "p", "pause":
		r.Pause()
	case "c", "cont", "continue":
		r.Resume()
	case "s", "step":
		r.Step()
	case "reset":
		if err := r.Reset(); err != nil {
			log.Print(err)
		}
	default:
		log.Printf("unknown command %q (have %s)", cmd, strings.Join(Commands, ", "))
	}
}

// Commands lists the commands accepted by Debug.
var Commands = []string{"b", "break", "d", "debug", "p", "pause", "c", "cont", "continue", "s", "step", "reset"}
