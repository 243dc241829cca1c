package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/nf/c8/chip8"
	"github.com/nf/c8/vip"
)

type debugger struct {
	r  *vip.Runner
	fb *vip.FrameBuffer

	log   *tview.TextView
	watch *tview.TextView
	state *tview.TextView
	input *tview.InputField
	cols  *tview.Flex
	rows  *tview.Flex
	app   *tview.Application

	dirty atomic.Bool

	mu        sync.Mutex
	brk, dbg  int // -1 when unset
	watches   []watch
	kind      vip.StateKind
	stateText string
	watchText string
}

type watch struct {
	addr  uint16
	short bool
}

// debugCommands are handled by the debugger itself rather than the Runner.
var debugCommands = []string{"w", "w2", "watch", "watch2", "unwatch", "save", "load", "shot", "dump", "trace", "exit"}

func newDebugger(fb *vip.FrameBuffer) *debugger {
	d := &debugger{
		fb:  fb,
		brk: -1,
		dbg: -1,
		log: tview.NewTextView().
			SetMaxLines(1000),
		watch: tview.NewTextView().
			SetWrap(false).
			SetTextAlign(tview.AlignRight),
		state: tview.NewTextView().
			SetWrap(false),
		input: tview.NewInputField(),
		cols:  tview.NewFlex(),
		rows: tview.NewFlex().
			SetDirection(tview.FlexRow),
		app: tview.NewApplication(),
	}
	d.log.SetChangedFunc(func() { d.dirty.Store(true) })
	d.log.ScrollToEnd()
	d.watch.SetBackgroundColor(tcell.ColorDarkBlue)
	d.state.SetBackgroundColor(tcell.ColorDarkGrey)
	d.cols.
		AddItem(d.watch, 0, 1, false).
		AddItem(d.log, 0, 2, false)
	d.rows.
		AddItem(d.cols, 0, 1, false).
		AddItem(d.state, 3, 0, false).
		AddItem(d.input, 1, 0, true)
	d.app.SetRoot(d.rows, true)

	cmds := append(append([]string(nil), vip.Commands...), debugCommands...)
	sort.Strings(cmds)
	d.input.SetAutocompleteFunc(func(t string) (entries []string) {
		if t == "" || strings.Contains(t, " ") {
			return nil
		}
		for _, c := range cmds {
			if strings.HasPrefix(c, t) && c != t {
				entries = append(entries, c)
			}
		}
		return
	})
	d.input.SetAutocompletedFunc(func(t string, index, src int) bool {
		if src != tview.AutocompletedNavigate {
			d.input.SetText(t)
		}
		return src == tview.AutocompletedEnter || src == tview.AutocompletedClick
	})
	d.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		cmd := strings.TrimSpace(d.input.GetText())
		if cmd == "" {
			return
		}
		d.input.SetText("")
		d.command(cmd)
	})
	return d
}

// Run shows the debugger in the terminal until the exit command is given
// or ctx is done. Log output is shown in the debugger while it runs.
func (d *debugger) Run(ctx context.Context) error {
	log.SetPrefix("")
	log.SetOutput(d.log)
	defer func() {
		log.SetOutput(os.Stderr)
		log.SetPrefix("c8: ")
	}()

	stop := context.AfterFunc(ctx, d.app.Stop)
	defer stop()

	go d.refresh(ctx)
	return d.app.Run()
}

// refresh redraws the debugger when the machine state or log changes.
// Redraws are queued from here rather than from StateFunc, as queueing
// blocks until the application handles the update.
func (d *debugger) refresh(ctx context.Context) {
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if d.dirty.Swap(false) {
				d.app.QueueUpdateDraw(d.apply)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (d *debugger) StateFunc(m *chip8.Machine, k vip.StateKind) {
	w := d.watchContent(m)
	var state string
	if k != vip.ClearState && k != vip.QuietState {
		var ips int64
		if d.r != nil {
			ips = d.r.IPS()
		}
		state = stateMsg(m, k, ips)
	}
	d.mu.Lock()
	d.watchText = w
	if k != vip.QuietState {
		d.kind = k
		d.stateText = state
	}
	d.mu.Unlock()
	d.dirty.Store(true)
}

func (d *debugger) apply() {
	d.mu.Lock()
	k, state, w := d.kind, d.stateText, d.watchText
	d.mu.Unlock()
	switch k {
	case vip.DebugState, vip.ClearState:
		d.state.SetTextColor(tcell.ColorBlack)
		d.state.SetBackgroundColor(tcell.ColorDarkGrey)
	case vip.BreakState:
		d.state.SetTextColor(tcell.ColorYellow)
		d.state.SetBackgroundColor(tcell.ColorDarkBlue)
	case vip.PauseState:
		d.state.SetTextColor(tcell.ColorWhite)
		d.state.SetBackgroundColor(tcell.ColorDarkBlue)
	case vip.HaltState:
		d.state.SetTextColor(tcell.ColorWhite)
		d.state.SetBackgroundColor(tcell.ColorDarkRed)
	}
	d.watch.SetText(w)
	d.state.SetText(state)
}

func (d *debugger) command(line string) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "exit":
		d.app.Stop()

	case "b", "break", "d", "debug":
		addr := -1
		if arg != "" {
			a, err := parseAddr(arg)
			if err != nil {
				log.Print(err)
				return
			}
			addr = int(a)
		}
		d.r.Debug(cmd, addr)
		d.mu.Lock()
		if cmd[0] == 'b' {
			d.brk = addr
		} else {
			d.dbg = addr
		}
		d.mu.Unlock()
		switch {
		case addr < 0:
			log.Printf("cleared %s", cmd)
		case cmd[0] == 'b':
			log.Printf("set break %.3x", addr)
		default:
			log.Printf("set debug %.3x", addr)
		}

	case "w", "w2", "watch", "watch2":
		addr, err := parseAddr(arg)
		if err != nil {
			log.Print(err)
			return
		}
		d.mu.Lock()
		d.watches = append(d.watches, watch{addr: addr, short: strings.HasSuffix(cmd, "2")})
		d.mu.Unlock()
		log.Printf("watching %.3x", addr)

	case "unwatch":
		d.mu.Lock()
		d.watches = nil
		d.mu.Unlock()
		log.Print("cleared watches")

	case "save":
		if arg == "" {
			log.Print("usage: save <file>")
			return
		}
		b, err := d.r.Save()
		if err == nil {
			err = os.WriteFile(arg, b, 0o644)
		}
		if err != nil {
			log.Printf("save: %v", err)
			return
		}
		log.Printf("saved %s", arg)

	case "load":
		if arg == "" {
			log.Print("usage: load <file>")
			return
		}
		b, err := os.ReadFile(arg)
		if err == nil {
			err = d.r.Restore(b)
		}
		if err != nil {
			log.Printf("load: %v", err)
			return
		}
		log.Printf("loaded %s", arg)

	case "shot":
		if arg == "" {
			log.Print("usage: shot <file>")
			return
		}
		if err := writeShot(d.fb, arg); err != nil {
			log.Printf("shot: %v", err)
			return
		}
		log.Printf("wrote %s", arg)

	case "dump":
		d.dump(arg)

	case "trace":
		lines := d.r.Trace()
		if len(lines) == 0 {
			log.Print("trace is empty (is tracing enabled?)")
		}
		for _, l := range lines {
			log.Print(l)
		}

	default:
		if arg != "" {
			log.Printf("%s takes no argument", cmd)
			return
		}
		d.r.Debug(cmd, 0)
	}
}

// dump logs instruction words from memory. It accepts an optional start
// address, which defaults to PC, and an optional word count.
func (d *debugger) dump(arg string) {
	var (
		addr  uint16
		atPC  = true
		count = 8
	)
	if a, n, _ := strings.Cut(arg, " "); a != "" {
		var err error
		if addr, err = parseAddr(a); err != nil {
			log.Print(err)
			return
		}
		atPC = false
		if n = strings.TrimSpace(n); n != "" {
			if count, err = strconv.Atoi(n); err != nil || count <= 0 {
				log.Printf("invalid count %q", n)
				return
			}
		}
	}
	var s string
	ok := d.r.Do(func(m *chip8.Machine) {
		if atPC {
			addr = m.PC
		}
		s = m.HexDump(addr, count)
	})
	if !ok {
		log.Print("dump: not running")
		return
	}
	log.Printf("%.3x: %s", addr, s)
}

// parseAddr parses a hexadecimal memory address, with or without a
// leading "0x" or "#".
func parseAddr(s string) (uint16, error) {
	t := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(s), "0x"), "#")
	v, err := strconv.ParseUint(t, 16, 16)
	if err != nil || v >= chip8.MemSize {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint16(v), nil
}

func stateMsg(m *chip8.Machine, k vip.StateKind, ips int64) string {
	op := m.OpAt(m.PC)
	kind := "       "
	switch k {
	case vip.BreakState:
		kind = "[break]"
	case vip.DebugState:
		kind = "[debug]"
	case vip.PauseState:
		kind = "[pause]"
	case vip.HaltState:
		kind = "[HALT!]"
	}
	return fmt.Sprintf("%.3x %.4x %-18s %s ips: %d\nv: % x  i: %.3x\nstack: %v  dt: %.2x  st: %.2x",
		m.PC, uint16(op), op, kind, ips,
		m.V[:], m.I,
		m.Stack, m.Timers.Delay, m.Timers.Sound)
}

func (d *debugger) watchContent(m *chip8.Machine) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b strings.Builder
	if d.brk >= 0 {
		fmt.Fprintf(&b, "[%.3x] brk!\n", d.brk)
	}
	if d.dbg >= 0 {
		fmt.Fprintf(&b, "[%.3x] dbg?\n", d.dbg)
	}
	for _, w := range d.watches {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%.3x] ", w.addr)
		if w.short {
			fmt.Fprintf(&b, "%.2x%.2x", m.Mem[w.addr], m.Mem[(w.addr+1)%chip8.MemSize])
		} else {
			fmt.Fprintf(&b, "  %.2x", m.Mem[w.addr])
		}
	}
	return b.String()
}
