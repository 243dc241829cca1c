package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/term"

	"github.com/nf/c8/chip8"
	"github.com/nf/c8/vip"
)

// Terminals report key presses but not releases, so a key is considered
// released once it has not repeated for this long.
const termKeyHold = 150 * time.Millisecond

// runTerm displays frames in the terminal, two pixels per character cell
// using the upper half block.
func runTerm(ctx context.Context, r *vip.Runner, fb *vip.FrameBuffer) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("term backend: stdout is not a terminal")
	}
	s, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := s.Init(); err != nil {
		return err
	}
	defer s.Fini()

	t := &termView{
		s:    s,
		keys: r.Keypad(),
		pix:  make([]byte, vip.FrameSize),
		held: map[string]time.Time{},
	}

	type tick struct{ tcell.EventTime }
	done := make(chan struct{})
	defer close(done)
	go func() {
		tk := time.NewTicker(time.Second / 60)
		defer tk.Stop()
		for {
			select {
			case <-tk.C:
				ev := &tick{}
				ev.SetEventNow()
				s.PostEvent(ev) // dropped if the queue is full
			case <-ctx.Done():
				s.PostEvent(tcell.NewEventInterrupt(nil))
				return
			case <-done:
				return
			}
		}
	}()

	for {
		switch e := s.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventInterrupt:
			return nil
		case *tcell.EventResize:
			s.Sync()
			t.frame = 0
		case *tcell.EventKey:
			switch e.Key() {
			case tcell.KeyEscape, tcell.KeyCtrlC:
				return nil
			case tcell.KeyRune:
				t.press(string(e.Rune()), e.When())
			}
		case *tick:
			t.releaseHeld(e.When())
			t.draw(fb)
		}
	}
}

type termView struct {
	s     tcell.Screen
	keys  *vip.Keypad
	pix   []byte
	frame uint64
	held  map[string]time.Time // key name to time of last press or repeat
}

func (t *termView) press(name string, now time.Time) {
	if _, ok := t.held[name]; !ok {
		t.keys.KeyDown(name)
	}
	t.held[name] = now
}

func (t *termView) releaseHeld(now time.Time) {
	for name, last := range t.held {
		if now.Sub(last) >= termKeyHold {
			t.keys.KeyUp(name)
			delete(t.held, name)
		}
	}
}

func (t *termView) draw(fb *vip.FrameBuffer) {
	if fb.Frames() == t.frame {
		return
	}
	t.frame = fb.CopyTo(t.pix)
	for y := 0; y < chip8.Height; y += 2 {
		for x := 0; x < chip8.Width; x++ {
			st := tcell.StyleDefault.
				Foreground(t.color(x, y)).
				Background(t.color(x, y+1))
			t.s.SetContent(x, y/2, '▀', nil, st)
		}
	}
	t.s.Show()
}

func (t *termView) color(x, y int) tcell.Color {
	i := (y*chip8.Width + x) * 4
	return tcell.NewRGBColor(int32(t.pix[i]), int32(t.pix[i+1]), int32(t.pix[i+2]))
}
