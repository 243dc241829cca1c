package main

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"log"
	"time"

	"golang.org/x/exp/shiny/driver"
	"golang.org/x/exp/shiny/screen"
	"golang.org/x/mobile/event/key"
	"golang.org/x/mobile/event/lifecycle"
	"golang.org/x/mobile/event/paint"
	"golang.org/x/mobile/event/size"

	"github.com/nf/c8/chip8"
	"github.com/nf/c8/vip"
)

const windowScale = 10

// runWindow displays frames in a native window using shiny.
func runWindow(ctx context.Context, r *vip.Runner, fb *vip.FrameBuffer) (err error) {
	driver.Main(func(s screen.Screen) {
		w, werr := s.NewWindow(&screen.NewWindowOptions{
			Title:  "c8",
			Width:  chip8.Width * windowScale,
			Height: chip8.Height * windowScale,
		})
		if werr != nil {
			err = werr
			return
		}
		defer w.Release()

		g := &window{keys: r.Keypad(), fb: fb}
		if err = g.init(s); err != nil {
			return
		}
		defer g.release()

		type update struct{}
		done := make(chan struct{})
		defer close(done)
		go func() {
			t := time.NewTicker(time.Second / 60)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					w.Send(update{})
				case <-ctx.Done():
					w.Send(lifecycle.Event{To: lifecycle.StageDead})
					return
				case <-done:
					return
				}
			}
		}()

		var sz size.Event
		for {
			switch e := w.NextEvent().(type) {
			case size.Event:
				sz = e
				if sz.WidthPx+sz.HeightPx == 0 {
					return
				}
				g.dirty = true

			case lifecycle.Event:
				if e.To == lifecycle.StageDead {
					return
				}

			case key.Event:
				if e.Code == key.CodeEscape {
					return
				}
				g.key(e)

			case paint.Event:
				g.dirty = true

			case update:
				g.update()
				if g.dirty && sz.WidthPx > 0 {
					g.tex.Upload(image.Point{}, g.buf, g.buf.Bounds())
					w.Scale(sz.Bounds(), g.tex, g.tex.Bounds(), draw.Src, nil)
					w.Publish()
					g.dirty = false
				}

			case error:
				log.Print(e)

			default:
				if s, ok := e.(fmt.Stringer); ok {
					log.Printf("window: unhandled %v", s)
				}
			}
		}
	})
	return err
}

type window struct {
	keys *vip.Keypad
	fb   *vip.FrameBuffer

	buf   screen.Buffer
	tex   screen.Texture
	frame uint64 // most recent frame copied into buf
	dirty bool
}

func (g *window) init(s screen.Screen) (err error) {
	sz := image.Point{chip8.Width, chip8.Height}
	if g.buf, err = s.NewBuffer(sz); err != nil {
		return
	}
	g.tex, err = s.NewTexture(sz)
	return
}

func (g *window) update() {
	if g.fb.Frames() == g.frame {
		return
	}
	g.frame = g.fb.CopyTo(g.buf.RGBA().Pix)
	g.dirty = true
}

func (g *window) key(e key.Event) {
	if e.Rune <= 0 {
		return
	}
	name := string(e.Rune)
	switch e.Direction {
	case key.DirPress:
		g.keys.KeyDown(name)
	case key.DirRelease:
		g.keys.KeyUp(name)
	}
}

func (g *window) release() {
	if g.tex != nil {
		g.tex.Release()
	}
	if g.buf != nil {
		g.buf.Release()
	}
}
