package vip

import (
	"time"

	"github.com/nf/c8/chip8"
)

const (
	// Decay divides the power level of an unlit pixel on each print.
	Decay = 1.8

	// MaxRefresh is the minimum interval between prints.
	MaxRefresh = time.Second / 60
)

// Renderer receives composited frames from a Screen. Each frame is a Clear,
// a Draw for every pixel, then a Flush.
type Renderer interface {
	Clear()
	Draw(x, y int, r, g, b byte)
	Flush()
}

// Screen is the CHIP-8 display as seen through a phosphor tube: pixels that
// turn off fade out over a few frames instead of vanishing, which hides the
// flicker caused by programs that erase and redraw sprites with XOR.
//
// Screen implements chip8.Display; every CLS and DRW prints a frame to the
// Renderer, subject to the MaxRefresh rate limit.
type Screen struct {
	chip8.Bitmap

	Renderer        Renderer
	Primary         Color
	Secondary       Color
	DisableGhosting bool

	prev   chip8.Bitmap
	power  [chip8.Width * chip8.Height]byte
	queued bool
	last   time.Time
	now    func() time.Time
}

// NewScreen returns a Screen that prints to r using the colours and
// ghosting setting in c.
func NewScreen(r Renderer, c *Config) *Screen {
	p, s := c.Colors()
	return &Screen{
		Renderer:        r,
		Primary:         p,
		Secondary:       s,
		DisableGhosting: c.DisableGhosting,
		now:             time.Now,
	}
}

func (s *Screen) Clear() {
	s.Bitmap.Clear()
	s.Print()
}

func (s *Screen) Sprite(x, y byte, rows []byte) bool {
	c := s.Bitmap.Sprite(x, y, rows)
	s.Print()
	return c
}

// Reset turns off every pixel and forgets all ghosting.
func (s *Screen) Reset() {
	s.Bitmap.Clear()
	s.prev = chip8.Bitmap{}
	s.power = [chip8.Width * chip8.Height]byte{}
	s.queued = false
}

// Queued reports whether a print is pending.
func (s *Screen) Queued() bool { return s.queued }

// PrintIfQueued prints if an earlier print was suppressed or if the last
// frame still had fading pixels.
func (s *Screen) PrintIfQueued() {
	if s.queued {
		s.Print()
	}
}

// Print composites the bitmap and sends it to the Renderer. If the previous
// print was less than MaxRefresh ago the print is queued instead.
func (s *Screen) Print() {
	now := s.clock()
	if !s.last.IsZero() && now.Sub(s.last) < MaxRefresh {
		s.queued = true
		return
	}
	s.queued = false
	s.last = now

	var (
		p      = s.Primary
		q      = s.Secondary
		ghosts = false
	)
	s.Renderer.Clear()
	for i, on := range s.Bitmap {
		x, y := i%chip8.Width, i/chip8.Width
		if on {
			s.Renderer.Draw(x, y, p.R, p.G, p.B)
			continue
		}
		s.power[i] = byte(float64(s.power[i]) / Decay)
		if s.prev[i] {
			s.power[i] = 0xff
		}
		var n float64
		if !s.DisableGhosting {
			n = float64(s.power[i]) / 0xff
		}
		if n > 0 {
			ghosts = true
		}
		s.Renderer.Draw(x, y, blend(p.R, q.R, n), blend(p.G, q.G, n), blend(p.B, q.B, n))
	}
	if ghosts {
		s.queued = true
	}
	s.Renderer.Flush()
	s.prev = s.Bitmap
}

func (s *Screen) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

func blend(p, q byte, n float64) byte {
	return byte(float64(p)*n + float64(q)*(1-n))
}
