package vip

import (
	"image"
	"sync/atomic"

	"github.com/nf/c8/chip8"
)

// FrameSize is the length of a packed RGBA frame.
const FrameSize = chip8.Width * chip8.Height * 4

// FrameBuffer is a Renderer that composites into an offscreen RGBA buffer
// for another goroutine to display. The producer holds the lock from Clear
// to Flush; consumers hold it only while copying the frame out.
type FrameBuffer struct {
	mu     Mutex
	pix    [FrameSize]byte
	frames atomic.Uint64
	ready  chan struct{}
}

func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{ready: make(chan struct{}, 1)}
}

func (f *FrameBuffer) Clear() {
	f.mu.Lock()
	f.pix = [FrameSize]byte{}
}

func (f *FrameBuffer) Draw(x, y int, r, g, b byte) {
	i := (y*chip8.Width + x) * 4
	f.pix[i+0] = r
	f.pix[i+1] = g
	f.pix[i+2] = b
	f.pix[i+3] = 0xff
}

func (f *FrameBuffer) Flush() {
	f.frames.Add(1)
	f.mu.Unlock()
	select {
	case f.ready <- struct{}{}:
	default:
	}
}

// Frames returns the number of frames flushed so far.
func (f *FrameBuffer) Frames() uint64 { return f.frames.Load() }

// Ready is signalled after each Flush.
func (f *FrameBuffer) Ready() <-chan struct{} { return f.ready }

// CopyTo copies the most recent frame into dst, which must be at least
// FrameSize bytes, and returns its frame number.
func (f *FrameBuffer) CopyTo(dst []byte) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy(dst, f.pix[:])
	return f.frames.Load()
}

// Image returns a copy of the most recent frame.
func (f *FrameBuffer) Image() *image.RGBA {
	m := image.NewRGBA(image.Rect(0, 0, chip8.Width, chip8.Height))
	f.CopyTo(m.Pix)
	return m
}

// NullRenderer discards frames.
type NullRenderer struct{}

func (NullRenderer) Clear() {}
func (NullRenderer) Draw(x, y int, r, g, b byte) {}
func (NullRenderer) Flush() {}
