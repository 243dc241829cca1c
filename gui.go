package main

import (
	"context"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/nf/c8/chip8"
	"github.com/nf/c8/vip"
)

// ebitenKeys maps the keyboard to keypad key names.
var ebitenKeys = map[ebiten.Key]string{
	ebiten.KeyDigit1: "1", ebiten.KeyDigit2: "2", ebiten.KeyDigit3: "3", ebiten.KeyDigit4: "4",
	ebiten.KeyQ: "q", ebiten.KeyW: "w", ebiten.KeyE: "e", ebiten.KeyR: "r",
	ebiten.KeyA: "a", ebiten.KeyS: "s", ebiten.KeyD: "d", ebiten.KeyF: "f",
	ebiten.KeyZ: "z", ebiten.KeyX: "x", ebiten.KeyC: "c", ebiten.KeyV: "v",
}

// runEbiten displays frames in a window using ebiten.
func runEbiten(ctx context.Context, r *vip.Runner, fb *vip.FrameBuffer) error {
	ebiten.SetWindowSize(chip8.Width*windowScale, chip8.Height*windowScale)
	ebiten.SetWindowTitle("c8")
	ebiten.SetWindowResizable(true)
	g := &gui{
		ctx:  ctx,
		keys: r.Keypad(),
		fb:   fb,
		pix:  make([]byte, vip.FrameSize),
	}
	if err := ebiten.RunGame(g); err != nil && err != ebiten.Termination {
		return err
	}
	return nil
}

type gui struct {
	ctx  context.Context
	keys *vip.Keypad
	fb   *vip.FrameBuffer

	pix     []byte
	frame   uint64
	img     *ebiten.Image
	pressed []ebiten.Key
}

func (g *gui) Update() error {
	if g.ctx.Err() != nil || inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	g.pressed = inpututil.AppendJustPressedKeys(g.pressed[:0])
	for _, k := range g.pressed {
		if name, ok := ebitenKeys[k]; ok {
			g.keys.KeyDown(name)
		}
	}
	g.pressed = inpututil.AppendJustReleasedKeys(g.pressed[:0])
	for _, k := range g.pressed {
		if name, ok := ebitenKeys[k]; ok {
			g.keys.KeyUp(name)
		}
	}
	return nil
}

func (g *gui) Draw(screen *ebiten.Image) {
	if g.img == nil {
		g.img = ebiten.NewImage(chip8.Width, chip8.Height)
	}
	if g.fb.Frames() != g.frame {
		g.frame = g.fb.CopyTo(g.pix)
		g.img.WritePixels(g.pix)
	}
	screen.DrawImage(g.img, nil)
}

func (g *gui) Layout(outerWidth, outerHeight int) (screenWidth, screenHeight int) {
	return chip8.Width, chip8.Height
}
