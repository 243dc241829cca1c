package main

import (
	"image"
	"image/png"
	"os"

	"golang.org/x/image/draw"

	"github.com/nf/c8/vip"
)

// writeShot writes the most recent frame to file as a PNG, scaled up to
// the window size.
func writeShot(fb *vip.FrameBuffer, file string) error {
	src := fb.Image()
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*windowScale, b.Dy()*windowScale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	f, err := os.Create(file)
	if err != nil {
		return err
	}
	if err := png.Encode(f, dst); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
