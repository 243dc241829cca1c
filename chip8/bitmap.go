package chip8

// Display dimensions in pixels.
const (
	Width  = 64
	Height = 32
)

// Bitmap is the monochrome 64x32 display, one bool per pixel in row-major
// order. It implements Display.
type Bitmap [Width * Height]bool

// At reports whether the pixel at (x, y) is lit.
func (b *Bitmap) At(x, y int) bool { return b[y*Width+x] }

// Clear turns off every pixel.
func (b *Bitmap) Clear() { *b = Bitmap{} }

// Sprite XORs the rows of an 8-pixel-wide sprite onto the bitmap with its
// top-left corner at (x, y). The origin wraps around the display on each
// axis independently; pixels falling past the right or bottom edge are
// clipped. It reports whether any lit pixel was turned off.
func (b *Bitmap) Sprite(x, y byte, rows []byte) (collision bool) {
	var (
		ox = int(x) % Width
		oy = int(y) % Height
	)
	for i, row := range rows {
		py := oy + i
		if py >= Height {
			break
		}
		for j := 0; j < 8; j++ {
			px := ox + j
			if px >= Width {
				break
			}
			if row&(0x80>>j) == 0 {
				continue
			}
			p := &b[py*Width+px]
			if *p {
				collision = true
			}
			*p = !*p
		}
	}
	return collision
}
