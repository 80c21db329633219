package glow

import (
	"image"

	"golang.org/x/image/draw"
)

// ResizeMask scales a class-index mask to w x h. Nearest-neighbor
// keeps pixel values exact; interpolating would invent class indices
// that never match the key level.
func ResizeMask(mask *image.Gray, w, h int) *image.Gray {
	b := mask.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return mask
	}
	out := image.NewGray(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(out, out.Bounds(), mask, b, draw.Src, nil)
	return out
}
