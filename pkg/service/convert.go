package service

import (
	"fmt"
	"image"

	glowv1 "github.com/glowfx/glowpipe/gen/glow/v1"
	"github.com/glowfx/glowpipe/pkg/tensor"
)

// frameTensor views a wire frame as a single-item NCHW tensor. The
// pixel slice is shared, not copied.
func frameTensor(f *glowv1.Frame) (*tensor.Tensor, error) {
	c, h, w := int(f.Channels), int(f.Height), int(f.Width)
	if c <= 0 || h <= 0 || w <= 0 {
		return nil, fmt.Errorf("frame %d: invalid shape %dx%dx%d", f.Index, c, h, w)
	}
	if len(f.Pixels) != c*h*w {
		return nil, fmt.Errorf("frame %d: %d pixels, want %d", f.Index, len(f.Pixels), c*h*w)
	}
	return &tensor.Tensor{Dims: [4]int{1, c, h, w}, Data: f.Pixels}, nil
}

func maskMessage(index int, m *image.Gray) *glowv1.MaskImage {
	b := m.Bounds()
	return &glowv1.MaskImage{
		Index:  int32(index),
		Height: int32(b.Dy()),
		Width:  int32(b.Dx()),
		Pixels: m.Pix,
	}
}

// tensorRGBA converts a normalized frame back to 8-bit RGBA for
// compositing. Channels 0..2 map to R/G/B clamped to [0,1]; a
// single-channel frame is replicated to gray.
func tensorRGBA(t *tensor.Tensor) *image.RGBA {
	h, w := t.Dims[2], t.Dims[3]
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	plane := h * w
	for p := 0; p < plane; p++ {
		o := p * 4
		for c := 0; c < 3; c++ {
			ch := c
			if ch >= t.Dims[1] {
				ch = t.Dims[1] - 1
			}
			v := t.Data[ch*plane+p]
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			img.Pix[o+c] = uint8(v * 255)
		}
		img.Pix[o+3] = 255
	}
	return img
}

func compositeMessage(index int, img *image.RGBA) *glowv1.CompositeImage {
	b := img.Bounds()
	return &glowv1.CompositeImage{
		Index:  int32(index),
		Height: int32(b.Dy()),
		Width:  int32(b.Dx()),
		Pixels: img.Pix,
	}
}
