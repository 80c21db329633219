package glow

import (
	"fmt"
	"image"

	"github.com/glowfx/glowpipe/pkg/gpu"
)

// Params are the effect tuning values, owned by the caller and threaded
// through every call that needs them.
type Params struct {
	// KeyLevel is the mask intensity that marks the glow target class.
	KeyLevel uint8
	// KeyScale scales the halo into the blend alpha (alpha = halo *
	// KeyScale >> 8).
	KeyScale int
	// Scale is the mipmap downsample factor; larger spreads the halo
	// wider.
	Scale float64
	// Delta is the overlay key tolerance.
	Delta int
}

// DefaultParams matches the tuning the effect was calibrated with.
func DefaultParams() Params {
	return Params{KeyLevel: 96, KeyScale: 384, Scale: 8, Delta: 10}
}

// ComposeFrame applies the full effect to one frame: hard overlay on
// the keyed region, soft mipmap halo, then the alpha blend.
func ComposeFrame(dev *gpu.Device, src *image.RGBA, mask *image.Gray, p Params) (*image.RGBA, error) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	resized := ResizeMask(mask, w, h)

	overlay, _ := GlowBlow(resized, p.KeyLevel, p.Delta)
	halo, err := ApplyMipmap(dev, resized, p.Scale, p.KeyLevel)
	if err != nil {
		return nil, err
	}
	return MixImages(src, overlay, halo, p.KeyScale)
}

// ComposeBatch applies the effect to a frame sequence, running the halo
// filters through the triple-buffered pipeline.
func ComposeBatch(dev *gpu.Device, frames []*image.RGBA, masks []*image.Gray, p Params) ([]*image.RGBA, error) {
	if len(frames) != len(masks) {
		return nil, fmt.Errorf("glow: %d frames but %d masks", len(frames), len(masks))
	}
	if len(frames) == 0 {
		return nil, nil
	}
	b := frames[0].Bounds()
	w, h := b.Dx(), b.Dy()

	resized := make([]*image.Gray, len(masks))
	for i, m := range masks {
		resized[i] = ResizeMask(m, w, h)
	}
	halos, _, err := TripleBufferedMipmap(dev, resized, w, h, p.Scale, p.KeyLevel)
	if err != nil {
		return nil, err
	}

	out := make([]*image.RGBA, len(frames))
	for i := range frames {
		overlay, _ := GlowBlow(resized[i], p.KeyLevel, p.Delta)
		out[i], err = MixImages(frames[i], overlay, halos[i], p.KeyScale)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
