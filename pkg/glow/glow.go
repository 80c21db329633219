// Package glow turns segmentation masks into the final glow composite:
// a hard purple overlay on the keyed region, a mipmap-filtered soft
// halo around it, and an alpha blend of both over the source frame.
package glow

import (
	"fmt"
	"image"
	"image/color"
	"log"
)

// Overlay color for the keyed region.
var overlayColor = color.RGBA{R: 128, G: 0, B: 128, A: 255}

// Region describes the keyed area found by GlowBlow.
type Region struct {
	Found  bool
	Pixels int
	MinX   int
	MinY   int
	MaxX   int
	MaxY   int
}

// Coverage returns the keyed fraction of a w x h frame as a percentage.
func (r Region) Coverage(w, h int) float64 {
	if !r.Found || w <= 0 || h <= 0 {
		return 0
	}
	return float64(r.Pixels) / float64(w*h) * 100
}

// GlowBlow paints the overlay color onto every mask pixel within delta
// of keyLevel and reports the bounding box of the keyed region. The
// returned image is transparent everywhere else.
func GlowBlow(mask *image.Gray, keyLevel uint8, delta int) (*image.RGBA, Region) {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	reg := Region{MinX: w, MinY: h}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := int(mask.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			d := v - int(keyLevel)
			if d < 0 {
				d = -d
			}
			if d >= delta {
				continue
			}
			reg.Found = true
			reg.Pixels++
			if x < reg.MinX {
				reg.MinX = x
			}
			if x > reg.MaxX {
				reg.MaxX = x
			}
			if y < reg.MinY {
				reg.MinY = y
			}
			if y > reg.MaxY {
				reg.MaxY = y
			}
			dst.SetRGBA(x, y, overlayColor)
		}
	}

	if reg.Found {
		log.Printf("🎯 Keyed region: %d px (%.1f%%), box (%d,%d)-(%d,%d)",
			reg.Pixels, reg.Coverage(w, h), reg.MinX, reg.MinY, reg.MaxX, reg.MaxY)
	}
	return dst, reg
}

// MixImages blends the overlay into the source frame using the filtered
// halo as a per-pixel alpha ramp: alpha = halo * keyScale >> 8, output =
// (src*(255-alpha) + overlay*alpha) >> 8 per channel, clamped. The halo
// image is grayscale content in RGBA form; channel 0 carries the
// intensity.
func MixImages(src, overlay, halo *image.RGBA, keyScale int) (*image.RGBA, error) {
	sb, ob, hb := src.Bounds(), overlay.Bounds(), halo.Bounds()
	if sb.Dx() != ob.Dx() || sb.Dy() != ob.Dy() || sb.Dx() != hb.Dx() || sb.Dy() != hb.Dy() {
		return nil, fmt.Errorf("glow: size mismatch src %v overlay %v halo %v", sb.Size(), ob.Size(), hb.Size())
	}
	w, h := sb.Dx(), sb.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		so := src.PixOffset(sb.Min.X, sb.Min.Y+y)
		oo := overlay.PixOffset(ob.Min.X, ob.Min.Y+y)
		ho := halo.PixOffset(hb.Min.X, hb.Min.Y+y)
		do := out.PixOffset(0, y)
		for x := 0; x < w; x++ {
			alpha := (int(halo.Pix[ho]) * keyScale) >> 8
			for k := 0; k < 4; k++ {
				v := (int(src.Pix[so+k])*(255-alpha) + int(overlay.Pix[oo+k])*alpha) >> 8
				if v < 0 {
					v = 0
				}
				if v > 255 {
					v = 255
				}
				out.Pix[do+k] = uint8(v)
			}
			so += 4
			oo += 4
			ho += 4
			do += 4
		}
	}
	return out, nil
}
