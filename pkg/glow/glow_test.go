package glow

import (
	"image"
	"image/color"
	"testing"
)

func uniformGray(w, h int, v uint8) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, w, h))
	for i := range m.Pix {
		m.Pix[i] = v
	}
	return m
}

func uniformRGBA(w, h int, r, g, b, a uint8) *image.RGBA {
	m := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(m.Pix); i += 4 {
		m.Pix[i], m.Pix[i+1], m.Pix[i+2], m.Pix[i+3] = r, g, b, a
	}
	return m
}

func TestGlowBlowKeysRegion(t *testing.T) {
	t.Parallel()
	const key = 96
	mask := uniformGray(8, 8, 0)
	// Keyed block at (2,3)-(5,6), plus one pixel just inside the delta
	// band and one just outside it.
	for y := 3; y <= 6; y++ {
		for x := 2; x <= 5; x++ {
			mask.SetGray(x, y, color.Gray{Y: key})
		}
	}
	mask.SetGray(7, 0, color.Gray{Y: key + 9})  // |105-96| < 10: keyed
	mask.SetGray(0, 7, color.Gray{Y: key + 10}) // |106-96| = 10: not keyed

	overlay, reg := GlowBlow(mask, key, 10)

	if !reg.Found {
		t.Fatal("keyed region not found")
	}
	if reg.Pixels != 17 {
		t.Fatalf("Pixels = %d, want 17", reg.Pixels)
	}
	if reg.MinX != 2 || reg.MaxX != 7 || reg.MinY != 0 || reg.MaxY != 6 {
		t.Fatalf("box = (%d,%d)-(%d,%d), want (2,0)-(7,6)", reg.MinX, reg.MinY, reg.MaxX, reg.MaxY)
	}

	if got := overlay.RGBAAt(3, 4); got != overlayColor {
		t.Fatalf("keyed pixel = %v, want %v", got, overlayColor)
	}
	if got := overlay.RGBAAt(0, 0); got != (color.RGBA{}) {
		t.Fatalf("unkeyed pixel = %v, want transparent", got)
	}
	if got := overlay.RGBAAt(0, 7); got != (color.RGBA{}) {
		t.Fatalf("delta-edge pixel = %v, want transparent", got)
	}
}

func TestGlowBlowEmptyMask(t *testing.T) {
	t.Parallel()
	_, reg := GlowBlow(uniformGray(4, 4, 0), 96, 10)
	if reg.Found || reg.Pixels != 0 {
		t.Fatalf("empty mask reported region: %+v", reg)
	}
	if reg.Coverage(4, 4) != 0 {
		t.Fatalf("Coverage = %v, want 0", reg.Coverage(4, 4))
	}
}

func TestMixImagesBlend(t *testing.T) {
	t.Parallel()
	src := uniformRGBA(4, 4, 100, 100, 100, 255)
	overlay := uniformRGBA(4, 4, 128, 0, 128, 255)
	halo := uniformRGBA(4, 4, 96, 96, 96, 255)

	out, err := MixImages(src, overlay, halo, 384)
	if err != nil {
		t.Fatalf("MixImages: %v", err)
	}

	// alpha = 96*384>>8 = 144; channel = (src*(255-alpha)+ovl*alpha)>>8
	alpha := (96 * 384) >> 8
	wantR := uint8((100*(255-alpha) + 128*alpha) >> 8)
	wantG := uint8((100 * (255 - alpha)) >> 8)
	got := out.RGBAAt(2, 2)
	if got.R != wantR || got.G != wantG || got.B != wantR {
		t.Fatalf("blended pixel = %v, want R=%d G=%d B=%d", got, wantR, wantG, wantR)
	}

	// Zero halo leaves the source nearly untouched (>>8 floor).
	dark, err := MixImages(src, overlay, uniformRGBA(4, 4, 0, 0, 0, 255), 384)
	if err != nil {
		t.Fatal(err)
	}
	if got := dark.RGBAAt(1, 1).G; got != uint8((100*255)>>8) {
		t.Fatalf("zero-halo pixel G = %d, want %d", got, (100*255)>>8)
	}

	if _, err := MixImages(src, overlay, uniformRGBA(2, 2, 0, 0, 0, 255), 384); err == nil {
		t.Fatal("size mismatch succeeded, want error")
	}
}

func TestResizeMaskPreservesClassValues(t *testing.T) {
	t.Parallel()
	mask := image.NewGray(image.Rect(0, 0, 2, 2))
	mask.SetGray(0, 0, color.Gray{Y: 96})
	mask.SetGray(1, 0, color.Gray{Y: 63})
	mask.SetGray(0, 1, color.Gray{Y: 189})
	mask.SetGray(1, 1, color.Gray{Y: 0})

	big := ResizeMask(mask, 4, 4)
	seen := map[uint8]bool{}
	for _, p := range big.Pix {
		seen[p] = true
	}
	// Nearest-neighbor never invents intermediate values.
	for v := range seen {
		if v != 96 && v != 63 && v != 189 && v != 0 {
			t.Fatalf("resize invented value %d", v)
		}
	}
	if got := big.GrayAt(0, 0).Y; got != 96 {
		t.Fatalf("corner = %d, want 96", got)
	}

	// Same size returns the input untouched.
	if same := ResizeMask(mask, 2, 2); same != mask {
		t.Fatal("same-size resize returned a copy")
	}
}
