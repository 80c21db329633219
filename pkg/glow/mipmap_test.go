package glow

import (
	"image"
	"testing"

	"github.com/glowfx/glowpipe/pkg/gpu"
)

func testDevice(t *testing.T) *gpu.Device {
	t.Helper()
	d, err := gpu.Open(gpu.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return d
}

func TestApplyMipmapUniformKey(t *testing.T) {
	t.Parallel()
	const key = 96
	dev := testDevice(t)

	// A fully keyed mask converts to a constant opaque field, which the
	// filter leaves unchanged.
	out, err := ApplyMipmap(dev, uniformGray(8, 8, key), 2, key)
	if err != nil {
		t.Fatalf("ApplyMipmap: %v", err)
	}
	for i := 0; i < len(out.Pix); i += 4 {
		if out.Pix[i] != key || out.Pix[i+3] != 255 {
			t.Fatalf("pixel %d = %v, want {%d _ _ 255}", i/4, out.Pix[i:i+4], key)
		}
	}

	// A mask with no keyed pixels filters to nothing.
	blank, err := ApplyMipmap(dev, uniformGray(8, 8, 0), 2, key)
	if err != nil {
		t.Fatalf("ApplyMipmap: %v", err)
	}
	for i, p := range blank.Pix {
		if p != 0 {
			t.Fatalf("unkeyed mask produced pixel %d = %d", i, p)
		}
	}
}

func TestTripleBufferedMipmapOrderAndBound(t *testing.T) {
	t.Parallel()
	const key, w, h, n = 96, 8, 8, 11
	dev := testDevice(t)

	// Even masks are fully keyed, odd masks are not: output i must match
	// mask i, proving slot rotation never mixes items up.
	masks := make([]*image.Gray, n)
	for i := range masks {
		if i%2 == 0 {
			masks[i] = uniformGray(w, h, key)
		} else {
			masks[i] = uniformGray(w, h, 0)
		}
	}

	out, stats, err := TripleBufferedMipmap(dev, masks, w, h, 2, key)
	if err != nil {
		t.Fatalf("TripleBufferedMipmap: %v", err)
	}
	if len(out) != n {
		t.Fatalf("%d outputs, want %d", len(out), n)
	}
	for i, img := range out {
		if img == nil {
			t.Fatalf("output %d missing", i)
		}
		wantAlpha := uint8(0)
		if i%2 == 0 {
			wantAlpha = 255
		}
		if got := img.Pix[3]; got != wantAlpha {
			t.Fatalf("output %d alpha = %d, want %d", i, got, wantAlpha)
		}
	}

	if stats.Filtered != n {
		t.Fatalf("Filtered = %d, want %d", stats.Filtered, n)
	}
	// Three physical slots bound the in-flight work.
	if stats.MaxInFlight > 3 {
		t.Fatalf("MaxInFlight = %d, exceeds the 3 slots", stats.MaxInFlight)
	}
	if stats.MaxInFlight < 1 {
		t.Fatalf("MaxInFlight = %d, nothing was pipelined", stats.MaxInFlight)
	}
}

func TestTripleBufferedMipmapSmallBatches(t *testing.T) {
	t.Parallel()
	const key = 96
	dev := testDevice(t)

	for _, n := range []int{0, 1, 2, 3} {
		masks := make([]*image.Gray, n)
		for i := range masks {
			masks[i] = uniformGray(4, 4, key)
		}
		out, stats, err := TripleBufferedMipmap(dev, masks, 4, 4, 2, key)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if len(out) != n || stats.Filtered != n {
			t.Fatalf("n=%d: %d outputs, %d filtered", n, len(out), stats.Filtered)
		}
		for i, img := range out {
			if img == nil {
				t.Fatalf("n=%d: output %d missing", n, i)
			}
		}
	}
}

func TestComposeFrame(t *testing.T) {
	t.Parallel()
	dev := testDevice(t)

	p := Params{KeyLevel: 96, KeyScale: 384, Scale: 2, Delta: 10}
	src := uniformRGBA(8, 8, 100, 100, 100, 255)
	mask := uniformGray(8, 8, p.KeyLevel)

	out, err := ComposeFrame(dev, src, mask, p)
	if err != nil {
		t.Fatalf("ComposeFrame: %v", err)
	}

	// Fully keyed frame: halo channel 0 is the key level everywhere, so
	// alpha = 96*384>>8 = 144 and the overlay dominates.
	alpha := (int(p.KeyLevel) * p.KeyScale) >> 8
	wantR := uint8((100*(255-alpha) + 128*alpha) >> 8)
	if got := out.RGBAAt(4, 4).R; got != wantR {
		t.Fatalf("composed R = %d, want %d", got, wantR)
	}
	wantG := uint8((100 * (255 - alpha)) >> 8)
	if got := out.RGBAAt(4, 4).G; got != wantG {
		t.Fatalf("composed G = %d, want %d", got, wantG)
	}
}

func TestComposeBatchLengthMismatch(t *testing.T) {
	t.Parallel()
	dev := testDevice(t)
	frames := []*image.RGBA{uniformRGBA(4, 4, 0, 0, 0, 255)}
	if _, err := ComposeBatch(dev, frames, nil, DefaultParams()); err == nil {
		t.Fatal("mismatched frames/masks succeeded, want error")
	}
}
