package gpu

import (
	"fmt"
	"unsafe"
)

// LaunchArgmax enqueues the segmentation reduction kernel on s: for
// every pixel of every batch item it finds the class with the maximum
// score in scores (float32, batch x classes x h x w) and writes
// classIndex * (255 / classes) as one byte into out (batch x h x w).
// The reduction is pure per-pixel work with no data-dependent control
// flow, which is what makes it legal to record into a graph.
func LaunchArgmax(scores *DeviceBuffer, out *DeviceBuffer, batch, classes, h, w int, s *Stream) error {
	if batch <= 0 || classes <= 0 || h <= 0 || w <= 0 {
		return fmt.Errorf("gpu: argmax invalid dims %dx%dx%dx%d", batch, classes, h, w)
	}
	if need := batch * classes * h * w * 4; scores.Size() < need {
		return fmt.Errorf("gpu: argmax scores buffer %d < %d", scores.Size(), need)
	}
	if need := batch * h * w; out.Size() < need {
		return fmt.Errorf("gpu: argmax output buffer %d < %d", out.Size(), need)
	}
	scale := byte(255 / classes)
	return s.launch("argmax", func() error {
		if scores.freed.Load() || out.freed.Load() {
			return fmt.Errorf("argmax touched freed buffer")
		}
		in := unsafe.Slice((*float32)(unsafe.Pointer(&scores.data[0])), batch*classes*h*w)
		dst := out.data
		plane := h * w
		for b := 0; b < batch; b++ {
			base := b * classes * plane
			for p := 0; p < plane; p++ {
				best, bestScore := 0, in[base+p]
				for c := 1; c < classes; c++ {
					if v := in[base+c*plane+p]; v > bestScore {
						best, bestScore = c, v
					}
				}
				dst[b*plane+p] = byte(best) * scale
			}
		}
		return nil
	})
}

// LaunchMipmapFilter enqueues the glow-spread filter on s: src (RGBA,
// w x h) is box-downsampled by scale and bilinearly expanded back into
// dst, spreading opaque key pixels into a soft halo. src and dst are
// pinned so the filter runs zero-copy.
func LaunchMipmapFilter(w, h int, scale float64, src, dst *HostBuffer, s *Stream) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("gpu: mipmap invalid dims %dx%d", w, h)
	}
	if scale < 1 {
		scale = 1
	}
	if need := w * h * 4; src.Size() < need || dst.Size() < need {
		return fmt.Errorf("gpu: mipmap buffers too small for %dx%d RGBA", w, h)
	}
	return s.launch("mipmap-filter", func() error {
		if src.freed.Load() || dst.freed.Load() {
			return fmt.Errorf("mipmap touched freed buffer")
		}
		mipmapFilter(w, h, scale, src.data, dst.data)
		return nil
	})
}

// mipmapFilter is the host-side rendition of the filter kernel.
func mipmapFilter(w, h int, scale float64, src, dst []byte) {
	step := int(scale)
	if step < 1 {
		step = 1
	}
	mw := (w + step - 1) / step
	mh := (h + step - 1) / step

	// Box-downsample into the mip level.
	mip := make([][4]float64, mw*mh)
	for my := 0; my < mh; my++ {
		for mx := 0; mx < mw; mx++ {
			var acc [4]float64
			n := 0
			for y := my * step; y < (my+1)*step && y < h; y++ {
				for x := mx * step; x < (mx+1)*step && x < w; x++ {
					o := (y*w + x) * 4
					for k := 0; k < 4; k++ {
						acc[k] += float64(src[o+k])
					}
					n++
				}
			}
			if n > 0 {
				for k := 0; k < 4; k++ {
					acc[k] /= float64(n)
				}
			}
			mip[my*mw+mx] = acc
		}
	}

	// Bilinear expand back to full resolution.
	for y := 0; y < h; y++ {
		fy := (float64(y) + 0.5) / float64(step)
		y0 := int(fy - 0.5)
		ty := fy - 0.5 - float64(y0)
		y1 := y0 + 1
		y0, y1 = clampIdx(y0, mh), clampIdx(y1, mh)
		for x := 0; x < w; x++ {
			fx := (float64(x) + 0.5) / float64(step)
			x0 := int(fx - 0.5)
			tx := fx - 0.5 - float64(x0)
			x1 := x0 + 1
			x0, x1 = clampIdx(x0, mw), clampIdx(x1, mw)

			o := (y*w + x) * 4
			for k := 0; k < 4; k++ {
				top := mip[y0*mw+x0][k]*(1-tx) + mip[y0*mw+x1][k]*tx
				bot := mip[y1*mw+x0][k]*(1-tx) + mip[y1*mw+x1][k]*tx
				v := top*(1-ty) + bot*ty
				if v < 0 {
					v = 0
				}
				if v > 255 {
					v = 255
				}
				dst[o+k] = byte(v)
			}
		}
	}
}

func clampIdx(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
