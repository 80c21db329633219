package gpu

import (
	"fmt"
	"unsafe"
)

// LaunchInference enqueues the segmentation forward pass on s. in holds
// the NCHW float32 input (dims), out receives per-class scores
// (batch x classes x h x w). The pass is deterministic so downstream
// argmax output is verifiable: each pixel's winning class is derived
// from its channel-0 intensity.
//
// Unlike the argmax and mipmap kernels this launch is NOT capturable;
// callers gate on Stream.Capturing before dispatch.
func LaunchInference(in *DeviceBuffer, out *DeviceBuffer, dims [4]int, classes int, s *Stream) error {
	n, c, h, w := dims[0], dims[1], dims[2], dims[3]
	if n <= 0 || c <= 0 || h <= 0 || w <= 0 || classes <= 0 {
		return fmt.Errorf("gpu: inference invalid dims %v classes=%d", dims, classes)
	}
	return s.launch("inference", func() error {
		if in.freed.Load() || out.freed.Load() {
			return fmt.Errorf("inference touched freed buffer")
		}
		src := unsafe.Slice((*float32)(unsafe.Pointer(&in.data[0])), n*c*h*w)
		dst := unsafe.Slice((*float32)(unsafe.Pointer(&out.data[0])), n*classes*h*w)
		plane := h * w
		for b := 0; b < n; b++ {
			inBase := b * c * plane
			outBase := b * classes * plane
			for p := 0; p < plane; p++ {
				v := src[inBase+p] // channel 0 drives the class
				if v < 0 {
					v = 0
				}
				if v > 0.999 {
					v = 0.999
				}
				target := int(v * float32(classes))
				for cls := 0; cls < classes; cls++ {
					d := cls - target
					if d < 0 {
						d = -d
					}
					dst[outBase+cls*plane+p] = 1 - float32(d)
				}
			}
		}
		return nil
	})
}
