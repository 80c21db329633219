package glow

import (
	"image"
	"log"

	"github.com/glowfx/glowpipe/pkg/gpu"
)

// maskToKeyRGBA writes the 4-channel key conversion of mask into dst:
// pixels equal to keyLevel become opaque grayscale, everything else
// fully transparent zero. The mask is resized to w x h first if needed.
func maskToKeyRGBA(mask *image.Gray, w, h int, keyLevel uint8, dst []byte) {
	m := ResizeMask(mask, w, h)
	b := m.Bounds()
	for y := 0; y < h; y++ {
		row := m.Pix[m.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < w; x++ {
			o := (y*w + x) * 4
			if g := row[x]; g == keyLevel {
				dst[o], dst[o+1], dst[o+2], dst[o+3] = g, g, g, 255
			} else {
				dst[o], dst[o+1], dst[o+2], dst[o+3] = 0, 0, 0, 0
			}
		}
	}
}

func rgbaFrom(data []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, data)
	return img
}

// ApplyMipmap runs the key conversion and glow filter synchronously for
// one mask. The pipelined path for mask sequences is
// TripleBufferedMipmap.
func ApplyMipmap(dev *gpu.Device, mask *image.Gray, scale float64, keyLevel uint8) (*image.RGBA, error) {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()

	src, err := dev.MallocHost(w * h * 4)
	if err != nil {
		return nil, err
	}
	defer src.Free()
	dst, err := dev.MallocHost(w * h * 4)
	if err != nil {
		return nil, err
	}
	defer dst.Free()
	s, err := dev.NewStream()
	if err != nil {
		return nil, err
	}
	defer s.Close()

	maskToKeyRGBA(mask, w, h, keyLevel, src.Bytes())
	if err := gpu.LaunchMipmapFilter(w, h, scale, src, dst, s); err != nil {
		return nil, err
	}
	if err := s.Synchronize(); err != nil {
		return nil, err
	}
	return rgbaFrom(dst.Bytes(), w, h), nil
}

// MipmapStats summarizes one TripleBufferedMipmap pass.
type MipmapStats struct {
	Filtered    int
	Stragglers  int // results not ready at their poll point, collected late
	MaxInFlight int
}

// mipmapSlot is one of the three reusable buffer/stream/event tuples.
// item is the logical index currently in flight, -1 when idle.
type mipmapSlot struct {
	src    *gpu.HostBuffer
	dst    *gpu.HostBuffer
	stream *gpu.Stream
	event  *gpu.Event
	item   int
}

func (s *mipmapSlot) release() {
	if s.stream != nil {
		s.stream.Close()
	}
	if s.src != nil {
		s.src.Free()
	}
	if s.dst != nil {
		s.dst.Free()
	}
}

// TripleBufferedMipmap filters a mask sequence through three rotating
// slots, overlapping issue of item i with the completion poll of item
// i-2. A slot whose previous result was not ready at its poll point is
// waited out before reuse, so at most three items are ever in flight
// and no output is dropped.
func TripleBufferedMipmap(dev *gpu.Device, masks []*image.Gray, w, h int, scale float64, keyLevel uint8) ([]*image.RGBA, MipmapStats, error) {
	n := len(masks)
	out := make([]*image.RGBA, n)
	var stats MipmapStats
	if n == 0 {
		return out, stats, nil
	}

	var slots [3]*mipmapSlot
	defer func() {
		for _, s := range slots {
			if s != nil {
				s.release()
			}
		}
	}()
	for i := range slots {
		s := &mipmapSlot{item: -1}
		slots[i] = s
		var err error
		if s.src, err = dev.MallocHost(w * h * 4); err != nil {
			return nil, stats, err
		}
		if s.dst, err = dev.MallocHost(w * h * 4); err != nil {
			return nil, stats, err
		}
		if s.stream, err = dev.NewStream(); err != nil {
			return nil, stats, err
		}
		if s.event, err = dev.NewEvent(); err != nil {
			return nil, stats, err
		}
	}

	inFlight := 0
	collect := func(s *mipmapSlot) {
		out[s.item] = rgbaFrom(s.dst.Bytes(), w, h)
		s.item = -1
		stats.Filtered++
		inFlight--
	}

	for i := 0; i < n+2; i++ {
		if i < n {
			s := slots[i%3]
			if s.item >= 0 {
				// Reuse would overwrite an unconsumed result. Wait it
				// out; in-flight work stays bounded at three.
				if err := s.event.Synchronize(); err != nil {
					return nil, stats, err
				}
				collect(s)
				stats.Stragglers++
			}
			maskToKeyRGBA(masks[i], w, h, keyLevel, s.src.Bytes())
			if err := gpu.LaunchMipmapFilter(w, h, scale, s.src, s.dst, s.stream); err != nil {
				return nil, stats, err
			}
			if err := s.event.Record(s.stream); err != nil {
				return nil, stats, err
			}
			s.item = i
			inFlight++
			if inFlight > stats.MaxInFlight {
				stats.MaxInFlight = inFlight
			}
		}
		if j := i - 2; j >= 0 && j < n {
			if s := slots[j%3]; s.item == j {
				ok, err := s.event.Query()
				if err != nil {
					return nil, stats, err
				}
				if ok {
					collect(s)
				}
			}
		}
	}

	// Anything the poll pass left behind, plus async filter errors.
	for _, s := range slots {
		if s.item >= 0 {
			if err := s.event.Synchronize(); err != nil {
				return nil, stats, err
			}
			collect(s)
			stats.Stragglers++
		}
		if err := s.stream.Synchronize(); err != nil {
			return nil, stats, err
		}
	}

	log.Printf("🌫️  Mipmap pass: %d masks filtered, %d stragglers, max %d in flight",
		stats.Filtered, stats.Stragglers, stats.MaxInFlight)
	return out, stats, nil
}
