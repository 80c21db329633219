package pipeline

import (
	"testing"

	"github.com/glowfx/glowpipe/pkg/gpu"
)

// scoresFor stages a score tensor onto the device where every pixel
// wins cls.
func scoresFor(t *testing.T, dev *gpu.Device, s *gpu.Stream, cls, classes, h, w int) *gpu.DeviceBuffer {
	t.Helper()
	n := classes * h * w
	host, err := dev.MallocHost(n * 4)
	if err != nil {
		t.Fatalf("MallocHost: %v", err)
	}
	defer host.Free()
	buf, err := dev.Malloc(n * 4)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}
	t.Cleanup(func() { buf.Free() })

	vals := host.Float32s()
	plane := h * w
	for c := 0; c < classes; c++ {
		v := float32(0.1)
		if c == cls {
			v = 0.9
		}
		for p := 0; p < plane; p++ {
			vals[c*plane+p] = v
		}
	}
	if err := gpu.MemcpyAsync(buf, host, n*4, gpu.HostToDevice, s); err != nil {
		t.Fatalf("H2D: %v", err)
	}
	if err := s.Synchronize(); err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
	return buf
}

func readMask(t *testing.T, dev *gpu.Device, s *gpu.Stream, mask *gpu.DeviceBuffer, n int) []byte {
	t.Helper()
	host, err := dev.MallocHost(n)
	if err != nil {
		t.Fatalf("MallocHost: %v", err)
	}
	defer host.Free()
	if err := gpu.MemcpyAsync(host, mask, n, gpu.DeviceToHost, s); err != nil {
		t.Fatalf("D2H: %v", err)
	}
	if err := s.Synchronize(); err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
	out := make([]byte, n)
	copy(out, host.Bytes())
	return out
}

func TestPostProcessorCapturesThenReplays(t *testing.T) {
	t.Parallel()
	dev := testDevice(t, gpu.Options{})
	s, err := dev.NewStream()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	const classes, h, w = 4, 3, 3
	scores := scoresFor(t, dev, s, 2, classes, h, w)
	mask, err := dev.Malloc(h * w)
	if err != nil {
		t.Fatal(err)
	}
	defer mask.Free()

	pp := newPostProcessor(0, s)
	defer pp.Close()

	if pp.GraphActive() {
		t.Fatal("graph active before first run")
	}
	for i := 0; i < 3; i++ {
		if err := pp.Run(scores, mask, 1, classes, h, w); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
		if err := s.Synchronize(); err != nil {
			t.Fatalf("Synchronize %d: %v", i, err)
		}
		if !pp.GraphActive() {
			t.Fatalf("graph inactive after run %d", i)
		}
	}
	if pp.recaptures != 0 {
		t.Fatalf("same buffers triggered %d re-captures", pp.recaptures)
	}

	want := byte(2) * byte(255/classes)
	for i, b := range readMask(t, dev, s, mask, h*w) {
		if b != want {
			t.Fatalf("mask[%d] = %d, want %d", i, b, want)
		}
	}
}

func TestPostProcessorRecapturesOnBufferChange(t *testing.T) {
	t.Parallel()
	dev := testDevice(t, gpu.Options{})
	s, err := dev.NewStream()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	const classes, h, w = 4, 2, 2
	scoresA := scoresFor(t, dev, s, 1, classes, h, w)
	scoresB := scoresFor(t, dev, s, 3, classes, h, w)
	mask, err := dev.Malloc(h * w)
	if err != nil {
		t.Fatal(err)
	}
	defer mask.Free()

	pp := newPostProcessor(0, s)
	defer pp.Close()

	if err := pp.Run(scoresA, mask, 1, classes, h, w); err != nil {
		t.Fatalf("Run A: %v", err)
	}
	if err := s.Synchronize(); err != nil {
		t.Fatal(err)
	}

	// A different scores buffer must not replay stale addresses.
	if err := pp.Run(scoresB, mask, 1, classes, h, w); err != nil {
		t.Fatalf("Run B: %v", err)
	}
	if err := s.Synchronize(); err != nil {
		t.Fatal(err)
	}
	if pp.recaptures != 1 {
		t.Fatalf("recaptures = %d, want 1", pp.recaptures)
	}
	if !pp.GraphActive() {
		t.Fatal("graph inactive after re-capture")
	}

	want := byte(3) * byte(255/classes)
	for i, b := range readMask(t, dev, s, mask, h*w) {
		if b != want {
			t.Fatalf("mask[%d] = %d, want %d (from scoresB)", i, b, want)
		}
	}
}

func TestPostProcessorFallbackIsTerminal(t *testing.T) {
	t.Parallel()
	dev := testDevice(t, gpu.Options{DisableGraphCapture: true})
	s, err := dev.NewStream()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	const classes, h, w = 4, 2, 2
	scores := scoresFor(t, dev, s, 0, classes, h, w)
	mask, err := dev.Malloc(h * w)
	if err != nil {
		t.Fatal(err)
	}
	defer mask.Free()

	pp := newPostProcessor(0, s)
	defer pp.Close()

	for i := 0; i < 3; i++ {
		if err := pp.Run(scores, mask, 1, classes, h, w); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
		if err := s.Synchronize(); err != nil {
			t.Fatal(err)
		}
		if pp.GraphActive() {
			t.Fatalf("graph active on a capture-disabled device (run %d)", i)
		}
	}
	if pp.state != captureFallback {
		t.Fatalf("state = %v, want fallback", pp.state)
	}

	// Direct dispatch still produces correct output.
	for i, b := range readMask(t, dev, s, mask, h*w) {
		if b != 0 {
			t.Fatalf("mask[%d] = %d, want 0 (class 0)", i, b)
		}
	}
}
