package gpu

import "fmt"

// CaptureMode selects how strictly capture isolates the stream.
type CaptureMode int

const (
	// CaptureModeRelaxed permits the rest of the device to keep working
	// while this stream records: other streams launch freely and the
	// host may allocate. The recording stream's own safety rule is
	// unchanged: buffers referenced by the graph must be allocated
	// before capture begins.
	CaptureModeRelaxed CaptureMode = iota

	// CaptureModeGlobal fences the whole device: any allocation fails
	// while the capture is open.
	CaptureModeGlobal
)

// Graph is a recorded command sequence. It holds the captured
// operations with their argument addresses baked in; Instantiate turns
// it into a launchable executable.
type Graph struct {
	nodes     []op
	destroyed bool
}

// GraphExec is an instantiated, replayable graph.
type GraphExec struct {
	nodes     []op
	destroyed bool
}

// BeginCapture puts s into capture mode: subsequent launches on s are
// recorded rather than executed. Fails with ErrCaptureUnsupported when
// the device cannot capture.
func (s *Stream) BeginCapture(mode CaptureMode) error {
	if s.dev.opts.DisableGraphCapture {
		return ErrCaptureUnsupported
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("gpu: capture on closed stream")
	}
	if s.capturing {
		return fmt.Errorf("gpu: nested capture")
	}
	s.capturing = true
	s.capMode = mode
	s.captured = nil
	if mode == CaptureModeGlobal {
		s.dev.capturing.Add(1)
	}
	return nil
}

// EndCapture leaves capture mode and returns the recorded graph. An
// empty capture is an error: it means nothing was launched between
// Begin and End.
func (s *Stream) EndCapture() (*Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.capturing {
		return nil, fmt.Errorf("gpu: end capture without begin")
	}
	s.capturing = false
	if s.capMode == CaptureModeGlobal {
		s.dev.capturing.Add(-1)
	}
	nodes := s.captured
	s.captured = nil
	if len(nodes) == 0 {
		return nil, fmt.Errorf("gpu: empty capture")
	}
	return &Graph{nodes: nodes}, nil
}

// Instantiate builds an executable from the graph.
func (g *Graph) Instantiate() (*GraphExec, error) {
	if g.destroyed {
		return nil, fmt.Errorf("gpu: instantiate destroyed graph")
	}
	nodes := make([]op, len(g.nodes))
	copy(nodes, g.nodes)
	return &GraphExec{nodes: nodes}, nil
}

// Launch replays the recorded operations on s in capture order.
func (x *GraphExec) Launch(s *Stream) error {
	if x.destroyed {
		return fmt.Errorf("gpu: launch destroyed graph exec")
	}
	for _, n := range x.nodes {
		if err := s.launch(n.name, n.fn); err != nil {
			return err
		}
	}
	return nil
}

// Destroy releases the graph. Safe to call once.
func (g *Graph) Destroy() {
	g.destroyed = true
	g.nodes = nil
}

// Destroy releases the executable. Safe to call once.
func (x *GraphExec) Destroy() {
	x.destroyed = true
	x.nodes = nil
}
