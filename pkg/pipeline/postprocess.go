package pipeline

import (
	"errors"
	"log"

	"github.com/glowfx/glowpipe/pkg/gpu"
)

// captureState tracks the per-worker graph capture lifecycle.
//
//	uncaptured -> captured   (first successful capture, then replayed)
//	uncaptured -> fallback   (capture failed once; terminal, direct dispatch)
type captureState int

const (
	captureUncaptured captureState = iota
	captureCaptured
	captureFallback
)

// postProcessor reduces the raw per-class score tensor to the compact
// mask. It tries once per worker to record the reduction kernel into a
// replayable graph; on failure it permanently dispatches directly. One
// postProcessor per worker, never shared.
type postProcessor struct {
	worker int
	stream *gpu.Stream

	state captureState
	graph *gpu.Graph
	exec  *gpu.GraphExec

	// Identity of the buffers baked into the captured graph. Replaying
	// against different addresses would touch stale memory, so a change
	// forces a re-capture.
	capScores *gpu.DeviceBuffer
	capMask   *gpu.DeviceBuffer
	capDims   [4]int

	recaptures int
}

func newPostProcessor(worker int, stream *gpu.Stream) *postProcessor {
	return &postProcessor{worker: worker, stream: stream}
}

// Run enqueues the argmax reduction for scores -> mask on the
// post-process stream, through the graph when one is live.
func (p *postProcessor) Run(scores, mask *gpu.DeviceBuffer, batch, classes, h, w int) error {
	dims := [4]int{batch, classes, h, w}

	switch p.state {
	case captureFallback:
		return gpu.LaunchArgmax(scores, mask, batch, classes, h, w, p.stream)

	case captureCaptured:
		if scores == p.capScores && mask == p.capMask && dims == p.capDims {
			return p.exec.Launch(p.stream)
		}
		// New buffers: the recorded addresses are stale.
		p.dropGraph()
		p.recaptures++
		fallthrough

	default:
		if err := p.capture(scores, mask, batch, classes, h, w); err != nil {
			log.Printf("⚠️  Worker %d: graph capture failed, using direct dispatch: %v", p.worker, err)
			p.dropGraph()
			p.state = captureFallback
			return gpu.LaunchArgmax(scores, mask, batch, classes, h, w, p.stream)
		}
		p.capScores, p.capMask, p.capDims = scores, mask, dims
		if p.recaptures == 0 {
			log.Printf("📈 Worker %d: post-processing graph captured", p.worker)
		}
		p.state = captureCaptured
		return p.exec.Launch(p.stream)
	}
}

// capture records one reduction launch and instantiates the executable.
// Partial state is discarded by the caller on failure.
func (p *postProcessor) capture(scores, mask *gpu.DeviceBuffer, batch, classes, h, w int) error {
	if err := p.stream.BeginCapture(gpu.CaptureModeRelaxed); err != nil {
		return &CaptureError{Err: err}
	}
	if err := gpu.LaunchArgmax(scores, mask, batch, classes, h, w, p.stream); err != nil {
		// Leave capture mode before bailing so the stream stays usable.
		if _, endErr := p.stream.EndCapture(); endErr != nil {
			err = errors.Join(err, endErr)
		}
		return &CaptureError{Err: err}
	}
	graph, err := p.stream.EndCapture()
	if err != nil {
		return &CaptureError{Err: err}
	}
	exec, err := graph.Instantiate()
	if err != nil {
		graph.Destroy()
		return &CaptureError{Err: err}
	}
	p.graph, p.exec = graph, exec
	return nil
}

func (p *postProcessor) dropGraph() {
	if p.exec != nil {
		p.exec.Destroy()
		p.exec = nil
	}
	if p.graph != nil {
		p.graph.Destroy()
		p.graph = nil
	}
}

// GraphActive reports whether the worker is on the captured path.
func (p *postProcessor) GraphActive() bool { return p.state == captureCaptured }

// Close releases graph resources at worker teardown.
func (p *postProcessor) Close() { p.dropGraph() }
