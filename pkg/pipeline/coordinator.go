// Package pipeline fans frames out over concurrent inference workers
// and gathers the segmentation masks back in submission order. Each
// worker owns its execution context and streams; the engine and device
// are the only shared objects.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"github.com/glowfx/glowpipe/pkg/engine"
	"github.com/glowfx/glowpipe/pkg/gpu"
	"github.com/glowfx/glowpipe/pkg/tensor"
)

// Coordinator runs batches of frames through a shared engine.
type Coordinator struct {
	dev  *gpu.Device
	eng  *engine.Engine
	opts Options
}

// New creates a coordinator over an already-loaded engine.
func New(dev *gpu.Device, eng *engine.Engine, opts Options) *Coordinator {
	return &Coordinator{dev: dev, eng: eng, opts: opts.withDefaults()}
}

// Engine returns the shared engine.
func (c *Coordinator) Engine() *engine.Engine { return c.eng }

// RunStats summarizes one Process call.
type RunStats struct {
	Workers  []WorkerStats
	Frames   int
	Failures int
	Elapsed  time.Duration
}

// span is one worker's half-open index range.
type span struct{ start, end int }

// partition splits n items across workers in contiguous runs of
// ceil(n/workers). Ranges are disjoint and cover [0, n); trailing
// workers may get empty ranges.
func partition(n, workers int) []span {
	per := (n + workers - 1) / workers
	spans := make([]span, workers)
	for i := range spans {
		start := i * per
		end := start + per
		if start > n {
			start = n
		}
		if end > n {
			end = n
		}
		spans[i] = span{start: start, end: end}
	}
	return spans
}

// partitionFixed splits n items into chunks of the fixed batch shape,
// one worker per chunk. The trailing chunk may be short; the worker
// pads it and discards the padded tail.
func partitionFixed(n, size int) []span {
	chunks := (n + size - 1) / size
	spans := make([]span, chunks)
	for i := range spans {
		start := i * size
		end := start + size
		if end > n {
			end = n
		}
		spans[i] = span{start: start, end: end}
	}
	return spans
}

// Process runs every frame through segmentation and returns one mask
// per frame, index-aligned with the input. Item and worker failures
// yield blank masks rather than an error; Process errors only when the
// whole run cannot start.
func (c *Coordinator) Process(ctx context.Context, frames []*tensor.Tensor) ([]*image.Gray, RunStats, error) {
	var stats RunStats
	if len(frames) == 0 {
		return nil, stats, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	began := time.Now()
	sink := &resultSink{masks: make([]*image.Gray, len(frames))}
	var spans []span
	if c.opts.FixedBatch > 0 {
		spans = partitionFixed(len(frames), c.opts.FixedBatch)
	} else {
		spans = partition(len(frames), c.opts.NumWorkers)
	}
	results := make([]WorkerStats, len(spans))

	var wg sync.WaitGroup
	for i, sp := range spans {
		wg.Add(1)
		go func(id int, sp span) {
			defer wg.Done()
			results[id] = runWorker(ctx, c.dev, c.eng, c.opts, frames, sp.start, sp.end, id, sink)
		}(i, sp)
	}
	wg.Wait()

	stats.Workers = results
	stats.Elapsed = time.Since(began)
	for _, ws := range results {
		stats.Frames += ws.Frames
		stats.Failures += ws.Failures
		if ws.Frames > 0 || ws.Failures > 0 {
			log.Printf("📊 Worker %d: %d frames in %.3fs (%.1f fps), graph=%v, failures=%d",
				ws.Worker, ws.Frames, ws.Seconds, ws.FPS(), ws.GraphUsed, ws.Failures)
		}
	}
	log.Printf("✅ Batch done: %d/%d frames in %v", stats.Frames, len(frames), stats.Elapsed)

	// A worker that died before reaching an item leaves a nil slot.
	for i, m := range sink.masks {
		if m == nil {
			sink.masks[i] = blankMask(frames[i])
		}
	}
	return sink.masks, stats, nil
}

// ProcessPlan loads a plan from disk and runs frames through it. The
// load error is recoverable; callers may retry with another path.
func ProcessPlan(ctx context.Context, dev *gpu.Device, rt *engine.Runtime, path string, frames []*tensor.Tensor, opts Options) ([]*image.Gray, RunStats, error) {
	if rt == nil {
		return nil, RunStats{}, fmt.Errorf("pipeline: nil runtime")
	}
	eng, err := rt.LoadPlan(path)
	if err != nil {
		return nil, RunStats{}, err
	}
	return New(dev, eng, opts).Process(ctx, frames)
}
