package pipeline

import (
	"context"
	"image"
	"log"
	"sync"
	"time"

	"github.com/glowfx/glowpipe/pkg/engine"
	"github.com/glowfx/glowpipe/pkg/gpu"
	"github.com/glowfx/glowpipe/pkg/tensor"
)

// resultSink collects masks from all workers. Index ranges are
// disjoint by construction; one mutex guards the slice.
type resultSink struct {
	mu    sync.Mutex
	masks []*image.Gray
}

func (r *resultSink) put(i int, m *image.Gray) {
	r.mu.Lock()
	r.masks[i] = m
	r.mu.Unlock()
}

// WorkerStats is one worker's contribution to the run summary.
type WorkerStats struct {
	Worker    int
	Frames    int
	Seconds   float64
	GraphUsed bool
	Failures  int
}

// FPS returns completed frames per second for the measured span.
func (s WorkerStats) FPS() float64 {
	if s.Seconds <= 0 {
		return 0
	}
	return float64(s.Frames) / s.Seconds
}

// worker owns one execution context, an inference stream, a
// post-process stream, and the post-process captor. Nothing here is
// shared across workers except the engine and the device.
type worker struct {
	id    int
	dev   *gpu.Device
	eng   *engine.Engine
	opts  Options
	ec    *engine.ExecutionContext
	infer *gpu.Stream
	post  *gpu.Stream
	pp    *postProcessor
}

// runWorker processes frames[start:end) and writes each mask to its
// global index in sink. A worker failure never propagates: it is
// logged, counted, and the remaining workers keep going.
func runWorker(runCtx context.Context, dev *gpu.Device, eng *engine.Engine, opts Options, frames []*tensor.Tensor, start, end, id int, sink *resultSink) WorkerStats {
	stats := WorkerStats{Worker: id}
	if start >= end {
		return stats
	}

	ec, err := eng.NewContext()
	if err != nil {
		log.Printf("⚠️  %v", &ContextCreationError{Worker: id, Err: err})
		stats.Failures = end - start
		return stats
	}
	defer ec.Destroy()

	w := &worker{id: id, dev: dev, eng: eng, opts: opts, ec: ec}
	if w.infer, err = dev.NewStream(); err != nil {
		log.Printf("⚠️  %v", &ContextCreationError{Worker: id, Err: err})
		stats.Failures = end - start
		return stats
	}
	defer w.infer.Close()
	if w.post, err = dev.NewStream(); err != nil {
		log.Printf("⚠️  %v", &ContextCreationError{Worker: id, Err: err})
		stats.Failures = end - start
		return stats
	}
	defer w.post.Close()
	w.pp = newPostProcessor(id, w.post)
	defer w.pp.Close()

	if opts.FixedBatch > 0 {
		return w.runBatched(frames, start, end, sink)
	}
	return w.runSingle(runCtx, frames, start, end, sink)
}

// runBatched runs the whole sub-batch as one fixed-shape inference
// call. Short sub-batches are padded by repeating the last item; the
// padded tail is computed and then discarded.
func (w *worker) runBatched(frames []*tensor.Tensor, start, end int, sink *resultSink) WorkerStats {
	stats := WorkerStats{Worker: w.id}
	valid := end - start

	fail := func(err error) WorkerStats {
		log.Printf("⚠️  Worker %d: %v", w.id, err)
		stats.Failures = valid
		return stats
	}

	stacked, err := tensor.Stack(frames[start:end])
	if err != nil {
		return fail(&DispatchError{Item: start, Err: err})
	}
	if valid > w.opts.FixedBatch {
		return fail(&InvalidShapeError{Item: start, Dims: stacked.Dims})
	}
	padded := stacked.PadBatch(w.opts.FixedBatch)

	if err := w.ec.SetInputShape(padded.Dims); err != nil {
		return fail(&DispatchError{Item: start, Err: err})
	}
	bs, err := allocBufferSet(w.dev, w.eng, w.ec, padded.Numel())
	if err != nil {
		return fail(&AllocationError{Item: start, Err: err})
	}
	defer bs.Free()

	copy(bs.HostIn.Float32s(), padded.Data)
	if err := gpu.MemcpyAsync(bs.DevIn, bs.HostIn, padded.Numel()*4, gpu.HostToDevice, w.infer); err != nil {
		return fail(&DispatchError{Item: start, Err: err})
	}

	for i := 0; i < w.opts.WarmupRuns; i++ {
		if err := w.ec.Enqueue(bs.Bindings(), w.infer); err != nil {
			return fail(&DispatchError{Item: start, Err: err})
		}
	}
	if err := w.infer.Synchronize(); err != nil {
		return fail(&DispatchError{Item: start, Err: err})
	}

	began := time.Now()
	if err := w.ec.Enqueue(bs.Bindings(), w.infer); err != nil {
		return fail(&DispatchError{Item: start, Err: err})
	}
	if err := w.infer.Synchronize(); err != nil {
		return fail(&DispatchError{Item: start, Err: err})
	}

	sd := bs.ScoreDims
	scores := bs.DevOut[len(bs.DevOut)-1]
	if err := w.pp.Run(scores, bs.DevMask, sd[0], sd[1], sd[2], sd[3]); err != nil {
		return fail(&DispatchError{Item: start, Err: err})
	}
	if err := gpu.MemcpyAsync(bs.HostMask, bs.DevMask, bs.DevMask.Size(), gpu.DeviceToHost, w.post); err != nil {
		return fail(&DispatchError{Item: start, Err: err})
	}
	if err := w.post.Synchronize(); err != nil {
		return fail(&DispatchError{Item: start, Err: err})
	}
	stats.Seconds = time.Since(began).Seconds()
	stats.Frames = valid
	stats.GraphUsed = w.pp.GraphActive()

	plane := sd[2] * sd[3]
	raw := bs.HostMask.Bytes()
	for i := 0; i < valid; i++ {
		sink.put(start+i, grayFromMask(raw[i*plane:(i+1)*plane], sd[2], sd[3]))
	}
	return stats
}

// runSingle runs one inference per item. Failures are item-scoped: the
// item gets a blank mask and the loop continues. Cancellation is
// checked between items, never mid-item.
func (w *worker) runSingle(runCtx context.Context, frames []*tensor.Tensor, start, end int, sink *resultSink) WorkerStats {
	stats := WorkerStats{Worker: w.id}
	began := time.Now()
	for i := start; i < end; i++ {
		if err := runCtx.Err(); err != nil {
			log.Printf("🛑 Worker %d: cancelled after %d frames: %v", w.id, stats.Frames, err)
			stats.Failures += end - i
			break
		}
		if err := w.processOne(frames[i], i, sink); err != nil {
			log.Printf("⚠️  Worker %d: %v", w.id, err)
			stats.Failures++
			sink.put(i, blankMask(frames[i]))
			continue
		}
		stats.Frames++
	}
	stats.Seconds = time.Since(began).Seconds()
	stats.GraphUsed = w.pp.GraphActive()
	return stats
}

func (w *worker) processOne(t *tensor.Tensor, idx int, sink *resultSink) error {
	if t == nil || t.Dims[0] != 1 || t.Dims[1] <= 0 || t.Dims[2] <= 0 || t.Dims[3] <= 0 {
		var dims [4]int
		if t != nil {
			dims = t.Dims
		}
		return &InvalidShapeError{Item: idx, Dims: dims}
	}
	if err := w.ec.SetInputShape(t.Dims); err != nil {
		return &DispatchError{Item: idx, Err: err}
	}
	bs, err := allocBufferSet(w.dev, w.eng, w.ec, t.Numel())
	if err != nil {
		return &AllocationError{Item: idx, Err: err}
	}
	defer bs.Free()

	copy(bs.HostIn.Float32s(), t.Data)
	if err := gpu.MemcpyAsync(bs.DevIn, bs.HostIn, t.Numel()*4, gpu.HostToDevice, w.infer); err != nil {
		return &DispatchError{Item: idx, Err: err}
	}
	if err := w.ec.Enqueue(bs.Bindings(), w.infer); err != nil {
		return &DispatchError{Item: idx, Err: err}
	}
	if err := w.infer.Synchronize(); err != nil {
		return &DispatchError{Item: idx, Err: err}
	}

	sd := bs.ScoreDims
	scores := bs.DevOut[len(bs.DevOut)-1]
	if err := w.pp.Run(scores, bs.DevMask, sd[0], sd[1], sd[2], sd[3]); err != nil {
		return &DispatchError{Item: idx, Err: err}
	}
	if err := gpu.MemcpyAsync(bs.HostMask, bs.DevMask, bs.DevMask.Size(), gpu.DeviceToHost, w.post); err != nil {
		return &DispatchError{Item: idx, Err: err}
	}
	if err := w.post.Synchronize(); err != nil {
		return &DispatchError{Item: idx, Err: err}
	}

	sink.put(idx, grayFromMask(bs.HostMask.Bytes(), sd[2], sd[3]))
	return nil
}

// grayFromMask copies mask bytes into a standalone grayscale image.
// The source buffer is freed by the caller, so the pixels are copied.
func grayFromMask(data []byte, h, w int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	copy(g.Pix, data)
	return g
}

// blankMask is the placeholder for a failed item: all-zero pixels at
// the item's own resolution.
func blankMask(t *tensor.Tensor) *image.Gray {
	h, w := 1, 1
	if t != nil && t.Dims[2] > 0 && t.Dims[3] > 0 {
		h, w = t.Dims[2], t.Dims[3]
	}
	return image.NewGray(image.Rect(0, 0, w, h))
}
