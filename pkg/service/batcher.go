package service

import (
	"context"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"

	glowv1 "github.com/glowfx/glowpipe/gen/glow/v1"
	"github.com/glowfx/glowpipe/pkg/glow"
	"github.com/glowfx/glowpipe/pkg/gpu"
	"github.com/glowfx/glowpipe/pkg/metrics"
	"github.com/glowfx/glowpipe/pkg/pipeline"
	"github.com/glowfx/glowpipe/pkg/tensor"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Processor runs a frame batch through segmentation. Satisfied by
// *pipeline.Coordinator.
type Processor interface {
	Process(ctx context.Context, frames []*tensor.Tensor) ([]*image.Gray, pipeline.RunStats, error)
}

// BatcherConfig holds tunable batching parameters.
type BatcherConfig struct {
	MaxBatchFrames int
	MaxWaitTime    time.Duration
}

// Batcher collects pending jobs from the queue and flushes their
// combined frames through the pipeline when enough have accumulated or
// the wait timer fires.
type Batcher struct {
	cfg    BatcherConfig
	queue  *JobQueue
	proc   Processor
	dev    *gpu.Device
	effect glow.Params
	notify chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	// Read by the stats endpoint
	TotalBatches   atomic.Int64
	TotalJobs      atomic.Int64
	TotalFrames    atomic.Int64
	TotalFailures  atomic.Int64
	LastBatchSize  atomic.Int32
	AvgLatencyMs   atomic.Int64 // exponential moving average
	GraphWorkers   atomic.Int32 // workers on the captured graph path, last batch
}

func NewBatcher(cfg BatcherConfig, queue *JobQueue, proc Processor, dev *gpu.Device, effect glow.Params) *Batcher {
	return &Batcher{
		cfg:    cfg,
		queue:  queue,
		proc:   proc,
		dev:    dev,
		effect: effect,
		notify: make(chan struct{}, 256),
		stopCh: make(chan struct{}),
	}
}

// Start begins the batching loop in a background goroutine.
func (b *Batcher) Start() {
	b.wg.Add(1)
	go b.loop()
	log.Printf("🔄 Batcher started: max_frames=%d, max_wait=%v", b.cfg.MaxBatchFrames, b.cfg.MaxWaitTime)
}

// Stop drains the queue and shuts the batcher down.
func (b *Batcher) Stop() {
	close(b.stopCh)
	b.wg.Wait()
}

// Signal notifies the batcher that a new job has arrived.
func (b *Batcher) Signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *Batcher) loop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.stopCh:
			b.drainRemaining()
			return
		case <-b.notify:
		}

		batch := b.collectBatch()
		if len(batch) == 0 {
			continue
		}
		b.executeBatch(batch)
	}
}

func (b *Batcher) collectBatch() []*PendingJob {
	timer := time.NewTimer(b.cfg.MaxWaitTime)
	defer timer.Stop()

	for {
		if b.queue.FrameDepth() >= b.cfg.MaxBatchFrames {
			return b.queue.DequeueUpTo(b.cfg.MaxBatchFrames)
		}
		select {
		case <-b.stopCh:
			return b.queue.DequeueUpTo(b.cfg.MaxBatchFrames)
		case <-timer.C:
			return b.queue.DequeueUpTo(b.cfg.MaxBatchFrames)
		case <-b.notify:
			continue
		}
	}
}

// jobSpan records one job's frame range within a flattened batch.
type jobSpan struct {
	job        *PendingJob
	start, end int
}

func (b *Batcher) executeBatch(batch []*PendingJob) {
	start := time.Now()

	// Flatten job frames into one tensor list, remembering each job's
	// range. A job with a malformed frame fails whole, before dispatch.
	var frames []*tensor.Tensor
	spans := make([]jobSpan, 0, len(batch))
	for _, job := range batch {
		s := len(frames)
		bad := false
		for _, f := range job.Req.Frames {
			t, err := frameTensor(f)
			if err != nil {
				job.ErrCh <- status.Errorf(codes.InvalidArgument, "job %s: %v", job.ID, err)
				frames = frames[:s]
				bad = true
				break
			}
			frames = append(frames, t)
		}
		if !bad {
			spans = append(spans, jobSpan{job: job, start: s, end: len(frames)})
		}
	}
	if len(frames) == 0 {
		return
	}

	ctx, finish := batchContext(jobsOf(spans))
	masks, stats, err := b.proc.Process(ctx, frames)
	finish()
	elapsed := time.Since(start)

	b.TotalBatches.Add(1)
	b.TotalJobs.Add(int64(len(spans)))
	b.TotalFrames.Add(int64(stats.Frames))
	b.TotalFailures.Add(int64(stats.Failures))
	b.LastBatchSize.Store(int32(len(frames)))
	graphWorkers := 0
	for _, ws := range stats.Workers {
		if ws.GraphUsed {
			graphWorkers++
		}
	}
	b.GraphWorkers.Store(int32(graphWorkers))

	latencyMs := elapsed.Milliseconds()
	if oldAvg := b.AvgLatencyMs.Load(); oldAvg == 0 {
		b.AvgLatencyMs.Store(latencyMs)
	} else {
		// EMA with alpha=0.3
		b.AvgLatencyMs.Store(int64(float64(oldAvg)*0.7 + float64(latencyMs)*0.3))
	}

	metrics.BatchesExecuted.Inc()
	metrics.FramesProcessed.Add(float64(stats.Frames))
	metrics.FrameFailures.Add(float64(stats.Failures))
	metrics.BatchLatency.Observe(elapsed.Seconds())
	metrics.GraphWorkers.Set(float64(graphWorkers))
	metrics.QueueDepth.Set(float64(b.queue.Depth()))

	log.Printf("📦 Batch executed: jobs=%d frames=%d latency=%v", len(spans), len(frames), elapsed)

	if err != nil {
		st := status.Errorf(codes.Internal, "pipeline: %v", err)
		for _, sp := range spans {
			sp.job.ErrCh <- st
		}
		return
	}

	for _, sp := range spans {
		queueWait := start.Sub(sp.job.EnqueueAt)
		resp := &glowv1.SubmitBatchResponse{
			JobId:       sp.job.ID,
			LatencyNs:   elapsed.Nanoseconds(),
			BatchSize:   int32(len(frames)),
			QueueWaitMs: int32(queueWait.Milliseconds()),
		}
		for i := sp.start; i < sp.end; i++ {
			resp.Masks = append(resp.Masks, maskMessage(i-sp.start, masks[i]))
		}
		if sp.job.Req.ReturnComposites {
			comps, err := b.compositeJob(frames[sp.start:sp.end], masks[sp.start:sp.end])
			if err != nil {
				sp.job.ErrCh <- status.Errorf(codes.Internal, "job %s: compose: %v", sp.job.ID, err)
				continue
			}
			resp.Composites = comps
		}
		sp.job.DoneCh <- resp
	}
}

// compositeJob runs the glow pass over one job's frames: the masks are
// resized and filtered through the triple-buffered mipmap pipeline,
// then blended over RGBA renditions of the submitted frames.
func (b *Batcher) compositeJob(frames []*tensor.Tensor, masks []*image.Gray) ([]*glowv1.CompositeImage, error) {
	srcs := make([]*image.RGBA, len(frames))
	for i, t := range frames {
		srcs[i] = tensorRGBA(t)
	}
	blended, err := glow.ComposeBatch(b.dev, srcs, masks, b.effect)
	if err != nil {
		return nil, err
	}
	out := make([]*glowv1.CompositeImage, len(blended))
	for i, img := range blended {
		out[i] = compositeMessage(i, img)
	}
	return out, nil
}

func jobsOf(spans []jobSpan) []*PendingJob {
	jobs := make([]*PendingJob, len(spans))
	for i, sp := range spans {
		jobs[i] = sp.job
	}
	return jobs
}

// batchContext derives the pipeline context for one batch: it cancels
// once every submitting caller has gone away, so an abandoned batch
// stops between items instead of running to completion. finish releases
// the watchers; the context is cancelled no later than that.
func batchContext(jobs []*PendingJob) (context.Context, func()) {
	watched := 0
	for _, j := range jobs {
		if j.Ctx != nil {
			watched++
		}
	}
	// A job submitted without a caller context keeps the batch alive.
	if watched != len(jobs) {
		return context.Background(), func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	var watchers sync.WaitGroup
	for _, j := range jobs {
		watchers.Add(1)
		go func(c context.Context) {
			defer watchers.Done()
			select {
			case <-c.Done():
			case <-finished:
			}
		}(j.Ctx)
	}
	go func() {
		watchers.Wait()
		cancel()
	}()
	return ctx, func() { close(finished) }
}

func (b *Batcher) drainRemaining() {
	for {
		batch := b.queue.DequeueUpTo(b.cfg.MaxBatchFrames)
		if len(batch) == 0 {
			return
		}
		b.executeBatch(batch)
	}
}
