package service

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	glowv1 "github.com/glowfx/glowpipe/gen/glow/v1"
	"github.com/glowfx/glowpipe/pkg/config"
	"github.com/glowfx/glowpipe/pkg/engine"
	"github.com/glowfx/glowpipe/pkg/glow"
	"github.com/glowfx/glowpipe/pkg/gpu"
	"github.com/glowfx/glowpipe/pkg/pipeline"
	"github.com/glowfx/glowpipe/pkg/tensor"
)

const testClasses = 4

func testService(t *testing.T, tune func(*config.Config)) *Service {
	t.Helper()
	dev, err := gpu.Open(gpu.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	plan := engine.BuildSegmentationPlan("unet-glow", testClasses, nil)
	eng, err := engine.NewRuntime().Deserialize(plan.Marshal())
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	cfg := config.Load()
	cfg.NumWorkers = 2
	cfg.MaxBatchFrames = 16
	cfg.MaxWaitTime = 5 * time.Millisecond
	if tune != nil {
		tune(cfg)
	}

	svc := New(cfg, dev, eng)
	svc.StartBatcher()
	t.Cleanup(svc.Stop)
	return svc
}

// classPixels fills a 3-channel frame whose channel-0 value makes every
// pixel win cls.
func classPixels(cls, h, w int) []float32 {
	pix := make([]float32, 3*h*w)
	v := (float32(cls) + 0.5) / testClasses
	for i := 0; i < h*w; i++ {
		pix[i] = v
	}
	return pix
}

func TestSubmitBatchReturnsOrderedMasks(t *testing.T) {
	svc := testService(t, nil)

	const h, w = 4, 4
	classes := []int{2, 0, 3, 1}
	req := &glowv1.SubmitBatchRequest{}
	for i, cls := range classes {
		req.Frames = append(req.Frames, &glowv1.Frame{
			Index:    int32(i),
			Channels: 3,
			Height:   h,
			Width:    w,
			Pixels:   classPixels(cls, h, w),
		})
	}

	resp, err := svc.SubmitBatch(context.Background(), req)
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if resp.JobId == "" {
		t.Error("no job id assigned")
	}
	if len(resp.Masks) != len(classes) {
		t.Fatalf("%d masks, want %d", len(resp.Masks), len(classes))
	}
	scale := byte(255 / testClasses)
	for i, cls := range classes {
		m := resp.Masks[i]
		if m.Height != h || m.Width != w || len(m.Pixels) != h*w {
			t.Fatalf("mask %d shape %dx%d (%d px)", i, m.Height, m.Width, len(m.Pixels))
		}
		want := byte(cls) * scale
		for p, b := range m.Pixels {
			if b != want {
				t.Fatalf("mask %d pixel %d = %d, want %d", i, p, b, want)
			}
		}
	}

	stats, err := svc.GetStats(context.Background(), &glowv1.StatsRequest{})
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.EngineName != "unet-glow" || stats.Classes != testClasses {
		t.Fatalf("stats engine=%q classes=%d", stats.EngineName, stats.Classes)
	}
	if stats.TotalJobs < 1 || stats.TotalFrames < int64(len(classes)) {
		t.Fatalf("stats jobs=%d frames=%d", stats.TotalJobs, stats.TotalFrames)
	}
}

func TestSubmitBatchValidation(t *testing.T) {
	svc := testService(t, nil)

	if _, err := svc.SubmitBatch(context.Background(), &glowv1.SubmitBatchRequest{}); err == nil {
		t.Fatal("empty request succeeded, want error")
	}

	// A malformed frame fails the whole job, not the process.
	req := &glowv1.SubmitBatchRequest{
		Frames: []*glowv1.Frame{{Channels: 3, Height: 4, Width: 4, Pixels: []float32{1, 2}}},
	}
	if _, err := svc.SubmitBatch(context.Background(), req); err == nil {
		t.Fatal("malformed frame succeeded, want error")
	}
}

func TestSubmitBatchComposites(t *testing.T) {
	// Class 2 maps to mask byte 126 with 4 classes; keying on that level
	// makes the whole frame glow, so every composite pixel is the same
	// known blend of the source and the purple overlay.
	svc := testService(t, func(cfg *config.Config) { cfg.KeyLevel = 126 })

	const h, w = 4, 4
	req := &glowv1.SubmitBatchRequest{ReturnComposites: true}
	for i := 0; i < 2; i++ {
		req.Frames = append(req.Frames, &glowv1.Frame{
			Index:    int32(i),
			Channels: 3,
			Height:   h,
			Width:    w,
			Pixels:   classPixels(2, h, w),
		})
	}

	resp, err := svc.SubmitBatch(context.Background(), req)
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if len(resp.Masks) != 2 {
		t.Fatalf("%d masks, want 2", len(resp.Masks))
	}
	if len(resp.Composites) != 2 {
		t.Fatalf("%d composites, want 2", len(resp.Composites))
	}

	// Source channel 0 is 0.625 (byte 159), channels 1 and 2 zero. The
	// halo is a constant 126, so alpha = 126*384>>8 = 189 and the blend
	// with overlay {128,0,128,255} lands on one exact RGBA value.
	want := [4]byte{135, 0, 94, 254}
	for i, c := range resp.Composites {
		if c.Height != h || c.Width != w || len(c.Pixels) != h*w*4 {
			t.Fatalf("composite %d shape %dx%d (%d bytes)", i, c.Height, c.Width, len(c.Pixels))
		}
		if c.Index != int32(i) {
			t.Fatalf("composite %d carries index %d", i, c.Index)
		}
		for p := 0; p < h*w; p++ {
			for k := 0; k < 4; k++ {
				if got := c.Pixels[p*4+k]; got != want[k] {
					t.Fatalf("composite %d pixel %d chan %d = %d, want %d", i, p, k, got, want[k])
				}
			}
		}
	}
}

func TestSubmitBatchOmitsCompositesByDefault(t *testing.T) {
	svc := testService(t, nil)

	req := &glowv1.SubmitBatchRequest{
		Frames: []*glowv1.Frame{{Channels: 3, Height: 4, Width: 4, Pixels: classPixels(1, 4, 4)}},
	}
	resp, err := svc.SubmitBatch(context.Background(), req)
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if len(resp.Composites) != 0 {
		t.Fatalf("got %d composites without requesting any", len(resp.Composites))
	}
}

// stallProc stands in for a long pipeline run: it only returns once its
// context is cancelled.
type stallProc struct{}

func (stallProc) Process(ctx context.Context, frames []*tensor.Tensor) ([]*image.Gray, pipeline.RunStats, error) {
	select {
	case <-ctx.Done():
		return nil, pipeline.RunStats{Failures: len(frames)}, ctx.Err()
	case <-time.After(5 * time.Second):
		return nil, pipeline.RunStats{}, errors.New("batch context never cancelled")
	}
}

// liveProc fails if the batch context is already dead when the pipeline
// starts, and otherwise returns blank masks.
type liveProc struct{}

func (liveProc) Process(ctx context.Context, frames []*tensor.Tensor) ([]*image.Gray, pipeline.RunStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, pipeline.RunStats{}, err
	}
	masks := make([]*image.Gray, len(frames))
	for i, f := range frames {
		masks[i] = image.NewGray(image.Rect(0, 0, f.Dims[3], f.Dims[2]))
	}
	return masks, pipeline.RunStats{Frames: len(frames)}, nil
}

func pendingJob(id string, ctx context.Context) *PendingJob {
	return &PendingJob{
		ID: id,
		Req: &glowv1.SubmitBatchRequest{
			Frames: []*glowv1.Frame{{Channels: 1, Height: 2, Width: 2, Pixels: make([]float32, 4)}},
		},
		Ctx:       ctx,
		DoneCh:    make(chan *glowv1.SubmitBatchResponse, 1),
		ErrCh:     make(chan error, 1),
		EnqueueAt: time.Now(),
	}
}

func TestAbandonedBatchCancelsPipeline(t *testing.T) {
	t.Parallel()
	b := NewBatcher(BatcherConfig{MaxBatchFrames: 4, MaxWaitTime: time.Millisecond},
		NewJobQueue(), stallProc{}, nil, glow.Params{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job := pendingJob("gone", ctx)
	b.executeBatch([]*PendingJob{job})

	select {
	case err := <-job.ErrCh:
		if err == nil {
			t.Fatal("nil error for cancelled batch")
		}
	default:
		t.Fatal("abandoned batch produced no error")
	}
}

func TestBatchWithLiveCallerRunsToCompletion(t *testing.T) {
	t.Parallel()
	b := NewBatcher(BatcherConfig{MaxBatchFrames: 4, MaxWaitTime: time.Millisecond},
		NewJobQueue(), liveProc{}, nil, glow.Params{})

	// One live caller plus one submitted without a context: the batch
	// must not be cancelled under either.
	live := pendingJob("live", context.Background())
	legacy := pendingJob("legacy", nil)
	b.executeBatch([]*PendingJob{live, legacy})

	for _, job := range []*PendingJob{live, legacy} {
		select {
		case resp := <-job.DoneCh:
			if len(resp.Masks) != 1 {
				t.Fatalf("job %s: %d masks, want 1", job.ID, len(resp.Masks))
			}
		case err := <-job.ErrCh:
			t.Fatalf("job %s failed: %v", job.ID, err)
		default:
			t.Fatalf("job %s got no response", job.ID)
		}
	}
}

func TestJobQueuePriorityOrder(t *testing.T) {
	t.Parallel()
	q := NewJobQueue()
	mk := func(prio int32, at time.Time) *PendingJob {
		return &PendingJob{
			Req:       &glowv1.SubmitBatchRequest{Priority: prio, Frames: []*glowv1.Frame{{}}},
			EnqueueAt: at,
		}
	}
	base := time.Now()
	low := mk(0, base)
	highLate := mk(5, base.Add(time.Millisecond))
	highEarly := mk(5, base)
	q.Enqueue(low)
	q.Enqueue(highLate)
	q.Enqueue(highEarly)

	got := q.DequeueUpTo(10)
	if len(got) != 3 {
		t.Fatalf("dequeued %d, want 3", len(got))
	}
	if got[0] != highEarly || got[1] != highLate || got[2] != low {
		t.Fatal("priority/FIFO order violated")
	}
	if q.Depth() != 0 {
		t.Fatalf("depth = %d after drain", q.Depth())
	}
}

func TestJobQueueFrameBudget(t *testing.T) {
	t.Parallel()
	q := NewJobQueue()
	mk := func(frames int) *PendingJob {
		fs := make([]*glowv1.Frame, frames)
		for i := range fs {
			fs[i] = &glowv1.Frame{}
		}
		return &PendingJob{Req: &glowv1.SubmitBatchRequest{Frames: fs}, EnqueueAt: time.Now()}
	}
	q.Enqueue(mk(3))
	q.Enqueue(mk(3))
	q.Enqueue(mk(3))

	// Budget of 7 takes two jobs (6 frames); the third would overflow.
	got := q.DequeueUpTo(7)
	if len(got) != 2 {
		t.Fatalf("dequeued %d jobs, want 2", len(got))
	}
	if q.FrameDepth() != 3 {
		t.Fatalf("FrameDepth = %d, want 3", q.FrameDepth())
	}

	// An oversized single job is still taken, never starved.
	q2 := NewJobQueue()
	q2.Enqueue(mk(50))
	if got := q2.DequeueUpTo(8); len(got) != 1 {
		t.Fatalf("oversized job dequeued %d, want 1", len(got))
	}
}
