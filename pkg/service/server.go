// Package service exposes the glow pipeline over gRPC: jobs are queued
// by priority, micro-batched, and run through the shared engine.
package service

import (
	"context"
	"net/http"
	"time"

	glowv1 "github.com/glowfx/glowpipe/gen/glow/v1"
	"github.com/glowfx/glowpipe/pkg/config"
	"github.com/glowfx/glowpipe/pkg/engine"
	"github.com/glowfx/glowpipe/pkg/glow"
	"github.com/glowfx/glowpipe/pkg/gpu"
	"github.com/glowfx/glowpipe/pkg/metrics"
	"github.com/glowfx/glowpipe/pkg/pipeline"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Service is the glow pipeline gRPC front end.
type Service struct {
	glowv1.UnimplementedGlowServiceServer

	cfg     *config.Config
	dev     *gpu.Device
	coord   *pipeline.Coordinator
	queue   *JobQueue
	batcher *Batcher
}

// New wires the queue, batcher, and coordinator over an already-loaded
// engine.
func New(cfg *config.Config, dev *gpu.Device, eng *engine.Engine) *Service {
	queue := NewJobQueue()
	coord := pipeline.New(dev, eng, pipeline.Options{
		NumWorkers: cfg.NumWorkers,
		FixedBatch: cfg.FixedBatch,
		WarmupRuns: cfg.WarmupRuns,
	})
	effect := glow.Params{
		KeyLevel: uint8(cfg.KeyLevel),
		KeyScale: cfg.KeyScale,
		Scale:    cfg.DefaultScale,
		Delta:    cfg.Delta,
	}
	batcher := NewBatcher(BatcherConfig{
		MaxBatchFrames: cfg.MaxBatchFrames,
		MaxWaitTime:    cfg.MaxWaitTime,
	}, queue, coord, dev, effect)

	return &Service{
		cfg:     cfg,
		dev:     dev,
		coord:   coord,
		queue:   queue,
		batcher: batcher,
	}
}

// RegisterGRPC registers the glow service.
func (s *Service) RegisterGRPC(srv *grpc.Server) {
	glowv1.RegisterGlowServiceServer(srv, s)
}

// RegisterHTTP installs the metrics and health endpoints.
func (s *Service) RegisterHTTP(mux *http.ServeMux) {
	metrics.Register(mux)
}

// StartBatcher starts the micro-batching engine.
func (s *Service) StartBatcher() { s.batcher.Start() }

// Stop shuts the service down gracefully, draining queued jobs.
func (s *Service) Stop() { s.batcher.Stop() }

// Batcher exposes the batcher for the dashboard snapshot.
func (s *Service) Batcher() *Batcher { return s.batcher }

// Queue exposes the job queue for the dashboard snapshot.
func (s *Service) Queue() *JobQueue { return s.queue }

// SubmitBatch queues the job and blocks until the batcher has run its
// frames through the pipeline.
func (s *Service) SubmitBatch(ctx context.Context, req *glowv1.SubmitBatchRequest) (*glowv1.SubmitBatchResponse, error) {
	if len(req.Frames) == 0 {
		return nil, status.Error(codes.InvalidArgument, "no frames in request")
	}
	id := req.JobId
	if id == "" {
		id = uuid.NewString()
	}

	job := &PendingJob{
		ID:        id,
		Req:       req,
		Ctx:       ctx,
		DoneCh:    make(chan *glowv1.SubmitBatchResponse, 1),
		ErrCh:     make(chan error, 1),
		EnqueueAt: time.Now(),
	}
	s.queue.Enqueue(job)
	s.batcher.Signal()
	metrics.JobsSubmitted.Inc()
	metrics.QueueDepth.Set(float64(s.queue.Depth()))

	select {
	case resp := <-job.DoneCh:
		return resp, nil
	case err := <-job.ErrCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetStats reports pipeline counters and the shared engine's identity.
func (s *Service) GetStats(ctx context.Context, _ *glowv1.StatsRequest) (*glowv1.PipelineStats, error) {
	eng := s.coord.Engine()
	metrics.DeviceMemoryUsed.Set(float64(s.dev.MemoryUsed()))
	return &glowv1.PipelineStats{
		EngineName:      eng.Name(),
		Classes:         int32(eng.Classes()),
		TotalJobs:       s.batcher.TotalJobs.Load(),
		TotalFrames:     s.batcher.TotalFrames.Load(),
		TotalFailures:   s.batcher.TotalFailures.Load(),
		AvgLatencyMs:    s.batcher.AvgLatencyMs.Load(),
		QueueDepth:      int32(s.queue.Depth()),
		LastBatchFrames: s.batcher.LastBatchSize.Load(),
		GraphWorkers:    s.batcher.GraphWorkers.Load(),
		NumWorkers:      int32(s.cfg.NumWorkers),
	}, nil
}
