package service

import (
	"container/heap"
	"context"
	"sync"
	"time"

	glowv1 "github.com/glowfx/glowpipe/gen/glow/v1"
)

// PendingJob wraps a gRPC batch request with channels for the response.
// Ctx is the submitting caller's context; the batcher cancels a running
// batch once every caller in it has gone away.
type PendingJob struct {
	ID        string
	Req       *glowv1.SubmitBatchRequest
	Ctx       context.Context
	DoneCh    chan *glowv1.SubmitBatchResponse
	ErrCh     chan error
	EnqueueAt time.Time
	index     int // used by heap
}

// JobQueue implements heap.Interface for PendingJobs. Higher priority
// jobs are dequeued first; within the same priority, FIFO.
type JobQueue struct {
	mu    sync.Mutex
	items []*PendingJob
}

func NewJobQueue() *JobQueue {
	q := &JobQueue{items: make([]*PendingJob, 0, 64)}
	heap.Init(q)
	return q
}

// Enqueue adds a job to the queue (thread-safe).
func (q *JobQueue) Enqueue(job *PendingJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(q, job)
}

// DequeueUpTo removes jobs until their combined frame count reaches
// maxFrames, always taking at least one job (thread-safe).
func (q *JobQueue) DequeueUpTo(maxFrames int) []*PendingJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	var out []*PendingJob
	frames := 0
	for len(q.items) > 0 {
		next := q.items[0]
		if len(out) > 0 && frames+len(next.Req.Frames) > maxFrames {
			break
		}
		out = append(out, heap.Pop(q).(*PendingJob))
		frames += len(next.Req.Frames)
	}
	return out
}

// Depth returns the current queue depth (thread-safe).
func (q *JobQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// FrameDepth returns the total frames waiting (thread-safe).
func (q *JobQueue) FrameDepth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, j := range q.items {
		n += len(j.Req.Frames)
	}
	return n
}

// --- heap.Interface implementation (not thread-safe, use Enqueue/DequeueUpTo) ---

func (q *JobQueue) Len() int { return len(q.items) }

func (q *JobQueue) Less(i, j int) bool {
	// Higher priority number = dequeued first
	if q.items[i].Req.Priority != q.items[j].Req.Priority {
		return q.items[i].Req.Priority > q.items[j].Req.Priority
	}
	// Same priority: earlier arrival first (FIFO)
	return q.items[i].EnqueueAt.Before(q.items[j].EnqueueAt)
}

func (q *JobQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *JobQueue) Push(x interface{}) {
	item := x.(*PendingJob)
	item.index = len(q.items)
	q.items = append(q.items, item)
}

func (q *JobQueue) Pop() interface{} {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	q.items = old[:n-1]
	return item
}
