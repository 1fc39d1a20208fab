package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Cycle is one scheduled inspection of a target.
type Cycle struct {
	Target string
	At     time.Time
	Ctx    context.Context
}

// Queue manages per-target lanes with a global concurrency semaphore.
// Each target gets its own FIFO channel so its cycles never overlap,
// while the semaphore limits the total number of concurrent cycles
// across all targets.
type Queue struct {
	lanes     map[string]chan *Cycle
	semaphore *semaphore.Weighted
	processor func(*Cycle) error
	active    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewQueue creates a Queue that allows up to maxConcurrent cycles to
// execute simultaneously across all target lanes.
func NewQueue(maxConcurrent int64) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Queue{
		lanes:     make(map[string]chan *Cycle),
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// SetProcessor sets the function invoked for each dequeued Cycle.
func (q *Queue) SetProcessor(fn func(*Cycle) error) {
	q.processor = fn
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for
// in-flight cycles to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	for _, lane := range q.lanes {
		close(lane)
	}
	q.lanes = make(map[string]chan *Cycle)
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a Cycle to its target's lane, creating the lane (and
// its goroutine) on first use. Returns an error if the lane is full.
func (q *Queue) Enqueue(cycle *Cycle) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	lane, exists := q.lanes[cycle.Target]
	if !exists {
		lane = make(chan *Cycle, 16)
		q.lanes[cycle.Target] = lane
		q.wg.Add(1)
		go q.processLane(lane)
	}

	select {
	case lane <- cycle:
		return nil
	default:
		return fmt.Errorf("cycle queue full for target %s", cycle.Target)
	}
}

// processLane drains a single target lane, acquiring a semaphore slot
// before running the processor synchronously. Strict FIFO within a
// target; the semaphore bounds cross-target parallelism.
func (q *Queue) processLane(lane chan *Cycle) {
	defer q.wg.Done()
	for {
		select {
		case cycle, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				return
			}
			if q.processor != nil {
				q.active.Add(1)
				cycle.Ctx = q.ctx
				if err := q.processor(cycle); err != nil {
					slog.Error("monitoring cycle failed", "target", cycle.Target, "error", err)
				}
				q.active.Add(-1)
			}
			q.semaphore.Release(1)
		case <-q.ctx.Done():
			return
		}
	}
}

// WaitIdle blocks until no cycles are actively being processed, or the
// timeout expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
