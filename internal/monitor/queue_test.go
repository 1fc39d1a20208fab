package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueueConcurrency(t *testing.T) {
	queue := NewQueue(2)
	ctx := context.Background()
	queue.Start(ctx)
	defer queue.Stop()

	var running int32
	var maxSeen int32

	queue.SetProcessor(func(cycle *Cycle) error {
		current := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if current <= old || atomic.CompareAndSwapInt32(&maxSeen, old, current) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	})

	for i := 0; i < 5; i++ {
		cycle := &Cycle{Target: fmt.Sprintf("target-%d", i), At: time.Now()}
		if err := queue.Enqueue(cycle); err != nil {
			t.Fatal(err)
		}
	}

	if !queue.WaitIdle(2 * time.Second) {
		t.Fatal("queue did not go idle")
	}

	if m := atomic.LoadInt32(&maxSeen); m > 2 {
		t.Errorf("expected max 2 concurrent cycles, saw %d", m)
	}
}

func TestQueuePerTargetOrdering(t *testing.T) {
	queue := NewQueue(4)
	ctx := context.Background()
	queue.Start(ctx)
	defer queue.Stop()

	var mu sync.Mutex
	var order []int64

	queue.SetProcessor(func(cycle *Cycle) error {
		mu.Lock()
		order = append(order, cycle.At.UnixNano())
		mu.Unlock()
		return nil
	})

	// Same target: cycles must run in FIFO order even with spare
	// semaphore slots.
	base := time.Now()
	for i := 0; i < 5; i++ {
		cycle := &Cycle{Target: "api-cluster", At: base.Add(time.Duration(i))}
		if err := queue.Enqueue(cycle); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		done := len(order) == 5
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("cycles did not finish")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(order); i++ {
		if order[i] < order[i-1] {
			t.Errorf("cycles ran out of order: %v", order)
		}
	}
}

func TestQueueProcessorErrorDoesNotStopLane(t *testing.T) {
	queue := NewQueue(1)
	ctx := context.Background()
	queue.Start(ctx)
	defer queue.Stop()

	var processed int32
	queue.SetProcessor(func(cycle *Cycle) error {
		atomic.AddInt32(&processed, 1)
		return fmt.Errorf("inspect failed")
	})

	for i := 0; i < 3; i++ {
		if err := queue.Enqueue(&Cycle{Target: "api-cluster", At: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&processed) != 3 {
		select {
		case <-deadline:
			t.Fatalf("expected 3 processed cycles despite errors, got %d", atomic.LoadInt32(&processed))
		case <-time.After(10 * time.Millisecond):
		}
	}
}
