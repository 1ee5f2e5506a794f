package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func fixedLimits(parallel, queue int) func(string) Limits {
	return func(string) Limits {
		return Limits{ParallelLimit: parallel, QueueLimit: queue}
	}
}

func TestController_FastPathAdmitsUpToParallelLimit(t *testing.T) {
	c := New(fixedLimits(2, 1))

	t1, err := c.Acquire(context.Background(), "llama")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t2, err := c.Acquire(context.Background(), "llama")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := c.Snapshot()[0]
	if snap.InFlight != 2 {
		t.Fatalf("InFlight = %d, want 2", snap.InFlight)
	}

	c.Release(t1)
	c.Release(t2)
}

func TestController_QueueFullRejects(t *testing.T) {
	c := New(fixedLimits(1, 0))

	ticket, err := c.Acquire(context.Background(), "llama")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = c.Acquire(context.Background(), "llama")
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}

	c.Release(ticket)
}

func TestController_WaiterIsWokenFIFOOnRelease(t *testing.T) {
	c := New(fixedLimits(1, 4))
	first, err := c.Acquire(context.Background(), "llama")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			time.Sleep(time.Duration(i) * 5 * time.Millisecond)
			ticket, err := c.Acquire(context.Background(), "llama")
			if err != nil {
				t.Errorf("waiter %d: unexpected error: %v", i, err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			c.Release(ticket)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	c.Release(first)
	wg.Wait()

	if len(order) != 3 {
		t.Fatalf("order = %v, want 3 entries", order)
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("wake order = %v, want [0 1 2] (FIFO)", order)
		}
	}
}

func TestController_CancelWhileWaitingRemovesFromQueue(t *testing.T) {
	c := New(fixedLimits(1, 4))
	held, err := c.Acquire(context.Background(), "llama")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Acquire(ctx, "llama")
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrCanceled) {
			t.Fatalf("err = %v, want ErrCanceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after context cancellation")
	}

	snap := c.Snapshot()[0]
	if snap.QueueDepth != 0 {
		t.Fatalf("QueueDepth = %d, want 0 after cancel", snap.QueueDepth)
	}
	c.Release(held)
}

func TestController_ResetDropsQueueState(t *testing.T) {
	c := New(fixedLimits(1, 4))
	ticket, _ := c.Acquire(context.Background(), "llama")
	c.Release(ticket)

	c.Reset("llama")
	if len(c.Snapshot()) != 0 {
		t.Fatal("expected no queues after Reset")
	}
}

func TestController_UpdateLimitsOnExistingQueue(t *testing.T) {
	c := New(fixedLimits(1, 4))
	ticket, _ := c.Acquire(context.Background(), "llama")
	defer c.Release(ticket)

	if !c.UpdateLimits("llama", Limits{ParallelLimit: 5, QueueLimit: 10}) {
		t.Fatal("UpdateLimits should find the existing queue")
	}
	snap := c.Snapshot()[0]
	if snap.ParallelLimit != 5 || snap.QueueLimit != 10 {
		t.Fatalf("snapshot after update = %+v", snap)
	}

	if c.UpdateLimits("unknown-model", Limits{ParallelLimit: 1}) {
		t.Fatal("UpdateLimits should report false for a model with no queue yet")
	}
}
