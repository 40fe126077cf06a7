package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueueRunsTasks(t *testing.T) {
	q := NewQueue(Config{Workers: 2, BufferSize: 8, TaskTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Serve(ctx)
		close(done)
	}()

	var ran int32
	finished := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		ok := q.Submit("test", func(context.Context) error {
			atomic.AddInt32(&ran, 1)
			finished <- struct{}{}
			return nil
		})
		if !ok {
			t.Fatalf("Submit() dropped task %d", i)
		}
	}
	for i := 0; i < 3; i++ {
		select {
		case <-finished:
		case <-time.After(2 * time.Second):
			t.Fatal("task did not run")
		}
	}
	cancel()
	<-done

	if got := atomic.LoadInt32(&ran); got != 3 {
		t.Errorf("ran %d tasks, want 3", got)
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	q := NewQueue(Config{Workers: 1, BufferSize: 1})
	noop := func(context.Context) error { return nil }

	if !q.Submit("a", noop) {
		t.Fatal("first Submit() dropped")
	}
	if q.Submit("b", noop) {
		t.Error("Submit() on a full buffer did not report the drop")
	}
}

func TestQueueDrainsOnShutdown(t *testing.T) {
	q := NewQueue(Config{Workers: 1, BufferSize: 4})
	var ran int32
	for i := 0; i < 3; i++ {
		q.Submit("drain", func(context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Serve(ctx); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if got := atomic.LoadInt32(&ran); got != 3 {
		t.Errorf("drained %d tasks, want 3", got)
	}
}

func TestQueueSurvivesFailures(t *testing.T) {
	q := NewQueue(Config{Workers: 1, BufferSize: 4})
	var ran int32
	q.Submit("panics", func(context.Context) error { panic("boom") })
	q.Submit("fails", func(context.Context) error { return errors.New("nope") })
	q.Submit("works", func(context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = q.Serve(ctx)
	if atomic.LoadInt32(&ran) != 1 {
		t.Error("a failing task stopped later tasks")
	}
}

func TestQueueTaskTimeout(t *testing.T) {
	q := NewQueue(Config{Workers: 1, BufferSize: 1, TaskTimeout: 20 * time.Millisecond})
	result := make(chan error, 1)
	q.Submit("slow", func(ctx context.Context) error {
		<-ctx.Done()
		result <- ctx.Err()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = q.Serve(ctx)
	if err := <-result; !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("task context error = %v, want deadline exceeded", err)
	}
}
