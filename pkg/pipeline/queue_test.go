package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestQueueFIFO tests ordering and the capacity bound.
func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int](3)
	for i := 1; i <= 3; i++ {
		if !q.TryEnqueue(i) {
			t.Fatalf("enqueue %d failed", i)
		}
	}
	if q.TryEnqueue(4) {
		t.Fatal("enqueue past capacity should fail")
	}
	for want := 1; want <= 3; want++ {
		got, ok := q.TryDequeue()
		if !ok || got != want {
			t.Fatalf("expected %d, got %d (%v)", want, got, ok)
		}
	}
	if _, ok := q.TryDequeue(); ok {
		t.Fatal("queue should be empty")
	}
}

func TestQueueEnqueueHonorsContext(t *testing.T) {
	q := NewQueue[int](1)
	q.TryEnqueue(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := q.Enqueue(ctx, 2); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
