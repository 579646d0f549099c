package intake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sammck-go/guacgw/internal/gwerr"
	"github.com/sammck-go/guacgw/internal/obslog"
)

func TestNextIDIsMonotonicStartingAt1(t *testing.T) {
	q := New(Config{Workers: 1, QueueDepth: 4, Logger: obslog.Discard()})
	for i := int64(1); i <= 5; i++ {
		if got := q.NextID(); got != i {
			t.Errorf("NextID() = %d, want %d", got, i)
		}
	}
}

func TestEnqueueRunsJobsExactlyOnce(t *testing.T) {
	q := New(Config{Workers: 4, QueueDepth: 16, Logger: obslog.Discard()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var mu sync.Mutex
	runCounts := map[int64]int{}
	var wg sync.WaitGroup
	const n = 20
	wg.Add(n)
	for i := 0; i < n; i++ {
		id := q.NextID()
		if err := q.Enqueue(&Job{ID: id, Run: func(ctx context.Context) error {
			mu.Lock()
			runCounts[id]++
			mu.Unlock()
			wg.Done()
			return nil
		}}); err != nil {
			t.Fatalf("Enqueue returned error: %s", err)
		}
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for jobs to run")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(runCounts) != n {
		t.Fatalf("got %d distinct jobs run, want %d", len(runCounts), n)
	}
	for id, count := range runCounts {
		if count != 1 {
			t.Errorf("job %d ran %d times, want exactly once", id, count)
		}
	}
}

func TestEnqueueFailsWhenQueueIsFull(t *testing.T) {
	q := New(Config{Workers: 0, QueueDepth: 1, Logger: obslog.Discard()})
	// No workers started: the one slot fills and stays full.
	block := make(chan struct{})
	if err := q.Enqueue(&Job{ID: 1, Run: func(context.Context) error { <-block; return nil }}); err != nil {
		t.Fatalf("first Enqueue should have succeeded: %s", err)
	}
	err := q.Enqueue(&Job{ID: 2, Run: func(context.Context) error { return nil }})
	close(block)
	if gwerr.KindOf(err) != gwerr.Internal {
		t.Fatalf("expected enqueue to fail when the bounded queue is full, got %v", err)
	}
}

func TestEnqueueRejectsOverRateLimit(t *testing.T) {
	q := New(Config{Workers: 0, QueueDepth: 100, MaxSessionsPerSec: 1, Logger: obslog.Discard()})
	var lastErr error
	admitted := 0
	for i := 0; i < 5; i++ {
		err := q.Enqueue(&Job{ID: int64(i), Run: func(context.Context) error { return nil }})
		if err == nil {
			admitted++
		} else {
			lastErr = err
		}
	}
	if admitted == 5 {
		t.Fatal("expected the rate limiter to reject at least one burst enqueue")
	}
	if lastErr != nil && gwerr.KindOf(lastErr) != gwerr.Internal {
		t.Errorf("expected Internal kind for a rate-limited rejection, got %v", lastErr)
	}
}
