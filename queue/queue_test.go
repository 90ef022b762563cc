package queue

import (
	"sync"
	"testing"
)

func TestPushThenNextOnSameHandle(t *testing.T) {
	q := New[int](8)
	h := q.Handle()

	h.Push(1)
	r := h.Next()
	if r.Signal != SignalItem || r.Value != 1 {
		t.Fatalf("expected item 1, got %+v", r)
	}
}

func TestLocalDequeIsLIFO(t *testing.T) {
	q := New[int](8)
	h := q.Handle()

	h.Push(1)
	h.Push(2)
	h.Push(3)

	for _, want := range []int{3, 2, 1} {
		r := h.Next()
		if r.Signal != SignalItem || r.Value != want {
			t.Fatalf("expected %d, got %+v", want, r)
		}
	}
}

func TestNextRetriesWhenEmpty(t *testing.T) {
	q := New[int](8)
	h := q.Handle()

	r := h.Next()
	if r.Signal != SignalRetry {
		t.Fatalf("expected Retry, got %+v", r)
	}
}

func TestPushNonWorkerIsVisibleToOtherHandles(t *testing.T) {
	q := New[int](8)
	h1 := q.Handle()
	h2 := q.Handle()

	h1.Push(42) // stays local to h1

	q.PushNonWorker(7)
	r := h2.Next()
	if r.Signal != SignalItem || r.Value != 7 {
		t.Fatalf("expected h2 to pick up the shared push, got %+v", r)
	}

	// h1's local item is still only visible to h1.
	r = h1.Next()
	if r.Signal != SignalItem || r.Value != 42 {
		t.Fatalf("expected h1's local item to remain, got %+v", r)
	}
}

func TestEverySubmittedItemIsDeliveredExactlyOnce(t *testing.T) {
	q := New[int](256)
	const n = 200

	var wg sync.WaitGroup
	seen := make([]int, n)
	var mu sync.Mutex

	numWorkers := 8
	handles := make([]*Handle[int], numWorkers)
	for i := range handles {
		handles[i] = q.Handle()
	}

	for i := 0; i < n; i++ {
		q.PushNonWorker(i)
	}

	done := make(chan struct{})
	var collected int
	for _, h := range handles {
		wg.Add(1)
		go func(h *Handle[int]) {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				r := h.Next()
				if r.Signal == SignalItem {
					mu.Lock()
					seen[r.Value]++
					collected++
					full := collected == n
					mu.Unlock()
					if full {
						close(done)
						return
					}
				}
				if r.Signal == SignalFinish {
					return
				}
			}
		}(h)
	}
	wg.Wait()

	for i, count := range seen {
		if count != 1 {
			t.Fatalf("item %d delivered %d times, want exactly 1", i, count)
		}
	}
}

func TestFinishSignalsAllWorkersAndDrains(t *testing.T) {
	q := New[int](8)
	q.PushNonWorker(1)
	q.PushNonWorker(2)

	numWorkers := 3
	var wg sync.WaitGroup
	finishedCount := 0
	var mu sync.Mutex

	for i := 0; i < numWorkers; i++ {
		h := q.Handle()
		wg.Add(1)
		go func(h *Handle[int]) {
			defer wg.Done()
			for {
				r := h.Next()
				if r.Signal == SignalFinish {
					mu.Lock()
					finishedCount++
					mu.Unlock()
					return
				}
			}
		}(h)
	}

	closed := false
	q.Finish(func() {
		wg.Wait()
		closed = true
	})

	if !closed {
		t.Fatalf("expected closeFn to have run before Finish returned")
	}
	if finishedCount != numWorkers {
		t.Fatalf("expected all %d workers to observe Finish, got %d", numWorkers, finishedCount)
	}
}

func TestPushOverflowsToSharedWhenLocalGrowsLarge(t *testing.T) {
	q := New[int](4)
	h := q.Handle()

	for i := 0; i < 20; i++ {
		h.Push(i)
	}

	// With an empty shared backlog, local growing past 2x backlog (0) must
	// have drained something into the shared channel for another handle to
	// observe.
	h2 := q.Handle()
	r := h2.Next()
	if r.Signal != SignalItem {
		t.Fatalf("expected overflow to have fed the shared channel, got %+v", r)
	}
}
