package finished

import (
	"testing"
	"time"

	"flock/task"
)

func TestPutThenTryTake(t *testing.T) {
	m := New()
	m.Put(1, Result{Order: &task.TaskOrder{ID: 1}})

	r, ok := m.TryTake(1)
	if !ok || r.Order.ID != 1 {
		t.Fatalf("expected to take result for id 1, got %+v ok=%v", r, ok)
	}

	if _, ok := m.TryTake(1); ok {
		t.Fatalf("expected result to be consumed exactly once")
	}
}

func TestPutTwiceForSameIDPanics(t *testing.T) {
	m := New()
	m.Put(1, Result{})

	defer func() {
		if recover() == nil {
			t.Fatalf("expected Put to panic on duplicate id")
		}
	}()
	m.Put(1, Result{})
}

func TestWaitBlocksUntilPut(t *testing.T) {
	m := New()
	done := make(chan Result)

	go func() {
		done <- m.Wait(5)
	}()

	select {
	case <-done:
		t.Fatalf("Wait should not return before Put")
	case <-time.After(20 * time.Millisecond):
	}

	m.Put(5, Result{Order: &task.TaskOrder{ID: 5}})

	select {
	case r := <-done:
		if r.Order.ID != 5 {
			t.Fatalf("expected order id 5, got %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatalf("Wait did not unblock after Put")
	}
}

func TestEmptyReflectsOutstandingResults(t *testing.T) {
	m := New()
	if !m.Empty() {
		t.Fatalf("expected new map to be empty")
	}
	m.Put(1, Result{})
	if m.Empty() {
		t.Fatalf("expected map to be non-empty after Put")
	}
	m.TryTake(1)
	if !m.Empty() {
		t.Fatalf("expected map to be empty after consuming the only result")
	}
}
