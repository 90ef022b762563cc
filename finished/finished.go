// Package finished implements the single-assignment rendezvous between a
// terminating task and whatever joins it: the finished map of §3/§4.2.
// Grounded on the RWMutex-guarded map shape shared by db.Store and
// task.Manager, generalized to single-assignment semantics (the original
// Rust implementation asserts on overwrite; Go surfaces the same violation
// as a panic, since it indicates a scheduler bug, not a runtime condition
// a caller can recover from).
package finished

import (
	"fmt"
	"sync"

	"flock/task"
)

// Result is what a terminated task leaves behind: either its finished
// TaskOrder or the ExecutionError it failed with.
type Result struct {
	Order *task.TaskOrder
	Err   *task.ExecutionError
}

// Map is the process-wide finished-task rendezvous. Each task id is
// written exactly once and consumed exactly once.
type Map struct {
	mu      sync.Mutex
	cond    *sync.Cond
	results map[uint64]Result
}

// New constructs an empty finished map.
func New() *Map {
	m := &Map{results: make(map[uint64]Result)}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Put records the result for id. Panics if id already has a result — every
// TaskOrder is owned by exactly one of (executor, queue, finished map) at a
// time, so a second write means the scheduler double-ran a task.
func (m *Map) Put(id uint64, result Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.results[id]; exists {
		panic(fmt.Sprintf("finished: task %#016x already has a recorded result", id))
	}
	m.results[id] = result
	m.cond.Broadcast()
}

// TryTake removes and returns id's result if present.
func (m *Map) TryTake(id uint64) (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if ok {
		delete(m.results, id)
	}
	return r, ok
}

// Wait blocks until id's result is available, then removes and returns it.
// Callers that must keep the scheduler making progress while waiting
// (§4.2's busy-tick protocol) should prefer polling with TryTake instead.
func (m *Map) Wait(id uint64) Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		if r, ok := m.results[id]; ok {
			delete(m.results, id)
			return r
		}
		m.cond.Wait()
	}
}

// Empty reports whether the map currently holds no unconsumed results —
// used by the VM orchestrator's shutdown assertion (§4.7): every task
// created should have been joined, or been the root, by the time the
// process tears down.
func (m *Map) Empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results) == 0
}

// Len reports the number of unconsumed results, for diagnostics.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}
