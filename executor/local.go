// Package executor drives TaskOrders pulled from the shared queue to
// termination. Local runs bytecode directly; Remote hands a TaskOrder to
// a cluster peer and waits for it to come back. Both publish into the
// shared finished map when a task terminates, and both are grounded on
// server.Scheduler's per-worker run loop, re-targeted from MOO verb
// dispatch to the flat bytecode tick loop of §4.
package executor

import (
	"errors"

	"flock/cluster"
	"flock/finished"
	"flock/queue"
	"flock/state"
	"flock/task"
	"flock/trace"
)

// Local is one worker of the local pool (§4.4): it repeatedly pulls a
// TaskOrder from its queue handle and ticks it to termination, handling
// FORK and JOIN inline.
type Local struct {
	ctx    *state.Context
	handle *queue.Handle[*task.TaskOrder]
}

// NewLocal constructs a local worker sharing ctx, with its own queue handle.
func NewLocal(ctx *state.Context) *Local {
	return &Local{ctx: ctx, handle: ctx.Queue.Handle()}
}

// Run is the worker's main loop. It returns once the queue reports Finish.
func (e *Local) Run() {
	for {
		order, ok := e.handle.WaitNext()
		if !ok {
			return
		}
		e.execute(order)
	}
}

// Execute drives order to termination on the calling goroutine, exactly
// as Run's loop body would for a pulled order. Forked children are still
// pushed onto the shared queue for the worker pool to pick up; only order
// itself — and anything this goroutine busy-ticks while joining — runs
// inline. This is what lets VM.BlockOnTask run the root task on the
// calling thread per §4.7, instead of handing it to the pool.
func (e *Local) Execute(order *task.TaskOrder) {
	e.execute(order)
}

// execute ticks order to termination, handling FORK and JOIN as they
// arise, and publishes the outcome into the finished map.
func (e *Local) execute(order *task.TaskOrder) {
	img := e.ctx.Bytecode.MustGet(order.BytecodeID)

	for {
		res := order.Task.Tick(img, e.ctx.Memory)

		switch res.Outcome {
		case task.Continue:
			if res.Stored {
				e.mirrorStore(res.StoreAddr, res.StoreValue)
			}
			continue

		case task.Terminated:
			e.publish(order, nil)
			return

		case task.Error:
			e.publish(order, res.Err)
			return

		case task.Fork:
			e.fork(order)
			continue

		case task.Join:
			if err := e.join(order, res.JoinTaskID, res.JoinCount); err != nil {
				e.publish(order, err)
				return
			}
			continue
		}
	}
}

// fork implements §4.2's clone protocol: clone the task's state, assign
// the clone a fresh id, flip the forked flags, push the (parent_id,
// child_id) pair onto both stacks, enqueue the clone, and let the caller
// resume ticking the parent in place.
func (e *Local) fork(order *task.TaskOrder) {
	child := order.Task.Clone()
	childID := task.NewID()

	child.Forked = true
	order.Task.Forked = false

	order.Task.Stack = append(order.Task.Stack, int64(order.ID), int64(childID))
	child.Stack = append(child.Stack, int64(order.ID), int64(childID))

	e.handle.Push(&task.TaskOrder{ID: childID, BytecodeID: order.BytecodeID, Task: child})
}

// mirrorStore replicates a local STORE/STORE_REL to every connected
// cluster peer (§4.6), best-effort: a peer whose connection is confirmed
// reset is dropped from the registry rather than retried, matching how
// the remote executor treats ErrConnectionReset.
func (e *Local) mirrorStore(addr uint64, value int64) {
	for name, peer := range e.ctx.Peers.All() {
		if err := peer.Store(addr, value); err != nil {
			trace.Event("local worker: mirror store to peer %s failed: %v", name, err)
			if errors.Is(err, cluster.ErrConnectionReset) {
				e.ctx.Peers.Remove(name)
			}
		}
	}
}

// join implements §4.2's busy-tick wait: while the joined id's result
// isn't in yet, pull and run other ready work instead of blocking the
// worker. Two consecutive attempts that find no runnable work on this
// handle are taken as a deadlock and the join fails rather than waits
// forever (§7's deadlock detection). This is a heuristic: a task being
// run by another worker at that moment is not waited for.
func (e *Local) join(order *task.TaskOrder, joinID uint64, count int) *task.ExecutionError {
	idleStreak := 0

	for {
		if result, ok := e.ctx.Finished.TryTake(joinID); ok {
			return e.importJoin(order, result, count)
		}

		if e.busyTick() {
			idleStreak = 0
			continue
		}

		idleStreak++
		if idleStreak >= 2 {
			return task.ErrUnableToProgressErr
		}
	}
}

// busyTick pulls one ready TaskOrder, if any, and runs it to completion.
// Reports whether it found work to run.
func (e *Local) busyTick() bool {
	r := e.handle.Next()
	if r.Signal != queue.SignalItem {
		return false
	}
	e.execute(r.Value)
	return true
}

// importJoin applies a joined task's outcome to the joining order: an
// error propagates as-is, otherwise the joined task's trailing count
// stack values are appended to the joiner's stack, in their original
// (bottom-to-top) order.
func (e *Local) importJoin(order *task.TaskOrder, result finished.Result, count int) *task.ExecutionError {
	if result.Err != nil {
		return result.Err
	}

	src := result.Order.Task.Stack
	start := len(src) - count
	if start < 0 {
		start = 0
	}
	order.Task.Stack = append(order.Task.Stack, src[start:]...)
	return nil
}

func (e *Local) publish(order *task.TaskOrder, err *task.ExecutionError) {
	if err != nil {
		e.ctx.Finished.Put(order.ID, finished.Result{Err: err})
		return
	}
	e.ctx.Finished.Put(order.ID, finished.Result{Order: order})
}
