package executor

import (
	"testing"

	"flock/bytecode"
	"flock/cluster"
	"flock/state"
	"flock/task"
)

type fakePeer struct {
	runFn func(*task.TaskOrder) (*task.TaskOrder, error)
}

func (p *fakePeer) TryRun(order *task.TaskOrder) (*task.TaskOrder, error) { return p.runFn(order) }
func (p *fakePeer) DefineBytecode(uint64, *bytecode.Image) error         { return nil }
func (p *fakePeer) Store(uint64, int64) error                           { return nil }

func TestRemoteWorkerPublishesSuccessfulResult(t *testing.T) {
	ctx := state.New(4)
	order := &task.TaskOrder{ID: 1, BytecodeID: 0, Task: task.New()}
	ctx.Queue.PushNonWorker(order)

	peer := &fakePeer{runFn: func(o *task.TaskOrder) (*task.TaskOrder, error) {
		o.Task.Stack = []int64{9}
		return o, nil
	}}
	r := NewRemote(ctx, peer, "peer-a")
	if !r.runOne(mustWaitNext(t, r)) {
		t.Fatalf("expected runOne to report keep-running on success")
	}

	res, ok := ctx.Finished.TryTake(1)
	if !ok || res.Err != nil || res.Order.Task.Stack[0] != 9 {
		t.Fatalf("expected successful result with stack [9], got %+v ok=%v", res, ok)
	}
}

func TestRemoteWorkerReEnqueuesAndRetiresOnConnectionReset(t *testing.T) {
	ctx := state.New(4)
	order := &task.TaskOrder{ID: 2, BytecodeID: 0, Task: task.New()}
	ctx.Queue.PushNonWorker(order)

	peer := &fakePeer{runFn: func(o *task.TaskOrder) (*task.TaskOrder, error) {
		return nil, cluster.ErrConnectionReset
	}}
	r := NewRemote(ctx, peer, "peer-b")
	if r.runOne(mustWaitNext(t, r)) {
		t.Fatalf("expected runOne to report retire on connection reset")
	}

	h := ctx.Queue.Handle()
	if _, ok := h.WaitNext(); !ok {
		t.Fatalf("expected the task to have been re-enqueued")
	}
}

func TestRemoteWorkerPropagatesExecutionFailure(t *testing.T) {
	ctx := state.New(4)
	order := &task.TaskOrder{ID: 3, BytecodeID: 0, Task: task.New()}
	ctx.Queue.PushNonWorker(order)

	execErr := &task.ExecutionError{Code: task.ErrPanic}
	peer := &fakePeer{runFn: func(o *task.TaskOrder) (*task.TaskOrder, error) {
		return nil, &cluster.ExecutionFailure{Err: execErr}
	}}
	r := NewRemote(ctx, peer, "peer-c")
	r.runOne(mustWaitNext(t, r))

	res, ok := ctx.Finished.TryTake(3)
	if !ok || res.Err != execErr {
		t.Fatalf("expected propagated execution error, got %+v ok=%v", res, ok)
	}
}

func mustWaitNext(t *testing.T, r *Remote) *task.TaskOrder {
	t.Helper()
	v, ok := r.handle.WaitNext()
	if !ok {
		t.Fatalf("expected an item on the queue")
	}
	return v
}
