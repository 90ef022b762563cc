package executor

import (
	"errors"
	"time"

	"flock/cluster"
	"flock/finished"
	"flock/queue"
	"flock/state"
	"flock/task"
	"flock/trace"
)

// Remote is one worker dedicated to a single cluster peer (§4.5): it
// pulls a TaskOrder from its queue handle and hands it to the peer,
// re-enqueueing on transient failure and retiring for good on a reset
// connection (the peer isn't coming back, so this worker has nothing
// left to do).
type Remote struct {
	ctx    *state.Context
	handle *queue.Handle[*task.TaskOrder]
	peer   cluster.Peer
	name   string
}

// NewRemote constructs a worker dedicated to peer, identified by name for
// trace output.
func NewRemote(ctx *state.Context, peer cluster.Peer, name string) *Remote {
	return &Remote{ctx: ctx, handle: ctx.Queue.Handle(), peer: peer, name: name}
}

// Run is the worker's main loop. It returns once the queue reports
// Finish, or once the peer's connection is confirmed reset — either way,
// the peer is dropped from the shared registry so local STOREs stop
// trying to mirror to it.
func (e *Remote) Run() {
	defer e.ctx.Peers.Remove(e.name)
	for {
		order, ok := e.handle.WaitNext()
		if !ok {
			return
		}
		if !e.runOne(order) {
			return
		}
	}
}

// runOne hands order to the peer and resolves the outcome. Reports
// whether this worker should keep running against the peer.
func (e *Remote) runOne(order *task.TaskOrder) bool {
	result, err := e.peer.TryRun(order)

	switch {
	case err == nil:
		e.ctx.Finished.Put(order.ID, finished.Result{Order: result})
		return true

	case errors.As(err, new(*cluster.ExecutionFailure)):
		var fail *cluster.ExecutionFailure
		errors.As(err, &fail)
		e.ctx.Finished.Put(order.ID, finished.Result{Err: fail.Err})
		return true

	case errors.Is(err, cluster.ErrConnectionReset):
		trace.Event("remote worker %s: peer connection reset, re-enqueueing task %#016x and retiring", e.name, order.ID)
		e.ctx.Queue.PushNonWorker(order)
		return false

	default: // cluster.ErrUnknown or anything unrecognized
		trace.Event("remote worker %s: transient error on task %#016x: %v", e.name, order.ID, err)
		e.ctx.Queue.PushNonWorker(order)
		time.Sleep(cluster.UnknownRetryDelay)
		return true
	}
}
