// Package vm is the orchestrator a driver program talks to: register a
// bytecode image, submit a root task, and block for its result. Grounded
// on server.Server's lifecycle (NewServer/Start/shutdown) and the
// teacher's VM-as-owner-of-everything shape, generalized from "owns a
// db.Store and a scheduler" to "owns a state.Context and a worker pool" —
// the Design Notes' "plain shared context" answer to the original
// implementation's cyclic VmHandle/Cluster ownership (see state.Context).
package vm

import (
	"fmt"
	"runtime"
	"sync"

	"flock/bytecode"
	"flock/cluster"
	"flock/executor"
	"flock/state"
	"flock/task"
	"flock/trace"
)

// VM ties together the shared context, the local worker pool, and one
// remote executor per configured peer.
type VM struct {
	ctx *state.Context

	wg      sync.WaitGroup
	cluster *cluster.Server
}

// Options configures New.
type Options struct {
	// MaxLocalWorkers bounds the local pool; 0 means runtime.NumCPU().
	MaxLocalWorkers int

	// QueueCapacity sizes the shared queue's channel buffer.
	QueueCapacity int
}

// New constructs a VM and starts its local worker pool:
// min(runtime.NumCPU(), MaxLocalWorkers) workers (§4.4). Cluster peers are
// wired in afterward via AddPeer/ListenCluster, since dialing or accepting peer
// connections needs the VM's own Context (for bytecode lookups and
// inbound task dispatch) to already exist.
func New(opts Options) *VM {
	capacity := opts.QueueCapacity
	if capacity <= 0 {
		capacity = 256
	}
	ctx := state.New(capacity)

	v := &VM{ctx: ctx}

	workers := runtime.NumCPU()
	if opts.MaxLocalWorkers > 0 && opts.MaxLocalWorkers < workers {
		workers = opts.MaxLocalWorkers
	}
	trace.Event("vm: starting %d local workers", workers)
	for i := 0; i < workers; i++ {
		v.wg.Add(1)
		go func() {
			defer v.wg.Done()
			executor.NewLocal(ctx).Run()
		}()
	}

	return v
}

// AddPeer registers peer in the shared Context's peer registry (so local
// STOREs start mirroring to it immediately, per §4.6) and starts a
// RemoteExecutor (§4.5) dedicated to it, identified by name in trace
// output.
func (v *VM) AddPeer(name string, peer cluster.Peer) {
	trace.Event("vm: starting remote worker for peer %s", name)
	v.ctx.Peers.Add(name, peer)
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		executor.NewRemote(v.ctx, peer, name).Run()
	}()
}

// ListenCluster starts accepting inbound cluster peer connections on addr,
// authenticated against secret, serving them against this VM's shared
// Context for the VM's lifetime.
func (v *VM) ListenCluster(addr string, secret []byte) error {
	srv, err := cluster.Listen(addr, v.ctx, secret)
	if err != nil {
		return err
	}
	v.cluster = srv
	go func() {
		if err := srv.Serve(); err != nil {
			trace.Event("vm: cluster server stopped: %v", err)
		}
	}()
	return nil
}

// Register installs img under a fresh id and returns it (bytecode.DefaultID
// for the first registration), per §3's bytecode image/registry contract.
func (v *VM) Register(img *bytecode.Image) uint64 {
	return v.ctx.Bytecode.Register(img)
}

// Context exposes the shared state, for drivers that need to seed shared
// memory or register bytecode under an explicit id before submitting work.
func (v *VM) Context() *state.Context {
	return v.ctx
}

// BlockOnTask drives root to completion on the calling goroutine (§4.7:
// "runs the root task to completion on the calling thread using an in-line
// executor"), using a dedicated executor.Local rather than handing root to
// the worker pool. Any task root forks is still pushed onto the shared
// queue for the pool (and any remote peers) to run; BlockOnTask only
// inlines the root itself, returning its final TaskOrder (or the error it
// failed with).
//
// The original implementation asserts the finished map is empty once the
// root completes — every forked task should have been joined by someone.
// Here that assertion is a returned error instead of a panic: a stray
// unjoined result indicates a bug in the submitted bytecode (a FORK with
// no matching JOIN), which is a caller-facing condition, not a process
// invariant violation.
func (v *VM) BlockOnTask(root *task.TaskOrder) (*task.TaskOrder, error) {
	executor.NewLocal(v.ctx).Execute(root)

	result := v.ctx.Finished.Wait(root.ID)
	if result.Err != nil {
		return nil, result.Err
	}

	if !v.ctx.Finished.Empty() {
		err := fmt.Errorf("vm: %d forked task(s) finished but were never joined", v.ctx.Finished.Len())
		trace.Event("vm: %v", err)
		return result.Order, err
	}
	return result.Order, nil
}

// Close shuts down the worker pool and, if running, the cluster server.
// It blocks until every local and remote worker has returned.
func (v *VM) Close() {
	v.ctx.Queue.Finish(v.wg.Wait)
	if v.cluster != nil {
		v.cluster.Close()
	}
}
