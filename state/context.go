// Package state holds the shared context every worker, executor, and peer
// borrows: the task queue, the finished map, the bytecode registry, and
// shared memory. This is the Design Notes' "plain shared context (handle)"
// answer to the original implementation's cyclic Vm/Cluster/Peer ownership
// — nothing here holds a back-pointer to the VM orchestrator; components
// are handed a *Context and use it, they don't reach back through it.
package state

import (
	"sync"

	"flock/bytecode"
	"flock/finished"
	"flock/memory"
	"flock/queue"
	"flock/task"
)

// Context is the process-wide state every worker shares. It has no
// behavior of its own beyond construction — it exists so VM, Cluster, and
// the executors can all hold the same five collaborators without holding
// each other.
type Context struct {
	Queue    *queue.Queue[*task.TaskOrder]
	Finished *finished.Map
	Bytecode *bytecode.Registry
	Memory   *memory.Shared
	Peers    *PeerRegistry
}

// New constructs a fresh shared context with the given task-queue backlog
// capacity (see queue.New).
func New(queueCapacity int) *Context {
	return &Context{
		Queue:    queue.New[*task.TaskOrder](queueCapacity),
		Finished: finished.New(),
		Bytecode: bytecode.NewRegistry(),
		Memory:   memory.New(),
		Peers:    newPeerRegistry(),
	}
}

// Mirror is the capability a local STORE replicates to (§4.6): every
// connected cluster.Peer satisfies this structurally, without state
// needing to import cluster (which already imports state, for Context).
type Mirror interface {
	Store(addr uint64, value int64) error
}

// PeerRegistry tracks the cluster peers currently connected, so a local
// STORE/STORE_REL can be mirrored to each of them (spec.md's "written by
// STORE, read by LOAD; mirrored to remote peers on write"). Peers added
// after construction and removed once their connection is confirmed gone.
type PeerRegistry struct {
	mu    sync.RWMutex
	peers map[string]Mirror
}

func newPeerRegistry() *PeerRegistry {
	return &PeerRegistry{peers: make(map[string]Mirror)}
}

// Add registers peer under name, replacing any prior peer of that name.
func (r *PeerRegistry) Add(name string, peer Mirror) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[name] = peer
}

// Remove drops name from the registry, if present.
func (r *PeerRegistry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, name)
}

// All returns a snapshot of the currently connected peers, safe to range
// over without holding the registry lock while mirroring a store.
func (r *PeerRegistry) All() map[string]Mirror {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := make(map[string]Mirror, len(r.peers))
	for name, peer := range r.peers {
		snapshot[name] = peer
	}
	return snapshot
}
