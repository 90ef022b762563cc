// Package cluster defines the abstract Peer capability the remote
// executor consumes (§4.6) and a concrete TCP implementation of it. The
// core never prescribes a wire format beyond these three operations and
// their failure mapping — everything below the Peer interface is this
// module's own choice of transport, grounded on server/transport.go's
// bufio-wrapped net.Conn shape, generalized from line-oriented telnet
// framing to length-prefixed binary RPC frames.
package cluster

import (
	"errors"
	"time"

	"flock/bytecode"
	"flock/task"
)

// UnknownRetryDelay is how long the remote executor sleeps after an
// Unknown transient peer error before retrying (§4.5, adopted from the
// original implementation's ~10ms retry interval).
const UnknownRetryDelay = 10 * time.Millisecond

// RemoteRunDeadline bounds a single TryRun attempt (§5).
const RemoteRunDeadline = 300 * time.Second

// ErrConnectionReset means the peer's transport is gone; the remote
// executor re-enqueues the task and retires itself (the peer won't come
// back).
var ErrConnectionReset = errors.New("cluster: connection reset")

// ErrUnknown is every other transient failure (a timeout, a malformed
// frame, a server hiccup) — the remote executor re-enqueues and retries
// after UnknownRetryDelay, but keeps running against the same peer.
var ErrUnknown = errors.New("cluster: unknown transient error")

// ExecutionFailure wraps a bytecode-level ExecutionError the peer hit
// while running the task to termination. Unwrap exposes the underlying
// *task.ExecutionError so callers can errors.As into it.
type ExecutionFailure struct {
	Err *task.ExecutionError
}

func (e *ExecutionFailure) Error() string { return e.Err.Error() }
func (e *ExecutionFailure) Unwrap() error { return e.Err }

// Peer is the capability the remote executor drives a cluster member
// through. A concrete Peer hides whatever wire format and authentication
// it needs behind these three operations.
type Peer interface {
	// TryRun runs order on the peer to termination and returns its final
	// TaskOrder. Errors are one of ExecutionFailure, ErrConnectionReset, or
	// ErrUnknown (use errors.Is/errors.As to distinguish). Implementations
	// that hit an "unknown bytecode id" signal from the remote side should
	// transparently push the definition via DefineBytecode and retry,
	// rather than surfacing that as a caller-visible error.
	TryRun(order *task.TaskOrder) (*task.TaskOrder, error)

	// DefineBytecode uploads a bytecode image to the peer under id, so a
	// subsequent TryRun referencing it can succeed.
	DefineBytecode(id uint64, img *bytecode.Image) error

	// Store mirrors a local STORE to the peer's shared memory, best-effort.
	// A ConnectionReset ends replication to that peer; callers should treat
	// it the same way TryRun's ConnectionReset is treated.
	Store(addr uint64, value int64) error
}
