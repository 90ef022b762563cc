package cluster

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"flock/bytecode"
	"flock/task"
)

// TCPPeer is a cluster.Peer reached over a single long-lived TCP
// connection, authenticated once at dial time via the blake2b/HKDF
// handshake in auth.go. Grounded on server/transport.go's TCPTransport,
// generalized from accepting telnet clients to dialing cluster peers.
type TCPPeer struct {
	addr   string
	secret []byte

	mu   sync.Mutex // serializes requests; one in-flight RPC at a time per peer
	c    *conn
	img  func(id uint64) (*bytecode.Image, bool)
}

// DialTCPPeer connects to addr, completes the auth handshake using
// secret, and returns a ready-to-use Peer. imageLookup resolves a
// bytecode id to its image when the peer reports it doesn't recognize
// one, so it can be pushed via DefineBytecode transparently.
func DialTCPPeer(addr string, secret []byte, imageLookup func(id uint64) (*bytecode.Image, bool)) (*TCPPeer, error) {
	nc, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("cluster: dial %s: %w", addr, err)
	}
	c := newConn(nc)

	challenge, err := c.recv()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("cluster: read auth challenge from %s: %w", addr, err)
	}
	if challenge.Kind != frameAuthChallenge {
		nc.Close()
		return nil, fmt.Errorf("cluster: unexpected frame %v waiting for auth challenge", challenge.Kind)
	}
	// The server salts with the address it sees this connection coming
	// from, which is this side's local address.
	proof, err := proveNonce(secret, []byte(nc.LocalAddr().String()), challenge.Nonce)
	if err != nil {
		nc.Close()
		return nil, err
	}
	if err := c.send(envelope{Kind: frameAuthResponse, Proof: proof}); err != nil {
		nc.Close()
		return nil, err
	}
	result, err := c.recv()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("cluster: read auth result from %s: %w", addr, err)
	}
	if result.Kind != frameAuthResult || !result.OK {
		nc.Close()
		return nil, fmt.Errorf("cluster: %s rejected authentication", addr)
	}

	return &TCPPeer{addr: addr, secret: secret, c: c, img: imageLookup}, nil
}

// TryRun implements Peer.
func (p *TCPPeer) TryRun(order *task.TaskOrder) (*task.TaskOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	deadline := time.Now().Add(RemoteRunDeadline)
	p.c.nc.SetDeadline(deadline)
	defer p.c.nc.SetDeadline(time.Time{})

	if err := p.c.send(envelope{Kind: frameTryRun, Order: order}); err != nil {
		return nil, p.classify(err)
	}

	for {
		resp, err := p.c.recv()
		if err != nil {
			return nil, p.classify(err)
		}

		switch resp.Kind {
		case frameTryRunOK:
			return resp.Order, nil

		case frameTryRunErr:
			return nil, &ExecutionFailure{Err: &task.ExecutionError{
				Code:   resp.ErrCode,
				Depth:  resp.ErrDepth,
				TaskID: resp.ErrTaskID,
			}}

		case frameUnknownBytecode:
			img, ok := p.img(resp.BytecodeID)
			if !ok {
				return nil, fmt.Errorf("%w: peer requested unknown bytecode id %d we don't have either", ErrUnknown, resp.BytecodeID)
			}
			if err := p.defineBytecodeLocked(resp.BytecodeID, img); err != nil {
				return nil, p.classify(err)
			}
			// The peer now has the definition and will proceed with the
			// original request on its own; keep reading for its outcome.

		default:
			return nil, fmt.Errorf("%w: unexpected frame %v from peer", ErrUnknown, resp.Kind)
		}
	}
}

// DefineBytecode implements Peer.
func (p *TCPPeer) DefineBytecode(id uint64, img *bytecode.Image) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.defineBytecodeLocked(id, img)
}

func (p *TCPPeer) defineBytecodeLocked(id uint64, img *bytecode.Image) error {
	instrs := make([]bytecode.Instruction, img.Len())
	for i := 0; i < img.Len(); i++ {
		instrs[i], _ = img.Get(uint64(i))
	}
	if err := p.c.send(envelope{Kind: frameDefineBytecode, BytecodeID: id, BytecodeInstructions: instrs}); err != nil {
		return err
	}
	resp, err := p.c.recv()
	if err != nil {
		return err
	}
	if resp.Kind != frameAck || !resp.OK {
		return fmt.Errorf("cluster: peer rejected bytecode definition for id %d", id)
	}
	return nil
}

// Store implements Peer.
func (p *TCPPeer) Store(addr uint64, value int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.c.send(envelope{Kind: frameStore, Addr: addr, Value: value}); err != nil {
		return p.classify(err)
	}
	resp, err := p.c.recv()
	if err != nil {
		return p.classify(err)
	}
	if resp.Kind != frameAck || !resp.OK {
		return fmt.Errorf("%w: peer rejected store", ErrUnknown)
	}
	return nil
}

// classify maps a transport-level failure to the ConnectionReset/Unknown
// distinction the remote executor acts on (§4.5).
func (p *TCPPeer) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return ErrConnectionReset
	}
	var ne net.Error
	if errors.As(err, &ne) && !ne.Timeout() {
		return ErrConnectionReset
	}
	return fmt.Errorf("%w: %v", ErrUnknown, err)
}

func (p *TCPPeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.c.Close()
}
