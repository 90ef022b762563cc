package cluster

import (
	"net"
	"time"

	"flock/bytecode"
	"flock/state"
	"flock/task"
	"flock/trace"
)

// pollInterval is how often the server checks the finished map for a
// task it handed to the local scheduler on a peer's behalf.
const pollInterval = 2 * time.Millisecond

// Server accepts inbound connections from other cluster peers and
// services their requests against a shared Context — it does not run
// tasks itself, it enqueues them onto the same local queue ordinary
// workers drain, exactly as the original implementation's cluster
// listener hands work to the local vm rather than executing inline.
type Server struct {
	ln     net.Listener
	ctx    *state.Context
	secret []byte
}

// Listen starts accepting peer connections on addr.
func Listen(addr string, ctx *state.Context, secret []byte) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{ln: ln, ctx: ctx, secret: secret}, nil
}

func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return err
		}
		go s.handle(nc)
	}
}

func (s *Server) Close() error { return s.ln.Close() }

func (s *Server) handle(nc net.Conn) {
	c := newConn(nc)
	defer c.Close()

	if !s.authenticate(c, nc.RemoteAddr().String()) {
		trace.Event("cluster server: peer %s failed authentication", nc.RemoteAddr())
		return
	}
	trace.Event("cluster server: peer %s authenticated", nc.RemoteAddr())

	for {
		req, err := c.recv()
		if err != nil {
			return
		}
		if !s.dispatch(c, req) {
			return
		}
	}
}

func (s *Server) authenticate(c *conn, remote string) bool {
	nonce, err := newNonce()
	if err != nil {
		return false
	}
	if err := c.send(envelope{Kind: frameAuthChallenge, Nonce: nonce}); err != nil {
		return false
	}
	resp, err := c.recv()
	if err != nil || resp.Kind != frameAuthResponse {
		return false
	}
	ok, err := verifyNonce(s.secret, []byte(remote), nonce, resp.Proof)
	if err != nil {
		ok = false
	}
	c.send(envelope{Kind: frameAuthResult, OK: ok})
	return ok
}

func (s *Server) dispatch(c *conn, req envelope) bool {
	switch req.Kind {
	case frameTryRun:
		return s.handleTryRun(c, req.Order) == nil

	case frameDefineBytecode:
		s.ctx.Bytecode.RegisterWithID(req.BytecodeID, bytecode.NewImage(req.BytecodeInstructions))
		return c.send(envelope{Kind: frameAck, OK: true}) == nil

	case frameStore:
		s.ctx.Memory.Store(req.Addr, req.Value)
		return c.send(envelope{Kind: frameAck, OK: true}) == nil

	default:
		return false
	}
}

// handleTryRun enqueues order onto the shared local queue (the same one
// local workers drain) and polls the finished map for its result. If the
// order references a bytecode id this process doesn't have, it asks the
// requesting peer to supply it rather than failing the task.
func (s *Server) handleTryRun(c *conn, order *task.TaskOrder) error {
	if _, ok := s.ctx.Bytecode.Get(order.BytecodeID); !ok {
		if err := c.send(envelope{Kind: frameUnknownBytecode, BytecodeID: order.BytecodeID}); err != nil {
			return err
		}
		def, err := c.recv()
		if err != nil || def.Kind != frameDefineBytecode {
			return c.send(envelope{Kind: frameAck, OK: false})
		}
		s.ctx.Bytecode.RegisterWithID(def.BytecodeID, bytecode.NewImage(def.BytecodeInstructions))
		if err := c.send(envelope{Kind: frameAck, OK: true}); err != nil {
			return err
		}
	}

	s.ctx.Queue.PushNonWorker(order)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for range ticker.C {
		if result, ok := s.ctx.Finished.TryTake(order.ID); ok {
			if result.Err != nil {
				return c.send(envelope{
					Kind:      frameTryRunErr,
					ErrCode:   result.Err.Code,
					ErrDepth:  result.Err.Depth,
					ErrTaskID: result.Err.TaskID,
				})
			}
			return c.send(envelope{Kind: frameTryRunOK, Order: result.Order})
		}
	}
	return nil
}
