package cluster

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"net"

	"flock/bytecode"
	"flock/task"
)

// frameKind tags an envelope's payload. Grounded on server/transport.go's
// line-oriented telnet framing, generalized from "a line of text" to "a
// length-prefixed gob blob" since peer RPC carries structured values
// rather than player keystrokes.
type frameKind byte

const (
	frameAuthChallenge frameKind = iota
	frameAuthResponse
	frameAuthResult
	frameTryRun
	frameTryRunOK
	frameTryRunErr
	frameUnknownBytecode
	frameDefineBytecode
	frameAck
	frameStore
)

// envelope is the single wire message type every frame carries; only the
// fields relevant to Kind are populated.
type envelope struct {
	Kind frameKind

	Nonce []byte // frameAuthChallenge
	Proof []byte // frameAuthResponse
	OK    bool   // frameAuthResult, frameAck

	Order *task.TaskOrder // frameTryRun, frameTryRunOK

	ErrCode   task.ErrorCode // frameTryRunErr
	ErrDepth  int
	ErrTaskID uint64

	BytecodeID           uint64 // frameUnknownBytecode, frameDefineBytecode
	BytecodeInstructions []bytecode.Instruction

	Addr  uint64 // frameStore
	Value int64
}

// conn wraps a net.Conn with length-prefixed gob framing.
type conn struct {
	nc  net.Conn
	r   *bufio.Reader
	enc *gob.Encoder
}

func newConn(nc net.Conn) *conn {
	return &conn{nc: nc, r: bufio.NewReader(nc)}
}

func (c *conn) send(e envelope) error {
	var buf bufferedWriter
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return fmt.Errorf("cluster: encode frame: %w", err)
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(buf.data)))
	if _, err := c.nc.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("cluster: write frame length: %w", err)
	}
	if _, err := c.nc.Write(buf.data); err != nil {
		return fmt.Errorf("cluster: write frame body: %w", err)
	}
	return nil
}

func (c *conn) recv() (envelope, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(c.r, lenPrefix[:]); err != nil {
		return envelope{}, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(c.r, body); err != nil {
		return envelope{}, err
	}
	var e envelope
	if err := gob.NewDecoder(&byteReader{body}).Decode(&e); err != nil {
		return envelope{}, fmt.Errorf("cluster: decode frame: %w", err)
	}
	return e, nil
}

func (c *conn) Close() error { return c.nc.Close() }

// bufferedWriter is a tiny io.Writer over a growable byte slice, used so
// we know a frame's exact length before writing its length prefix.
type bufferedWriter struct{ data []byte }

func (b *bufferedWriter) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

type byteReader struct{ data []byte }

func (r *byteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}
