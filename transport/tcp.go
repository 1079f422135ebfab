package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// DefaultReadTimeout bounds each TryReceive on a TCP connection.
const DefaultReadTimeout = time.Millisecond

// Listener accepts test-generator connections.
type Listener struct {
	ln net.Listener
}

// Listen opens a TCP listener on addr, e.g. ":5000".
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return &Listener{ln: ln}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Accept blocks until a client connects.
func (l *Listener) Accept() (*TCPConn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("failed to accept connection: %w", err)
	}

	return NewTCPConn(c), nil
}

// Close stops listening.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Dial connects to a bridge. It is the generator side of the protocol.
func Dial(addr string) (*TCPConn, error) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	return NewTCPConn(c), nil
}

// TCPConn is a Conn over a stream socket. Reads poll with a short deadline
// so TryReceive never blocks for long.
type TCPConn struct {
	conn        net.Conn
	readTimeout time.Duration
	partial     []byte
	scratch     []byte
	err         error
}

// NewTCPConn wraps an established connection.
func NewTCPConn(c net.Conn) *TCPConn {
	return &TCPConn{
		conn:        c,
		readTimeout: DefaultReadTimeout,
		scratch:     make([]byte, 4096),
	}
}

// SetReadTimeout changes how long each TryReceive may wait for data.
func (c *TCPConn) SetReadTimeout(d time.Duration) {
	c.readTimeout = d
}

// TryReceive fills buf once enough bytes have arrived. Bytes that arrive
// before a full buffer is available are kept for the next call.
func (c *TCPConn) TryReceive(buf []byte) bool {
	if c.err != nil {
		return false
	}

	if len(c.partial) < len(buf) {
		c.fill(len(buf) - len(c.partial))
	}

	if len(c.partial) < len(buf) {
		return false
	}

	copy(buf, c.partial)
	c.partial = c.partial[len(buf):]

	return true
}

func (c *TCPConn) fill(want int) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		c.err = fmt.Errorf("failed to set read deadline: %w", err)
		return
	}

	n, err := c.conn.Read(c.scratch[:min(want, len(c.scratch))])
	c.partial = append(c.partial, c.scratch[:n]...)

	switch {
	case err == nil:
	case errors.Is(err, os.ErrDeadlineExceeded):
	case errors.Is(err, io.EOF):
		c.err = ErrClosed
	default:
		c.err = fmt.Errorf("failed to read: %w", err)
	}
}

// Send writes all of buf.
func (c *TCPConn) Send(buf []byte) bool {
	if c.err != nil {
		return false
	}

	if _, err := c.conn.Write(buf); err != nil {
		c.err = fmt.Errorf("failed to write: %w", err)
		return false
	}

	return true
}

// Err returns the error that broke the connection, if any.
func (c *TCPConn) Err() error {
	return c.err
}

// Close closes the socket.
func (c *TCPConn) Close() error {
	return c.conn.Close()
}
