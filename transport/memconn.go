package transport

import "sync"

// MemConn is an in-process Conn. Incoming bytes are queued with Feed and
// everything sent is kept for inspection.
type MemConn struct {
	mu sync.Mutex

	incoming []byte
	sent     []byte
	sends    int
	refuse   int
	closed   bool
	err      error
}

// NewMemConn creates an empty MemConn.
func NewMemConn() *MemConn {
	return &MemConn{}
}

// Feed queues bytes for TryReceive.
func (c *MemConn) Feed(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.incoming = append(c.incoming, b...)
}

// RefuseSends makes the next n Send calls fail without sending.
func (c *MemConn) RefuseSends(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refuse = n
}

// Fail marks the connection broken with err.
func (c *MemConn) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.err = err
}

// TryReceive takes len(buf) queued bytes if that many are available.
func (c *MemConn) TryReceive(buf []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || len(c.incoming) < len(buf) {
		return false
	}

	copy(buf, c.incoming)
	c.incoming = c.incoming[len(buf):]

	return true
}

// Send records buf unless sends are being refused.
func (c *MemConn) Send(buf []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.err != nil {
		return false
	}

	if c.refuse > 0 {
		c.refuse--
		return false
	}

	c.sent = append(c.sent, buf...)
	c.sends++

	return true
}

// Sent returns a copy of every byte accepted by Send.
func (c *MemConn) Sent() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]byte(nil), c.sent...)
}

// Sends returns the number of successful Send calls.
func (c *MemConn) Sends() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sends
}

// Pending returns the number of queued incoming bytes.
func (c *MemConn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.incoming)
}

// Err returns the failure set by Fail or ErrClosed after Close.
func (c *MemConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}

	if c.closed {
		return ErrClosed
	}

	return nil
}

// Close marks the connection closed.
func (c *MemConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	return nil
}
