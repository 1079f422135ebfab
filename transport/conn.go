// Package transport provides the byte channels that carry RVFI-DII packets
// between the bridge and the remote test generator.
package transport

import "errors"

// ErrClosed is reported once the peer has gone away.
var ErrClosed = errors.New("transport: connection closed")

// Conn is a bidirectional byte channel.
type Conn interface {
	// TryReceive fills buf completely and returns true, or returns false
	// without consuming anything the caller can observe. Partial data is
	// kept for the next attempt.
	TryReceive(buf []byte) bool

	// Send transmits all of buf. It returns false if the data was not
	// accepted; the caller retries.
	Send(buf []byte) bool

	// Err returns the error that made the connection unusable, or nil.
	Err() error

	// Close releases the connection.
	Close() error
}
