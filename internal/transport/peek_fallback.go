//go:build !unix

package transport

import (
	"io"
	"time"
)

// fallbackProbeWait bounds the blocking window of the portable probe.
const fallbackProbeWait = time.Millisecond

// peek probes the socket with a deadline-bounded one-byte read. A byte that
// arrives is parked in c.pending and replayed ahead of the next socket
// read, so the probe stays non-destructive for the protocol stream.
// Caller holds c.mu and has verified c.conn != nil.
func (c *Client) peek() peekResult {
	_ = c.conn.SetReadDeadline(time.Now().Add(fallbackProbeWait))
	var buf [1]byte
	n, err := c.conn.Read(buf[:])
	if n > 0 {
		c.pending = append(c.pending, buf[0])
	}
	switch {
	case err == nil:
		return peekAlive
	case isTimeout(err):
		return peekAlive
	case err == io.EOF:
		return peekClosed
	default:
		return peekError
	}
}
