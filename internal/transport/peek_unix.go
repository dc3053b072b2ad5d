//go:build unix

package transport

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// peek probes the socket with a non-blocking MSG_PEEK recv. Nothing is
// consumed from the kernel buffer, so an in-flight protocol exchange is
// never disturbed. Caller holds c.mu and has verified c.conn != nil.
func (c *Client) peek() peekResult {
	sc, ok := c.conn.(syscall.Conn)
	if !ok {
		return peekAlive
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return peekError
	}

	res := peekError
	var buf [1]byte
	ctrlErr := raw.Control(func(fd uintptr) {
		n, _, serr := unix.Recvfrom(int(fd), buf[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
		switch {
		case serr == nil && n == 0:
			res = peekClosed
		case serr == nil:
			res = peekAlive
		case errors.Is(serr, unix.EAGAIN) || errors.Is(serr, unix.EWOULDBLOCK):
			res = peekAlive
		case errors.Is(serr, unix.EINTR):
			res = peekAlive
		default:
			res = peekError
		}
	})
	if ctrlErr != nil {
		return peekError
	}
	return res
}
