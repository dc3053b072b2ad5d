// Package transport owns the TCP link to the companion peer: socket
// lifecycle, timeout-bounded line I/O and a non-consuming liveness probe.
// Every potentially slow operation is bounded by a short deadline so that a
// caller polling from a real-time loop is never stalled.
package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vmulink/vmulink/internal/maple"
)

// Defaults match the companion application's published endpoint.
const (
	DefaultAddr           = "127.0.0.1:37393"
	DefaultConnectTimeout = 5 * time.Second
	DefaultIOTimeout      = 5 * time.Millisecond
	DefaultMaxLine        = 4096
)

var (
	// ErrNotConnected is returned by frame operations on a closed client.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrTimeout means the operation exhausted its I/O budget. The peer is
	// presumed slow, not gone: the connected flag is left untouched.
	ErrTimeout = errors.New("transport: operation timed out")
	// ErrPeerClosed means the peer shut the connection down; the client
	// marks itself disconnected before returning it.
	ErrPeerClosed = errors.New("transport: peer closed connection")
	// ErrLineTooLong guards against an unterminated or runaway stream.
	ErrLineTooLong = errors.New("transport: line exceeds maximum length")
)

// Config bounds the client's I/O behavior.
type Config struct {
	Addr           string
	ConnectTimeout time.Duration
	IOTimeout      time.Duration // per send/receive wall-clock budget
	MaxLine        int           // max accumulated receive length in bytes
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.IOTimeout <= 0 {
		c.IOTimeout = DefaultIOTimeout
	}
	if c.MaxLine <= 0 {
		c.MaxLine = DefaultMaxLine
	}
	return c
}

// Client is a line-oriented TCP client for the bus-frame protocol. The
// socket is exclusively owned by the client. Frame operations serialize on
// an internal lock, so concurrent callers never interleave bytes on the
// wire; only one frame exchange is in flight at a time.
type Client struct {
	cfg Config
	log *zap.Logger

	mu        sync.Mutex
	conn      net.Conn
	connected bool
	// pending holds bytes consumed by the fallback liveness probe; they are
	// replayed ahead of socket reads so the probe stays non-destructive.
	pending []byte
}

// New constructs a disconnected Client.
func New(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{cfg: cfg.withDefaults(), log: log}
}

// Connect dials the configured endpoint. It is idempotent: an already
// connected client returns nil immediately. On failure the client stays
// disconnected.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}
	conn, err := net.DialTimeout("tcp", c.cfg.Addr, c.cfg.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", c.cfg.Addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	c.conn = conn
	c.connected = true
	c.pending = nil
	c.log.Debug("transport: connected", zap.String("addr", c.cfg.Addr))
	return nil
}

// Close tears the socket down. Safe to call repeatedly.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
	return nil
}

// Connected reports the last observed link state without touching the
// socket. Use Alive for an actual probe.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Alive probes the socket with a non-consuming one-byte peek. A closed or
// errored peer flips the client to disconnected as a side effect. A probe
// that would block means the link is up with no data pending.
func (c *Client) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return false
	}
	switch c.peek() {
	case peekAlive:
		return true
	default:
		c.log.Debug("transport: liveness probe failed", zap.String("addr", c.cfg.Addr))
		c.dropLocked()
		return false
	}
}

// SendFrame encodes f and writes it as one line, holding the client lock
// for the whole operation.
func (c *Client) SendFrame(f *maple.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return ErrNotConnected
	}
	return c.sendLineLocked(maple.Encode(f))
}

// ReceiveFrame reads one line and decodes it, holding the client lock for
// the whole operation. A decode failure leaves the connection up; the
// caller decides whether to drop the frame or close the link.
func (c *Client) ReceiveFrame() (*maple.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, ErrNotConnected
	}
	line, err := c.recvLineLocked()
	if err != nil {
		return nil, err
	}
	return maple.Decode(line)
}

// Exchange sends tx and receives the reply under one lock section, so the
// request/response pair of one caller is never split by another caller's
// traffic.
func (c *Client) Exchange(tx *maple.Frame) (*maple.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, ErrNotConnected
	}
	if err := c.sendLineLocked(maple.Encode(tx)); err != nil {
		return nil, err
	}
	line, err := c.recvLineLocked()
	if err != nil {
		return nil, err
	}
	return maple.Decode(line)
}

// ── internal ──────────────────────────────────────────────────────────────

// sendLineLocked writes the full line within the I/O budget, tolerating
// partial writes. A timeout fails the operation without flipping the
// connected flag; a hard error drops the connection.
func (c *Client) sendLineLocked(line string) error {
	deadline := time.Now().Add(c.cfg.IOTimeout)
	buf := []byte(line)
	for len(buf) > 0 {
		if !time.Now().Before(deadline) {
			return ErrTimeout
		}
		_ = c.conn.SetWriteDeadline(deadline)
		n, err := c.conn.Write(buf)
		buf = buf[n:]
		if err != nil {
			if isTimeout(err) {
				if len(buf) == 0 {
					return nil
				}
				return ErrTimeout
			}
			c.dropLocked()
			return fmt.Errorf("transport: send: %w", err)
		}
	}
	return nil
}

// recvLineLocked reads byte-at-a-time until CRLF, within the I/O budget and
// the configured maximum line length. The terminator is stripped.
func (c *Client) recvLineLocked() (string, error) {
	deadline := time.Now().Add(c.cfg.IOTimeout)
	line := make([]byte, 0, 64)
	one := make([]byte, 1)
	for {
		if len(line) >= c.cfg.MaxLine {
			c.dropLocked()
			return "", ErrLineTooLong
		}

		var b byte
		if len(c.pending) > 0 {
			b = c.pending[0]
			c.pending = c.pending[1:]
		} else {
			if !time.Now().Before(deadline) {
				return "", ErrTimeout
			}
			_ = c.conn.SetReadDeadline(deadline)
			n, err := c.conn.Read(one)
			if err != nil {
				if isTimeout(err) {
					return "", ErrTimeout
				}
				c.dropLocked()
				return "", fmt.Errorf("%w: %v", ErrPeerClosed, err)
			}
			if n == 0 {
				continue
			}
			b = one[0]
		}

		line = append(line, b)
		if len(line) >= 2 && line[len(line)-2] == '\r' && line[len(line)-1] == '\n' {
			return string(line[:len(line)-2]), nil
		}
	}
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.pending = nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
