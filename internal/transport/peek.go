package transport

// peekResult classifies one liveness probe.
type peekResult int

const (
	// peekAlive: the socket is open; either data is pending or the probe
	// would have blocked.
	peekAlive peekResult = iota
	// peekClosed: the peer performed an orderly shutdown (zero-byte read).
	peekClosed
	// peekError: a hard socket error.
	peekError
)
