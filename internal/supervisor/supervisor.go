// Package supervisor drives the connection lifecycle for the peripheral
// link: a five-state machine stepped by Update(), with periodic health
// checks while connected and exponential-backoff reconnection after
// failures. Instances are plain values owned by the caller; there is no
// package-level singleton.
package supervisor

import (
	"time"

	"go.uber.org/zap"

	"github.com/vmulink/vmulink/internal/transport"
)

// State is the lifecycle position of the link.
type State int

const (
	StateDisabled State = iota
	StateDisconnected
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Kind classifies a user-facing notification. Only the three transitions a
// human cares about are ever emitted; backoff retries stay silent.
type Kind int

const (
	KindConnected Kind = iota
	KindDisconnected
	KindReconnected
)

func (k Kind) String() string {
	switch k {
	case KindConnected:
		return "connected"
	case KindDisconnected:
		return "disconnected"
	case KindReconnected:
		return "reconnected"
	default:
		return "unknown"
	}
}

// Notification is delivered through the injected callback on meaningful
// transitions. Duration is a suggested on-screen display time.
type Notification struct {
	Kind     Kind
	Message  string
	Duration time.Duration
}

// Timing defaults.
const (
	DefaultHealthInterval = 5 * time.Second
	initialBackoff        = 1 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
)

// Config holds the supervisor's timers and the transport configuration of
// the clients it creates.
type Config struct {
	Transport      transport.Config
	HealthInterval time.Duration
	MaxBackoff     time.Duration
}

func (c Config) withDefaults() Config {
	if c.HealthInterval <= 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	return c
}

// Option customizes a Supervisor at construction.
type Option func(*Supervisor)

// WithClock substitutes the time source; tests use it to drive the
// health-check and backoff timers.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// Supervisor owns zero or one transport.Client and steps the lifecycle
// machine once per Update() call. Update, SetEnabled and the query methods
// are single-writer operations: the owner polls them from one loop and must
// not call them concurrently. No call ever blocks longer than one bounded
// transport operation.
type Supervisor struct {
	cfg    Config
	log    *zap.Logger
	notify func(Notification)
	now    func() time.Time

	enabled    bool
	state      State
	enteredAt  time.Time
	lastHealth time.Time
	backoff    time.Duration
	reconnects uint64
	client     *transport.Client
}

// New constructs a Supervisor in StateDisabled. notify may be nil.
func New(cfg Config, log *zap.Logger, notify func(Notification), opts ...Option) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Supervisor{
		cfg:     cfg.withDefaults(),
		log:     log,
		notify:  notify,
		now:     time.Now,
		state:   StateDisabled,
		backoff: initialBackoff,
	}
	for _, o := range opts {
		o(s)
	}
	s.enteredAt = s.now()
	return s
}

// SetEnabled flips the feature flag. The state machine reacts on the next
// Update tick; disabling is unconditional and overrides any in-progress
// backoff or health schedule.
func (s *Supervisor) SetEnabled(enabled bool) {
	s.enabled = enabled
}

// IsEnabled reports the feature flag.
func (s *Supervisor) IsEnabled() bool { return s.enabled }

// State returns the current lifecycle state.
func (s *Supervisor) State() State { return s.state }

// IsConnected reports whether the link is in StateConnected.
func (s *Supervisor) IsConnected() bool { return s.state == StateConnected }

// Client returns the held transport client, or nil when none exists. The
// caller may issue frame operations on it only while IsConnected() is true
// and must tolerate any of them failing at any time.
func (s *Supervisor) Client() *transport.Client { return s.client }

// Backoff returns the current reconnect delay. Meaningful only in
// StateReconnecting.
func (s *Supervisor) Backoff() time.Duration { return s.backoff }

// TimeInState returns how long the machine has been in the current state.
func (s *Supervisor) TimeInState() time.Duration { return s.now().Sub(s.enteredAt) }

// ReconnectAttempts returns the cumulative number of dial attempts made from
// StateReconnecting over the supervisor's lifetime. The owner can diff
// successive readings to meter reconnect activity.
func (s *Supervisor) ReconnectAttempts() uint64 { return s.reconnects }

// Update steps the state machine once. It is designed to be called on a
// fixed cadence by the owner's poll loop and never blocks beyond the
// transport's bounded timeouts.
func (s *Supervisor) Update() {
	switch s.state {
	case StateDisabled:
		if s.enabled {
			s.enter(StateDisconnected)
		}

	case StateDisconnected:
		if !s.enabled {
			s.teardown()
			return
		}
		s.enter(StateConnecting)

	case StateConnecting:
		if !s.enabled {
			s.teardown()
			return
		}
		if s.connect() {
			s.backoff = initialBackoff
			s.enter(StateConnected)
			s.emit(KindConnected, "VMU link established", 3*time.Second)
		} else {
			s.enter(StateReconnecting)
		}

	case StateConnected:
		if !s.enabled {
			s.teardown()
			return
		}
		if s.now().Sub(s.lastHealth) >= s.cfg.HealthInterval {
			s.lastHealth = s.now()
			if !s.client.Alive() {
				s.emit(KindDisconnected, "VMU link lost", 5*time.Second)
				s.enter(StateReconnecting)
			}
		}

	case StateReconnecting:
		if !s.enabled {
			s.teardown()
			return
		}
		if s.now().Sub(s.enteredAt) >= s.backoff {
			s.reconnects++
			if s.connect() {
				s.backoff = initialBackoff
				s.enter(StateConnected)
				s.emit(KindReconnected, "VMU link restored", 3*time.Second)
			} else {
				s.backoff *= 2
				if s.backoff > s.cfg.MaxBackoff {
					s.backoff = s.cfg.MaxBackoff
				}
				s.enteredAt = s.now() // retry timer restarts, state stays
				s.log.Debug("reconnect attempt failed",
					zap.Duration("next_retry_in", s.backoff))
			}
		}
	}
}

// ── internal ──────────────────────────────────────────────────────────────

func (s *Supervisor) connect() bool {
	if s.client == nil {
		s.client = transport.New(s.cfg.Transport, s.log.Named("transport"))
	}
	if err := s.client.Connect(); err != nil {
		s.log.Debug("connect failed", zap.Error(err))
		return false
	}
	return true
}

// teardown releases the client and forces StateDisabled. It is the only
// cancellation mechanism: immediate and unconditional. The backoff delay is
// reset so a later re-enable starts a fresh retry sequence.
func (s *Supervisor) teardown() {
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
	s.backoff = initialBackoff
	s.enter(StateDisabled)
}

func (s *Supervisor) enter(st State) {
	if s.state != st {
		s.log.Info("link state change",
			zap.Stringer("from", s.state),
			zap.Stringer("to", st))
	}
	s.state = st
	s.enteredAt = s.now()
	if st == StateConnected {
		s.lastHealth = s.now()
	}
}

func (s *Supervisor) emit(kind Kind, message string, d time.Duration) {
	s.log.Info("link notification",
		zap.Stringer("kind", kind),
		zap.String("message", message))
	if s.notify != nil {
		s.notify(Notification{Kind: kind, Message: message, Duration: d})
	}
}
