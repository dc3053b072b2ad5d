// Package gateway implements the bridge service. It owns the connection
// supervisor, polls it on a fixed cadence, and fans link notifications out
// to the event bus, the journal, the metrics registry and the log.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vmulink/vmulink/internal/api"
	"github.com/vmulink/vmulink/internal/config"
	"github.com/vmulink/vmulink/internal/maple"
	"github.com/vmulink/vmulink/internal/metrics"
	"github.com/vmulink/vmulink/internal/store"
	"github.com/vmulink/vmulink/internal/supervisor"
	"github.com/vmulink/vmulink/internal/transport"
)

// Gateway is the central application service.
type Gateway struct {
	cfg    *config.Config
	db     *store.DB
	log    *zap.Logger
	bus    *EventBus
	met    *metrics.Bridge
	server *http.Server

	// mu serializes all supervisor access: the supervisor is single-writer
	// and is touched by both the poll loop and HTTP handlers.
	mu  sync.Mutex
	sup *supervisor.Supervisor
	// lastReconnects is the supervisor attempt count already metered.
	lastReconnects uint64
}

// New constructs a Gateway without starting it.
func New(cfg *config.Config, db *store.DB, log *zap.Logger) *Gateway {
	g := &Gateway{
		cfg: cfg,
		db:  db,
		log: log,
		bus: NewEventBus(),
	}

	reg := metrics.NewRegistry()
	g.met = metrics.NewBridge(reg)

	g.sup = supervisor.New(
		supervisor.Config{
			Transport: transport.Config{
				Addr:           cfg.Link.Addr,
				ConnectTimeout: cfg.Link.ConnectTimeout(),
				IOTimeout:      cfg.Link.IOTimeout(),
				MaxLine:        cfg.Link.MaxLineBytes,
			},
			HealthInterval: cfg.Link.HealthInterval(),
			MaxBackoff:     cfg.Link.MaxBackoff(),
		},
		log.Named("supervisor"),
		g.onNotification,
	)

	router := api.NewRouter(g, g.subscribeAny, metrics.Handler(reg), log.Named("api"))
	g.server = &http.Server{
		Addr:              cfg.Gateway.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return g
}

// Start launches the HTTP API and the poll loop and blocks until ctx is
// cancelled. The link starts enabled.
func (g *Gateway) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.cfg.Gateway.ListenAddr)
	if err != nil {
		return fmt.Errorf("gateway: listen %s: %w", g.cfg.Gateway.ListenAddr, err)
	}
	g.log.Info("HTTP gateway listening", zap.String("addr", ln.Addr().String()))

	srvErr := make(chan error, 1)
	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	g.SetEnabled(true)

	ticker := time.NewTicker(g.cfg.Link.Tick())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.log.Info("context cancelled – shutting down gateway")
			g.shutdownLink()
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return g.server.Shutdown(shutCtx)
		case err := <-srvErr:
			return err
		case <-ticker.C:
			g.tick()
		}
	}
}

// tick steps the supervisor once and refreshes the link gauges and the
// reconnect-attempt counter.
func (g *Gateway) tick() {
	g.mu.Lock()
	g.sup.Update()
	connected := g.sup.IsConnected()
	backoff := g.sup.Backoff()
	attempts := g.sup.ReconnectAttempts()
	metered := g.lastReconnects
	g.lastReconnects = attempts
	g.mu.Unlock()

	if connected {
		g.met.LinkUp.Set(1)
	} else {
		g.met.LinkUp.Set(0)
	}
	g.met.BackoffSeconds.Set(backoff.Seconds())
	if attempts > metered {
		g.met.ReconnectAttempts.Add(float64(attempts - metered))
	}
}

// shutdownLink disables the supervisor and drives it into the disabled
// state so the client socket is released before the process exits.
func (g *Gateway) shutdownLink() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sup.SetEnabled(false)
	g.sup.Update()
}

// ── api.Bridge implementation ─────────────────────────────────────────────

// Status reports a snapshot of the link for the REST API.
func (g *Gateway) Status() api.Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return api.Status{
		Enabled:        g.sup.IsEnabled(),
		State:          g.sup.State().String(),
		Connected:      g.sup.IsConnected(),
		TimeInStateSec: g.sup.TimeInState().Seconds(),
		BackoffSec:     int(g.sup.Backoff() / time.Second),
	}
}

// SetEnabled flips the link feature flag; the poll loop applies it on the
// next tick.
func (g *Gateway) SetEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sup.SetEnabled(enabled)
}

// History returns the most recent journaled link events.
func (g *Gateway) History(limit int) ([]*store.LinkEvent, error) {
	return g.db.ListLinkEvents(limit)
}

// ExchangeFrame performs one debug request/response exchange on the live
// client. It fails with transport.ErrNotConnected while the link is down.
func (g *Gateway) ExchangeFrame(tx *maple.Frame) (*maple.Frame, error) {
	g.mu.Lock()
	var client *transport.Client
	if g.sup.IsConnected() {
		client = g.sup.Client()
	}
	g.mu.Unlock()

	if client == nil {
		return nil, transport.ErrNotConnected
	}

	g.met.FramesSent.Inc()
	rx, err := client.Exchange(tx)
	if err != nil {
		g.met.ExchangeFailures.Inc()
		if errors.Is(err, maple.ErrFrameFormat) {
			g.met.FrameErrors.Inc()
		}
		if errors.Is(err, transport.ErrTimeout) {
			g.met.TimeoutsTotal.Inc()
		}
		return nil, err
	}
	g.met.FramesReceived.Inc()

	now := time.Now().UTC()
	if err := g.db.InsertFrameLog("tx", tx.Command, tx.WordCount, now); err != nil {
		g.log.Warn("journal tx frame", zap.Error(err))
	}
	if err := g.db.InsertFrameLog("rx", rx.Command, rx.WordCount, now); err != nil {
		g.log.Warn("journal rx frame", zap.Error(err))
	}
	return rx, nil
}

// ── internal ──────────────────────────────────────────────────────────────

// onNotification runs synchronously inside Update; it must not take g.mu.
func (g *Gateway) onNotification(n supervisor.Notification) {
	g.log.Info("link notification",
		zap.Stringer("kind", n.Kind),
		zap.String("message", n.Message),
		zap.Duration("display", n.Duration))

	g.met.NotificationsTotal.WithLabelValues(n.Kind.String()).Inc()

	at := time.Now().UTC()
	if _, err := g.db.InsertLinkEvent(n.Kind.String(), n.Message, at); err != nil {
		g.log.Warn("journal link event", zap.Error(err))
	}

	g.bus.Publish(Event{
		Kind:      n.Kind.String(),
		Message:   n.Message,
		Timestamp: at,
	})
}

// subscribeAny adapts the typed event bus to the API's generic
// subscription contract.
func (g *Gateway) subscribeAny() (<-chan any, func()) {
	ch, unsub := g.bus.Subscribe()
	out := make(chan any, 16)
	go func() {
		defer close(out)
		for e := range ch {
			select {
			case out <- e:
			default:
				// Slow consumer – drop silently.
			}
		}
	}()
	return out, unsub
}
