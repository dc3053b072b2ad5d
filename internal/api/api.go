// Package api implements the bridge's HTTP surface.
//
// Routes:
//
//	GET  /api/v1/status       — link state snapshot
//	GET  /api/v1/history      — recent journaled link events
//	POST /api/v1/link/enable  — turn the link feature on
//	POST /api/v1/link/disable — turn the link feature off
//	POST /api/v1/frames       — debug frame exchange against the live peer
//	GET  /api/v1/events       — WebSocket live stream of link events
//	GET  /metrics             — Prometheus metrics
//
// Framework: standard library net/http; gorilla/websocket for the stream.
package api

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vmulink/vmulink/internal/maple"
	"github.com/vmulink/vmulink/internal/store"
	"github.com/vmulink/vmulink/internal/transport"
)

// Status is the link snapshot served by GET /api/v1/status.
type Status struct {
	Enabled        bool    `json:"enabled"`
	State          string  `json:"state"`
	Connected      bool    `json:"connected"`
	TimeInStateSec float64 `json:"time_in_state_sec"`
	BackoffSec     int     `json:"backoff_sec"`
}

// Bridge is the subset of the gateway the API needs.
type Bridge interface {
	Status() Status
	SetEnabled(enabled bool)
	History(limit int) ([]*store.LinkEvent, error)
	ExchangeFrame(tx *maple.Frame) (*maple.Frame, error)
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// Server holds handler dependencies.
type Server struct {
	bridge      Bridge
	subscribeFn func() (<-chan any, func())
	log         *zap.Logger
}

// NewRouter wires all routes and returns an http.Handler. subFn is called
// for each new WebSocket client; it must return a channel of
// JSON-serialisable events and an unsubscribe function.
func NewRouter(
	bridge Bridge,
	subFn func() (<-chan any, func()),
	metricsHandler http.Handler,
	log *zap.Logger,
) http.Handler {
	s := &Server{bridge: bridge, subscribeFn: subFn, log: log}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/status", s.status)
	mux.HandleFunc("GET /api/v1/history", s.history)
	mux.HandleFunc("POST /api/v1/link/enable", s.enable)
	mux.HandleFunc("POST /api/v1/link/disable", s.disable)
	mux.HandleFunc("POST /api/v1/frames", s.exchangeFrame)
	mux.HandleFunc("GET /api/v1/events", s.eventStream)
	mux.Handle("GET /metrics", metricsHandler)

	return withLogging(log, mux)
}

// ── Status / link control ─────────────────────────────────────────────────

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.Status())
}

func (s *Server) enable(w http.ResponseWriter, r *http.Request) {
	s.bridge.SetEnabled(true)
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true})
}

func (s *Server) disable(w http.ResponseWriter, r *http.Request) {
	s.bridge.SetEnabled(false)
	writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
}

// ── History ───────────────────────────────────────────────────────────────

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50, 1, 500)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	events, err := s.bridge.History(limit)
	if err != nil {
		s.log.Error("api: list history", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// ── Debug frame exchange ──────────────────────────────────────────────────

type frameRequest struct {
	Command    byte   `json:"command"`
	DestAddr   byte   `json:"dest_addr"`
	OriginAddr byte   `json:"origin_addr"`
	Payload    string `json:"payload,omitempty"` // hex encoded
}

type frameResponse struct {
	Command    byte   `json:"command"`
	DestAddr   byte   `json:"dest_addr"`
	OriginAddr byte   `json:"origin_addr"`
	WordCount  byte   `json:"word_count"`
	Payload    string `json:"payload"` // hex encoded
}

func (s *Server) exchangeFrame(w http.ResponseWriter, r *http.Request) {
	var req frameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	payload, err := hex.DecodeString(strings.ReplaceAll(req.Payload, " ", ""))
	if err != nil {
		http.Error(w, "payload must be hex encoded", http.StatusBadRequest)
		return
	}
	if len(payload) > maple.PayloadCap {
		http.Error(w, "payload exceeds 1024 bytes", http.StatusBadRequest)
		return
	}

	tx := &maple.Frame{
		Command:    req.Command,
		DestAddr:   req.DestAddr,
		OriginAddr: req.OriginAddr,
	}
	tx.SetData(payload)

	rx, err := s.bridge.ExchangeFrame(tx)
	switch {
	case err == nil:
	case errors.Is(err, transport.ErrNotConnected):
		http.Error(w, "link is down", http.StatusServiceUnavailable)
		return
	case errors.Is(err, maple.ErrFrameFormat):
		s.log.Warn("api: malformed peer reply", zap.Error(err))
		http.Error(w, "peer sent a malformed frame", http.StatusBadGateway)
		return
	default:
		s.log.Warn("api: frame exchange failed", zap.Error(err))
		http.Error(w, "frame exchange failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, frameResponse{
		Command:    rx.Command,
		DestAddr:   rx.DestAddr,
		OriginAddr: rx.OriginAddr,
		WordCount:  rx.WordCount,
		Payload:    strings.ToUpper(hex.EncodeToString(rx.Data())),
	})
}

// ── WebSocket event stream ────────────────────────────────────────────────

func (s *Server) eventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("api: ws upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	ch, unsub := s.subscribeFn()
	defer unsub()

	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				s.log.Debug("api: ws write", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// ── Middleware ────────────────────────────────────────────────────────────

func withLogging(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.Debug("api",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.code),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	code int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.code = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack passes hijacking through to the wrapped writer so the WebSocket
// upgrade works behind the logging middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("api: response writer does not support hijacking")
	}
	return h.Hijack()
}

// ── helpers ───────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func queryInt(r *http.Request, key string, def, min, max int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < min || n > max {
		return 0, fmt.Errorf("%s must be %d–%d", key, min, max)
	}
	return n, nil
}
