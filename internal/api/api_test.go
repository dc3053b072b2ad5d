package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vmulink/vmulink/internal/maple"
	"github.com/vmulink/vmulink/internal/store"
	"github.com/vmulink/vmulink/internal/transport"
)

type fakeBridge struct {
	status    Status
	enabled   []bool
	events    []*store.LinkEvent
	exchange  func(tx *maple.Frame) (*maple.Frame, error)
	lastLimit int
}

func (f *fakeBridge) Status() Status    { return f.status }
func (f *fakeBridge) SetEnabled(e bool) { f.enabled = append(f.enabled, e) }
func (f *fakeBridge) History(limit int) ([]*store.LinkEvent, error) {
	f.lastLimit = limit
	return f.events, nil
}
func (f *fakeBridge) ExchangeFrame(tx *maple.Frame) (*maple.Frame, error) {
	return f.exchange(tx)
}

func newTestServer(t *testing.T, b *fakeBridge, subFn func() (<-chan any, func())) *httptest.Server {
	t.Helper()
	if subFn == nil {
		subFn = func() (<-chan any, func()) {
			ch := make(chan any)
			return ch, func() { close(ch) }
		}
	}
	h := NewRouter(b, subFn, http.NotFoundHandler(), zaptest.NewLogger(t))
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatus(t *testing.T) {
	b := &fakeBridge{status: Status{Enabled: true, State: "connected", Connected: true, BackoffSec: 1}}
	srv := newTestServer(t, b, nil)

	resp, err := http.Get(srv.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, b.status, got)
}

func TestEnableDisable(t *testing.T) {
	b := &fakeBridge{}
	srv := newTestServer(t, b, nil)

	resp, err := http.Post(srv.URL+"/api/v1/link/enable", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/v1/link/disable", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []bool{true, false}, b.enabled)
}

func TestHistory(t *testing.T) {
	b := &fakeBridge{events: []*store.LinkEvent{
		{ID: 2, Kind: "disconnected", Message: "VMU link lost", At: time.Now().UTC()},
		{ID: 1, Kind: "connected", Message: "VMU link established", At: time.Now().UTC()},
	}}
	srv := newTestServer(t, b, nil)

	resp, err := http.Get(srv.URL + "/api/v1/history?limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, b.lastLimit)

	var body struct {
		Events []*store.LinkEvent `json:"events"`
		Count  int                `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "disconnected", body.Events[0].Kind)
}

func TestHistoryLimitValidation(t *testing.T) {
	srv := newTestServer(t, &fakeBridge{}, nil)
	for _, q := range []string{"limit=0", "limit=501", "limit=abc"} {
		resp, err := http.Get(srv.URL + "/api/v1/history?" + q)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestExchangeFrame(t *testing.T) {
	b := &fakeBridge{exchange: func(tx *maple.Frame) (*maple.Frame, error) {
		rx := &maple.Frame{Command: maple.CmdAck, DestAddr: tx.OriginAddr, OriginAddr: tx.DestAddr}
		return rx, nil
	}}
	srv := newTestServer(t, b, nil)

	body := `{"command": 12, "dest_addr": 1, "origin_addr": 32, "payload": "02000000DEADBEEF"}`
	resp, err := http.Post(srv.URL+"/api/v1/frames", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got frameResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, maple.CmdAck, got.Command)
	assert.Equal(t, byte(32), got.DestAddr)
	assert.Equal(t, byte(1), got.OriginAddr)
}

func TestExchangeFrameLinkDown(t *testing.T) {
	b := &fakeBridge{exchange: func(tx *maple.Frame) (*maple.Frame, error) {
		return nil, transport.ErrNotConnected
	}}
	srv := newTestServer(t, b, nil)

	resp, err := http.Post(srv.URL+"/api/v1/frames", "application/json",
		strings.NewReader(`{"command": 1}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestExchangeFrameBadRequests(t *testing.T) {
	b := &fakeBridge{exchange: func(tx *maple.Frame) (*maple.Frame, error) {
		t.Fatal("exchange must not be reached")
		return nil, nil
	}}
	srv := newTestServer(t, b, nil)

	for name, body := range map[string]string{
		"invalid json":    `{`,
		"non-hex payload": `{"command": 1, "payload": "zz"}`,
	} {
		resp, err := http.Post(srv.URL+"/api/v1/frames", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
	}
}

func TestEventStream(t *testing.T) {
	events := make(chan any, 1)
	subFn := func() (<-chan any, func()) { return events, func() {} }
	srv := newTestServer(t, &fakeBridge{}, subFn)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	events <- map[string]string{"kind": "connected", "message": "VMU link established"}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]string
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "connected", got["kind"])
}
