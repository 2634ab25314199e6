package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitopia/gitopia-discord-bot/internal/domain"
	"github.com/gitopia/gitopia-discord-bot/internal/logging"
	"github.com/gitopia/gitopia-discord-bot/internal/metrics"
)

// recordingHandler collects events in arrival order.
type recordingHandler struct {
	mu       sync.Mutex
	events   []domain.RawEvent
	frameIDs []string
	received chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{received: make(chan struct{}, 64)}
}

func (h *recordingHandler) HandleEvent(ctx context.Context, event domain.RawEvent) {
	h.mu.Lock()
	h.events = append(h.events, event)
	h.frameIDs = append(h.frameIDs, logging.FrameID(ctx))
	h.mu.Unlock()
	h.received <- struct{}{}
}

func (h *recordingHandler) snapshot() []domain.RawEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.RawEvent(nil), h.events...)
}

func (h *recordingHandler) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-h.received:
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for event %d of %d", i+1, n)
		}
	}
}

// fakeNode is a websocket server standing in for a Tendermint RPC node.
type fakeNode struct {
	server     *httptest.Server
	mu         sync.Mutex
	subscribes []SubscribeRequest
	connected  chan int
	script     func(n int, conn *websocket.Conn)
}

func newFakeNode(t *testing.T, script func(n int, conn *websocket.Conn)) *fakeNode {
	node := &fakeNode{connected: make(chan int, 16), script: script}
	upgrader := websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

	node.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()

		var req SubscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			t.Logf("read subscribe: %v", err)
			return
		}
		node.mu.Lock()
		node.subscribes = append(node.subscribes, req)
		n := len(node.subscribes)
		node.mu.Unlock()

		node.connected <- n
		node.script(n, conn)
	}))
	t.Cleanup(node.server.Close)
	return node
}

func (n *fakeNode) url() string {
	return "ws" + strings.TrimPrefix(n.server.URL, "http")
}

func (n *fakeNode) subscribeRequests() []SubscribeRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SubscribeRequest(nil), n.subscribes...)
}

func (n *fakeNode) waitConnected(t *testing.T, want int) {
	t.Helper()
	select {
	case got := <-n.connected:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for connection %d", want)
	}
}

// holdOpen keeps the server side of a connection open until the client leaves.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func txFrame(t *testing.T, events ...domain.RawEvent) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"result": map[string]any{
			"query": TxQuery,
			"data": map[string]any{
				"type": "tendermint/event/Tx",
				"value": map[string]any{
					"TxResult": map[string]any{
						"height": "42",
						"result": map[string]any{"events": events},
					},
				},
			},
		},
	})
	require.NoError(t, err)
	return b
}

func newTestSupervisor(url string, h *recordingHandler, m *metrics.Metrics) *Supervisor {
	return NewSupervisor(Config{URL: url, ReconnectDelay: 20 * time.Millisecond}, h, zerolog.Nop(), m)
}

func runSupervisor(t *testing.T, s *Supervisor) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("supervisor did not stop")
		}
	}
}

func TestSupervisorSendsSubscribeRequest(t *testing.T) {
	node := newFakeNode(t, func(_ int, conn *websocket.Conn) { holdOpen(conn) })
	h := newRecordingHandler()
	s := newTestSupervisor(node.url(), h, nil)

	stop := runSupervisor(t, s)
	node.waitConnected(t, 1)

	reqs := node.subscribeRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, SubscribeRequest{
		Method:  "subscribe",
		Params:  SubscribeParams{Query: "tm.event='Tx'"},
		ID:      1,
		JSONRPC: "2.0",
	}, reqs[0])

	assert.Eventually(t, func() bool { return s.State() == StateSubscribed }, time.Second, 5*time.Millisecond)
	stop()
	assert.Equal(t, StateDisconnected, s.State())
}

func TestSupervisorProcessesEventsInOrderAndIgnoresControlFrames(t *testing.T) {
	first := EncodeAttributes(domain.EventAttributes{"action": "CreateUser", "UserUsername": "bob"})
	second := domain.RawEvent{Type: "transfer"}
	third := EncodeAttributes(domain.EventAttributes{"action": "CreateDao", "DaoName": "acme"})

	node := newFakeNode(t, func(_ int, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"result":{"data":{"type":"tendermint/event/Tx"}}}`))
		_ = conn.WriteMessage(websocket.TextMessage, txFrame(t, first, second, third))
		holdOpen(conn)
	})
	h := newRecordingHandler()
	m := metrics.New(prometheus.NewRegistry())
	s := newTestSupervisor(node.url(), h, m)

	stop := runSupervisor(t, s)
	defer stop()

	h.wait(t, 3)
	assert.Equal(t, []domain.RawEvent{first, second, third}, h.snapshot())

	h.mu.Lock()
	ids := append([]string(nil), h.frameIDs...)
	h.mu.Unlock()
	require.Len(t, ids, 3)
	assert.NotEmpty(t, ids[0])
	assert.Equal(t, ids[0], ids[2], "events of one frame share the frame id")

	assert.Equal(t, StateSubscribed, s.State(), "bad frames must not reset the connection")
	assert.Len(t, node.subscribeRequests(), 1)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.FramesReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesDiscarded.WithLabelValues("invalid_json")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesDiscarded.WithLabelValues("no_value")))
}

func TestSupervisorReconnectsOnceAfterAbnormalClose(t *testing.T) {
	node := newFakeNode(t, func(n int, conn *websocket.Conn) {
		if n == 1 {
			// Dropping the TCP connection without a close frame yields code 1006.
			_ = conn.UnderlyingConn().Close()
			return
		}
		holdOpen(conn)
	})
	h := newRecordingHandler()
	m := metrics.New(prometheus.NewRegistry())
	s := newTestSupervisor(node.url(), h, m)

	stop := runSupervisor(t, s)
	node.waitConnected(t, 1)
	node.waitConnected(t, 2)

	// The second connection stays up, so no further attempt may follow.
	time.Sleep(100 * time.Millisecond)
	stop()

	reqs := node.subscribeRequests()
	require.Len(t, reqs, 2)
	assert.Equal(t, reqs[0], reqs[1], "subscribe request is resent on reconnect")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconnects))
}

func TestSupervisorRetriesDialFailures(t *testing.T) {
	h := newRecordingHandler()
	m := metrics.New(prometheus.NewRegistry())
	s := newTestSupervisor("ws://127.0.0.1:1/websocket", h, m)

	stop := runSupervisor(t, s)
	assert.Eventually(t, func() bool { return testutil.ToFloat64(m.Reconnects) >= 2 }, 2*time.Second, 10*time.Millisecond)
	stop()
	assert.Equal(t, StateDisconnected, s.State())
}

func TestSupervisorStopsWithoutReconnecting(t *testing.T) {
	node := newFakeNode(t, func(_ int, conn *websocket.Conn) { holdOpen(conn) })
	h := newRecordingHandler()
	s := newTestSupervisor(node.url(), h, nil)

	stop := runSupervisor(t, s)
	node.waitConnected(t, 1)
	stop()

	time.Sleep(60 * time.Millisecond)
	assert.Len(t, node.subscribeRequests(), 1)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "subscribed", StateSubscribed.String())
	assert.Equal(t, "unknown", State(9).String())
}
