package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avvvet/idcard-services/internal/comm"
	"github.com/avvvet/idcard-services/internal/socketsvc/ws"
)

type fakeCardService struct {
	mu    sync.Mutex
	types []string
	data  json.RawMessage
	err   error
}

func (f *fakeCardService) Request(msgType string, _ json.RawMessage) (*comm.WSMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, msgType)
	if f.err != nil {
		return nil, f.err
	}
	return &comm.WSMessage{Type: msgType + "-response", Data: f.data}, nil
}

func (f *fakeCardService) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.types...)
}

func newServer(t *testing.T, cards ws.CardServiceClient, allowOrigin func(string) bool) (*ws.Ws, *httptest.Server) {
	t.Helper()
	s := ws.NewWs()
	s.Broker = cards

	r := chi.NewRouter()
	r.Get("/v1/ws", NewHandler(s, allowOrigin).HandleWebSocket)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return s, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) comm.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg comm.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestInitReturnsSummary(t *testing.T) {
	cards := &fakeCardService{data: json.RawMessage(`{"totalCards":4,"todayCards":1}`)}
	_, srv := newServer(t, cards, nil)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(comm.WSMessage{Type: "init"}))
	msg := read(t, conn)

	assert.Equal(t, "init-response", msg.Type)
	assert.NotEmpty(t, msg.SocketId)
	assert.JSONEq(t, `{"totalCards":4,"todayCards":1}`, string(msg.Data))
	assert.Equal(t, []string{"get-summary"}, cards.calls())
}

func TestCardServiceFailureIsReported(t *testing.T) {
	_, srv := newServer(t, &fakeCardService{err: errors.New("nats: timeout")}, nil)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(comm.WSMessage{Type: "get-summary"}))
	msg := read(t, conn)
	assert.Equal(t, "get-summary-response", msg.Type)
	assert.Equal(t, "card service unavailable", msg.Error)
}

func TestMalformedAndUnknownMessages(t *testing.T) {
	_, srv := newServer(t, &fakeCardService{}, nil)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg := read(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "Invalid message format", msg.Error)

	require.NoError(t, conn.WriteJSON(comm.WSMessage{Type: "dance"}))
	msg = read(t, conn)
	assert.Equal(t, "error", msg.Type)

	// the connection survives both
	require.NoError(t, conn.WriteJSON(comm.WSMessage{Type: "ping"}))
	assert.Equal(t, "pong", read(t, conn).Type)
}

func TestBroadcastAndDisconnect(t *testing.T) {
	s, srv := newServer(t, &fakeCardService{}, nil)
	a := dial(t, srv)
	b := dial(t, srv)

	require.Eventually(t, func() bool { return s.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	ev := json.RawMessage(`{"type":"card-created","cardId":"abc"}`)
	s.Broadcast(&comm.WSMessage{Type: "card-event", Data: ev})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := read(t, conn)
		assert.Equal(t, "card-event", msg.Type)
		assert.JSONEq(t, string(ev), string(msg.Data))
	}

	require.NoError(t, a.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	require.Eventually(t, func() bool { return s.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestOriginCheck(t *testing.T) {
	_, srv := newServer(t, &fakeCardService{}, func(o string) bool { return o == "http://dashboard.local" })
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"

	header := http.Header{"Origin": []string{"http://evil.local"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"http://dashboard.local"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}
