package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/app/sfu"
	"github.com/dkeye/huddle/internal/app/sfu/sfutest"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/store"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenAuth map[string]domain.UserID

func (a tokenAuth) VerifyToken(_ context.Context, token string) (domain.UserID, error) {
	uid, ok := a[token]
	if !ok {
		return "", core.ErrAuthentication
	}
	return uid, nil
}

type testServer struct {
	url   string
	orch  *orch.Orchestrator
	store *store.Memory
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pool, err := sfu.NewWorkerPool(1, func(int) (core.MediaEngine, error) { return sfutest.NewEngine(), nil }, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- pool.Run(ctx) }()

	st := store.NewMemory()
	reg := app.NewRegistry(st, 0)
	o := orch.New(reg, app.NewRoomManager(), app.NewGroupCalls(), sfu.NewRoomManager(pool, nil), st, nil)

	ctl := NewSignalWSController(o, tokenAuth{"a-token": "alice", "b-token": "bob"}, opts)
	r := gin.New()
	r.Use(sessions.Sessions("test", cookie.NewStore([]byte("secret"))))
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-errc
		reg.Close()
	})
	return &testServer{url: srv.URL, orch: o, store: st}
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

// dial connects and waits for a whoami round trip, so the user is
// registered once it returns.
func (s *testServer) dial(t *testing.T, token string) *client {
	t.Helper()
	u := "ws" + strings.TrimPrefix(s.url, "http") + "/ws?token=" + token
	ws, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = ws.Close() })
	c := &client{t: t, ws: ws}
	c.send(map[string]any{"type": "whoami", "reqId": "hello"})
	c.until("response")
	return c
}

func (c *client) send(v any) {
	c.t.Helper()
	require.NoError(c.t, c.ws.WriteJSON(v))
}

// until reads frames until one of type typ arrives.
func (c *client) until(typ string) map[string]any {
	c.t.Helper()
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := c.ws.ReadMessage()
		require.NoError(c.t, err, "waiting for %s", typ)
		var m map[string]any
		require.NoError(c.t, json.Unmarshal(data, &m))
		if m["type"] == typ {
			return m
		}
	}
}

func TestHandshakeRejectsMissingToken(t *testing.T) {
	s := newTestServer(t, Options{})

	resp, err := http.Get(s.url + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "AUTHENTICATION_FAILED", body["error"])

	u := "ws" + strings.TrimPrefix(s.url, "http") + "/ws?token=forged"
	_, resp, err = websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, s.orch.Registry.IsOnline("alice"))
}

func TestPingAndWhoAmI(t *testing.T) {
	s := newTestServer(t, Options{})
	a := s.dial(t, "a-token")

	a.send(map[string]any{"type": "ping"})
	a.until("pong")

	a.send(map[string]any{"type": "whoami", "reqId": "w1"})
	resp := a.until("response")
	assert.Equal(t, "w1", resp["reqId"])
	data := resp["data"].(map[string]any)
	assert.Equal(t, "alice", data["userId"])
	assert.Equal(t, true, data["online"])
}

func TestSendMessageReachesOfflineRoomMember(t *testing.T) {
	s := newTestServer(t, Options{})
	conv, err := s.store.FindOrCreateConversation(t.Context(), []domain.UserID{"alice", "bob"}, core.ConversationOptions{})
	require.NoError(t, err)

	a := s.dial(t, "a-token")
	b := s.dial(t, "b-token")

	a.send(map[string]any{"type": "joinConversation", "reqId": "j1", "conversationId": conv.ID})
	a.until("response")

	a.send(map[string]any{
		"type":           "sendMessage",
		"reqId":          "m1",
		"conversationId": conv.ID,
		"content":        "hi bob",
	})
	ack := a.until("response")
	assert.Equal(t, "m1", ack["reqId"])

	// Bob never joined the room; the direct path still reaches him.
	ev := b.until(orch.EventReceiveMessage)
	msg := ev["message"].(map[string]any)
	assert.Equal(t, "hi bob", msg["content"])
	assert.Equal(t, "alice", msg["userId"])
	assert.Equal(t, ack["data"].(map[string]any)["id"], msg["id"])
}

func TestErrorReplies(t *testing.T) {
	s := newTestServer(t, Options{})
	a := s.dial(t, "a-token")

	a.send(map[string]any{"type": "teleport", "reqId": "x"})
	e := a.until("error")
	assert.Equal(t, "UNKNOWN_EVENT", e["error"])
	assert.Equal(t, "x", e["reqId"])

	require.NoError(t, a.ws.WriteMessage(websocket.TextMessage, []byte("{nope")))
	assert.Equal(t, "BAD_PAYLOAD", a.until("error")["error"])

	a.send(map[string]any{"type": "sendMessage", "reqId": "m", "conversationId": "missing", "content": "x"})
	assert.Equal(t, "CONVERSATION_NOT_FOUND", a.until("error")["error"])
}

func TestSendMessageRateLimited(t *testing.T) {
	s := newTestServer(t, Options{RateLimit: 1, RateInterval: time.Minute})
	conv, err := s.store.FindOrCreateConversation(t.Context(), []domain.UserID{"alice", "bob"}, core.ConversationOptions{})
	require.NoError(t, err)
	a := s.dial(t, "a-token")

	a.send(map[string]any{"type": "sendMessage", "reqId": "1", "conversationId": conv.ID, "content": "one"})
	a.until("response")
	a.send(map[string]any{"type": "sendMessage", "reqId": "2", "conversationId": conv.ID, "content": "two"})
	e := a.until("error")
	assert.Equal(t, "RATE_LIMITED", e["error"])
	assert.Equal(t, "2", e["reqId"])
}

func TestCloseUnregisters(t *testing.T) {
	s := newTestServer(t, Options{})
	a := s.dial(t, "a-token")
	require.True(t, s.orch.Registry.IsOnline("alice"))

	require.NoError(t, a.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return !s.orch.Registry.IsOnline("alice") },
		2*time.Second, 10*time.Millisecond)
}
