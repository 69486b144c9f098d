package signal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roomchat/internal/adapters/memstore"
	"github.com/dkeye/roomchat/internal/app"
	"github.com/dkeye/roomchat/internal/app/orch"
	"github.com/dkeye/roomchat/internal/app/session"
	"github.com/dkeye/roomchat/internal/codec"
	"github.com/dkeye/roomchat/internal/domain"
)

type nopBlobs struct{}

func (nopBlobs) Upload(context.Context, domain.RoomCode, []byte, string) (string, error) {
	return "/files/x", nil
}

type frame struct {
	Type     string          `json:"type"`
	Error    string          `json:"error"`
	Room     string          `json:"room"`
	Username string          `json:"username"`
	State    string          `json:"state"`
	Messages []session.Entry `json:"messages"`
}

func newTestServer(t *testing.T, limiter *RoomRateLimiter) (*httptest.Server, *memstore.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memstore.New()
	dir := app.NewDirectory(store)
	o := &orch.Orchestrator{
		Registry:  orch.NewRegistry(),
		Directory: dir,
		Policy:    app.SimplePolicy{MaxDrops: 8},
		Deps: session.Deps{
			Directory: dir,
			Messages:  store,
			Blobs:     nopBlobs{},
			Codec:     codec.Legacy{},
		},
	}
	ctl := NewSignalWSController(o, limiter, 32768, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set("client_token", uuid.NewString())
		ctl.HandleSignal(ctx, c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = store.Close()
	})
	return srv, store
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(v))
}

// expect reads frames until one satisfies ok.
func expect(t *testing.T, ws *websocket.Conn, ok func(frame) bool) frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &f))
		if ok(f) {
			return f
		}
	}
}

func ofType(typ string) func(frame) bool {
	return func(f frame) bool { return f.Type == typ }
}

func withBody(body string) func(frame) bool {
	return func(f frame) bool {
		if f.Type != "messages" {
			return false
		}
		for _, e := range f.Messages {
			if e.Body == body {
				return true
			}
		}
		return false
	}
}

func TestJoinSendReceive(t *testing.T) {
	srv, store := newTestServer(t, NewRoomRateLimiter(100, time.Second))
	alice, bob := dial(t, srv), dial(t, srv)

	send(t, alice, map[string]string{"type": "join", "room": "abc", "name": "alice"})
	joined := expect(t, alice, ofType("joined"))
	assert.Equal(t, "ABC", joined.Room)

	send(t, bob, map[string]string{"type": "join", "room": "ABC", "name": "bob"})
	expect(t, bob, ofType("joined"))

	send(t, alice, map[string]string{"type": "send", "text": "hello"})
	got := expect(t, bob, withBody("hello"))
	assert.Equal(t, "ABC", got.Room)
	last := got.Messages[len(got.Messages)-1]
	assert.Equal(t, "alice", last.Sender)
	assert.False(t, last.Mine)

	mine := expect(t, alice, withBody("hello"))
	assert.True(t, mine.Messages[len(mine.Messages)-1].Mine)

	stored := store.Messages("ABC")
	assert.NotEqual(t, "hello", stored[len(stored)-1].Text, "text is obscured at rest")
}

func TestExitAndDisconnectLeaveRoom(t *testing.T) {
	srv, store := newTestServer(t, nil)
	alice, bob := dial(t, srv), dial(t, srv)

	send(t, alice, map[string]string{"type": "join", "room": "lobby", "name": "alice"})
	expect(t, alice, ofType("joined"))
	send(t, bob, map[string]string{"type": "join", "room": "lobby", "name": "bob"})
	expect(t, bob, ofType("joined"))

	send(t, alice, map[string]string{"type": "exit"})
	expect(t, alice, ofType("left"))
	expect(t, bob, withBody("alice left the room"))

	require.NoError(t, bob.Close())
	assert.Eventually(t, func() bool {
		members, err := store.Members(context.Background(), "LOBBY")
		return err == nil && len(members) == 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestErrorsAndControlFrames(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ws := dial(t, srv)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "bad_payload", expect(t, ws, ofType("error")).Error)

	send(t, ws, map[string]string{"type": "dance"})
	assert.Equal(t, "unknown_type", expect(t, ws, ofType("error")).Error)

	send(t, ws, map[string]string{"type": "join", "room": "abc", "name": "  "})
	assert.Equal(t, "invalid_input", expect(t, ws, ofType("error")).Error)

	send(t, ws, map[string]string{"type": "send", "text": "hi"})
	assert.Equal(t, "invalid_state", expect(t, ws, ofType("error")).Error)

	send(t, ws, map[string]string{"type": "ping"})
	expect(t, ws, ofType("pong"))

	send(t, ws, map[string]string{"type": "whoami"})
	who := expect(t, ws, ofType("whoami"))
	assert.Equal(t, "disconnected", who.State)
}

func TestSendIsRateLimited(t *testing.T) {
	srv, _ := newTestServer(t, NewRoomRateLimiter(1, time.Minute))
	ws := dial(t, srv)

	send(t, ws, map[string]string{"type": "join", "room": "abc", "name": "alice"})
	expect(t, ws, ofType("joined"))

	send(t, ws, map[string]string{"type": "send", "text": "one"})
	send(t, ws, map[string]string{"type": "send", "text": "two"})
	assert.Equal(t, "rate_limited", expect(t, ws, ofType("error")).Error)
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRoomRateLimiter(2, time.Second)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("m-1"))
	assert.True(t, rl.Allow("m-1"))
	assert.False(t, rl.Allow("m-1"))
	assert.True(t, rl.Allow("m-2"), "members are limited independently")

	now = now.Add(1100 * time.Millisecond)
	assert.True(t, rl.Allow("m-1"))

	rl.Forget("m-1")
	assert.True(t, rl.Allow("m-1"))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "join_failed", errorCode(domain.ErrJoinFailed))
	assert.Equal(t, "upload_failed", errorCode(domain.ErrUploadFailed))
	assert.Equal(t, "invalid_input", errorCode(domain.ErrFileNameEmpty))
	assert.Equal(t, "internal", errorCode(context.Canceled))
}
