package core

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsFixture struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	cm      *ConnManager
	broker  *Broker
	router  *EventRouter
	server  *httptest.Server
	closed  chan *Conn
	clients []*websocket.Conn
}

type joinPayload struct {
	ChatroomID string `json:"chatroomId"`
}

// setUpWSFixture serves websocket connections whose user id is taken from the
// "user" query parameter and routes joinRoom events to a broker.
func setUpWSFixture(t *testing.T, opts ...ManagerOption) *wsFixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &wsFixture{closed: make(chan *Conn, 10)}
	f.ctx, f.cancel = context.WithCancel(context.Background())

	f.broker = NewBroker(WithBrokerLogger(logger))
	f.broker.Start(f.ctx)

	f.cm = NewConnManager(f.ctx, &f.wg, logger, opts...)
	f.cm.OnConnectionClosed(func(c *Conn) {
		f.broker.LeaveAll(c)
		f.closed <- c
	})

	f.router = NewEventRouter(f.ctx, logger, f.cm)
	f.router.On(JoinRoomEvent, func(ctx context.Context, e *Event) error {
		var p joinPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return ValidationError("malformed payload")
		}
		return f.broker.Join(ctx, p.ChatroomID, e.Dispatcher, e.Source)
	})
	f.router.Listen()

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.cm.Connect(r.URL.Query().Get("user"), w, r)
	}))

	t.Cleanup(func() {
		for _, c := range f.clients {
			c.Close()
		}
		f.server.Close()
		f.cm.CloseAll()
		closeCtx, cancel := context.WithTimeout(context.Background(), baseTimeout)
		defer cancel()
		f.router.Close(closeCtx)
		f.broker.Close()
		f.cancel()
	})
	return f
}

func (f *wsFixture) dial(t *testing.T, userID string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/?user=" + userID
	conn, res, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, res.StatusCode)
	f.clients = append(f.clients, conn)
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, name string, payload any) {
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Event{Name: name, Payload: b}))
}

func readEvent(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	conn.SetReadDeadline(time.Now().Add(baseTimeout))
	var e Event
	require.NoError(t, conn.ReadJSON(&e))
	var payload map[string]any
	require.NoError(t, json.Unmarshal(e.Payload, &payload))
	return e.Name, payload
}

func TestWS_JoinRoomFanOut(t *testing.T) {
	f := setUpWSFixture(t)
	alice := f.dial(t, "alice")
	bob := f.dial(t, "bob")

	sendEvent(t, alice, JoinRoomEvent, joinPayload{ChatroomID: "r1"})
	name, payload := readEvent(t, alice)
	assert.Equal(t, MessageEvent, name)
	assert.Equal(t, "joinRoom", payload["type"])
	assert.Equal(t, "alice", payload["userId"])

	sendEvent(t, bob, JoinRoomEvent, joinPayload{ChatroomID: "r1"})
	_, payload = readEvent(t, alice)
	assert.Equal(t, "bob", payload["userId"])
	_, payload = readEvent(t, bob)
	assert.Equal(t, "bob", payload["userId"])

	require.NoError(t, f.broker.Broadcast(f.ctx, "r1", map[string]string{"type": "sendMessage"}))
	_, payload = readEvent(t, alice)
	assert.Equal(t, "sendMessage", payload["type"])
	_, payload = readEvent(t, bob)
	assert.Equal(t, "sendMessage", payload["type"])
}

func TestWS_UnknownEventIsRejected(t *testing.T) {
	f := setUpWSFixture(t)
	alice := f.dial(t, "alice")

	sendEvent(t, alice, "dance", struct{}{})
	name, payload := readEvent(t, alice)
	assert.Equal(t, ErrorEvent, name)
	assert.Equal(t, "dance", payload["event"])
	assert.Equal(t, KindValidation.String(), payload["code"])
}

func TestWS_MalformedEvent(t *testing.T) {
	f := setUpWSFixture(t)
	alice := f.dial(t, "alice")

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{not json")))
	name, payload := readEvent(t, alice)
	assert.Equal(t, ErrorEvent, name)
	assert.Equal(t, "malformed event", payload["message"])
}

func TestWS_RateLimit(t *testing.T) {
	f := setUpWSFixture(t, WithEventRate(0.001, 1))
	alice := f.dial(t, "alice")

	sendEvent(t, alice, JoinRoomEvent, joinPayload{ChatroomID: "r1"})
	_, payload := readEvent(t, alice)
	assert.Equal(t, "joinRoom", payload["type"])

	sendEvent(t, alice, JoinRoomEvent, joinPayload{ChatroomID: "r2"})
	name, payload := readEvent(t, alice)
	assert.Equal(t, ErrorEvent, name)
	assert.Equal(t, "rate limit exceeded", payload["message"])
}

func TestWS_DisconnectLeavesChannels(t *testing.T) {
	f := setUpWSFixture(t)
	alice := f.dial(t, "alice")

	sendEvent(t, alice, JoinRoomEvent, joinPayload{ChatroomID: "r1"})
	readEvent(t, alice)
	require.Len(t, f.broker.Subscribers("r1"), 1)

	alice.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	select {
	case c := <-f.closed:
		assert.Equal(t, "alice", c.UserID())
	case <-time.After(baseTimeout):
		t.Fatal("timed out waiting for the connection to close")
	}
	require.Eventually(t, func() bool {
		return len(f.broker.Subscribers("r1")) == 0
	}, baseTimeout, 10*time.Millisecond)
	assert.False(t, f.cm.IsUserConnected("alice"))
}
