package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"group-chat/internal/logger"
	"group-chat/internal/models"
)

func testClient(buffer int) *Client {
	return &Client{send: make(chan []byte, buffer), log: logger.Discard()}
}

func receive(t *testing.T, c *Client) models.GroupEvent {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		require.True(t, ok, "send queue closed")
		var event models.GroupEvent
		require.NoError(t, json.Unmarshal(payload, &event))
		return event
	default:
		t.Fatal("expected a queued message")
		return models.GroupEvent{}
	}
}

func assertNothingQueued(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		if ok {
			t.Fatalf("unexpected message %s", payload)
		}
	default:
	}
}

func TestHubSubscribeBroadcastUnsubscribe(t *testing.T) {
	hub := NewHub(logger.Discard())
	c := testClient(4)
	msg := models.Message{ID: "m1", GroupID: "g1", SenderID: "alice", Text: "hi"}

	hub.Subscribe(c, "g1")
	require.NoError(t, hub.BroadcastGroupMessage("g1", msg))

	event := receive(t, c)
	assert.Equal(t, models.EventGroupMessage, event.Event)
	require.NotNil(t, event.Data)
	assert.Equal(t, "m1", event.Data.ID)

	hub.Unsubscribe(c, "g1")
	hub.Unsubscribe(c, "g1")
	require.NoError(t, hub.BroadcastGroupMessage("g1", msg))
	assertNothingQueued(t, c)
	assert.Zero(t, hub.GroupSize("g1"))
}

func TestHubBroadcastOnlyReachesGroup(t *testing.T) {
	hub := NewHub(logger.Discard())
	inGroup, other := testClient(1), testClient(1)
	hub.Subscribe(inGroup, "g1")
	hub.Subscribe(other, "g2")

	require.NoError(t, hub.BroadcastGroupMessage("g1", models.Message{ID: "m1", GroupID: "g1"}))

	receive(t, inGroup)
	assertNothingQueued(t, other)
}

func TestHubDisconnectRemovesAllSubscriptions(t *testing.T) {
	hub := NewHub(logger.Discard())
	c := testClient(1)
	hub.Subscribe(c, "g1")
	hub.Subscribe(c, "g2")
	require.Equal(t, 1, hub.ClientCount())

	hub.Disconnect(c)
	hub.Disconnect(c)

	assert.Zero(t, hub.GroupSize("g1"))
	assert.Zero(t, hub.GroupSize("g2"))
	assert.Zero(t, hub.ClientCount())
	_, ok := <-c.send
	assert.False(t, ok)

	hub.Subscribe(c, "g1")
	assert.Zero(t, hub.GroupSize("g1"))
}

func TestHubDropsClientWithFullQueue(t *testing.T) {
	hub := NewHub(logger.Discard())
	slow, fast := testClient(1), testClient(4)
	hub.Subscribe(slow, "g1")
	hub.Subscribe(fast, "g1")

	require.NoError(t, hub.BroadcastGroupMessage("g1", models.Message{ID: "m1"}))
	require.NoError(t, hub.BroadcastGroupMessage("g1", models.Message{ID: "m2"}))

	assert.Equal(t, 1, hub.GroupSize("g1"))
	assert.Equal(t, "m1", receive(t, fast).Data.ID)
	assert.Equal(t, "m2", receive(t, fast).Data.ID)
}

func TestHubClose(t *testing.T) {
	hub := NewHub(logger.Discard())
	c := testClient(1)
	hub.Subscribe(c, "g1")

	hub.Close()
	hub.Close()

	_, ok := <-c.send
	assert.False(t, ok)
	assert.ErrorIs(t, hub.BroadcastGroupMessage("g1", models.Message{}), ErrHubClosed)
	assert.False(t, hub.Register(testClient(1)))
}

func TestHubConcurrentUse(t *testing.T) {
	hub := NewHub(logger.Discard())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := testClient(64)
			for j := 0; j < 50; j++ {
				hub.Subscribe(c, "g1")
				_ = hub.BroadcastGroupMessage("g1", models.Message{ID: "m"})
				hub.Unsubscribe(c, "g1")
			}
			hub.Disconnect(c)
		}()
	}
	wg.Wait()
	assert.Zero(t, hub.ClientCount())
	assert.Zero(t, hub.GroupSize("g1"))
}

func TestHandlerRelaysOverWebsocket(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(logger.Discard())
	defer hub.Close()
	handler := NewHandler(hub, nil, 16, logger.Discard())

	r := gin.New()
	r.GET("/ws", handler.Handle)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?userId=alice"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(models.ClientEvent{Event: models.EventJoinGroup, GroupID: "g1"}))
	require.Eventually(t, func() bool { return hub.GroupSize("g1") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.BroadcastGroupMessage("g1", models.Message{ID: "m1", GroupID: "g1", Text: "hello"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event models.GroupEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, models.EventGroupMessage, event.Event)
	require.NotNil(t, event.Data)
	assert.Equal(t, "hello", event.Data.Text)

	require.NoError(t, conn.WriteJSON(models.ClientEvent{Event: models.EventLeaveGroup, GroupID: "g1"}))
	require.Eventually(t, func() bool { return hub.GroupSize("g1") == 0 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
