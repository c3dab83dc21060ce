package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHub_PublishTargetsUser(t *testing.T) {
	h := NewHub(zap.NewNop())
	a1 := h.Register("user_a")
	a2 := h.Register("user_a")
	b := h.Register("user_b")

	n := h.Publish("user_a", Event{Type: EventUserSynced})
	assert.Equal(t, 2, n)

	for _, c := range []*Client{a1, a2} {
		select {
		case ev := <-c.Events():
			assert.Equal(t, EventUserSynced, ev.Type)
			assert.False(t, ev.At.IsZero())
		default:
			t.Fatalf("client %s got nothing", c.ID)
		}
	}
	select {
	case ev := <-b.Events():
		t.Fatalf("user_b received %v", ev)
	default:
	}
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	h := NewHub(zap.NewNop())
	c := h.Register("user_a")
	assert.Equal(t, 1, h.Len())

	h.Unregister(c.ID)
	h.Unregister(c.ID)
	assert.Equal(t, 0, h.Len())

	_, open := <-c.Events()
	assert.False(t, open)
	assert.Equal(t, 0, h.Publish("user_a", Event{Type: EventUserSynced}))
}

func TestHub_FullBufferDrops(t *testing.T) {
	h := NewHub(zap.NewNop())
	h.Register("user_a")

	for i := 0; i < clientBuffer; i++ {
		require.Equal(t, 1, h.Publish("user_a", Event{Type: EventSubscriptionSynced}))
	}
	assert.Equal(t, 0, h.Publish("user_a", Event{Type: EventSubscriptionSynced}))
}

func TestHub_ServeWebSocket(t *testing.T) {
	h := NewHub(zap.NewNop())
	upgrader := websocket.Upgrader{}
	registered := make(chan *Client, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := h.Register("user_a")
		registered <- c
		h.Serve(conn, c)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	<-registered
	h.Publish("user_a", Event{Type: EventSubscriptionSynced, Data: map[string]bool{"isPro": true}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, EventSubscriptionSynced, got.Type)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
