package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afroash/flood-monitor/internal/models"
)

func startHub(t *testing.T, hub *Hub) string {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) models.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg models.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_RequiresToken(t *testing.T) {
	url := startHub(t, NewHub(testToken, zerolog.Nop()))

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{"Authorization": {"Bearer " + testToken}}
	dial(t, url, header)

	dial(t, url+"?token="+testToken, nil)
}

func TestHub_SnapshotOnConnect(t *testing.T) {
	hub := NewHub("", zerolog.Nop())
	hub.SetSnapshotFunc(func() *models.Message {
		msg, _ := models.NewMessage(models.MessageTypeSnapshot, models.TrendMessage{Seq: 7})
		return msg
	})
	url := startHub(t, hub)

	conn := dial(t, url, nil)
	msg := readMessage(t, conn)
	assert.Equal(t, models.MessageTypeSnapshot, msg.Type)

	var payload models.TrendMessage
	require.NoError(t, msg.UnmarshalPayload(&payload))
	assert.Equal(t, uint64(7), payload.Seq)
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub("", zerolog.Nop())
	url := startHub(t, hub)

	a := dial(t, url, nil)
	b := dial(t, url, nil)
	waitForClients(t, hub, 2)

	msg, err := models.NewMessage(models.MessageTypeError, models.ErrorMessage{Code: "fetch_failed", Message: "timeout"})
	require.NoError(t, err)
	assert.Equal(t, 2, hub.Broadcast(msg))

	for _, conn := range []*websocket.Conn{a, b} {
		got := readMessage(t, conn)
		assert.Equal(t, models.MessageTypeError, got.Type)
	}

	a.Close()
	waitForClients(t, hub, 1)
	assert.Len(t, hub.Clients(), 1)
}

func TestHub_CheckOrigin(t *testing.T) {
	hub := NewHub("", zerolog.Nop(), "https://dashboard.example.com")

	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "monitor:8081", true},
		{"https://dashboard.example.com", "monitor:8081", true},
		{"http://monitor:8081", "monitor:8081", true},
		{"https://evil.example.com", "monitor:8081", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Host = tt.host
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, hub.checkOrigin(r), "origin %q", tt.origin)
	}
}

func TestHub_DropsSlowConsumer(t *testing.T) {
	hub := NewHub("", zerolog.Nop())

	// registered directly so nothing drains the queue
	c := &dashboardClient{send: make(chan []byte, 1), remoteAddr: "slow"}
	require.True(t, hub.register(c))

	msg, _ := models.NewMessage(models.MessageTypeHeartbeat, models.HeartbeatMessage{})
	assert.Equal(t, 1, hub.Broadcast(msg))
	assert.Equal(t, 0, hub.Broadcast(msg))
	assert.Equal(t, 0, hub.ClientCount())

	_, ok := <-c.send
	assert.True(t, ok, "queued message is still delivered")
	_, ok = <-c.send
	assert.False(t, ok, "queue closed after drop")
}

func TestHub_CloseRefusesNewClients(t *testing.T) {
	hub := NewHub("", zerolog.Nop())
	hub.Close()
	assert.False(t, hub.register(&dashboardClient{send: make(chan []byte, 1)}))
}

func TestHub_EmergencyBroadcastReachesDashboards(t *testing.T) {
	hub := NewHub(testToken, zerolog.Nop())
	api := NewAPIHandler(NewMemoryStore(10), NewTrendState(0), zerolog.Nop())
	api.SetBroadcaster(hub)
	srv := httptest.NewServer(NewRouter(RouterConfig{
		API:       api,
		Hub:       hub,
		AuthToken: testToken,
		Metrics:   http.NotFoundHandler(),
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?token="+testToken, nil)
	waitForClients(t, hub, 1)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/broadcast", strings.NewReader(`{"message":"River closed at the bridge"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	msg := readMessage(t, conn)
	assert.Equal(t, models.MessageTypeBroadcast, msg.Type)
	var payload models.BroadcastMessage
	require.NoError(t, msg.UnmarshalPayload(&payload))
	assert.Equal(t, "River closed at the bridge", payload.Message)
}
