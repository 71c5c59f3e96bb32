package events

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
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/backlot/internal/common"
	"github.com/ternarybob/backlot/internal/models"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(common.WebSocketConfig{ReadBufferSize: 1024, WriteBufferSize: 1024}, arbor.NewLogger())
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(server.Close)
	return hub, server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHelloOnConnect(t *testing.T) {
	_, server := newTestHub(t)
	conn := dial(t, server)

	msg := readMessage(t, conn)
	assert.Equal(t, "hello", msg.Type)

	payload, ok := msg.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, payload["server_instance_id"])
}

func TestPublishJobUpdateReachesClients(t *testing.T) {
	hub, server := newTestHub(t)
	conn := dial(t, server)
	readMessage(t, conn) // hello

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	hub.PublishJobUpdate(&models.GenerationJob{
		ID:       "job_1",
		Kind:     models.KindPortrait,
		Target:   models.TargetEntity{ShowID: "show_a", CharacterID: "char_1"},
		Status:   models.StatusProcessing,
		Attempts: 1,
	})

	msg := readMessage(t, conn)
	assert.Equal(t, "job_update", msg.Type)

	payload, ok := msg.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "show_a", payload["show_id"])

	job, ok := payload["job"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "job_1", job["id"])
	assert.Equal(t, "processing", job["status"])
}

func TestClientCountTracksDisconnects(t *testing.T) {
	hub, server := newTestHub(t)

	first := dial(t, server)
	second := dial(t, server)
	readMessage(t, first)
	readMessage(t, second)

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 2
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublishWithoutClientsIsSafe(t *testing.T) {
	hub := NewHub(common.WebSocketConfig{ReadBufferSize: 1024, WriteBufferSize: 1024}, arbor.NewLogger())
	hub.PublishJobUpdate(&models.GenerationJob{ID: "job_1", Target: models.TargetEntity{ShowID: "show_a"}})
	hub.PublishJobUpdate(nil)
	assert.Equal(t, 0, hub.ClientCount())
}
