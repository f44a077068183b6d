package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(hub.handleStream))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Subscribers() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, want, hub.Subscribers())
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub)
	waitForSubscribers(t, hub, 1)

	hub.Broadcast([]ZoneResponse{{Index: 0, Name: "Living Room", Mode: "heat"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var envelope struct {
		Type string         `json:"type"`
		Data []ZoneResponse `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&envelope))

	assert.Equal(t, "state", envelope.Type)
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "Living Room", envelope.Data[0].Name)
	assert.Equal(t, "heat", envelope.Data[0].Mode)
}

func TestHubDropsClosedSubscriber(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub)
	waitForSubscribers(t, hub, 1)

	conn.Close()

	// Either the reader loop notices the close or the next broadcast does.
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() > 0 && time.Now().Before(deadline) {
		hub.Broadcast([]ZoneResponse{})
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 0, hub.Subscribers())
}
