package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"falldetector/internal/dto"
	"falldetector/internal/logger"

	"github.com/gorilla/websocket"
)

func newHubServer(t *testing.T, hub *HubService) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn)
		defer hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func waitForClients(t *testing.T, hub *HubService, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, have %d", n, hub.GetClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_BroadcastEvent(t *testing.T) {
	hub := NewHubService(logger.NewDiscard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := newHubServer(t, hub)
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.BroadcastEvent(dto.EventInfo{
		ID:        "ev-1",
		Source:    "0",
		Timestamp: time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC),
		Labels:    []string{"fall"},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var msg struct {
		Type  string `json:"type"`
		Event struct {
			ID        string   `json:"id"`
			Labels    []string `json:"labels"`
			TimeOfDay string   `json:"timeOfDay"`
		} `json:"event"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Invalid message %s: %v", data, err)
	}
	if msg.Type != "fall_event" || msg.Event.ID != "ev-1" || msg.Event.TimeOfDay != "08:30" {
		t.Errorf("Unexpected message %s", data)
	}
}

func TestHub_UnregisterOnClose(t *testing.T) {
	hub := NewHubService(logger.NewDiscard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := newHubServer(t, hub)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHub_StopsWithContext(t *testing.T) {
	hub := NewHubService(logger.NewDiscard())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// Broadcasting after stop must not block.
	for i := 0; i < 32; i++ {
		hub.BroadcastEvent(dto.EventInfo{ID: "late"})
	}
}
