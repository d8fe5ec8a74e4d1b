package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"webcamdetector/internal/logger"
	"webcamdetector/internal/metrics"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*HubService, *httptest.Server) {
	t.Helper()
	return startHubWithKeepAlive(t, pongWait, pingPeriod)
}

// startHubWithKeepAlive serves viewers the way the websocket handler does:
// arm the read deadline, register, read until the connection fails.
func startHubWithKeepAlive(t *testing.T, wait, period time.Duration) (*HubService, *httptest.Server) {
	t.Helper()

	hub := NewHubService(metrics.New(), logger.NewNop())
	hub.pongWait = wait
	hub.pingPeriod = period
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.KeepAlive(conn)
		hub.Register(conn)
		defer hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))

	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *HubService, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, hub.GetClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_BroadcastReachesViewer(t *testing.T) {
	hub, server := startHub(t)
	conn := dial(t, server)
	waitForClients(t, hub, 1)

	if !hub.Broadcast([]byte(`{"camera":"video0"}`)) {
		t.Fatal("Broadcast should be accepted by an idle hub")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if string(msg) != `{"camera":"video0"}` {
		t.Errorf("Unexpected message %s", msg)
	}
	if got := hub.metrics.ActiveViewers.Load(); got != 1 {
		t.Errorf("Expected 1 active viewer, got %d", got)
	}
}

func TestHub_BroadcastDropsWhenFull(t *testing.T) {
	hub := NewHubService(metrics.New(), logger.NewNop())

	for i := 0; i < broadcastBuffer; i++ {
		if !hub.Broadcast([]byte("frame")) {
			t.Fatalf("Broadcast %d should fit in the buffer", i)
		}
	}
	if hub.Broadcast([]byte("frame")) {
		t.Error("Expected broadcast to drop when the hub is not draining")
	}
	if got := hub.metrics.FramesDropped.Load(); got != 1 {
		t.Errorf("Expected 1 dropped frame, got %d", got)
	}
}

func TestHub_UnregisterRemovesViewer(t *testing.T) {
	hub, server := startHub(t)
	dial(t, server)
	waitForClients(t, hub, 1)

	hub.mutex.RLock()
	var client *websocket.Conn
	for c := range hub.clients {
		client = c
	}
	hub.mutex.RUnlock()

	hub.Unregister(client)
	waitForClients(t, hub, 0)
}

func TestHub_SilentViewerStaysConnected(t *testing.T) {
	hub, server := startHubWithKeepAlive(t, 300*time.Millisecond, 100*time.Millisecond)
	conn := dial(t, server)
	waitForClients(t, hub, 1)

	// The client never sends; its reader only answers pings with pongs.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	time.Sleep(time.Second)
	if got := hub.GetClientCount(); got != 1 {
		t.Fatalf("Expected silent viewer to stay registered past the read deadline, got %d clients", got)
	}
}

func TestHub_UnresponsiveViewerTimesOut(t *testing.T) {
	hub, server := startHubWithKeepAlive(t, 200*time.Millisecond, time.Hour)
	dial(t, server)
	waitForClients(t, hub, 1)

	// Without pings no pong ever extends the deadline.
	waitForClients(t, hub, 0)
}
