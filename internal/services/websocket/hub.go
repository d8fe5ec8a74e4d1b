package websocket

import (
	"context"
	"sync"
	"time"
	"webcamdetector/internal/logger"
	"webcamdetector/internal/metrics"

	"github.com/gorilla/websocket"
)

const (
	// Frames waiting for the hub; further broadcasts are dropped.
	broadcastBuffer = 4
	writeWait       = 5 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMessageSize  = 512
)

// HubService fans annotated frames out to connected viewers.
type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	pongWait   time.Duration
	pingPeriod time.Duration
	mutex      sync.RWMutex
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

func NewHubService(metrics *metrics.Metrics, logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		pongWait:   pongWait,
		pingPeriod: pingPeriod,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run serves register, unregister and broadcast requests until ctx is done,
// then closes every remaining client. Every write to a viewer happens here.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.metrics.ActiveViewers.Store(int64(count))
			h.logger.Info("Viewer connected. Total: %d", count)

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.send(message)

		case <-ticker.C:
			h.ping()
		}
	}
}

func (h *HubService) send(message []byte) {
	for _, client := range h.snapshot() {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Warning("Error sending frame to viewer: %v", err)
			h.remove(client)
		}
	}
	h.metrics.FramesBroadcast.Add(1)
}

func (h *HubService) ping() {
	for _, client := range h.snapshot() {
		if err := client.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			h.logger.Warning("Error pinging viewer: %v", err)
			h.remove(client)
		}
	}
}

func (h *HubService) snapshot() []*websocket.Conn {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// KeepAlive arms the read deadline of a viewer connection. Pongs answering
// the hub's pings push the deadline forward.
func (h *HubService) KeepAlive(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})
}

func (h *HubService) remove(client *websocket.Conn) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.Close()
	count := len(h.clients)
	h.mutex.Unlock()

	h.metrics.ActiveViewers.Store(int64(count))
	h.logger.Info("Viewer disconnected. Total: %d", count)
}

func (h *HubService) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
	h.metrics.ActiveViewers.Store(0)
}

// Register adds client; after Run has returned the client is closed instead.
func (h *HubService) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues message for every viewer without blocking.
// It reports false when the hub is busy and the frame was dropped.
func (h *HubService) Broadcast(message []byte) bool {
	select {
	case h.broadcast <- message:
		return true
	default:
		h.metrics.FramesDropped.Add(1)
		return false
	}
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
