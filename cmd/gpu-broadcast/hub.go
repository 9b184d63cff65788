package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ruaan-deysel/intelgpu"
	"github.com/ruaan-deysel/intelgpu/logger"
)

const (
	wsBufferSize  = 32
	wsPingSeconds = 30
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// wsEvent is the envelope delivered to every connected dashboard client.
type wsEvent struct {
	Event     string           `json:"event"`
	Timestamp time.Time        `json:"timestamp"`
	Data      intelgpu.GpuStats `json:"data"`
}

// wsHub fans a single stream of GpuStats out to any number of WebSocket
// dashboard clients.
type wsHub struct {
	clients    map[*wsClient]bool
	broadcast  chan intelgpu.GpuStats
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex
}

type wsClient struct {
	hub  *wsHub
	conn *websocket.Conn
	send chan wsEvent
}

func newWSHub() *wsHub {
	return &wsHub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan intelgpu.GpuStats, wsBufferSize),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

// run drives the hub's event loop until stop is closed.
func (h *wsHub) run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case stats := <-h.broadcast:
			event := wsEvent{Event: "gpu_stats_update", Timestamp: time.Now(), Data: stats}
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- event:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// publish pushes a new snapshot to the hub's broadcast loop. Non-blocking:
// a slow or stalled hub drops the sample rather than backing up the sampler.
func (h *wsHub) publish(stats intelgpu.GpuStats) {
	select {
	case h.broadcast <- stats:
	default:
		logger.Debug("gpu-broadcast: websocket hub is backed up, dropping sample")
	}
}

// handleWebSocket godoc
//
//	@Summary		Stream GPU telemetry
//	@Description	Upgrades to a WebSocket and pushes a gpu_stats_update event on every sampling tick.
//	@Tags			WebSocket
//	@Router			/ws [get]
func (h *wsHub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warning("gpu-broadcast: websocket upgrade: %v", err)
		return
	}

	c := &wsClient{hub: h, conn: conn, send: make(chan wsEvent, wsBufferSize)}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingSeconds * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains and discards client messages; it exists only to notice
// disconnects and unregister the client promptly.
func (c *wsClient) readPump() {
	defer func() { c.hub.unregister <- c }()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
