package api

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mescon/tickr/internal/domain"
	"github.com/mescon/tickr/internal/eventbus"
	"github.com/mescon/tickr/internal/logger"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second
)

// newWebSocketUpgrader returns an upgrader with origin validation matching
// the CORS setting.
func newWebSocketUpgrader(corsOrigins string) websocket.Upgrader {
	allowed := parseOrigins(corsOrigins)

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if corsOrigins == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // No origin header = same-origin request
			}
			if corsOrigins == "" {
				u, err := url.Parse(origin)
				return err == nil && u.Host == r.Host
			}
			return allowed[origin]
		},
	}
}

// WebSocketHub streams timer events and log lines to connected clients.
type WebSocketHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan interface{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.Mutex
	upgrader   websocket.Upgrader
	logCh      chan logger.LogEntry
}

func NewWebSocketHub(eventBus eventbus.Publisher, corsOrigins string) *WebSocketHub {
	h := &WebSocketHub{
		broadcast:  make(chan interface{}, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		clients:    make(map[*websocket.Conn]bool),
		upgrader:   newWebSocketUpgrader(corsOrigins),
	}

	for _, t := range domain.AllEventTypes {
		eventBus.Subscribe(t, func(e domain.Event) {
			h.send(gin.H{"type": "event", "data": e})
		})
	}

	h.logCh = logger.Subscribe()
	go func() {
		for entry := range h.logCh {
			h.send(gin.H{"type": "log", "data": entry})
		}
	}()

	go h.run()
	return h
}

func (h *WebSocketHub) send(message interface{}) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

func (h *WebSocketHub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				_ = client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			logger.Debugf("WebSocket client connected (Total: %d)", len(h.clients))
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				if err := client.Close(); err != nil {
					logger.Debugf("WebSocket close error: %v", err)
				}
				logger.Debugf("WebSocket client disconnected")
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				_ = client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteJSON(message); err != nil {
					logger.Debugf("WebSocket write error: %v", err)
					_ = client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *WebSocketHub) leave(ws *websocket.Conn) {
	select {
	case h.unregister <- ws:
	case <-h.done:
	}
}

func (h *WebSocketHub) HandleConnection(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}
	select {
	case h.register <- ws:
	case <-h.done:
		_ = ws.Close()
		return
	}

	h.mu.Lock()
	if err := ws.WriteJSON(gin.H{"type": "ping", "timestamp": time.Now()}); err != nil {
		logger.Debugf("Failed to send initial ping: %v", err)
	}
	h.mu.Unlock()

	if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Debugf("Failed to set initial read deadline: %v", err)
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ticker.C:
			}
			h.mu.Lock()
			if !h.clients[ws] {
				h.mu.Unlock()
				return
			}
			// writes share the hub mutex with broadcast
			err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			h.mu.Unlock()
			if err != nil {
				logger.Debugf("WebSocket ping error: %v", err)
				h.leave(ws)
				return
			}
		}
	}()

	defer h.leave(ws)

	// Clients only send control frames; reading keeps the pong handler running.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

// ClientCount returns the number of connected WebSocket clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and stops streaming. Safe to call more than once.
func (h *WebSocketHub) Close() {
	h.closeOnce.Do(func() {
		logger.Unsubscribe(h.logCh)
		close(h.done)
	})
}
