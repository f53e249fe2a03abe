// Package websocket pushes live admin events (job outcomes, new messages) to connected dashboards.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"marketplace/auth"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMessage = 512
)

// Event is the envelope written to every client.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	Time    int64       `json:"time"`
}

type Manager struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	log        *logrus.Logger
	upgrader   websocket.Upgrader
}

type Client struct {
	conn    *websocket.Conn
	userID  string
	email   string
	send    chan []byte
	manager *Manager
}

// NewManager builds a hub. allowOrigin decides which browser origins may connect; nil allows all.
func NewManager(log *logrus.Logger, allowOrigin func(origin string) bool) *Manager {
	m := &Manager{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowOrigin == nil || allowOrigin(origin)
		},
	}
	return m
}

// Run serves registrations and broadcasts until ctx is done, then closes every client.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(m.done)
			m.mu.Lock()
			for client := range m.clients {
				delete(m.clients, client)
				close(client.send)
			}
			m.mu.Unlock()
			return

		case client := <-m.register:
			m.mu.Lock()
			m.clients[client] = true
			n := len(m.clients)
			m.mu.Unlock()
			m.log.WithFields(logrus.Fields{"user": client.email, "clients": n}).Info("WebSocket client registered")

		case client := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				close(client.send)
			}
			n := len(m.clients)
			m.mu.Unlock()
			m.log.WithFields(logrus.Fields{"user": client.email, "clients": n}).Info("WebSocket client unregistered")

		case message := <-m.broadcast:
			m.mu.Lock()
			for client := range m.clients {
				select {
				case client.send <- message:
				default:
					// slow consumer
					close(client.send)
					delete(m.clients, client)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Publish queues an event for every client. It never blocks; events are dropped when the queue is full.
func (m *Manager) Publish(eventType string, payload interface{}) {
	msg, err := json.Marshal(Event{Type: eventType, Payload: payload, Time: time.Now().Unix()})
	if err != nil {
		m.log.WithError(err).WithField("type", eventType).Error("Failed to marshal websocket event")
		return
	}
	select {
	case m.broadcast <- msg:
	default:
		m.log.WithField("type", eventType).Warn("WebSocket broadcast queue full, event dropped")
	}
}

func (m *Manager) ConnectedClients() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Serve upgrades an already authenticated request.
func (m *Manager) Serve(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := &Client{
		conn:    conn,
		userID:  id.ID,
		email:   id.Email,
		send:    make(chan []byte, 256),
		manager: m,
	}
	welcome, _ := json.Marshal(Event{
		Type:    "connected",
		Payload: map[string]string{"userId": id.ID, "message": "WebSocket connected successfully"},
		Time:    time.Now().Unix(),
	})
	client.send <- welcome
	select {
	case m.register <- client:
	case <-m.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-c.manager.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.manager.log.WithError(err).WithField("user", c.email).Warn("WebSocket read error")
			}
			return
		}

		var in struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &in); err != nil {
			continue
		}
		if in.Type == "ping" {
			c.sendPong()
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendPong() {
	// the hub may already have closed send for a slow client
	defer func() { _ = recover() }()
	msg, _ := json.Marshal(Event{Type: "pong", Time: time.Now().Unix()})
	select {
	case c.send <- msg:
	default:
	}
}
