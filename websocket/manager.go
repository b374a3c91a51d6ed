package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"finsite/logging"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	ChannelPublications = "publications"
	ChannelMedia        = "media"
	ChannelCategories   = "categories"
	ChannelUsers        = "users"

	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionDeleted   = "deleted"
	ActionReordered = "reordered"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// Notifier is what handlers use to announce a committed change.
type Notifier interface {
	Publish(channel, action, id string)
}

// Change is the frame sent to subscribers.
type Change struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Action  string `json:"action"`
	ID      string `json:"id,omitempty"`
	Time    int64  `json:"time"`
}

type envelope struct {
	channel string
	payload []byte
}

type Manager struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	manager *Manager

	// mu guards channels and closed; send is only closed with mu held.
	mu       sync.RWMutex
	channels map[string]bool
	closed   bool
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run dispatches frames until ctx is cancelled, then closes every client.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(m.done)
			m.mu.Lock()
			for client := range m.clients {
				delete(m.clients, client)
				client.close()
			}
			m.mu.Unlock()
			return

		case client := <-m.register:
			m.mu.Lock()
			m.clients[client] = true
			total := len(m.clients)
			m.mu.Unlock()
			logging.Log.WithField("clients", total).Debug("websocket client registered")

		case client := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				client.close()
			}
			total := len(m.clients)
			m.mu.Unlock()
			logging.Log.WithField("clients", total).Debug("websocket client unregistered")

		case msg := <-m.broadcast:
			m.mu.Lock()
			for client := range m.clients {
				if !client.wants(msg.channel) {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					// slow consumer
					client.close()
					delete(m.clients, client)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Publish queues a change frame. It never blocks the caller; frames are
// dropped when the dispatch queue is full.
func (m *Manager) Publish(channel, action, id string) {
	msg, err := json.Marshal(Change{
		Type:    "change",
		Channel: channel,
		Action:  action,
		ID:      id,
		Time:    time.Now().UnixMilli(),
	})
	if err != nil {
		logging.Log.WithError(err).Error("marshal change frame")
		return
	}

	select {
	case m.broadcast <- envelope{channel: channel, payload: msg}:
	default:
		logging.Log.WithFields(logrus.Fields{"channel": channel, "action": action}).
			Warn("change feed queue full, frame dropped")
	}
}

func (m *Manager) ConnectedClients() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func WebSocketHandler(manager *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Log.WithError(err).Warn("websocket upgrade failed")
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan []byte, sendBuffer),
			manager:  manager,
			channels: make(map[string]bool),
		}
		select {
		case manager.register <- client:
		case <-manager.done:
			conn.Close()
			return
		}

		client.reply("connected", nil)

		go client.writePump()
		go client.readPump()
	}
}

// wants reports whether the client should receive frames for channel.
// A client with no subscriptions receives everything.
func (c *Client) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.channels) == 0 || c.channels[channel]
}

func (c *Client) subscribe(channel string) {
	c.mu.Lock()
	c.channels[channel] = true
	c.mu.Unlock()
}

func (c *Client) unsubscribe(channel string) {
	c.mu.Lock()
	delete(c.channels, channel)
	c.mu.Unlock()
}

type inbound struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

func validChannel(channel string) bool {
	switch channel {
	case ChannelPublications, ChannelMedia, ChannelCategories, ChannelUsers:
		return true
	}
	return false
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-c.manager.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Log.WithError(err).Warn("websocket read error")
			}
			return
		}

		var in inbound
		if err := json.Unmarshal(message, &in); err != nil {
			c.reply("error", map[string]interface{}{"message": "invalid frame"})
			continue
		}

		switch in.Type {
		case "subscribe":
			if !validChannel(in.Channel) {
				c.reply("error", map[string]interface{}{"message": "unknown channel"})
				continue
			}
			c.subscribe(in.Channel)
			c.reply("subscribed", map[string]interface{}{"channel": in.Channel})
		case "unsubscribe":
			c.unsubscribe(in.Channel)
			c.reply("unsubscribed", map[string]interface{}{"channel": in.Channel})
		case "ping":
			c.reply("pong", nil)
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

// reply sends a direct frame to this client only.
func (c *Client) reply(kind string, payload map[string]interface{}) {
	data := map[string]interface{}{
		"type": kind,
		"time": time.Now().UnixMilli(),
	}
	for k, v := range payload {
		data[k] = v
	}

	msg, err := json.Marshal(data)
	if err != nil {
		logging.Log.WithError(err).Error("marshal websocket reply")
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// close closes send once. Only the manager calls it.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
