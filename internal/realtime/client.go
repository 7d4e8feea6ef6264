package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jwalitptl/queue-api/pkg/logger"
)

const (
	actionJoin  = "join"
	actionLeave = "leave"

	maxMessageSize = 1024
)

// Command is what a client sends to change its topics.
type Command struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// Reply acknowledges a command.
type Reply struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

type ClientConfig struct {
	Buffer       int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	return c
}

// Client is one websocket connection. conn is nil for clients created by
// NewClient, which only buffer messages.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	cfg  ClientConfig
}

func NewClient(buffer int) *Client {
	cfg := ClientConfig{Buffer: buffer}.withDefaults()
	return &Client{id: uuid.NewString(), send: make(chan []byte, cfg.Buffer), cfg: cfg}
}

func (c *Client) ID() string { return c.id }

// Messages exposes the outgoing buffer.
func (c *Client) Messages() <-chan []byte { return c.send }

// NewUpgrader accepts any origin when allowedOrigin is empty or "*".
func NewUpgrader(allowedOrigin string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}
}

// Serve upgrades the request and pumps messages until the connection closes.
func Serve(hub *Hub, upgrader *websocket.Upgrader, cfg ClientConfig, log *logger.Logger, w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	cfg = cfg.withDefaults()
	c := &Client{id: uuid.NewString(), conn: conn, send: make(chan []byte, cfg.Buffer), cfg: cfg}
	hub.Register(c)
	log.Debug("websocket client connected", "client_id", c.id)

	go c.writePump(log)
	go c.readPump(hub, log)
	return nil
}

func (c *Client) readPump(hub *Hub, log *logger.Logger) {
	defer func() {
		hub.Unregister(c)
		c.conn.Close()
		log.Debug("websocket client disconnected", "client_id", c.id)
	}()

	pongWait := c.cfg.PingInterval * 2
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", "client_id", c.id, "error", err.Error())
			}
			return
		}
		c.reply(handleCommand(hub, c, data))
	}
}

func handleCommand(hub *Hub, c *Client, data []byte) Reply {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Reply{Error: "invalid message"}
	}
	reply := Reply{Action: cmd.Action, Topic: cmd.Topic}
	switch cmd.Action {
	case actionJoin:
		if !hub.Join(c, cmd.Topic) {
			reply.Error = "invalid topic"
			return reply
		}
	case actionLeave:
		hub.Leave(c, cmd.Topic)
	default:
		reply.Error = "unknown action"
		return reply
	}
	reply.OK = true
	return reply
}

func (c *Client) reply(r Reply) {
	payload, err := json.Marshal(r)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (c *Client) writePump(log *logger.Logger) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug("websocket write failed", "client_id", c.id, "error", err.Error())
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
