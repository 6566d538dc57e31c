package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket timeouts following the gorilla chat example
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Clients only send control messages
	maxMessageSize = 4 * 1024

	// Events buffered per client before new ones are dropped
	clientBuffer = 256
)

// Client is one subscriber of the event stream
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan *Event
	id        string
	closeOnce sync.Once
}

// clientMessage is what a subscriber may send: {"type":"ping"}
type clientMessage struct {
	Type string `json:"type"`
}

// readPump drains the connection so pongs and close frames are processed
func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.hub.logger.Warnw("WebSocket read error", "client_id", c.id, "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.logger.Debugw("Ignoring malformed client message", "client_id", c.id, "error", err)
			continue
		}
		switch msg.Type {
		case "ping":
			c.hub.sendTo(c, &Event{Type: EventPong, Timestamp: time.Now().UTC()})
		default:
			c.hub.logger.Debugw("Unknown message type", "type", msg.Type, "client_id", c.id)
		}
	}
}

// writePump serializes events and pings onto the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.hub.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				c.hub.logger.Debugw("Event write error", "client_id", c.id, "error", err)
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

// enqueue hands ev to the write pump without blocking; a full buffer drops it
func (c *Client) enqueue(ev *Event) bool {
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// close releases the send channel exactly once
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}
