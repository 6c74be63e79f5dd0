package websocket

import (
	"github.com/gorilla/websocket"
)

// Client represents a WebSocket client connection watching one game
type Client struct {
	UserID string
	GameID string
	Conn   *websocket.Conn
	Send   chan []byte
}

func NewClient(userID, gameID string, conn *websocket.Conn) *Client {
	return &Client{
		UserID: userID,
		GameID: gameID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	}
}

// ReadPump drains incoming messages until the connection closes. The
// browser never sends game commands over the socket (those go through the
// REST API), so the only job here is noticing the close.
func (c *Client) ReadPump(onClose func(*Client)) {
	defer func() {
		onClose(c)
		c.Conn.Close()
	}()

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			break
		}
	}
}

// WritePump handles outgoing messages to the client
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Deliver queues a message for the client, dropping it if the client's
// send buffer is full rather than blocking the caller.
func (c *Client) Deliver(message []byte) {
	select {
	case c.Send <- message:
	default:
	}
}
