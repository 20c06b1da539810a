package signaling

import (
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum websocket message size. Frames travel over the data channel,
	// not the websocket, so SDP offers are the largest messages here.
	maxMessageSize = 64 * 1024

	// Outbound buffer per client. Recognition results are dropped, not
	// queued, once a client falls this far behind.
	sendBufferSize = 64
)

// Client is one websocket connection. The hub owns its room membership;
// the two pumps own the connection.
type Client struct {
	ID     string
	Hub    *Hub
	Conn   *websocket.Conn
	RoomID string
	Send   chan *Message

	// peer is the server-side WebRTC connection for this client, created
	// when its offer arrives. Owned by the hub goroutine.
	peer *PeerNegotiator
}

// NewClient wraps an upgraded websocket connection.
func NewClient(id string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   id,
		Hub:  hub,
		Conn: conn,
		Send: make(chan *Message, sendBufferSize),
	}
}

// trySend queues a message without blocking; a slow client loses the
// message instead of stalling the hub.
func (c *Client) trySend(msg *Message) {
	select {
	case c.Send <- msg:
	default:
		log.Printf("client %s send buffer full, dropping %s", c.ID, msg.Type)
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
// Runs in a per-connection goroutine; all reads happen here.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("client %s read error: %v", c.ID, err)
			}
			break
		}
		msg.client = c
		msg.Sender = c.ID
		c.Hub.Broadcast <- &msg
	}
}

// WritePump pumps messages from the hub to the websocket connection and
// keeps the connection alive with pings. Runs in a per-connection
// goroutine; all writes happen here.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				log.Printf("client %s write error: %v", c.ID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
