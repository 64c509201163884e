package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4 * 1024 // viewers only send control frames

	// sendBuffer is how many messages a viewer may lag behind before it is
	// dropped. At 60 Hz this is a little over four seconds.
	sendBuffer = 256
)

// Client is one viewer connection. The hub goroutine owns send: it is the
// only one that closes it.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// NewClient registers a viewer with hub. It returns nil once the hub has
// stopped.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	c := &Client{hub: hub, conn: conn, send: make(chan Message, sendBuffer)}
	select {
	case hub.register <- c:
		return c
	case <-hub.done:
		return nil
	}
}

// Serve is the body of a viewer websocket handler: it registers conn and
// streams broadcasts to it until either side goes away.
func Serve(hub *Hub, conn *websocket.Conn) {
	c := NewClient(hub, conn)
	if c == nil {
		conn.Close()
		return
	}
	c.Run()
}

// Run streams until the connection closes. The connection is recycled when
// the handler returns, so Run waits for the writer too.
func (c *Client) Run() {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	c.readLoop()
	c.leave()
	<-writerDone
}

// leave unregisters the client, which makes the hub close send.
func (c *Client) leave() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
	c.conn.Close()
}

// readLoop discards anything a viewer sends. Reading is still required to
// notice disconnects and to process pongs.
func (c *Client) readLoop() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop is the only writer on the connection.
func (c *Client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(frameType(msg.Type), msg.Data); err != nil {
				return
			}

		case <-ping.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(kind int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, data)
}

func frameType(t MessageType) int {
	if t == BinaryMessage {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
