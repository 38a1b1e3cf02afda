package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection represents a single websocket client, either the admin or the
// mobile side of a pairing session.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	mu     sync.Mutex
	closed bool
}

// WriteMessage writes a frame with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// enqueue hands a frame to the write loop without blocking. The closed check
// and the channel send happen under the same lock as shutdown, so a frame is
// never sent into a closed channel.
func (c *Connection) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnectionGone
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return errBufferFull
	}
}

// shutdown closes the send channel exactly once; enqueue refuses frames from
// then on.
func (c *Connection) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

func (c *Connection) Close() error {
	return c.Conn.Close()
}
