package stream

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wire is the minimal transport under one channel. The production
// implementation wraps a gorilla WebSocket connection; tests substitute an
// in-memory pipe.
type wire interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// gorillaWire adapts *websocket.Conn to the wire interface.
type gorillaWire struct {
	conn *websocket.Conn
}

func (g *gorillaWire) ReadMessage() ([]byte, error) {
	_, data, err := g.conn.ReadMessage()
	return data, err
}

func (g *gorillaWire) WriteMessage(data []byte) error {
	if err := g.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	return g.conn.WriteMessage(websocket.TextMessage, data)
}

func (g *gorillaWire) Close() error {
	return g.conn.Close()
}

// channel serializes all writes to one wire through a single writer
// goroutine. WebSocket writes must not interleave; the pacing timer, manual
// advance calls and ping replies all funnel through here.
type channel struct {
	w         wire
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newChannel(w wire) *channel {
	ctx, cancel := context.WithCancel(context.Background())
	c := &channel{
		w:       w,
		writeCh: make(chan []byte, 16),
		ctx:     ctx,
		cancel:  cancel,
	}
	go c.writeLoop()
	return c
}

func (c *channel) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.w.WriteMessage(data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Write queues one outbound message. Advance signals are fire-and-forget
// pacing hints, so a full queue drops the message instead of blocking.
func (c *channel) Write(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrChannelClosed
	default:
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrChannelClosed
	default:
		return ErrWriteTimeout
	}
}

// Read blocks until the next inbound message or a transport error.
func (c *channel) Read() ([]byte, error) {
	return c.w.ReadMessage()
}

// Close tears down the writer goroutine and the underlying wire. Idempotent.
func (c *channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.w.Close()
	})
	return err
}
