// SPDX-License-Identifier: MIT
package transport

import (
	"bbbtune/internal/errs"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketChannel is the client side of the event channel.
type WebSocketChannel struct {
	conn   *websocket.Conn
	events chan Event
	send   chan []byte

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
	done      chan struct{}
}

// DialWebSocket connects to url (ws://host:port/ws).
func DialWebSocket(ctx context.Context, url string) (*WebSocketChannel, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w: %w", url, errs.ErrChannel, err)
	}
	c := &WebSocketChannel{
		conn:   conn,
		events: make(chan Event, 64),
		send:   make(chan []byte, 32),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	go c.writeLoop()
	return c, nil
}

func (c *WebSocketChannel) fail(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
	c.shutdown()
}

func (c *WebSocketChannel) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *WebSocketChannel) readLoop() {
	defer close(c.events)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPingHandler(func(data string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(fmt.Errorf("read: %w: %w", errs.ErrChannel, err))
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var ev Event
		if err := json.Unmarshal(message, &ev); err != nil || ev.Name == "" {
			continue
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *WebSocketChannel) writeLoop() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.fail(fmt.Errorf("write: %w: %w", errs.ErrChannel, err))
				return
			}
		case <-c.done:
			return
		}
	}
}

// Send queues ev for the writer goroutine without blocking.
func (c *WebSocketChannel) Send(ev Event) error {
	message, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return fmt.Errorf("send %s: %w", ev.Name, errs.ErrChannel)
	default:
	}
	select {
	case c.send <- message:
		return nil
	default:
		return fmt.Errorf("send %s: queue full: %w", ev.Name, errs.ErrChannel)
	}
}

// Events is closed when the connection ends.
func (c *WebSocketChannel) Events() <-chan Event { return c.events }

// Err reports why the channel ended, or nil while it is open. After Close
// it satisfies IsLocalClose.
func (c *WebSocketChannel) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close ends the connection. It is safe to call more than once.
func (c *WebSocketChannel) Close() error {
	c.errMu.Lock()
	if c.err == nil {
		c.err = errClosed
	}
	c.errMu.Unlock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.shutdown()
	return nil
}

var errClosed = errors.New("closed locally")

// IsLocalClose reports whether err comes from Close.
func IsLocalClose(err error) bool { return errors.Is(err, errClosed) }

var _ EventChannel = (*WebSocketChannel)(nil)
