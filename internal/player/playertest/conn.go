// Package playertest provides an in-memory player.Connection for tests.
package playertest

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by a closed Conn.
var ErrClosed = errors.New("connection closed")

// Conn is a player.Connection that records what is written to it and
// returns frames queued with Push from ReadMessage.
type Conn struct {
	mu      sync.Mutex
	written [][]byte
	pings   int

	incoming  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewConn creates an open Conn.
func NewConn() *Conn {
	return &Conn{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

// Push queues a text frame for ReadMessage.
func (c *Conn) Push(data []byte) {
	c.incoming <- data
}

// PushJSON queues v encoded as JSON.
func (c *Conn) PushJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.Push(data)
	return nil
}

func (c *Conn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.incoming:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, ErrClosed
	}
}

func (c *Conn) WriteMessage(messageType int, data []byte) error {
	if c.IsClosed() {
		return ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch messageType {
	case websocket.PingMessage:
		c.pings++
	default:
		c.written = append(c.written, append([]byte(nil), data...))
	}
	return nil
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// IsClosed reports whether Close was called.
func (c *Conn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Written returns a copy of the frames written so far.
func (c *Conn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// Pings returns the number of ping frames written.
func (c *Conn) Pings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}
