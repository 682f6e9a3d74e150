package player

import (
	"sync"
)

// Connection is an interface that abstracts the websocket connection.
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (int, []byte, error)
	Close() error
}

// Player is one websocket client watching a session.
type Player struct {
	ID        string
	SessionID string
	Conn      Connection

	writeMu sync.Mutex
}

// NewPlayer creates a Player for conn.
func NewPlayer(id, sessionID string, conn Connection) *Player {
	return &Player{ID: id, SessionID: sessionID, Conn: conn}
}

// Write sends one frame. Websocket connections allow a single concurrent
// writer, so broadcasts and heartbeats go through here.
func (p *Player) Write(messageType int, data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.Conn.WriteMessage(messageType, data)
}
