package room

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ctchen222/tictactoe-solo/internal/api/service"
	"ctchen222/tictactoe-solo/internal/player"
	"ctchen222/tictactoe-solo/pkg/proto"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
)

const (
	heartbeatInterval = 10 * time.Second
)

var tracer = otel.Tracer("room")

// Room represents the websocket clients watching one session.
type Room struct {
	ID        string
	sessions  service.SessionService
	mu        sync.Mutex
	Players   map[string]*player.Player
	heartbeat time.Duration
	Done      chan struct{}
	stopOnce  sync.Once
}

// NewRoom creates a room for session id.
func NewRoom(id string, sessions service.SessionService) *Room {
	return &Room{
		ID:        id,
		sessions:  sessions,
		Players:   make(map[string]*player.Player),
		heartbeat: heartbeatInterval,
		Done:      make(chan struct{}),
	}
}

// Start launches the heartbeat loop.
func (r *Room) Start() {
	go r.run()
}

// Stop ends the heartbeat loop. It is safe to call more than once.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.Done) })
}

// run pings every player until the room is stopped.
func (r *Room) run() {
	pingTicker := time.NewTicker(r.heartbeat)
	defer pingTicker.Stop()

	for {
		select {
		case <-r.Done:
			slog.Debug("Room run goroutine stopping.", "session.id", r.ID)
			return

		case <-pingTicker.C:
			for _, p := range r.players() {
				if err := p.Write(websocket.PingMessage, nil); err != nil {
					slog.Warn("Failed to send ping to player, assuming disconnect", "player.id", p.ID, "error", err)
					p.Conn.Close()
				}
			}
		}
	}
}

// SendState sends the current session view to p.
func (r *Room) SendState(ctx context.Context, p *player.Player) error {
	sess, err := r.sessions.Get(ctx, r.ID)
	if err != nil {
		return err
	}
	r.Send(ctx, p, proto.NewUpdateMessage(sess))
	return nil
}
