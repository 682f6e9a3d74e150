package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ctchen222/tictactoe-solo/internal/api/service"
	"ctchen222/tictactoe-solo/internal/events"
	"ctchen222/tictactoe-solo/internal/hub/types"
	"ctchen222/tictactoe-solo/internal/player"
	"ctchen222/tictactoe-solo/internal/room"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("hub")

// defaultSubscribeTimeout bounds how long opening a room may hold the hub loop.
const defaultSubscribeTimeout = 5 * time.Second

type roomHandle struct {
	room *room.Room
	sub  events.Subscription
}

// Hub manages the rooms of the sessions that have websocket clients on this server.
type Hub struct {
	sessions         service.SessionService
	subscriber       events.Subscriber
	subscribeTimeout time.Duration

	mu    sync.Mutex
	rooms map[string]*roomHandle

	register   chan *types.RegistrationRequest
	unregister chan *player.Player
	done       chan struct{}
}

// NewHub creates a new hub.
func NewHub(sessions service.SessionService, subscriber events.Subscriber) *Hub {
	return &Hub{
		sessions:         sessions,
		subscriber:       subscriber,
		subscribeTimeout: defaultSubscribeTimeout,
		rooms:            make(map[string]*roomHandle),
		register:         make(chan *types.RegistrationRequest),
		unregister:       make(chan *player.Player),
		done:             make(chan struct{}),
	}
}

// Run processes registrations until ctx is cancelled, then closes every room.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			slog.Info("Hub stopped")
			return

		case req := <-h.register:
			h.handleRegistration(req)

		case p := <-h.unregister:
			h.handleUnregistration(p)
		}
	}
}

// Register hands a new client to the hub. It reports false once the hub has stopped.
func (h *Hub) Register(req *types.RegistrationRequest) bool {
	select {
	case h.register <- req:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a disconnected client.
func (h *Hub) Unregister(p *player.Player) {
	select {
	case h.unregister <- p:
	case <-h.done:
	}
}

// RoomCount returns the number of sessions with connected clients.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, handle := range h.rooms {
		handle.room.CloseAll()
		h.closeRoomLocked(id, handle)
	}
}

func (h *Hub) closeRoomLocked(id string, handle *roomHandle) {
	handle.room.Stop()
	if err := handle.sub.Close(); err != nil {
		slog.Warn("Failed to close session subscription", "session.id", id, "error", err)
	}
	delete(h.rooms, id)
	slog.Info("Room closed", "session.id", id)
}
