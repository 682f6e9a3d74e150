package hub

import (
	"context"
	"log/slog"

	"ctchen222/tictactoe-solo/internal/api/response"
	"ctchen222/tictactoe-solo/internal/hub/types"
	"ctchen222/tictactoe-solo/internal/player"
	"ctchen222/tictactoe-solo/internal/room"
	"ctchen222/tictactoe-solo/pkg/proto"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (h *Hub) handleRegistration(req *types.RegistrationRequest) {
	parent := req.Ctx
	if parent == nil {
		parent = context.Background()
	}
	// The request that carried the upgrade is over by now.
	ctx, span := tracer.Start(context.WithoutCancel(parent), "hub.handleRegistration", trace.WithAttributes(
		attribute.String("player.id", req.Player.ID),
		attribute.String("session.id", req.Player.SessionID),
	))
	defer span.End()

	p := req.Player
	r, err := h.roomFor(ctx, p.SessionID)
	if err != nil {
		slog.ErrorContext(ctx, "Could not open room", "session.id", p.SessionID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Could not open room")
		p.Conn.Close()
		return
	}

	r.AddPlayer(p)
	if err := r.SendState(ctx, p); err != nil {
		slog.WarnContext(ctx, "Could not send initial state", "player.id", p.ID, "session.id", p.SessionID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Could not send initial state")
		r.Send(ctx, p, proto.NewErrorMessage(response.FromError(err).Extras))
		// ReadPump unregisters the player once the close is seen.
		p.Conn.Close()
	}
	go r.ReadPump(p, h.Unregister)

	slog.InfoContext(ctx, "Player joined session", "player.id", p.ID, "session.id", p.SessionID, "players", r.PlayerCount())
}

// roomFor returns the room of a session, subscribing to its events when the
// first client arrives.
func (h *Hub) roomFor(ctx context.Context, sessionID string) (*room.Room, error) {
	h.mu.Lock()
	handle, ok := h.rooms[sessionID]
	h.mu.Unlock()
	if ok {
		return handle.room, nil
	}

	// Registrations queue behind this call, so a slow broker must not stall them for long.
	subCtx, cancel := context.WithTimeout(ctx, h.subscribeTimeout)
	sub, err := h.subscriber.Subscribe(subCtx, sessionID)
	cancel()
	if err != nil {
		return nil, err
	}

	r := room.NewRoom(sessionID, h.sessions)
	r.Start()
	go h.runSessionSubscriber(ctx, r, sub)

	h.mu.Lock()
	h.rooms[sessionID] = &roomHandle{room: r, sub: sub}
	h.mu.Unlock()

	slog.InfoContext(ctx, "Room opened", "session.id", sessionID)
	return r, nil
}

func (h *Hub) handleUnregistration(p *player.Player) {
	h.mu.Lock()
	defer h.mu.Unlock()

	handle, ok := h.rooms[p.SessionID]
	if !ok {
		return
	}
	if handle.room.RemovePlayer(p.ID) == 0 {
		h.closeRoomLocked(p.SessionID, handle)
	}
}
