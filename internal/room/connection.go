package room

import (
	"context"
	"encoding/json"
	"log/slog"

	"ctchen222/tictactoe-solo/internal/player"
	"ctchen222/tictactoe-solo/pkg/proto"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Broadcast sends a message to all connected players in the room.
func (r *Room) Broadcast(ctx context.Context, message *proto.ServerToClientMessage) {
	ctx, span := tracer.Start(ctx, "room.Broadcast", trace.WithAttributes(
		attribute.String("session.id", r.ID),
		attribute.String("message.type", message.Type),
	))
	defer span.End()

	data, err := json.Marshal(message)
	if err != nil {
		slog.ErrorContext(ctx, "error marshalling message", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Error marshalling message")
		return
	}

	for _, p := range r.players() {
		if err := p.Write(websocket.TextMessage, data); err != nil {
			slog.ErrorContext(ctx, "error writing message to player", "player.id", p.ID, "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "Error writing message to player")
		}
	}
}

// Send writes a message to a single player.
func (r *Room) Send(ctx context.Context, p *player.Player, message *proto.ServerToClientMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		slog.ErrorContext(ctx, "error marshalling message", "error", err)
		return
	}
	if err := p.Write(websocket.TextMessage, data); err != nil {
		slog.WarnContext(ctx, "error writing message to player", "player.id", p.ID, "session.id", r.ID, "error", err)
	}
}

// ReadPump reads client messages until the connection fails, then hands the
// player to unregister.
func (r *Room) ReadPump(p *player.Player, unregister func(*player.Player)) {
	ctx, span := tracer.Start(context.Background(), "room.ReadPump", trace.WithAttributes(
		attribute.String("player.id", p.ID),
		attribute.String("session.id", r.ID),
	))
	defer span.End()

	defer func() {
		p.Conn.Close()
		unregister(p)
		slog.InfoContext(ctx, "Player disconnected", "player.id", p.ID, "session.id", r.ID)
	}()

	for {
		_, msg, err := p.Conn.ReadMessage()
		if err != nil {
			slog.DebugContext(ctx, "Player connection closed", "player.id", p.ID, "session.id", r.ID, "error", err)
			return
		}
		r.HandleMessage(ctx, p, msg)
	}
}
