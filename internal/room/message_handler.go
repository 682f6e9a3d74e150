package room

import (
	"context"
	"encoding/json"
	"log/slog"

	"ctchen222/tictactoe-solo/internal/api/response"
	"ctchen222/tictactoe-solo/internal/player"
	"ctchen222/tictactoe-solo/internal/session"
	"ctchen222/tictactoe-solo/internal/validator"
	"ctchen222/tictactoe-solo/pkg/proto"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HandleMessage handles a message from a player. It acts as a dispatcher.
// Successful changes reach every player through the session's event channel;
// only ignored moves and errors are answered directly.
func (r *Room) HandleMessage(ctx context.Context, p *player.Player, rawMessage []byte) {
	ctx, span := tracer.Start(ctx, "room.HandleMessage", trace.WithAttributes(
		attribute.String("player.id", p.ID),
		attribute.String("session.id", r.ID),
	))
	defer span.End()

	var message proto.ClientToServerMessage
	if err := json.Unmarshal(rawMessage, &message); err != nil {
		slog.WarnContext(ctx, "error unmarshalling message", "player.id", p.ID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Error unmarshalling message")
		r.Send(ctx, p, proto.NewErrorMessage("malformed message"))
		return
	}

	if err := validator.GetValidator().Struct(message); err != nil {
		slog.WarnContext(ctx, "invalid message from player", "player.id", p.ID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid message format")
		r.Send(ctx, p, proto.NewErrorMessage(err.Error()))
		return
	}

	span.SetAttributes(attribute.String("message.type", message.Type))

	var (
		sess    *session.Session
		applied = true
		err     error
	)
	switch message.Type {
	case proto.TypeStart:
		sess, err = r.sessions.Start(ctx, r.ID, session.Mode(message.Mode))
	case proto.TypeMove:
		span.SetAttributes(attribute.Int("move.index", *message.Index))
		sess, applied, err = r.sessions.Move(ctx, r.ID, *message.Index)
	case proto.TypeNextRound:
		sess, err = r.sessions.NextRound(ctx, r.ID)
	case proto.TypeReset:
		sess, applied, err = r.sessions.ResetBoard(ctx, r.ID)
	case proto.TypeNewGame:
		sess, err = r.sessions.NewGame(ctx, r.ID)
	case proto.TypeChangeMode:
		sess, err = r.sessions.ChangeMode(ctx, r.ID)
	}

	if err != nil {
		slog.WarnContext(ctx, "player request failed", "player.id", p.ID, "session.id", r.ID, "type", message.Type, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Request failed")
		r.Send(ctx, p, proto.NewErrorMessage(response.FromError(err).Extras))
		return
	}
	if !applied {
		r.Send(ctx, p, proto.NewIgnoredMessage(sess))
	}
}
