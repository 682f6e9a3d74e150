package hub

import (
	"context"
	"encoding/json"
	"log/slog"

	"ctchen222/tictactoe-solo/internal/events"
	"ctchen222/tictactoe-solo/internal/room"
	"ctchen222/tictactoe-solo/pkg/proto"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// runSessionSubscriber pushes the session's events to the room until the
// subscription is closed.
func (h *Hub) runSessionSubscriber(ctx context.Context, r *room.Room, sub events.Subscription) {
	slog.DebugContext(ctx, "Session subscriber started", "session.id", r.ID)
	for event := range sub.Events() {
		h.handleEvent(ctx, r, event)
	}
	slog.DebugContext(ctx, "Session subscriber stopped", "session.id", r.ID)
}

func (h *Hub) handleEvent(ctx context.Context, r *room.Room, event events.Event) {
	ctx, span := tracer.Start(ctx, "hub.handleEvent", trace.WithAttributes(
		attribute.String("session.id", r.ID),
		attribute.String("event.type", event.Type),
	))
	defer span.End()

	switch event.Type {
	case events.TypeSessionUpdated:
		sess, err := h.sessions.Get(ctx, r.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Room subscriber could not get session", "session.id", r.ID, "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "Could not get session")
			return
		}
		r.Broadcast(ctx, proto.NewUpdateMessage(sess))

	case events.TypeRoundFinished:
		var payload events.RoundFinishedPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			slog.ErrorContext(ctx, "Could not unmarshal round_finished payload", "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "Could not unmarshal round_finished payload")
			return
		}
		slog.DebugContext(ctx, "Round finished", "session.id", payload.SessionID, "round", payload.Round, "outcome", payload.Outcome)

	case events.TypeSessionEnded:
		r.Broadcast(ctx, &proto.ServerToClientMessage{Type: proto.TypeEnded})
		r.CloseAll()

	default:
		slog.WarnContext(ctx, "Unknown session event", "session.id", r.ID, "event", event.Type)
	}
}
