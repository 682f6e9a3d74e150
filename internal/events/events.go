package events

import (
	"encoding/json"
	"fmt"
)

// Event types
const (
	TypeSessionUpdated = "session_updated"
	TypeRoundFinished  = "round_finished"
	TypeSessionEnded   = "session_ended"
)

// Event represents a message published via Pub/Sub.
type Event struct {
	Type    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// SessionUpdatedPayload is the payload for the "session_updated" event.
type SessionUpdatedPayload struct {
	SessionID string `json:"session_id"`
	Round     int    `json:"round"`
	Reason    string `json:"reason"`
}

// RoundFinishedPayload is the payload for the "round_finished" event.
type RoundFinishedPayload struct {
	SessionID string `json:"session_id"`
	Round     int    `json:"round"`
	Outcome   string `json:"outcome"`
	Winner    string `json:"winner,omitempty"`
}

// SessionChannel is the Pub/Sub channel carrying events of one session.
func SessionChannel(sessionID string) string {
	return fmt.Sprintf("channel:session:%s", sessionID)
}

// New wraps payload in an Event envelope.
func New(eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, Payload: raw}, nil
}

// Decode parses an envelope received from a channel.
func Decode(data []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return event, nil
}
