package proto

import (
	"ctchen222/tictactoe-solo/internal/game"
	"ctchen222/tictactoe-solo/internal/session"
)

// Client message types
const (
	TypeStart      = "start"
	TypeMove       = "move"
	TypeNextRound  = "next_round"
	TypeReset      = "reset"
	TypeNewGame    = "new_game"
	TypeChangeMode = "change_mode"
)

// Server message types
const (
	TypeUpdate = "update"
	TypeError  = "error"
	TypeEnded  = "ended"
)

// ClientToServerMessage represents a message from the client to the server.
type ClientToServerMessage struct {
	Type  string `json:"type" validate:"required,oneof=start move next_round reset new_game change_mode"`
	Index *int   `json:"index,omitempty" validate:"required_if=Type move,omitempty,min=0,max=8"`
	Mode  string `json:"mode,omitempty" validate:"required_if=Type start,omitempty,oneof=ai 2p"`
}

// ServerToClientMessage represents a message from the server to the client.
type ServerToClientMessage struct {
	Type    string       `json:"type" validate:"required"`
	Reason  string       `json:"reason,omitempty"`
	Applied *bool        `json:"applied,omitempty"`
	Session *SessionView `json:"session,omitempty"`
}

// SessionView is the client-facing snapshot of a session.
type SessionView struct {
	ID         string        `json:"id"`
	Mode       session.Mode  `json:"mode"`
	Phase      session.Phase `json:"phase"`
	Board      game.Board    `json:"board"`
	Turn       game.Mark     `json:"turn"`
	Outcome    game.Outcome  `json:"outcome"`
	Status     string        `json:"status"`
	Score      session.Score `json:"score"`
	Round      int           `json:"round"`
	LastResult string        `json:"last_result,omitempty"`
}

// NewSessionView builds the view of s.
func NewSessionView(s *session.Session) *SessionView {
	return &SessionView{
		ID:         s.ID,
		Mode:       s.Mode,
		Phase:      s.Phase(),
		Board:      s.Board,
		Turn:       s.Turn,
		Outcome:    s.Outcome(),
		Status:     s.Status(),
		Score:      s.Score,
		Round:      s.Round,
		LastResult: s.LastResult,
	}
}

// NewUpdateMessage wraps the view of s in an "update" message.
func NewUpdateMessage(s *session.Session) *ServerToClientMessage {
	return &ServerToClientMessage{Type: TypeUpdate, Session: NewSessionView(s)}
}

// NewIgnoredMessage reports to the sender that its move or reset changed nothing.
func NewIgnoredMessage(s *session.Session) *ServerToClientMessage {
	applied := false
	return &ServerToClientMessage{Type: TypeUpdate, Applied: &applied, Session: NewSessionView(s)}
}

// NewErrorMessage reports a failed request to the sender.
func NewErrorMessage(reason string) *ServerToClientMessage {
	return &ServerToClientMessage{Type: TypeError, Reason: reason}
}
