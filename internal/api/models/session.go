package models

import "ctchen222/tictactoe-solo/pkg/proto"

// StartRequest defines the structure for starting a game.
type StartRequest struct {
	Mode string `json:"mode" binding:"required,oneof=ai 2p"`
}

// MoveRequest defines the structure for placing a mark. Index is a pointer so
// that cell 0 passes the required check.
type MoveRequest struct {
	Index *int `json:"index" binding:"required,min=0,max=8"`
}

// CreateSessionResponse is returned when a session is created.
type CreateSessionResponse struct {
	Session *proto.SessionView `json:"session"`
	Token   string             `json:"token"`
}

// SessionResponse wraps a session view.
type SessionResponse struct {
	Session *proto.SessionView `json:"session"`
}

// ChangeResponse reports whether a move or reset changed the session.
type ChangeResponse struct {
	Session *proto.SessionView `json:"session"`
	Applied bool               `json:"applied"`
}
