package types

import (
	"context"

	"ctchen222/tictactoe-solo/internal/player"
)

// RegistrationRequest represents a request to attach a websocket client to a session.
type RegistrationRequest struct {
	Player *player.Player
	Ctx    context.Context
}
