package response

import (
	"errors"
	"net/http"

	"ctchen222/tictactoe-solo/internal/auth"
	"ctchen222/tictactoe-solo/internal/repository"
	"ctchen222/tictactoe-solo/internal/session"
)

type Error struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Extras  string `json:"extras"`
}

func (e Error) Error() string {
	return e.Extras
}

func NewError(success bool, code int, message string) Error {
	return Error{
		Success: success,
		Code:    code,
		Extras:  message,
	}
}

// StatusFromError maps domain errors to HTTP status codes.
func StatusFromError(err error) int {
	switch {
	case errors.Is(err, repository.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidMode):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotStarted):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// FromError builds the error envelope for err. Internal failures are not
// described to the client.
func FromError(err error) Error {
	code := StatusFromError(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		message = http.StatusText(code)
	}
	return NewError(false, code, message)
}
