package controller

import (
	"log/slog"
	"net/http"

	"ctchen222/tictactoe-solo/internal/api/models"
	"ctchen222/tictactoe-solo/internal/api/response"
	"ctchen222/tictactoe-solo/internal/api/service"
	"ctchen222/tictactoe-solo/internal/session"
	"ctchen222/tictactoe-solo/pkg/proto"

	"github.com/gin-gonic/gin"
)

// SessionController handles session-related HTTP requests.
type SessionController struct {
	sessionService service.SessionService
}

// NewSessionController creates a new SessionController.
func NewSessionController(sessionService service.SessionService) *SessionController {
	return &SessionController{
		sessionService: sessionService,
	}
}

// Create handles the session creation endpoint.
func (sc *SessionController) Create(c *gin.Context) {
	sess, token, err := sc.sessionService.Create(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	response.CreatedResponse(c, models.CreateSessionResponse{
		Session: proto.NewSessionView(sess),
		Token:   token,
	})
}

// Get returns the current view of a session.
func (sc *SessionController) Get(c *gin.Context) {
	sess, err := sc.sessionService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, sess)
}

// Start picks the game mode and opens the first round.
func (sc *SessionController) Start(c *gin.Context) {
	var req models.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	mode, err := session.ParseMode(req.Mode)
	if err != nil {
		fail(c, err)
		return
	}

	sess, err := sc.sessionService.Start(c.Request.Context(), c.Param("id"), mode)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, sess)
}

// Move places the current player's mark. An ignored move still answers 200
// with applied set to false.
func (sc *SessionController) Move(c *gin.Context) {
	var req models.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	sess, applied, err := sc.sessionService.Move(c.Request.Context(), c.Param("id"), *req.Index)
	if err != nil {
		fail(c, err)
		return
	}
	response.SuccessResponse(c, models.ChangeResponse{
		Session: proto.NewSessionView(sess),
		Applied: applied,
	})
}

// NextRound clears the board and keeps the score.
func (sc *SessionController) NextRound(c *gin.Context) {
	sess, err := sc.sessionService.NextRound(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, sess)
}

// Reset restarts the round in progress.
func (sc *SessionController) Reset(c *gin.Context) {
	sess, applied, err := sc.sessionService.ResetBoard(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.SuccessResponse(c, models.ChangeResponse{
		Session: proto.NewSessionView(sess),
		Applied: applied,
	})
}

// NewGame returns to mode selection and zeroes the score.
func (sc *SessionController) NewGame(c *gin.Context) {
	sess, err := sc.sessionService.NewGame(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, sess)
}

// ChangeMode returns to mode selection and keeps the score.
func (sc *SessionController) ChangeMode(c *gin.Context) {
	sess, err := sc.sessionService.ChangeMode(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, sess)
}

func ok(c *gin.Context, sess *session.Session) {
	response.SuccessResponse(c, models.SessionResponse{Session: proto.NewSessionView(sess)})
}

func fail(c *gin.Context, err error) {
	e := response.FromError(err)
	if e.Code == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "Request failed", "path", c.FullPath(), "error", err)
	}
	response.ErrorResponse(c, e.Code, e.Extras)
}

// End deletes the session.
func (sc *SessionController) End(c *gin.Context) {
	if err := sc.sessionService.End(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	response.SuccessResponse(c, gin.H{"message": "Session ended"})
}
