package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"ctchen222/tictactoe-solo/internal/api/controller"
	"ctchen222/tictactoe-solo/internal/api/middleware"
	"ctchen222/tictactoe-solo/internal/api/response"
	"ctchen222/tictactoe-solo/internal/api/service"
	"ctchen222/tictactoe-solo/internal/hub"
	"ctchen222/tictactoe-solo/internal/hub/types"
	"ctchen222/tictactoe-solo/internal/player"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const healthTimeout = 2 * time.Second

var tracer = otel.Tracer("server")

// HealthCheck reports whether the backing store is reachable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	engine   *gin.Engine
	hub      *hub.Hub
	sessions service.SessionService
	health   HealthCheck
	upgrader websocket.Upgrader
}

func NewServer(h *hub.Hub, sessionService service.SessionService, health HealthCheck) *Server {
	s := &Server{
		engine:   gin.New(),
		hub:      h,
		sessions: sessionService,
		health:   health,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.engine.Use(gin.Recovery())
	s.RegisterHandlers()
	return s
}

// Engine returns the HTTP handler.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterHandlers() {
	sessionController := controller.NewSessionController(s.sessions)

	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/ws", s.handleWebSocket)

	api := s.engine.Group("/api/sessions")
	api.POST("", sessionController.Create)
	api.GET("/:id", sessionController.Get)

	owned := api.Group("/:id", middleware.SessionAuth(s.sessions))
	owned.DELETE("", sessionController.End)
	owned.POST("/start", sessionController.Start)
	owned.POST("/moves", sessionController.Move)
	owned.POST("/next-round", sessionController.NextRound)
	owned.POST("/reset", sessionController.Reset)
	owned.POST("/new-game", sessionController.NewGame)
	owned.POST("/change-mode", sessionController.ChangeMode)
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if err := s.health(ctx); err != nil {
			slog.WarnContext(ctx, "Health check failed", "error", err)
			response.ErrorResponse(c, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	response.SuccessResponse(c, gin.H{"status": "ok"})
}

// handleWebSocket checks the session token, upgrades the connection and
// passes a registration request to the hub.
func (s *Server) handleWebSocket(c *gin.Context) {
	r := c.Request
	ctx, span := tracer.Start(r.Context(), "server.handleWebSocket", trace.WithAttributes(
		attribute.String("http.url", r.URL.String()),
		attribute.String("http.method", r.Method),
	))
	defer span.End()

	sessionID := c.Query("session")
	token := c.Query("token")
	if bearer, ok := middleware.BearerToken(c.GetHeader("Authorization")); ok {
		token = bearer
	}
	span.SetAttributes(attribute.String("session.id", sessionID))

	if sessionID == "" {
		response.ErrorResponse(c, http.StatusBadRequest, "session is required")
		return
	}
	if err := s.sessions.Authorize(token, sessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Unauthorized websocket")
		response.AbortWithError(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, r, nil)
	if err != nil {
		slog.WarnContext(ctx, "Failed to upgrade connection", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to upgrade connection")
		return
	}

	p := player.NewPlayer(uuid.New().String(), sessionID, conn)
	span.SetAttributes(attribute.String("player.id", p.ID))

	if !s.hub.Register(&types.RegistrationRequest{Player: p, Ctx: ctx}) {
		conn.Close()
	}
}
