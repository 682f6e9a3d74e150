package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ctchen222/tictactoe-solo/internal/api/service"
	"ctchen222/tictactoe-solo/internal/auth"
	"ctchen222/tictactoe-solo/internal/bot"
	"ctchen222/tictactoe-solo/internal/config"
	"ctchen222/tictactoe-solo/internal/db"
	"ctchen222/tictactoe-solo/internal/events"
	"ctchen222/tictactoe-solo/internal/hub"
	"ctchen222/tictactoe-solo/internal/logger"
	"ctchen222/tictactoe-solo/internal/repository"
	"ctchen222/tictactoe-solo/internal/server"
	"ctchen222/tictactoe-solo/internal/telemetry"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the YAML config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	level, _ := cfg.SlogLevel()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize telemetry
	shutdown, err := telemetry.InitOtel(ctx, telemetry.Options{
		ServiceName: cfg.Otel.ServiceName,
		Endpoint:    cfg.Otel.Endpoint,
	})
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down telemetry: %v", err)
		}
	}()

	logger.Init(level)
	if level > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create session store and event transport
	var (
		sessionRepo repository.SessionRepository
		publisher   events.Publisher
		subscriber  events.Subscriber
		health      server.HealthCheck
	)
	switch cfg.Store {
	case config.StoreRedis:
		rdb, err := db.NewRedisClient(ctx, cfg.Redis.Addr)
		if err != nil {
			log.Fatalf("failed to initialize redis: %v", err)
		}
		defer rdb.Close()

		sessionRepo = repository.NewSessionRepository(rdb, cfg.SessionTTL)
		publisher = events.NewRedisPublisher(rdb)
		subscriber = events.NewRedisSubscriber(rdb)
		health = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	case config.StoreMemory:
		bus := events.NewBus()
		sessionRepo = repository.NewMemorySessionRepository(cfg.SessionTTL)
		publisher = bus
		subscriber = bus
		slog.Warn("Using in-memory session store; sessions are lost on restart and not shared between instances")
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret = randomSecret()
		slog.Warn("No jwt-secret configured; generated one for this process")
	}

	// Create the computer opponent
	var opponent *bot.Opponent
	if cfg.Seed != 0 {
		opponent = bot.NewSeededOpponent(cfg.Seed)
	} else {
		opponent = bot.NewSeededOpponent(uint64(time.Now().UnixNano()))
	}
	thinker := bot.NewThinker(cfg.OpponentDelay)
	defer thinker.Stop()

	// Create services
	sessionService := service.NewSessionService(
		sessionRepo,
		publisher,
		opponent,
		thinker,
		auth.NewTokenIssuer(secret, cfg.SessionTTL),
	)

	// Create hub
	h := hub.NewHub(sessionService, subscriber)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go h.Run(hubCtx)

	// Create the Gin-based server
	srv := server.NewServer(h, sessionService, health)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("http server started", "addr", cfg.HTTPAddr, "store", cfg.Store, "opponent_delay", cfg.OpponentDelay)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-ctx.Done()

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stopHub()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exiting")
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		log.Fatalf("failed to generate jwt secret: %v", err)
	}
	return hex.EncodeToString(buf)
}
