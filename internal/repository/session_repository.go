package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ctchen222/tictactoe-solo/internal/game"
	"ctchen222/tictactoe-solo/internal/session"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

//go:generate mockgen -destination=mocks/session_repository.go -package=mocks . SessionRepository

var tracer = otel.Tracer("repository.session")

// ErrSessionNotFound is returned when a session key does not exist or has expired.
var ErrSessionNotFound = errors.New("session not found")

// Hash fields of a stored session.
const (
	FieldBoard      = "board"
	FieldTurn       = "turn"
	FieldMode       = "mode"
	FieldStarted    = "started"
	FieldScoreX     = "score_x"
	FieldScoreO     = "score_o"
	FieldDraws      = "draws"
	FieldRound      = "round"
	FieldLastResult = "last_result"
)

// SessionRepository defines the interface for session data operations.
type SessionRepository interface {
	Save(ctx context.Context, s *session.Session) error
	FindByID(ctx context.Context, id string) (*session.Session, error)
	Delete(ctx context.Context, id string) error
}

type redisSessionRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSessionRepository creates a new Redis-based SessionRepository.
// Keys expire ttl after the last save.
func NewSessionRepository(rdb *redis.Client, ttl time.Duration) SessionRepository {
	return &redisSessionRepository{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

// Save writes the whole session snapshot and refreshes its expiry.
func (r *redisSessionRepository) Save(ctx context.Context, s *session.Session) error {
	ctx, span := tracer.Start(ctx, "SessionRepository.Save", trace.WithAttributes(
		attribute.String("session.id", s.ID),
	))
	defer span.End()

	boardJSON, err := json.Marshal(s.Board)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to marshal board")
		return fmt.Errorf("failed to marshal board: %w", err)
	}

	key := sessionKey(s.ID)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		FieldBoard, boardJSON,
		FieldTurn, string(s.Turn),
		FieldMode, string(s.Mode),
		FieldStarted, strconv.FormatBool(s.Started),
		FieldScoreX, s.Score.X,
		FieldScoreO, s.Score.O,
		FieldDraws, s.Score.Draws,
		FieldRound, s.Round,
		FieldLastResult, s.LastResult,
	)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to save session")
		return fmt.Errorf("failed to save session in redis: %w", err)
	}
	return nil
}

// FindByID retrieves a session snapshot from Redis.
func (r *redisSessionRepository) FindByID(ctx context.Context, id string) (*session.Session, error) {
	ctx, span := tracer.Start(ctx, "SessionRepository.FindByID", trace.WithAttributes(
		attribute.String("session.id", id),
	))
	defer span.End()

	data, err := r.rdb.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to get session")
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s, err := decodeSession(id, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode session")
		return nil, err
	}
	return s, nil
}

// Delete removes a session.
func (r *redisSessionRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "SessionRepository.Delete", trace.WithAttributes(
		attribute.String("session.id", id),
	))
	defer span.End()

	return r.rdb.Del(ctx, sessionKey(id)).Err()
}

func decodeSession(id string, data map[string]string) (*session.Session, error) {
	var board game.Board
	if err := json.Unmarshal([]byte(data[FieldBoard]), &board); err != nil {
		return nil, fmt.Errorf("failed to unmarshal board: %w", err)
	}

	started, err := strconv.ParseBool(data[FieldStarted])
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FieldStarted, err)
	}

	ints := make(map[string]int, 4)
	for _, field := range []string{FieldScoreX, FieldScoreO, FieldDraws, FieldRound} {
		n, err := strconv.Atoi(data[field])
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", field, err)
		}
		ints[field] = n
	}

	return &session.Session{
		ID:      id,
		Mode:    session.Mode(data[FieldMode]),
		Started: started,
		Board:   board,
		Turn:    game.Mark(data[FieldTurn]),
		Score: session.Score{
			X:     ints[FieldScoreX],
			O:     ints[FieldScoreO],
			Draws: ints[FieldDraws],
		},
		Round:      ints[FieldRound],
		LastResult: data[FieldLastResult],
	}, nil
}
