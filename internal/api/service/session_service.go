package service

import (
	"context"
	"log/slog"
	"time"

	"ctchen222/tictactoe-solo/internal/auth"
	"ctchen222/tictactoe-solo/internal/bot"
	"ctchen222/tictactoe-solo/internal/events"
	"ctchen222/tictactoe-solo/internal/game"
	"ctchen222/tictactoe-solo/internal/repository"
	"ctchen222/tictactoe-solo/internal/session"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("service")

// Opponent chooses the computer's moves and reports the search it ran.
type Opponent interface {
	ChooseMove(board game.Board, self, human game.Mark) (int, bool, bot.Stats)
}

// SessionService defines the interface for session use-cases.
type SessionService interface {
	Create(ctx context.Context) (*session.Session, string, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	Authorize(token, id string) error
	Start(ctx context.Context, id string, mode session.Mode) (*session.Session, error)
	Move(ctx context.Context, id string, index int) (*session.Session, bool, error)
	NextRound(ctx context.Context, id string) (*session.Session, error)
	ResetBoard(ctx context.Context, id string) (*session.Session, bool, error)
	NewGame(ctx context.Context, id string) (*session.Session, error)
	ChangeMode(ctx context.Context, id string) (*session.Session, error)
	End(ctx context.Context, id string) error
}

type sessionService struct {
	repo      repository.SessionRepository
	publisher events.Publisher
	opponent  Opponent
	thinker   *bot.Thinker
	tokens    *auth.TokenIssuer
	locks     *sessionLocks
	metrics   *serviceMetrics
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	repo repository.SessionRepository,
	publisher events.Publisher,
	opponent Opponent,
	thinker *bot.Thinker,
	tokens *auth.TokenIssuer,
) SessionService {
	return &sessionService{
		repo:      repo,
		publisher: publisher,
		opponent:  opponent,
		thinker:   thinker,
		tokens:    tokens,
		locks:     newSessionLocks(),
		metrics:   newServiceMetrics(),
	}
}

// Create starts an idle session and issues the token that controls it.
func (s *sessionService) Create(ctx context.Context) (*session.Session, string, error) {
	ctx, span := tracer.Start(ctx, "SessionService.Create")
	defer span.End()

	sess := session.New(uuid.New().String())
	span.SetAttributes(attribute.String("session.id", sess.ID))

	if err := s.repo.Save(ctx, sess); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to save new session")
		return nil, "", err
	}

	token, err := s.tokens.Issue(sess.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to issue session token")
		return nil, "", err
	}

	slog.InfoContext(ctx, "Session created", "session.id", sess.ID)
	return sess, token, nil
}

// Get returns the stored session.
func (s *sessionService) Get(ctx context.Context, id string) (*session.Session, error) {
	ctx, span := tracer.Start(ctx, "SessionService.Get", trace.WithAttributes(
		attribute.String("session.id", id),
	))
	defer span.End()

	sess, err := s.repo.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Could not find session")
		return nil, err
	}
	return s.resumeOpponent(ctx, sess), nil
}

// Authorize checks that token grants control over session id.
func (s *sessionService) Authorize(token, id string) error {
	return s.tokens.Authorize(token, id)
}

// Start picks the mode and opens a fresh round.
func (s *sessionService) Start(ctx context.Context, id string, mode session.Mode) (*session.Session, error) {
	sess, _, err := s.mutate(ctx, id, events.TypeSessionUpdated, "start", func(sess *session.Session) (bool, error) {
		if err := sess.Start(mode); err != nil {
			return false, err
		}
		return true, nil
	})
	return sess, err
}

// Move places the human's mark. A rejected move returns the unchanged session and false.
func (s *sessionService) Move(ctx context.Context, id string, index int) (*session.Session, bool, error) {
	sess, applied, err := s.mutate(ctx, id, events.TypeSessionUpdated, "move", func(sess *session.Session) (bool, error) {
		return sess.HumanMove(index), nil
	})
	if err == nil && !applied {
		s.metrics.recordRejectedMove(ctx)
		slog.DebugContext(ctx, "Move ignored", "session.id", id, "index", index)
	}
	return sess, applied, err
}

// NextRound clears the board and keeps the score.
func (s *sessionService) NextRound(ctx context.Context, id string) (*session.Session, error) {
	sess, _, err := s.mutate(ctx, id, events.TypeSessionUpdated, "next_round", func(sess *session.Session) (bool, error) {
		if err := sess.NextRound(); err != nil {
			return false, err
		}
		return true, nil
	})
	return sess, err
}

// ResetBoard restarts the round in progress.
func (s *sessionService) ResetBoard(ctx context.Context, id string) (*session.Session, bool, error) {
	return s.mutate(ctx, id, events.TypeSessionUpdated, "reset", func(sess *session.Session) (bool, error) {
		return sess.ResetBoard(), nil
	})
}

// NewGame returns to mode selection with a zeroed score.
func (s *sessionService) NewGame(ctx context.Context, id string) (*session.Session, error) {
	sess, _, err := s.mutate(ctx, id, events.TypeSessionUpdated, "new_game", func(sess *session.Session) (bool, error) {
		sess.NewGame()
		return true, nil
	})
	return sess, err
}

// ChangeMode returns to mode selection and keeps the score.
func (s *sessionService) ChangeMode(ctx context.Context, id string) (*session.Session, error) {
	sess, _, err := s.mutate(ctx, id, events.TypeSessionUpdated, "change_mode", func(sess *session.Session) (bool, error) {
		sess.ChangeMode()
		return true, nil
	})
	return sess, err
}

// End deletes the session and drops any pending computer move.
func (s *sessionService) End(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "SessionService.End", trace.WithAttributes(
		attribute.String("session.id", id),
	))
	defer span.End()

	unlock := s.locks.lock(id)
	defer unlock()

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Could not find session")
		return err
	}
	s.thinker.Cancel(id)
	if err := s.repo.Delete(ctx, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to delete session")
		return err
	}

	s.publish(ctx, id, events.TypeSessionEnded, events.SessionUpdatedPayload{SessionID: id, Reason: "end"})
	slog.InfoContext(ctx, "Session ended", "session.id", id)
	return nil
}

// mutate loads the session under its lock, applies fn and, when fn reports a
// change, saves and announces the result. If the computer is to move next it
// is scheduled once the lock is released, also when an earlier reply was lost.
func (s *sessionService) mutate(
	ctx context.Context,
	id, eventType, reason string,
	fn func(sess *session.Session) (bool, error),
) (*session.Session, bool, error) {
	ctx, span := tracer.Start(ctx, "SessionService."+reason, trace.WithAttributes(
		attribute.String("session.id", id),
	))
	defer span.End()

	unlock := s.locks.lock(id)
	sess, changed, err := s.apply(ctx, id, eventType, reason, fn)
	unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to "+reason)
		return sess, false, err
	}
	span.SetAttributes(attribute.Bool("session.changed", changed))

	if changed && sess.Phase() == session.PhaseWaitingForOpponent {
		return s.scheduleOpponent(ctx, sess), true, nil
	}
	return s.resumeOpponent(ctx, sess), changed, nil
}

// apply runs fn on a freshly loaded session. The caller holds the session lock.
func (s *sessionService) apply(
	ctx context.Context,
	id, eventType, reason string,
	fn func(sess *session.Session) (bool, error),
) (*session.Session, bool, error) {
	sess, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}

	wasOver := sess.Started && sess.Outcome().IsOver()
	round := sess.Round

	changed, err := fn(sess)
	if err != nil {
		return sess, false, err
	}
	if !changed {
		return sess, false, nil
	}

	if sess.Round != round {
		s.thinker.Cancel(id)
	}
	if err := s.commit(ctx, sess, eventType, reason, !wasOver); err != nil {
		return sess, false, err
	}
	return sess, true, nil
}

// commit saves sess and publishes its events. couldFinish is false when the
// round was already over before the change, so no round is counted twice.
func (s *sessionService) commit(ctx context.Context, sess *session.Session, eventType, reason string, couldFinish bool) error {
	if err := s.repo.Save(ctx, sess); err != nil {
		return err
	}

	s.publish(ctx, sess.ID, eventType, events.SessionUpdatedPayload{
		SessionID: sess.ID,
		Round:     sess.Round,
		Reason:    reason,
	})

	outcome := sess.Outcome()
	if couldFinish && sess.Started && outcome.IsOver() {
		s.metrics.recordRoundFinished(ctx, sess.Mode, outcome)
		slog.InfoContext(ctx, "Round finished",
			"session.id", sess.ID,
			"round", sess.Round,
			"outcome", outcome.Status,
			"winner", outcome.Winner,
			"score.x", sess.Score.X,
			"score.o", sess.Score.O,
			"score.draws", sess.Score.Draws,
		)
		s.publish(ctx, sess.ID, events.TypeRoundFinished, events.RoundFinishedPayload{
			SessionID: sess.ID,
			Round:     sess.Round,
			Outcome:   string(outcome.Status),
			Winner:    string(outcome.Winner),
		})
	}
	return nil
}

func (s *sessionService) publish(ctx context.Context, sessionID, eventType string, payload any) {
	event, err := events.New(eventType, payload)
	if err == nil {
		err = s.publisher.Publish(ctx, sessionID, event)
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to publish session event", "session.id", sessionID, "event", eventType, "error", err)
		trace.SpanFromContext(ctx).RecordError(err)
	}
}

// resumeOpponent reschedules the computer for a session stuck waiting on it
// with no reply pending, as after a failed save or a restart mid-delay.
func (s *sessionService) resumeOpponent(ctx context.Context, sess *session.Session) *session.Session {
	if sess == nil || sess.Phase() != session.PhaseWaitingForOpponent || s.thinker.Thinking(sess.ID) {
		return sess
	}
	slog.WarnContext(ctx, "Resuming lost computer move", "session.id", sess.ID, "round", sess.Round)
	return s.scheduleOpponent(ctx, sess)
}

// scheduleOpponent plays the computer's reply after the thinking delay.
// Without a delay the reply is applied before returning and the updated
// session is returned.
func (s *sessionService) scheduleOpponent(ctx context.Context, sess *session.Session) *session.Session {
	if s.thinker.Delay() <= 0 {
		if latest := s.playOpponent(ctx, sess.ID, sess.Round); latest != nil {
			return latest
		}
		return sess
	}

	// The reply outlives the request; keep its trace but not its cancellation.
	replyCtx := context.WithoutCancel(ctx)
	id, round := sess.ID, sess.Round
	s.thinker.Think(id, func() {
		s.playOpponent(replyCtx, id, round)
	})
	slog.DebugContext(ctx, "Computer is thinking", "session.id", id, "delay", s.thinker.Delay())
	return sess
}

// playOpponent applies the computer's move if the session is still in the
// round it was scheduled for and still waiting on the computer.
func (s *sessionService) playOpponent(ctx context.Context, id string, round int) *session.Session {
	ctx, span := tracer.Start(ctx, "SessionService.playOpponent", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.Int("session.round", round),
	))
	defer span.End()

	unlock := s.locks.lock(id)
	defer unlock()

	sess, err := s.repo.FindByID(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "Computer move could not load session", "session.id", id, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Could not load session")
		return nil
	}
	if sess.Round != round || sess.Phase() != session.PhaseWaitingForOpponent {
		slog.DebugContext(ctx, "Dropping stale computer move", "session.id", id, "round", round, "current_round", sess.Round)
		return sess
	}

	var stats bot.Stats
	started := time.Now()
	index, ok := sess.OpponentMove(bot.CalculatorFunc(func(board game.Board, self, human game.Mark) (int, bool) {
		var idx int
		var found bool
		idx, found, stats = s.opponent.ChooseMove(board, self, human)
		return idx, found
	}))
	elapsed := time.Since(started)
	s.metrics.recordDecision(ctx, stats, elapsed)

	if !ok {
		slog.WarnContext(ctx, "Computer found no move", "session.id", id, "board", sess.Board.String())
		span.SetStatus(codes.Error, "Computer found no move")
		return sess
	}
	span.SetAttributes(
		attribute.Int("move.index", index),
		attribute.Bool("move.opening", stats.Opening),
		attribute.Int("search.positions", stats.Positions),
	)
	slog.InfoContext(ctx, "Computer moved",
		"session.id", id,
		"index", index,
		"opening", stats.Opening,
		"positions", stats.Positions,
		"elapsed", elapsed,
	)

	if err := s.commit(ctx, sess, events.TypeSessionUpdated, "computer_move", true); err != nil {
		slog.ErrorContext(ctx, "Failed to save computer move", "session.id", id, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to save computer move")
		return nil
	}
	return sess
}
