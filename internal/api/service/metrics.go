package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"ctchen222/tictactoe-solo/internal/bot"
	"ctchen222/tictactoe-solo/internal/game"
	"ctchen222/tictactoe-solo/internal/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("service")

type serviceMetrics struct {
	roundsFinished   metric.Int64Counter
	movesRejected    metric.Int64Counter
	searchPositions  metric.Int64Histogram
	decisionDuration metric.Float64Histogram
}

// newServiceMetrics creates the instruments. The OpenTelemetry API hands back
// usable no-op instruments alongside any error, so failures are only logged.
func newServiceMetrics() *serviceMetrics {
	m := &serviceMetrics{}
	var err error

	m.roundsFinished, err = meter.Int64Counter("tictactoe.rounds.finished",
		metric.WithDescription("Rounds that ended in a win or a draw"),
	)
	logInstrumentError(err, "tictactoe.rounds.finished")

	m.movesRejected, err = meter.Int64Counter("tictactoe.moves.rejected",
		metric.WithDescription("Moves ignored because the cell was taken, out of range or the round was over"),
	)
	logInstrumentError(err, "tictactoe.moves.rejected")

	m.searchPositions, err = meter.Int64Histogram("tictactoe.opponent.positions",
		metric.WithDescription("Positions evaluated by the computer for one move"),
	)
	logInstrumentError(err, "tictactoe.opponent.positions")

	m.decisionDuration, err = meter.Float64Histogram("tictactoe.opponent.decision.duration",
		metric.WithDescription("Time the computer spent choosing a move"),
		metric.WithUnit("ms"),
	)
	logInstrumentError(err, "tictactoe.opponent.decision.duration")

	return m
}

func logInstrumentError(err error, name string) {
	if err != nil {
		slog.Warn("failed to create metric instrument", "instrument", name, "error", err)
	}
}

func (m *serviceMetrics) recordRoundFinished(ctx context.Context, mode session.Mode, outcome game.Outcome) {
	m.roundsFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.String("outcome", outcomeLabel(outcome)),
	))
}

// outcomeLabel is the metric value for a finished round: x, o or draw.
func outcomeLabel(outcome game.Outcome) string {
	if outcome.Status == game.Won {
		return strings.ToLower(string(outcome.Winner))
	}
	return "draw"
}

func (m *serviceMetrics) recordRejectedMove(ctx context.Context) {
	m.movesRejected.Add(ctx, 1)
}

func (m *serviceMetrics) recordDecision(ctx context.Context, stats bot.Stats, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool("opening", stats.Opening))
	m.searchPositions.Record(ctx, int64(stats.Positions), attrs)
	m.decisionDuration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
}
