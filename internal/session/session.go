package session

import (
	"errors"
	"fmt"

	"ctchen222/tictactoe-solo/internal/bot"
	"ctchen222/tictactoe-solo/internal/game"
)

// Mode selects who plays the O side.
type Mode string

// Phase is the position of a session in the round state machine.
type Phase string

const (
	ModeNone     Mode = ""
	ModeComputer Mode = "ai"
	ModeTwoHuman Mode = "2p"

	PhaseIdle               Phase = "idle"
	PhaseWaitingForHuman    Phase = "waiting_for_human"
	PhaseWaitingForOpponent Phase = "waiting_for_opponent"
	PhaseRoundOver          Phase = "round_over"

	// In computer mode the human always plays X and moves first.
	HumanMark    = game.PlayerX
	ComputerMark = game.PlayerO

	FirstTurn = game.PlayerX
)

var (
	ErrInvalidMode = errors.New("invalid game mode")
	ErrNotStarted  = errors.New("game is not started")
)

// Score is the running tally of finished rounds.
type Score struct {
	X     int `json:"x"`
	O     int `json:"o"`
	Draws int `json:"draws"`
}

// Session is one player's sequence of rounds.
type Session struct {
	ID         string     `json:"id"`
	Mode       Mode       `json:"mode"`
	Started    bool       `json:"started"`
	Board      game.Board `json:"board"`
	Turn       game.Mark  `json:"turn"`
	Score      Score      `json:"score"`
	Round      int        `json:"round"`
	LastResult string     `json:"last_result,omitempty"`
}

// New creates an idle session.
func New(id string) *Session {
	return &Session{
		ID:   id,
		Turn: FirstTurn,
	}
}

// ParseMode validates a client-supplied mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeComputer, ModeTwoHuman:
		return m, nil
	default:
		return ModeNone, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Outcome is recomputed from the board on every call.
func (s *Session) Outcome() game.Outcome {
	return game.DetectOutcome(s.Board)
}

// Phase derives the state machine position from the stored fields.
func (s *Session) Phase() Phase {
	switch {
	case !s.Started:
		return PhaseIdle
	case s.Outcome().IsOver():
		return PhaseRoundOver
	case s.Mode == ModeComputer && s.Turn == ComputerMark:
		return PhaseWaitingForOpponent
	default:
		return PhaseWaitingForHuman
	}
}

// Status is the one-line text shown above the board.
func (s *Session) Status() string {
	outcome := s.Outcome()
	switch outcome.Status {
	case game.Won:
		return fmt.Sprintf("Winner: %s", outcome.Winner)
	case game.Draw:
		return "Draw!"
	default:
		return fmt.Sprintf("Next player: %s", s.Turn)
	}
}

// Start begins play in mode on a fresh board. The score is kept.
func (s *Session) Start(mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}
	s.Mode = mode
	s.Started = true
	s.clearBoard()
	return nil
}

// HumanMove places the current turn's mark at index for a human player.
// It reports false, changing nothing, when the move is not accepted.
func (s *Session) HumanMove(index int) bool {
	if s.Phase() != PhaseWaitingForHuman {
		return false
	}
	return s.place(index)
}

// OpponentMove lets calc pick and play the computer's move.
func (s *Session) OpponentMove(calc bot.MoveCalculator) (int, bool) {
	if s.Phase() != PhaseWaitingForOpponent {
		return bot.NoMove, false
	}
	index, ok := calc.CalculateNextMove(s.Board, ComputerMark, HumanMark)
	if !ok {
		return bot.NoMove, false
	}
	if !s.place(index) {
		return bot.NoMove, false
	}
	return index, true
}

// NextRound clears the board for another round after the modal closes.
func (s *Session) NextRound() error {
	if !s.Started {
		return ErrNotStarted
	}
	s.clearBoard()
	return nil
}

// ResetBoard restarts a round in progress. It only applies once a mark
// has been placed and while nobody has won.
func (s *Session) ResetBoard() bool {
	if !s.Started || s.Board.IsEmpty() || s.Board.Winner() != game.None {
		return false
	}
	s.clearBoard()
	return true
}

// NewGame returns to mode selection and zeroes the score.
func (s *Session) NewGame() {
	s.ChangeMode()
	s.Score = Score{}
}

// ChangeMode returns to mode selection and keeps the score.
func (s *Session) ChangeMode() {
	s.Mode = ModeNone
	s.Started = false
	s.clearBoard()
}

// place applies the current turn's mark, flips the turn and tallies a finished round.
func (s *Session) place(index int) bool {
	board, applied := game.ApplyMove(s.Board, index, s.Turn)
	if !applied {
		return false
	}
	s.Board = board
	s.Turn = game.NextTurn(s.Turn)

	outcome := s.Outcome()
	switch outcome.Status {
	case game.Won:
		if outcome.Winner == game.PlayerX {
			s.Score.X++
		} else {
			s.Score.O++
		}
		s.LastResult = fmt.Sprintf("Winner: %s", outcome.Winner)
	case game.Draw:
		s.Score.Draws++
		s.LastResult = "Draw!"
	}
	return true
}

func (s *Session) clearBoard() {
	s.Board = game.Board{}
	s.Turn = FirstTurn
	s.LastResult = ""
	s.Round++
}
