package bot

import (
	"math"
	"math/rand/v2"
	"sync"

	"ctchen222/tictactoe-solo/internal/game"
)

const (
	winScore  = 10
	drawScore = 0

	// NoMove is returned when the board has no empty cell.
	NoMove = -1
)

// MoveCalculator selects the next cell for the computer side.
type MoveCalculator interface {
	CalculateNextMove(board game.Board, self, human game.Mark) (index int, ok bool)
}

// CalculatorFunc adapts a function to MoveCalculator.
type CalculatorFunc func(board game.Board, self, human game.Mark) (int, bool)

func (f CalculatorFunc) CalculateNextMove(board game.Board, self, human game.Mark) (int, bool) {
	return f(board, self, human)
}

// Stats describes the work done for the last decision.
type Stats struct {
	Opening   bool
	Positions int
}

// Opponent is the computer player: an opening book for its first reply and
// an exhaustive minimax search for everything else.
type Opponent struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewOpponent creates an opponent drawing its corner choices from src.
func NewOpponent(src rand.Source) *Opponent {
	return &Opponent{rng: rand.New(src)}
}

// NewSeededOpponent creates an opponent with a deterministic PCG source.
func NewSeededOpponent(seed uint64) *Opponent {
	return NewOpponent(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// CalculateNextMove satisfies MoveCalculator.
func (o *Opponent) CalculateNextMove(board game.Board, self, human game.Mark) (int, bool) {
	index, ok, _ := o.ChooseMove(board, self, human)
	return index, ok
}

// ChooseMove returns the cell the opponent plays as self against human.
// ok is false when the board is already full.
func (o *Opponent) ChooseMove(board game.Board, self, human game.Mark) (index int, ok bool, stats Stats) {
	if board.IsFull() {
		return NoMove, false, stats
	}

	if isOpeningReply(board, self, human) {
		stats.Opening = true
		return o.openingMove(board), true, stats
	}

	_, move := minimax(board, 0, true, self, human, &stats.Positions)
	if move == NoMove {
		return NoMove, false, stats
	}
	return move, true, stats
}

// isOpeningReply reports whether the only mark on the board is the human's first one.
func isOpeningReply(board game.Board, self, human game.Mark) bool {
	return board.Count(human) == 1 && board.Count(self) == 0
}

// openingMove takes the center, or a random free corner when the center is gone.
func (o *Opponent) openingMove(board game.Board) int {
	if board[game.Center] == game.None {
		return game.Center
	}

	availableCorners := make([]int, 0, len(game.Corners))
	for _, corner := range game.Corners {
		if board[corner] == game.None {
			availableCorners = append(availableCorners, corner)
		}
	}
	if len(availableCorners) == 0 {
		return NoMove
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return availableCorners[o.rng.IntN(len(availableCorners))]
}

// Minimax scores board for self. depth counts plies from the searched position;
// wins are worth 10-depth and losses depth-10 so faster wins and slower losses
// are preferred. Ties keep the lowest index.
func Minimax(board game.Board, depth int, maximizing bool, self, human game.Mark) (score, move int) {
	var positions int
	return minimax(board, depth, maximizing, self, human, &positions)
}

func minimax(board game.Board, depth int, maximizing bool, self, human game.Mark, positions *int) (int, int) {
	*positions++

	switch board.Winner() {
	case self:
		return winScore - depth, NoMove
	case human:
		return depth - winScore, NoMove
	}
	if board.IsFull() {
		return drawScore, NoMove
	}

	bestMove := NoMove
	if maximizing {
		bestScore := math.MinInt
		for i, cell := range board {
			if cell != game.None {
				continue
			}
			next := board
			next[i] = self
			score, _ := minimax(next, depth+1, false, self, human, positions)
			if score > bestScore {
				bestScore, bestMove = score, i
			}
		}
		return bestScore, bestMove
	}

	bestScore := math.MaxInt
	for i, cell := range board {
		if cell != game.None {
			continue
		}
		next := board
		next[i] = human
		score, _ := minimax(next, depth+1, true, self, human, positions)
		if score < bestScore {
			bestScore, bestMove = score, i
		}
	}
	return bestScore, bestMove
}
