package game

import "strings"

// Mark represents the mark of a player (X, O) or an empty cell.
type Mark string

// OutcomeStatus is the derived state of a board.
type OutcomeStatus string

const (
	// Player marks
	None    Mark = ""
	PlayerX Mark = "X"
	PlayerO Mark = "O"

	// Outcome statuses
	Ongoing OutcomeStatus = "ongoing"
	Won     OutcomeStatus = "won"
	Draw    OutcomeStatus = "draw"

	// Board boundaries
	BorderMin = 0
	BorderMax = 8

	Center = 4
)

// Lines are the rows, columns and diagonals that win the game when filled with one mark.
var Lines = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Corners of the board in scan order.
var Corners = [4]int{0, 2, 6, 8}

// Board holds the nine cells in row-major order:
//
//	0 1 2
//	3 4 5
//	6 7 8
type Board [9]Mark

// Outcome is derived from a board and never stored alongside it.
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Winner Mark          `json:"winner,omitempty"`
}

// IsOver reports whether the round has ended.
func (o Outcome) IsOver() bool {
	return o.Status != Ongoing
}

// ApplyMove places mark at index and reports whether the move was accepted.
// An out-of-range index, an occupied cell, an unknown mark or a decided board
// leaves the board untouched and returns false.
func ApplyMove(board Board, index int, mark Mark) (Board, bool) {
	if index < BorderMin || index > BorderMax {
		return board, false
	}
	if mark != PlayerX && mark != PlayerO {
		return board, false
	}
	if board[index] != None {
		return board, false
	}
	if DetectOutcome(board).IsOver() {
		return board, false
	}

	board[index] = mark
	return board, true
}

// DetectOutcome scans every line in order and returns the first complete one,
// then falls back to draw on a full board.
func DetectOutcome(board Board) Outcome {
	if winner := board.Winner(); winner != None {
		return Outcome{Status: Won, Winner: winner}
	}
	if board.IsFull() {
		return Outcome{Status: Draw}
	}
	return Outcome{Status: Ongoing}
}

// NextTurn returns the mark that moves after current.
func NextTurn(current Mark) Mark {
	if current == PlayerX {
		return PlayerO
	}
	return PlayerX
}

// Winner returns the mark holding a complete line, or None.
func (b Board) Winner() Mark {
	for _, line := range Lines {
		a := b[line[0]]
		if a != None && a == b[line[1]] && a == b[line[2]] {
			return a
		}
	}
	return None
}

// IsFull reports whether no empty cell remains.
func (b Board) IsFull() bool {
	for _, cell := range b {
		if cell == None {
			return false
		}
	}
	return true
}

// IsEmpty reports whether no mark has been placed yet.
func (b Board) IsEmpty() bool {
	return b.Count(PlayerX)+b.Count(PlayerO) == 0
}

func (b Board) String() string {
	var sb strings.Builder
	for i, cell := range b {
		if cell == None {
			sb.WriteByte('.')
		} else {
			sb.WriteString(string(cell))
		}
		if i%3 == 2 && i != BorderMax {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
