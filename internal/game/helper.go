package game

import "fmt"

// EmptyCells returns the indices of empty cells in ascending order.
func (b Board) EmptyCells() []int {
	cells := make([]int, 0, len(b))
	for i, cell := range b {
		if cell == None {
			cells = append(cells, i)
		}
	}
	return cells
}

// Count returns how many cells hold mark.
func (b Board) Count(mark Mark) int {
	n := 0
	for _, cell := range b {
		if cell == mark {
			n++
		}
	}
	return n
}

// ParseBoard builds a board from a 9-character string using X, O and '.' (or '-' / ' ') for empty.
func ParseBoard(s string) (Board, error) {
	var b Board
	if len(s) != len(b) {
		return b, fmt.Errorf("board must have %d cells, got %d", len(b), len(s))
	}
	for i, r := range s {
		switch r {
		case 'X', 'x':
			b[i] = PlayerX
		case 'O', 'o':
			b[i] = PlayerO
		case '.', '-', ' ':
			b[i] = None
		default:
			return b, fmt.Errorf("invalid cell %q at index %d", r, i)
		}
	}
	return b, nil
}

// MustParseBoard is ParseBoard for fixed inputs; it panics on malformed boards.
func MustParseBoard(s string) Board {
	b, err := ParseBoard(s)
	if err != nil {
		panic(err)
	}
	return b
}
