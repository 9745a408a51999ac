package spec

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrScoreOutOfRange = errors.New("spec: score must be in [0,1]")
	ErrUnknownRow      = errors.New("spec: row is not in the candidate universe")
	ErrUnknownColumn   = errors.New("spec: column is not in the mechanism universe")
)

// MatrixEntry is one sparse cell of the match matrix. Score is always in
// (0,1]; zero scores are represented by absence.
type MatrixEntry struct {
	Row   string  `json:"row"`
	Col   string  `json:"col"`
	Score float64 `json:"score"`
}

// MatchMatrix records fuzzy many-to-one assignments between candidate
// library models (rows) and required mechanisms (columns).
//
// Invariant: each column holds at most one entry with score exactly 1.0,
// the selected assignment for that mechanism.
type MatchMatrix struct {
	Rows           []string      `json:"rows"`
	Columns        []string      `json:"columns"`
	NonZeroEntries []MatrixEntry `json:"non_zero_entries"`
}

// NewMatchMatrix builds an empty matrix over the given universes.
func NewMatchMatrix(rows, cols []string) MatchMatrix {
	m := MatchMatrix{}
	for _, r := range rows {
		if r = strings.TrimSpace(r); r != "" {
			m.Rows = append(m.Rows, r)
		}
	}
	for _, c := range cols {
		if c = strings.TrimSpace(c); c != "" {
			m.Columns = append(m.Columns, c)
		}
	}
	return m
}

func (m *MatchMatrix) hasRow(row string) bool {
	for _, r := range m.Rows {
		if r == row {
			return true
		}
	}
	return false
}

func (m *MatchMatrix) hasColumn(col string) bool {
	for _, c := range m.Columns {
		if c == col {
			return true
		}
	}
	return false
}

func (m *MatchMatrix) indexOf(row, col string) int {
	for i, e := range m.NonZeroEntries {
		if e.Row == row && e.Col == col {
			return i
		}
	}
	return -1
}

// GetScore returns the stored score for (row, col), or 0 if absent.
func (m *MatchMatrix) GetScore(row, col string) float64 {
	if i := m.indexOf(strings.TrimSpace(row), strings.TrimSpace(col)); i >= 0 {
		return m.NonZeroEntries[i].Score
	}
	return 0
}

// SetScore inserts, updates, or removes the (row, col) cell.
//
// A zero score removes the cell. Setting any cell to exactly 1.0 evicts
// every other 1.0 entry in the same column, so the single-selection
// invariant holds after any call sequence. Re-scoring an existing cell
// below 1.0 updates it in place without touching its column neighbors:
// selection is tracked by presence, so a partial-confidence review of an
// already-selected cell does not deselect it.
func (m *MatchMatrix) SetScore(row, col string, score float64) error {
	if score < 0 || score > 1 {
		return fmt.Errorf("%w: got %v", ErrScoreOutOfRange, score)
	}
	row = strings.TrimSpace(row)
	col = strings.TrimSpace(col)
	if !m.hasRow(row) {
		return fmt.Errorf("%w: %q", ErrUnknownRow, row)
	}
	if !m.hasColumn(col) {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, col)
	}

	i := m.indexOf(row, col)
	if score == 0 {
		if i >= 0 {
			m.NonZeroEntries = append(m.NonZeroEntries[:i], m.NonZeroEntries[i+1:]...)
		}
		return nil
	}
	if score == 1 {
		m.evictSelected(col, row)
		i = m.indexOf(row, col)
	}
	if i >= 0 {
		m.NonZeroEntries[i].Score = score
		return nil
	}
	m.NonZeroEntries = append(m.NonZeroEntries, MatrixEntry{Row: row, Col: col, Score: score})
	return nil
}

// evictSelected removes every 1.0 entry in col except the one in keepRow.
func (m *MatchMatrix) evictSelected(col, keepRow string) {
	kept := m.NonZeroEntries[:0]
	for _, e := range m.NonZeroEntries {
		if e.Col == col && e.Score == 1 && e.Row != keepRow {
			continue
		}
		kept = append(kept, e)
	}
	m.NonZeroEntries = kept
}

// SelectedRow returns the row of the column's sole score-1.0 entry.
func (m *MatchMatrix) SelectedRow(col string) (string, bool) {
	col = strings.TrimSpace(col)
	for _, e := range m.NonZeroEntries {
		if e.Col == col && e.Score == 1 {
			return e.Row, true
		}
	}
	return "", false
}

// BestCandidate returns the highest-scoring non-zero row for the column.
// This is the "selected for review" notion the UI uses; a hard assignment
// still requires a 1.0 score (see SelectedRow).
func (m *MatchMatrix) BestCandidate(col string) (string, float64, bool) {
	col = strings.TrimSpace(col)
	var bestRow string
	var bestScore float64
	for _, e := range m.NonZeroEntries {
		if e.Col == col && e.Score > bestScore {
			bestRow, bestScore = e.Row, e.Score
		}
	}
	return bestRow, bestScore, bestScore > 0
}

// ColumnEntries returns the non-zero entries of one column.
func (m *MatchMatrix) ColumnEntries(col string) []MatrixEntry {
	col = strings.TrimSpace(col)
	var out []MatrixEntry
	for _, e := range m.NonZeroEntries {
		if e.Col == col {
			out = append(out, e)
		}
	}
	return out
}
