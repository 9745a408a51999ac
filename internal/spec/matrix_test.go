package spec

import (
	"errors"
	"math/rand"
	"testing"
)

func newTestMatrix() MatchMatrix {
	return NewMatchMatrix(
		[]string{"Kp", "Nap", "NKE"},
		[]string{"Basolateral K Leak", "Apical Na Entry"},
	)
}

func TestSetScore_RoundTrip(t *testing.T) {
	m := newTestMatrix()
	if err := m.SetScore("Kp", "Basolateral K Leak", 0.7); err != nil {
		t.Fatalf("SetScore: %v", err)
	}
	if got := m.GetScore("Kp", "Basolateral K Leak"); got != 0.7 {
		t.Fatalf("GetScore = %v, want 0.7", got)
	}
	if err := m.SetScore("Kp", "Basolateral K Leak", 0); err != nil {
		t.Fatalf("SetScore zero: %v", err)
	}
	if got := m.GetScore("Kp", "Basolateral K Leak"); got != 0 {
		t.Fatalf("GetScore after removal = %v, want 0", got)
	}
	if len(m.NonZeroEntries) != 0 {
		t.Fatalf("zero scores must not be stored: %+v", m.NonZeroEntries)
	}
}

func TestSetScore_Validation(t *testing.T) {
	m := newTestMatrix()
	if err := m.SetScore("Kp", "Basolateral K Leak", 1.5); !errors.Is(err, ErrScoreOutOfRange) {
		t.Fatalf("want ErrScoreOutOfRange, got %v", err)
	}
	if err := m.SetScore("Kp", "Basolateral K Leak", -0.1); !errors.Is(err, ErrScoreOutOfRange) {
		t.Fatalf("want ErrScoreOutOfRange, got %v", err)
	}
	if err := m.SetScore("Unknown", "Basolateral K Leak", 0.5); !errors.Is(err, ErrUnknownRow) {
		t.Fatalf("want ErrUnknownRow, got %v", err)
	}
	if err := m.SetScore("Kp", "Unknown", 0.5); !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("want ErrUnknownColumn, got %v", err)
	}
	if len(m.NonZeroEntries) != 0 {
		t.Fatalf("failed SetScore must not mutate: %+v", m.NonZeroEntries)
	}
}

func TestSetScore_SingleSelectionPerColumn(t *testing.T) {
	m := newTestMatrix()
	col := "Basolateral K Leak"
	if err := m.SetScore("Nap", col, 1.0); err != nil {
		t.Fatal(err)
	}
	if err := m.SetScore("Kp", col, 1.0); err != nil {
		t.Fatal(err)
	}
	if got := m.GetScore("Nap", col); got != 0 {
		t.Fatalf("previous selection must be evicted, got score %v", got)
	}
	row, ok := m.SelectedRow(col)
	if !ok || row != "Kp" {
		t.Fatalf("SelectedRow = %q, %v; want Kp", row, ok)
	}
}

func TestSetScore_RescoreKeepsEntryAndNeighbors(t *testing.T) {
	m := newTestMatrix()
	col := "Basolateral K Leak"
	if err := m.SetScore("Kp", col, 1.0); err != nil {
		t.Fatal(err)
	}
	if err := m.SetScore("Nap", col, 0.4); err != nil {
		t.Fatal(err)
	}
	// Lowering the selected cell keeps it present and does not touch Nap.
	if err := m.SetScore("Kp", col, 0.6); err != nil {
		t.Fatal(err)
	}
	if got := m.GetScore("Kp", col); got != 0.6 {
		t.Fatalf("rescored cell = %v, want 0.6", got)
	}
	if got := m.GetScore("Nap", col); got != 0.4 {
		t.Fatalf("neighbor cell = %v, want 0.4", got)
	}
	if _, ok := m.SelectedRow(col); ok {
		t.Fatal("no 1.0 entry should remain after rescoring below 1.0")
	}
	best, score, ok := m.BestCandidate(col)
	if !ok || best != "Kp" || score != 0.6 {
		t.Fatalf("BestCandidate = %q %v %v, want Kp 0.6 true", best, score, ok)
	}
}

func TestSetScore_InvariantUnderRandomSequences(t *testing.T) {
	m := newTestMatrix()
	rng := rand.New(rand.NewSource(1))
	scores := []float64{0, 0.2, 0.5, 0.9, 1.0}
	for i := 0; i < 500; i++ {
		row := m.Rows[rng.Intn(len(m.Rows))]
		col := m.Columns[rng.Intn(len(m.Columns))]
		if err := m.SetScore(row, col, scores[rng.Intn(len(scores))]); err != nil {
			t.Fatalf("SetScore: %v", err)
		}
		for _, c := range m.Columns {
			selected := 0
			for _, e := range m.ColumnEntries(c) {
				if e.Score == 1 {
					selected++
				}
				if e.Score <= 0 || e.Score > 1 {
					t.Fatalf("stored score out of (0,1]: %+v", e)
				}
			}
			if selected > 1 {
				t.Fatalf("column %q has %d selected rows", c, selected)
			}
		}
	}
}

func TestApplyScore_SyncsMechanismLibraryID(t *testing.T) {
	s := &BiologicalSpec{
		Matrix: newTestMatrix(),
		Mechanisms: []Mechanism{
			{ID: "Basolateral K Leak", Name: "Basolateral potassium leak"},
			{ID: "Apical Na Entry", Name: "Apical sodium entry"},
		},
	}
	if err := s.ApplyScore("Kp", "Basolateral K Leak", 0.9); err != nil {
		t.Fatal(err)
	}
	if got := s.MechanismByID("Basolateral K Leak").LibraryID; got != "" {
		t.Fatalf("library id should stay empty below 1.0, got %q", got)
	}
	if err := s.ApplyScore("Kp", "Basolateral K Leak", 1.0); err != nil {
		t.Fatal(err)
	}
	mech := s.MechanismByID("Basolateral K Leak")
	if mech.LibraryID != "Kp" {
		t.Fatalf("library id = %q, want Kp", mech.LibraryID)
	}
	if mech.MatchReason == "" {
		t.Fatal("match reason should record the override")
	}

	// Reassigning the column moves the library id to the new row.
	if err := s.ApplyScore("Nap", "Basolateral K Leak", 1.0); err != nil {
		t.Fatal(err)
	}
	if got := s.MechanismByID("Basolateral K Leak").LibraryID; got != "Nap" {
		t.Fatalf("library id = %q, want Nap", got)
	}
	if got := s.Matrix.GetScore("Kp", "Basolateral K Leak"); got != 0 {
		t.Fatalf("old selection must be evicted, got %v", got)
	}

	// Clearing the selection clears the library id.
	if err := s.ApplyScore("Nap", "Basolateral K Leak", 0); err != nil {
		t.Fatal(err)
	}
	if got := s.MechanismByID("Basolateral K Leak").LibraryID; got != "" {
		t.Fatalf("library id = %q, want empty", got)
	}
}
