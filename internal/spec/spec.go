package spec

import (
	"fmt"
	"strings"
)

// BiologicalSpec is the Architect/Planner output: the decomposition of a
// natural-language modeling request into required mechanisms plus the
// candidate-assignment matrix over the model library.
type BiologicalSpec struct {
	ModelName         string      `json:"model_name"`
	Explanation       string      `json:"explanation,omitempty"`
	NextStepContext   string      `json:"next_step_context,omitempty"`
	Matrix            MatchMatrix `json:"match_matrix"`
	MermaidSource     string      `json:"mermaid_source,omitempty"`
	Domains           []string    `json:"domains,omitempty"`
	Mechanisms        []Mechanism `json:"mechanisms"`
	MissingComponents []string    `json:"missing_components,omitempty"`
}

// Mechanism identifies one required physical sub-process of the model.
// LibraryID is non-empty exactly when the match matrix holds a score-1.0
// entry in this mechanism's column.
type Mechanism struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Type             string   `json:"type,omitempty"`
	LibraryID        string   `json:"library_id,omitempty"`
	MatchReason      string   `json:"match_reason,omitempty"`
	ConnectionPoints []string `json:"connection_points,omitempty"`
}

// MechanismByID returns a pointer into Mechanisms, or nil.
func (s *BiologicalSpec) MechanismByID(id string) *Mechanism {
	id = strings.TrimSpace(id)
	for i := range s.Mechanisms {
		if s.Mechanisms[i].ID == id {
			return &s.Mechanisms[i]
		}
	}
	return nil
}

// ApplyScore records a user (or planner) confidence score and keeps the
// dependent mechanism consistent: LibraryID tracks the column's sole 1.0
// entry, and the match reason records the override.
func (s *BiologicalSpec) ApplyScore(row, col string, score float64) error {
	if err := s.Matrix.SetScore(row, col, score); err != nil {
		return err
	}
	mech := s.MechanismByID(col)
	if mech == nil {
		return nil
	}
	selected, ok := s.Matrix.SelectedRow(col)
	switch {
	case ok && mech.LibraryID != selected:
		mech.LibraryID = selected
		mech.MatchReason = fmt.Sprintf("User override: assigned %s", selected)
	case !ok && mech.LibraryID != "":
		mech.LibraryID = ""
		mech.MatchReason = "User override: assignment cleared"
	}
	return nil
}

// Normalize trims identifiers and re-syncs every mechanism's LibraryID with
// the matrix. Called after decoding a planner response or a user edit.
func (s *BiologicalSpec) Normalize() {
	s.ModelName = strings.TrimSpace(s.ModelName)
	for i := range s.Mechanisms {
		s.Mechanisms[i].ID = strings.TrimSpace(s.Mechanisms[i].ID)
		if selected, ok := s.Matrix.SelectedRow(s.Mechanisms[i].ID); ok {
			s.Mechanisms[i].LibraryID = selected
		} else {
			s.Mechanisms[i].LibraryID = ""
		}
	}
}
