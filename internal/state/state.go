package state

import (
	"strings"
	"time"

	"bondarchitect/internal/spec"
)

// Node identifies a workflow stage.
type Node string

const (
	NodePlanner    Node = "planner"
	NodeRetriever  Node = "retriever"
	NodeComposer   Node = "composer"
	NodeResearcher Node = "researcher"
	NodeAnalyst    Node = "analyst"
	NodeComplete   Node = "complete"
)

// Next returns the successor stage in the linear sequence.
// The successor of NodeComplete is NodeComplete.
func (n Node) Next() Node {
	switch n {
	case NodePlanner:
		return NodeRetriever
	case NodeRetriever:
		return NodeComposer
	case NodeComposer:
		return NodeResearcher
	case NodeResearcher:
		return NodeAnalyst
	case NodeAnalyst:
		return NodeComplete
	default:
		return NodeComplete
	}
}

// Valid reports whether n is one of the known stages.
func (n Node) Valid() bool {
	switch n {
	case NodePlanner, NodeRetriever, NodeComposer, NodeResearcher, NodeAnalyst, NodeComplete:
		return true
	}
	return false
}

// Status is the orthogonal run status of a project.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusError   Status = "error"
	StatusSuccess Status = "success"
)

// Message is one entry of the append-only project log.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// AgentState is the full mutable record of one project's progress.
// It is persisted as a whole; partial writes are never committed.
type AgentState struct {
	ProjectName  string `json:"project_name"`
	ProjectNotes string `json:"project_notes"`
	UserRequest  string `json:"user_request"`

	Messages []Message `json:"messages"`

	CurrentNode Node   `json:"currentNode"`
	Status      Status `json:"status"`

	// Stage artifacts. A slot is nil/empty until its stage has succeeded.
	Spec             *spec.BiologicalSpec `json:"spec,omitempty"`
	PhysicistOutput  *PhysicistOutput     `json:"physicist_output,omitempty"`
	CuratorOutput    *CuratorOutput       `json:"curator_output,omitempty"`
	GeneratedCode    string               `json:"generated_code,omitempty"`
	ComposerLogs     string               `json:"composer_logs,omitempty"`
	CompositeModel   *CompositeModel      `json:"composite_model,omitempty"`
	SimulationReport string               `json:"simulation_report,omitempty"`
	UnitAuditLog     []string             `json:"unit_audit_log,omitempty"`

	PlannerThoughts   string `json:"planner_thoughts,omitempty"`
	PhysicistThoughts string `json:"physicist_thoughts,omitempty"`
	ComposerThoughts  string `json:"composer_thoughts,omitempty"`
	CuratorThoughts   string `json:"curator_thoughts,omitempty"`
	AnalystThoughts   string `json:"analyst_thoughts,omitempty"`

	AnalystAttempts int `json:"analyst_attempts"`

	LastUpdated int64 `json:"lastUpdated"`
}

// PhysicistOutput lists components the Physicist derived theoretically
// because no library model covers the mechanism.
type PhysicistOutput struct {
	GeneratedComponents []GeneratedComponent `json:"generated_components"`
}

// GeneratedComponent is a theoretically derived sub-model.
type GeneratedComponent struct {
	ID                  string             `json:"id"`
	Description         string             `json:"description"`
	Ports               []string           `json:"ports,omitempty"`
	Parameters          map[string]float64 `json:"parameters,omitempty"`
	StructuredEquations []string           `json:"structured_equations,omitempty"`
	Variables           []string           `json:"variables,omitempty"`
}

// CompositeModel is the stitched bond-graph model produced by the Composer.
type CompositeModel struct {
	Name          string         `json:"name"`
	MermaidSource string         `json:"mermaid,omitempty"`
	Nodes         []ModelNode    `json:"nodes,omitempty"`
	Bonds         []ModelBond    `json:"bonds,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// ModelNode is one element of the composite bond graph.
type ModelNode struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Source     string             `json:"source,omitempty"`
	Ports      []string           `json:"ports,omitempty"`
	Parameters map[string]float64 `json:"parameters,omitempty"`
}

// ModelBond connects two node ports.
type ModelBond struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// CuratorOutput is the parameter-research result table plus notes.
type CuratorOutput struct {
	Parameters []ParameterEvidence `json:"parameters"`
	Summary    string              `json:"summary,omitempty"`
}

// ParameterEvidence records the provenance of one curated parameter value.
type ParameterEvidence struct {
	Name       string  `json:"param_name"`
	Value      float64 `json:"value"`
	Units      string  `json:"units"`
	Citation   string  `json:"source_citation,omitempty"`
	Confidence string  `json:"confidence,omitempty"`
	Notes      string  `json:"notes,omitempty"`
}

// New returns the initial state for a freshly started project.
func New(projectName, userRequest string) *AgentState {
	return &AgentState{
		ProjectName: strings.TrimSpace(projectName),
		UserRequest: strings.TrimSpace(userRequest),
		CurrentNode: NodePlanner,
		Status:      StatusIdle,
		LastUpdated: time.Now().UnixMilli(),
	}
}

// AppendMessage appends one role-tagged entry to the log.
// Insertion order is chronological and never rewritten.
func (s *AgentState) AppendMessage(role, content string) {
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Touch bumps LastUpdated, keeping it monotonically non-decreasing.
func (s *AgentState) Touch() {
	now := time.Now().UnixMilli()
	if now <= s.LastUpdated {
		now = s.LastUpdated + 1
	}
	s.LastUpdated = now
}

// Terminal reports whether the workflow has finished successfully.
func (s *AgentState) Terminal() bool {
	return s.CurrentNode == NodeComplete && s.Status == StatusSuccess
}

// ResetDownstream clears every artifact produced after the Planner stage.
// Used by refine, which re-seeds the plan and forces regeneration.
func (s *AgentState) ResetDownstream() {
	s.PhysicistOutput = nil
	s.CuratorOutput = nil
	s.GeneratedCode = ""
	s.ComposerLogs = ""
	s.CompositeModel = nil
	s.SimulationReport = ""
	s.UnitAuditLog = nil
	s.PhysicistThoughts = ""
	s.ComposerThoughts = ""
	s.CuratorThoughts = ""
	s.AnalystThoughts = ""
	s.AnalystAttempts = 0
}
