package agents

import (
	"context"
	"log"

	"bondarchitect/internal/library"
	"bondarchitect/internal/llmtool"
	"bondarchitect/internal/spec"
	"bondarchitect/internal/state"
	"bondarchitect/internal/workflow"
)

// Composer stitches the assigned library models and the physicist's
// theoretical components into one composite bond-graph model plus the
// simulation code for it.
type Composer struct {
	deps Deps
}

func NewComposer(deps Deps) *Composer { return &Composer{deps: deps} }

func (c *Composer) Node() state.Node { return state.NodeComposer }

type composerInput struct {
	UserRequest string                                   `json:"user_request"`
	Spec        *spec.BiologicalSpec                     `json:"spec"`
	Library     map[string]*library.DetailedLibraryModel `json:"assigned_models"`
	Generated   []state.GeneratedComponent               `json:"generated_components"`
}

type composerResponse struct {
	CompositeModel *state.CompositeModel `json:"composite_model" prompt_desc:"the stitched bond graph with nodes, bonds and mermaid source"`
	GeneratedCode  string                `json:"generated_code" prompt_desc:"runnable simulation code for the composite model"`
	Logs           string                `json:"logs" prompt:"optional" prompt_desc:"composition engine log"`
	UnitAuditLog   []string              `json:"unit_audit_log" prompt:"optional" prompt_desc:"unit conversions performed while stitching"`
	Thoughts       string                `json:"thoughts" prompt:"optional"`
	ReportMarkdown string                `json:"report_markdown"`
}

func (c *Composer) Run(ctx context.Context, st *state.AgentState) (workflow.StageOutcome, error) {
	if st.Spec == nil || st.PhysicistOutput == nil {
		return workflow.StageOutcome{}, schemaErrf("composer requires planner and physicist output")
	}

	assigned := make(map[string]*library.DetailedLibraryModel)
	for _, m := range st.Spec.Mechanisms {
		if m.LibraryID == "" {
			continue
		}
		detail, err := c.deps.Library.Detailed(m.LibraryID)
		if err != nil {
			log.Printf("composer: detail lookup for %s failed: %v", m.LibraryID, err)
			continue
		}
		assigned[m.ID] = detail
	}

	prompt := llmtool.StructuredPromptSpec{
		Purpose: "Compose the assigned library sub-models and the generated theoretical components into one connected bond-graph model, and emit simulation code for it.",
		Background: "Connect components through the mechanisms' declared connection points. Audit unit compatibility across " +
			"every bond and record conversions in unit_audit_log.",
		OutputFields: llmtool.MustFieldsFromStruct(composerResponse{}),
		Rules: []string{
			"Every mechanism of the spec must appear as at least one node of the composite model.",
			"Bonds may only reference declared ports.",
			"The mermaid source must reflect the final composed topology.",
		},
	}
	resp, err := generate[composerResponse](ctx, c.deps.LLM, prompt, composerInput{
		UserRequest: st.UserRequest,
		Spec:        st.Spec,
		Library:     assigned,
		Generated:   st.PhysicistOutput.GeneratedComponents,
	})
	if err != nil {
		return workflow.StageOutcome{}, err
	}
	if resp.CompositeModel == nil {
		return workflow.StageOutcome{}, schemaErrf("composer returned no composite model")
	}
	if err := requireText("generated_code", resp.GeneratedCode); err != nil {
		return workflow.StageOutcome{}, err
	}

	st.CompositeModel = resp.CompositeModel
	st.GeneratedCode = resp.GeneratedCode
	st.ComposerLogs = resp.Logs
	st.UnitAuditLog = resp.UnitAuditLog
	st.ComposerThoughts = resp.Thoughts
	return workflow.StageOutcome{Report: resp.ReportMarkdown}, nil
}
