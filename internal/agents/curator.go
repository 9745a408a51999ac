package agents

import (
	"context"

	"bondarchitect/internal/llmtool"
	"bondarchitect/internal/state"
	"bondarchitect/internal/workflow"
)

// Curator (the researcher stage) replaces placeholder parameter values in
// the generated code with literature-backed estimates and records the
// evidence for each one.
type Curator struct {
	deps Deps
}

func NewCurator(deps Deps) *Curator { return &Curator{deps: deps} }

func (c *Curator) Node() state.Node { return state.NodeResearcher }

type curatorInput struct {
	UserRequest    string                `json:"user_request"`
	GeneratedCode  string                `json:"generated_code"`
	CompositeModel *state.CompositeModel `json:"composite_model"`
}

type curatorResponse struct {
	Parameters     []state.ParameterEvidence `json:"parameters" prompt_desc:"curated parameter values with units, citation and confidence"`
	RevisedCode    string                    `json:"revised_code" prompt_desc:"the simulation code with curated values substituted"`
	Summary        string                    `json:"summary" prompt:"optional"`
	Thoughts       string                    `json:"thoughts" prompt:"optional"`
	ReportMarkdown string                    `json:"report_markdown"`
}

func (c *Curator) Run(ctx context.Context, st *state.AgentState) (workflow.StageOutcome, error) {
	if st.GeneratedCode == "" || st.CompositeModel == nil {
		return workflow.StageOutcome{}, schemaErrf("curator requires composer output")
	}

	prompt := llmtool.StructuredPromptSpec{
		Purpose: "Research physiological parameter values for the composed model and substitute them into the simulation code.",
		Background: "Each parameter needs a value, units, a source citation and a confidence grade " +
			"(High, Medium, or Low/Prior). Keep the code structure unchanged; only substitute values.",
		OutputFields: llmtool.MustFieldsFromStruct(curatorResponse{}),
		Rules: []string{
			"Never invent citations; use Low/Prior confidence when no source exists.",
			"Preserve every declared unit; convert values rather than units.",
		},
	}
	resp, err := generate[curatorResponse](ctx, c.deps.LLM, prompt, curatorInput{
		UserRequest:    st.UserRequest,
		GeneratedCode:  st.GeneratedCode,
		CompositeModel: st.CompositeModel,
	})
	if err != nil {
		return workflow.StageOutcome{}, err
	}
	if err := requireText("revised_code", resp.RevisedCode); err != nil {
		return workflow.StageOutcome{}, err
	}

	st.CuratorOutput = &state.CuratorOutput{Parameters: resp.Parameters, Summary: resp.Summary}
	st.GeneratedCode = resp.RevisedCode
	st.CuratorThoughts = resp.Thoughts
	return workflow.StageOutcome{Report: resp.ReportMarkdown}, nil
}
