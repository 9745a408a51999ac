package agents

import (
	"context"

	"bondarchitect/internal/llmtool"
	"bondarchitect/internal/spec"
	"bondarchitect/internal/state"
	"bondarchitect/internal/workflow"
)

// Analyst critically reviews the finished model and code. Its verdict
// decides whether the workflow terminates or loops back through research.
type Analyst struct {
	deps Deps
}

func NewAnalyst(deps Deps) *Analyst { return &Analyst{deps: deps} }

func (a *Analyst) Node() state.Node { return state.NodeAnalyst }

type analystInput struct {
	UserRequest   string               `json:"user_request"`
	Spec          *spec.BiologicalSpec `json:"spec"`
	GeneratedCode string               `json:"generated_code"`
	Curator       *state.CuratorOutput `json:"curator_output"`
	Attempt       int                  `json:"attempt"`
}

type analystResponse struct {
	Verdict        string `json:"verdict" prompt_desc:"\"success\" when the model satisfies the request, else \"failure\""`
	ReportMarkdown string `json:"report_markdown" prompt_desc:"markdown simulation review report"`
	Thoughts       string `json:"thoughts" prompt:"optional"`
}

func (a *Analyst) Run(ctx context.Context, st *state.AgentState) (workflow.StageOutcome, error) {
	if st.GeneratedCode == "" {
		return workflow.StageOutcome{}, schemaErrf("analyst requires generated code")
	}

	prompt := llmtool.StructuredPromptSpec{
		Purpose: "Critically review the composed model, its parameterization and its simulation code against the original request.",
		Background: "Check mechanism coverage against the spec, dimensional consistency of the equations, and whether " +
			"the code is structurally runnable. The attempt counter tells you how many reviews already failed.",
		OutputFields: llmtool.MustFieldsFromStruct(analystResponse{}),
		Rules: []string{
			"Return verdict \"success\" only when every spec mechanism is covered and no blocking defect remains.",
			"On failure, the report must name the defects precisely enough for the researcher to act on them.",
		},
	}
	resp, err := generate[analystResponse](ctx, a.deps.LLM, prompt, analystInput{
		UserRequest:   st.UserRequest,
		Spec:          st.Spec,
		GeneratedCode: st.GeneratedCode,
		Curator:       st.CuratorOutput,
		Attempt:       st.AnalystAttempts + 1,
	})
	if err != nil {
		return workflow.StageOutcome{}, err
	}
	if resp.Verdict != "success" && resp.Verdict != "failure" {
		return workflow.StageOutcome{}, schemaErrf("analyst verdict %q is not success/failure", resp.Verdict)
	}
	if err := requireText("report_markdown", resp.ReportMarkdown); err != nil {
		return workflow.StageOutcome{}, err
	}

	st.SimulationReport = resp.ReportMarkdown
	st.AnalystThoughts = resp.Thoughts
	return workflow.StageOutcome{
		Report:    "Analyst review complete.",
		Confirmed: resp.Verdict == "success",
	}, nil
}
