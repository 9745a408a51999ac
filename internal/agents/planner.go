package agents

import (
	"context"

	"bondarchitect/internal/library"
	"bondarchitect/internal/llmtool"
	"bondarchitect/internal/spec"
	"bondarchitect/internal/state"
	"bondarchitect/internal/workflow"
)

// Planner decomposes the user's modeling request into required mechanisms
// and scores library candidates against them. When the state already
// carries a spec (refine), it is passed as seed context and the new plan is
// expected to respect the user's edits.
type Planner struct {
	llm Deps
}

func NewPlanner(deps Deps) *Planner { return &Planner{llm: deps} }

func (p *Planner) Node() state.Node { return state.NodePlanner }

type plannerInput struct {
	UserRequest string                          `json:"user_request"`
	SeedSpec    *spec.BiologicalSpec            `json:"seed_spec,omitempty"`
	Library     map[string]library.LibraryModel `json:"library"`
}

type plannerMechanism struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Type             string   `json:"type" prompt:"optional"`
	MatchReason      string   `json:"match_reason" prompt:"optional"`
	ConnectionPoints []string `json:"connection_points" prompt:"optional"`
}

type plannerMatch struct {
	LibraryID   string  `json:"library_id"`
	MechanismID string  `json:"mechanism_id"`
	Score       float64 `json:"score"`
}

type plannerResponse struct {
	ModelName         string             `json:"model_name" prompt_desc:"short display name for the model"`
	Explanation       string             `json:"explanation" prompt_desc:"plain-language summary of the decomposition"`
	NextStepContext   string             `json:"next_step_context" prompt:"optional" prompt_desc:"instruction for the retrieval stage"`
	MermaidSource     string             `json:"mermaid_source" prompt:"optional" prompt_desc:"mermaid flowchart of the model topology"`
	Domains           []string           `json:"domains" prompt:"optional" prompt_desc:"physical domains involved"`
	Mechanisms        []plannerMechanism `json:"mechanisms" prompt_desc:"required physical sub-processes"`
	Matches           []plannerMatch     `json:"matches" prompt:"optional" prompt_desc:"confidence scores in (0,1] between library models and mechanisms; 1.0 means a certain assignment"`
	MissingComponents []string           `json:"missing_components" prompt:"optional" prompt_desc:"mechanisms with no plausible library candidate"`
	Thoughts          string             `json:"thoughts" prompt:"optional" prompt_desc:"reasoning behind the decomposition"`
	ReportMarkdown    string             `json:"report_markdown" prompt_desc:"human-readable planning report"`
}

func (p *Planner) Run(ctx context.Context, st *state.AgentState) (workflow.StageOutcome, error) {
	prompt := llmtool.StructuredPromptSpec{
		Purpose: "Decompose a biological modeling request into the physical mechanisms a bond-graph model needs, and score library sub-models against each mechanism.",
		Background: "You are the architect of a bond-graph/CellML model composition system. " +
			"The INPUT lists the user's request and the registry of available library sub-models. " +
			"When a seed_spec is present, the user has edited a previous plan; keep their assignments and naming unless the request contradicts them.",
		OutputFields: llmtool.MustFieldsFromStruct(plannerResponse{}),
		Rules: []string{
			"Mechanism ids must be unique, human-meaningful names.",
			"Score a (library_id, mechanism_id) pair only when the library model plausibly implements the mechanism.",
			"Use score 1.0 only for certain assignments; at most one per mechanism.",
			"List mechanisms with no candidate under missing_components.",
		},
	}
	resp, err := generate[plannerResponse](ctx, p.llm.LLM, prompt, plannerInput{
		UserRequest: st.UserRequest,
		SeedSpec:    st.Spec,
		Library:     p.llm.Library.All(),
	})
	if err != nil {
		return workflow.StageOutcome{}, err
	}
	if err := requireText("model_name", resp.ModelName); err != nil {
		return workflow.StageOutcome{}, err
	}
	if len(resp.Mechanisms) == 0 {
		return workflow.StageOutcome{}, schemaErrf("planner returned no mechanisms")
	}

	built, err := p.buildSpec(resp)
	if err != nil {
		return workflow.StageOutcome{}, err
	}
	st.Spec = built
	st.PlannerThoughts = resp.Thoughts
	return workflow.StageOutcome{Report: resp.ReportMarkdown}, nil
}

// buildSpec converts the raw planner response into a consistent
// BiologicalSpec: the matrix row universe is the full library, the column
// universe the returned mechanisms, and every score passes SetScore so the
// single-selection invariant holds from the start.
func (p *Planner) buildSpec(resp *plannerResponse) (*spec.BiologicalSpec, error) {
	cols := make([]string, 0, len(resp.Mechanisms))
	mechs := make([]spec.Mechanism, 0, len(resp.Mechanisms))
	for _, m := range resp.Mechanisms {
		if err := requireText("mechanisms[].id", m.ID); err != nil {
			return nil, err
		}
		cols = append(cols, m.ID)
		mechs = append(mechs, spec.Mechanism{
			ID:               m.ID,
			Name:             m.Name,
			Type:             m.Type,
			MatchReason:      m.MatchReason,
			ConnectionPoints: m.ConnectionPoints,
		})
	}

	built := &spec.BiologicalSpec{
		ModelName:         resp.ModelName,
		Explanation:       resp.Explanation,
		NextStepContext:   resp.NextStepContext,
		Matrix:            spec.NewMatchMatrix(p.llm.Library.IDs(), cols),
		MermaidSource:     resp.MermaidSource,
		Domains:           resp.Domains,
		Mechanisms:        mechs,
		MissingComponents: resp.MissingComponents,
	}
	for _, match := range resp.Matches {
		if match.Score == 0 {
			continue
		}
		if err := built.Matrix.SetScore(match.LibraryID, match.MechanismID, match.Score); err != nil {
			return nil, schemaErrf("planner match (%s, %s, %v): %v", match.LibraryID, match.MechanismID, match.Score, err)
		}
	}
	built.Normalize()
	return built, nil
}
