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

// Physicist (the retriever stage) covers the mechanisms the library cannot:
// for every mechanism without an assigned library model it derives a
// theoretical component from first principles.
type Physicist struct {
	deps Deps
}

func NewPhysicist(deps Deps) *Physicist { return &Physicist{deps: deps} }

func (p *Physicist) Node() state.Node { return state.NodeRetriever }

type physicistInput struct {
	UserRequest string                                   `json:"user_request"`
	Spec        *spec.BiologicalSpec                     `json:"spec"`
	Unmatched   []spec.Mechanism                         `json:"unmatched_mechanisms"`
	Assigned    map[string]*library.DetailedLibraryModel `json:"assigned_models,omitempty"`
}

type physicistResponse struct {
	GeneratedComponents []state.GeneratedComponent `json:"generated_components" prompt_desc:"one theoretical component per unmatched mechanism"`
	Thoughts            string                     `json:"thoughts" prompt:"optional"`
	ReportMarkdown      string                     `json:"report_markdown"`
}

func (p *Physicist) Run(ctx context.Context, st *state.AgentState) (workflow.StageOutcome, error) {
	if st.Spec == nil {
		return workflow.StageOutcome{}, schemaErrf("physicist requires a planner spec")
	}

	var unmatched []spec.Mechanism
	assigned := make(map[string]*library.DetailedLibraryModel)
	for _, m := range st.Spec.Mechanisms {
		if m.LibraryID == "" {
			unmatched = append(unmatched, m)
			continue
		}
		detail, err := p.deps.Library.Detailed(m.LibraryID)
		if err != nil {
			// Assignment against a stale registry entry; the composer
			// still needs the remaining detail, so log and continue.
			log.Printf("physicist: detail lookup for %s failed: %v", m.LibraryID, err)
			continue
		}
		assigned[m.ID] = detail
	}

	prompt := llmtool.StructuredPromptSpec{
		Purpose: "Derive theoretical bond-graph components for mechanisms that no library sub-model implements.",
		Background: "The INPUT carries the architect's spec, the mechanisms still unmatched, and the detailed declarations " +
			"of the already-assigned library models for context. Each generated component must expose ports compatible " +
			"with the mechanism's connection points.",
		OutputFields: llmtool.MustFieldsFromStruct(physicistResponse{}),
		Rules: []string{
			"Produce exactly one component per unmatched mechanism, reusing the mechanism id.",
			"State constitutive equations symbolically in structured_equations.",
			"Leave generated_components empty when every mechanism is matched.",
		},
	}
	resp, err := generate[physicistResponse](ctx, p.deps.LLM, prompt, physicistInput{
		UserRequest: st.UserRequest,
		Spec:        st.Spec,
		Unmatched:   unmatched,
		Assigned:    assigned,
	})
	if err != nil {
		return workflow.StageOutcome{}, err
	}
	for _, c := range resp.GeneratedComponents {
		if err := requireText("generated_components[].id", c.ID); err != nil {
			return workflow.StageOutcome{}, err
		}
	}

	st.PhysicistOutput = &state.PhysicistOutput{GeneratedComponents: resp.GeneratedComponents}
	st.PhysicistThoughts = resp.Thoughts
	return workflow.StageOutcome{Report: resp.ReportMarkdown}, nil
}
