package agents

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"bondarchitect/internal/library"
	"bondarchitect/internal/llmclient"
	"bondarchitect/internal/spec"
	"bondarchitect/internal/state"
)

type fakeLLM struct {
	raw   json.RawMessage
	err   error
	input any
}

func (f *fakeLLM) Name() string { return "fake" }
func (f *fakeLLM) Close() error { return nil }

func (f *fakeLLM) GenerateJSON(_ context.Context, _ string, input any) (json.RawMessage, error) {
	f.input = input
	return f.raw, f.err
}

func testRegistry(t *testing.T) *library.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.json")
	entries := map[string]library.LibraryModel{
		"Kp_channel": {Description: "Basolateral potassium channel"},
		"Nap_pump":   {Description: "Na/K ATPase pump"},
	}
	b, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal registry: %v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write registry: %v", err)
	}
	r, err := library.Open(path)
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	return r
}

func testDeps(t *testing.T, raw string) (Deps, *fakeLLM) {
	t.Helper()
	llm := &fakeLLM{raw: json.RawMessage(raw)}
	return Deps{LLM: llm, Library: testRegistry(t)}, llm
}

func TestPlannerBuildsSpec(t *testing.T) {
	deps, _ := testDeps(t, `{
		"model_name": "Epithelial K Secretion",
		"explanation": "Two mechanisms drive transcellular potassium flux.",
		"mechanisms": [
			{"id": "K secretion", "name": "Apical potassium secretion"},
			{"id": "Na reabsorption", "name": "Basolateral sodium reabsorption"}
		],
		"matches": [
			{"library_id": "Kp_channel", "mechanism_id": "K secretion", "score": 1.0},
			{"library_id": "Nap_pump", "mechanism_id": "K secretion", "score": 0.4}
		],
		"missing_components": ["Na reabsorption"],
		"report_markdown": "## Plan\nready"
	}`)
	p := NewPlanner(deps)
	st := state.New("p", "model potassium secretion")

	outcome, err := p.Run(context.Background(), st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Report != "## Plan\nready" {
		t.Fatalf("report = %q", outcome.Report)
	}
	if st.Spec == nil || st.Spec.ModelName != "Epithelial K Secretion" {
		t.Fatalf("spec not installed: %+v", st.Spec)
	}
	if got, ok := st.Spec.Matrix.SelectedRow("K secretion"); !ok || got != "Kp_channel" {
		t.Fatalf("SelectedRow = %q/%v, want Kp_channel", got, ok)
	}
	mech := st.Spec.MechanismByID("K secretion")
	if mech == nil || mech.LibraryID != "Kp_channel" {
		t.Fatalf("mechanism assignment not synced: %+v", mech)
	}
	if unmatched := st.Spec.MechanismByID("Na reabsorption"); unmatched == nil || unmatched.LibraryID != "" {
		t.Fatalf("unmatched mechanism got an assignment: %+v", unmatched)
	}
}

func TestPlannerUnknownMatchIsPermanent(t *testing.T) {
	deps, _ := testDeps(t, `{
		"model_name": "M",
		"explanation": "x",
		"mechanisms": [{"id": "m1", "name": "n"}],
		"matches": [{"library_id": "no_such_model", "mechanism_id": "m1", "score": 0.5}],
		"report_markdown": "r"
	}`)
	st := state.New("p", "r")

	_, err := NewPlanner(deps).Run(context.Background(), st)
	if !llmclient.IsPermanent(err) {
		t.Fatalf("got %v, want permanent error", err)
	}
	if st.Spec != nil {
		t.Fatal("failed planner run must not install a spec")
	}
}

func TestPlannerNoMechanismsIsPermanent(t *testing.T) {
	deps, _ := testDeps(t, `{"model_name": "M", "explanation": "x", "mechanisms": [], "report_markdown": "r"}`)
	_, err := NewPlanner(deps).Run(context.Background(), state.New("p", "r"))
	if !llmclient.IsPermanent(err) {
		t.Fatalf("got %v, want permanent error", err)
	}
}

func TestPlannerUnknownResponseFieldIsPermanent(t *testing.T) {
	deps, _ := testDeps(t, `{"model_name": "M", "mechanisms": [{"id": "m1", "name": "n"}], "report_markdown": "r", "surprise": true}`)
	_, err := NewPlanner(deps).Run(context.Background(), state.New("p", "r"))
	if !llmclient.IsPermanent(err) {
		t.Fatalf("got %v, want permanent error", err)
	}
}

func TestPhysicistSplitsMatchedAndUnmatched(t *testing.T) {
	deps, llm := testDeps(t, `{
		"generated_components": [{"id": "Na reabsorption", "description": "derived pump", "structured_equations": ["J = L * dmu"]}],
		"report_markdown": "derived one component"
	}`)
	st := state.New("p", "r")
	st.Spec = &spec.BiologicalSpec{
		ModelName: "M",
		Mechanisms: []spec.Mechanism{
			{ID: "K secretion", LibraryID: "Kp_channel"},
			{ID: "Na reabsorption"},
		},
	}

	if _, err := NewPhysicist(deps).Run(context.Background(), st); err != nil {
		t.Fatalf("Run: %v", err)
	}

	in, ok := llm.input.(physicistInput)
	if !ok {
		t.Fatalf("input type %T", llm.input)
	}
	if len(in.Unmatched) != 1 || in.Unmatched[0].ID != "Na reabsorption" {
		t.Fatalf("unmatched = %+v", in.Unmatched)
	}
	if _, ok := in.Assigned["K secretion"]; !ok {
		t.Fatalf("assigned models = %+v", in.Assigned)
	}
	if st.PhysicistOutput == nil || len(st.PhysicistOutput.GeneratedComponents) != 1 {
		t.Fatalf("physicist output = %+v", st.PhysicistOutput)
	}
}

func TestPhysicistRequiresSpec(t *testing.T) {
	deps, _ := testDeps(t, `{}`)
	_, err := NewPhysicist(deps).Run(context.Background(), state.New("p", "r"))
	if !llmclient.IsPermanent(err) {
		t.Fatalf("got %v, want permanent error", err)
	}
}

func TestComposerWritesArtifacts(t *testing.T) {
	deps, _ := testDeps(t, `{
		"composite_model": {
			"name": "M",
			"mermaid": "graph LR; a-->b",
			"nodes": [{"id": "a", "type": "library"}, {"id": "b", "type": "generated"}],
			"bonds": [{"from": "a.out", "to": "b.in"}]
		},
		"generated_code": "import sympy",
		"logs": "stitched 2 nodes",
		"unit_audit_log": ["mV -> V on bond a.out"],
		"report_markdown": "composed"
	}`)
	st := state.New("p", "r")
	st.Spec = &spec.BiologicalSpec{ModelName: "M"}
	st.PhysicistOutput = &state.PhysicistOutput{}

	outcome, err := NewComposer(deps).Run(context.Background(), st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Report != "composed" {
		t.Fatalf("report = %q", outcome.Report)
	}
	if st.CompositeModel == nil || len(st.CompositeModel.Bonds) != 1 {
		t.Fatalf("composite model = %+v", st.CompositeModel)
	}
	if st.GeneratedCode != "import sympy" || st.ComposerLogs != "stitched 2 nodes" {
		t.Fatalf("code=%q logs=%q", st.GeneratedCode, st.ComposerLogs)
	}
	if len(st.UnitAuditLog) != 1 {
		t.Fatalf("unit audit log = %v", st.UnitAuditLog)
	}
}

func TestComposerRequiresUpstreamArtifacts(t *testing.T) {
	deps, _ := testDeps(t, `{}`)
	st := state.New("p", "r")
	st.Spec = &spec.BiologicalSpec{ModelName: "M"}
	_, err := NewComposer(deps).Run(context.Background(), st)
	if !llmclient.IsPermanent(err) {
		t.Fatalf("got %v, want permanent error", err)
	}
}

func TestCuratorSubstitutesParameters(t *testing.T) {
	deps, _ := testDeps(t, `{
		"parameters": [{"param_name": "P_K", "value": 1.2e-7, "units": "cm/s", "source_citation": "Frindt 2009", "confidence": "High"}],
		"revised_code": "P_K = 1.2e-7",
		"summary": "one parameter curated",
		"report_markdown": "curated"
	}`)
	st := state.New("p", "r")
	st.GeneratedCode = "P_K = PLACEHOLDER"
	st.CompositeModel = &state.CompositeModel{Name: "M"}

	if _, err := NewCurator(deps).Run(context.Background(), st); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.GeneratedCode != "P_K = 1.2e-7" {
		t.Fatalf("code = %q", st.GeneratedCode)
	}
	if st.CuratorOutput == nil || len(st.CuratorOutput.Parameters) != 1 || st.CuratorOutput.Parameters[0].Name != "P_K" {
		t.Fatalf("curator output = %+v", st.CuratorOutput)
	}
}

func TestAnalystVerdicts(t *testing.T) {
	cases := []struct {
		name      string
		verdict   string
		confirmed bool
		wantErr   bool
	}{
		{name: "success", verdict: "success", confirmed: true},
		{name: "failure", verdict: "failure", confirmed: false},
		{name: "invalid", verdict: "maybe", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deps, _ := testDeps(t, `{"verdict": "`+tc.verdict+`", "report_markdown": "## Review"}`)
			st := state.New("p", "r")
			st.GeneratedCode = "code"

			outcome, err := NewAnalyst(deps).Run(context.Background(), st)
			if tc.wantErr {
				if !llmclient.IsPermanent(err) {
					t.Fatalf("got %v, want permanent error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if outcome.Confirmed != tc.confirmed {
				t.Fatalf("confirmed = %v, want %v", outcome.Confirmed, tc.confirmed)
			}
			if st.SimulationReport != "## Review" {
				t.Fatalf("report = %q", st.SimulationReport)
			}
		})
	}
}

func TestAnalystRequiresGeneratedCode(t *testing.T) {
	deps, _ := testDeps(t, `{}`)
	_, err := NewAnalyst(deps).Run(context.Background(), state.New("p", "r"))
	if !llmclient.IsPermanent(err) {
		t.Fatalf("got %v, want permanent error", err)
	}
}
