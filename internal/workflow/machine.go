package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"bondarchitect/internal/spec"
	"bondarchitect/internal/state"
)

// StageAgent performs the single external call of one workflow stage and,
// on success, writes the stage's artifacts into the given state.
type StageAgent interface {
	Node() state.Node
	Run(ctx context.Context, st *state.AgentState) (StageOutcome, error)
}

// StageOutcome is what a successful stage reports back to the machine.
type StageOutcome struct {
	// Report is appended to the project message log.
	Report string
	// Confirmed is set by the Analyst: true once the simulation is
	// judged valid, false when the review demands another pass.
	Confirmed bool
}

// Config holds the operational parameters of the machine. Retry bounds and
// chaining behavior are configuration, not algorithm.
type Config struct {
	// AnalystRetryBudget bounds automatic analyst re-entries after
	// non-terminal failures.
	AnalystRetryBudget int
	// AutoChainComposer advances Composer straight into Researcher
	// without a human pause.
	AutoChainComposer bool
	// AutoChainAnalystLoop sends a failed analyst verdict back through
	// Researcher automatically while budget remains.
	AutoChainAnalystLoop bool
}

func (c Config) withDefaults() Config {
	if c.AnalystRetryBudget <= 0 {
		c.AnalystRetryBudget = 2
	}
	return c
}

// Machine drives one project's AgentState through the stage sequence.
// It is stateless across calls; all progress lives in the AgentState.
type Machine struct {
	agents map[state.Node]StageAgent
	cfg    Config
}

// New builds a machine over the given stage agents.
func New(cfg Config, agents ...StageAgent) (*Machine, error) {
	m := &Machine{agents: make(map[state.Node]StageAgent, len(agents)), cfg: cfg.withDefaults()}
	for _, a := range agents {
		if _, dup := m.agents[a.Node()]; dup {
			return nil, fmt.Errorf("workflow: duplicate agent for node %s", a.Node())
		}
		m.agents[a.Node()] = a
	}
	for _, n := range []state.Node{state.NodePlanner, state.NodeRetriever, state.NodeComposer, state.NodeResearcher, state.NodeAnalyst} {
		if _, ok := m.agents[n]; !ok {
			return nil, fmt.Errorf("workflow: missing agent for node %s", n)
		}
	}
	return m, nil
}

// pausesAfter reports whether the machine must stop for human approval
// once the given stage has produced its output.
func (m *Machine) pausesAfter(n state.Node) bool {
	switch n {
	case state.NodeComposer:
		return !m.cfg.AutoChainComposer
	case state.NodeAnalyst:
		// Terminal handling is explicit in run.
		return false
	default:
		return true
	}
}

// Start runs the Planner once on a fresh state.
func (m *Machine) Start(ctx context.Context, st *state.AgentState) error {
	st.AppendMessage("user", st.UserRequest)
	return m.run(ctx, st, state.NodePlanner)
}

// Resume re-enters the machine. A paused project advances past the approved
// stage; an errored project re-runs its current stage; a completed project
// is a no-op.
func (m *Machine) Resume(ctx context.Context, st *state.AgentState) error {
	if st.Terminal() {
		return nil
	}
	switch st.Status {
	case state.StatusPaused:
		next := st.CurrentNode.Next()
		if st.CurrentNode == state.NodeAnalyst {
			// An analyst pause means the review demanded another pass;
			// the loop re-enters through research.
			next = state.NodeResearcher
		}
		return m.run(ctx, st, next)
	case state.StatusError:
		return m.run(ctx, st, st.CurrentNode)
	case state.StatusIdle:
		return m.run(ctx, st, st.CurrentNode)
	default:
		return NewValidationError("cannot resume while status is %s", st.Status)
	}
}

// Refine re-invokes the Planner with a human-edited spec as seed context
// and clears every downstream artifact.
func (m *Machine) Refine(ctx context.Context, st *state.AgentState, edited *spec.BiologicalSpec) error {
	if edited == nil {
		return NewValidationError("refine requires an edited spec")
	}
	edited.Normalize()
	st.Spec = edited
	st.ResetDownstream()
	st.AppendMessage("user", "Requested plan refinement.")
	return m.run(ctx, st, state.NodePlanner)
}

// run executes stages starting at node until a pause, error, or terminal
// state. Stage work happens on a deep copy; only a successful stage is
// committed, so a failure never leaves a partial artifact behind.
func (m *Machine) run(ctx context.Context, st *state.AgentState, node state.Node) error {
	transportRetried := false
	// analystLoop marks a researcher pass entered from an automatic analyst
	// loop; it must chain back into the analyst instead of pausing.
	analystLoop := false
	for node != state.NodeComplete {
		agent := m.agents[node]
		st.Status = state.StatusRunning
		st.CurrentNode = node
		st.Touch()

		work, err := cloneState(st)
		if err != nil {
			return err
		}
		outcome, err := agent.Run(ctx, work)
		if err != nil {
			classified := classifyCallError(string(node), err)
			if node == state.NodeAnalyst {
				st.AnalystAttempts++
			}
			if isTransport(classified) && !transportRetried && m.analystBudgetLeft(st, node) {
				transportRetried = true
				log.Printf("stage %s transport failure, retrying once: %v", node, err)
				st.AppendMessage("system", fmt.Sprintf("%s failed (transient), retrying: %v", node, err))
				continue
			}
			st.Status = state.StatusError
			st.AppendMessage("system", classified.Error())
			if node == state.NodeAnalyst && st.AnalystAttempts >= m.cfg.AnalystRetryBudget {
				st.AppendMessage("system", ErrRetryBudgetExceeded.Error())
			}
			st.Touch()
			return classified
		}

		// Commit the successful stage wholesale.
		*st = *work
		st.AppendMessage("agent", outcome.Report)
		st.Touch()
		transportRetried = false

		if node == state.NodeAnalyst {
			next, err := m.afterAnalyst(st, outcome)
			if err != nil {
				return err
			}
			if next == "" {
				return nil
			}
			node = next
			analystLoop = next == state.NodeResearcher
			continue
		}

		if m.pausesAfter(node) && !(analystLoop && node == state.NodeResearcher) {
			st.Status = state.StatusPaused
			st.Touch()
			return nil
		}
		node = node.Next()
	}
	return nil
}

// afterAnalyst applies the terminal/loop rules: a confirmed review completes
// the workflow, a failed one loops through Researcher while budget remains.
// It returns the next node to run, or "" when the machine stops here.
func (m *Machine) afterAnalyst(st *state.AgentState, outcome StageOutcome) (state.Node, error) {
	if outcome.Confirmed {
		st.CurrentNode = state.NodeComplete
		st.Status = state.StatusSuccess
		st.Touch()
		return "", nil
	}
	st.AnalystAttempts++
	if st.AnalystAttempts >= m.cfg.AnalystRetryBudget {
		st.Status = state.StatusError
		st.AppendMessage("system", ErrRetryBudgetExceeded.Error())
		st.Touch()
		return "", ErrRetryBudgetExceeded
	}
	if m.cfg.AutoChainAnalystLoop {
		return state.NodeResearcher, nil
	}
	st.Status = state.StatusPaused
	st.Touch()
	return "", nil
}

// analystBudgetLeft gates the automatic transport retry for the analyst,
// whose failures are counted against the retry budget.
func (m *Machine) analystBudgetLeft(st *state.AgentState, node state.Node) bool {
	if node != state.NodeAnalyst {
		return true
	}
	return st.AnalystAttempts < m.cfg.AnalystRetryBudget
}

// cloneState deep-copies the state through its JSON form. Whole-state
// granularity keeps commit-on-success trivially atomic.
func cloneState(st *state.AgentState) (*state.AgentState, error) {
	b, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("workflow: clone state: %w", err)
	}
	var out state.AgentState
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("workflow: clone state: %w", err)
	}
	return &out, nil
}
