// Package agent runs the bounded tool-orchestration loop: the reasoning
// model plans, the orchestrator executes graph tools, and observations feed
// the next cycle until a final answer or a hard limit.
package agent

import (
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/trc-ai/riskgraph/internal/util"
)

// Phase is the orchestrator's position in its cycle.
type Phase string

const (
	PhasePlanning   Phase = "PLANNING"
	PhaseActing     Phase = "ACTING"
	PhaseObserving  Phase = "OBSERVING"
	PhaseTerminated Phase = "TERMINATED"
)

// ToolCall is one executed tool with its outcome, kept in invocation order.
type ToolCall struct {
	Order  int    `json:"order"`
	Tool   string `json:"tool"`
	Args   string `json:"args"`
	Result string `json:"result"`
	Failed bool   `json:"failed"`
}

// TraceStep is the consumer-facing form of one reasoning step.
type TraceStep struct {
	Tool          string `json:"tool"`
	Args          string `json:"args"`
	ResultSummary string `json:"result_summary"`
}

// State is the private working memory of one agent run. It is never shared
// between runs; concurrent queries each get their own.
type State struct {
	SessionID  string
	Phase      Phase
	Iteration  int
	ToolCalls  []ToolCall
	Discovered map[string]bool
	Truncated  bool
	StartedAt  time.Time
}

func NewState() *State {
	return &State{
		SessionID:  gonanoid.Must(),
		Phase:      PhasePlanning,
		Discovered: make(map[string]bool),
		StartedAt:  time.Now(),
	}
}

// Record appends a completed tool call to the log.
func (s *State) Record(tool, args, result string, failed bool) {
	s.ToolCalls = append(s.ToolCalls, ToolCall{
		Order:  len(s.ToolCalls) + 1,
		Tool:   tool,
		Args:   args,
		Result: result,
		Failed: failed,
	})
}

// Discover marks an entity id as seen during this run.
func (s *State) Discover(entityIDs ...string) {
	for _, id := range entityIDs {
		s.Discovered[id] = true
	}
}

// Trace renders the tool call log for the API response, with results
// shortened to summaries.
func (s *State) Trace() []TraceStep {
	trace := make([]TraceStep, 0, len(s.ToolCalls))
	for _, call := range s.ToolCalls {
		trace = append(trace, TraceStep{
			Tool:          call.Tool,
			Args:          call.Args,
			ResultSummary: util.TruncateText(util.NormalizeSpace(call.Result), 200),
		})
	}
	return trace
}
