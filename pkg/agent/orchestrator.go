package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/trc-ai/riskgraph/internal/util"
	"github.com/trc-ai/riskgraph/pkg/ai"
	"github.com/trc-ai/riskgraph/pkg/logger"
	"github.com/trc-ai/riskgraph/pkg/search"
	"github.com/trc-ai/riskgraph/pkg/store"
)

const (
	defaultMaxIterations = 10
	defaultWallClockSec  = 120

	decisionRetries = 3
	// observationLimit caps how much tool output is echoed back into the
	// transcript per cycle.
	observationLimit = 2000
)

// Decision is the model's answer for one cycle: exactly one tool call or the
// final answer.
type Decision struct {
	Tool        string         `json:"tool,omitempty" jsonschema_description:"Name of the single tool to invoke next. Empty when giving the final answer."`
	Arguments   map[string]any `json:"arguments,omitempty" jsonschema_description:"Arguments for the tool, matching its parameter schema."`
	FinalAnswer string         `json:"final_answer,omitempty" jsonschema_description:"Complete final answer to the user's question. Empty when invoking a tool."`
}

// Result is the outcome of one agent run.
type Result struct {
	Answer     string      `json:"answer"`
	Trace      []TraceStep `json:"trace"`
	Iterations int         `json:"iterations"`
	Truncated  bool        `json:"truncated"`
	SessionID  string      `json:"session_id"`
}

// Orchestrator drives the agent loop against one graph. It is safe for
// concurrent use: every run gets its own state and tool bindings.
type Orchestrator struct {
	client   ai.ReasoningClient
	storage  store.GraphStorage
	searcher search.DocumentSearcher
	external search.DocumentSearcher

	maxIterations int
	wallClock     time.Duration
	retryBase     time.Duration
}

// NewOrchestrator wires the loop to the reasoning model and the graph. The
// external searcher may be nil. Limits are tunable via AGENT_MAX_ITERATIONS
// and AGENT_MAX_SECONDS.
func NewOrchestrator(
	client ai.ReasoningClient,
	storage store.GraphStorage,
	searcher search.DocumentSearcher,
	external search.DocumentSearcher,
) *Orchestrator {
	return &Orchestrator{
		client:        client,
		storage:       storage,
		searcher:      searcher,
		external:      external,
		maxIterations: util.GetEnvNumeric[int]("AGENT_MAX_ITERATIONS", defaultMaxIterations),
		wallClock:     time.Duration(util.GetEnvNumeric[int]("AGENT_MAX_SECONDS", defaultWallClockSec)) * time.Second,
		retryBase:     time.Second,
	}
}

// Run executes the loop for one question. It terminates on a final answer,
// on the iteration ceiling, or on the wall-clock ceiling; the latter two
// return a best-effort answer flagged as truncated. Only a fatal model
// failure returns an error.
func (o *Orchestrator) Run(ctx context.Context, question string) (*Result, error) {
	state := NewState()
	registry, err := NewRegistry(NewToolkit(o.storage, o.searcher, o.external, state).Tools()...)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, o.wallClock)
	defer cancel()

	system := fmt.Sprintf(ai.AgentSystemPrompt, registry.Describe())
	messages := []ai.ChatMessage{{Role: "user", Message: question}}

	for state.Iteration < o.maxIterations {
		state.Iteration++
		state.Phase = PhasePlanning

		decision, err := o.decide(runCtx, system, messages)
		if err != nil {
			if runCtx.Err() != nil && ctx.Err() == nil {
				logger.Warn("agent run hit wall-clock ceiling",
					"session", state.SessionID, "iteration", state.Iteration)
				break
			}
			return nil, fmt.Errorf("agent decision failed: %w", err)
		}

		if decision.FinalAnswer != "" {
			state.Phase = PhaseTerminated
			return &Result{
				Answer:     decision.FinalAnswer,
				Trace:      state.Trace(),
				Iterations: state.Iteration,
				SessionID:  state.SessionID,
			}, nil
		}

		state.Phase = PhaseActing
		argsJSON := encodeArguments(decision.Arguments)

		var observation string
		failed := false
		switch {
		case decision.Tool == "":
			observation = "The decision named neither a tool nor a final answer. Choose exactly one."
			failed = true
		default:
			result, err := registry.Invoke(runCtx, decision.Tool, argsJSON)
			if err != nil {
				if runCtx.Err() != nil && ctx.Err() == nil {
					state.Record(decision.Tool, argsJSON, "aborted: wall-clock ceiling", true)
					logger.Warn("agent run hit wall-clock ceiling during tool call",
						"session", state.SessionID, "tool", decision.Tool)
					goto truncated
				}
				// Tool failures are observations, not run failures; the
				// model is expected to adjust its plan.
				observation = "tool error: " + err.Error()
				failed = true
			} else {
				observation = result
			}
		}

		state.Phase = PhaseObserving
		state.Record(decision.Tool, argsJSON, observation, failed)
		logger.Debug("agent cycle",
			"session", state.SessionID,
			"iteration", state.Iteration,
			"tool", decision.Tool,
			"failed", failed,
		)

		messages = append(messages,
			ai.ChatMessage{Role: "assistant", Message: renderDecision(decision, argsJSON)},
			ai.ChatMessage{Role: "user", Message: fmt.Sprintf(
				"Observation:\n%s", util.TruncateText(observation, observationLimit))},
		)
	}

truncated:
	state.Truncated = true
	state.Phase = PhaseTerminated
	logger.Warn("agent run truncated",
		"session", state.SessionID, "iterations", state.Iteration, "reason", ErrIterationLimit)

	return &Result{
		Answer:     o.synthesize(ctx, system, messages),
		Trace:      state.Trace(),
		Iterations: state.Iteration,
		Truncated:  true,
		SessionID:  state.SessionID,
	}, nil
}

func (o *Orchestrator) decide(ctx context.Context, system string, messages []ai.ChatMessage) (Decision, error) {
	return util.RetryBackoff(ctx, decisionRetries, o.retryBase, ai.IsRetryable,
		func(ctx context.Context) (Decision, error) {
			var decision Decision
			err := o.client.GenerateChatWithFormat(
				ctx,
				"agent_decision",
				"One agent cycle decision: a single tool invocation or the final answer.",
				messages,
				&decision,
				ai.WithSystemPrompts(system),
			)
			return decision, err
		})
}

// synthesize asks for a final answer from whatever the transcript holds when
// a ceiling forced termination. Best effort: an empty answer is acceptable.
func (o *Orchestrator) synthesize(ctx context.Context, system string, messages []ai.ChatMessage) string {
	synthCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	messages = append(messages, ai.ChatMessage{
		Role:    "user",
		Message: "The step limit is reached. Give your best final answer from the observations so far.",
	})
	answer, err := o.client.GenerateChat(synthCtx, messages, ai.WithSystemPrompts(system))
	if err != nil {
		logger.Warn("final synthesis after truncation failed", "error", err)
		return ""
	}
	return answer
}

func encodeArguments(arguments map[string]any) string {
	if len(arguments) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(arguments)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func renderDecision(decision Decision, argsJSON string) string {
	return fmt.Sprintf(`{"tool": %q, "arguments": %s}`, decision.Tool, argsJSON)
}
