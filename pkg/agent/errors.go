package agent

import (
	"errors"
	"fmt"
)

// ErrIterationLimit marks a run that hit the iteration or wall-clock ceiling
// before the model gave a final answer. The run still returns a best-effort
// answer; the sentinel only shows up in logs and the Truncated flag.
var ErrIterationLimit = errors.New("agent iteration limit exceeded")

// ToolExecutionError wraps a tool handler failure. The orchestrator never
// propagates it: it is rendered into an observation so the model can adapt
// its plan.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}
