// Package tool implements the function calling subsystem: structured
// capabilities an agent can invoke during a turn, with schema validated
// arguments and a uniform error shape the model can reason about.
package tool

import (
	"fmt"

	"github.com/hupe1980/agentruntime/core"
	"github.com/hupe1980/agentruntime/internal/util"
)

// Tool is one callable capability. The model sees Name, Description and the
// Parameters schema; Call runs with the arguments the model produced, already
// decoded from JSON.
//
// The ToolContext gives a call scoped access to session state, artifacts and
// memory search, so tools compose with the persistence layer instead of
// carrying their own storage. Implementations must be safe for concurrent
// calls: the executor may run several tools of one turn in parallel.
type Tool interface {
	// Name identifies the tool to the model. snake_case by convention.
	Name() string

	// Description tells the model when the tool applies.
	Description() string

	// Parameters declares the argument schema (the minimal JSON-Schema
	// dialect of internal/util).
	Parameters() map[string]interface{}

	// Call executes the tool. Arguments have been validated against the
	// Parameters schema before the call.
	Call(toolCtx *core.ToolContext, args map[string]interface{}) (interface{}, error)
}

// ValidationError is the argument validation failure type, re-exported so
// callers outside the module can match on it.
type ValidationError = util.ValidationError

// ToolError is the uniform failure shape for tool execution. The Code groups
// failures coarsely (VALIDATION_ERROR, EXECUTION_ERROR) so the model can
// decide between correcting its arguments and giving up.
type ToolError struct {
	Tool    string      `json:"tool"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError builds a ToolError without details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}
