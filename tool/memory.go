package tool

import (
	"fmt"

	"github.com/hupe1980/agentruntime/core"
)

// LoadMemoryTool lets a model search the long-term memory of the session's
// owner. Results are scoped to the (app, user) pair of the active session, so
// an agent can only recall conversations that belong to the same user.
//
// The tool returns matched sessions grouped with their events, ready to be
// folded back into the model context as recalled conversation snippets.
type LoadMemoryTool struct {
	name        string
	description string
}

// NewLoadMemoryTool creates a tool that searches ingested sessions for
// content relevant to a query.
func NewLoadMemoryTool() *LoadMemoryTool {
	return &LoadMemoryTool{
		name: "load_memory",
		description: "Searches the user's long-term memory for past conversations relevant " +
			"to a query. Use this when the user refers to something discussed in an " +
			"earlier session.",
	}
}

// Name returns the tool identifier.
func (t *LoadMemoryTool) Name() string { return t.name }

// Description returns the tool description.
func (t *LoadMemoryTool) Description() string { return t.description }

// Parameters returns the JSON schema for tool parameters.
func (t *LoadMemoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "The query to search past conversations for",
			},
		},
		"required": []string{"query"},
	}
}

// Call executes the memory search. An empty result set is a valid answer and
// is returned with a zero count rather than an error.
func (t *LoadMemoryTool) Call(toolCtx *core.ToolContext, args map[string]interface{}) (interface{}, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, NewToolError(t.name, "query parameter is required", "VALIDATION_ERROR")
	}

	resp, err := toolCtx.SearchMemory(query)
	if err != nil {
		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("memory search failed: %v", err),
			Code:    "EXECUTION_ERROR",
		}
	}

	return map[string]interface{}{
		"query":    query,
		"count":    len(resp.Memories),
		"memories": resp.Memories,
	}, nil
}

// Interface compliance (compile-time assertion)
var _ Tool = (*LoadMemoryTool)(nil)
