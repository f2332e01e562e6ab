package tool

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentruntime/core"
)

// StateManagerTool exposes the ToolContext surface as a single multiplexed tool.
//
// It lets a model read and mutate session state, manage versioned artifacts,
// search long-term memory, and signal flow control (escalate, agent handoff)
// through one operation-dispatched entry point. State mutations are staged on
// the originating event's state delta, so they only become durable when the
// event is appended to the session log.
type StateManagerTool struct {
	name        string
	description string
}

// NewStateManagerTool creates the multiplexed state management tool. The
// operation set covers session state (get/set/delete), flow control signals
// (transfer_agent, escalate, skip_summarization), versioned artifacts
// (save/load/list), memory search and session history.
func NewStateManagerTool() *StateManagerTool {
	return &StateManagerTool{
		name: "state_manager",
		description: "Manages session state, flow control signals, and session resources. " +
			"Supports operations: get_state, set_state, delete_state, transfer_agent, escalate, " +
			"save_artifact, load_artifact, list_artifacts, search_memory, get_session_history, " +
			"skip_summarization.",
	}
}

// Name returns the tool identifier.
func (t *StateManagerTool) Name() string { return t.name }

// Description returns the tool description.
func (t *StateManagerTool) Description() string { return t.description }

// Parameters returns the JSON schema for tool parameters. Only "operation" is
// required; which of the remaining parameters apply depends on the operation.
func (t *StateManagerTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type": "string",
				"enum": []string{
					"get_state", "set_state", "delete_state", "transfer_agent", "escalate",
					"save_artifact", "load_artifact", "list_artifacts", "search_memory",
					"get_session_history", "skip_summarization",
				},
				"description": "The state management operation to perform",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "State key for get_state/set_state/delete_state operations",
			},
			"value": map[string]any{
				"description": "Value for set_state operations (any type)",
			},
			"agent_name": map[string]any{
				"type":        "string",
				"description": "Agent name for transfer_agent operation",
			},
			"artifact_id": map[string]any{
				"type":        "string",
				"description": "Artifact identifier for artifact operations",
			},
			"data": map[string]any{
				"type":        "string",
				"description": "Data to store for save_artifact operation",
			},
			"version": map[string]any{
				"type":        "integer",
				"description": "Artifact version for load_artifact (omit for latest)",
			},
			"query": map[string]any{
				"type":        "string",
				"description": "Search query for the search_memory operation",
			},
		},
		"required": []string{"operation"},
	}
}

// Call dispatches on the operation argument. Unknown operations and missing
// operation-specific arguments surface as plain errors, which the executor
// wraps into the function response for the model to react to.
func (t *StateManagerTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	operation, ok := args["operation"].(string)
	if !ok {
		return nil, fmt.Errorf("operation parameter is required")
	}

	switch operation {
	case "get_state":
		return t.getState(toolCtx, args)
	case "set_state":
		return t.setState(toolCtx, args)
	case "delete_state":
		return t.deleteState(toolCtx, args)
	case "transfer_agent":
		return t.transferAgent(toolCtx, args)
	case "escalate":
		return t.escalate(toolCtx)
	case "save_artifact":
		return t.saveArtifact(toolCtx, args)
	case "load_artifact":
		return t.loadArtifact(toolCtx, args)
	case "list_artifacts":
		return t.listArtifacts(toolCtx)
	case "search_memory":
		return t.searchMemory(toolCtx, args)
	case "get_session_history":
		return t.sessionHistory(toolCtx)
	case "skip_summarization":
		return t.skipSummarization(toolCtx)
	default:
		return nil, fmt.Errorf("unknown operation: %s", operation)
	}
}

// stringArg extracts a required string argument for an operation.
func stringArg(args map[string]any, name, operation string) (string, error) {
	s, ok := args[name].(string)
	if !ok {
		return "", fmt.Errorf("%s parameter is required for %s operation", name, operation)
	}

	return s, nil
}

func (t *StateManagerTool) getState(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	key, err := stringArg(args, "key", "get_state")
	if err != nil {
		return nil, err
	}

	value, exists := toolCtx.GetState(key)

	return map[string]any{
		"key":    key,
		"exists": exists,
		"value":  value,
	}, nil
}

func (t *StateManagerTool) setState(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	key, err := stringArg(args, "key", "set_state")
	if err != nil {
		return nil, err
	}

	value := args["value"]
	toolCtx.SetState(key, value)

	return map[string]any{
		"key":     key,
		"value":   value,
		"success": true,
		"message": fmt.Sprintf("State key '%s' set successfully", key),
	}, nil
}

// deleteState stages a nil tombstone on the event's state delta. The key
// disappears from the persisted session once the event is appended.
func (t *StateManagerTool) deleteState(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	key, err := stringArg(args, "key", "delete_state")
	if err != nil {
		return nil, err
	}

	toolCtx.SetState(key, nil)

	return map[string]any{
		"key":     key,
		"success": true,
		"message": fmt.Sprintf("State key '%s' deleted", key),
	}, nil
}

// transferAgent records a handoff request in the event actions. The runtime
// does not route the request itself; it is persisted with the event for an
// outer orchestrator to act on.
func (t *StateManagerTool) transferAgent(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	agentName, err := stringArg(args, "agent_name", "transfer_agent")
	if err != nil {
		return nil, err
	}

	toolCtx.TransferToAgent(agentName)

	return map[string]any{
		"agent_name": agentName,
		"success":    true,
		"message":    fmt.Sprintf("Transfer to agent '%s' requested", agentName),
	}, nil
}

func (t *StateManagerTool) escalate(toolCtx *core.ToolContext) (any, error) {
	toolCtx.Escalate()

	return map[string]any{
		"success": true,
		"message": "Escalation initiated",
	}, nil
}

func (t *StateManagerTool) saveArtifact(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	artifactID, err := stringArg(args, "artifact_id", "save_artifact")
	if err != nil {
		return nil, err
	}

	dataStr, err := stringArg(args, "data", "save_artifact")
	if err != nil {
		return nil, err
	}

	data := []byte(dataStr)

	version, err := toolCtx.SaveArtifact(artifactID, data)
	if err != nil {
		return nil, fmt.Errorf("failed to save artifact: %w", err)
	}

	return map[string]any{
		"artifact_id": artifactID,
		"version":     version,
		"size":        len(data),
		"success":     true,
		"message":     fmt.Sprintf("Artifact '%s' saved as version %d", artifactID, version),
	}, nil
}

// loadArtifact loads an artifact version, the latest when none is given.
func (t *StateManagerTool) loadArtifact(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	artifactID, err := stringArg(args, "artifact_id", "load_artifact")
	if err != nil {
		return nil, err
	}

	version := -1
	if v, ok := args["version"].(float64); ok {
		version = int(v)
	}

	data, err := toolCtx.LoadArtifact(artifactID, version)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}

	result := map[string]any{
		"artifact_id": artifactID,
		"data":        string(data),
		"size":        len(data),
		"success":     true,
	}
	if version >= 0 {
		result["version"] = version
	}

	return result, nil
}

func (t *StateManagerTool) listArtifacts(toolCtx *core.ToolContext) (any, error) {
	artifacts, err := toolCtx.ListArtifacts()
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	return map[string]any{
		"artifacts": artifacts,
		"count":     len(artifacts),
		"success":   true,
	}, nil
}

// searchMemory queries long-term memory scoped to the session's owner.
func (t *StateManagerTool) searchMemory(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	query, err := stringArg(args, "query", "search_memory")
	if err != nil {
		return nil, err
	}

	resp, err := toolCtx.SearchMemory(query)
	if err != nil {
		return nil, fmt.Errorf("failed to search memory: %w", err)
	}

	return map[string]any{
		"query":    query,
		"count":    len(resp.Memories),
		"memories": resp.Memories,
		"success":  true,
	}, nil
}

// sessionHistory returns the committed event log in a compact form: one map
// per event with author, timestamp and a short content summary instead of the
// full part payloads.
func (t *StateManagerTool) sessionHistory(toolCtx *core.ToolContext) (any, error) {
	history := toolCtx.GetSessionHistory()

	events := make([]map[string]any, len(history))
	for i, ev := range history {
		events[i] = map[string]any{
			"id":          ev.ID,
			"author":      ev.Author,
			"timestamp":   ev.Timestamp,
			"partial":     ev.Partial,
			"has_content": ev.Content != nil,
		}

		if ev.Content == nil || len(ev.Content.Parts) == 0 {
			continue
		}

		summaries := make([]string, 0, len(ev.Content.Parts))
		for _, part := range ev.Content.Parts {
			summaries = append(summaries, summarizePart(part))
		}

		events[i]["content_summary"] = strings.Join(summaries, ", ")
	}

	return map[string]any{
		"events":  events,
		"count":   len(events),
		"success": true,
	}, nil
}

// summarizePart renders a one-line preview of a content part. Text is
// truncated so large messages do not blow up the history payload.
func summarizePart(part core.Part) string {
	switch p := part.(type) {
	case core.TextPart:
		preview := p.Text
		if len(preview) > 100 {
			preview = preview[:100] + "..."
		}

		return fmt.Sprintf("text: %s", preview)
	case core.FunctionCallPart:
		return fmt.Sprintf("function_call: %s", p.FunctionCall.Name)
	case core.FunctionResponsePart:
		return fmt.Sprintf("function_response: %s", p.FunctionResponse.Name)
	default:
		return "other"
	}
}

func (t *StateManagerTool) skipSummarization(toolCtx *core.ToolContext) (any, error) {
	toolCtx.SkipSummarization()

	return map[string]any{
		"success": true,
		"message": "Summarization will be skipped for this interaction",
	}, nil
}
