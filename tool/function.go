package tool

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentruntime/core"
	"github.com/hupe1980/agentruntime/internal/util"
)

// Func is the implementation signature wrapped by a FunctionTool. Arguments
// arrive already validated against the tool's parameter schema; the returned
// value must be serializable into the function response payload.
type Func func(toolCtx *core.ToolContext, args map[string]any) (any, error)

// FunctionTool adapts a plain Go function into a Tool. It carries the name,
// description and JSON-Schema-like parameter schema (parameters) that
// models see, validates incoming arguments before dispatch and normalizes
// failures into *ToolError so downstream handling stays uniform:
//
//	schema mismatch        -> Code "VALIDATION_ERROR", function not called
//	plain error from fn    -> Code "EXECUTION_ERROR"
//	*ToolError from fn     -> forwarded unchanged, custom codes intact
//
// A FunctionTool has no mutable state after construction and may be called
// from multiple goroutines. Tools that need streaming output or richer result
// shapes should implement Tool directly instead.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          Func
}

// NewFunctionTool builds a FunctionTool from an explicit parameter schema.
// The schema follows the minimal JSON Schema dialect that internal/util
// validates: an "object" with "properties" and optional "required" and
// "enum" constraints. Constraints absent from the schema are not enforced.
//
//	echo := NewFunctionTool(
//		"echo_text",
//		"Echo the given text back to the caller",
//		map[string]any{
//			"type": "object",
//			"properties": map[string]any{
//				"text": map[string]any{"type": "string"},
//			},
//			"required": []string{"text"},
//		},
//		func(tc *core.ToolContext, args map[string]any) (any, error) {
//			return args["text"], nil
//		},
//	)
func NewFunctionTool(name, description string, parameters map[string]any, fn Func) *FunctionTool {
	return &FunctionTool{name: name, description: description, parameters: parameters, fn: fn}
}

// NewFunctionToolFromStruct derives the parameter schema from the json and
// description tags of a struct type, equivalent to passing the output of
// util.CreateSchema to NewFunctionTool. The function still receives its
// arguments as a plain map.
//
//	type echoArgs struct {
//		Text string `json:"text" description:"Text to echo"`
//	}
//
//	echo := NewFunctionToolFromStruct("echo_text", "Echo the given text", echoArgs{}, echoFn)
func NewFunctionToolFromStruct(name, description string, structType any, fn Func) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// Name returns the tool name used in function declarations and call routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema for the accepted arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates args against the declared schema and then invokes the
// wrapped function, logging start, outcome and execution time under the
// tool name and function call id.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()

	logger.Debug("tool.call.start", "tool", t.name, "fc_id", toolCtx.FunctionCallID())

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    "VALIDATION_ERROR",
			Details: err,
		}
	}

	start := time.Now()

	result, err := t.fn(toolCtx, args)
	if err != nil {
		// Keep a *ToolError as is so custom codes survive the round trip.
		if toolErr, ok := err.(*ToolError); ok {
			logger.Error("tool.call.error", "tool", t.name, "error", toolErr.Message)

			return nil, toolErr
		}

		logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: "EXECUTION_ERROR"}
	}

	logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
