// Package model defines the provider-agnostic seam between agents and
// language model backends.
//
// A Model turns one normalized Request into a stream of Response values:
// zero or more partial chunks (when streaming is requested) followed by
// exactly one final response. Tool and function calls are normalized into
// ToolDefinition / ToolCall so agents never branch per vendor.
//
// MockModel provides deterministic canned generation for tests and examples;
// the anthropic and openai subpackages adapt the Anthropic Messages API and
// the OpenAI Chat Completions API.
package model
