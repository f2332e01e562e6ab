package core

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// EventActions encodes side-effects or orchestration signals attached to an Event.
// All fields are optional pointers / maps so absence can be distinguished from
// zero values. The dispatcher applies StateDelta / ArtifactDelta when the event
// is appended to its session.
type EventActions struct {
	SkipSummarization *bool          `json:"skip_summarization,omitempty"`
	StateDelta        map[string]any `json:"state_delta,omitempty"`
	ArtifactDelta     map[string]int `json:"artifact_delta,omitempty"`
	TransferToAgent   *string        `json:"transfer_to_agent,omitempty"`
	Escalate          *bool          `json:"escalate,omitempty"`
}

// Event is the primary unit of communication between agents, the dispatcher and
// external clients. After emission it should be treated as immutable. It
// captures:
//
//   - Correlation (InvocationID, ID, Author)
//   - Conversational content (optional role-based Parts)
//   - Orchestration directives (Actions)
//   - Tool / long-running operation hints (LongRunningToolIDs)
//   - Error / interruption metadata
//   - High precision UTC timestamp
//
// Content may be nil for control or error-only events. The wire encoding
// carries the timestamp as fractional Unix seconds; in-process code works with
// the native time.Time.
type Event struct {
	ID                 string       `json:"id"`
	InvocationID       string       `json:"invocation_id"`
	Author             string       `json:"author"`
	Actions            EventActions `json:"actions"`
	LongRunningToolIDs []string     `json:"long_running_tool_ids,omitempty"`
	Branch             *string      `json:"branch,omitempty"`
	Timestamp          time.Time    `json:"timestamp"`
	Content            *Content     `json:"content,omitempty"`
	Partial            *bool        `json:"partial,omitempty"`
	TurnComplete       *bool        `json:"turn_complete,omitempty"`
	ErrorCode          *string      `json:"error_code,omitempty"`
	ErrorMessage       *string      `json:"error_message,omitempty"`
	Interrupted        *bool        `json:"interrupted,omitempty"`
}

// NewID generates a new unique identifier for events.
func NewID() string { return uuid.NewString() }

// NewEvent creates a bare event authored by 'author' bound to an invocation.
// Prefer helper constructors for common semantic categories (message, function call/response).
func NewEvent(invocationID, author string) Event {
	return Event{
		ID:           NewID(),
		InvocationID: invocationID,
		Author:       author,
		Timestamp:    time.Now().UTC(),
		Actions:      EventActions{},
	}
}

// newTextEvent builds an event whose content is a single text part.
func newTextEvent(invocationID, author, role, text string) Event {
	e := NewEvent(invocationID, author)
	e.Content = NewTextContent(role, text)
	return e
}

// NewMessageEvent constructs a model-authored message event with a single
// text part. Author can be an agent name or system identifier.
func NewMessageEvent(author, message string) Event {
	return newTextEvent("", author, "model", message)
}

// NewUserMessageEvent convenience wrapper for a user-authored text message.
func NewUserMessageEvent(invocationID, message string) Event {
	return newTextEvent(invocationID, "user", "user", message)
}

// NewUserContentEvent creates a user-authored event with arbitrary Content.
// Useful for cases where the Content is not just a simple text message.
func NewUserContentEvent(invocationID string, content *Content) Event {
	e := NewEvent(invocationID, "user")
	e.Content = content
	return e
}

// NewFunctionCallEvent represents an agent requesting execution of a named function/tool.
func NewFunctionCallEvent(author, functionName, args string) Event {
	e := NewEvent("", author)
	call := FunctionCall{Name: functionName, Arguments: args}
	e.Content = &Content{Role: "model", Parts: []Part{FunctionCallPart{FunctionCall: call}}}
	return e
}

// NewFunctionResponseEvent records the completion result (or error) of a
// tool/function invocation. If err is non-nil its message is copied into the
// response.Error field.
func NewFunctionResponseEvent(author, id, functionName string, result any, err error) Event {
	e := NewEvent("", author)
	fr := FunctionResponse{ID: id, Name: functionName, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	e.Content = &Content{Role: "tool", Parts: []Part{FunctionResponsePart{FunctionResponse: fr}}}
	return e
}

// IsPartial reports whether this event represents a streaming / incomplete
// fragment that will be followed by additional events composing the final
// assistant turn. Partial events are emitted to consumers but never persisted.
func (e Event) IsPartial() bool { return e.Partial != nil && *e.Partial }

// parts returns the content parts, or nil for content-free events.
func (e Event) parts() []Part {
	if e.Content == nil {
		return nil
	}
	return e.Content.Parts
}

// GetFunctionCalls returns any FunctionCall parts contained within the event
// content preserving their original order.
func (e Event) GetFunctionCalls() []FunctionCall {
	var calls []FunctionCall
	for _, p := range e.parts() {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}

// GetFunctionResponses returns any FunctionResponse parts contained within the
// event content preserving their original order.
func (e Event) GetFunctionResponses() []FunctionResponse {
	var responses []FunctionResponse
	for _, p := range e.parts() {
		if fr, ok := p.(FunctionResponsePart); ok {
			responses = append(responses, fr.FunctionResponse)
		}
	}
	return responses
}

// IsFinalResponse implements the heuristic used by higher layers to decide when
// an assistant turn is complete (no pending tool calls/responses, not partial).
func (e Event) IsFinalResponse() bool {
	if e.Actions.SkipSummarization != nil && *e.Actions.SkipSummarization {
		return true
	}
	if len(e.LongRunningToolIDs) > 0 {
		return true
	}

	return !e.IsPartial() &&
		len(e.GetFunctionCalls()) == 0 &&
		len(e.GetFunctionResponses()) == 0
}

// UnixSeconds returns the timestamp as fractional seconds since Unix epoch,
// the form the wire encoding uses.
func (e Event) UnixSeconds() float64 { return float64(e.Timestamp.UnixNano()) / 1e9 }

// eventAlias strips Event's methods so the custom codec can reuse the field
// layout without recursing.
type eventAlias Event

// MarshalJSON encodes the timestamp as fractional Unix seconds.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		eventAlias
		Timestamp float64 `json:"timestamp"`
	}{eventAlias(e), e.UnixSeconds()})
}

// UnmarshalJSON decodes the fractional-seconds timestamp back into time.Time.
func (e *Event) UnmarshalJSON(data []byte) error {
	aux := struct {
		*eventAlias
		Timestamp float64 `json:"timestamp"`
	}{eventAlias: (*eventAlias)(e)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	sec, frac := math.Modf(aux.Timestamp)
	e.Timestamp = time.Unix(int64(sec), int64(frac*1e9)).UTC()

	return nil
}
