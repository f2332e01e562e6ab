package core

import (
	"encoding/json"
	"fmt"
)

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set; wire
// encoding enforces the same closure (see Content.MarshalJSON).
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text     string         // Plain UTF-8 text
	Metadata map[string]any // Optional producer-provided metadata
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// DataPart is a structured data segment (e.g., JSON object map).
type DataPart struct {
	Data     map[string]any // Structured key/value payload
	Metadata map[string]any
}

// isPart implements the Part interface for DataPart.
func (DataPart) isPart() {}

// FilePart is a file attachment segment.
type FilePart struct {
	File     FilePartFile // File metadata / reference
	Metadata map[string]any
}

// isPart implements the Part interface for FilePart.
func (FilePart) isPart() {}

// FunctionCall describes a tool/function invocation request.
type FunctionCall struct {
	ID        string `json:"id,omitempty"`        // Optional stable id (can be supplied later)
	Name      string `json:"name"`                // Tool / function name
	Arguments string `json:"arguments,omitempty"` // Serialized argument payload (e.g. JSON)
}

// FunctionCallPart wraps a FunctionCall as a content part.
type FunctionCallPart struct {
	FunctionCall FunctionCall
	Metadata     map[string]any
}

// isPart implements the Part interface for FunctionCallPart.
func (FunctionCallPart) isPart() {}

// FunctionResponse describes the outcome of a function call.
type FunctionResponse struct {
	ID       string      `json:"id,omitempty"`       // Matches originating FunctionCall ID
	Name     string      `json:"name"`               // Function name
	Response interface{} `json:"response,omitempty"` // Successful result (any shape)
	Error    string      `json:"error,omitempty"`    // Populated on failure
}

// FunctionResponsePart wraps a FunctionResponse as a content part.
type FunctionResponsePart struct {
	FunctionResponse FunctionResponse
	Metadata         map[string]any
}

// isPart implements the Part interface for FunctionResponsePart.
func (FunctionResponsePart) isPart() {}

// FilePartFile represents a file attachment payload.
type FilePartFile struct {
	Bytes    string  `json:"bytes,omitempty"`     // Base64 encoded contents (if inlined)
	MimeType *string `json:"mime_type,omitempty"` // Optional MIME type
	Name     *string `json:"name,omitempty"`      // Original filename hint
	URI      string  `json:"uri,omitempty"`       // External retrieval URI (if not inlined)
}

// Content holds role + ordered parts.
type Content struct {
	Role  string // Conversation role (user, assistant, tool, system,...)
	Parts []Part // Ordered heterogeneous parts
}

// NewTextContent builds single-part text content with the given role.
func NewTextContent(role, text string) *Content {
	return &Content{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// Text concatenates all text parts joined by newlines. Non-text parts are
// skipped; empty text parts contribute nothing.
func (c Content) Text() string {
	var out string
	for _, p := range c.Parts {
		tp, ok := p.(TextPart)
		if !ok || tp.Text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += tp.Text
	}
	return out
}

// partEnvelope is the wire form of a Part. Exactly one variant key must be
// set; metadata may accompany any variant.
type partEnvelope struct {
	Text             *string           `json:"text,omitempty"`
	Data             map[string]any    `json:"data,omitempty"`
	File             *FilePartFile     `json:"file,omitempty"`
	FunctionCall     *FunctionCall     `json:"function_call,omitempty"`
	FunctionResponse *FunctionResponse `json:"function_response,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
}

func encodePart(p Part) (partEnvelope, error) {
	switch v := p.(type) {
	case TextPart:
		return partEnvelope{Text: &v.Text, Metadata: v.Metadata}, nil
	case DataPart:
		return partEnvelope{Data: v.Data, Metadata: v.Metadata}, nil
	case FilePart:
		f := v.File
		return partEnvelope{File: &f, Metadata: v.Metadata}, nil
	case FunctionCallPart:
		fc := v.FunctionCall
		return partEnvelope{FunctionCall: &fc, Metadata: v.Metadata}, nil
	case FunctionResponsePart:
		fr := v.FunctionResponse
		return partEnvelope{FunctionResponse: &fr, Metadata: v.Metadata}, nil
	default:
		return partEnvelope{}, fmt.Errorf("unsupported content part type %T", p)
	}
}

func (e partEnvelope) decode() (Part, error) {
	variants := 0
	if e.Text != nil {
		variants++
	}
	if e.Data != nil {
		variants++
	}
	if e.File != nil {
		variants++
	}
	if e.FunctionCall != nil {
		variants++
	}
	if e.FunctionResponse != nil {
		variants++
	}
	if variants != 1 {
		return nil, fmt.Errorf("content part must carry exactly one of text, data, file, function_call, function_response")
	}

	switch {
	case e.Text != nil:
		return TextPart{Text: *e.Text, Metadata: e.Metadata}, nil
	case e.Data != nil:
		return DataPart{Data: e.Data, Metadata: e.Metadata}, nil
	case e.File != nil:
		return FilePart{File: *e.File, Metadata: e.Metadata}, nil
	case e.FunctionCall != nil:
		return FunctionCallPart{FunctionCall: *e.FunctionCall, Metadata: e.Metadata}, nil
	default:
		return FunctionResponsePart{FunctionResponse: *e.FunctionResponse, Metadata: e.Metadata}, nil
	}
}

// contentWire mirrors Content for (de)serialization.
type contentWire struct {
	Role  string         `json:"role,omitempty"`
	Parts []partEnvelope `json:"parts"`
}

// MarshalJSON encodes each part as a single-variant envelope so the part sum
// stays closed on the wire.
func (c Content) MarshalJSON() ([]byte, error) {
	w := contentWire{Role: c.Role, Parts: make([]partEnvelope, 0, len(c.Parts))}
	for _, p := range c.Parts {
		env, err := encodePart(p)
		if err != nil {
			return nil, err
		}
		w.Parts = append(w.Parts, env)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes part envelopes, rejecting unknown or ambiguous variants.
func (c *Content) UnmarshalJSON(data []byte) error {
	var w contentWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	c.Role = w.Role
	c.Parts = make([]Part, 0, len(w.Parts))
	for i, env := range w.Parts {
		p, err := env.decode()
		if err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
		c.Parts = append(c.Parts, p)
	}

	return nil
}
