package core

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestNewEvent_Identity(t *testing.T) {
	e := NewEvent("inv-123", "authorA")

	if e.ID == "" {
		t.Fatal("event must receive a generated ID")
	}
	if e.InvocationID != "inv-123" || e.Author != "authorA" {
		t.Fatalf("correlation fields not set: %+v", e)
	}
	if e.Timestamp.IsZero() || e.Timestamp.Location() != time.UTC {
		t.Fatalf("timestamp must be a UTC wall time, got %v", e.Timestamp)
	}

	seen := map[string]struct{}{e.ID: {}}
	for i := 0; i < 64; i++ {
		id := NewID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestEvent_MessageConstructors(t *testing.T) {
	tests := []struct {
		name       string
		ev         Event
		wantAuthor string
		wantRole   string
		wantText   string
	}{
		{
			name:       "model message",
			ev:         NewMessageEvent("agent1", "hello world"),
			wantAuthor: "agent1",
			wantRole:   "model",
			wantText:   "hello world",
		},
		{
			name:       "user message",
			ev:         NewUserMessageEvent("inv-123", "hi"),
			wantAuthor: "user",
			wantRole:   "user",
			wantText:   "hi",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.ev.Author != tt.wantAuthor {
				t.Errorf("author = %q, want %q", tt.ev.Author, tt.wantAuthor)
			}
			if tt.ev.Content == nil || tt.ev.Content.Role != tt.wantRole {
				t.Fatalf("content role mismatch: %+v", tt.ev.Content)
			}
			if got := tt.ev.Content.Text(); got != tt.wantText {
				t.Errorf("text = %q, want %q", got, tt.wantText)
			}
		})
	}
}

func TestEvent_FunctionCallAndResponse(t *testing.T) {
	callArgs := `{"x":1}`
	fCall := NewFunctionCallEvent("agent2", "do_stuff", callArgs)

	calls := fCall.GetFunctionCalls()
	if len(calls) != 1 || calls[0].Name != "do_stuff" || calls[0].Arguments != callArgs {
		t.Fatalf("function call extraction failed: %+v", calls)
	}

	ok := NewFunctionResponseEvent("agent2", "call-1", "do_stuff", 42, nil)
	if ok.Content.Role != "tool" {
		t.Errorf("response content role = %q, want tool", ok.Content.Role)
	}

	resps := ok.GetFunctionResponses()
	if len(resps) != 1 || resps[0].Response.(int) != 42 || resps[0].Error != "" {
		t.Fatalf("successful response extraction failed: %+v", resps)
	}

	failed := NewFunctionResponseEvent("agent2", "call-2", "do_stuff", nil, errors.New("boom"))
	if resps = failed.GetFunctionResponses(); resps[0].Error != "boom" {
		t.Fatalf("error message not carried: %+v", resps[0])
	}
}

func TestEvent_PartExtractionFiltersAndOrders(t *testing.T) {
	e := NewEvent("inv", "agent")
	e.Content = &Content{Role: "model", Parts: []Part{
		TextPart{Text: "calling tools"},
		FunctionCallPart{FunctionCall: FunctionCall{ID: "c1", Name: "first"}},
		FunctionResponsePart{FunctionResponse: FunctionResponse{ID: "c0", Name: "earlier"}},
		FunctionCallPart{FunctionCall: FunctionCall{ID: "c2", Name: "second"}},
	}}

	calls := e.GetFunctionCalls()
	if len(calls) != 2 || calls[0].Name != "first" || calls[1].Name != "second" {
		t.Fatalf("calls must keep content order: %+v", calls)
	}

	if resps := e.GetFunctionResponses(); len(resps) != 1 || resps[0].Name != "earlier" {
		t.Fatalf("responses mis-extracted: %+v", resps)
	}

	bare := NewEvent("inv", "agent")
	if bare.GetFunctionCalls() != nil || bare.GetFunctionResponses() != nil {
		t.Error("content-free event must extract nothing")
	}
}

func TestEvent_IsFinalResponse(t *testing.T) {
	boolPtr := func(v bool) *bool { return &v }

	tests := []struct {
		name  string
		build func() Event
		want  bool
	}{
		{
			name:  "plain event",
			build: func() Event { return NewEvent("inv", "a") },
			want:  true,
		},
		{
			name: "partial fragment",
			build: func() Event {
				e := NewEvent("inv", "a")
				e.Partial = boolPtr(true)
				return e
			},
			want: false,
		},
		{
			name:  "pending function call",
			build: func() Event { return NewFunctionCallEvent("a", "f", "") },
			want:  false,
		},
		{
			name:  "function response",
			build: func() Event { return NewFunctionResponseEvent("a", "call-3", "f", "ok", nil) },
			want:  false,
		},
		{
			name: "skip summarization wins over partial",
			build: func() Event {
				e := NewEvent("inv", "a")
				e.Partial = boolPtr(true)
				e.Actions.SkipSummarization = boolPtr(true)
				return e
			},
			want: true,
		},
		{
			name: "long running tool",
			build: func() Event {
				e := NewEvent("inv", "a")
				e.LongRunningToolIDs = []string{"tool1"}
				return e
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.build().IsFinalResponse(); got != tt.want {
				t.Errorf("IsFinalResponse() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvent_JSONTimestampIsUnixSeconds(t *testing.T) {
	e := NewMessageEvent("agent1", "hello")
	e.InvocationID = "inv-42"
	e.Actions.StateDelta = map[string]any{"k": "v"}

	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("unmarshal wire: %v", err)
	}

	ts, ok := wire["timestamp"].(float64)
	if !ok {
		t.Fatalf("timestamp should encode as a number, got %T", wire["timestamp"])
	}
	if math.Abs(ts-e.UnixSeconds()) > 1e-6 {
		t.Errorf("timestamp mismatch: %f vs %f", ts, e.UnixSeconds())
	}

	actions, ok := wire["actions"].(map[string]any)
	if !ok {
		t.Fatalf("actions missing: %s", raw)
	}
	if _, ok := actions["state_delta"]; !ok {
		t.Errorf("state_delta missing from actions: %v", actions)
	}

	var back Event
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal back: %v", err)
	}
	if back.ID != e.ID || back.InvocationID != "inv-42" || back.Author != "agent1" {
		t.Errorf("round trip lost identity fields: %+v", back)
	}
	if back.Timestamp.Sub(e.Timestamp).Abs() > time.Millisecond {
		t.Errorf("timestamp drift too large: %v vs %v", back.Timestamp, e.Timestamp)
	}
}

func TestContent_JSONPartEnvelopes(t *testing.T) {
	c := Content{Role: "model", Parts: []Part{
		TextPart{Text: "hello"},
		DataPart{Data: map[string]any{"k": "v"}},
		FilePart{File: FilePartFile{URI: "file:///tmp/report.pdf"}},
		FunctionCallPart{FunctionCall: FunctionCall{ID: "c1", Name: "f", Arguments: "{}"}},
		FunctionResponsePart{FunctionResponse: FunctionResponse{ID: "c1", Name: "f", Response: "done"}},
	}}

	raw, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"text":"hello"`, `"function_call"`, `"function_response"`, `"data"`, `"file"`} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("wire form missing %s: %s", key, raw)
		}
	}

	var back Content
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back.Parts) != 5 {
		t.Fatalf("expected 5 parts, got %d", len(back.Parts))
	}
	if tp, ok := back.Parts[0].(TextPart); !ok || tp.Text != "hello" {
		t.Errorf("first part should be text: %+v", back.Parts[0])
	}
	if fp, ok := back.Parts[2].(FilePart); !ok || fp.File.URI != "file:///tmp/report.pdf" {
		t.Errorf("third part should be the file: %+v", back.Parts[2])
	}
	if fc, ok := back.Parts[3].(FunctionCallPart); !ok || fc.FunctionCall.Name != "f" {
		t.Errorf("fourth part should be function call: %+v", back.Parts[3])
	}
}

func TestContent_JSONRejectsUnknownPart(t *testing.T) {
	var c Content
	err := json.Unmarshal([]byte(`{"role":"user","parts":[{"video":{"uri":"x"}}]}`), &c)
	if err == nil {
		t.Fatal("expected error for unknown part variant")
	}

	err = json.Unmarshal([]byte(`{"role":"user","parts":[{"text":"a","data":{"k":1}}]}`), &c)
	if err == nil {
		t.Fatal("expected error for ambiguous part variant")
	}
}

func TestContent_TextJoinsTextParts(t *testing.T) {
	c := Content{Parts: []Part{
		TextPart{Text: "one"},
		DataPart{Data: map[string]any{"k": 1}},
		TextPart{Text: "two"},
		TextPart{Text: ""},
	}}
	if got := c.Text(); got != "one\ntwo" {
		t.Errorf("Text() = %q", got)
	}
}
