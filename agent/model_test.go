package agent

import (
	"testing"
	"time"

	"github.com/hupe1980/agentruntime/core"
	"github.com/hupe1980/agentruntime/model"
	"github.com/hupe1980/agentruntime/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool() tool.Tool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
		"required": []string{"text"},
	}

	return tool.NewFunctionTool("echo", "Echoes the given text back.", params,
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			return map[string]any{"echo": args["text"]}, nil
		})
}

func functionCallResponse(id, name, args string) model.Response {
	return model.Response{
		Content: core.Content{
			Role: "model",
			Parts: []core.Part{core.FunctionCallPart{
				FunctionCall: core.FunctionCall{ID: id, Name: name, Arguments: args},
			}},
		},
		FinishReason: "tool_calls",
	}
}

func TestNewModelAgent_Defaults(t *testing.T) {
	m := model.NewMockModel("test-model", "mock")
	a := NewModelAgent("Asst", m)

	assert.Equal(t, "Asst", a.Name())
	assert.Empty(t, a.ListTools())
	assert.False(t, a.HasTool("echo"))

	a.RegisterTool(echoTool())
	assert.True(t, a.HasTool("echo"))
	assert.Equal(t, []string{"echo"}, a.ListTools())

	got, ok := a.GetTool("echo")
	assert.True(t, ok)
	assert.Equal(t, "echo", got.Name())

	assert.Equal(t, 15*time.Second, a.executor.toolTimeout)
}

func TestModelAgent_Run_SimpleTurn(t *testing.T) {
	m := model.NewMockModel("test-model", "mock")
	m.AddResponse("hello", "Hi there!")

	a := NewModelAgent("Asst", m)

	h := newRunHarness(t, false, 0)
	events, err := h.run(a)
	require.NoError(t, err)

	persisted := h.persisted()
	require.Len(t, persisted, 1)
	assert.Len(t, events, 1)

	final := persisted[0]
	assert.Equal(t, "Asst", final.Author)
	assert.Equal(t, "inv-1", final.InvocationID)
	assert.Equal(t, "Hi there!", final.Content.Text())
	assert.False(t, final.IsPartial())
	require.NotNil(t, final.TurnComplete)
	assert.True(t, *final.TurnComplete)
	assert.Equal(t, 1, h.rc.ModelCallsUsed())
}

func TestModelAgent_Run_StreamingPartials(t *testing.T) {
	m := model.NewMockModel("test-model", "mock")
	m.AddResponse("hello", "one two three")

	a := NewModelAgent("Asst", m)

	h := newRunHarness(t, true, 0)
	events, err := h.run(a)
	require.NoError(t, err)

	var partials []core.Event
	for _, ev := range events {
		if ev.IsPartial() {
			partials = append(partials, ev)
		}
	}
	require.Len(t, partials, 3)

	var streamed string
	for _, ev := range partials {
		streamed += ev.Content.Text()
	}
	assert.Equal(t, "one two three", streamed)

	// Only the final event reaches the session log.
	persisted := h.persisted()
	require.Len(t, persisted, 1)
	assert.Equal(t, "one two three", persisted[0].Content.Text())

	// The final event is the last thing observed.
	assert.False(t, events[len(events)-1].IsPartial())
}

func TestModelAgent_Run_ToolCalls(t *testing.T) {
	m := model.NewMockModel("test-model", "mock")
	m.EnqueueResponse(functionCallResponse("call-1", "echo", `{"text":"hi"}`))
	m.EnqueueTextResponse("done")

	a := NewModelAgent("Asst", m, func(o *ModelAgentOptions) {
		o.Tools = []tool.Tool{echoTool()}
	})

	h := newRunHarness(t, false, 0)
	_, err := h.run(a)
	require.NoError(t, err)

	persisted := h.persisted()
	require.Len(t, persisted, 3)

	calls := persisted[0].GetFunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "echo", calls[0].Name)

	responses := persisted[1].GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, "echo", responses[0].Name)
	assert.Equal(t, "call-1", responses[0].ID)
	assert.Empty(t, responses[0].Error)

	result, ok := responses[0].Response.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hi", result["echo"])

	assert.Equal(t, "done", persisted[2].Content.Text())
	assert.Equal(t, 2, h.rc.ModelCallsUsed())
}

func TestModelAgent_Run_ToolError(t *testing.T) {
	m := model.NewMockModel("test-model", "mock")
	m.EnqueueResponse(functionCallResponse("call-1", "missing_tool", `{}`))
	m.EnqueueTextResponse("recovered")

	a := NewModelAgent("Asst", m)

	h := newRunHarness(t, false, 0)
	_, err := h.run(a)
	require.NoError(t, err)

	persisted := h.persisted()
	require.Len(t, persisted, 3)

	// The lookup failure travels back to the model as a response error, not
	// as a run failure.
	responses := persisted[1].GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Contains(t, responses[0].Error, "not found")
}

func TestModelAgent_Run_ToolTimeout(t *testing.T) {
	m := model.NewMockModel("test-model", "mock")
	m.EnqueueResponse(functionCallResponse("call-1", "slow", `{}`))
	m.EnqueueTextResponse("recovered")

	params := map[string]any{"type": "object", "properties": map[string]any{}}
	slow := tool.NewFunctionTool("slow", "Waits for its context to expire.", params,
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			<-toolCtx.Context().Done()
			return nil, toolCtx.Context().Err()
		})

	a := NewModelAgent("Asst", m, func(o *ModelAgentOptions) {
		o.Tools = []tool.Tool{slow}
		o.ToolTimeout = 20 * time.Millisecond
	})

	h := newRunHarness(t, false, 0)
	_, err := h.run(a)
	require.NoError(t, err)

	persisted := h.persisted()
	require.Len(t, persisted, 3)

	// The expired call surfaces as a response error; the turn continues.
	responses := persisted[1].GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Contains(t, responses[0].Error, "deadline")

	assert.Equal(t, "recovered", persisted[2].Content.Text())
}

func TestModelAgent_Run_OutputKey(t *testing.T) {
	m := model.NewMockModel("test-model", "mock")
	m.AddResponse("hello", "Paris")

	a := NewModelAgent("Asst", m, func(o *ModelAgentOptions) {
		o.OutputKey = "capital"
	})

	h := newRunHarness(t, false, 0)
	_, err := h.run(a)
	require.NoError(t, err)

	persisted := h.persisted()
	require.Len(t, persisted, 1)
	assert.Equal(t, "Paris", persisted[0].Actions.StateDelta["capital"])

	// The harness applied the delta when it appended the event.
	v, ok := h.rc.Session.GetState("capital")
	require.True(t, ok)
	assert.Equal(t, "Paris", v)
}

func TestModelAgent_Run_HistoryWindow(t *testing.T) {
	m := model.NewMockModel("test-model", "mock")

	a := NewModelAgent("Asst", m, func(o *ModelAgentOptions) {
		o.MaxHistoryMessages = 2
	})

	h := newRunHarness(t, false, 0)
	h.rc.Session.AddEvent(core.NewMessageEvent("Asst", "first answer"))
	h.rc.Session.AddEvent(core.NewUserMessageEvent("inv-1", "second question"))
	h.rc.Session.AddEvent(core.NewMessageEvent("Asst", "second answer"))

	_, err := h.run(a)
	require.NoError(t, err)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.NotEmpty(t, reqs[0].Instructions)

	// Four conversation events in the log, only the newest two in the request.
	require.Len(t, reqs[0].Contents, 2)
	assert.Equal(t, "second question", reqs[0].Contents[0].Text())
	assert.Equal(t, "second answer", reqs[0].Contents[1].Text())
}

func TestModelAgent_Run_BeforeRunShortCircuit(t *testing.T) {
	m := model.NewMockModel("test-model", "mock")

	a := NewModelAgent("Asst", m, func(o *ModelAgentOptions) {
		o.BeforeRun = func(runCtx *core.RunContext) (*core.Content, error) {
			return core.NewTextContent("model", "cached answer"), nil
		}
	})

	h := newRunHarness(t, false, 0)
	_, err := h.run(a)
	require.NoError(t, err)

	persisted := h.persisted()
	require.Len(t, persisted, 1)
	assert.Equal(t, "cached answer", persisted[0].Content.Text())
	assert.Equal(t, 0, h.rc.ModelCallsUsed())
}

func TestModelAgent_Run_AfterRun(t *testing.T) {
	m := model.NewMockModel("test-model", "mock")
	m.AddResponse("hello", "Hi!")

	a := NewModelAgent("Asst", m, func(o *ModelAgentOptions) {
		o.AfterRun = func(runCtx *core.RunContext) (*core.Content, error) {
			return core.NewTextContent("model", "anything else?"), nil
		}
	})

	h := newRunHarness(t, false, 0)
	_, err := h.run(a)
	require.NoError(t, err)

	persisted := h.persisted()
	require.Len(t, persisted, 2)
	assert.Equal(t, "Hi!", persisted[0].Content.Text())
	assert.Equal(t, "anything else?", persisted[1].Content.Text())
}

func TestModelAgent_Run_ModelCallBudget(t *testing.T) {
	m := model.NewMockModel("test-model", "mock")
	m.EnqueueResponse(functionCallResponse("call-1", "echo", `{"text":"hi"}`))
	m.EnqueueTextResponse("never reached")

	a := NewModelAgent("Asst", m, func(o *ModelAgentOptions) {
		o.Tools = []tool.Tool{echoTool()}
	})

	h := newRunHarness(t, false, 1)
	_, err := h.run(a)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded max model calls")
}

func TestModelAgent_Run_SkipSummarization(t *testing.T) {
	m := model.NewMockModel("test-model", "mock")
	m.EnqueueResponse(functionCallResponse("call-1", "lookup", `{}`))

	lookup := tool.NewFunctionTool("lookup", "Returns a verbatim record.",
		map[string]any{"type": "object"},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			toolCtx.SkipSummarization()
			return map[string]any{"record": "raw"}, nil
		})

	a := NewModelAgent("Asst", m, func(o *ModelAgentOptions) {
		o.Tools = []tool.Tool{lookup}
	})

	h := newRunHarness(t, false, 0)
	_, err := h.run(a)
	require.NoError(t, err)

	// The tool response ends the run without a summarization turn.
	assert.Equal(t, 1, h.rc.ModelCallsUsed())

	persisted := h.persisted()
	require.Len(t, persisted, 2)

	last := persisted[len(persisted)-1]
	require.Len(t, last.GetFunctionResponses(), 1)
	require.NotNil(t, last.Actions.SkipSummarization)
	assert.True(t, *last.Actions.SkipSummarization)
}
