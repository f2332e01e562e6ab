package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/agentruntime/core"
	"github.com/hupe1980/agentruntime/tool"
)

// toolExecutor runs a batch of function calls from one model turn and emits
// exactly one function response event per call through the emit callback.
// It must:
//   - Respect runCtx.Context cancellation
//   - Never panic (recover internally and report the panic as a tool error)
//   - Apply ToolContext accumulated actions to the emitted events
//
// The emit callback owns persistence synchronization (resume handling), so
// the executor treats emit errors as fatal for the batch.
type toolExecutor struct {
	maxParallel   int           // 0 or <1 means no explicit limit
	preserveOrder bool          // buffer results and emit in original call order
	toolTimeout   time.Duration // per-call bound observed via ToolContext, 0 = none
}

func (e *toolExecutor) execute(
	runCtx *core.RunContext,
	agentName string,
	toolRegistry map[string]tool.Tool,
	fnCalls []core.FunctionCall,
	emit func(core.Event) error,
) error {
	n := len(fnCalls)
	if n == 0 {
		return nil
	}

	// Fast path: single call, execute inline.
	if n == 1 {
		ev := e.runOne(runCtx, agentName, toolRegistry, fnCalls[0])
		return emit(ev)
	}

	maxPar := e.maxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	results := make([]core.Event, n)
	var mu sync.Mutex // guards unordered emits
	var wg sync.WaitGroup
	var emitErr error

	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
	for i := range fnCalls {
		if runCtx.Context.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, fc core.FunctionCall) {
			defer wg.Done()
			defer func() { <-sem }()

			if runCtx.Context.Err() != nil {
				return
			}

			ev := e.runOne(runCtx, agentName, toolRegistry, fc)

			if e.preserveOrder {
				results[idx] = ev
				return
			}

			mu.Lock()
			defer mu.Unlock()
			if emitErr == nil {
				emitErr = emit(ev)
			}
		}(i, fnCalls[i])
	}

	wg.Wait()

	if e.preserveOrder {
		for i := 0; i < n; i++ {
			if results[i].ID == "" {
				continue
			}
			if err := emit(results[i]); err != nil {
				return err
			}
		}
	}

	runCtx.LogDebug(
		"agent.functions.batch.complete",
		"agent", agentName,
		"count", n,
		"parallelism", maxPar,
		"preserve_order", e.preserveOrder,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return emitErr
}

// runOne executes a single function call and builds its response event with
// the tool context's accumulated actions applied.
func (e *toolExecutor) runOne(
	runCtx *core.RunContext,
	agentName string,
	toolRegistry map[string]tool.Tool,
	fc core.FunctionCall,
) core.Event {
	toolCtx := core.NewToolContext(runCtx, fc.ID)
	if e.toolTimeout > 0 {
		callCtx, cancel := context.WithTimeout(runCtx.Context, e.toolTimeout)
		defer cancel()
		toolCtx = toolCtx.WithContext(callCtx)
	}

	start := time.Now()
	var (
		result any
		err    error
	)
	func() { // panic safety
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
				runCtx.LogError("agent.function.panic", "agent", agentName, "function", fc.Name, "recover", r)
			}
		}()
		result, err = executeTool(toolRegistry, toolCtx, fc.Name, fc.Arguments)
	}()

	runCtx.LogInfo(
		"agent.function.executed",
		"agent", agentName,
		"function", fc.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	respEv := core.NewFunctionResponseEvent(agentName, fc.ID, fc.Name, result, err)
	toolCtx.InternalApplyActions(&respEv)

	return respEv
}

// executeTool centralizes tool lookup, argument decoding and execution.
func executeTool(toolRegistry map[string]tool.Tool, toolCtx *core.ToolContext, toolName, args string) (any, error) {
	impl, ok := toolRegistry[toolName]
	if !ok {
		return nil, fmt.Errorf("tool %s not found", toolName)
	}

	var argMap map[string]any
	if args == "" {
		argMap = map[string]any{}
	} else if err := json.Unmarshal([]byte(args), &argMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal args: %w", err)
	}

	return impl.Call(toolCtx, argMap)
}

// panicError converts a recovered panic value to an error without pulling
// external dependencies.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("tool panicked: %v", p.val) }
