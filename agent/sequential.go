package agent

import (
	"fmt"

	"github.com/hupe1980/agentruntime/core"
)

// SequentialAgent coordinates the execution of multiple child agents in
// sequence.
//
// Children run one after another on the same session, so each agent's
// persisted output (events, state deltas, artifacts) is visible to the
// agents that follow it. Because only one child runs at a time the children
// share the parent's emit and resume channels directly; the append handshake
// keeps the persisted order identical to the execution order.
//
// SequentialAgent is ideal for:
//   - Multi-step data processing pipelines
//   - Workflows requiring specific execution order
//   - Scenarios where agent outputs build upon each other
type SequentialAgent struct {
	BaseAgent
	children []core.Agent
}

// NewSequentialAgent creates a new sequential execution coordinator.
//
// The agent will execute the provided child agents in the order they are
// specified, passing session state between each execution step.
func NewSequentialAgent(name string, children ...core.Agent) *SequentialAgent {
	return &SequentialAgent{
		BaseAgent: NewBaseAgent(name),
		children:  children,
	}
}

// Children returns the child agents in execution order.
func (s *SequentialAgent) Children() []core.Agent {
	return s.children
}

// Run implements core.Agent. It executes each child agent in order; the first
// error stops further processing immediately.
func (s *SequentialAgent) Run(runCtx *core.RunContext) error {
	runCtx.LogDebug("agent.sequential.start", "agent", s.Name(), "children", len(s.children))

	for i, child := range s.children {
		// Each child gets an isolated delta buffer and its own identity for
		// tool attribution; emit/resume stay shared since execution is serial.
		childCtx := runCtx.Clone()
		childCtx.Agent = core.AgentInfo{Name: child.Name(), Type: "agent"}

		runCtx.LogDebug("agent.sequential.step", "agent", s.Name(), "step", i, "child", child.Name())

		if err := child.Run(childCtx); err != nil {
			return fmt.Errorf("sequential execution failed at agent %s: %w", child.Name(), err)
		}
	}

	return nil
}

// Interface compliance (compile-time assertion)
var _ core.Agent = (*SequentialAgent)(nil)
