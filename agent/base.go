package agent

import "fmt"

// BaseAgent bundles the identity helpers shared by all agent implementations.
// Embed it in concrete agents and supply a Run method to satisfy core.Agent.
type BaseAgent struct {
	name        string
	description string
}

// NewBaseAgent constructs a BaseAgent with a generated description
// (customizable via SetDescription).
func NewBaseAgent(name string) BaseAgent {
	return BaseAgent{
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
	}
}

// Name returns the human-readable name for this agent.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a detailed description of this agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description. Useful when the agent is
// presented to a model that picks between capabilities by description.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }
