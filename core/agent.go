package core

// Agent is the unit of work the dispatcher drives. An agent receives a
// RunContext, emits events through it (waiting for the append handshake after
// every non-partial event) and returns when its turn is complete.
//
// Implementations must respect cancellation of the RunContext and must not
// mutate the session directly; all effects travel as events.
type Agent interface {
	Name() string
	Description() string
	Run(rc *RunContext) error
}

// AgentInfo carries identifying details about an agent used in contexts & events.
// Name is the external identifier; Type categorizes the implementation
// (e.g. "model", "sequential", "loop").
type AgentInfo struct{ Name, Type string }
