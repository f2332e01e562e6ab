package agent

import "github.com/hupe1980/agentruntime/core"

// Instruction is the system prompt of a ModelAgent: either a fixed string or
// a Provider consulted on every model request. The zero value resolves to the
// empty string. Static text may contain template markers; the agent renders
// them against session state when it builds the request.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText returns a static instruction.
func NewInstructionFromText(text string) Instruction {
	return Instruction{text: text}
}

// NewInstructionFromProvider returns an instruction that asks p for its text
// each time it resolves.
func NewInstructionFromProvider(p Provider) Instruction {
	return Instruction{provider: p}
}

// NewInstructionFromFunc wraps f as a dynamic instruction.
func NewInstructionFromFunc(f func(*core.RunContext) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic reports whether the instruction resolves without a provider.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve produces the instruction text for one model request.
func (i Instruction) Resolve(runCtx *core.RunContext) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(runCtx)
	}
	return i.text, nil
}

// Provider derives instruction text from the live run, e.g. from session
// state or the calling user.
type Provider interface {
	Instruction(*core.RunContext) (string, error)
}

// Func adapts an ordinary function to the Provider interface.
type Func func(*core.RunContext) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(runCtx *core.RunContext) (string, error) { return f(runCtx) }
