// Package agent contains first-class agent implementations for building
// composable reasoning / orchestration graphs on top of the runtime. The
// package covers three concerns:
//
//  1. Shared identity plumbing (BaseAgent)
//  2. Workflow coordination patterns (SequentialAgent, ParallelAgent, LoopAgent)
//  3. Model-centric conversational / tool-calling agent (ModelAgent)
//
// Execution model:
//   - An agent's Run receives a *core.RunContext owned by the dispatcher
//   - Every non-partial event an agent emits is followed by a resume
//     handshake confirming the event was appended to the session log
//   - Composite agents (sequential / parallel / loop) coordinate child Runs,
//     relaying child events and handshakes through their own context
//
// Persistence, model adapters and the tool registry live in their own
// packages; agents only see them through the RunContext and constructor
// arguments.
package agent
