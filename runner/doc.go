// Package runner dispatches user turns to an agent and streams the resulting
// events.
//
// A Runner binds an application name to one root agent and a set of stores.
// Each call to Run or RunStream handles a single user turn: the message is
// appended to the session log, the agent executes, and every event it emits
// is persisted and delivered to the caller in the same order. Both modes
// share one pipeline; batch mode only buffers.
//
// The event pump is the sole writer of the session log during a run. It
// appends each non-partial event, forwards it, then releases the agent from
// its suspension point, so streamed order and persisted order never diverge.
// Partial token fragments are forwarded but never persisted. Cancellation
// (consumer disconnect or Cancel) stops production at the next suspension
// point and surfaces core.ErrStreamInterrupted; events appended before the
// interruption remain valid.
package runner
