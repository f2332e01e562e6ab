// Package core provides the foundational domain types, interfaces and execution
// contexts used by AgentRuntime. It defines the core abstractions for:
//
//   - Sessions (stateful conversational containers with an append-only event log)
//   - Events (immutable communication + orchestration records)
//   - Content parts (a closed sum of text / data / file / function call / response)
//   - RunContext / ToolContext (scoped execution & tool sandboxing)
//   - Pluggable stores for session state, artifacts and memory recall/search
//
// Sessions are addressed by the (app name, user id, session id) triple; the
// event log is the single mutation path for session state. The package keeps
// implementation concerns (persistence, dispatch, concrete agents) out of
// scope, exposing small interfaces to enable custom backends and extensions.
package core
