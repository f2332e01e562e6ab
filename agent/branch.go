package agent

import "github.com/hupe1980/agentruntime/core"

// buildBranchPath composes a hierarchical branch identifier used to isolate
// state mutations of child agents. An empty parent returns child and an empty
// child returns parent; otherwise the two are joined with a dot.
func buildBranchPath(parent, child string) string {
	if parent == "" {
		return child
	}
	if child == "" {
		return parent
	}
	return parent + "." + child
}

// forwardEvent relays a child-produced event to the parent emit channel with
// cancellation awareness. The event already carries its own correlation
// fields and folded deltas, so it bypasses EmitEvent on the parent context.
func forwardEvent(rc *core.RunContext, ev core.Event) error {
	select {
	case <-rc.Context.Done():
		return rc.Context.Err()
	case rc.Emit <- ev:
		return nil
	}
}
