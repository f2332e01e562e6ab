package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentruntime/core"
)

// ErrEscalated is returned by the iteration relay when a child agent signals
// escalation. LoopAgent.Run treats it as early termination, not failure.
var ErrEscalated = errors.New("child agent escalated")

// LoopAgent coordinates the repeated execution of a child agent.
//
// The child runs up to maxIters times on the shared session, so each
// iteration sees what the previous ones persisted. The loop relays the
// child's events to the parent channel and inspects them on the way through;
// an event with the escalate action stops the loop immediately after the
// event is appended. An optional predicate on the iteration's final text
// output and an optional interval between iterations give finer control.
//
// LoopAgent is ideal for:
//   - Monitoring and polling scenarios
//   - Iterative refinement until a convergence condition
//   - Periodic task execution
type LoopAgent struct {
	BaseAgent
	child       core.Agent
	maxIters    int
	interval    time.Duration
	stopOnError bool
	predicate   func(string) bool
}

// LoopOption defines a configuration function for customizing LoopAgent behavior.
type LoopOption func(*LoopAgent)

// WithMaxIters sets the maximum number of iterations for the loop.
func WithMaxIters(n int) LoopOption {
	return func(l *LoopAgent) { l.maxIters = n }
}

// WithInterval sets the time delay between loop iterations.
//
// Useful for rate limiting and polling scenarios. Set to 0 for no delay.
func WithInterval(d time.Duration) LoopOption {
	return func(l *LoopAgent) { l.interval = d }
}

// WithPredicate sets a termination condition evaluated after every iteration
// against the text of the iteration's last non-partial event. Returning true
// ends the loop.
//
// Example:
//
//	WithPredicate(func(output string) bool {
//	    return strings.Contains(output, "COMPLETE")
//	})
func WithPredicate(pred func(string) bool) LoopOption {
	return func(l *LoopAgent) { l.predicate = pred }
}

// NewLoopAgent constructs a looping coordinator around a child agent.
// Defaults: 100 iterations, no interval, stop on first error.
func NewLoopAgent(name string, child core.Agent, opts ...LoopOption) *LoopAgent {
	la := &LoopAgent{
		BaseAgent:   NewBaseAgent(name),
		child:       child,
		maxIters:    100,
		stopOnError: true,
	}

	for _, o := range opts {
		o(la)
	}

	return la
}

// Child returns the agent executed on each iteration.
func (l *LoopAgent) Child() core.Agent {
	return l.child
}

// Run implements core.Agent. It executes the child repeatedly until the
// iteration budget is exhausted, the child escalates, the predicate matches
// or the context is cancelled. Escalation terminates the loop without error.
func (l *LoopAgent) Run(runCtx *core.RunContext) error {
	runCtx.LogDebug("agent.loop.start", "agent", l.Name(), "max_iters", l.maxIters)

	for i := 0; i < l.maxIters; i++ {
		select {
		case <-runCtx.Done():
			return runCtx.Err()
		default:
		}

		lastText, err := l.runIteration(runCtx)

		if errors.Is(err, ErrEscalated) {
			runCtx.LogInfo("agent.loop.escalated", "agent", l.Name(), "iteration", i+1)
			return nil
		}

		if err != nil {
			if l.stopOnError {
				return fmt.Errorf("loop iteration %d failed for agent %s: %w", i+1, l.child.Name(), err)
			}
			runCtx.LogWarn("agent.loop.iteration_failed", "agent", l.Name(), "iteration", i+1, "error", err.Error())
		}

		if l.predicate != nil && l.predicate(lastText) {
			runCtx.LogDebug("agent.loop.predicate_met", "agent", l.Name(), "iteration", i+1)
			return nil
		}

		if l.interval > 0 && i < l.maxIters-1 {
			select {
			case <-runCtx.Done():
				return runCtx.Err()
			case <-time.After(l.interval):
			}
		}
	}

	runCtx.LogDebug("agent.loop.complete", "agent", l.Name(), "iterations", l.maxIters)

	return nil
}

// runIteration executes the child once behind a relay that inspects events
// for escalation. It returns the text of the last non-partial event and
// ErrEscalated when the child raised the escalate action.
//
// The relay acknowledges the child after every forwarded non-partial event,
// including the escalation event itself, so the child always finishes its
// run cleanly before the loop stops.
func (l *LoopAgent) runIteration(runCtx *core.RunContext) (string, error) {
	childEmit := make(chan core.Event)
	childResume := make(chan struct{}, 1)

	childCtx := runCtx.NewChildContext(childEmit, childResume, runCtx.Branch)
	childCtx.Agent = core.AgentInfo{Name: l.child.Name(), Type: "agent"}

	runErrCh := make(chan error, 1)

	// The runner closes childEmit only after Run returns; the relay loop
	// below therefore terminates exactly when the child is done.
	go func() {
		runErrCh <- l.child.Run(childCtx)
		close(childEmit)
	}()

	var (
		escalated bool
		lastText  string
		relayErr  error
	)

	for ev := range childEmit {
		if relayErr != nil {
			// Drain without forwarding; the child unwinds via its own
			// context checks once cancellation has begun.
			continue
		}

		err := forwardEvent(runCtx, ev)
		if err == nil && !ev.IsPartial() {
			err = runCtx.WaitForResume()
		}
		if err != nil {
			relayErr = err
			continue
		}

		if ev.IsPartial() {
			continue
		}

		if ev.Actions.Escalate != nil && *ev.Actions.Escalate {
			escalated = true
		}
		if ev.Content != nil {
			if text := ev.Content.Text(); text != "" {
				lastText = text
			}
		}

		select {
		case childResume <- struct{}{}:
		case <-runCtx.Done():
			relayErr = runCtx.Err()
		}
	}

	runErr := <-runErrCh

	if relayErr != nil {
		return lastText, relayErr
	}
	if runErr != nil {
		return lastText, runErr
	}
	if escalated {
		return lastText, ErrEscalated
	}

	return lastText, nil
}

// CreateEscalationEvent constructs an event carrying the escalate action.
// Agents emit it when they cannot complete their task and want an enclosing
// loop to stop iterating.
func CreateEscalationEvent(invocationID, author string, content *core.Content) core.Event {
	escalate := true
	ev := core.NewEvent(invocationID, author)
	ev.Actions.Escalate = &escalate
	ev.Content = content
	return ev
}

// Interface compliance (compile-time assertion)
var _ core.Agent = (*LoopAgent)(nil)
