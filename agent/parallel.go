package agent

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentruntime/core"
)

// ParallelAgent runs its child agents concurrently and relays their events to
// the parent channel.
//
// Every child gets a branch label of the form "Parent.Child" plus its own
// emit/resume channel pair; a relay goroutine per child forwards events to the
// parent channel. The relay serializes the forward-then-resume handshake
// across children so that each appended event is acknowledged to the child
// that produced it, never to a sibling. Partial events are forwarded without
// a handshake since they are not persisted.
//
// Children observe the session state as it was when the parallel run began;
// their own state deltas travel on their events and reach the session in
// append order.
type ParallelAgent struct {
	BaseAgent
	children []core.Agent
}

// NewParallelAgent creates a coordinator that runs children concurrently.
func NewParallelAgent(name string, children ...core.Agent) *ParallelAgent {
	return &ParallelAgent{
		BaseAgent: NewBaseAgent(name),
		children:  children,
	}
}

// Children returns the child agents.
func (p *ParallelAgent) Children() []core.Agent {
	return p.children
}

// Run implements core.Agent. It starts every child concurrently and returns
// the first child error after all children have finished.
func (p *ParallelAgent) Run(runCtx *core.RunContext) error {
	runCtx.LogDebug("agent.parallel.start", "agent", p.Name(), "children", len(p.children))

	var (
		wg        sync.WaitGroup
		forwardMu sync.Mutex // serializes the emit+resume pair on the parent channels
		errMu     sync.Mutex
		firstErr  error
	)

	record := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}

	for _, child := range p.children {
		childEmit := make(chan core.Event)
		childResume := make(chan struct{}, 1)

		childCtx := runCtx.NewChildContext(childEmit, childResume, buildBranchPath(p.Name(), child.Name()))
		childCtx.Agent = core.AgentInfo{Name: child.Name(), Type: "agent"}

		runErrCh := make(chan error, 1)

		// The runner closes childEmit only after Run returns, so the relay
		// below sees a clean end of stream.
		go func(c core.Agent, ctx *core.RunContext, emit chan core.Event, errCh chan<- error) {
			errCh <- c.Run(ctx)
			close(emit)
		}(child, childCtx, childEmit, runErrCh)

		wg.Add(1)
		go func(c core.Agent, emit <-chan core.Event, resume chan<- struct{}, errCh <-chan error) {
			defer wg.Done()

			for ev := range emit {
				if err := p.relay(runCtx, &forwardMu, ev, resume); err != nil {
					record(fmt.Errorf("parallel agent %s: %w", c.Name(), err))
				}
			}

			// The runner has sent by the time emit closes.
			if err := <-errCh; err != nil {
				record(fmt.Errorf("parallel agent %s: %w", c.Name(), err))
			}
		}(child, childEmit, childResume, runErrCh)
	}

	wg.Wait()

	if firstErr != nil {
		runCtx.LogError("agent.parallel.error", "agent", p.Name(), "error", firstErr.Error())
		return firstErr
	}

	runCtx.LogDebug("agent.parallel.complete", "agent", p.Name())

	return nil
}

// relay forwards one child event to the parent channel. Non-partial events
// hold the forward lock across the append handshake and acknowledge the child
// afterwards.
func (p *ParallelAgent) relay(runCtx *core.RunContext, forwardMu *sync.Mutex, ev core.Event, resume chan<- struct{}) error {
	if ev.IsPartial() {
		forwardMu.Lock()
		err := forwardEvent(runCtx, ev)
		forwardMu.Unlock()
		return err
	}

	forwardMu.Lock()
	err := forwardEvent(runCtx, ev)
	if err == nil {
		err = runCtx.WaitForResume()
	}
	forwardMu.Unlock()

	if err != nil {
		return err
	}

	select {
	case resume <- struct{}{}:
		return nil
	case <-runCtx.Done():
		return runCtx.Err()
	}
}

// Interface compliance (compile-time assertion)
var _ core.Agent = (*ParallelAgent)(nil)
