// Package logging defines the logger seam used across the runtime.
//
// Logger is the four-method interface (Debug, Info, Warn, Error) that the
// dispatcher, stores, agents and tools log through; implementations receive
// a message plus alternating key/value attributes. Provided implementations:
//
//   - RuntimeLogger, an slog-backed logger that carries scope attributes
//     (component, session_id, invocation_id) through With* cloning
//   - SlogAdapter for wrapping an existing *slog.Logger
//   - NoOpLogger, which discards everything
//
// Wiring happens through options at construction time:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	r := runner.New(appName, agent, func(o *runner.Options) {
//		o.Logger = logger.WithComponent("runner")
//	})
//
// Keeping the interface this small lets callers drop in any structured
// logging backend.
package logging
