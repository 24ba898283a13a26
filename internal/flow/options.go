package flow

import "time"

// Options configures engine execution. Zero values are valid; the engine
// applies no limit where a field is unset.
type Options struct {
	// MaxSteps bounds the number of node executions per run, guarding
	// against routing loops. 0 disables the guard.
	MaxSteps int

	// DefaultNodeTimeout applies to nodes without a NodePolicy.Timeout.
	// 0 means unlimited.
	DefaultNodeTimeout time.Duration

	// Metrics receives engine instrumentation when non-nil.
	Metrics *PrometheusMetrics
}

// Option customizes engine construction.
//
//	eng := flow.New(reducer, st, emitter,
//	    flow.WithMaxSteps(50),
//	    flow.WithDefaultNodeTimeout(10*time.Minute),
//	)
type Option func(*Options)

// WithMaxSteps bounds node executions per run. Review graphs are short
// (≤10 steps plus bounded replans), so a small limit catches routing bugs
// early.
func WithMaxSteps(n int) Option {
	return func(o *Options) { o.MaxSteps = n }
}

// WithDefaultNodeTimeout sets the timeout for nodes without an explicit
// policy. Per-node NodePolicy.Timeout takes precedence.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(o *Options) { o.DefaultNodeTimeout = d }
}

// WithMetrics attaches Prometheus instrumentation to the engine loop.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(o *Options) { o.Metrics = m }
}
