package perf

import "fmt"

// ExtractionError aborts the performance pipeline: no code units could be
// extracted, so nothing downstream can run. The review job records it as a
// failure notice and continues.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return "code extraction failed: " + e.Reason
}

// ProfilingError is contained: static analysis proceeds without dynamic
// metrics and the report carries a profiling-skipped notice.
type ProfilingError struct {
	Reason   string
	Cause    error
	TimedOut bool
}

func (e *ProfilingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("profiling failed: %s: %v", e.Reason, e.Cause)
	}
	return "profiling failed: " + e.Reason
}

func (e *ProfilingError) Unwrap() error { return e.Cause }
