package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/reviewflow/internal/flow"
	"github.com/dshills/reviewflow/internal/flow/emit"
	"github.com/dshills/reviewflow/internal/llm"
	"github.com/dshills/reviewflow/internal/testrun"
)

// RunTestsNode executes the job's test commands and test directory scripts
// and records their outcomes. Failing tests are data, not errors: the node
// only aborts on context cancellation. When a completer is configured the
// node also asks it for a short interpretation of the outcomes.
type RunTestsNode struct {
	Runner    *testrun.Runner
	Completer llm.Completer
	Emitter   emit.Emitter
	Metrics   *flow.PrometheusMetrics
}

// Run implements flow.Node.
func (n *RunTestsNode) Run(ctx context.Context, state JobState) flow.NodeResult[JobState] {
	var delta JobState

	n.Runner.OnResult = func(res testrun.Result) {
		if res.TimedOut {
			n.Metrics.RecordProcessTimeout(state.Job.RunID, "test")
		}
		n.emit(state.Job.RunID, "test_done", map[string]interface{}{
			"name":    res.Name,
			"outcome": string(res.Outcome),
			"exit":    res.ExitCode,
			"ms":      res.Duration.Milliseconds(),
		})
	}

	if len(state.Job.TestCommands) > 0 {
		delta.TestResults = append(delta.TestResults,
			n.Runner.RunCommands(ctx, state.Job.ProjectPath, state.Job.TestCommands)...)
	}
	if state.Job.TestDir != "" {
		results, err := n.Runner.RunDir(ctx, state.Job.ProjectPath, state.Job.TestDir)
		if err != nil {
			delta.Warnings = append(delta.Warnings, fmt.Sprintf("test directory: %v", err))
		}
		delta.TestResults = append(delta.TestResults, results...)
	}
	if ctx.Err() != nil {
		return flow.NodeResult[JobState]{Err: ctx.Err()}
	}

	if len(delta.TestResults) > 0 && n.Completer != nil {
		analysis, err := n.analyze(ctx, delta.TestResults)
		if err != nil {
			delta.Warnings = append(delta.Warnings, fmt.Sprintf("test analysis: %v", err))
		} else {
			delta.TestAnalysis = analysis
		}
	}

	return flow.NodeResult[JobState]{Delta: delta}
}

func (n *RunTestsNode) analyze(ctx context.Context, results []testrun.Result) (string, error) {
	var sb strings.Builder
	pass, fail := 0, 0
	for _, r := range results {
		if r.Outcome == testrun.OutcomePass {
			pass++
		} else {
			fail++
		}
	}
	fmt.Fprintf(&sb, "Test run: %d passed, %d failed or errored.\n\n", pass, fail)
	for _, r := range results {
		fmt.Fprintf(&sb, "[%s] %s (exit %d)\n", r.Outcome, r.Name, r.ExitCode)
		fmt.Fprintf(&sb, "command: %s\n", r.Command)
		if out := tail(r.Stdout, 1500); out != "" {
			fmt.Fprintf(&sb, "stdout:\n%s\n", out)
		}
		if errOut := tail(r.Stderr, 1500); errOut != "" {
			fmt.Fprintf(&sb, "stderr:\n%s\n", errOut)
		}
		sb.WriteString("\n")
	}

	text, err := n.Completer.Complete(ctx, llm.Request{
		System: "You are a test engineer. Summarize the test outcomes below in a few Markdown bullet points: what passed, what failed, and the most likely cause of each failure. Be specific and brief.",
		Prompt: sb.String(),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// tail keeps the end of process output, where failure summaries usually are.
func tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "... " + s[len(s)-max:]
}

func (n *RunTestsNode) emit(runID, msg string, meta map[string]interface{}) {
	if n.Emitter == nil {
		return
	}
	n.Emitter.Emit(emit.Event{RunID: runID, NodeID: NodeRunTests, Msg: msg, Meta: meta})
}
