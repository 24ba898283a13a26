package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/reviewflow/internal/flow"
	"github.com/dshills/reviewflow/internal/flow/emit"
	"github.com/dshills/reviewflow/internal/perf"
	"github.com/dshills/reviewflow/internal/report"
)

// ReportNode is the terminal aggregation step. It renders every document the
// run produced, persists worker-generated test scripts, and copies any
// user-supplied test scripts next to them.
//
// Write failures are fatal: a review whose output cannot be persisted has
// produced nothing.
type ReportNode struct {
	Writer  *report.Writer
	Emitter emit.Emitter
}

func (n *ReportNode) Run(ctx context.Context, state JobState) flow.NodeResult[JobState] {
	if err := ctx.Err(); err != nil {
		return flow.NodeResult[JobState]{Err: err}
	}

	docs := []report.Document{
		{Name: "project_structure.md", Content: RenderStructureDoc(state)},
		{Name: "style_report.md", Content: RenderStyleReport(state)},
	}
	if state.Performance != nil {
		docs = append(docs, report.Document{
			Name:    "performance_analysis.md",
			Content: perf.Render(*state.Performance),
		})
	}

	written, err := n.Writer.WriteDocuments(docs)
	if err != nil {
		return flow.NodeResult[JobState]{Err: err}
	}

	var warnings []string
	for _, id := range state.taskOrder() {
		res := state.Results[id]
		for _, artifact := range res.GeneratedTests {
			path, err := n.Writer.WriteGeneratedTest(artifact.Name, artifact.Content)
			if err != nil {
				return flow.NodeResult[JobState]{Err: err}
			}
			written = append(written, path)
		}
	}

	if state.Job.TestDir != "" {
		copied, err := n.Writer.CopyUserTests(state.Job.TestDir)
		var werr *report.WriteError
		switch {
		case errors.As(err, &werr):
			return flow.NodeResult[JobState]{Err: err}
		case err != nil:
			warnings = append(warnings, fmt.Sprintf("user tests not copied: %v", err))
		default:
			written = append(written, copied...)
		}
	}

	n.emit(state.Job.RunID, "reports_written", map[string]interface{}{
		"dir":   n.Writer.Dir,
		"count": len(written),
	})
	return flow.NodeResult[JobState]{
		Delta: JobState{Reports: written, Warnings: warnings},
		Route: flow.Stop(),
	}
}

func (n *ReportNode) emit(runID, msg string, meta map[string]interface{}) {
	if n.Emitter == nil {
		return
	}
	n.Emitter.Emit(emit.Event{RunID: runID, NodeID: NodeReport, Msg: msg, Meta: meta})
}
