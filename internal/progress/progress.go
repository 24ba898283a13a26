// Package progress renders the run's event stream as console status lines.
// It is an emit.Emitter, so the CLI composes it with the other emitters and
// drops it entirely under --quiet.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/dshills/reviewflow/internal/flow/emit"
)

// stageLabels maps workflow node IDs to human status lines. Unknown nodes
// fall back to their raw ID.
var stageLabels = map[string]string{
	"analyze-structure": "Analyzing project structure",
	"plan-tasks":        "Planning review tasks",
	"dispatch":          "Reviewing code",
	"run-tests":         "Running tests",
	"perf-analysis":     "Analyzing performance",
	"report":            "Writing reports",
	"perf-extract":      "Extracting code units",
	"perf-analyze":      "Profiling and scanning memory use",
	"perf-hotspots":     "Ranking hotspots",
	"perf-advise":       "Drafting optimization advice",
}

type styles struct {
	stage   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	fail    lipgloss.Style
	muted   lipgloss.Style
}

func newStyles(colored bool) styles {
	if !colored {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain, plain}
	}
	return styles{
		stage:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("120")),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		fail:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}
}

// Renderer writes one line per interesting event. Lines are serialized under
// a mutex because dispatch workers emit concurrently.
type Renderer struct {
	mu  sync.Mutex
	out io.Writer
	st  styles
}

var _ emit.Emitter = (*Renderer)(nil)

// New builds a renderer for out. Color is enabled only when out is a
// terminal.
func New(out io.Writer) *Renderer {
	return &Renderer{out: out, st: newStyles(isTTY(out))}
}

// isTTY reports whether w is a terminal.
func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Emit implements emit.Emitter.
func (r *Renderer) Emit(ev emit.Event) {
	line, ok := r.line(ev)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, line)
}

func (r *Renderer) line(ev emit.Event) (string, bool) {
	switch ev.Msg {
	case "run_start":
		return r.st.muted.Render(fmt.Sprintf("run %s started", ev.RunID)), true
	case "run_end":
		d := msDuration(metaInt(ev.Meta, "duration_ms"))
		return r.st.success.Render(fmt.Sprintf("run %s complete in %s", ev.RunID, d)), true
	case "run_resumed":
		return r.st.muted.Render(fmt.Sprintf("run %s resumed from checkpoint %v", ev.RunID, ev.Meta["checkpoint_id"])), true
	case "checkpoint_saved":
		return r.st.muted.Render(fmt.Sprintf("checkpoint %v saved", ev.Meta["checkpoint_id"])), true

	case "node_start":
		return r.st.stage.Render("▸ " + stageLabel(ev.NodeID)), true
	case "node_end":
		d := msDuration(metaInt(ev.Meta, "duration_ms"))
		return r.st.success.Render(fmt.Sprintf("✓ %s (%s)", stageLabel(ev.NodeID), d)), true
	case "node_error":
		return r.st.fail.Render(fmt.Sprintf("✗ %s: %s", stageLabel(ev.NodeID), metaString(ev.Meta, "error"))), true
	case "node_retry":
		return r.st.warning.Render(fmt.Sprintf("↻ %s retry %d", stageLabel(ev.NodeID), metaInt(ev.Meta, "attempt"))), true

	case "inventory_done":
		return r.st.muted.Render(fmt.Sprintf("  %d file(s), primary language %s",
			metaInt(ev.Meta, "files"), metaString(ev.Meta, "language"))), true
	case "plan_retry":
		return r.st.warning.Render(fmt.Sprintf("  ↻ replanning (attempt %d): %s",
			metaInt(ev.Meta, "attempt"), clip(metaString(ev.Meta, "reason"), 100))), true
	case "plan_done":
		return r.st.muted.Render(fmt.Sprintf("  %d task(s) planned", metaInt(ev.Meta, "tasks"))), true

	case "task_start":
		return r.st.muted.Render(fmt.Sprintf("  ▸ task %d: %s",
			metaInt(ev.Meta, "task"), metaString(ev.Meta, "name"))), true
	case "task_done":
		id := metaInt(ev.Meta, "task")
		if metaString(ev.Meta, "status") == "failed" {
			return r.st.warning.Render(fmt.Sprintf("  ✗ task %d failed: %s",
				id, clip(metaString(ev.Meta, "error"), 100))), true
		}
		return r.st.success.Render(fmt.Sprintf("  ✓ task %d: %d finding(s) (%s)",
			id, metaInt(ev.Meta, "findings"), msDuration(metaInt(ev.Meta, "ms")))), true

	case "test_done":
		name := metaString(ev.Meta, "name")
		switch metaString(ev.Meta, "outcome") {
		case "pass":
			return r.st.success.Render(fmt.Sprintf("  ✓ %s (%s)", name, msDuration(metaInt(ev.Meta, "ms")))), true
		case "fail":
			return r.st.fail.Render(fmt.Sprintf("  ✗ %s (exit %d)", name, metaInt(ev.Meta, "exit"))), true
		default:
			return r.st.fail.Render(fmt.Sprintf("  ! %s did not run", name)), true
		}

	case "perf_done":
		return r.st.muted.Render(fmt.Sprintf("  %d function(s), %d hotspot(s), %d memory risk(s)",
			metaInt(ev.Meta, "functions"), metaInt(ev.Meta, "hotspots"), metaInt(ev.Meta, "risks"))), true
	case "perf_failed":
		return r.st.warning.Render("  performance analysis failed: " + clip(metaString(ev.Meta, "error"), 120)), true

	case "reports_written":
		return r.st.success.Render(fmt.Sprintf("Reports written to %s (%d file(s))",
			metaString(ev.Meta, "dir"), metaInt(ev.Meta, "count"))), true
	}
	return "", false
}

func stageLabel(nodeID string) string {
	if label, ok := stageLabels[nodeID]; ok {
		return label
	}
	return nodeID
}

func msDuration(ms int64) time.Duration {
	return (time.Duration(ms) * time.Millisecond).Round(10 * time.Millisecond)
}

func clip(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func metaInt(meta map[string]interface{}, key string) int64 {
	switch v := meta[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func metaString(meta map[string]interface{}, key string) string {
	if s, ok := meta[key].(string); ok {
		return s
	}
	return ""
}
