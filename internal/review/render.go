package review

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dshills/reviewflow/internal/testrun"
)

var severityRank = map[string]int{
	"critical": 0,
	"high":     1,
	"medium":   2,
	"low":      3,
	"info":     4,
}

// RenderStructureDoc produces project_structure.md: metadata, the directory
// tree, and the completer's narrative.
func RenderStructureDoc(state JobState) string {
	var sb strings.Builder
	sb.WriteString("# Project Structure\n\n")
	fmt.Fprintf(&sb, "- Root: `%s`\n", state.Job.ProjectPath)
	fmt.Fprintf(&sb, "- Source files: %d\n", state.Structure.FileCount)
	if state.Structure.PrimaryLanguage != "" {
		fmt.Fprintf(&sb, "- Primary language: %s\n", state.Structure.PrimaryLanguage)
	}
	sb.WriteString("\n## Directory Layout\n\n")
	sb.WriteString("```\n")
	sb.WriteString(strings.TrimRight(state.Structure.Tree, "\n"))
	sb.WriteString("\n```\n\n")
	if state.Structure.Narrative != "" {
		sb.WriteString(state.Structure.Narrative)
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderStyleReport produces style_report.md: a summary table, one section
// per task in ascending ID order (failed tasks render their reason), the
// test outcomes, and accumulated warnings.
func RenderStyleReport(state JobState) string {
	var sb strings.Builder
	sb.WriteString("# Code Review Report\n\n")

	renderReviewSummary(&sb, state)
	for _, task := range state.Tasks {
		renderTaskSection(&sb, task, state.Results[task.ID])
	}
	renderTestSection(&sb, state)

	if len(state.Warnings) > 0 {
		sb.WriteString("## Warnings\n\n")
		for _, w := range state.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderReviewSummary(sb *strings.Builder, state JobState) {
	completed, failed := 0, 0
	bySeverity := map[string]int{}
	for _, res := range state.Results {
		if res.Status == StatusFailed {
			failed++
			continue
		}
		completed++
		for _, f := range res.Findings {
			bySeverity[f.Severity]++
		}
	}

	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(sb, "| Tasks | Completed | Failed | Findings |\n|---|---|---|---|\n")
	fmt.Fprintf(sb, "| %d | %d | %d | %d |\n\n", len(state.Tasks), completed, failed, len(state.AllFindings()))

	if len(bySeverity) > 0 {
		var parts []string
		for _, sev := range []string{"critical", "high", "medium", "low", "info"} {
			if n := bySeverity[sev]; n > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", n, sev))
			}
		}
		fmt.Fprintf(sb, "Findings by severity: %s.\n\n", strings.Join(parts, ", "))
	}
}

func renderTaskSection(sb *strings.Builder, task Task, res WorkerResult) {
	fmt.Fprintf(sb, "## Task %d: %s\n\n", task.ID, task.Name)
	fmt.Fprintf(sb, "Files: %s\n\n", backtickList(task.Files))
	if task.Description != "" {
		sb.WriteString(task.Description)
		sb.WriteString("\n\n")
	}

	if res.Status == StatusFailed {
		fmt.Fprintf(sb, "**Review failed**: %s\n\n", res.FailReason)
		return
	}

	findings := ConsolidateFindings(res.Findings)
	if len(findings) == 0 {
		sb.WriteString("No findings.\n\n")
	}
	for _, f := range findings {
		fmt.Fprintf(sb, "- **%s**", f.Severity)
		if f.File != "" {
			fmt.Fprintf(sb, " `%s", f.File)
			if f.Line > 0 {
				fmt.Fprintf(sb, ":%d", f.Line)
			}
			sb.WriteString("`")
		}
		if f.Category != "" {
			fmt.Fprintf(sb, " (%s)", f.Category)
		}
		fmt.Fprintf(sb, ": %s", f.Description)
		if f.Suggestion != "" {
			fmt.Fprintf(sb, " Suggestion: %s", f.Suggestion)
		}
		sb.WriteString("\n")
	}
	if len(findings) > 0 {
		sb.WriteString("\n")
	}

	if len(res.GeneratedTests) > 0 {
		names := make([]string, 0, len(res.GeneratedTests))
		for _, t := range res.GeneratedTests {
			names = append(names, t.Name)
		}
		fmt.Fprintf(sb, "Generated test scripts: %s (under `tests/generated/`).\n\n", backtickList(names))
	}
}

func renderTestSection(sb *strings.Builder, state JobState) {
	if len(state.TestResults) == 0 {
		return
	}
	sb.WriteString("## Test Results\n\n")
	for _, r := range state.TestResults {
		fmt.Fprintf(sb, "### %s: %s\n\n", r.Name, strings.ToUpper(string(r.Outcome)))
		fmt.Fprintf(sb, "- Command: `%s`\n", r.Command)
		fmt.Fprintf(sb, "- Exit code: %d\n", r.ExitCode)
		fmt.Fprintf(sb, "- Duration: %s\n\n", r.Duration.Round(time.Millisecond))
		if out := renderOutput(r); out != "" {
			sb.WriteString(out)
		}
	}
	if state.TestAnalysis != "" {
		sb.WriteString("### Analysis\n\n")
		sb.WriteString(state.TestAnalysis)
		sb.WriteString("\n\n")
	}
}

func renderOutput(r testrun.Result) string {
	var sb strings.Builder
	if out := tail(r.Stdout, 1200); out != "" {
		fmt.Fprintf(&sb, "```\n%s\n```\n\n", out)
	}
	if r.Outcome != testrun.OutcomePass {
		if errOut := tail(r.Stderr, 1200); errOut != "" {
			fmt.Fprintf(&sb, "stderr:\n\n```\n%s\n```\n\n", errOut)
		}
	}
	return sb.String()
}

// ConsolidateFindings orders findings by severity, then file, then line,
// and collapses duplicates sharing (file, line, category).
func ConsolidateFindings(findings []Finding) []Finding {
	sorted := make([]Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := rankSeverity(sorted[i].Severity), rankSeverity(sorted[j].Severity)
		if ri != rj {
			return ri < rj
		}
		if sorted[i].File != sorted[j].File {
			return sorted[i].File < sorted[j].File
		}
		return sorted[i].Line < sorted[j].Line
	})

	seen := make(map[string]bool, len(sorted))
	out := make([]Finding, 0, len(sorted))
	for _, f := range sorted {
		key := fmt.Sprintf("%s|%d|%s", f.File, f.Line, f.Category)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}

func rankSeverity(sev string) int {
	if r, ok := severityRank[sev]; ok {
		return r
	}
	return len(severityRank)
}

func backtickList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = "`" + item + "`"
	}
	return strings.Join(quoted, ", ")
}
