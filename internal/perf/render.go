package perf

import (
	"fmt"
	"strings"
)

// Render produces the performance_analysis.md document from a final
// pipeline state. A pipeline that failed outright renders its failure
// notice; a run without dynamic metrics renders static results plus a
// profiling-skipped note when profiling had been requested.
func Render(state State) string {
	var sb strings.Builder

	sb.WriteString("# Performance Analysis\n\n")
	sb.WriteString("## Overview\n\n")
	fmt.Fprintf(&sb, "- Project: `%s`\n", state.ProjectPath)
	if state.Language != "" {
		fmt.Fprintf(&sb, "- Language: %s\n", state.Language)
	}
	fmt.Fprintf(&sb, "- Functions analyzed: %d\n", len(state.CodeUnits))
	fmt.Fprintf(&sb, "- Dynamic profiling: %s\n", profilingLabel(state))
	sb.WriteString("\n")

	if state.FailureNotice != "" {
		fmt.Fprintf(&sb, "**Analysis failed**: %s\n\n", state.FailureNotice)
		renderWarnings(&sb, state.Warnings)
		return sb.String()
	}

	renderDynamic(&sb, state)
	renderHotspots(&sb, state)
	renderMemoryRisks(&sb, state)
	renderOptimizations(&sb, state)
	renderWarnings(&sb, state.Warnings)
	renderSummary(&sb, state)

	return sb.String()
}

func profilingLabel(state State) string {
	switch {
	case state.Dynamic != nil:
		return "measured with " + state.Dynamic.Tool
	case state.Profile:
		return "requested but skipped"
	default:
		return "disabled"
	}
}

func renderDynamic(sb *strings.Builder, state State) {
	sb.WriteString("## Dynamic Profiling\n\n")

	dm := state.Dynamic
	if dm == nil {
		if state.Profile {
			sb.WriteString("Profiling was requested but produced no measurements; see warnings below. Static results follow.\n\n")
		} else {
			sb.WriteString("Profiling was not requested (`--profile`). Static results follow.\n\n")
		}
		return
	}

	fmt.Fprintf(sb, "Measured one run with `%s`", dm.Tool)
	if dm.ExitCode != 0 {
		fmt.Fprintf(sb, " (program exited %d)", dm.ExitCode)
	}
	sb.WriteString(":\n\n")

	fmt.Fprintf(sb, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(sb, "| Elapsed | %.3f s |\n", dm.ElapsedSeconds)
	if dm.UserSeconds > 0 || dm.SystemSeconds > 0 {
		fmt.Fprintf(sb, "| User / system time | %.2f s / %.2f s |\n", dm.UserSeconds, dm.SystemSeconds)
	}
	if dm.CPUPercent > 0 {
		fmt.Fprintf(sb, "| CPU | %d%% |\n", dm.CPUPercent)
	}
	if dm.MaxRSSKB > 0 {
		fmt.Fprintf(sb, "| Max RSS | %.1f MB |\n", float64(dm.MaxRSSKB)/1024.0)
	}
	if dm.CacheMissRate > 0 {
		fmt.Fprintf(sb, "| Cache miss rate | %.2f%% |\n", dm.CacheMissRate)
	}
	if dm.Instructions > 0 {
		fmt.Fprintf(sb, "| Instructions | %d |\n", dm.Instructions)
	}
	if dm.VoluntaryCtxSwitches > 0 || dm.InvoluntaryCtxSwitches > 0 {
		fmt.Fprintf(sb, "| Context switches (vol/invol) | %d / %d |\n", dm.VoluntaryCtxSwitches, dm.InvoluntaryCtxSwitches)
	}
	if dm.MajorPageFaults > 0 || dm.MinorPageFaults > 0 {
		fmt.Fprintf(sb, "| Page faults (major/minor) | %d / %d |\n", dm.MajorPageFaults, dm.MinorPageFaults)
	}
	if dm.FSInputs > 0 || dm.FSOutputs > 0 {
		fmt.Fprintf(sb, "| File system I/O (in/out) | %d / %d |\n", dm.FSInputs, dm.FSOutputs)
	}
	sb.WriteString("\n")

	switch {
	case dm.CPUPercent >= 90:
		sb.WriteString("The run is CPU-bound: optimize algorithms and data layout before anything else.\n\n")
	case dm.CPUPercent > 0 && dm.CPUPercent <= 40:
		sb.WriteString("The run spends most of its time off-CPU: look at I/O, locking, or paging before micro-optimizing code.\n\n")
	}
}

func renderHotspots(sb *strings.Builder, state State) {
	sb.WriteString("## Hotspots\n\n")
	if len(state.Hotspots) == 0 {
		sb.WriteString("No hotspots detected.\n\n")
		return
	}
	for _, h := range state.Hotspots {
		fmt.Fprintf(sb, "%d. **%s** (`%s:%d-%d`): %s, score %.2f\n",
			h.Rank, h.Name, h.File, h.StartLine, h.EndLine, strings.ToUpper(h.Severity), h.Score)
		if len(h.Reasons) > 0 {
			fmt.Fprintf(sb, "   - %s\n", strings.Join(h.Reasons, "; "))
		}
	}
	sb.WriteString("\n")
}

func renderMemoryRisks(sb *strings.Builder, state State) {
	sb.WriteString("## Memory Risks\n\n")
	if len(state.MemoryRisks) == 0 {
		sb.WriteString("No memory risks detected.\n\n")
		return
	}

	counts := map[string]int{}
	for _, r := range state.MemoryRisks {
		counts[r.Severity]++
	}
	fmt.Fprintf(sb, "%d risk(s): %d high, %d medium, %d low.\n\n",
		len(state.MemoryRisks), counts["high"], counts["medium"], counts["low"])

	for _, r := range state.MemoryRisks {
		fmt.Fprintf(sb, "- **%s** `%s:%d` (%s): %s", r.Severity, r.File, r.Line, r.Kind, r.Description)
		if r.Suggestion != "" {
			fmt.Fprintf(sb, " Suggestion: %s", r.Suggestion)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func renderOptimizations(sb *strings.Builder, state State) {
	sb.WriteString("## Optimization Suggestions\n\n")
	if len(state.Optimizations) == 0 {
		sb.WriteString("No rule-based suggestions.\n\n")
	}
	for i, o := range state.Optimizations {
		fmt.Fprintf(sb, "### %d. %s (%s, %s priority)\n\n", i+1, o.Target, o.Category, o.Priority)
		fmt.Fprintf(sb, "- Problem: %s\n", o.Problem)
		fmt.Fprintf(sb, "- Suggestion: %s\n", o.Solution)
		if o.Expected != "" {
			fmt.Fprintf(sb, "- Expected effect: %s\n", o.Expected)
		}
		sb.WriteString("\n")
	}

	if state.Advice != "" {
		sb.WriteString("### Advisor Notes\n\n")
		sb.WriteString(state.Advice)
		sb.WriteString("\n\n")
	}
}

func renderWarnings(sb *strings.Builder, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	sb.WriteString("## Warnings\n\n")
	for _, w := range warnings {
		fmt.Fprintf(sb, "- %s\n", w)
	}
	sb.WriteString("\n")
}

func renderSummary(sb *strings.Builder, state State) {
	high := 0
	for _, o := range state.Optimizations {
		if o.Priority == "high" {
			high++
		}
	}
	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(sb, "- %d function(s) analyzed across the project\n", len(state.CodeUnits))
	fmt.Fprintf(sb, "- %d hotspot(s), %d memory risk(s)\n", len(state.Hotspots), len(state.MemoryRisks))
	fmt.Fprintf(sb, "- %d optimization suggestion(s), %d high priority\n", len(state.Optimizations), high)
}
