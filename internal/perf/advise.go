package perf

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/reviewflow/internal/flow"
	"github.com/dshills/reviewflow/internal/llm"
)

// maxAdvised bounds how many hotspots and memory risks feed the rule table.
const maxAdvised = 5

var priorityRank = map[string]int{"high": 0, "medium": 1, "low": 2}

// SuggestOptimizations applies the rule table to the top hotspots and
// memory risks: repeated loops suggest fusion, high call fan-out suggests
// caching, leaks and missing NULL checks become memory fixes. Duplicate
// (target, category) pairs collapse to the first; the result is ordered
// high, medium, low.
func SuggestOptimizations(state State) []Optimization {
	unitsByKey := make(map[string]CodeUnit, len(state.CodeUnits))
	for _, u := range state.CodeUnits {
		unitsByKey[u.File+"|"+u.Name] = u
	}

	var opts []Optimization
	for i, h := range state.Hotspots {
		if i >= maxAdvised {
			break
		}
		unit, ok := unitsByKey[h.File+"|"+h.Name]
		if !ok {
			continue
		}
		if unit.Loops >= 2 {
			opts = append(opts, Optimization{
				Target:   unit.Name,
				File:     unit.File,
				Category: "loop",
				Priority: "medium",
				Problem:  fmt.Sprintf("%s contains %d loops", unit.Name, unit.Loops),
				Solution: "fuse adjacent loops over the same range and hoist loop-invariant work",
				Expected: "fewer passes over the data, less loop overhead",
			})
		}
		if unit.Calls >= 8 {
			opts = append(opts, Optimization{
				Target:   unit.Name,
				File:     unit.File,
				Category: "cache",
				Priority: "medium",
				Problem:  fmt.Sprintf("%s fans out to %d distinct callees", unit.Name, unit.Calls),
				Solution: "cache repeated intermediate results and batch fine-grained calls",
				Expected: "less call overhead and repeated computation",
			})
		}
	}

	for i, r := range state.MemoryRisks {
		if i >= maxAdvised {
			break
		}
		switch r.Kind {
		case "potential_leak":
			opts = append(opts, Optimization{
				Target:   fmt.Sprintf("%s:%d", r.File, r.Line),
				File:     r.File,
				Category: "memory",
				Priority: "high",
				Problem:  r.Description,
				Solution: r.Suggestion,
				Expected: "no leaked allocations",
			})
		case "missing_null_check":
			opts = append(opts, Optimization{
				Target:   fmt.Sprintf("%s:%d", r.File, r.Line),
				File:     r.File,
				Category: "memory",
				Priority: "medium",
				Problem:  r.Description,
				Solution: r.Suggestion,
				Expected: "no NULL dereference on allocation failure",
			})
		}
	}

	return dedupeOptimizations(opts)
}

func dedupeOptimizations(opts []Optimization) []Optimization {
	seen := make(map[string]bool, len(opts))
	out := make([]Optimization, 0, len(opts))
	for _, o := range opts {
		key := o.Target + "|" + o.Category
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rankOf(out[i].Priority) < rankOf(out[j].Priority)
	})
	return out
}

func rankOf(priority string) int {
	if r, ok := priorityRank[priority]; ok {
		return r
	}
	return len(priorityRank)
}

// AdviseNode is the terminal pipeline stage: it applies the rule table and,
// when a completer is configured, asks it for a narrative recommendation.
// A failed completion degrades to rules-only output.
type AdviseNode struct {
	Completer llm.Completer
}

// Run implements flow.Node.
func (n *AdviseNode) Run(ctx context.Context, state State) flow.NodeResult[State] {
	delta := State{Optimizations: SuggestOptimizations(state)}

	if n.Completer != nil && len(state.Hotspots) > 0 {
		advice, err := n.advise(ctx, state)
		if err != nil {
			delta.Warnings = append(delta.Warnings, fmt.Sprintf("optimization narrative: %v", err))
		} else {
			delta.Advice = advice
		}
	}

	return flow.NodeResult[State]{Delta: delta, Route: flow.Stop()}
}

func (n *AdviseNode) advise(ctx context.Context, state State) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Language: %s\n\nTop hotspots:\n", state.Language)
	for i, h := range state.Hotspots {
		if i >= maxAdvised {
			break
		}
		fmt.Fprintf(&sb, "%d. %s (%s:%d-%d) score %.2f: %s\n",
			h.Rank, h.Name, h.File, h.StartLine, h.EndLine, h.Score, strings.Join(h.Reasons, ", "))
		if unit := findUnit(state.CodeUnits, h); unit != nil {
			fmt.Fprintf(&sb, "```%s\n%s\n```\n", unit.Language, truncateTo(unit.Snippet, 800))
		}
	}
	if len(state.MemoryRisks) > 0 {
		sb.WriteString("\nMemory risks:\n")
		for i, r := range state.MemoryRisks {
			if i >= maxAdvised {
				break
			}
			fmt.Fprintf(&sb, "- [%s] %s:%d %s\n", r.Severity, r.File, r.Line, r.Description)
		}
	}
	if state.Dynamic != nil {
		fmt.Fprintf(&sb, "\nMeasured: %.2fs elapsed, CPU %d%%, max RSS %d KB (%s)\n",
			state.Dynamic.ElapsedSeconds, state.Dynamic.CPUPercent, state.Dynamic.MaxRSSKB, state.Dynamic.Tool)
	}

	text, err := n.Completer.Complete(ctx, llm.Request{
		System: "You are a performance engineer. Given hotspot functions, memory risks, and measurements, write a short Markdown section of concrete optimization recommendations. Order them by expected impact. Refer to functions and files by name.",
		Prompt: sb.String(),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func findUnit(units []CodeUnit, h Hotspot) *CodeUnit {
	for i := range units {
		if units[i].Name == h.Name && units[i].File == h.File {
			return &units[i]
		}
	}
	return nil
}

func truncateTo(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n..."
}
