package perf

import (
	"fmt"
	"sort"
)

// MaxHotspots bounds the ranked list.
const MaxHotspots = 10

// DetectHotspots scores every code unit and returns the top MaxHotspots,
// ranked descending by score with (file, start line) breaking ties.
//
// Static score: min(loops*0.2, 1.0), +0.3 recursive, +0.2 when a unit has
// more than 5 distinct callees, +0.2 when the body exceeds 1000 chars,
// +0.15 when a high-severity memory risk shares the file. When a measured
// CPU percentage exists it contributes cpu/100*2 weighted 0.6 against 0.4
// static; otherwise the static score stands alone.
func DetectHotspots(units []CodeUnit, risks []MemoryRisk, dyn *DynamicMetrics) []Hotspot {
	highRiskFiles := make(map[string]bool)
	for _, r := range risks {
		if r.Severity == "high" {
			highRiskFiles[r.File] = true
		}
	}

	dynamicScore := 0.0
	hasDynamic := dyn != nil && dyn.CPUPercent > 0
	if hasDynamic {
		dynamicScore = float64(dyn.CPUPercent) / 100.0 * 2.0
	}

	hotspots := make([]Hotspot, 0, len(units))
	for _, unit := range units {
		static, reasons := staticScore(unit, highRiskFiles)

		score := static
		if hasDynamic {
			score = static*0.4 + dynamicScore*0.6
			reasons = append(reasons, fmt.Sprintf("measured CPU %d%%", dyn.CPUPercent))
		}

		hotspots = append(hotspots, Hotspot{
			Name:         unit.Name,
			File:         unit.File,
			StartLine:    unit.StartLine,
			EndLine:      unit.EndLine,
			Score:        score,
			StaticScore:  static,
			DynamicScore: dynamicScore,
			Severity:     scoreSeverity(score),
			Reasons:      reasons,
		})
	}

	sort.SliceStable(hotspots, func(i, j int) bool {
		if hotspots[i].Score != hotspots[j].Score {
			return hotspots[i].Score > hotspots[j].Score
		}
		if hotspots[i].File != hotspots[j].File {
			return hotspots[i].File < hotspots[j].File
		}
		return hotspots[i].StartLine < hotspots[j].StartLine
	})

	if len(hotspots) > MaxHotspots {
		hotspots = hotspots[:MaxHotspots]
	}
	for i := range hotspots {
		hotspots[i].Rank = i + 1
	}
	return hotspots
}

func staticScore(unit CodeUnit, highRiskFiles map[string]bool) (float64, []string) {
	score := 0.0
	var reasons []string

	if unit.Loops > 0 {
		loopScore := float64(unit.Loops) * 0.2
		if loopScore > 1.0 {
			loopScore = 1.0
		}
		score += loopScore
		reasons = append(reasons, fmt.Sprintf("%d loop(s)", unit.Loops))
	}
	if unit.Recursive {
		score += 0.3
		reasons = append(reasons, "recursive")
	}
	if unit.Calls > 5 {
		score += 0.2
		reasons = append(reasons, fmt.Sprintf("%d distinct callees", unit.Calls))
	}
	if len(unit.Snippet) > 1000 {
		score += 0.2
		reasons = append(reasons, "large body")
	}
	if highRiskFiles[unit.File] {
		score += 0.15
		reasons = append(reasons, "high-severity memory risk in file")
	}

	return score, reasons
}

func scoreSeverity(score float64) string {
	switch {
	case score > 1.5:
		return "high"
	case score > 0.8:
		return "medium"
	default:
		return "low"
	}
}
