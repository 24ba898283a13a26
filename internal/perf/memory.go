package perf

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	cAllocREs = []*regexp.Regexp{
		regexp.MustCompile(`(\w+)\s*=\s*\(?\w*\s*\*?\)?\s*malloc\s*\(`),
		regexp.MustCompile(`(\w+)\s*=\s*\(?\w*\s*\*?\)?\s*calloc\s*\(`),
		regexp.MustCompile(`(\w+)\s*=\s*\(?\w*\s*\*?\)?\s*realloc\s*\(`),
	}
	cFreeRE      = regexp.MustCompile(`free\s*\(\s*(\w+)\s*\)`)
	arrayIndexRE = regexp.MustCompile(`(\w+)\s*\[\s*(\d+)\s*\]`)

	pyLargeListRE = regexp.MustCompile(`(\w+)\s*=\s*\[.*\]\s*\*\s*\d+`)

	goBareMakeRE = regexp.MustCompile(`make\s*\(\s*(?:map\[[^]]*\]\w+|\[\]\w+|chan\s+\w+)\s*\)`)
)

// AnalyzeMemory runs the static memory checks over the extracted units:
// per-function allocation hygiene, cross-function alloc/free pairing for C,
// and per-language allocation hints. Results are deduplicated by
// (kind, file, line) and ordered by file then line.
func AnalyzeMemory(units []CodeUnit, language string) []MemoryRisk {
	var risks []MemoryRisk
	for _, unit := range units {
		risks = append(risks, checkUnit(unit, language)...)
	}
	if language == "c" {
		risks = append(risks, checkAllocFreePairs(units)...)
	}
	return dedupeRisks(risks)
}

func checkUnit(unit CodeUnit, language string) []MemoryRisk {
	switch language {
	case "c":
		return checkCUnit(unit)
	case "python":
		return checkPythonUnit(unit)
	case "go":
		return checkGoUnit(unit)
	}
	return nil
}

func checkCUnit(unit CodeUnit) []MemoryRisk {
	var risks []MemoryRisk
	code := unit.Snippet

	allocVars := make(map[string]bool)
	for _, re := range cAllocREs {
		for _, loc := range re.FindAllStringSubmatchIndex(code, -1) {
			name := code[loc[2]:loc[3]]
			allocVars[name] = true

			nullCheck := regexp.MustCompile(`if\s*\(\s*` + regexp.QuoteMeta(name) + `\s*==\s*NULL`)
			if !nullCheck.MatchString(code) {
				risks = append(risks, MemoryRisk{
					Kind:        "missing_null_check",
					Severity:    "medium",
					File:        unit.File,
					Line:        snippetLine(code, loc[0], unit.StartLine),
					Function:    unit.Name,
					Description: fmt.Sprintf("'%s' is allocated without a NULL check", name),
					Suggestion:  fmt.Sprintf("check %s against NULL before use", name),
				})
			}
		}
	}

	for _, name := range sortedKeys(allocVars) {
		freeRE := regexp.MustCompile(`free\s*\(\s*` + regexp.QuoteMeta(name) + `\s*\)`)
		if !freeRE.MatchString(code) {
			risks = append(risks, MemoryRisk{
				Kind:        "potential_leak",
				Severity:    "high",
				File:        unit.File,
				Line:        unit.StartLine,
				Function:    unit.Name,
				Description: fmt.Sprintf("'%s' is allocated in %s but not freed there", name, unit.Name),
				Suggestion:  fmt.Sprintf("free %s on every exit path, or document that the caller owns it", name),
			})
		}
	}

	for _, loc := range arrayIndexRE.FindAllStringSubmatchIndex(code, -1) {
		arr := code[loc[2]:loc[3]]
		idx, err := strconv.Atoi(code[loc[4]:loc[5]])
		if err != nil || idx <= 1000 {
			continue
		}
		risks = append(risks, MemoryRisk{
			Kind:        "large_index",
			Severity:    "low",
			File:        unit.File,
			Line:        snippetLine(code, loc[0], unit.StartLine),
			Function:    unit.Name,
			Description: fmt.Sprintf("array '%s' indexed with literal %d", arr, idx),
			Suggestion:  "confirm the array is at least that large",
		})
	}

	return risks
}

func checkPythonUnit(unit CodeUnit) []MemoryRisk {
	var risks []MemoryRisk
	for _, loc := range pyLargeListRE.FindAllStringIndex(unit.Snippet, -1) {
		risks = append(risks, MemoryRisk{
			Kind:        "large_allocation",
			Severity:    "medium",
			File:        unit.File,
			Line:        snippetLine(unit.Snippet, loc[0], unit.StartLine),
			Function:    unit.Name,
			Description: "list replication allocates the whole sequence up front",
			Suggestion:  "consider a generator or iterator",
		})
	}
	return risks
}

func checkGoUnit(unit CodeUnit) []MemoryRisk {
	if unit.Loops == 0 {
		return nil
	}
	var risks []MemoryRisk
	for _, loc := range goBareMakeRE.FindAllStringIndex(unit.Snippet, -1) {
		risks = append(risks, MemoryRisk{
			Kind:        "missing_capacity_hint",
			Severity:    "low",
			File:        unit.File,
			Line:        snippetLine(unit.Snippet, loc[0], unit.StartLine),
			Function:    unit.Name,
			Description: "make without a capacity inside a looping function grows incrementally",
			Suggestion:  "preallocate with a capacity when the size is known",
		})
	}
	return risks
}

// checkAllocFreePairs pairs allocations with frees across every unit:
// a variable freed nowhere leaks; one freed more than once may double-free.
func checkAllocFreePairs(units []CodeUnit) []MemoryRisk {
	type site struct {
		file string
		line int
		fn   string
	}
	allocs := make(map[string][]site)
	frees := make(map[string][]site)

	for _, unit := range units {
		code := unit.Snippet
		for _, re := range cAllocREs {
			for _, loc := range re.FindAllStringSubmatchIndex(code, -1) {
				name := code[loc[2]:loc[3]]
				allocs[name] = append(allocs[name], site{unit.File, snippetLine(code, loc[0], unit.StartLine), unit.Name})
			}
		}
		for _, loc := range cFreeRE.FindAllStringSubmatchIndex(code, -1) {
			name := code[loc[2]:loc[3]]
			frees[name] = append(frees[name], site{unit.File, snippetLine(code, loc[0], unit.StartLine), unit.Name})
		}
	}

	var risks []MemoryRisk
	for _, name := range sortedKeys(allocs) {
		if len(frees[name]) > 0 {
			continue
		}
		for _, s := range allocs[name] {
			risks = append(risks, MemoryRisk{
				Kind:        "potential_leak",
				Severity:    "high",
				File:        s.file,
				Line:        s.line,
				Function:    s.fn,
				Description: fmt.Sprintf("'%s' is allocated in %s and never freed anywhere analyzed", name, s.fn),
				Suggestion:  "confirm the memory is released outside the analyzed scope",
			})
		}
	}
	for _, name := range sortedKeys(frees) {
		sites := frees[name]
		for _, s := range sites[1:] {
			risks = append(risks, MemoryRisk{
				Kind:        "potential_double_free",
				Severity:    "high",
				File:        s.file,
				Line:        s.line,
				Function:    s.fn,
				Description: fmt.Sprintf("'%s' is freed more than once", name),
				Suggestion:  "ensure each pointer is freed exactly once and set to NULL after",
			})
		}
	}
	return risks
}

func dedupeRisks(risks []MemoryRisk) []MemoryRisk {
	seen := make(map[string]bool, len(risks))
	out := make([]MemoryRisk, 0, len(risks))
	for _, r := range risks {
		key := fmt.Sprintf("%s|%s|%d", r.Kind, r.File, r.Line)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Line < out[j].Line
	})
	return out
}

// snippetLine maps an offset inside a unit snippet back to a file line.
func snippetLine(snippet string, offset, startLine int) int {
	return strings.Count(snippet[:offset], "\n") + startLine
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
