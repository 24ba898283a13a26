package perf

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/reviewflow/internal/flow"
	"github.com/dshills/reviewflow/internal/scanner"
)

const (
	// DefaultMaxFiles bounds how many source files the extractor parses.
	DefaultMaxFiles = 10

	// snippetCap bounds the stored body excerpt per unit.
	snippetCap = 1500
)

var (
	cFuncRE  = regexp.MustCompile(`(?:static\s+)?(?:inline\s+)?\w+(?:\s*\*+)?\s+(\w+)\s*\(([^)]*)\)\s*\{`)
	goFuncRE = regexp.MustCompile(`func\s+(?:\([^)]*\)\s*)?(\w+)\s*\(([^)]*)\)`)
	pyFuncRE = regexp.MustCompile(`^(\s*)def\s+(\w+)\s*\(([^)]*)`)

	cLoopRE  = regexp.MustCompile(`\b(?:for|while)\s*\(`)
	goLoopRE = regexp.MustCompile(`\bfor\s*[({a-zA-Z_]`)
	pyLoopRE = regexp.MustCompile(`\b(?:for\s+\w+\s+in\s|while\s)`)

	callRE = regexp.MustCompile(`\b(\w+)\s*\(`)
)

// Identifiers the call counter must not mistake for callees.
var callKeywords = map[string]bool{
	"if": true, "while": true, "for": true, "switch": true,
	"sizeof": true, "return": true, "typedef": true,
	"range": true, "defer": true, "select": true, "func": true,
}

// cStatementKeywords are control words the C function pattern can match in
// the name position ("else if (x) {").
var cStatementKeywords = map[string]bool{
	"if": true, "while": true, "for": true, "switch": true, "do": true, "else": true,
}

// Extractor parses source files into CodeUnits using per-language regex
// heuristics. It is deliberately approximate: the hotspot scorer needs loop
// and call counts, not a full AST.
type Extractor struct {
	Scanner *scanner.Scanner

	// MaxFiles bounds how many files are parsed. Zero uses
	// DefaultMaxFiles.
	MaxFiles int
}

// Extract parses the inventory's source files for the given language
// ("c", "go", "python"); an empty language takes every supported file.
func (e *Extractor) Extract(language string) ([]CodeUnit, error) {
	files, err := e.Scanner.Scan()
	if err != nil {
		return nil, &ExtractionError{Reason: fmt.Sprintf("scan project: %v", err)}
	}

	maxFiles := e.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}

	var units []CodeUnit
	parsed := 0
	for _, f := range files {
		if parsed >= maxFiles {
			break
		}
		if !supportedLanguage(f.Language) {
			continue
		}
		if language != "" && f.Language != language {
			continue
		}
		content, err := e.Scanner.ReadFile(f.Path)
		if err != nil {
			continue
		}
		parsed++
		units = append(units, extractUnits(content, f.Path, f.Language)...)
	}

	if len(units) == 0 {
		return nil, &ExtractionError{Reason: fmt.Sprintf("no functions found in %q sources", languageLabel(language))}
	}
	return units, nil
}

func supportedLanguage(lang string) bool {
	return lang == "c" || lang == "go" || lang == "python"
}

func languageLabel(lang string) string {
	if lang == "" {
		return "any"
	}
	return lang
}

func extractUnits(content, path, language string) []CodeUnit {
	switch language {
	case "c":
		return extractBraced(content, path, language, cFuncRE, true)
	case "go":
		return extractBraced(content, path, language, goFuncRE, false)
	case "python":
		return extractPython(content, path)
	default:
		return nil
	}
}

// extractBraced handles C-family sources: match a function signature, then
// take the balanced-brace block as the body. braceInMatch says whether the
// pattern already consumed the opening brace.
func extractBraced(content, path, language string, re *regexp.Regexp, braceInMatch bool) []CodeUnit {
	var units []CodeUnit
	for _, loc := range re.FindAllStringSubmatchIndex(content, -1) {
		name := content[loc[2]:loc[3]]
		if language == "c" && cStatementKeywords[name] {
			continue
		}
		params := content[loc[4]:loc[5]]

		open := -1
		if braceInMatch {
			open = strings.LastIndexByte(content[loc[0]:loc[1]], '{') + loc[0]
		} else {
			rel := strings.IndexByte(content[loc[1]:], '{')
			if rel == -1 {
				continue
			}
			open = loc[1] + rel
		}

		bodyEnd := braceBlockEnd(content, open)
		body := content[open+1 : bodyEnd]
		startLine := lineAt(content, loc[0])

		units = append(units, buildUnit(name, path, language, params, body, startLine))
	}
	return units
}

// extractPython walks lines: a def's body is every following line that is
// blank or indented deeper than the def itself.
func extractPython(content, path string) []CodeUnit {
	lines := strings.Split(content, "\n")
	var units []CodeUnit
	for i := 0; i < len(lines); i++ {
		m := pyFuncRE.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		indent := len(m[1])
		end := i + 1
		for end < len(lines) {
			line := lines[end]
			if strings.TrimSpace(line) != "" && leadingSpace(line) <= indent {
				break
			}
			end++
		}
		body := strings.Join(lines[i+1:end], "\n")
		units = append(units, buildUnit(m[2], path, "python", m[3], body, i+1))
	}
	return units
}

func buildUnit(name, path, language, params, body string, startLine int) CodeUnit {
	calls := distinctCalls(body)
	return CodeUnit{
		Name:      name,
		File:      path,
		StartLine: startLine,
		EndLine:   startLine + strings.Count(body, "\n"),
		Language:  language,
		Params:    parseParams(params),
		Loops:     countLoops(body, language),
		Calls:     len(calls),
		Recursive: calls[name],
		Snippet:   truncateSnippet(body),
	}
}

func parseParams(raw string) []string {
	if strings.TrimSpace(raw) == "" || strings.TrimSpace(raw) == "void" {
		return nil
	}
	var params []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			params = append(params, p)
		}
	}
	return params
}

// braceBlockEnd returns the index just past the brace that balances the
// opener at open.
func braceBlockEnd(content string, open int) int {
	depth := 0
	for i := open; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(content)
}

func distinctCalls(body string) map[string]bool {
	calls := make(map[string]bool)
	for _, m := range callRE.FindAllStringSubmatch(body, -1) {
		if !callKeywords[m[1]] {
			calls[m[1]] = true
		}
	}
	return calls
}

func countLoops(body, language string) int {
	switch language {
	case "c":
		return len(cLoopRE.FindAllString(body, -1))
	case "go":
		return len(goLoopRE.FindAllString(body, -1))
	case "python":
		return len(pyLoopRE.FindAllString(body, -1))
	}
	return 0
}

func lineAt(content string, idx int) int {
	return strings.Count(content[:idx], "\n") + 1
}

func leadingSpace(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}

func truncateSnippet(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > snippetCap {
		return body[:snippetCap]
	}
	return body
}

// ExtractNode runs the extractor as the first pipeline stage. Finding no
// units at all is fatal to the pipeline.
type ExtractNode struct {
	Extractor *Extractor
}

// Run implements flow.Node.
func (n *ExtractNode) Run(ctx context.Context, state State) flow.NodeResult[State] {
	units, err := n.Extractor.Extract(state.Language)
	if err != nil {
		return flow.NodeResult[State]{Err: err}
	}
	return flow.NodeResult[State]{Delta: State{CodeUnits: units}}
}
