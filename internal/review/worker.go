package review

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/reviewflow/internal/llm"
	"github.com/dshills/reviewflow/internal/scanner"
)

// DefaultMaxCodeBytes caps the code block embedded in one review prompt.
const DefaultMaxCodeBytes = 20000

// Severities a reviewer may assign, in rank order.
var knownSeverities = map[string]bool{
	"critical": true,
	"high":     true,
	"medium":   true,
	"low":      true,
	"info":     true,
}

// TaskReviewer reviews one task to a terminal result. An error return is
// converted by the dispatch boundary into a failed result; it never aborts
// the run.
type TaskReviewer interface {
	Review(ctx context.Context, state JobState, task Task) (WorkerResult, error)
}

// TaskWorker reviews a task with one completion call. It reads only the
// task's own files, scoped to the project root, and parses the completer's
// JSON into findings plus an optional generated test script.
type TaskWorker struct {
	Scanner   *scanner.Scanner
	Completer llm.Completer

	// FocusAreas steer the review prompt (e.g. "memory safety").
	FocusAreas []string

	// MaxCodeBytes caps the combined code block per prompt. Zero uses
	// DefaultMaxCodeBytes.
	MaxCodeBytes int
}

type workerResponse struct {
	Findings   []Finding     `json:"findings"`
	TestScript *TestArtifact `json:"test_script"`
}

// Review implements TaskReviewer.
func (w *TaskWorker) Review(ctx context.Context, state JobState, task Task) (WorkerResult, error) {
	start := time.Now()

	code, readErr := w.readTaskFiles(task)
	if readErr != nil {
		return WorkerResult{}, &WorkerError{TaskID: task.ID, Cause: readErr}
	}

	text, err := w.Completer.Complete(ctx, llm.Request{
		System: w.systemPrompt(task),
		Prompt: w.userPrompt(state, task, code),
		JSON:   true,
	})
	if err != nil {
		return WorkerResult{}, &WorkerError{TaskID: task.ID, Cause: err}
	}

	var resp workerResponse
	if err := decodeJSONObject(text, &resp); err != nil {
		return WorkerResult{}, &WorkerError{TaskID: task.ID, Cause: fmt.Errorf("unparseable review output: %w", err)}
	}

	res := WorkerResult{
		TaskID:   task.ID,
		Status:   StatusOK,
		Findings: normalizeFindings(resp.Findings, task),
		Duration: time.Since(start),
	}
	if resp.TestScript != nil && strings.TrimSpace(resp.TestScript.Content) != "" {
		res.GeneratedTests = []TestArtifact{{
			Name:    artifactName(resp.TestScript.Name, task.ID),
			Content: resp.TestScript.Content,
		}}
	}
	return res, nil
}

func (w *TaskWorker) systemPrompt(task Task) string {
	lang := task.Language
	if lang == "" {
		lang = "the project's"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a senior %s code reviewer. Review ONLY the files shown below.\n", lang)
	sb.WriteString("Report correctness, memory, performance, style, and best-practice issues.\n")
	if len(w.FocusAreas) > 0 {
		fmt.Fprintf(&sb, "Pay particular attention to: %s.\n", strings.Join(w.FocusAreas, ", "))
	}
	sb.WriteString(`Respond with a single JSON object, no prose:
{
  "findings": [
    {"file": "path", "line": 0, "severity": "critical|high|medium|low|info",
     "category": "correctness|memory|performance|style|best-practice",
     "description": "...", "suggestion": "..."}
  ],
  "test_script": {"name": "check_x.sh", "content": "#!/bin/sh\n..."}
}
Cite only the files shown. Set test_script to null if no useful script exists.`)
	return sb.String()
}

func (w *TaskWorker) userPrompt(state JobState, task Task, code string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task %d: %s\n", task.ID, task.Name)
	if task.Description != "" {
		sb.WriteString(task.Description)
		sb.WriteString("\n")
	}
	if state.Readme != "" {
		sb.WriteString("\nProject context:\n")
		sb.WriteString(truncate(state.Readme, 1500))
		sb.WriteString("\n")
	}
	sb.WriteString("\nFiles under review:\n")
	sb.WriteString(code)
	return sb.String()
}

// readTaskFiles concatenates the task's files under the prompt cap. Files
// that cannot be read are noted inline; a task whose files are all
// unreadable fails.
func (w *TaskWorker) readTaskFiles(task Task) (string, error) {
	limit := w.MaxCodeBytes
	if limit <= 0 {
		limit = DefaultMaxCodeBytes
	}

	var sb strings.Builder
	readable := 0
	for _, path := range task.Files {
		content, err := w.Scanner.ReadFile(path)
		if err != nil {
			fmt.Fprintf(&sb, "=== %s ===\n(unreadable: %v)\n\n", path, err)
			continue
		}
		readable++
		fmt.Fprintf(&sb, "=== %s ===\n%s\n\n", path, content)
		if sb.Len() >= limit {
			break
		}
	}
	if readable == 0 {
		return "", fmt.Errorf("none of %d task file(s) could be read", len(task.Files))
	}
	return truncate(sb.String(), limit), nil
}

// normalizeFindings drops findings that cite files outside the task's own
// set, maps unknown severities to info, and clamps negative lines.
func normalizeFindings(findings []Finding, task Task) []Finding {
	mine := make(map[string]bool, len(task.Files))
	for _, f := range task.Files {
		mine[f] = true
	}

	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if f.File != "" && !mine[f.File] {
			continue
		}
		if strings.TrimSpace(f.Description) == "" {
			continue
		}
		f.Severity = strings.ToLower(strings.TrimSpace(f.Severity))
		if !knownSeverities[f.Severity] {
			f.Severity = "info"
		}
		if f.Line < 0 {
			f.Line = 0
		}
		out = append(out, f)
	}
	return out
}

// artifactName sanitizes a generated script name to a bare .sh file name.
func artifactName(name string, taskID int) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = fmt.Sprintf("task_%d_test.sh", taskID)
	}
	if !strings.HasSuffix(name, ".sh") && !strings.HasSuffix(name, ".py") {
		name += ".sh"
	}
	return name
}
