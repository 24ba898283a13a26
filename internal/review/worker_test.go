package review

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/reviewflow/internal/llm"
	"github.com/dshills/reviewflow/internal/scanner"
)

func newTestScanner(t *testing.T, files map[string]string) *scanner.Scanner {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	sc, err := scanner.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	return sc
}

func TestTaskWorker_Review(t *testing.T) {
	sc := newTestScanner(t, map[string]string{
		"a.c": "int main(void) { return 0; }\n",
		"b.c": "void helper(void) {}\n",
	})
	task := Task{ID: 1, Name: "core", Files: []string{"a.c"}}
	state := JobState{Job: Job{RunID: "r1"}, Readme: "A test project."}

	response := `{
  "findings": [
    {"file": "a.c", "line": 3, "severity": "HIGH", "category": "memory", "description": "buffer never freed", "suggestion": "free it"},
    {"file": "b.c", "line": 1, "severity": "low", "category": "style", "description": "cites a file outside the task"},
    {"file": "a.c", "line": -4, "severity": "blocker", "category": "style", "description": "odd formatting"},
    {"file": "a.c", "line": 9, "severity": "low", "category": "style", "description": "   "}
  ],
  "test_script": {"name": "../evil/check", "content": "#!/bin/sh\nexit 0\n"}
}`
	mock := llm.NewMockProvider(response)
	worker := &TaskWorker{Scanner: sc, Completer: mock, FocusAreas: []string{"memory safety"}}

	res, err := worker.Review(context.Background(), state, task)
	if err != nil {
		t.Fatalf("Review() error: %v", err)
	}

	if res.Status != StatusOK || res.TaskID != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Findings) != 2 {
		t.Fatalf("got %d findings, want 2 (out-of-task and empty ones dropped): %+v", len(res.Findings), res.Findings)
	}
	if res.Findings[0].Severity != "high" {
		t.Errorf("severity not lowercased: %q", res.Findings[0].Severity)
	}
	if res.Findings[1].Severity != "info" {
		t.Errorf("unknown severity = %q, want info", res.Findings[1].Severity)
	}
	if res.Findings[1].Line != 0 {
		t.Errorf("negative line not clamped: %d", res.Findings[1].Line)
	}

	if len(res.GeneratedTests) != 1 {
		t.Fatalf("generated tests = %+v", res.GeneratedTests)
	}
	if res.GeneratedTests[0].Name != "check.sh" {
		t.Errorf("artifact name = %q, want traversal stripped and .sh added", res.GeneratedTests[0].Name)
	}

	// The prompt carries the task's code and the focus areas.
	req := mock.Calls()[0]
	if !strings.Contains(req.Prompt, "int main") {
		t.Error("prompt missing file content")
	}
	if !strings.Contains(req.System, "memory safety") {
		t.Error("system prompt missing focus areas")
	}
	if !req.JSON {
		t.Error("request did not ask for JSON")
	}
}

func TestTaskWorker_UnparseableOutput(t *testing.T) {
	sc := newTestScanner(t, map[string]string{"a.c": "int x;\n"})
	worker := &TaskWorker{Scanner: sc, Completer: llm.NewMockProvider("I refuse to emit JSON.")}

	_, err := worker.Review(context.Background(), JobState{}, Task{ID: 2, Files: []string{"a.c"}})
	var werr *WorkerError
	if !errors.As(err, &werr) {
		t.Fatalf("error type %T, want *WorkerError", err)
	}
	if werr.TaskID != 2 || !strings.Contains(werr.Error(), "unparseable") {
		t.Errorf("WorkerError = %v", werr)
	}
}

func TestTaskWorker_AllFilesUnreadable(t *testing.T) {
	sc := newTestScanner(t, map[string]string{"a.c": "int x;\n"})
	worker := &TaskWorker{Scanner: sc, Completer: llm.NewMockProvider(`{"findings": []}`)}

	_, err := worker.Review(context.Background(), JobState{}, Task{ID: 3, Files: []string{"ghost.c", "missing.c"}})
	var werr *WorkerError
	if !errors.As(err, &werr) {
		t.Fatalf("error type %T, want *WorkerError", err)
	}
	if !strings.Contains(err.Error(), "could be read") {
		t.Errorf("error = %v", err)
	}
}

func TestTaskWorker_CompleterFailure(t *testing.T) {
	sc := newTestScanner(t, map[string]string{"a.c": "int x;\n"})
	worker := &TaskWorker{Scanner: sc, Completer: llm.NewMockProvider().FailFirst(1, errors.New("overloaded"))}

	_, err := worker.Review(context.Background(), JobState{}, Task{ID: 4, Files: []string{"a.c"}})
	var werr *WorkerError
	if !errors.As(err, &werr) {
		t.Fatalf("error type %T, want *WorkerError", err)
	}
	if !errors.Is(err, werr.Cause) || !strings.Contains(werr.Cause.Error(), "overloaded") {
		t.Errorf("cause = %v", werr.Cause)
	}
}

func TestArtifactName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"check_alloc.sh", "check_alloc.sh"},
		{"verify.py", "verify.py"},
		{"nested/dir/script.sh", "script.sh"},
		{"no_suffix", "no_suffix.sh"},
		{"", "task_7_test.sh"},
		{"  .  ", "task_7_test.sh"},
	}
	for _, tt := range tests {
		if got := artifactName(tt.in, 7); got != tt.want {
			t.Errorf("artifactName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
