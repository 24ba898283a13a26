// Package report persists review output: the generated Markdown documents,
// test script artifacts, and an HTTP server that renders the documents and
// exposes run events and metrics.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Directories under the output root holding test scripts.
const (
	GeneratedTestsDir = "tests/generated"
	UserTestsDir      = "tests/user"
)

// WriteError marks a failed report write. It is fatal: a run that cannot
// persist its output has nothing to show for itself.
type WriteError struct {
	Path  string
	Cause error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write report %s: %v", e.Path, e.Cause)
}

func (e *WriteError) Unwrap() error { return e.Cause }

// Document is one named Markdown report.
type Document struct {
	Name    string
	Content string
}

// Writer persists run output under a single directory.
type Writer struct {
	Dir string
}

// NewWriter returns a writer rooted at dir. The directory is created on
// first write.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir}
}

// WriteDocuments persists the documents and returns their paths relative to
// the output directory.
func (w *Writer) WriteDocuments(docs []Document) ([]string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, &WriteError{Path: w.Dir, Cause: err}
	}
	written := make([]string, 0, len(docs))
	for _, doc := range docs {
		name := filepath.Base(doc.Name)
		path := filepath.Join(w.Dir, name)
		if err := os.WriteFile(path, []byte(doc.Content), 0o644); err != nil {
			return written, &WriteError{Path: path, Cause: err}
		}
		written = append(written, name)
	}
	return written, nil
}

// WriteGeneratedTest persists one worker-generated test script under
// tests/generated/, executable. Returns the path relative to the output
// directory.
func (w *Writer) WriteGeneratedTest(name, content string) (string, error) {
	dir := filepath.Join(w.Dir, filepath.FromSlash(GeneratedTestsDir))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &WriteError{Path: dir, Cause: err}
	}
	name = filepath.Base(name)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return "", &WriteError{Path: path, Cause: err}
	}
	return filepath.ToSlash(filepath.Join(GeneratedTestsDir, name)), nil
}

// CopyUserTests copies the shell and python scripts of srcDir (flat, no
// recursion) under tests/user/, preserving file modes. Returns the copied
// names; a missing source directory is an error the caller may treat as a
// warning.
func (w *Writer) CopyUserTests(srcDir string) ([]string, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, fmt.Errorf("read test dir: %w", err)
	}

	dstDir := filepath.Join(w.Dir, filepath.FromSlash(UserTestsDir))
	var copied []string
	for _, entry := range entries {
		if entry.IsDir() || !isScript(entry.Name()) {
			continue
		}
		if len(copied) == 0 {
			if err := os.MkdirAll(dstDir, 0o755); err != nil {
				return nil, &WriteError{Path: dstDir, Cause: err}
			}
		}
		src := filepath.Join(srcDir, entry.Name())
		data, err := os.ReadFile(src)
		if err != nil {
			return copied, &WriteError{Path: src, Cause: err}
		}
		mode := os.FileMode(0o644)
		if info, err := entry.Info(); err == nil {
			mode = info.Mode().Perm()
		}
		dst := filepath.Join(dstDir, entry.Name())
		if err := os.WriteFile(dst, data, mode); err != nil {
			return copied, &WriteError{Path: dst, Cause: err}
		}
		copied = append(copied, entry.Name())
	}
	return copied, nil
}

func isScript(name string) bool {
	return strings.HasSuffix(name, ".sh") || strings.HasSuffix(name, ".py")
}
