// Package scanner discovers and reads source files for a review job. All
// reads are scoped to the project root: paths that resolve outside it are
// rejected, so a malformed task plan can never pull in files the job was
// not pointed at.
package scanner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrOutsideRoot is returned for any path that escapes the project root.
var ErrOutsideRoot = errors.New("path outside project root")

// DefaultIncludePatterns matches the source files the planner partitions.
var DefaultIncludePatterns = []string{"*.c", "*.h", "*.go", "*.py", "*.js", "*.ts", "*.sh"}

// skipDirs are never descended into, on top of dot-directories.
var skipDirs = map[string]bool{
	"__pycache__":  true,
	"node_modules": true,
	"venv":         true,
	"build":        true,
	"vendor":       true,
}

// File is one inventory entry. Content is read separately, scoped and
// capped, via ReadFile.
type File struct {
	Path     string // relative to the project root, slash-separated
	AbsPath  string
	Size     int64
	Language string
}

// Scanner walks one project root.
type Scanner struct {
	root string

	// IncludePatterns/ExcludePatterns are glob patterns matched against
	// the base name and the root-relative path. Empty includes means
	// DefaultIncludePatterns.
	IncludePatterns []string
	ExcludePatterns []string

	// MaxFileBytes caps ReadFile content; longer files are truncated with
	// a marker. Zero means no cap.
	MaxFileBytes int64
}

// New validates the project root and returns a scanner for it.
func New(root string) (*Scanner, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("access project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root is not a directory: %s", abs)
	}
	return &Scanner{root: abs}, nil
}

// Root returns the absolute project root.
func (s *Scanner) Root() string {
	return s.root
}

// Scan walks the tree and returns matching source files sorted by relative
// path. Unreadable entries are skipped, not fatal.
func (s *Scanner) Scan() ([]File, error) {
	var files []File

	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		name := info.Name()

		if info.IsDir() {
			if path == s.root {
				return nil
			}
			if strings.HasPrefix(name, ".") || skipDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() || strings.HasPrefix(name, ".") {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if !s.matchesInclude(rel, name) || s.matchesExclude(rel, name) {
			return nil
		}

		files = append(files, File{
			Path:     rel,
			AbsPath:  path,
			Size:     info.Size(),
			Language: DetectLanguage(name),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk project root: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ReadFile returns the content of one project file. The path may be
// root-relative or absolute; either way it must resolve inside the root.
// Content past MaxFileBytes is cut at the cap with a truncation marker.
func (s *Scanner) ReadFile(path string) (string, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	if s.MaxFileBytes > 0 && int64(len(data)) > s.MaxFileBytes {
		return string(data[:s.MaxFileBytes]) + "\n... (truncated)\n", nil
	}
	return string(data), nil
}

// Contains reports whether path resolves inside the project root.
func (s *Scanner) Contains(path string) bool {
	_, err := s.resolve(path)
	return err == nil
}

// Readme returns the project README content, or "" when none exists.
func (s *Scanner) Readme() string {
	for _, name := range []string{"README.md", "README", "README.txt", "readme.md"} {
		content, err := s.ReadFile(name)
		if err == nil {
			return content
		}
	}
	return ""
}

// resolve maps a relative or absolute path onto the root and rejects
// anything that escapes it.
func (s *Scanner) resolve(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.root, abs)
	}
	abs = filepath.Clean(abs)

	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return abs, nil
}

func (s *Scanner) matchesInclude(rel, name string) bool {
	patterns := s.IncludePatterns
	if len(patterns) == 0 {
		patterns = DefaultIncludePatterns
	}
	return matchesAny(patterns, rel, name)
}

func (s *Scanner) matchesExclude(rel, name string) bool {
	if len(s.ExcludePatterns) == 0 {
		return false
	}
	for _, pattern := range s.ExcludePatterns {
		// Directory patterns like "third_party/*" exclude the whole subtree.
		if strings.Contains(pattern, "/") {
			prefix := strings.TrimSuffix(strings.TrimSuffix(pattern, "/*"), "/")
			if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
				return true
			}
		}
	}
	return matchesAny(s.ExcludePatterns, rel, name)
}

func matchesAny(patterns []string, rel, name string) bool {
	for _, pattern := range patterns {
		if matched, err := filepath.Match(pattern, name); err == nil && matched {
			return true
		}
		if matched, err := filepath.Match(pattern, rel); err == nil && matched {
			return true
		}
	}
	return false
}

// DetectLanguage maps a file name onto the language label used in prompts
// and reports. Unknown extensions return "".
func DetectLanguage(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".c", ".h":
		return "c"
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js":
		return "javascript"
	case ".ts":
		return "typescript"
	case ".sh":
		return "shell"
	default:
		return ""
	}
}

// PrimaryLanguage returns the most common language in the inventory, with
// ties broken alphabetically. Empty inventory returns "".
func PrimaryLanguage(files []File) string {
	counts := map[string]int{}
	for _, f := range files {
		if f.Language != "" {
			counts[f.Language]++
		}
	}

	best := ""
	for lang, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && lang < best) {
			best = lang
		}
	}
	return best
}
