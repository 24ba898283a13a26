package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Limits for what fits in a structure-analysis prompt.
const (
	DefaultTreeDepth     = 4
	DefaultSampleFiles   = 10
	DefaultSampleBytes   = 15000
	DefaultSamplePerFile = 3000
)

// Tree renders the directory tree up to maxDepth levels below the root,
// skipping hidden entries and dependency/build directories. The root line
// itself is the caller's to print.
func (s *Scanner) Tree(maxDepth int) string {
	var sb strings.Builder
	s.walkTree(&sb, s.root, 0, maxDepth)
	return strings.TrimRight(sb.String(), "\n")
}

func (s *Scanner) walkTree(sb *strings.Builder, dir string, depth, maxDepth int) {
	if depth > maxDepth {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	indent := strings.Repeat("  ", depth)
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || skipDirs[name] {
			continue
		}
		if entry.IsDir() {
			fmt.Fprintf(sb, "%s├── %s/\n", indent, name)
			s.walkTree(sb, filepath.Join(dir, name), depth+1, maxDepth)
		} else {
			fmt.Fprintf(sb, "%s├── %s\n", indent, name)
		}
	}
}

// Sample is one truncated source excerpt for prompt building.
type Sample struct {
	Path    string
	Content string
}

// SampleSources reads up to maxFiles of the given inventory entries,
// cutting each at perFileBytes and stopping once totalBytes is spent.
// Samples come back in inventory order.
func (s *Scanner) SampleSources(files []File, maxFiles, totalBytes, perFileBytes int) []Sample {
	var samples []Sample
	total := 0

	for _, f := range files {
		if len(samples) >= maxFiles || total >= totalBytes {
			break
		}
		content, err := s.ReadFile(f.Path)
		if err != nil {
			continue
		}
		if len(content) > perFileBytes {
			content = content[:perFileBytes] + "\n... (truncated)"
		}
		samples = append(samples, Sample{Path: f.Path, Content: content})
		total += len(content)
	}
	return samples
}
