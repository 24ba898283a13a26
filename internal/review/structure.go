package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/reviewflow/internal/flow"
	"github.com/dshills/reviewflow/internal/flow/emit"
	"github.com/dshills/reviewflow/internal/llm"
	"github.com/dshills/reviewflow/internal/scanner"
)

const structureSystemPrompt = `You are a software architect documenting an unfamiliar codebase.
Write a concise structure overview in Markdown with these sections:
## Overview (what the project does, 2-4 sentences)
## Key Components (main source files and their responsibilities)
## Core Algorithms and Data Structures
## Build and Run (how the project is built and executed, if discernible)
Base every statement on the provided material. Do not invent files.`

// AnalyzeStructureNode scans the project root, builds the file inventory and
// directory tree, and asks the completer for a structure narrative. An empty
// or unreadable project aborts the run; a failed completion only degrades
// the narrative.
type AnalyzeStructureNode struct {
	Scanner   *scanner.Scanner
	Completer llm.Completer
	Emitter   emit.Emitter
}

// Run implements flow.Node.
func (n *AnalyzeStructureNode) Run(ctx context.Context, state JobState) flow.NodeResult[JobState] {
	files, err := n.Scanner.Scan()
	if err != nil {
		return flow.NodeResult[JobState]{Err: fmt.Errorf("scan project: %w", err)}
	}
	if len(files) == 0 {
		return flow.NodeResult[JobState]{Err: fmt.Errorf("no reviewable source files under %s", n.Scanner.Root())}
	}

	delta := JobState{
		Readme:    n.Scanner.Readme(),
		Inventory: files,
		Structure: StructureDoc{
			Tree:            n.Scanner.Tree(scanner.DefaultTreeDepth),
			FileCount:       len(files),
			PrimaryLanguage: scanner.PrimaryLanguage(files),
		},
	}

	narrative, err := n.describe(ctx, delta, files)
	if err != nil {
		delta.Structure.Narrative = "_Structure narrative unavailable._"
		delta.Warnings = []string{fmt.Sprintf("structure narrative: %v", err)}
	} else {
		delta.Structure.Narrative = narrative
	}

	n.emit(state.Job.RunID, "inventory_done", map[string]interface{}{
		"files":    len(files),
		"language": delta.Structure.PrimaryLanguage,
	})
	return flow.NodeResult[JobState]{Delta: delta}
}

func (n *AnalyzeStructureNode) describe(ctx context.Context, delta JobState, files []scanner.File) (string, error) {
	samples := n.Scanner.SampleSources(files,
		scanner.DefaultSampleFiles, scanner.DefaultSampleBytes, scanner.DefaultSamplePerFile)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Project root: %s\n", n.Scanner.Root())
	fmt.Fprintf(&sb, "Primary language: %s\n\n", delta.Structure.PrimaryLanguage)
	if delta.Readme != "" {
		sb.WriteString("README:\n")
		sb.WriteString(truncate(delta.Readme, 2000))
		sb.WriteString("\n\n")
	}
	sb.WriteString("Directory tree:\n")
	sb.WriteString(delta.Structure.Tree)
	sb.WriteString("\nSource samples:\n")
	for _, sample := range samples {
		fmt.Fprintf(&sb, "--- %s ---\n%s\n", sample.Path, sample.Content)
	}

	text, err := n.Completer.Complete(ctx, llm.Request{
		System: structureSystemPrompt,
		Prompt: sb.String(),
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty narrative from %s", n.Completer.Name())
	}
	return strings.TrimSpace(text), nil
}

func (n *AnalyzeStructureNode) emit(runID, msg string, meta map[string]interface{}) {
	if n.Emitter == nil {
		return
	}
	n.Emitter.Emit(emit.Event{RunID: runID, NodeID: NodeAnalyzeStructure, Msg: msg, Meta: meta})
}
