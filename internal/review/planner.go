package review

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dshills/reviewflow/internal/flow"
	"github.com/dshills/reviewflow/internal/flow/emit"
	"github.com/dshills/reviewflow/internal/llm"
	"github.com/dshills/reviewflow/internal/scanner"
)

// DefaultReplans is how many corrected attempts the planner gets after a
// rejected plan before the run aborts.
const DefaultReplans = 2

const planSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["tasks"],
  "properties": {
    "tasks": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "name", "files"],
        "properties": {
          "id": {"type": "integer", "minimum": 1},
          "name": {"type": "string", "minLength": 1},
          "files": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string", "minLength": 1}
          },
          "description": {"type": "string"},
          "language": {"type": "string"}
        }
      }
    }
  }
}`

var planSchemaLoader = gojsonschema.NewStringLoader(planSchemaJSON)

const plannerSystemPrompt = `You are a code review planner. Partition the project's source files into independent review tasks.
Rules:
- Every file you assign must come from the provided inventory, spelled exactly as listed.
- No file may appear in more than one task.
- Group related files (a module and its header, a package) into one task.
- Use sequential integer ids starting at 1.
Respond with a single JSON object, no prose:
{"tasks": [{"id": 1, "name": "...", "files": ["..."], "description": "...", "language": "..."}]}`

// PlanTasksNode asks the completer to partition the inventory into review
// tasks and validates the result: schema-valid JSON, unique positive IDs,
// known files, no file claimed by two tasks. A rejected plan is retried
// with the rejection reason appended; exhausting 1+Replans attempts aborts
// the run with a PlanningError.
type PlanTasksNode struct {
	Completer llm.Completer
	Emitter   emit.Emitter

	// Replans is the number of extra attempts after the first. Zero
	// means none.
	Replans int
}

// Run implements flow.Node.
func (n *PlanTasksNode) Run(ctx context.Context, state JobState) flow.NodeResult[JobState] {
	attempts := 1 + n.Replans
	if attempts < 1 {
		attempts = 1
	}

	prompt := n.buildPrompt(state)
	var lastReason string
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastReason != "" {
			n.emit(state.Job.RunID, "plan_retry", map[string]interface{}{
				"attempt": attempt,
				"reason":  lastReason,
			})
		}

		text, err := n.Completer.Complete(ctx, llm.Request{
			System: plannerSystemPrompt,
			Prompt: prompt + retryFeedback(lastReason),
			JSON:   true,
		})
		if err != nil {
			if ctx.Err() != nil {
				return flow.NodeResult[JobState]{Err: ctx.Err()}
			}
			lastReason = fmt.Sprintf("completion failed: %v", err)
			continue
		}

		tasks, err := parsePlan(text, state.Inventory)
		if err != nil {
			lastReason = err.Error()
			continue
		}

		n.emit(state.Job.RunID, "plan_done", map[string]interface{}{
			"tasks":    len(tasks),
			"attempts": attempt,
		})
		return flow.NodeResult[JobState]{Delta: JobState{Tasks: tasks}}
	}

	return flow.NodeResult[JobState]{Err: &PlanningError{Attempts: attempts, Reason: lastReason}}
}

func (n *PlanTasksNode) buildPrompt(state JobState) string {
	var sb strings.Builder
	if state.Readme != "" {
		sb.WriteString("README summary:\n")
		sb.WriteString(truncate(state.Readme, 2000))
		sb.WriteString("\n\n")
	}
	if state.Structure.Narrative != "" {
		sb.WriteString("Structure overview:\n")
		sb.WriteString(truncate(state.Structure.Narrative, 3000))
		sb.WriteString("\n\n")
	}
	sb.WriteString("File inventory (path, language, size in bytes):\n")
	for _, f := range state.Inventory {
		fmt.Fprintf(&sb, "- %s  %s  %d\n", f.Path, f.Language, f.Size)
	}
	return sb.String()
}

func retryFeedback(reason string) string {
	if reason == "" {
		return ""
	}
	return "\n\nYour previous plan was rejected: " + reason +
		"\nRespond again with corrected JSON following every rule."
}

// parsePlan decodes and validates a task plan against the inventory.
func parsePlan(text string, inventory []scanner.File) ([]Task, error) {
	var plan struct {
		Tasks []Task `json:"tasks"`
	}
	if err := decodeJSONObject(text, &plan); err != nil {
		return nil, err
	}

	result, err := gojsonschema.Validate(planSchemaLoader, gojsonschema.NewStringLoader(planJSONSlice(text)))
	if err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, fmt.Errorf("plan violates schema: %s", strings.Join(msgs, "; "))
	}

	known := make(map[string]bool, len(inventory))
	for _, f := range inventory {
		known[f.Path] = true
	}

	seenID := make(map[int]bool, len(plan.Tasks))
	owner := make(map[string]int)
	for _, task := range plan.Tasks {
		if task.ID < 1 {
			return nil, fmt.Errorf("task %q has non-positive id %d", task.Name, task.ID)
		}
		if seenID[task.ID] {
			return nil, fmt.Errorf("duplicate task id %d", task.ID)
		}
		seenID[task.ID] = true
		if len(task.Files) == 0 {
			return nil, fmt.Errorf("task %d has no files", task.ID)
		}
		for _, path := range task.Files {
			if !known[path] {
				return nil, fmt.Errorf("task %d names unknown file %q", task.ID, path)
			}
			if prev, claimed := owner[path]; claimed {
				return nil, fmt.Errorf("file %q assigned to tasks %d and %d", path, prev, task.ID)
			}
			owner[path] = task.ID
		}
	}

	tasks := plan.Tasks
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// planJSONSlice returns the JSON object substring that decodeJSONObject
// would parse, so the schema validates the same bytes.
func planJSONSlice(text string) string {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || start >= end {
		return text
	}
	return text[start : end+1]
}

func (n *PlanTasksNode) emit(runID, msg string, meta map[string]interface{}) {
	if n.Emitter == nil {
		return
	}
	n.Emitter.Emit(emit.Event{RunID: runID, NodeID: NodePlanTasks, Msg: msg, Meta: meta})
}
