package review

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeJSONObject parses completer output into v. Providers asked for
// strict JSON still sometimes wrap it in prose or a fenced code block, so
// after a direct parse fails the text between the first '{' and the last
// '}' is tried.
func decodeJSONObject(text string, v interface{}) error {
	text = strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || start >= end {
		return fmt.Errorf("no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("parse JSON object: %w", err)
	}
	return nil
}

// truncate cuts s at max bytes with a marker, for prompt budgets.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}
