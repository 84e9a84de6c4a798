package domain

import (
	"encoding/json"
	"fmt"
)

// Source extracts script text from a read_file result. Servers answer either
// {"content": "..."}, {"source": "..."} or MCP-style {"content": [{"text": "..."}]}.
func (r StudioResult) Source() string {
	switch c := r["content"].(type) {
	case string:
		return c
	case []any:
		if len(c) > 0 {
			if part, ok := c[0].(map[string]any); ok {
				if text, ok := part["text"].(string); ok {
					return text
				}
			}
		}
	}
	if s, ok := r["source"].(string); ok {
		return s
	}
	return ""
}

// Tree returns the "tree" field of a get_file_tree result, or the whole
// result when the server answers with the tree itself.
func (r StudioResult) Tree() any {
	if t, ok := r["tree"]; ok {
		return t
	}
	return map[string]any(r)
}

// Summary renders a short human readable description of a result.
func (r StudioResult) Summary() string {
	if msg, ok := r["message"].(string); ok && msg != "" {
		return msg
	}
	if len(r) == 0 {
		return "ok"
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprint(map[string]any(r))
	}
	if len(data) > 300 {
		return string(data[:300]) + "..."
	}
	return string(data)
}
