package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
)

// narrateOutcome renders the chunk emitted after a successful invoke step.
// index and total are 1-based; total == 1 drops the step counter.
func narrateOutcome(step domain.Step, index, total int, res domain.StudioResult) string {
	switch step.Operation {
	case domain.OpGetFileTree:
		return "Here is your project structure:\n\n```json\n" + indentJSON(res.Tree()) + "\n```\n"
	case domain.OpReadFile:
		path, _ := step.Params["path"].(string)
		return fmt.Sprintf("Here's the content of `%s`:\n\n```lua\n%s\n```\n", path, strings.TrimRight(res.Source(), "\n"))
	case domain.OpCreateBackup:
		path, _ := res["backup_path"].(string)
		return fmt.Sprintf("Backup created at `%s`.\n", path)
	}

	if total == 1 {
		return fmt.Sprintf("\n✅ %s: %s\n", step.Description, res.Summary())
	}
	return fmt.Sprintf("\n✅ Step %d/%d: %s: %s\n", index, total, step.Description, res.Summary())
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
