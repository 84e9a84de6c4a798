package planner

import (
	"fmt"
	"strings"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
)

// expandGames replaces each generate_game step whose scaffold is known with
// the folder and script creation steps it stands for. Unknown game types
// are left in place and fail when executed.
func expandGames(plan domain.Plan, kb domain.KnowledgeBase) domain.Plan {
	out := make(domain.Plan, 0, len(plan))
	for _, step := range plan {
		if step.Kind != domain.StepInvoke || step.Operation != domain.OpGenerateGame || kb == nil {
			out = append(out, step)
			continue
		}
		gameType, _ := step.Params["game_type"].(string)
		sc, ok := kb.Scaffold(gameType)
		if !ok {
			out = append(out, step)
			continue
		}
		out = append(out, scaffoldSteps(sc, kb)...)
	}
	return out
}

func scaffoldSteps(sc domain.Scaffold, kb domain.KnowledgeBase) domain.Plan {
	var plan domain.Plan
	for _, folder := range sc.Folders {
		parent, name := splitInstancePath(folder)
		plan = append(plan,
			domain.Invoke(domain.OpCreateObject, "Create folder "+folder, map[string]any{
				"parent_path": parent,
				"object_type": "Folder",
				"name":        name,
			}),
			domain.AwaitResult(),
		)
	}
	for _, script := range sc.Scripts {
		parent, name := splitInstancePath(script.Path)
		plan = append(plan,
			domain.Invoke(domain.OpCreateScript, fmt.Sprintf("Create %s %s", script.Type, script.Path), map[string]any{
				"name":        name,
				"parent_path": parent,
				"script_type": script.Type,
				"content":     scriptBody(name, script.Type, kb),
			}),
			domain.AwaitResult(),
		)
	}
	return plan
}

// splitInstancePath turns "ServerScriptService/Combat/Damage" into
// ("ServerScriptService.Combat", "Damage"). A bare name is parented to Workspace.
func splitInstancePath(path string) (parent, name string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	name = parts[len(parts)-1]
	if len(parts) == 1 {
		return "Workspace", name
	}
	return strings.Join(parts[:len(parts)-1], "."), name
}

func scriptBody(name, scriptType string, kb domain.KnowledgeBase) string {
	if scriptType == "ModuleScript" {
		if tpl, ok := kb.Lookup("module_script"); ok {
			return strings.ReplaceAll(tpl, "Module", name)
		}
	}
	return fmt.Sprintf("-- %s\nprint(\"Hello from %s\")\n", name, name)
}
