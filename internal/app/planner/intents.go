package planner

import (
	"regexp"
	"strings"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
)

var (
	gamePathRE   = regexp.MustCompile(`game\.([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)*)`)
	dottedPathRE = regexp.MustCompile(`(?:^|\s)([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)+)`)

	// howToRE marks questions about doing something, which belong to the model.
	howToRE = regexp.MustCompile(`\bhow\s+(?:do|does|can|could|should|would|to|is|are)\b|^\s*why\b`)

	// backupRE accepts only a whole-message command: "make a backup",
	// "take a snapshot of the project", "back up my place now".
	backupRE = regexp.MustCompile(`^\s*(?:please\s+)?(?:(?:can|could|would)\s+you\s+)?(?:please\s+)?` +
		`(?:(?:create|make|take|run|save|do)\s+(?:(?:a|an|the|my|new|another|project|full)\s+)*(?:backup|snapshot)` +
		`|back\s?up(?:\s+(?:my|the|this)\s+(?:project|place|game|work))?)` +
		`(?:\s+of\s+(?:my|the|this)\s+(?:project|place|game|work))?` +
		`(?:\s+(?:now|please))?\s*[.!?]*\s*$`)

	treeSubjects  = []string{"structure", "file tree", "project tree", "explorer", "show project", "analyze project", "project files"}
	treeVerbs     = []string{"show", "get", "analyze", "what", "list", "display", "view"}
	readVerbs     = []string{"show", "display", "read", "get", "see", "view", "content", "code", "open"}
	scriptMarkers = []string{"script", "serverscriptservice", "localscript", "modulescript", "replicatedstorage", "starterplayer", "startergui"}
)

// directIntent recognises commands that map onto a fixed plan and need no
// model call. The checks run in order: backup, script read, file tree.
// How-to questions never match.
func directIntent(text string) (domain.Plan, bool) {
	lower := strings.ToLower(text)
	if howToRE.MatchString(lower) {
		return nil, false
	}

	if backupRE.MatchString(lower) {
		return domain.Plan{
			domain.Invoke(domain.OpCreateBackup, "Create project backup", nil),
			domain.AwaitResult(),
		}, true
	}

	if containsAny(lower, readVerbs...) {
		if path, ok := scriptPath(text); ok {
			return domain.Plan{
				domain.Invoke(domain.OpReadFile, "Read script content from "+path, map[string]any{"path": path}),
				domain.AwaitResult(),
			}, true
		}
	}

	if containsAny(lower, treeSubjects...) && containsAny(lower, treeVerbs...) {
		return domain.Plan{
			domain.Invoke(domain.OpGetFileTree, "List project files", nil),
			domain.AwaitResult(),
		}, true
	}

	return nil, false
}

// scriptPath finds an instance path such as game.ServerScriptService.Main or
// ServerScriptService.Main. The "game." prefix is dropped.
func scriptPath(text string) (string, bool) {
	var candidates []string
	for _, m := range gamePathRE.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, m[1])
	}
	for _, m := range dottedPathRE.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, strings.TrimPrefix(m[1], "game."))
	}

	for _, c := range candidates {
		c = strings.TrimRight(c, ".")
		if containsAny(strings.ToLower(c), scriptMarkers...) {
			return c, true
		}
	}
	return "", false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
