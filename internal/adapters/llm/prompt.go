package llm

import (
	"strings"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
)

const directiveInstructions = `
Acting on the project:
- Most requests only need an explanation or code in a fenced lua block. Answer those directly.
- When the user asks you to change their place (create, write, move or delete scripts, create or
  modify instances), describe what you will do and then end your answer with ONE fenced block
  labelled "studio" containing a JSON array of steps:

` + "```studio" + `
[
  {"op": "create_script", "description": "Create checkpoint manager",
   "params": {"name": "CheckpointManager", "parent_path": "ServerScriptService",
              "script_type": "Script", "content": "print('hi')"}}
]
` + "```" + `

Supported ops and required params:
- read_file: path
- write_file: path, content
- create_script: name, parent_path (optional script_type, content)
- move_file: source_path, dest_path
- delete_file: path
- get_file_tree: none
- get_roblox_objects: none (optional path)
- create_roblox_objects: parent_path, object_type, name (optional properties)
- modify_object_properties: path, properties
- create_backup: none
- generate_game: game_type (obby, tycoon or rpg)

Steps run in order and stop at the first failure. Never emit the block for questions.
`

// Prompt represents the system prompt + the content to send as "user".
type Prompt struct {
	System string
	User   string
}

// BuildPrompt builds the system prompt and the final user content
// (knowledge + project status + new message) from the conversation context.
// History is sent separately as conversation turns.
func BuildPrompt(system string, ctx domain.ConversationContext) Prompt {
	var sys strings.Builder
	sys.WriteString(strings.TrimSpace(system))
	sys.WriteString("\n")
	sys.WriteString(directiveInstructions)

	var user strings.Builder
	if ctx.ProjectStatus != "" {
		user.WriteString("Project status:\n")
		user.WriteString(ctx.ProjectStatus)
		user.WriteString("\n\n")
	}
	if ctx.ProjectTree != "" {
		user.WriteString("Current project structure:\n```json\n")
		user.WriteString(ctx.ProjectTree)
		user.WriteString("\n```\n\n")
	}
	if len(ctx.Knowledge) > 0 {
		user.WriteString("Relevant templates:\n")
		user.WriteString(strings.Join(ctx.Knowledge, "\n\n"))
		user.WriteString("\n\n")
	}
	user.WriteString("New user message:\n")
	user.WriteString(ctx.Request)

	return Prompt{
		System: sys.String(),
		User:   user.String(),
	}
}
