package domain

import "time"

// Operation names a remote action on the Studio automation server, or a
// planner-local action that expands into remote ones.
type Operation string

const (
	OpReadFile     Operation = "read_file"
	OpWriteFile    Operation = "write_file"
	OpCreateScript Operation = "create_script"
	OpMoveFile     Operation = "move_file"
	OpDeleteFile   Operation = "delete_file"
	OpGetFileTree  Operation = "get_file_tree"
	OpGetObjects   Operation = "get_roblox_objects"
	OpCreateObject Operation = "create_roblox_objects"
	OpModifyObject Operation = "modify_object_properties"
	OpCreateBackup Operation = "create_backup"
	OpGenerateGame Operation = "generate_game"
)

// requiredParams lists the parameters an invoke step must carry.
var requiredParams = map[Operation][]string{
	OpReadFile:     {"path"},
	OpWriteFile:    {"path", "content"},
	OpCreateScript: {"name", "parent_path"},
	OpMoveFile:     {"source_path", "dest_path"},
	OpDeleteFile:   {"path"},
	OpGetFileTree:  nil,
	OpGetObjects:   nil,
	OpCreateObject: {"parent_path", "object_type", "name"},
	OpModifyObject: {"path", "properties"},
	OpCreateBackup: nil,
	OpGenerateGame: {"game_type"},
}

// Known reports whether op is part of the directive grammar.
func (op Operation) Known() bool {
	_, ok := requiredParams[op]
	return ok
}

// Remote reports whether op is executed by the Studio gateway.
func (op Operation) Remote() bool {
	return op.Known() && op != OpCreateBackup && op != OpGenerateGame
}

// RequiredParams returns the parameter names op cannot run without.
func (op Operation) RequiredParams() []string {
	return requiredParams[op]
}

// StepKind tags a Step variant.
type StepKind string

const (
	StepNarrate     StepKind = "narrate"
	StepInvoke      StepKind = "invoke"
	StepAwaitResult StepKind = "await_result"
)

// Step is one entry of a Plan.
//   - narrate: Text is emitted as-is.
//   - invoke: Operation runs with Params; Description is used for narration.
//   - await_result: barrier; the previous invoke outcome must be observed.
type Step struct {
	Kind        StepKind
	Text        string
	Operation   Operation
	Params      map[string]any
	Description string
}

func Narrate(text string) Step {
	return Step{Kind: StepNarrate, Text: text}
}

func Invoke(op Operation, description string, params map[string]any) Step {
	if params == nil {
		params = map[string]any{}
	}
	return Step{Kind: StepInvoke, Operation: op, Description: description, Params: params}
}

func AwaitResult() Step {
	return Step{Kind: StepAwaitResult}
}

// Plan is the ordered list of steps derived from one request.
type Plan []Step

// Invokes returns only the invoke steps, in declaration order.
func (p Plan) Invokes() []Step {
	var out []Step
	for _, s := range p {
		if s.Kind == StepInvoke {
			out = append(out, s)
		}
	}
	return out
}

// StepStatus represents the outcome of a recorded step.
type StepStatus string

const (
	StepStatusPending StepStatus = "pending"
	StepStatusDone    StepStatus = "done"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
)

// StepRecord is the persisted trace of one invoke step.
type StepRecord struct {
	Index       int        `json:"index"`
	Operation   Operation  `json:"operation"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at,omitempty"`
	FinishedAt  time.Time  `json:"finished_at,omitempty"`
}

// PlanRecord is the execution log of one request's plan.
type PlanRecord struct {
	ID             string         `json:"id"`
	ConversationID ConversationID `json:"conversation_id"`
	Request        string         `json:"request"`
	Source         string         `json:"source"` // "direct" or "directive"
	Steps          []StepRecord   `json:"steps"`
	Abandoned      bool           `json:"abandoned"`
	CreatedAt      time.Time      `json:"created_at"`
}
