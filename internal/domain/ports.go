package domain

import (
	"context"
	"iter"
	"time"
)

// ModelClient defines how the core application interacts with the language model.
type ModelClient interface {
	// Generate returns the whole reply in one call.
	Generate(ctx context.Context, convCtx ConversationContext) (string, error)
	// GenerateStream returns a finite, single-use sequence of text chunks.
	GenerateStream(ctx context.Context, convCtx ConversationContext) iter.Seq2[string, error]
	Configured() bool
}

// ConversationContext gives the model what it needs to answer one request.
type ConversationContext struct {
	ConversationID ConversationID
	Request        string
	History        []*Message // oldest first, already bounded
	Knowledge      []string
	ProjectStatus  string
	ProjectTree    string // JSON rendering of the explorer tree, empty when not fetched
}

// StudioResult is the decoded payload of one Studio operation.
type StudioResult map[string]any

// StudioGateway is the typed RPC boundary to the Studio automation server.
type StudioGateway interface {
	// Call performs a single round trip. Failures are ErrUnreachable,
	// ErrTimeout or *RemoteError.
	Call(ctx context.Context, op Operation, params map[string]any) (StudioResult, error)
	// Status is a liveness probe, safe to call concurrently.
	Status(ctx context.Context) bool
}

// ConversationStore owns the message history of every conversation.
type ConversationStore interface {
	Append(ctx context.Context, msg *Message) error
	// History returns the last `limit` messages, oldest first. limit <= 0 means all.
	History(ctx context.Context, id ConversationID, limit int) ([]*Message, error)
	Reset(ctx context.Context, id ConversationID) error
	List(ctx context.Context) ([]ConversationID, error)
}

// PlanLog persists plan execution records.
type PlanLog interface {
	AppendPlan(ctx context.Context, rec *PlanRecord) error
	ListPlans(ctx context.Context, id ConversationID, limit int) ([]*PlanRecord, error)
}

// KnowledgeBase is the read-only template and convention lookup.
type KnowledgeBase interface {
	Lookup(topic string) (string, bool)
	Snippets(text string, max int) []string
	SystemContext() string
	Scaffold(gameType string) (Scaffold, bool)
}

// Scaffold describes the folders and scripts of a game template.
type Scaffold struct {
	GameType    string
	Description string
	Folders     []string
	Scripts     []ScaffoldScript
}

type ScaffoldScript struct {
	Path string
	Type string // Script, LocalScript or ModuleScript
}

// SettingsStore reads and writes the persisted settings record.
type SettingsStore interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
	// Update applies patch to the stored record and returns the result.
	Update(ctx context.Context, patch SettingsPatch) (Settings, error)
}

// Snapshotter creates backups of the local state and lists existing ones.
type Snapshotter interface {
	// Snapshot writes a new backup and returns its path.
	Snapshot(ctx context.Context) (string, error)
	// List returns existing backups, newest first.
	List(ctx context.Context) ([]BackupInfo, error)
}

// BackupInfo describes one backup directory.
type BackupInfo struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Timestamp string    `json:"timestamp"`
	Created   time.Time `json:"created"`
}
