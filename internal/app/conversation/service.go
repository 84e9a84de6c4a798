// Package conversation is the application service used by the HTTP API and
// the CLI. It wires the planner to the stores, the Studio client, settings
// and backups.
package conversation

import (
	"context"
	"errors"
	"iter"

	"github.com/google/uuid"

	"github.com/PabloGalante/robovibe-agent/internal/app/planner"
	"github.com/PabloGalante/robovibe-agent/internal/domain"
	"github.com/PabloGalante/robovibe-agent/internal/observability"
)

// StudioClient is the part of the Studio gateway the service drives directly.
type StudioClient interface {
	Status(ctx context.Context) bool
	FileTree(ctx context.Context) (any, error)
	BaseURL() string
	SetBaseURL(url string)
}

// keySetter is implemented by model clients whose credentials can change
// at runtime.
type keySetter interface {
	SetAPIKey(ctx context.Context, key string) error
}

type Deps struct {
	Planner  *planner.Planner
	Model    domain.ModelClient
	Store    domain.ConversationStore
	Plans    domain.PlanLog
	Studio   StudioClient
	Settings domain.SettingsStore
	Backups  domain.Snapshotter
}

type Service struct {
	planner  *planner.Planner
	model    domain.ModelClient
	store    domain.ConversationStore
	plans    domain.PlanLog
	studio   StudioClient
	settings domain.SettingsStore
	backups  domain.Snapshotter
}

func NewService(deps Deps) *Service {
	return &Service{
		planner:  deps.Planner,
		model:    deps.Model,
		store:    deps.Store,
		plans:    deps.Plans,
		studio:   deps.Studio,
		settings: deps.Settings,
		backups:  deps.Backups,
	}
}

// ErrUnavailable is returned when an optional collaborator is not wired.
var ErrUnavailable = errors.New("feature not configured")

func NewConversationID() domain.ConversationID {
	return domain.ConversationID(uuid.NewString())
}

// StreamChat starts a streamed turn. An empty id starts a new conversation;
// the id actually used is returned.
func (s *Service) StreamChat(ctx context.Context, id domain.ConversationID, text string) (domain.ConversationID, iter.Seq[domain.StreamEvent]) {
	if id == "" {
		id = NewConversationID()
	}
	observability.LoggerFromContext(ctx).Info("stream chat", "conversation_id", id, "chars", len(text))
	return id, s.planner.Handle(ctx, id, text)
}

type ChatOutput struct {
	ConversationID domain.ConversationID
	Reply          string
}

// Chat runs a non-streamed turn.
func (s *Service) Chat(ctx context.Context, id domain.ConversationID, text string) (*ChatOutput, error) {
	if id == "" {
		id = NewConversationID()
	}
	log := observability.LoggerFromContext(ctx).With("conversation_id", id)
	log.Info("chat", "chars", len(text))

	reply, err := s.planner.Reply(ctx, id, text)
	if err != nil {
		log.Error("chat failed", "error", err)
		return nil, err
	}
	return &ChatOutput{ConversationID: id, Reply: reply}, nil
}

func (s *Service) History(ctx context.Context, id domain.ConversationID, limit int) ([]*domain.Message, error) {
	msgs, err := s.store.History(ctx, id, limit)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("failed to get history", "conversation_id", id, "error", err)
		return nil, err
	}
	return msgs, nil
}

func (s *Service) Reset(ctx context.Context, id domain.ConversationID) error {
	observability.LoggerFromContext(ctx).Info("reset conversation", "conversation_id", id)
	return s.store.Reset(ctx, id)
}

func (s *Service) Conversations(ctx context.Context) ([]domain.ConversationID, error) {
	return s.store.List(ctx)
}

func (s *Service) Plans(ctx context.Context, id domain.ConversationID, limit int) ([]*domain.PlanRecord, error) {
	if s.plans == nil {
		return nil, ErrUnavailable
	}
	return s.plans.ListPlans(ctx, id, limit)
}

func (s *Service) FileTree(ctx context.Context) (any, error) {
	return s.studio.FileTree(ctx)
}

// Status runs a live liveness probe against the Studio server.
func (s *Service) Status(ctx context.Context) bool {
	return s.studio.Status(ctx)
}

// SettingsView is what clients may see of the settings; the API key itself
// never leaves the process.
type SettingsView struct {
	GeminiConfigured bool   `json:"gemini_configured"`
	MCPURL           string `json:"mcp_url"`
	Theme            string `json:"theme"`
}

func (s *Service) Settings(ctx context.Context) (SettingsView, error) {
	st, err := s.settings.Load(ctx)
	if err != nil {
		return SettingsView{}, err
	}
	return SettingsView{
		GeminiConfigured: s.model.Configured(),
		MCPURL:           s.studio.BaseURL(),
		Theme:            st.Theme,
	}, nil
}

// UpdateSettings persists the patch and applies it to the running gateways.
func (s *Service) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) error {
	log := observability.LoggerFromContext(ctx)

	if _, err := s.settings.Update(ctx, patch); err != nil {
		log.Error("failed to save settings", "error", err)
		return err
	}

	if patch.MCPURL != nil && *patch.MCPURL != "" {
		s.studio.SetBaseURL(*patch.MCPURL)
		log.Info("studio endpoint changed", "url", *patch.MCPURL)
	}
	if patch.GeminiAPIKey != nil {
		if err := s.applyKey(ctx, *patch.GeminiAPIKey); err != nil {
			return err
		}
	}
	return nil
}

// ApplyStoredSettings pushes the persisted endpoint and key, when present,
// onto the running gateways. Called once at startup.
func (s *Service) ApplyStoredSettings(ctx context.Context) error {
	st, err := s.settings.Load(ctx)
	if err != nil {
		return err
	}
	if st.MCPURL != "" {
		s.studio.SetBaseURL(st.MCPURL)
	}
	if st.GeminiAPIKey != "" {
		return s.applyKey(ctx, st.GeminiAPIKey)
	}
	return nil
}

func (s *Service) applyKey(ctx context.Context, key string) error {
	ks, ok := s.model.(keySetter)
	if !ok {
		return nil
	}
	if err := ks.SetAPIKey(ctx, key); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to apply API key", "error", err)
		return err
	}
	return nil
}

func (s *Service) Backup(ctx context.Context) (string, error) {
	if s.backups == nil {
		return "", ErrUnavailable
	}
	path, err := s.backups.Snapshot(ctx)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("backup failed", "error", err)
		return "", err
	}
	return path, nil
}

func (s *Service) Backups(ctx context.Context) ([]domain.BackupInfo, error) {
	if s.backups == nil {
		return nil, ErrUnavailable
	}
	return s.backups.List(ctx)
}
