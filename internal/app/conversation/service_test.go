package conversation_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/robovibe-agent/internal/adapters/backup"
	"github.com/PabloGalante/robovibe-agent/internal/adapters/llm"
	"github.com/PabloGalante/robovibe-agent/internal/adapters/settings"
	"github.com/PabloGalante/robovibe-agent/internal/adapters/storage/memory"
	"github.com/PabloGalante/robovibe-agent/internal/adapters/studio"
	"github.com/PabloGalante/robovibe-agent/internal/app/conversation"
	"github.com/PabloGalante/robovibe-agent/internal/app/planner"
	"github.com/PabloGalante/robovibe-agent/internal/domain"
	"github.com/PabloGalante/robovibe-agent/internal/knowledge"
)

type keyedModel struct {
	*llm.MockLLM
	keys []string
}

func (m *keyedModel) SetAPIKey(_ context.Context, key string) error {
	m.keys = append(m.keys, key)
	m.Unconfigured = key == ""
	return nil
}

type fixture struct {
	svc      *conversation.Service
	model    *keyedModel
	client   *studio.Client
	settings *settings.FileStore
	server   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/health":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case "/get_file_tree":
			_, _ = w.Write([]byte(`{"tree":{"Workspace":{},"ServerScriptService":{}}}`))
		default:
			_, _ = w.Write([]byte(`{"message":"done"}`))
		}
	}))
	t.Cleanup(server.Close)

	kb, err := knowledge.NewStore()
	require.NoError(t, err)

	dir := t.TempDir()
	store := memory.NewConversationStore()
	plans := memory.NewPlanLog()
	model := &keyedModel{MockLLM: llm.NewMockLLM("Sure, ", "here you go.")}
	client := studio.NewClient(studio.NewRESTTransport(server.URL, time.Second))
	fs := settings.NewFileStore(filepath.Join(dir, "settings.yaml"), domain.Settings{MCPURL: server.URL})
	snap := backup.NewSnapshotter(filepath.Join(dir, "backups"), fs.Path(), store)

	p := planner.New(planner.Deps{
		Model:     model,
		Studio:    client,
		Store:     store,
		Knowledge: kb,
		Plans:     plans,
		Backups:   snap,
	}, planner.Config{HistoryLimit: 10})

	svc := conversation.NewService(conversation.Deps{
		Planner:  p,
		Model:    model,
		Store:    store,
		Plans:    plans,
		Studio:   client,
		Settings: fs,
		Backups:  snap,
	})
	return &fixture{svc: svc, model: model, client: client, settings: fs, server: server}
}

func TestStreamChatAssignsConversationID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, events := f.svc.StreamChat(ctx, "", "hello")
	require.NotEmpty(t, id)

	var text strings.Builder
	var last domain.StreamEvent
	for ev := range events {
		if ev.Kind == domain.EventChunk {
			text.WriteString(ev.Text)
		}
		last = ev
	}
	assert.Equal(t, domain.EventDone, last.Kind)
	assert.Equal(t, "Sure, here you go.", text.String())

	hist, err := f.svc.History(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, domain.RoleUser, hist[0].Role)
	assert.Equal(t, "Sure, here you go.", hist[1].Content)

	ids, err := f.svc.Conversations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.ConversationID{id}, ids)
}

func TestChatAndReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.Chat(ctx, "c1", "hello")
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationID("c1"), out.ConversationID)
	assert.Equal(t, "Sure, here you go.", out.Reply)

	require.NoError(t, f.svc.Reset(ctx, "c1"))
	hist, err := f.svc.History(ctx, "c1", 0)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestChatNotConfigured(t *testing.T) {
	f := newFixture(t)
	f.model.Unconfigured = true

	_, err := f.svc.Chat(context.Background(), "c1", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestFileTreeAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tree, err := f.svc.FileTree(ctx)
	require.NoError(t, err)
	m, ok := tree.(map[string]any)
	require.True(t, ok)
	assert.Len(t, m, 2)
	assert.True(t, f.svc.Status(ctx))

	f.server.Close()
	assert.False(t, f.svc.Status(ctx))
	_, err = f.svc.FileTree(ctx)
	assert.ErrorIs(t, err, domain.ErrUnreachable)
}

func TestPlansAreRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Chat(ctx, "c1", "show me the project files")
	require.NoError(t, err)

	recs, err := f.svc.Plans(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Len(t, recs[0].Steps, 1)
	assert.Equal(t, domain.OpGetFileTree, recs[0].Steps[0].Operation)
}

func TestUpdateSettingsAppliesToGateways(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.Settings(ctx)
	require.NoError(t, err)
	assert.True(t, view.GeminiConfigured)
	assert.Equal(t, f.server.URL, view.MCPURL)
	assert.Equal(t, "dark", view.Theme)

	url := "http://studio.local:4000/"
	key := ""
	theme := "light"
	require.NoError(t, f.svc.UpdateSettings(ctx, domain.SettingsPatch{
		MCPURL:       &url,
		GeminiAPIKey: &key,
		Theme:        &theme,
	}))

	assert.Equal(t, "http://studio.local:4000", f.client.BaseURL())
	assert.Equal(t, []string{""}, f.model.keys)

	view, err = f.svc.Settings(ctx)
	require.NoError(t, err)
	assert.False(t, view.GeminiConfigured)
	assert.Equal(t, "light", view.Theme)

	stored, err := f.settings.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, url, stored.MCPURL)
}

func TestApplyStoredSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.settings.Save(ctx, domain.Settings{
		Theme:        "dark",
		MCPURL:       "http://other:3002",
		GeminiAPIKey: "k-123",
	}))
	require.NoError(t, f.svc.ApplyStoredSettings(ctx))

	assert.Equal(t, "http://other:3002", f.client.BaseURL())
	assert.Equal(t, []string{"k-123"}, f.model.keys)
}

func TestBackupAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Chat(ctx, "c1", "hello")
	require.NoError(t, err)

	path, err := f.svc.Backup(ctx)
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(path), "backup_")

	list, err := f.svc.Backups(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, path, list[0].Path)
}

func TestOptionalFeaturesUnavailable(t *testing.T) {
	svc := conversation.NewService(conversation.Deps{})

	_, err := svc.Backup(context.Background())
	assert.ErrorIs(t, err, conversation.ErrUnavailable)
	_, err = svc.Backups(context.Background())
	assert.ErrorIs(t, err, conversation.ErrUnavailable)
	_, err = svc.Plans(context.Background(), "c1", 0)
	assert.ErrorIs(t, err, conversation.ErrUnavailable)
}
