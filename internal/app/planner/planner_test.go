package planner_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/robovibe-agent/internal/adapters/llm"
	"github.com/PabloGalante/robovibe-agent/internal/adapters/storage/memory"
	"github.com/PabloGalante/robovibe-agent/internal/app/planner"
	"github.com/PabloGalante/robovibe-agent/internal/domain"
	"github.com/PabloGalante/robovibe-agent/internal/knowledge"
)

type fakeStudio struct {
	mu      sync.Mutex
	calls   []domain.Operation
	params  []map[string]any
	ctxErrs []error

	results map[domain.Operation]domain.StudioResult
	failAt  int // 1-based call number that fails
	failErr error

	started chan struct{}
	block   chan struct{}
}

func (f *fakeStudio) Call(ctx context.Context, op domain.Operation, params map[string]any) (domain.StudioResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.params = append(f.params, params)
	n := len(f.calls)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	f.mu.Unlock()

	if n == f.failAt {
		return nil, f.failErr
	}
	if r, ok := f.results[op]; ok {
		return r, nil
	}
	return domain.StudioResult{"message": fmt.Sprintf("%s ok", op)}, nil
}

func (f *fakeStudio) Status(context.Context) bool { return true }

func (f *fakeStudio) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSnapshotter struct{ path string }

func (f fakeSnapshotter) Snapshot(context.Context) (string, error) { return f.path, nil }
func (f fakeSnapshotter) List(context.Context) ([]domain.BackupInfo, error) {
	return nil, nil
}

type harness struct {
	planner *planner.Planner
	model   *llm.MockLLM
	studio  *fakeStudio
	store   *memory.ConversationStore
	plans   *memory.PlanLog
}

func newHarness(t *testing.T, model *llm.MockLLM, cfg planner.Config) *harness {
	t.Helper()
	kb, err := knowledge.NewStore()
	require.NoError(t, err)

	h := &harness{
		model:  model,
		studio: &fakeStudio{},
		store:  memory.NewConversationStore(),
		plans:  memory.NewPlanLog(),
	}
	h.planner = planner.New(planner.Deps{
		Model:     model,
		Studio:    h.studio,
		Store:     h.store,
		Knowledge: kb,
		Plans:     h.plans,
		Backups:   fakeSnapshotter{path: "backups/backup_20250101_000000"},
		Connected: func() bool { return true },
	}, cfg)
	return h
}

func collect(events func(func(domain.StreamEvent) bool)) []domain.StreamEvent {
	var out []domain.StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func (h *harness) history(t *testing.T, id domain.ConversationID) []*domain.Message {
	t.Helper()
	hist, err := h.store.History(context.Background(), id, 0)
	require.NoError(t, err)
	return hist
}

// requireWellFormed checks that at most one terminal event was emitted and
// that it came last.
func requireWellFormed(t *testing.T, events []domain.StreamEvent) {
	t.Helper()
	for i, ev := range events {
		if ev.Terminal() {
			require.Equal(t, len(events)-1, i, "terminal event must be last: %v", events)
		}
	}
}

func directiveReply(steps ...string) []string {
	return []string{
		"Sure, I'll set that up.\n",
		"```studio\n[" + strings.Join(steps, ",") + "]\n```\n",
	}
}

func scriptStep(name string) string {
	return fmt.Sprintf(`{"op": "create_script", "description": "Create %s", "params": {"name": %q, "parent_path": "ServerScriptService"}}`, name, name)
}

func TestListProjectFilesScenario(t *testing.T) {
	h := newHarness(t, llm.NewMockLLM(), planner.Config{})
	h.studio.results = map[domain.Operation]domain.StudioResult{
		domain.OpGetFileTree: {"tree": []any{
			map[string]any{"name": "Workspace"},
			map[string]any{"name": "ServerScriptService"},
		}},
	}

	events := collect(h.planner.Handle(context.Background(), "c1", "list my project files"))

	require.Len(t, events, 2)
	assert.Equal(t, domain.EventChunk, events[0].Kind)
	assert.Contains(t, events[0].Text, "Workspace")
	assert.Contains(t, events[0].Text, "ServerScriptService")
	assert.Equal(t, domain.Done(), events[1])

	assert.Equal(t, []domain.Operation{domain.OpGetFileTree}, h.studio.calls)
	assert.Equal(t, 0, h.model.CallCount())

	hist := h.history(t, "c1")
	require.Len(t, hist, 2)
	assert.Equal(t, domain.RoleUser, hist[0].Role)
	assert.Equal(t, "list my project files", hist[0].Content)
	assert.Equal(t, domain.RoleAssistant, hist[1].Role)
	assert.Equal(t, events[0].Text, hist[1].Content)
}

func TestModelNotConfigured(t *testing.T) {
	h := newHarness(t, &llm.MockLLM{Unconfigured: true}, planner.Config{})

	events := collect(h.planner.Handle(context.Background(), "c1", "how do I make a sword?"))

	require.Len(t, events, 1)
	assert.Equal(t, domain.ErrorEvent("model unavailable: NotConfigured"), events[0])
	assert.Equal(t, 0, h.model.CallCount())

	hist := h.history(t, "c1")
	require.Len(t, hist, 1)
	assert.Equal(t, domain.RoleUser, hist[0].Role)
}

func TestPlainAnswerStreamsChunksThenDone(t *testing.T) {
	h := newHarness(t, llm.NewMockLLM("Use ", "a RemoteEvent."), planner.Config{})

	events := collect(h.planner.Handle(context.Background(), "c1", "how do clients talk to the server?"))

	assert.Equal(t, []domain.StreamEvent{
		domain.Chunk("Use "),
		domain.Chunk("a RemoteEvent."),
		domain.Done(),
	}, events)
	assert.Empty(t, h.studio.calls)

	hist := h.history(t, "c1")
	require.Len(t, hist, 2)
	assert.Equal(t, "Use a RemoteEvent.", hist[1].Content)

	plans, err := h.plans.ListPlans(context.Background(), "c1", 0)
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestModelStreamErrorKeepsPartialText(t *testing.T) {
	model := llm.NewMockLLM("partial ")
	model.Err = &domain.RemoteError{Code: 503, Message: "overloaded"}
	h := newHarness(t, model, planner.Config{})

	events := collect(h.planner.Handle(context.Background(), "c1", "explain tweens"))

	assert.Equal(t, []domain.StreamEvent{
		domain.Chunk("partial "),
		domain.ErrorEvent("model unavailable: RemoteError(503): overloaded"),
	}, events)

	hist := h.history(t, "c1")
	require.Len(t, hist, 2)
	assert.Equal(t, "partial ", hist[1].Content)
}

func TestDirectiveStepsRunInOrderAfterPreviousOutcome(t *testing.T) {
	h := newHarness(t, llm.NewMockLLM(directiveReply(scriptStep("A"), scriptStep("B"), scriptStep("C"))...), planner.Config{})

	var events []domain.StreamEvent
	for ev := range h.planner.Handle(context.Background(), "c1", "make three scripts") {
		for k := 1; k <= 3; k++ {
			if strings.Contains(ev.Text, fmt.Sprintf("Step %d/3", k)) {
				// Step k's outcome is observed before step k+1 is issued.
				assert.Equal(t, k, h.studio.callCount())
			}
		}
		events = append(events, ev)
	}
	requireWellFormed(t, events)
	require.Equal(t, domain.Done(), events[len(events)-1])

	var order []string
	for _, ev := range events {
		for _, name := range []string{"Create A", "Create B", "Create C"} {
			if strings.Contains(ev.Text, "Step") && strings.Contains(ev.Text, name) {
				order = append(order, name)
			}
		}
	}
	assert.Equal(t, []string{"Create A", "Create B", "Create C"}, order)

	require.Len(t, h.studio.params, 3)
	assert.Equal(t, "A", h.studio.params[0]["name"])
	assert.Equal(t, "C", h.studio.params[2]["name"])

	plans, err := h.plans.ListPlans(context.Background(), "c1", 0)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "directive", plans[0].Source)
	assert.False(t, plans[0].Abandoned)
	for _, st := range plans[0].Steps {
		assert.Equal(t, domain.StepStatusDone, st.Status)
	}
}

func TestFailedStepAbandonsRestOfPlan(t *testing.T) {
	h := newHarness(t, llm.NewMockLLM(directiveReply(scriptStep("A"), scriptStep("B"), scriptStep("C"))...), planner.Config{})
	h.studio.failAt = 2
	h.studio.failErr = &domain.RemoteError{Code: 500, Message: "parent not found"}

	events := collect(h.planner.Handle(context.Background(), "c1", "make three scripts"))
	requireWellFormed(t, events)

	last := events[len(events)-1]
	assert.Equal(t, domain.ErrorEvent("step 2 (Create B) failed: RemoteError(500): parent not found"), last)
	assert.Equal(t, 2, h.studio.callCount())

	hist := h.history(t, "c1")
	require.Len(t, hist, 2)
	assistant := hist[1].Content
	assert.Contains(t, assistant, "Sure, I'll set that up.")
	assert.Contains(t, assistant, "Step 1/3")
	assert.NotContains(t, assistant, "Step 2/3")
	assert.NotContains(t, assistant, "Step 3/3")

	plans, err := h.plans.ListPlans(context.Background(), "c1", 0)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	rec := plans[0]
	assert.True(t, rec.Abandoned)
	assert.Equal(t, domain.StepStatusDone, rec.Steps[0].Status)
	assert.Equal(t, domain.StepStatusFailed, rec.Steps[1].Status)
	assert.Equal(t, "RemoteError(500): parent not found", rec.Steps[1].Error)
	assert.Equal(t, domain.StepStatusSkipped, rec.Steps[2].Status)
}

func TestFirstDirectStepFailureLeavesOnlyUserMessage(t *testing.T) {
	h := newHarness(t, llm.NewMockLLM(), planner.Config{})
	h.studio.failAt = 1
	h.studio.failErr = fmt.Errorf("%w: connection refused", domain.ErrUnreachable)

	events := collect(h.planner.Handle(context.Background(), "c1", "show me the project tree"))

	require.Len(t, events, 1)
	assert.Equal(t, domain.EventError, events[0].Kind)
	assert.Contains(t, events[0].Text, "step 1 (List project files) failed: Unreachable")
	assert.Len(t, h.history(t, "c1"), 1)
}

func TestMalformedDirectiveIsPlainNarration(t *testing.T) {
	reply := directiveReply(`{"op": "format_disk", "params": {}}`)
	h := newHarness(t, llm.NewMockLLM(reply...), planner.Config{})

	events := collect(h.planner.Handle(context.Background(), "c1", "do something odd"))

	assert.Equal(t, domain.Done(), events[len(events)-1])
	assert.Empty(t, h.studio.calls)
	assert.Equal(t, strings.Join(reply, ""), h.history(t, "c1")[1].Content)
}

func TestGenerateGameExpandsScaffold(t *testing.T) {
	h := newHarness(t, llm.NewMockLLM(directiveReply(`{"op": "generate_game", "description": "Build an obby", "params": {"game_type": "obby"}}`)...), planner.Config{})

	events := collect(h.planner.Handle(context.Background(), "c1", "make me an obby game"))
	require.Equal(t, domain.Done(), events[len(events)-1])

	assert.Equal(t, []domain.Operation{
		domain.OpCreateObject,
		domain.OpCreateObject,
		domain.OpCreateObject,
		domain.OpCreateScript,
		domain.OpCreateScript,
	}, h.studio.calls)
	assert.Equal(t, "ReplicatedStorage", h.studio.params[0]["parent_path"])
	assert.Equal(t, "Checkpoints", h.studio.params[0]["name"])
	assert.Equal(t, "Folder", h.studio.params[0]["object_type"])
	assert.Equal(t, "StarterPlayer.StarterPlayerScripts", h.studio.params[4]["parent_path"])
	assert.Equal(t, "LocalScript", h.studio.params[4]["script_type"])
}

func TestUnknownGameTypeFailsItsStep(t *testing.T) {
	h := newHarness(t, llm.NewMockLLM(directiveReply(`{"op": "generate_game", "description": "Build an MMO", "params": {"game_type": "mmo"}}`)...), planner.Config{})

	events := collect(h.planner.Handle(context.Background(), "c1", "make me an mmo"))

	assert.Equal(t, domain.ErrorEvent(`step 1 (Build an MMO) failed: unknown game type "mmo"`), events[len(events)-1])
	assert.Empty(t, h.studio.calls)
}

func TestBackupIntent(t *testing.T) {
	h := newHarness(t, llm.NewMockLLM(), planner.Config{})

	events := collect(h.planner.Handle(context.Background(), "c1", "please make a backup"))

	assert.Equal(t, []domain.StreamEvent{
		domain.Chunk("Backup created at `backups/backup_20250101_000000`.\n"),
		domain.Done(),
	}, events)
	assert.Empty(t, h.studio.calls)
}

func TestReadScriptIntent(t *testing.T) {
	h := newHarness(t, llm.NewMockLLM(), planner.Config{})
	h.studio.results = map[domain.Operation]domain.StudioResult{
		domain.OpReadFile: {"content": []any{map[string]any{"type": "text", "text": "print('hi')"}}},
	}

	events := collect(h.planner.Handle(context.Background(), "c1", "show me game.ServerScriptService.Main"))

	require.Len(t, events, 2)
	assert.Equal(t, "Here's the content of `ServerScriptService.Main`:\n\n```lua\nprint('hi')\n```\n", events[0].Text)
	assert.Equal(t, "ServerScriptService.Main", h.studio.params[0]["path"])
}

func TestHandleIsSingleUse(t *testing.T) {
	h := newHarness(t, llm.NewMockLLM("ok"), planner.Config{})
	events := h.planner.Handle(context.Background(), "c1", "hello")

	first := collect(events)
	second := collect(events)

	assert.Equal(t, domain.Done(), first[len(first)-1])
	assert.Equal(t, []domain.StreamEvent{domain.ErrorEvent("stream already consumed")}, second)
	assert.Equal(t, 1, h.model.CallCount())
}

func TestEmptyMessageIsRejected(t *testing.T) {
	h := newHarness(t, llm.NewMockLLM(), planner.Config{})

	events := collect(h.planner.Handle(context.Background(), "c1", "   "))

	assert.Equal(t, []domain.StreamEvent{domain.ErrorEvent("message is empty")}, events)
	assert.Empty(t, h.history(t, "c1"))
}

func TestConcurrentConversationsAreIsolated(t *testing.T) {
	h := newHarness(t, llm.NewMockLLM(), planner.Config{})

	var wg sync.WaitGroup
	for _, id := range []domain.ConversationID{"a", "b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 3 {
				events := collect(h.planner.Handle(context.Background(), id, fmt.Sprintf("hello from %s #%d", id, i)))
				assert.Equal(t, domain.Done(), events[len(events)-1])
			}
		}()
	}
	wg.Wait()

	for _, id := range []domain.ConversationID{"a", "b"} {
		hist := h.history(t, id)
		require.Len(t, hist, 6)
		for _, m := range hist {
			assert.Contains(t, m.Content, "from "+string(id))
		}
	}
	for _, call := range h.model.Calls {
		for _, m := range call.History {
			assert.Equal(t, call.ConversationID, m.ConversationID)
		}
	}
}

func TestSameConversationRequestsAreSerialized(t *testing.T) {
	h := newHarness(t, llm.NewMockLLM(), planner.Config{})
	h.studio.started = make(chan struct{}, 4)
	h.studio.block = make(chan struct{})

	firstDone := make(chan []domain.StreamEvent)
	go func() {
		firstDone <- collect(h.planner.Handle(context.Background(), "same", "list my project files"))
	}()
	<-h.studio.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	second := collect(h.planner.Handle(ctx, "same", "list my project files"))

	assert.Equal(t, []domain.StreamEvent{domain.ErrorEvent(context.DeadlineExceeded.Error())}, second)
	assert.Equal(t, 1, h.studio.callCount())

	close(h.studio.block)
	first := <-firstDone
	assert.Equal(t, domain.Done(), first[len(first)-1])
	assert.Len(t, h.history(t, "same"), 2)
}

func TestRejectBusyConversation(t *testing.T) {
	h := newHarness(t, llm.NewMockLLM(), planner.Config{RejectBusy: true})
	h.studio.started = make(chan struct{}, 4)
	h.studio.block = make(chan struct{})

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		collect(h.planner.Handle(context.Background(), "same", "list my project files"))
	}()
	<-h.studio.started

	second := collect(h.planner.Handle(context.Background(), "same", "hello"))
	assert.Equal(t, []domain.StreamEvent{domain.ErrorEvent("conversation busy")}, second)

	other := collect(h.planner.Handle(context.Background(), "other", "hello"))
	assert.Equal(t, domain.Done(), other[len(other)-1])

	close(h.studio.block)
	<-firstDone
}

func TestDisconnectLetsInFlightCallFinishAndStopsPlan(t *testing.T) {
	h := newHarness(t, llm.NewMockLLM(directiveReply(scriptStep("A"), scriptStep("B"))...), planner.Config{})
	h.studio.started = make(chan struct{}, 4)
	h.studio.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan []domain.StreamEvent)
	go func() {
		var got []domain.StreamEvent
		for ev := range h.planner.Handle(ctx, "c1", "make two scripts") {
			if ctx.Err() != nil {
				break
			}
			got = append(got, ev)
		}
		done <- got
	}()

	<-h.studio.started
	cancel()
	close(h.studio.block)
	got := <-done

	for _, ev := range got {
		assert.False(t, ev.Terminal())
		assert.NotContains(t, ev.Text, "Step 1/2")
	}
	assert.Equal(t, 1, h.studio.callCount())
	require.Len(t, h.studio.ctxErrs, 1)
	assert.NoError(t, h.studio.ctxErrs[0])

	hist := h.history(t, "c1")
	require.Len(t, hist, 2)
	assert.Equal(t, strings.Join(directiveReply(scriptStep("A"), scriptStep("B")), ""), hist[1].Content)

	plans, err := h.plans.ListPlans(context.Background(), "c1", 0)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.True(t, plans[0].Abandoned)
	assert.Equal(t, domain.StepStatusDone, plans[0].Steps[0].Status)
	assert.Equal(t, domain.StepStatusSkipped, plans[0].Steps[1].Status)
}

func TestModelContextIsBounded(t *testing.T) {
	model := llm.NewMockLLM("ok")
	h := newHarness(t, model, planner.Config{HistoryLimit: 4, ContextBudget: 25})
	ctx := context.Background()

	for i := range 6 {
		require.NoError(t, h.store.Append(ctx, &domain.Message{
			ConversationID: "c1",
			Role:           domain.RoleUser,
			Content:        fmt.Sprintf("message number %d", i), // 16 chars
		}))
	}

	events := collect(h.planner.Handle(ctx, "c1", "how do I save leaderstats with datastore?"))
	require.Equal(t, domain.Done(), events[len(events)-1])

	require.Len(t, model.Calls, 1)
	call := model.Calls[0]
	assert.Equal(t, "how do I save leaderstats with datastore?", call.Request)
	require.Len(t, call.History, 1)
	assert.Equal(t, "message number 5", call.History[0].Content)
	assert.NotEmpty(t, call.Knowledge)
	assert.Equal(t, "Studio server: connected", call.ProjectStatus)
}

func TestReplyUsesSamePipeline(t *testing.T) {
	h := newHarness(t, llm.NewMockLLM("Hello", " there"), planner.Config{})

	reply, err := h.planner.Reply(context.Background(), "c1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", reply)
	assert.Len(t, h.history(t, "c1"), 2)

	h.model.Unconfigured = true
	_, err = h.planner.Reply(context.Background(), "c1", "hi again")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
	assert.Len(t, h.history(t, "c1"), 3)
}

func TestReplyReportsAbandonedPlan(t *testing.T) {
	h := newHarness(t, llm.NewMockLLM(directiveReply(scriptStep("A"))...), planner.Config{})
	h.studio.failAt = 1
	h.studio.failErr = fmt.Errorf("%w: deadline", domain.ErrTimeout)

	_, err := h.planner.Reply(context.Background(), "c1", "make a script")

	var abandoned *domain.PlanAbandonedError
	require.ErrorAs(t, err, &abandoned)
	assert.Equal(t, 1, abandoned.Step)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestQuestionsReachTheModel(t *testing.T) {
	for _, text := range []string{
		"How do I backup player data with DataStoreService?",
		"Show me how to add a leaderboard to my project",
		"how do I get coins to show in my game files?",
	} {
		t.Run(text, func(t *testing.T) {
			h := newHarness(t, llm.NewMockLLM("Use DataStoreService."), planner.Config{})

			events := collect(h.planner.Handle(context.Background(), "c1", text))

			assert.Equal(t, []domain.StreamEvent{domain.Chunk("Use DataStoreService."), domain.Done()}, events)
			assert.Equal(t, 1, h.model.CallCount())
			for _, op := range h.studio.calls {
				assert.Equal(t, domain.OpGetFileTree, op, "only the context tree may be fetched")
			}
			recs, err := h.plans.ListPlans(context.Background(), "c1", 0)
			require.NoError(t, err)
			assert.Empty(t, recs)
		})
	}
}

func TestProjectTreeInModelContext(t *testing.T) {
	model := llm.NewMockLLM("ok")
	h := newHarness(t, model, planner.Config{})
	h.studio.results = map[domain.Operation]domain.StudioResult{
		domain.OpGetFileTree: {"tree": map[string]any{"Workspace": map[string]any{"Baseplate": map[string]any{}}}},
	}

	events := collect(h.planner.Handle(context.Background(), "c1", "analyze my project and add a lobby"))
	require.Equal(t, domain.Done(), events[len(events)-1])

	require.Len(t, model.Calls, 1)
	assert.Contains(t, model.Calls[0].ProjectTree, `"Baseplate"`)
	assert.Equal(t, []domain.Operation{domain.OpGetFileTree}, h.studio.calls)

	recs, err := h.plans.ListPlans(context.Background(), "c1", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestProjectTreeSkippedWhenUnavailable(t *testing.T) {
	model := llm.NewMockLLM("ok")
	h := newHarness(t, model, planner.Config{})
	h.studio.failAt = 1
	h.studio.failErr = domain.ErrUnreachable

	events := collect(h.planner.Handle(context.Background(), "c1", "analyze my project and add a lobby"))
	assert.Equal(t, []domain.StreamEvent{domain.Chunk("ok"), domain.Done()}, events)
	require.Len(t, model.Calls, 1)
	assert.Empty(t, model.Calls[0].ProjectTree)
}

func TestProjectTreeNotFetchedWhenDisconnected(t *testing.T) {
	kb, err := knowledge.NewStore()
	require.NoError(t, err)
	model := llm.NewMockLLM("ok")
	studio := &fakeStudio{}
	p := planner.New(planner.Deps{
		Model:     model,
		Studio:    studio,
		Store:     memory.NewConversationStore(),
		Knowledge: kb,
		Connected: func() bool { return false },
	}, planner.Config{})

	collect(p.Handle(context.Background(), "c1", "analyze my project and add a lobby"))

	require.Len(t, model.Calls, 1)
	assert.Empty(t, model.Calls[0].ProjectTree)
	assert.Contains(t, model.Calls[0].ProjectStatus, "disconnected")
	assert.Equal(t, 0, studio.callCount())
}
