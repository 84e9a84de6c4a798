// Package planner turns one user request into an ordered stream of events:
// model text, Studio operations run one at a time, and the narration of
// their outcomes.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
	"github.com/PabloGalante/robovibe-agent/internal/observability"
)

// Deps are the collaborators of a Planner. Plans, Backups and Connected
// are optional.
type Deps struct {
	Model     domain.ModelClient
	Studio    domain.StudioGateway
	Store     domain.ConversationStore
	Knowledge domain.KnowledgeBase
	Plans     domain.PlanLog
	Backups   domain.Snapshotter
	Connected func() bool // cached Studio liveness, reported to the model
}

type Config struct {
	HistoryLimit  int  // messages fed to the model, <= 0 means all
	ContextBudget int  // characters of history fed to the model, <= 0 means unbounded
	Snippets      int  // knowledge snippets per request
	RejectBusy    bool // fail a second request on a busy conversation instead of waiting
}

type Planner struct {
	model     domain.ModelClient
	studio    domain.StudioGateway
	store     domain.ConversationStore
	knowledge domain.KnowledgeBase
	plans     domain.PlanLog
	backups   domain.Snapshotter
	connected func() bool

	cfg   Config
	locks *conversationLocks
	now   func() time.Time
}

func New(deps Deps, cfg Config) *Planner {
	if cfg.Snippets <= 0 {
		cfg.Snippets = 3
	}
	return &Planner{
		model:     deps.Model,
		studio:    deps.Studio,
		store:     deps.Store,
		knowledge: deps.Knowledge,
		plans:     deps.Plans,
		backups:   deps.Backups,
		connected: deps.Connected,
		cfg:       cfg,
		locks:     newConversationLocks(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// errClientGone ends a turn whose consumer stopped reading.
var errClientGone = errors.New("client stopped reading")

// source produces the model text of one turn.
type source func(ctx context.Context, convCtx domain.ConversationContext) iter.Seq2[string, error]

// turn tracks what the client of one request has actually received.
type turn struct {
	yield func(domain.StreamEvent) bool
	gone  bool
	said  strings.Builder
}

func (t *turn) emit(ev domain.StreamEvent) bool {
	if t.gone {
		return false
	}
	if !t.yield(ev) {
		t.gone = true
		return false
	}
	return true
}

// say emits a chunk and remembers it as delivered assistant text.
func (t *turn) say(text string) bool {
	if !t.emit(domain.Chunk(text)) {
		return false
	}
	t.said.WriteString(text)
	return true
}

// Handle runs one request and returns its events. The sequence can be
// consumed once; it always ends with exactly one done or error event unless
// the consumer stops early, in which case nothing more is emitted.
func (p *Planner) Handle(ctx context.Context, id domain.ConversationID, text string) iter.Seq[domain.StreamEvent] {
	var used atomic.Bool
	return func(yield func(domain.StreamEvent) bool) {
		if used.Swap(true) {
			yield(domain.ErrorEvent(domain.ErrStreamConsumed.Error()))
			return
		}

		t := &turn{yield: yield}
		_, err := p.run(ctx, id, text, p.model.GenerateStream, t)
		switch {
		case errors.Is(err, errClientGone):
		case err != nil:
			t.emit(domain.ErrorEvent(err.Error()))
		default:
			t.emit(domain.Done())
		}
	}
}

// Reply runs one request through the same pipeline using the one-shot model
// call and returns the assistant text.
func (p *Planner) Reply(ctx context.Context, id domain.ConversationID, text string) (string, error) {
	t := &turn{yield: func(domain.StreamEvent) bool { return true }}
	reply, err := p.run(ctx, id, text, p.oneShot, t)
	if errors.Is(err, errClientGone) {
		err = ctx.Err()
	}
	return reply, err
}

func (p *Planner) oneShot(ctx context.Context, convCtx domain.ConversationContext) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		text, err := p.model.Generate(ctx, convCtx)
		if err != nil {
			yield("", err)
			return
		}
		yield(text, nil)
	}
}

func (p *Planner) run(ctx context.Context, id domain.ConversationID, text string, src source, t *turn) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.ErrEmptyMessage
	}
	if id == "" {
		return "", errors.New("conversation id is required")
	}

	log := observability.LoggerFromContext(ctx).With("conversation_id", id)

	unlock, err := p.locks.Lock(ctx, id, !p.cfg.RejectBusy)
	if err != nil {
		return "", err
	}
	defer unlock()

	// History and plan records must land even if the client goes away.
	durable := context.WithoutCancel(ctx)
	start := time.Now()

	userMsg := &domain.Message{
		ConversationID: id,
		Role:           domain.RoleUser,
		Content:        text,
		CreatedAt:      p.now(),
	}
	if err := p.store.Append(durable, userMsg); err != nil {
		return "", fmt.Errorf("store unavailable: %w", err)
	}

	if plan, ok := directIntent(text); ok {
		log.Info("direct intent", "steps", len(plan.Invokes()))
		err := p.execute(ctx, id, text, "direct", plan, t)
		return p.finish(durable, id, t, err, start)
	}

	convCtx, err := p.buildContext(durable, id, userMsg)
	if err != nil {
		return "", fmt.Errorf("store unavailable: %w", err)
	}

	if !p.model.Configured() {
		return p.finish(durable, id, t, fmt.Errorf("model unavailable: %w", domain.ErrNotConfigured), start)
	}

	var reply strings.Builder
	for chunk, err := range src(ctx, convCtx) {
		if err != nil {
			return p.finish(durable, id, t, fmt.Errorf("model unavailable: %w", err), start)
		}
		reply.WriteString(chunk)
		if !t.say(chunk) {
			return p.finish(durable, id, t, errClientGone, start)
		}
	}

	if plan, ok := ParseDirective(reply.String()); ok {
		plan = expandGames(plan, p.knowledge)
		log.Info("model directive", "steps", len(plan.Invokes()))
		err := p.execute(ctx, id, text, "directive", plan, t)
		return p.finish(durable, id, t, err, start)
	}
	return p.finish(durable, id, t, nil, start)
}

// finish records what the client received as the assistant message.
func (p *Planner) finish(ctx context.Context, id domain.ConversationID, t *turn, cause error, start time.Time) (string, error) {
	log := observability.LoggerFromContext(ctx).With("conversation_id", id)
	text := t.said.String()

	if text != "" {
		err := p.store.Append(ctx, &domain.Message{
			ConversationID: id,
			Role:           domain.RoleAssistant,
			Content:        text,
			CreatedAt:      p.now(),
		})
		if err != nil {
			log.Error("failed to store assistant message", "error", err)
			if cause == nil {
				cause = fmt.Errorf("store unavailable: %w", err)
			}
		}
	}

	elapsed := time.Since(start).Milliseconds()
	switch {
	case cause == nil:
		log.Info("turn done", "elapsed_ms", elapsed)
	case errors.Is(cause, errClientGone):
		log.Info("turn cut short by client", "elapsed_ms", elapsed)
	default:
		log.Warn("turn failed", "error", cause, "elapsed_ms", elapsed)
	}
	return text, cause
}

func (p *Planner) buildContext(ctx context.Context, id domain.ConversationID, current *domain.Message) (domain.ConversationContext, error) {
	limit := p.cfg.HistoryLimit
	if limit > 0 {
		limit++ // the message just appended is sent separately
	}
	hist, err := p.store.History(ctx, id, limit)
	if err != nil {
		return domain.ConversationContext{}, err
	}
	if n := len(hist); n > 0 && hist[n-1].ID == current.ID {
		hist = hist[:n-1]
	}
	if p.cfg.HistoryLimit > 0 && len(hist) > p.cfg.HistoryLimit {
		hist = hist[len(hist)-p.cfg.HistoryLimit:]
	}

	convCtx := domain.ConversationContext{
		ConversationID: id,
		Request:        current.Content,
		History:        trimToBudget(hist, p.cfg.ContextBudget),
	}
	if p.knowledge != nil {
		convCtx.Knowledge = p.knowledge.Snippets(current.Content, p.cfg.Snippets)
	}
	if p.connected != nil {
		if p.connected() {
			convCtx.ProjectStatus = "Studio server: connected"
			if containsAny(strings.ToLower(current.Content), treeContextKeywords...) {
				convCtx.ProjectTree = p.projectTree(ctx)
			}
		} else {
			convCtx.ProjectStatus = "Studio server: disconnected, project operations will fail"
		}
	}
	return convCtx, nil
}

// maxProjectTree caps the tree rendering handed to the model, in bytes.
const maxProjectTree = 8000

var treeContextKeywords = []string{"analyze", "project", "structure", "file", "show"}

// projectTree fetches the explorer tree for the model context. Failures
// leave it out.
func (p *Planner) projectTree(ctx context.Context) string {
	res, err := p.studio.Call(ctx, domain.OpGetFileTree, map[string]any{})
	if err != nil {
		observability.LoggerFromContext(ctx).Debug("project tree unavailable", "error", err)
		return ""
	}
	data, err := json.MarshalIndent(res.Tree(), "", "  ")
	if err != nil {
		return ""
	}
	if len(data) > maxProjectTree {
		return string(data[:maxProjectTree]) + "\n... (truncated)"
	}
	return string(data)
}

// trimToBudget drops the oldest messages until the total content length
// fits in budget.
func trimToBudget(hist []*domain.Message, budget int) []*domain.Message {
	if budget <= 0 {
		return hist
	}
	total := 0
	for _, m := range hist {
		total += len(m.Content)
	}
	for len(hist) > 0 && total > budget {
		total -= len(hist[0].Content)
		hist = hist[1:]
	}
	return hist
}

type outcome struct {
	index  int
	step   domain.Step
	result domain.StudioResult
	err    error
}

// execute runs the invoke steps of plan one after the other. The outcome of
// each step is narrated before the next one starts; the first failure
// abandons the rest.
func (p *Planner) execute(ctx context.Context, id domain.ConversationID, request, origin string, plan domain.Plan, t *turn) error {
	invokes := plan.Invokes()
	rec := &domain.PlanRecord{
		ConversationID: id,
		Request:        request,
		Source:         origin,
		CreatedAt:      p.now(),
	}
	for i, s := range invokes {
		rec.Steps = append(rec.Steps, domain.StepRecord{
			Index:       i + 1,
			Operation:   s.Operation,
			Description: s.Description,
			Status:      domain.StepStatusPending,
		})
	}
	defer p.record(ctx, rec)

	total := len(invokes)
	started := 0
	var pending *outcome

	settle := func() error {
		o := pending
		pending = nil
		if o == nil {
			return nil
		}
		if o.err != nil {
			p.abandon(rec, o.index-1, domain.StepStatusFailed, o.err)
			return &domain.PlanAbandonedError{
				Step:        o.index,
				Operation:   o.step.Operation,
				Description: o.step.Description,
				Err:         o.err,
			}
		}
		if !t.say(narrateOutcome(o.step, o.index, total, o.result)) {
			p.abandon(rec, o.index, domain.StepStatusSkipped, nil)
			return errClientGone
		}
		return nil
	}

	for _, step := range plan {
		switch step.Kind {
		case domain.StepNarrate:
			if err := settle(); err != nil {
				return err
			}
			if !t.say(step.Text) {
				p.abandon(rec, started, domain.StepStatusSkipped, nil)
				return errClientGone
			}
		case domain.StepInvoke:
			if err := settle(); err != nil {
				return err
			}
			if t.gone || ctx.Err() != nil {
				p.abandon(rec, started, domain.StepStatusSkipped, nil)
				return errClientGone
			}
			started++
			pending = p.invoke(ctx, id, step, started, rec)
		case domain.StepAwaitResult:
			if err := settle(); err != nil {
				return err
			}
		}
	}
	return settle()
}

// abandon marks the step at index (0-based) with status and every later
// step as skipped.
func (p *Planner) abandon(rec *domain.PlanRecord, index int, status domain.StepStatus, err error) {
	rec.Abandoned = true
	observability.PlansAbandoned.Inc()
	for i := index; i < len(rec.Steps); i++ {
		rec.Steps[i].Status = domain.StepStatusSkipped
	}
	if index < len(rec.Steps) && status == domain.StepStatusFailed {
		rec.Steps[index].Status = domain.StepStatusFailed
		if err != nil {
			rec.Steps[index].Error = err.Error()
		}
	}
}

func (p *Planner) invoke(ctx context.Context, id domain.ConversationID, step domain.Step, index int, rec *domain.PlanRecord) *outcome {
	log := observability.LoggerFromContext(ctx).With(
		"conversation_id", id,
		"step", index,
		"operation", step.Operation,
	)

	// A started call runs to completion: its side effects cannot be revoked.
	callCtx := context.WithoutCancel(ctx)

	sr := &rec.Steps[index-1]
	sr.StartedAt = p.now()
	start := time.Now()
	log.Info("step start", "description", step.Description)

	var (
		res domain.StudioResult
		err error
	)
	switch step.Operation {
	case domain.OpCreateBackup:
		res, err = p.backup(callCtx)
	case domain.OpGenerateGame:
		gameType, _ := step.Params["game_type"].(string)
		err = fmt.Errorf("unknown game type %q", gameType)
	default:
		res, err = p.studio.Call(callCtx, step.Operation, step.Params)
	}

	sr.FinishedAt = p.now()
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		log.Warn("step failed", "error", err, "elapsed_ms", elapsed)
	} else {
		sr.Status = domain.StepStatusDone
		log.Info("step done", "elapsed_ms", elapsed)
	}
	return &outcome{index: index, step: step, result: res, err: err}
}

func (p *Planner) backup(ctx context.Context) (domain.StudioResult, error) {
	if p.backups == nil {
		return nil, errors.New("backups are not configured")
	}
	path, err := p.backups.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return domain.StudioResult{"backup_path": path, "message": "Backup created"}, nil
}

func (p *Planner) record(ctx context.Context, rec *domain.PlanRecord) {
	if p.plans == nil || len(rec.Steps) == 0 {
		return
	}
	if err := p.plans.AppendPlan(context.WithoutCancel(ctx), rec); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to record plan", "conversation_id", rec.ConversationID, "error", err)
	}
}
