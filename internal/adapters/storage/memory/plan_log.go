package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
)

// PlanLog keeps plan execution records in memory. It is not persistent and
// is meant for local mode.
type PlanLog struct {
	mu     sync.RWMutex
	byConv map[domain.ConversationID][]*domain.PlanRecord
}

func NewPlanLog() *PlanLog {
	return &PlanLog{
		byConv: make(map[domain.ConversationID][]*domain.PlanRecord),
	}
}

func (l *PlanLog) AppendPlan(_ context.Context, rec *domain.PlanRecord) error {
	if rec == nil {
		return nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.byConv[rec.ConversationID] = append(l.byConv[rec.ConversationID], rec)
	return nil
}

// ListPlans returns the last `limit` records for a conversation, oldest first.
// If limit <= 0, returns all.
func (l *PlanLog) ListPlans(_ context.Context, id domain.ConversationID, limit int) ([]*domain.PlanRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	recs := l.byConv[id]
	if limit <= 0 || limit > len(recs) {
		limit = len(recs)
	}

	out := make([]*domain.PlanRecord, limit)
	copy(out, recs[len(recs)-limit:])
	return out, nil
}

var _ domain.PlanLog = (*PlanLog)(nil)
