// Package storetest holds the behaviour every ConversationStore and PlanLog
// implementation must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
)

// RunConversationStoreContract exercises a fresh, empty store.
func RunConversationStoreContract(t *testing.T, s domain.ConversationStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("append then history returns it last", func(t *testing.T) {
		require.NoError(t, s.Append(ctx, &domain.Message{ConversationID: "rt", Role: domain.RoleUser, Content: "hello"}))
		require.NoError(t, s.Append(ctx, &domain.Message{ConversationID: "rt", Role: domain.RoleAssistant, Content: "hi there"}))

		hist, err := s.History(ctx, "rt", 0)
		require.NoError(t, err)
		require.Len(t, hist, 2)
		last := hist[len(hist)-1]
		assert.Equal(t, domain.RoleAssistant, last.Role)
		assert.Equal(t, "hi there", last.Content)
		assert.NotEmpty(t, last.ID)
	})

	t.Run("limit keeps the newest messages", func(t *testing.T) {
		for i := range 5 {
			require.NoError(t, s.Append(ctx, &domain.Message{ConversationID: "lim", Role: domain.RoleUser, Content: fmt.Sprint(i)}))
		}
		hist, err := s.History(ctx, "lim", 2)
		require.NoError(t, err)
		require.Len(t, hist, 2)
		assert.Equal(t, "3", hist[0].Content)
		assert.Equal(t, "4", hist[1].Content)
	})

	t.Run("unknown conversation is empty", func(t *testing.T) {
		hist, err := s.History(ctx, "missing", 10)
		require.NoError(t, err)
		assert.Empty(t, hist)
	})

	t.Run("reset removes history and listing", func(t *testing.T) {
		require.NoError(t, s.Append(ctx, &domain.Message{ConversationID: "gone", Role: domain.RoleUser, Content: "x"}))
		require.NoError(t, s.Reset(ctx, "gone"))

		hist, err := s.History(ctx, "gone", 0)
		require.NoError(t, err)
		assert.Empty(t, hist)

		ids, err := s.List(ctx)
		require.NoError(t, err)
		assert.NotContains(t, ids, domain.ConversationID("gone"))
		assert.Contains(t, ids, domain.ConversationID("rt"))
	})

	t.Run("concurrent conversations stay isolated", func(t *testing.T) {
		var wg sync.WaitGroup
		for _, id := range []domain.ConversationID{"iso-a", "iso-b"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range 20 {
					_ = s.Append(ctx, &domain.Message{ConversationID: id, Role: domain.RoleUser, Content: fmt.Sprintf("%s-%d", id, i)})
				}
			}()
		}
		wg.Wait()

		for _, id := range []domain.ConversationID{"iso-a", "iso-b"} {
			hist, err := s.History(ctx, id, 0)
			require.NoError(t, err)
			require.Len(t, hist, 20)
			for i, m := range hist {
				assert.Equal(t, fmt.Sprintf("%s-%d", id, i), m.Content)
			}
		}
	})
}

// RunPlanLogContract exercises a fresh, empty plan log.
func RunPlanLogContract(t *testing.T, l domain.PlanLog) {
	t.Helper()
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 3 {
		require.NoError(t, l.AppendPlan(ctx, &domain.PlanRecord{
			ConversationID: "plans",
			Request:        fmt.Sprint(i),
			Source:         "directive",
			Steps: []domain.StepRecord{
				{Index: 1, Operation: domain.OpGetFileTree, Status: domain.StepStatusDone},
			},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	recs, err := l.ListPlans(ctx, "plans", 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "1", recs[0].Request)
	assert.Equal(t, "2", recs[1].Request)
	assert.NotEmpty(t, recs[1].ID)
	require.Len(t, recs[1].Steps, 1)
	assert.Equal(t, domain.StepStatusDone, recs[1].Steps[0].Status)

	recs, err = l.ListPlans(ctx, "nobody", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
