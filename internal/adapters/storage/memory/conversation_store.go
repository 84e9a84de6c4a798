package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
)

// ConversationStore is the process-wide message history. Entries are created
// on first append and never evicted; memory grows with every conversation.
type ConversationStore struct {
	mu       sync.RWMutex
	messages map[domain.ConversationID][]*domain.Message
	order    []domain.ConversationID
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		messages: make(map[domain.ConversationID][]*domain.Message),
	}
}

func (s *ConversationStore) Append(_ context.Context, msg *domain.Message) error {
	if msg == nil {
		return nil
	}
	if msg.ID == "" {
		msg.ID = domain.MessageID(uuid.NewString())
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[msg.ConversationID]; !ok {
		s.order = append(s.order, msg.ConversationID)
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	return nil
}

// History returns the last `limit` messages, oldest first. The returned
// slice is a copy; appends made later do not show up in it.
func (s *ConversationStore) History(_ context.Context, id domain.ConversationID, limit int) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[id]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]*domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *ConversationStore) Reset(_ context.Context, id domain.ConversationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[id]; !ok {
		return nil
	}
	delete(s.messages, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns conversation ids in order of first use.
func (s *ConversationStore) List(context.Context) ([]domain.ConversationID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ConversationID, len(s.order))
	copy(out, s.order)
	return out, nil
}

var _ domain.ConversationStore = (*ConversationStore)(nil)
