package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
)

// Store keeps each conversation as a Redis list of JSON messages, plus a
// sorted set indexing conversations by first use. Plan records live in a
// second list per conversation.
type Store struct {
	client *backend.Client
	prefix string
}

type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

func New(address, password string, db int, opts ...Option) *Store {
	return NewFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "robovibe:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) messagesKey(id domain.ConversationID) string {
	return s.prefix + "conversation:" + string(id) + ":messages"
}

func (s *Store) plansKey(id domain.ConversationID) string {
	return s.prefix + "conversation:" + string(id) + ":plans"
}

func (s *Store) indexKey() string {
	return s.prefix + "conversations"
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Append(ctx context.Context, msg *domain.Message) error {
	if msg == nil {
		return nil
	}
	if msg.ID == "" {
		msg.ID = domain.MessageID(uuid.NewString())
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.messagesKey(msg.ConversationID), data)
	pipe.ZAddNX(ctx, s.indexKey(), backend.Z{
		Score:  float64(msg.CreatedAt.UnixNano()),
		Member: string(msg.ConversationID),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, id domain.ConversationID, limit int) ([]*domain.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}

	vals, err := s.client.LRange(ctx, s.messagesKey(id), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	out := make([]*domain.Message, 0, len(vals))
	for _, v := range vals {
		var m domain.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		out = append(out, &m)
	}
	return out, nil
}

func (s *Store) Reset(ctx context.Context, id domain.ConversationID) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.messagesKey(id), s.plansKey(id))
	pipe.ZRem(ctx, s.indexKey(), string(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to reset conversation: %w", err)
	}
	return nil
}

// List returns conversation ids in order of first use.
func (s *Store) List(ctx context.Context) ([]domain.ConversationID, error) {
	members, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	out := make([]domain.ConversationID, len(members))
	for i, m := range members {
		out[i] = domain.ConversationID(m)
	}
	return out, nil
}

func (s *Store) AppendPlan(ctx context.Context, rec *domain.PlanRecord) error {
	if rec == nil {
		return nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	if err := s.client.RPush(ctx, s.plansKey(rec.ConversationID), data).Err(); err != nil {
		return fmt.Errorf("failed to append plan: %w", err)
	}
	return nil
}

func (s *Store) ListPlans(ctx context.Context, id domain.ConversationID, limit int) ([]*domain.PlanRecord, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}

	vals, err := s.client.LRange(ctx, s.plansKey(id), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read plans: %w", err)
	}

	out := make([]*domain.PlanRecord, 0, len(vals))
	for _, v := range vals {
		var rec domain.PlanRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

var (
	_ domain.ConversationStore = (*Store)(nil)
	_ domain.PlanLog           = (*Store)(nil)
)
