package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store.
// Uses the project passed (ROBOVIBE_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

// NewFromClient wraps an existing client, e.g. one pointed at the emulator.
func NewFromClient(client *firestore.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) conversationsCol() *firestore.CollectionRef {
	return s.client.Collection("conversations")
}

func (s *Store) conversationDoc(id domain.ConversationID) *firestore.DocumentRef {
	return s.conversationsCol().Doc(string(id))
}

func (s *Store) messagesCol(id domain.ConversationID) *firestore.CollectionRef {
	return s.conversationDoc(id).Collection("messages")
}

func (s *Store) plansCol(id domain.ConversationID) *firestore.CollectionRef {
	return s.conversationDoc(id).Collection("plans")
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type conversationDoc struct {
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

type messageDoc struct {
	Role      string    `firestore:"role"`
	Content   string    `firestore:"content"`
	CreatedAt time.Time `firestore:"created_at"`
}

type stepDoc struct {
	Index       int       `firestore:"index"`
	Operation   string    `firestore:"operation"`
	Description string    `firestore:"description"`
	Status      string    `firestore:"status"`
	Error       string    `firestore:"error"`
	StartedAt   time.Time `firestore:"started_at"`
	FinishedAt  time.Time `firestore:"finished_at"`
}

type planDoc struct {
	Request   string    `firestore:"request"`
	Source    string    `firestore:"source"`
	Steps     []stepDoc `firestore:"steps"`
	Abandoned bool      `firestore:"abandoned"`
	CreatedAt time.Time `firestore:"created_at"`
}

// ─────────────────────────────────────────
// ConversationStore implementation
// ─────────────────────────────────────────

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

	conv := s.conversationDoc(msg.ConversationID)
	doc := messageDoc{
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(conv)
		switch {
		case status.Code(err) == codes.NotFound:
			if err := tx.Create(conv, conversationDoc{CreatedAt: msg.CreatedAt, UpdatedAt: msg.CreatedAt}); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := tx.Update(conv, []firestore.Update{{Path: "updated_at", Value: msg.CreatedAt}}); err != nil {
				return err
			}
		}
		return tx.Set(s.messagesCol(msg.ConversationID).Doc(string(msg.ID)), doc)
	})
	if err != nil {
		return fmt.Errorf("firestore Append: %w", err)
	}
	return nil
}

// History reads the newest `limit` messages and returns them oldest first.
func (s *Store) History(ctx context.Context, id domain.ConversationID, limit int) ([]*domain.Message, error) {
	q := s.messagesCol(id).OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Message
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore History: %w", err)
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode messageDoc: %w", err)
		}

		out = append(out, &domain.Message{
			ID:             domain.MessageID(snap.Ref.ID),
			ConversationID: id,
			Role:           domain.Role(doc.Role),
			Content:        doc.Content,
			CreatedAt:      doc.CreatedAt,
		})
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) Reset(ctx context.Context, id domain.ConversationID) error {
	bw := s.client.BulkWriter(ctx)
	jobs, err := s.enqueueReset(ctx, bw, id)
	bw.End()
	if err != nil {
		return fmt.Errorf("firestore Reset: %w", err)
	}
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("firestore Reset: %w", err)
		}
	}
	return nil
}

// enqueueReset queues deletes for the messages, plans and the conversation
// document itself. The caller ends the writer.
func (s *Store) enqueueReset(ctx context.Context, bw *firestore.BulkWriter, id domain.ConversationID) ([]*firestore.BulkWriterJob, error) {
	var jobs []*firestore.BulkWriterJob
	for _, col := range []*firestore.CollectionRef{s.messagesCol(id), s.plansCol(id)} {
		refs, err := col.DocumentRefs(ctx).GetAll()
		if err != nil {
			return jobs, err
		}
		for _, ref := range refs {
			job, err := bw.Delete(ref)
			if err != nil {
				return jobs, err
			}
			jobs = append(jobs, job)
		}
	}
	job, err := bw.Delete(s.conversationDoc(id))
	if err != nil {
		return jobs, err
	}
	return append(jobs, job), nil
}

func (s *Store) List(ctx context.Context) ([]domain.ConversationID, error) {
	iter := s.conversationsCol().OrderBy("created_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []domain.ConversationID
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore List: %w", err)
		}
		out = append(out, domain.ConversationID(snap.Ref.ID))
	}
	return out, nil
}

// ─────────────────────────────────────────
// PlanLog implementation
// ─────────────────────────────────────────

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

	doc := planDoc{
		Request:   rec.Request,
		Source:    rec.Source,
		Abandoned: rec.Abandoned,
		CreatedAt: rec.CreatedAt,
	}
	for _, st := range rec.Steps {
		doc.Steps = append(doc.Steps, stepDoc{
			Index:       st.Index,
			Operation:   string(st.Operation),
			Description: st.Description,
			Status:      string(st.Status),
			Error:       st.Error,
			StartedAt:   st.StartedAt,
			FinishedAt:  st.FinishedAt,
		})
	}

	if _, err := s.plansCol(rec.ConversationID).Doc(rec.ID).Set(ctx, doc); err != nil {
		return fmt.Errorf("firestore AppendPlan: %w", err)
	}
	return nil
}

func (s *Store) ListPlans(ctx context.Context, id domain.ConversationID, limit int) ([]*domain.PlanRecord, error) {
	q := s.plansCol(id).OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.PlanRecord
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore ListPlans: %w", err)
		}

		var doc planDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode planDoc: %w", err)
		}

		rec := &domain.PlanRecord{
			ID:             snap.Ref.ID,
			ConversationID: id,
			Request:        doc.Request,
			Source:         doc.Source,
			Abandoned:      doc.Abandoned,
			CreatedAt:      doc.CreatedAt,
		}
		for _, st := range doc.Steps {
			rec.Steps = append(rec.Steps, domain.StepRecord{
				Index:       st.Index,
				Operation:   domain.Operation(st.Operation),
				Description: st.Description,
				Status:      domain.StepStatus(st.Status),
				Error:       st.Error,
				StartedAt:   st.StartedAt,
				FinishedAt:  st.FinishedAt,
			})
		}
		out = append(out, rec)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

var (
	_ domain.ConversationStore = (*Store)(nil)
	_ domain.PlanLog           = (*Store)(nil)
)
