package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/stacks/internal/domain"
)

type Store struct {
	client *firestore.Client
}

var _ domain.Store = (*Store)(nil)

// NewStore creates a Firestore store.
// Uses the project passed (STACKS_GCP_PROJECT).
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

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection("sessions")
}

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(string(id))
}

func (s *Store) messagesCol(sessionID domain.SessionID) *firestore.CollectionRef {
	return s.sessionDoc(sessionID).Collection("messages")
}

func (s *Store) messageDoc(sessionID domain.SessionID, msgID domain.MessageID) *firestore.DocumentRef {
	return s.messagesCol(sessionID).Doc(string(msgID))
}

// messageByID finds a message without knowing its session.
func (s *Store) messageByID(id domain.MessageID) firestore.Query {
	return s.client.CollectionGroup("messages").Where("message_id", "==", string(id)).Limit(1)
}

func (s *Store) messagesAfter(sessionID domain.SessionID, t time.Time) firestore.Query {
	return s.messagesCol(sessionID).Where("created_at", ">", t.UTC())
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type sessionDoc struct {
	UserID          string     `firestore:"user_id"`
	Title           string     `firestore:"title"`
	StackType       string     `firestore:"stack_type"`
	Domain          string     `firestore:"domain"`
	Subject         string     `firestore:"subject"`
	CurrentQuestion int64      `firestore:"current_question"`
	Status          string     `firestore:"status"`
	CreatedAt       time.Time  `firestore:"created_at"`
	UpdatedAt       time.Time  `firestore:"updated_at"`
	CompletedAt     *time.Time `firestore:"completed_at"`
}

type messageDoc struct {
	MessageID      string    `firestore:"message_id"`
	SessionID      string    `firestore:"session_id"`
	Author         string    `firestore:"author"`
	Text           string    `firestore:"text"`
	QuestionNumber *int64    `firestore:"question_number"`
	CreatedAt      time.Time `firestore:"created_at"`
}

func toSessionDoc(session *domain.Session) sessionDoc {
	doc := sessionDoc{
		UserID:          string(session.UserID),
		Title:           session.Title,
		StackType:       string(session.StackType),
		Domain:          string(session.Domain),
		Subject:         session.Subject,
		CurrentQuestion: int64(session.CurrentQuestion),
		Status:          string(session.Status),
		CreatedAt:       session.CreatedAt.UTC(),
		UpdatedAt:       session.UpdatedAt.UTC(),
	}
	if session.CompletedAt != nil {
		t := session.CompletedAt.UTC()
		doc.CompletedAt = &t
	}
	return doc
}

func decodeSession(snap *firestore.DocumentSnapshot) (*domain.Session, error) {
	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode sessionDoc: %w", err)
	}
	s := &domain.Session{
		ID:              domain.SessionID(snap.Ref.ID),
		UserID:          domain.UserID(doc.UserID),
		Title:           doc.Title,
		StackType:       domain.StackType(doc.StackType),
		Domain:          domain.LifeDomain(doc.Domain),
		Subject:         doc.Subject,
		CurrentQuestion: int(doc.CurrentQuestion),
		Status:          domain.Status(doc.Status),
		CreatedAt:       doc.CreatedAt.UTC(),
		UpdatedAt:       doc.UpdatedAt.UTC(),
	}
	if doc.CompletedAt != nil {
		t := doc.CompletedAt.UTC()
		s.CompletedAt = &t
	}
	return s, nil
}

func toMessageDoc(msg *domain.Message) messageDoc {
	doc := messageDoc{
		MessageID: string(msg.ID),
		SessionID: string(msg.SessionID),
		Author:    string(msg.Author),
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt.UTC(),
	}
	if msg.QuestionNumber != nil {
		n := int64(*msg.QuestionNumber)
		doc.QuestionNumber = &n
	}
	return doc
}

func decodeMessage(snap *firestore.DocumentSnapshot) (*domain.Message, error) {
	var doc messageDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode messageDoc: %w", err)
	}
	m := &domain.Message{
		ID:        domain.MessageID(snap.Ref.ID),
		SessionID: domain.SessionID(doc.SessionID),
		Author:    domain.Role(doc.Author),
		Text:      doc.Text,
		CreatedAt: doc.CreatedAt.UTC(),
	}
	if doc.QuestionNumber != nil {
		n := int(*doc.QuestionNumber)
		m.QuestionNumber = &n
	}
	return m, nil
}

func decodeMessages(iter *firestore.DocumentIterator) ([]*domain.Message, error) {
	defer iter.Stop()

	var out []*domain.Message
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, err
		}
		m, err := decodeMessage(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.sessionDoc(session.ID).Create(ctx, toSessionDoc(session))
	if err != nil {
		return fmt.Errorf("firestore CreateSession: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	ref := s.sessionDoc(session.ID)
	if _, err := ref.Get(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("firestore UpdateSession %s: %w", session.ID, domain.ErrSessionNotFound)
		}
		return fmt.Errorf("firestore UpdateSession: %w", err)
	}
	if _, err := ref.Set(ctx, toSessionDoc(session)); err != nil {
		return fmt.Errorf("firestore UpdateSession: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	snap, err := s.sessionDoc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("firestore GetSession %s: %w", id, domain.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("firestore GetSession: %w", err)
	}
	return decodeSession(snap)
}

func (s *Store) ListSessionsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Session, error) {
	q := s.sessionsCol().Where("user_id", "==", string(userID)).OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Session
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore ListSessionsByUser: %w", err)
		}
		sess, err := decodeSession(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if _, err := s.sessionDoc(msg.SessionID).Get(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("firestore AppendMessage: %w", domain.ErrSessionNotFound)
		}
		return fmt.Errorf("firestore AppendMessage: %w", err)
	}
	if _, err := s.messageDoc(msg.SessionID, msg.ID).Create(ctx, toMessageDoc(msg)); err != nil {
		return fmt.Errorf("firestore AppendMessage: %w", err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	msgs, err := decodeMessages(s.messageByID(id).Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("firestore GetMessage: %w", err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("firestore GetMessage %s: %w", id, domain.ErrMessageNotFound)
	}
	return msgs[0], nil
}

func (s *Store) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	q := s.messagesCol(sessionID).OrderBy("created_at", firestore.Asc)
	if limit > 0 {
		q = q.LimitToLast(limit)
	}

	out, err := decodeMessages(q.Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("firestore GetMessagesBySession: %w", err)
	}
	return out, nil
}

func (s *Store) CountMessagesBySession(ctx context.Context, sessionID domain.SessionID) (int, error) {
	snaps, err := s.messagesCol(sessionID).Select().Documents(ctx).GetAll()
	if err != nil {
		return 0, fmt.Errorf("firestore CountMessagesBySession: %w", err)
	}
	return len(snaps), nil
}

func (s *Store) UpdateMessageText(ctx context.Context, id domain.MessageID, text string) error {
	m, err := s.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.messageDoc(m.SessionID, id).Update(ctx, []firestore.Update{{Path: "text", Value: text}})
	if err != nil {
		return fmt.Errorf("firestore UpdateMessageText: %w", err)
	}
	return nil
}

func (s *Store) DeleteMessagesAfter(ctx context.Context, sessionID domain.SessionID, t time.Time) (int, error) {
	var n int
	err := s.Atomically(ctx, func(tx domain.Store) error {
		var err error
		n, err = tx.DeleteMessagesAfter(ctx, sessionID, t)
		return err
	})
	return n, err
}
