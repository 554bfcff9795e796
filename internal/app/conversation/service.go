// Package conversation runs stacks end to end: creation, answering,
// editing, completion and reads, on top of the progression rules.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/stacks/internal/app/export"
	"github.com/PabloGalante/stacks/internal/app/progression"
	"github.com/PabloGalante/stacks/internal/app/responder"
	"github.com/PabloGalante/stacks/internal/app/semantic"
	"github.com/PabloGalante/stacks/internal/domain"
	"github.com/PabloGalante/stacks/internal/observability"
	"github.com/PabloGalante/stacks/internal/stacks"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Indexer receives committed messages for background embedding.
type Indexer interface {
	Enqueue(job semantic.IndexJob) bool
}

type Service struct {
	store     domain.Store
	catalog   *stacks.Catalog
	responder *responder.Responder
	indexer   Indexer
	now       func() time.Time
	locks     *sessionLocks
}

// NewService wires the service. indexer may be nil, which disables indexing.
func NewService(
	store domain.Store,
	catalog *stacks.Catalog,
	resp *responder.Responder,
	indexer Indexer,
) *Service {
	return &Service{
		store:     store,
		catalog:   catalog,
		responder: resp,
		indexer:   indexer,
		now:       time.Now,
		locks:     newSessionLocks(),
	}
}

func generateID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ─────────────────────────────────────────
// Start
// ─────────────────────────────────────────

type StartStackInput struct {
	UserID    domain.UserID
	Title     string
	StackType string
	Domain    string
	Subject   string
}

type StartStackOutput struct {
	Session *domain.Session
	Opening *domain.Message
}

func (s *Service) StartStack(ctx context.Context, in StartStackInput) (*StartStackOutput, error) {
	if in.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}
	title := strings.TrimSpace(in.Title)
	subject := strings.TrimSpace(in.Subject)
	if title == "" || subject == "" {
		return nil, fmt.Errorf("%w: title and subject are required", domain.ErrInvalidInput)
	}
	stackType, err := s.catalog.ParseStackType(in.StackType)
	if err != nil {
		return nil, err
	}
	lifeDomain := domain.LifeDomain(strings.ToLower(strings.TrimSpace(in.Domain)))
	if !lifeDomain.Valid() {
		return nil, fmt.Errorf("%w: unknown domain %q", domain.ErrInvalidInput, in.Domain)
	}
	flow, _ := s.catalog.Lookup(stackType)

	log := observability.LoggerFromContext(ctx).With(
		"user_id", in.UserID,
		"stack_type", stackType,
	)

	question, err := flow.Question(progression.InitialCursor, subject)
	if err != nil {
		return nil, err
	}

	now := progression.NextTimestamp(time.Time{}, s.now())
	session := &domain.Session{
		ID:              domain.SessionID(generateID()),
		UserID:          in.UserID,
		CreatedAt:       now,
		UpdatedAt:       now,
		Title:           title,
		StackType:       stackType,
		Domain:          lifeDomain,
		Subject:         subject,
		CurrentQuestion: progression.InitialCursor,
		Status:          domain.StatusInProgress,
	}
	qn := progression.InitialCursor + 1
	opening := &domain.Message{
		ID:             domain.MessageID(generateID()),
		SessionID:      session.ID,
		Author:         domain.RoleAssistant,
		Text:           question,
		CreatedAt:      now,
		QuestionNumber: &qn,
	}

	err = s.store.Atomically(ctx, func(tx domain.Store) error {
		if err := tx.CreateSession(ctx, session); err != nil {
			return err
		}
		return tx.AppendMessage(ctx, opening)
	})
	if err != nil {
		log.Errorw("failed to start stack", "error", err)
		return nil, err
	}

	observability.StackEvents.WithLabelValues(string(stackType), "started").Inc()
	log.Infow("stack started", "session_id", session.ID)

	s.index(session, opening)

	return &StartStackOutput{Session: session, Opening: opening}, nil
}

// ─────────────────────────────────────────
// Advance
// ─────────────────────────────────────────

type SendMessageInput struct {
	SessionID domain.SessionID
	UserID    domain.UserID
	Text      string
}

type SendMessageOutput struct {
	Session          *domain.Session
	UserMessage      *domain.Message
	AssistantMessage *domain.Message
}

// SendMessage answers the current question. The assistant reply is
// generated first; the answer, the reply and the cursor move are then
// committed together, so a failed generation leaves no trace.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageOutput, error) {
	unlock := s.locks.lock(in.SessionID)
	defer unlock()

	session, flow, err := s.ownedSession(ctx, in.SessionID, in.UserID)
	if err != nil {
		return nil, err
	}

	log := observability.LoggerFromContext(ctx).With(
		"session_id", session.ID,
		"user_id", session.UserID,
		"stack_type", session.StackType,
		"cursor", session.CurrentQuestion,
	)

	step, err := progression.Advance(session, flow, in.Text)
	if err != nil {
		log.Infow("answer rejected", "error", err)
		return nil, err
	}

	transcript, err := s.store.GetMessagesBySession(ctx, session.ID, 0)
	if err != nil {
		log.Errorw("failed to load transcript", "error", err)
		return nil, err
	}

	var next string
	if !step.Complete {
		if next, err = flow.Question(step.NextIndex, session.Subject); err != nil {
			return nil, err
		}
	}

	reply, err := s.responder.Respond(ctx, responder.Input{
		StackType:    session.StackType,
		StackName:    flow.Name,
		Description:  flow.Description,
		Subject:      session.Subject,
		Cursor:       session.CurrentQuestion,
		Final:        step.Complete,
		Answer:       in.Text,
		History:      transcript,
		NextQuestion: next,
	})
	if err != nil {
		return nil, err
	}

	var last time.Time
	if n := len(transcript); n > 0 {
		last = transcript[n-1].CreatedAt
	}
	userAt := progression.NextTimestamp(last, s.now())
	replyAt := progression.NextTimestamp(userAt, s.now())

	userMsg := &domain.Message{
		ID:        domain.MessageID(generateID()),
		SessionID: session.ID,
		Author:    domain.RoleUser,
		Text:      in.Text,
		CreatedAt: userAt,
	}
	assistantMsg := &domain.Message{
		ID:             domain.MessageID(generateID()),
		SessionID:      session.ID,
		Author:         domain.RoleAssistant,
		Text:           reply,
		CreatedAt:      replyAt,
		QuestionNumber: step.QuestionNumber(),
	}

	updated := *session
	step.Apply(&updated, replyAt)

	err = s.store.Atomically(ctx, func(tx domain.Store) error {
		if err := tx.AppendMessage(ctx, userMsg); err != nil {
			return err
		}
		if err := tx.AppendMessage(ctx, assistantMsg); err != nil {
			return err
		}
		return tx.UpdateSession(ctx, &updated)
	})
	if err != nil {
		log.Errorw("failed to commit answer", "error", err)
		return nil, err
	}

	event := "advanced"
	if step.Complete {
		event = "completed"
	}
	observability.StackEvents.WithLabelValues(string(session.StackType), event).Inc()
	log.Infow("answer recorded", "next_cursor", updated.CurrentQuestion, "status", updated.Status)

	s.index(&updated, userMsg, assistantMsg)

	return &SendMessageOutput{
		Session:          &updated,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
	}, nil
}

// ─────────────────────────────────────────
// Edit / rollback
// ─────────────────────────────────────────

type EditMessageInput struct {
	SessionID domain.SessionID
	UserID    domain.UserID
	MessageID domain.MessageID
	Text      string
}

type EditMessageOutput struct {
	Session *domain.Session
	Message *domain.Message
	// Removed counts the messages dropped after the edited one.
	Removed int
}

// EditMessage rewrites an earlier answer and drops everything after it. The
// caller resubmits the answer to regenerate the following turns.
func (s *Service) EditMessage(ctx context.Context, in EditMessageInput) (*EditMessageOutput, error) {
	unlock := s.locks.lock(in.SessionID)
	defer unlock()

	session, _, err := s.ownedSession(ctx, in.SessionID, in.UserID)
	if err != nil {
		return nil, err
	}

	log := observability.LoggerFromContext(ctx).With(
		"session_id", session.ID,
		"message_id", in.MessageID,
	)

	transcript, err := s.store.GetMessagesBySession(ctx, session.ID, 0)
	if err != nil {
		log.Errorw("failed to load transcript", "error", err)
		return nil, err
	}

	rb, err := progression.Edit(session, transcript, in.MessageID, in.Text)
	if err != nil {
		log.Infow("edit rejected", "error", err)
		return nil, err
	}

	updated := *session
	rb.Apply(&updated, progression.NextTimestamp(time.Time{}, s.now()))

	var removed int
	err = s.store.Atomically(ctx, func(tx domain.Store) error {
		if err := tx.UpdateMessageText(ctx, rb.Target.ID, in.Text); err != nil {
			return err
		}
		n, err := tx.DeleteMessagesAfter(ctx, session.ID, rb.Target.CreatedAt)
		if err != nil {
			return err
		}
		removed = n
		return tx.UpdateSession(ctx, &updated)
	})
	if err != nil {
		log.Errorw("failed to commit edit", "error", err)
		return nil, err
	}

	edited := *rb.Target
	edited.Text = in.Text

	observability.StackEvents.WithLabelValues(string(session.StackType), "rolled_back").Inc()
	log.Infow("message edited",
		"removed", removed,
		"cursor", updated.CurrentQuestion,
		"reopened", rb.Reopened,
	)

	s.index(&updated, &edited)

	return &EditMessageOutput{Session: &updated, Message: &edited, Removed: removed}, nil
}

// ─────────────────────────────────────────
// Complete
// ─────────────────────────────────────────

// CompleteStack closes a stack wherever its cursor is. Completing a
// completed stack is a no-op.
func (s *Service) CompleteStack(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) (*domain.Session, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, _, err := s.ownedSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	if !progression.ForceComplete(session, progression.NextTimestamp(time.Time{}, s.now())) {
		return session, nil
	}
	if err := s.store.UpdateSession(ctx, session); err != nil {
		observability.LoggerFromContext(ctx).Errorw("failed to complete stack",
			"session_id", session.ID, "error", err)
		return nil, err
	}

	observability.StackEvents.WithLabelValues(string(session.StackType), "force_completed").Inc()
	observability.LoggerFromContext(ctx).Infow("stack force-completed",
		"session_id", session.ID, "cursor", session.CurrentQuestion)

	return session, nil
}

// ─────────────────────────────────────────
// Reads
// ─────────────────────────────────────────

func (s *Service) GetStack(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) (*domain.Session, error) {
	session, _, err := s.ownedSession(ctx, sessionID, userID)
	return session, err
}

// GetTimeline returns the session and its messages in order. A positive
// limit keeps only the most recent ones.
func (s *Service) GetTimeline(
	ctx context.Context,
	sessionID domain.SessionID,
	userID domain.UserID,
	limit int,
) (*domain.Session, []*domain.Message, error) {
	session, _, err := s.ownedSession(ctx, sessionID, userID)
	if err != nil {
		return nil, nil, err
	}

	msgs, err := s.store.GetMessagesBySession(ctx, sessionID, limit)
	if err != nil {
		observability.LoggerFromContext(ctx).Errorw("failed to get messages",
			"session_id", sessionID, "error", err)
		return nil, nil, err
	}
	return session, msgs, nil
}

func (s *Service) ListStacks(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Session, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	return s.store.ListSessionsByUser(ctx, userID, limit)
}

// ExportStack renders the stack as a plain-text document.
func (s *Service) ExportStack(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) (*domain.Session, string, error) {
	session, flow, err := s.ownedSession(ctx, sessionID, userID)
	if err != nil {
		return nil, "", err
	}
	msgs, err := s.store.GetMessagesBySession(ctx, sessionID, 0)
	if err != nil {
		return nil, "", err
	}
	return session, export.Render(session, flow, msgs), nil
}

// StackTypes lists the catalog's flows in lexical order of their type.
func (s *Service) StackTypes() []stacks.Flow {
	types := s.catalog.Types()
	out := make([]stacks.Flow, 0, len(types))
	for _, t := range types {
		f, _ := s.catalog.Lookup(t)
		out = append(out, f)
	}
	return out
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Service) ownedSession(ctx context.Context, id domain.SessionID, userID domain.UserID) (*domain.Session, stacks.Flow, error) {
	if userID == "" {
		return nil, stacks.Flow{}, domain.ErrUnauthenticated
	}
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, stacks.Flow{}, err
	}
	if !session.OwnedBy(userID) {
		return nil, stacks.Flow{}, fmt.Errorf("stack %s: %w", id, domain.ErrAccessDenied)
	}
	flow, ok := s.catalog.Lookup(session.StackType)
	if !ok {
		return nil, stacks.Flow{}, fmt.Errorf("stack %s has unknown type %q", id, session.StackType)
	}
	return session, flow, nil
}

func (s *Service) index(session *domain.Session, msgs ...*domain.Message) {
	if s.indexer == nil {
		return
	}
	for _, m := range msgs {
		s.indexer.Enqueue(semantic.IndexJob{
			Message:   m,
			UserID:    session.UserID,
			StackType: session.StackType,
			Domain:    session.Domain,
		})
	}
}
