package memory

import (
	"context"
	"time"

	"github.com/PabloGalante/stacks/internal/domain"
)

// stagedStore records writes for Store.Atomically and forwards reads to the
// committed state.
type stagedStore struct {
	base *Store
	ops  []func(*Store) error
}

func (t *stagedStore) stage(op func(*Store) error) {
	t.ops = append(t.ops, op)
}

func (t *stagedStore) CreateSession(ctx context.Context, session *domain.Session) error {
	c := copySession(session)
	t.stage(func(s *Store) error { return s.createSession(c) })
	return nil
}

func (t *stagedStore) UpdateSession(ctx context.Context, session *domain.Session) error {
	c := copySession(session)
	t.stage(func(s *Store) error { return s.updateSession(c) })
	return nil
}

func (t *stagedStore) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	return t.base.GetSession(ctx, id)
}

func (t *stagedStore) ListSessionsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Session, error) {
	return t.base.ListSessionsByUser(ctx, userID, limit)
}

func (t *stagedStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	c := copyMessage(msg)
	t.stage(func(s *Store) error { return s.appendMessage(c) })
	return nil
}

func (t *stagedStore) GetMessage(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	return t.base.GetMessage(ctx, id)
}

func (t *stagedStore) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	return t.base.GetMessagesBySession(ctx, sessionID, limit)
}

func (t *stagedStore) CountMessagesBySession(ctx context.Context, sessionID domain.SessionID) (int, error) {
	return t.base.CountMessagesBySession(ctx, sessionID)
}

func (t *stagedStore) UpdateMessageText(ctx context.Context, id domain.MessageID, text string) error {
	t.stage(func(s *Store) error { return s.updateMessageText(id, text) })
	return nil
}

// DeleteMessagesAfter reports the count against the committed state.
func (t *stagedStore) DeleteMessagesAfter(ctx context.Context, sessionID domain.SessionID, at time.Time) (int, error) {
	n := 0
	msgs, err := t.base.GetMessagesBySession(ctx, sessionID, 0)
	if err != nil {
		return 0, err
	}
	for _, m := range msgs {
		if m.CreatedAt.After(at) {
			n++
		}
	}
	t.stage(func(s *Store) error {
		_, err := s.deleteMessagesAfter(sessionID, at)
		return err
	})
	return n, nil
}

func (t *stagedStore) Atomically(ctx context.Context, fn func(tx domain.Store) error) error {
	return fn(t)
}
