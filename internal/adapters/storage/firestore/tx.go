package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/PabloGalante/stacks/internal/domain"
)

// Atomically runs fn inside a Firestore transaction. Firestore requires every
// read to happen before the first write, so writes are buffered and issued
// once fn returns.
func (s *Store) Atomically(ctx context.Context, fn func(tx domain.Store) error) error {
	return s.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		tx := &txStore{s: s, t: t}
		if err := fn(tx); err != nil {
			return err
		}
		for _, w := range tx.writes {
			if err := w(); err != nil {
				return err
			}
		}
		return nil
	})
}

type txStore struct {
	s      *Store
	t      *firestore.Transaction
	writes []func() error
}

func (x *txStore) buffer(w func() error) {
	x.writes = append(x.writes, w)
}

func (x *txStore) CreateSession(ctx context.Context, session *domain.Session) error {
	ref, doc := x.s.sessionDoc(session.ID), toSessionDoc(session)
	x.buffer(func() error { return x.t.Create(ref, doc) })
	return nil
}

func (x *txStore) UpdateSession(ctx context.Context, session *domain.Session) error {
	ref := x.s.sessionDoc(session.ID)
	if _, err := x.t.Get(ref); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("firestore UpdateSession %s: %w", session.ID, domain.ErrSessionNotFound)
		}
		return fmt.Errorf("firestore UpdateSession: %w", err)
	}
	doc := toSessionDoc(session)
	x.buffer(func() error { return x.t.Set(ref, doc) })
	return nil
}

func (x *txStore) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	snap, err := x.t.Get(x.s.sessionDoc(id))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("firestore GetSession %s: %w", id, domain.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("firestore GetSession: %w", err)
	}
	return decodeSession(snap)
}

func (x *txStore) ListSessionsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Session, error) {
	return x.s.ListSessionsByUser(ctx, userID, limit)
}

func (x *txStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	ref, doc := x.s.messageDoc(msg.SessionID, msg.ID), toMessageDoc(msg)
	x.buffer(func() error { return x.t.Create(ref, doc) })
	return nil
}

func (x *txStore) GetMessage(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	msgs, err := decodeMessages(x.t.Documents(x.s.messageByID(id)))
	if err != nil {
		return nil, fmt.Errorf("firestore GetMessage: %w", err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("firestore GetMessage %s: %w", id, domain.ErrMessageNotFound)
	}
	return msgs[0], nil
}

func (x *txStore) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	q := x.s.messagesCol(sessionID).OrderBy("created_at", firestore.Asc)
	if limit > 0 {
		q = q.LimitToLast(limit)
	}
	out, err := decodeMessages(x.t.Documents(q))
	if err != nil {
		return nil, fmt.Errorf("firestore GetMessagesBySession: %w", err)
	}
	return out, nil
}

func (x *txStore) CountMessagesBySession(ctx context.Context, sessionID domain.SessionID) (int, error) {
	snaps, err := x.t.Documents(x.s.messagesCol(sessionID).Select()).GetAll()
	if err != nil {
		return 0, fmt.Errorf("firestore CountMessagesBySession: %w", err)
	}
	return len(snaps), nil
}

func (x *txStore) UpdateMessageText(ctx context.Context, id domain.MessageID, text string) error {
	m, err := x.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	ref := x.s.messageDoc(m.SessionID, id)
	x.buffer(func() error {
		return x.t.Update(ref, []firestore.Update{{Path: "text", Value: text}})
	})
	return nil
}

func (x *txStore) DeleteMessagesAfter(ctx context.Context, sessionID domain.SessionID, t time.Time) (int, error) {
	snaps, err := x.t.Documents(x.s.messagesAfter(sessionID, t)).GetAll()
	if err != nil {
		return 0, fmt.Errorf("firestore DeleteMessagesAfter: %w", err)
	}
	for _, snap := range snaps {
		ref := snap.Ref
		x.buffer(func() error { return x.t.Delete(ref) })
	}
	return len(snaps), nil
}

func (x *txStore) Atomically(ctx context.Context, fn func(tx domain.Store) error) error {
	return fn(x)
}
