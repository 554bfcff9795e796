package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/PabloGalante/stacks/internal/domain"
)

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendMessage(msg)
}

func (s *Store) appendMessage(msg *domain.Message) error {
	if _, ok := s.sessions[msg.SessionID]; !ok {
		return fmt.Errorf("append message: %w", domain.ErrSessionNotFound)
	}
	if _, dup := s.byID[msg.ID]; dup {
		return fmt.Errorf("message %s already exists", msg.ID)
	}

	m := copyMessage(msg)
	msgs := s.messages[msg.SessionID]

	// keep creation order even if a caller appends out of order
	i := len(msgs)
	for i > 0 && msgs[i-1].CreatedAt.After(m.CreatedAt) {
		i--
	}
	msgs = append(msgs, nil)
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = m

	s.messages[msg.SessionID] = msgs
	s.byID[m.ID] = m
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("get message %s: %w", id, domain.ErrMessageNotFound)
	}
	return copyMessage(m), nil
}

func (s *Store) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]*domain.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, copyMessage(m))
	}
	return out, nil
}

func (s *Store) CountMessagesBySession(ctx context.Context, sessionID domain.SessionID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[sessionID]), nil
}

func (s *Store) UpdateMessageText(ctx context.Context, id domain.MessageID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateMessageText(id, text)
}

func (s *Store) updateMessageText(id domain.MessageID, text string) error {
	m, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("update message %s: %w", id, domain.ErrMessageNotFound)
	}

	updated := copyMessage(m)
	updated.Text = text

	msgs := s.messages[m.SessionID]
	next := make([]*domain.Message, len(msgs))
	for i, cur := range msgs {
		if cur.ID == id {
			next[i] = updated
		} else {
			next[i] = cur
		}
	}
	s.messages[m.SessionID] = next
	s.byID[id] = updated
	return nil
}

func (s *Store) DeleteMessagesAfter(ctx context.Context, sessionID domain.SessionID, t time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteMessagesAfter(sessionID, t)
}

func (s *Store) deleteMessagesAfter(sessionID domain.SessionID, t time.Time) (int, error) {
	msgs := s.messages[sessionID]
	kept := make([]*domain.Message, 0, len(msgs))
	removed := 0
	for _, m := range msgs {
		if m.CreatedAt.After(t) {
			delete(s.byID, m.ID)
			removed++
			continue
		}
		kept = append(kept, m)
	}
	s.messages[sessionID] = kept
	return removed, nil
}
