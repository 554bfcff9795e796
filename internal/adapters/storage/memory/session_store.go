package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/PabloGalante/stacks/internal/domain"
)

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createSession(session)
}

func (s *Store) createSession(session *domain.Session) error {
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	s.sessions[session.ID] = copySession(session)
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateSession(session)
}

func (s *Store) updateSession(session *domain.Session) error {
	if _, exists := s.sessions[session.ID]; !exists {
		return fmt.Errorf("update session %s: %w", session.ID, domain.ErrSessionNotFound)
	}
	s.sessions[session.ID] = copySession(session)
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("get session %s: %w", id, domain.ErrSessionNotFound)
	}
	return copySession(sess), nil
}

func (s *Store) ListSessionsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			result = append(result, copySession(sess))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
