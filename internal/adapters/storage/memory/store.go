package memory

import (
	"context"
	"sync"

	"github.com/PabloGalante/stacks/internal/domain"
)

// Store is an in-memory implementation of domain.Store.
// It is NOT persistent and is only suitable for development / local mode.
type Store struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*domain.Session
	messages map[domain.SessionID][]*domain.Message
	byID     map[domain.MessageID]*domain.Message
}

var _ domain.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		sessions: make(map[domain.SessionID]*domain.Session),
		messages: make(map[domain.SessionID][]*domain.Message),
		byID:     make(map[domain.MessageID]*domain.Message),
	}
}

// Atomically stages every write fn makes and applies them under a single
// lock once fn returns nil. Reads inside fn see the committed state only.
func (s *Store) Atomically(ctx context.Context, fn func(tx domain.Store) error) error {
	tx := &stagedStore{base: s}
	if err := fn(tx); err != nil {
		return err
	}
	return s.apply(tx.ops)
}

func (s *Store) apply(ops []func(*Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	for _, op := range ops {
		if err := op(s); err != nil {
			s.restore(snap)
			return err
		}
	}
	return nil
}

type state struct {
	sessions map[domain.SessionID]*domain.Session
	messages map[domain.SessionID][]*domain.Message
	byID     map[domain.MessageID]*domain.Message
}

// snapshot copies the maps; stored values are never mutated in place.
func (s *Store) snapshot() state {
	st := state{
		sessions: make(map[domain.SessionID]*domain.Session, len(s.sessions)),
		messages: make(map[domain.SessionID][]*domain.Message, len(s.messages)),
		byID:     make(map[domain.MessageID]*domain.Message, len(s.byID)),
	}
	for k, v := range s.sessions {
		st.sessions[k] = v
	}
	for k, v := range s.messages {
		st.messages[k] = append([]*domain.Message(nil), v...)
	}
	for k, v := range s.byID {
		st.byID[k] = v
	}
	return st
}

func (s *Store) restore(st state) {
	s.sessions = st.sessions
	s.messages = st.messages
	s.byID = st.byID
}

func copySession(in *domain.Session) *domain.Session {
	out := *in
	if in.CompletedAt != nil {
		t := *in.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func copyMessage(in *domain.Message) *domain.Message {
	out := *in
	if in.QuestionNumber != nil {
		n := *in.QuestionNumber
		out.QuestionNumber = &n
	}
	return &out
}
