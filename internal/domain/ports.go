package domain

import (
	"context"
	"time"
)

// LLMClient defines how the core application interacts with an LLM service.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionRequest is a single, non-streaming generation call.
type CompletionRequest struct {
	System string
	// History is replayed as alternating user/model turns before Prompt.
	History         []*Message
	Prompt          string
	MaxOutputTokens int32
	Temperature     float32
	// JSON asks the backend for an application/json response.
	JSON bool
}

// SessionStore defines session's persistence
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	UpdateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id SessionID) (*Session, error)
	// ListSessionsByUser returns the newest sessions first.
	ListSessionsByUser(ctx context.Context, userID UserID, limit int) ([]*Session, error)
}

// MessageStore defines message's persistence
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id MessageID) (*Message, error)
	// GetMessagesBySession returns messages in creation order. A positive
	// limit keeps only the most recent ones.
	GetMessagesBySession(ctx context.Context, sessionID SessionID, limit int) ([]*Message, error)
	CountMessagesBySession(ctx context.Context, sessionID SessionID) (int, error)
	UpdateMessageText(ctx context.Context, id MessageID, text string) error
	// DeleteMessagesAfter removes every message of the session created
	// strictly after t and reports how many were removed.
	DeleteMessagesAfter(ctx context.Context, sessionID SessionID, t time.Time) (int, error)
}

// Store is the system of record for sessions and their transcripts.
type Store interface {
	SessionStore
	MessageStore

	// Atomically runs fn against a transactional view of the store: either
	// every write made through tx is committed or none is.
	Atomically(ctx context.Context, fn func(tx Store) error) error
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string, purpose EmbedPurpose) ([]float32, error)
	Dimensions() int
	Name() string
}

type EmbedPurpose int

const (
	EmbedDocument EmbedPurpose = iota
	EmbedQuery
)

// VectorIndex is the external nearest-neighbour index used for semantic
// retrieval. It is never the system of record for transcript content.
type VectorIndex interface {
	Upsert(ctx context.Context, rec VectorRecord) error
	Search(ctx context.Context, q VectorQuery) ([]VectorMatch, error)
}
