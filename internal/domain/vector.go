package domain

import "time"

// VectorRecord is what gets written to the vector index for one message.
type VectorRecord struct {
	ID          string
	Embedding   []float32
	UserID      UserID
	SessionID   SessionID
	TextPreview string
	Metadata    map[string]string
	CreatedAt   time.Time
}

// VectorQuery is a nearest-neighbour query scoped to one owner.
type VectorQuery struct {
	UserID    UserID
	Embedding []float32
	// Filter matches metadata keys exactly.
	Filter map[string]string
	Limit  int
}

type VectorMatch struct {
	ID          string
	SessionID   SessionID
	TextPreview string
	Metadata    map[string]string
	CreatedAt   time.Time
	Score       float64
}
