package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/PabloGalante/stacks/internal/domain"
)

const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
)

// Searcher answers similarity queries scoped to one owner.
type Searcher struct {
	embedder domain.Embedder
	index    domain.VectorIndex
}

func NewSearcher(embedder domain.Embedder, index domain.VectorIndex) *Searcher {
	return &Searcher{embedder: embedder, index: index}
}

// Search embeds query and returns the owner's closest messages, best first.
// Empty filter values are ignored.
func (s *Searcher) Search(ctx context.Context, userID domain.UserID, query string, filter map[string]string, limit int) ([]domain.VectorMatch, error) {
	if userID == "" {
		return nil, fmt.Errorf("search: %w", domain.ErrUnauthenticated)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	limit = min(limit, MaxSearchLimit)

	clean := make(map[string]string, len(filter))
	for k, v := range filter {
		if v != "" {
			clean[k] = v
		}
	}

	vec, err := s.embedder.Embed(ctx, query, domain.EmbedQuery)
	if err != nil {
		return nil, fmt.Errorf("search embed: %w", err)
	}

	matches, err := s.index.Search(ctx, domain.VectorQuery{
		UserID:    userID,
		Embedding: vec,
		Filter:    clean,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w: %w", domain.ErrUpstream, err)
	}
	return matches, nil
}
