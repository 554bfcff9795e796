// Package embedding turns message text into vectors.
package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/PabloGalante/stacks/internal/domain"
)

// GenAIEmbedder generates embeddings with Gemini's embedding models.
type GenAIEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

var _ domain.Embedder = (*GenAIEmbedder)(nil)

func NewGenAIEmbedder(client *genai.Client, model string, dimensions int) *GenAIEmbedder {
	if model == "" {
		model = "gemini-embedding-001"
	}
	if dimensions <= 0 {
		dimensions = 768
	}
	return &GenAIEmbedder{client: client, model: model, dimensions: dimensions}
}

func taskType(p domain.EmbedPurpose) string {
	if p == domain.EmbedQuery {
		return "RETRIEVAL_QUERY"
	}
	return "RETRIEVAL_DOCUMENT"
}

// Embed generates an embedding for a single text.
func (e *GenAIEmbedder) Embed(ctx context.Context, text string, purpose domain.EmbedPurpose) ([]float32, error) {
	dims := int32(e.dimensions)
	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{
			TaskType:             taskType(purpose),
			OutputDimensionality: &dims,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("genai embed: %w: %w", domain.ErrUpstream, err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("genai embed: no embeddings returned: %w", domain.ErrUpstream)
	}

	return result.Embeddings[0].Values, nil
}

func (e *GenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *GenAIEmbedder) Name() string {
	return fmt.Sprintf("genai:%s", e.model)
}
