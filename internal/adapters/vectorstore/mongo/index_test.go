package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/PabloGalante/stacks/internal/domain"
)

func TestSearchPipelineScopesByOwner(t *testing.T) {
	p := searchPipeline("idx", domain.VectorQuery{
		UserID:    "u1",
		Embedding: []float32{0.1, 0.2},
		Filter:    map[string]string{"stack_type": "gratitude", "role": "user"},
		Limit:     5,
	})
	require.Len(t, p, 2)

	stage := p[0].Map()["$vectorSearch"].(bson.D).Map()
	assert.Equal(t, "idx", stage["index"])
	assert.Equal(t, "embedding", stage["path"])
	assert.Equal(t, 50, stage["numCandidates"])
	assert.Equal(t, 5, stage["limit"])

	and := stage["filter"].(bson.D).Map()["$and"].(bson.A)
	require.Len(t, and, 3)
	assert.Equal(t, bson.D{{Key: "user_id", Value: bson.D{{Key: "$eq", Value: "u1"}}}}, and[0])
	// metadata keys are emitted in sorted order
	assert.Equal(t, bson.D{{Key: "metadata.role", Value: bson.D{{Key: "$eq", Value: "user"}}}}, and[1])
	assert.Equal(t, bson.D{{Key: "metadata.stack_type", Value: bson.D{{Key: "$eq", Value: "gratitude"}}}}, and[2])

	project := p[1].Map()["$project"].(bson.D).Map()
	assert.Equal(t, bson.D{{Key: "$meta", Value: "vectorSearchScore"}}, project["score"])
}

func TestSearchPipelineDefaultLimit(t *testing.T) {
	p := searchPipeline("idx", domain.VectorQuery{UserID: "u1"})
	stage := p[0].Map()["$vectorSearch"].(bson.D).Map()
	assert.Equal(t, 10, stage["limit"])
	assert.Equal(t, 100, stage["numCandidates"])
}

func TestIndexRequiresURIAndOwner(t *testing.T) {
	ix := New(Config{})
	ctx := context.Background()

	_, err := ix.Search(ctx, domain.VectorQuery{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = ix.Upsert(ctx, domain.VectorRecord{ID: "a", UserID: "u1"})
	assert.ErrorContains(t, err, "URI is required")
	assert.NoError(t, ix.Close(ctx))
}
