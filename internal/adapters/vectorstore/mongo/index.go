// Package mongo stores message embeddings in a MongoDB Atlas collection and
// queries them with the $vectorSearch aggregation stage.
//
// The Atlas vector index is managed outside the service. It must index
// "embedding" as a vector with the embedder's dimensions and declare
// "user_id" and every "metadata.*" key used in filters as filter fields.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/PabloGalante/stacks/internal/domain"
	"github.com/PabloGalante/stacks/internal/observability"
)

type Config struct {
	URI        string
	Database   string
	Collection string
	IndexName  string
}

// Index is a domain.VectorIndex over one Atlas collection. The client is
// created on first use and reused for the life of the process.
type Index struct {
	cfg Config

	once    sync.Once
	client  *mongo.Client
	coll    *mongo.Collection
	initErr error
}

var _ domain.VectorIndex = (*Index)(nil)

func New(cfg Config) *Index {
	return &Index{cfg: cfg}
}

type document struct {
	ID          string            `bson:"_id"`
	Embedding   []float32         `bson:"embedding"`
	UserID      string            `bson:"user_id"`
	SessionID   string            `bson:"session_id"`
	TextPreview string            `bson:"text_preview"`
	Metadata    map[string]string `bson:"metadata"`
	CreatedAt   time.Time         `bson:"created_at"`
	Score       float64           `bson:"score,omitempty"`
}

func (ix *Index) collection(ctx context.Context) (*mongo.Collection, error) {
	ix.once.Do(func() {
		if ix.cfg.URI == "" {
			ix.initErr = errors.New("mongo vector index: URI is required")
			return
		}
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(ix.cfg.URI))
		if err != nil {
			ix.initErr = fmt.Errorf("mongo connect: %w", err)
			return
		}
		ix.client = client
		ix.coll = client.Database(ix.cfg.Database).Collection(ix.cfg.Collection)
		observability.Logger().Infow("mongo vector index connected",
			"database", ix.cfg.Database,
			"collection", ix.cfg.Collection,
			"index", ix.cfg.IndexName,
		)
	})
	return ix.coll, ix.initErr
}

func (ix *Index) Upsert(ctx context.Context, rec domain.VectorRecord) error {
	if rec.ID == "" || rec.UserID == "" {
		return fmt.Errorf("%w: vector record needs id and user id", domain.ErrInvalidInput)
	}
	coll, err := ix.collection(ctx)
	if err != nil {
		return err
	}

	doc := document{
		ID:          rec.ID,
		Embedding:   rec.Embedding,
		UserID:      string(rec.UserID),
		SessionID:   string(rec.SessionID),
		TextPreview: rec.TextPreview,
		Metadata:    rec.Metadata,
		CreatedAt:   rec.CreatedAt.UTC(),
	}
	_, err = coll.ReplaceOne(ctx, bson.M{"_id": rec.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo upsert %s: %w", rec.ID, err)
	}
	return nil
}

func (ix *Index) Search(ctx context.Context, q domain.VectorQuery) ([]domain.VectorMatch, error) {
	if q.UserID == "" {
		return nil, fmt.Errorf("%w: vector query needs a user id", domain.ErrInvalidInput)
	}
	coll, err := ix.collection(ctx)
	if err != nil {
		return nil, err
	}

	cur, err := coll.Aggregate(ctx, searchPipeline(ix.cfg.IndexName, q))
	if err != nil {
		return nil, fmt.Errorf("mongo vector search: %w", err)
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo vector search decode: %w", err)
	}

	out := make([]domain.VectorMatch, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.VectorMatch{
			ID:          d.ID,
			SessionID:   domain.SessionID(d.SessionID),
			TextPreview: d.TextPreview,
			Metadata:    d.Metadata,
			CreatedAt:   d.CreatedAt,
			Score:       d.Score,
		})
	}
	return out, nil
}

// Close disconnects the client if it was ever created.
func (ix *Index) Close(ctx context.Context) error {
	if ix.client == nil {
		return nil
	}
	return ix.client.Disconnect(ctx)
}

func searchPipeline(indexName string, q domain.VectorQuery) mongo.Pipeline {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	clauses := bson.A{bson.D{{Key: "user_id", Value: bson.D{{Key: "$eq", Value: string(q.UserID)}}}}}
	keys := make([]string, 0, len(q.Filter))
	for k := range q.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		clauses = append(clauses, bson.D{{Key: "metadata." + k, Value: bson.D{{Key: "$eq", Value: q.Filter[k]}}}})
	}

	return mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: indexName},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: q.Embedding},
			{Key: "numCandidates", Value: limit * 10},
			{Key: "limit", Value: limit},
			{Key: "filter", Value: bson.D{{Key: "$and", Value: clauses}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "embedding", Value: 0},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
}
