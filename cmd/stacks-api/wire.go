package main

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/PabloGalante/stacks/internal/adapters/embedding"
	"github.com/PabloGalante/stacks/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/stacks/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/stacks/internal/adapters/storage/memory"
	"github.com/PabloGalante/stacks/internal/adapters/storage/postgres"
	vmemory "github.com/PabloGalante/stacks/internal/adapters/vectorstore/memory"
	vmongo "github.com/PabloGalante/stacks/internal/adapters/vectorstore/mongo"
	"github.com/PabloGalante/stacks/internal/app/conversation"
	"github.com/PabloGalante/stacks/internal/app/insights"
	"github.com/PabloGalante/stacks/internal/app/responder"
	"github.com/PabloGalante/stacks/internal/app/semantic"
	"github.com/PabloGalante/stacks/internal/config"
	"github.com/PabloGalante/stacks/internal/domain"
	"github.com/PabloGalante/stacks/internal/observability"
	"github.com/PabloGalante/stacks/internal/stacks"
)

type application struct {
	conversation *conversation.Service
	insights     *insights.Service
	searcher     *semantic.Searcher

	// closers run in reverse order on shutdown
	closers []func(context.Context) error
}

func (a *application) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func build(ctx context.Context, cfg *config.Config) (*application, error) {
	log := observability.Logger()
	app := &application{}

	// Storage: Postgres, Firestore or Memory
	var store domain.Store
	switch cfg.StorageBackend {
	case "postgres":
		log.Infow("using postgres storage")
		pg, err := postgres.Open(ctx, cfg.PostgresDSN, 5)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		app.closers = append(app.closers, func(context.Context) error { return pg.Close() })
		store = pg
	case "firestore":
		log.Infow("using firestore storage", "project", cfg.GCPProjectID)
		fs, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func(context.Context) error { return fs.Close() })
		store = fs
	default:
		log.Infow("using in-memory storage")
		store = memstore.NewStore()
	}

	// One genai client serves generation and embeddings.
	var genaiClient *genai.Client
	needGenAI := !cfg.UseMockLLM || cfg.EmbeddingProvider == "genai"
	if needGenAI {
		c, err := llm.NewClient(ctx, llm.GenAIConfig{
			APIKey:   cfg.GenAIKey,
			Project:  cfg.GCPProjectID,
			Location: cfg.GCPLocation,
		})
		if err != nil {
			_ = app.close(ctx)
			return nil, err
		}
		genaiClient = c
	}

	var llmClient domain.LLMClient
	if cfg.UseMockLLM {
		log.Infow("using mock LLM client")
		llmClient = llm.NewMockLLM()
	} else {
		log.Infow("using genai LLM client", "model", cfg.ModelName)
		llmClient = llm.NewGenAIClientFrom(genaiClient, cfg.ModelName)
	}

	var embedder domain.Embedder
	switch cfg.EmbeddingProvider {
	case "genai":
		embedder = embedding.NewGenAIEmbedder(genaiClient, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	default:
		embedder = embedding.NewHashEmbedder(cfg.EmbeddingDimensions)
	}

	var index domain.VectorIndex
	switch cfg.VectorBackend {
	case "mongo":
		mi := vmongo.New(vmongo.Config{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
			IndexName:  cfg.MongoVectorIndex,
		})
		app.closers = append(app.closers, mi.Close)
		index = mi
	default:
		index = vmemory.NewIndex()
	}
	log.Infow("semantic pipeline ready", "embedder", embedder.Name(), "vector_backend", cfg.VectorBackend)

	indexer := semantic.NewIndexer(embedder, index, semantic.IndexerOptions{
		Workers:   cfg.IndexWorkers,
		QueueSize: cfg.IndexQueueSize,
		Timeout:   cfg.IndexTimeout,
	})
	// drains before the vector index and store are closed
	app.closers = append(app.closers, func(ctx context.Context) error {
		if err := indexer.Close(ctx); err != nil {
			return fmt.Errorf("indexer drain: %w", err)
		}
		return nil
	})

	app.searcher = semantic.NewSearcher(embedder, index)
	app.conversation = conversation.NewService(store, stacks.Default(), responder.New(llmClient), indexer)
	app.insights = insights.NewService(store, app.searcher, llmClient)

	return app, nil
}
