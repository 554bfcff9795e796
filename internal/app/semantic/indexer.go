// Package semantic embeds transcript messages into the vector index and
// answers similarity queries over them.
package semantic

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/PabloGalante/stacks/internal/domain"
	"github.com/PabloGalante/stacks/internal/observability"
)

// PreviewRunes caps the text copied into the vector index.
const PreviewRunes = 200

// IndexJob is one message to embed, with the session facts used as filters.
type IndexJob struct {
	Message   *domain.Message
	UserID    domain.UserID
	StackType domain.StackType
	Domain    domain.LifeDomain
}

func (j IndexJob) record(embedding []float32) domain.VectorRecord {
	return domain.VectorRecord{
		ID:          string(j.Message.ID),
		Embedding:   embedding,
		UserID:      j.UserID,
		SessionID:   j.Message.SessionID,
		TextPreview: Preview(j.Message.Text, PreviewRunes),
		Metadata: map[string]string{
			"role":       string(j.Message.Author),
			"stack_type": string(j.StackType),
			"domain":     string(j.Domain),
		},
		CreatedAt: j.Message.CreatedAt,
	}
}

type IndexerOptions struct {
	Workers   int
	QueueSize int
	// Timeout bounds each job, embedding plus upsert.
	Timeout time.Duration
}

// Indexer runs embedding upserts in the background. Enqueue never blocks the
// caller and failures never reach it: they are logged and counted.
type Indexer struct {
	embedder domain.Embedder
	index    domain.VectorIndex
	timeout  time.Duration

	jobs   chan IndexJob
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

func NewIndexer(embedder domain.Embedder, index domain.VectorIndex, opts IndexerOptions) *Indexer {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	ix := &Indexer{
		embedder: embedder,
		index:    index,
		timeout:  opts.Timeout,
		jobs:     make(chan IndexJob, opts.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	ix.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go ix.worker()
	}
	return ix
}

// Enqueue schedules job and reports whether it was accepted. A full queue or
// a closed indexer drops the job.
func (ix *Indexer) Enqueue(job IndexJob) bool {
	if job.Message == nil || job.UserID == "" {
		return false
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		observability.EmbeddingJobs.WithLabelValues("dropped").Inc()
		return false
	}

	select {
	case ix.jobs <- job:
		observability.EmbeddingQueueDepth.Inc()
		return true
	default:
		observability.EmbeddingJobs.WithLabelValues("dropped").Inc()
		observability.Logger().Warnw("embedding queue full, dropping job",
			"message_id", job.Message.ID,
			"session_id", job.Message.SessionID,
		)
		return false
	}
}

// Close stops intake and waits for queued jobs. When ctx expires first the
// in-flight jobs are cancelled and ctx's error is returned.
func (ix *Indexer) Close(ctx context.Context) error {
	ix.mu.Lock()
	if !ix.closed {
		ix.closed = true
		close(ix.jobs)
	}
	ix.mu.Unlock()

	done := make(chan struct{})
	go func() {
		ix.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		ix.cancel()
		return nil
	case <-ctx.Done():
		ix.cancel()
		<-done
		return ctx.Err()
	}
}

func (ix *Indexer) worker() {
	defer ix.wg.Done()
	for job := range ix.jobs {
		observability.EmbeddingQueueDepth.Dec()
		ix.run(job)
	}
}

func (ix *Indexer) run(job IndexJob) {
	log := observability.WithFields(
		"message_id", job.Message.ID,
		"session_id", job.Message.SessionID,
		"embedder", ix.embedder.Name(),
	)

	defer func() {
		if r := recover(); r != nil {
			observability.EmbeddingJobs.WithLabelValues("failed").Inc()
			log.Errorw("embedding job panicked", "panic", fmt.Sprint(r))
		}
	}()

	ctx, cancel := context.WithTimeout(ix.ctx, ix.timeout)
	defer cancel()

	if err := ix.embedAndUpsert(ctx, job); err != nil {
		observability.EmbeddingJobs.WithLabelValues("failed").Inc()
		log.Errorw("failed to index message", "error", err)
		return
	}
	observability.EmbeddingJobs.WithLabelValues("indexed").Inc()
	log.Debugw("message indexed")
}

func (ix *Indexer) embedAndUpsert(ctx context.Context, job IndexJob) error {
	vec, err := ix.embedder.Embed(ctx, job.Message.Text, domain.EmbedDocument)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if err := ix.index.Upsert(ctx, job.record(vec)); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

// Preview truncates s to at most n runes.
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
