// Package responder turns a progression step into assistant text.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PabloGalante/stacks/internal/domain"
	"github.com/PabloGalante/stacks/internal/observability"
)

const (
	ShortBudget int32 = 512
	LongBudget  int32 = 2048
)

// Input is everything needed to answer one user turn.
type Input struct {
	StackType   domain.StackType
	StackName   string
	Description string
	Subject     string

	// Cursor is the index of the question being answered.
	Cursor int
	// Final asks for the closing summary instead of the next question.
	Final        bool
	Answer       string
	History      []*domain.Message
	NextQuestion string
}

type Responder struct {
	llm domain.LLMClient
	now func() time.Time
}

func New(llm domain.LLMClient) *Responder {
	return &Responder{llm: llm, now: time.Now}
}

// Respond produces the acknowledgement plus next question, or the summary.
func (r *Responder) Respond(ctx context.Context, in Input) (string, error) {
	if !in.Final && strings.TrimSpace(in.NextQuestion) == "" {
		return "", fmt.Errorf("%w: next question is required", domain.ErrInvalidInput)
	}

	p := buildPrompt(in)
	budget := ShortBudget
	if in.Final {
		budget = LongBudget
	}

	log := observability.LoggerFromContext(ctx).With(
		"stack_type", in.StackType,
		"cursor", in.Cursor,
		"final", in.Final,
	)

	start := r.now()
	text, err := r.llm.Complete(ctx, domain.CompletionRequest{
		System:          p.System,
		History:         historyFor(in.History),
		Prompt:          p.User,
		MaxOutputTokens: budget,
		Temperature:     0.7,
	})
	elapsed := r.now().Sub(start)

	outcome := "ok"
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("empty completion: %w", domain.ErrUpstream)
	}
	if err != nil {
		outcome = "error"
	}
	observability.LLMDuration.WithLabelValues(purpose(in.Final), outcome).Observe(elapsed.Seconds())

	if err != nil {
		log.Errorw("failed to generate response", "error", err)
		if !errors.Is(err, domain.ErrUpstream) {
			err = fmt.Errorf("%w: %w", domain.ErrUpstream, err)
		}
		return "", err
	}

	log.Debugw("response generated", "duration_ms", elapsed.Milliseconds(), "chars", len(text))
	return strings.TrimSpace(text), nil
}
