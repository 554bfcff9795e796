// Package insights derives statistics and LLM reflections from a user's
// stack history.
package insights

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PabloGalante/stacks/internal/domain"
	"github.com/PabloGalante/stacks/internal/observability"
)

const (
	// countConcurrency bounds the parallel message counts in Analytics.
	countConcurrency = 8

	insightSources    = 20
	recentSessions    = 3
	insightTokenLimit = 1024
)

// Searcher is the slice of semantic.Searcher used here.
type Searcher interface {
	Search(ctx context.Context, userID domain.UserID, query string, filter map[string]string, limit int) ([]domain.VectorMatch, error)
}

// Store is the read side of domain.Store used here.
type Store interface {
	ListSessionsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Session, error)
	GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error)
	CountMessagesBySession(ctx context.Context, sessionID domain.SessionID) (int, error)
}

// Service holds the logic of reading a user's history back to them.
type Service struct {
	store    Store
	searcher Searcher
	llm      domain.LLMClient
	now      func() time.Time
}

// NewService creates an insights service. searcher may be nil, in which case
// topics fall back to the most recent answers.
func NewService(store Store, searcher Searcher, llm domain.LLMClient) *Service {
	return &Service{
		store:    store,
		searcher: searcher,
		llm:      llm,
		now:      time.Now,
	}
}

// ─────────────────────────────────────────
// Analytics
// ─────────────────────────────────────────

func (s *Service) Analytics(ctx context.Context, userID domain.UserID) (*domain.Analytics, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}

	sessions, err := s.store.ListSessionsByUser(ctx, userID, 0)
	if err != nil {
		return nil, err
	}

	counts := make([]int, len(sessions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(countConcurrency)
	for i, sess := range sessions {
		g.Go(func() error {
			n, err := s.store.CountMessagesBySession(gctx, sess.ID)
			if err != nil {
				return fmt.Errorf("count messages of %s: %w", sess.ID, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		observability.LoggerFromContext(ctx).Errorw("failed to compute analytics",
			"user_id", userID, "error", err)
		return nil, err
	}

	return summarize(userID, sessions, counts, s.now()), nil
}

func summarize(userID domain.UserID, sessions []*domain.Session, counts []int, now time.Time) *domain.Analytics {
	a := &domain.Analytics{
		UserID:   userID,
		ByType:   make(map[domain.StackType]int),
		ByDomain: make(map[domain.LifeDomain]int),
	}

	var messages int
	days := make([]time.Time, 0, len(sessions))
	for i, sess := range sessions {
		a.TotalStacks++
		if sess.IsCompleted() {
			a.CompletedStacks++
		}
		a.ByType[sess.StackType]++
		a.ByDomain[sess.Domain]++
		messages += counts[i]
		days = append(days, sess.CreatedAt)

		last := sess.UpdatedAt
		if last.Before(sess.CreatedAt) {
			last = sess.CreatedAt
		}
		if a.LastActivity == nil || last.After(*a.LastActivity) {
			t := last.UTC()
			a.LastActivity = &t
		}
	}

	if a.TotalStacks > 0 {
		a.CompletionRate = float64(a.CompletedStacks) / float64(a.TotalStacks)
		a.AverageMessages = float64(messages) / float64(a.TotalStacks)
	}
	a.CurrentStreak, a.LongestStreak = Streaks(days, now)

	return a
}

// Streaks counts runs of consecutive UTC days with at least one entry in
// times. The current streak is the run ending today, or yesterday when
// nothing happened yet today.
func Streaks(times []time.Time, now time.Time) (current, longest int) {
	if len(times) == 0 {
		return 0, 0
	}

	seen := make(map[time.Time]struct{}, len(times))
	var days []time.Time
	for _, t := range times {
		d := day(t)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	run := 0
	for i, d := range days {
		if i > 0 && days[i-1].AddDate(0, 0, 1).Equal(d) {
			run++
		} else {
			run = 1
		}
		longest = max(longest, run)
	}

	today := day(now)
	last := days[len(days)-1]
	if last.Equal(today) || last.Equal(today.AddDate(0, 0, -1)) {
		current = run
	}
	return current, longest
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ─────────────────────────────────────────
// Insights
// ─────────────────────────────────────────

// Insights asks the LLM to reflect on the user's answers about topic. An
// empty topic looks at the most recent stacks. With no material the report
// is empty and no LLM call is made.
func (s *Service) Insights(ctx context.Context, userID domain.UserID, topic string) (*domain.InsightReport, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	topic = strings.TrimSpace(topic)

	log := observability.LoggerFromContext(ctx).With("user_id", userID, "topic", topic)

	texts, err := s.material(ctx, userID, topic)
	if err != nil {
		log.Errorw("failed to gather insight material", "error", err)
		return nil, err
	}

	report := &domain.InsightReport{
		UserID:    userID,
		Topic:       topic,
		Themes:      []string{},
		Patterns:    []string{},
		Suggestions: []string{},
		Sources:     len(texts),
		CreatedAt:   s.now().UTC(),
	}
	if len(texts) == 0 {
		return report, nil
	}

	start := s.now()
	raw, err := s.llm.Complete(ctx, domain.CompletionRequest{
		System:          insightSystemPrompt,
		Prompt:          insightPrompt(topic, texts),
		MaxOutputTokens: insightTokenLimit,
		Temperature:     0.4,
		JSON:            true,
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.LLMDuration.WithLabelValues("insights", outcome).Observe(s.now().Sub(start).Seconds())
	if err != nil {
		log.Errorw("failed to generate insights", "error", err)
		return nil, fmt.Errorf("insights: %w: %w", domain.ErrUpstream, err)
	}

	parsed := ParseReport(raw)
	report.Summary = parsed.Summary
	report.Themes = parsed.Themes
	report.Patterns = parsed.Patterns
	report.Suggestions = parsed.Suggestions

	log.Infow("insights generated", "sources", len(texts), "themes", len(report.Themes))
	return report, nil
}

func (s *Service) material(ctx context.Context, userID domain.UserID, topic string) ([]string, error) {
	if topic != "" && s.searcher != nil {
		matches, err := s.searcher.Search(ctx, userID, topic, map[string]string{"role": string(domain.RoleUser)}, insightSources)
		if err != nil {
			return nil, err
		}
		texts := make([]string, 0, len(matches))
		for _, m := range matches {
			if t := strings.TrimSpace(m.TextPreview); t != "" {
				texts = append(texts, t)
			}
		}
		return texts, nil
	}

	sessions, err := s.store.ListSessionsByUser(ctx, userID, recentSessions)
	if err != nil {
		return nil, err
	}
	var texts []string
	for _, sess := range sessions {
		msgs, err := s.store.GetMessagesBySession(ctx, sess.ID, 0)
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			if m.Author == domain.RoleUser && strings.TrimSpace(m.Text) != "" {
				texts = append(texts, m.Text)
			}
		}
	}
	if len(texts) > insightSources {
		texts = texts[len(texts)-insightSources:]
	}
	return texts, nil
}
