package insights_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/stacks/internal/adapters/embedding"
	"github.com/PabloGalante/stacks/internal/adapters/storage/memory"
	vmemory "github.com/PabloGalante/stacks/internal/adapters/vectorstore/memory"
	"github.com/PabloGalante/stacks/internal/app/insights"
	"github.com/PabloGalante/stacks/internal/app/semantic"
	"github.com/PabloGalante/stacks/internal/domain"
)

type recordingLLM struct {
	calls int
	req   domain.CompletionRequest
	text  string
	err   error
}

func (r *recordingLLM) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	r.calls++
	r.req = req
	return r.text, r.err
}

func day(d int) time.Time {
	return time.Date(2026, 5, d, 12, 0, 0, 0, time.UTC)
}

func seedSession(t *testing.T, store *memory.Store, id string, user domain.UserID, created time.Time, st domain.StackType, status domain.Status, answers ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateSession(ctx, &domain.Session{
		ID:        domain.SessionID(id),
		UserID:    user,
		CreatedAt: created,
		UpdatedAt: created,
		StackType: st,
		Domain:    domain.DomainWork,
		Status:    status,
	}))
	require.NoError(t, store.AppendMessage(ctx, &domain.Message{
		ID: domain.MessageID(id + "-q"), SessionID: domain.SessionID(id), Author: domain.RoleAssistant,
		Text: "question", CreatedAt: created,
	}))
	for i, a := range answers {
		require.NoError(t, store.AppendMessage(ctx, &domain.Message{
			ID: domain.MessageID(id + "-a" + string(rune('0'+i))), SessionID: domain.SessionID(id), Author: domain.RoleUser,
			Text: a, CreatedAt: created.Add(time.Duration(i+1) * time.Minute),
		}))
	}
}

func TestAnalytics(t *testing.T) {
	store := memory.NewStore()
	seedSession(t, store, "s1", "u1", day(1), domain.StackGratitude, domain.StatusCompleted, "a", "b", "c")
	seedSession(t, store, "s2", "u1", day(2), domain.StackAnger, domain.StatusInProgress)
	seedSession(t, store, "s3", "u1", day(5), domain.StackGratitude, domain.StatusCompleted, "d")
	seedSession(t, store, "s4", "u1", day(6), domain.StackFear, domain.StatusInProgress, "e")
	seedSession(t, store, "other", "u2", day(6), domain.StackFear, domain.StatusCompleted)

	svc := insights.NewService(store, nil, &recordingLLM{})
	a, err := svc.Analytics(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 4, a.TotalStacks)
	assert.Equal(t, 2, a.CompletedStacks)
	assert.InDelta(t, 0.5, a.CompletionRate, 1e-9)
	assert.Equal(t, map[domain.StackType]int{"gratitude": 2, "anger": 1, "fear": 1}, a.ByType)
	assert.Equal(t, map[domain.LifeDomain]int{"work": 4}, a.ByDomain)
	// 4 + 1 + 2 + 2 messages
	assert.InDelta(t, 9.0/4.0, a.AverageMessages, 1e-9)
	assert.Equal(t, 2, a.LongestStreak)
	require.NotNil(t, a.LastActivity)
	assert.Equal(t, day(6), *a.LastActivity)
}

func TestAnalyticsEmpty(t *testing.T) {
	svc := insights.NewService(memory.NewStore(), nil, &recordingLLM{})
	a, err := svc.Analytics(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, a.TotalStacks)
	assert.Zero(t, a.CompletionRate)
	assert.Nil(t, a.LastActivity)

	_, err = svc.Analytics(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestStreaks(t *testing.T) {
	now := day(10)
	cases := []struct {
		name             string
		days             []int
		current, longest int
	}{
		{"none", nil, 0, 0},
		{"today only", []int{10}, 1, 1},
		{"ends yesterday", []int{7, 8, 9}, 3, 3},
		{"broken before today", []int{1, 2, 3, 4, 8}, 0, 4},
		{"same day twice", []int{9, 9, 10}, 2, 2},
		{"longest in the past", []int{1, 2, 3, 9, 10}, 2, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var times []time.Time
			for _, d := range tc.days {
				times = append(times, day(d))
			}
			cur, longest := insights.Streaks(times, now)
			assert.Equal(t, tc.current, cur)
			assert.Equal(t, tc.longest, longest)
		})
	}
}

func TestInsightsWithoutHistorySkipsLLM(t *testing.T) {
	fake := &recordingLLM{text: "{}"}
	svc := insights.NewService(memory.NewStore(), nil, fake)

	r, err := svc.Insights(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Zero(t, fake.calls)
	assert.Zero(t, r.Sources)
	assert.Empty(t, r.Themes)
}

func TestInsightsRecentMaterial(t *testing.T) {
	store := memory.NewStore()
	seedSession(t, store, "s1", "u1", day(1), domain.StackGratitude, domain.StatusCompleted, "my sister helped me", "I felt calm")

	fake := &recordingLLM{text: "```json\n{\"summary\":\"You value support.\",\"themes\":[\"family\", 3],\"patterns\":[],\"suggestions\":[\"Call her\"]}\n```"}
	svc := insights.NewService(store, nil, fake)

	r, err := svc.Insights(context.Background(), "u1", "")
	require.NoError(t, err)

	assert.Equal(t, 1, fake.calls)
	assert.True(t, fake.req.JSON)
	assert.Contains(t, fake.req.Prompt, "my sister helped me")
	assert.NotContains(t, fake.req.Prompt, "question")
	assert.Equal(t, 2, r.Sources)
	assert.Equal(t, "You value support.", r.Summary)
	assert.Equal(t, []string{"family"}, r.Themes)
	assert.Equal(t, []string{"Call her"}, r.Suggestions)
}

func TestInsightsByTopicUsesSemanticSearch(t *testing.T) {
	emb := embedding.NewHashEmbedder(1024)
	idx := vmemory.NewIndex()
	ix := semantic.NewIndexer(emb, idx, semantic.IndexerOptions{})
	for i, text := range []string{"my sister called", "work deadline again"} {
		ix.Enqueue(semantic.IndexJob{
			Message: &domain.Message{ID: domain.MessageID(rune('a' + i)), SessionID: "s1", Author: domain.RoleUser, Text: text},
			UserID:  "u1",
		})
	}
	require.NoError(t, ix.Close(context.Background()))

	fake := &recordingLLM{text: `{"summary":"ok"}`}
	svc := insights.NewService(memory.NewStore(), semantic.NewSearcher(emb, idx), fake)

	r, err := svc.Insights(context.Background(), "u1", "sister")
	require.NoError(t, err)
	assert.Equal(t, "sister", r.Topic)
	assert.Equal(t, 2, r.Sources)
	assert.Contains(t, fake.req.Prompt, "Topic: sister")
	assert.Contains(t, fake.req.Prompt, "1. my sister called")
}

func TestInsightsUpstreamFailure(t *testing.T) {
	store := memory.NewStore()
	seedSession(t, store, "s1", "u1", day(1), domain.StackAnger, domain.StatusInProgress, "angry")
	svc := insights.NewService(store, nil, &recordingLLM{err: errors.New("down")})

	_, err := svc.Insights(context.Background(), "u1", "")
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestParseReport(t *testing.T) {
	r := insights.ParseReport(`Sure! {"summary": " s ", "themes": ["a", "", null], "patterns": "nope"} Hope it helps.`)
	assert.Equal(t, "s", r.Summary)
	assert.Equal(t, []string{"a"}, r.Themes)
	assert.Equal(t, []string{}, r.Patterns)

	r = insights.ParseReport("just prose")
	assert.Equal(t, "just prose", r.Summary)
	assert.Nil(t, r.Themes)
}
