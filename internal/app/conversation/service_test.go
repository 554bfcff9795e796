package conversation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/stacks/internal/adapters/llm"
	"github.com/PabloGalante/stacks/internal/adapters/storage/memory"
	"github.com/PabloGalante/stacks/internal/app/conversation"
	"github.com/PabloGalante/stacks/internal/app/responder"
	"github.com/PabloGalante/stacks/internal/app/semantic"
	"github.com/PabloGalante/stacks/internal/domain"
	"github.com/PabloGalante/stacks/internal/stacks"
)

const owner = domain.UserID("test-user")

type recordingIndexer struct {
	mu   sync.Mutex
	jobs []semantic.IndexJob
}

func (r *recordingIndexer) Enqueue(job semantic.IndexJob) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return true
}

func (r *recordingIndexer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

type failingLLM struct{}

func (failingLLM) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	return "", errors.New("model unavailable")
}

type fixture struct {
	svc     *conversation.Service
	store   *memory.Store
	indexer *recordingIndexer
}

func newFixture(t *testing.T, client domain.LLMClient) fixture {
	t.Helper()
	store := memory.NewStore()
	idx := &recordingIndexer{}
	svc := conversation.NewService(store, stacks.Default(), responder.New(client), idx)
	return fixture{svc: svc, store: store, indexer: idx}
}

func startGratitude(t *testing.T, f fixture) *conversation.StartStackOutput {
	t.Helper()
	out, err := f.svc.StartStack(context.Background(), conversation.StartStackInput{
		UserID:    owner,
		Title:     "Thankful",
		StackType: "gratitude",
		Domain:    "relationships",
		Subject:   "my sister",
	})
	require.NoError(t, err)
	return out
}

func answer(t *testing.T, f fixture, id domain.SessionID, text string) *conversation.SendMessageOutput {
	t.Helper()
	out, err := f.svc.SendMessage(context.Background(), conversation.SendMessageInput{
		SessionID: id,
		UserID:    owner,
		Text:      text,
	})
	require.NoError(t, err)
	return out
}

func TestStartStackOpensAtFourthQuestion(t *testing.T) {
	f := newFixture(t, llm.NewMockLLM())
	out := startGratitude(t, f)

	assert.NotEmpty(t, out.Session.ID)
	assert.Equal(t, 3, out.Session.CurrentQuestion)
	assert.Equal(t, domain.StatusInProgress, out.Session.Status)
	require.NotNil(t, out.Opening.QuestionNumber)
	assert.Equal(t, 4, *out.Opening.QuestionNumber)
	assert.Contains(t, out.Opening.Text, "my sister")
	assert.NotContains(t, out.Opening.Text, "{subject}")

	_, msgs, err := f.svc.GetTimeline(context.Background(), out.Session.ID, owner, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleAssistant, msgs[0].Author)
}

func TestStartStackValidation(t *testing.T) {
	f := newFixture(t, llm.NewMockLLM())
	ctx := context.Background()

	cases := map[string]conversation.StartStackInput{
		"unknown type":   {UserID: owner, Title: "t", StackType: "joy", Domain: "work", Subject: "s"},
		"unknown domain": {UserID: owner, Title: "t", StackType: "anger", Domain: "hobbies", Subject: "s"},
		"blank title":    {UserID: owner, Title: "  ", StackType: "anger", Domain: "work", Subject: "s"},
		"blank subject":  {UserID: owner, Title: "t", StackType: "anger", Domain: "work", Subject: ""},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.StartStack(ctx, in)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
		})
	}

	_, err := f.svc.StartStack(ctx, conversation.StartStackInput{Title: "t", StackType: "anger", Domain: "work", Subject: "s"})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestGratitudeRunsToCompletion(t *testing.T) {
	f := newFixture(t, llm.NewMockLLM())
	ctx := context.Background()
	sess := startGratitude(t, f).Session
	flow, _ := stacks.Default().Lookup(domain.StackGratitude)
	require.Equal(t, 15, flow.Total())

	for i := 1; i <= 11; i++ {
		out := answer(t, f, sess.ID, "answer")
		assert.Equal(t, 3+i, out.Session.CurrentQuestion)
		require.NotNil(t, out.AssistantMessage.QuestionNumber)
		assert.Equal(t, 4+i, *out.AssistantMessage.QuestionNumber)
		next, _ := flow.Question(3+i, "my sister")
		assert.Contains(t, out.AssistantMessage.Text, next)
	}

	got, err := f.svc.GetStack(ctx, sess.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, 14, got.CurrentQuestion)
	assert.Equal(t, domain.StatusInProgress, got.Status)

	final := answer(t, f, sess.ID, "last answer")
	assert.Equal(t, domain.StatusCompleted, final.Session.Status)
	assert.Equal(t, 14, final.Session.CurrentQuestion)
	assert.NotNil(t, final.Session.CompletedAt)
	assert.Nil(t, final.AssistantMessage.QuestionNumber)
	assert.NotEmpty(t, final.AssistantMessage.Text)

	before, err := f.store.CountMessagesBySession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1+2*12, before)

	_, err = f.svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: sess.ID, UserID: owner, Text: "more"})
	assert.ErrorIs(t, err, domain.ErrSessionAlreadyCompleted)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	after, _ := f.store.CountMessagesBySession(ctx, sess.ID)
	assert.Equal(t, before, after, "rejected answer must not be stored")

	// opening + 12 user + 12 assistant
	assert.Equal(t, 25, f.indexer.count())
}

func TestEditRollsBackCompletedStack(t *testing.T) {
	f := newFixture(t, llm.NewMockLLM())
	ctx := context.Background()
	sess := startGratitude(t, f).Session

	var answers []*domain.Message
	for i := 0; i < 12; i++ {
		answers = append(answers, answer(t, f, sess.ID, "answer").UserMessage)
	}

	fifth := answers[4]
	out, err := f.svc.EditMessage(ctx, conversation.EditMessageInput{
		SessionID: sess.ID,
		UserID:    owner,
		MessageID: fifth.ID,
		Text:      "rewritten",
	})
	require.NoError(t, err)

	assert.Equal(t, 4, out.Session.CurrentQuestion)
	assert.Equal(t, domain.StatusInProgress, out.Session.Status)
	assert.Nil(t, out.Session.CompletedAt)
	assert.Equal(t, "rewritten", out.Message.Text)
	assert.Equal(t, 25-10, out.Removed)

	_, msgs, err := f.svc.GetTimeline(ctx, sess.ID, owner, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 10)
	last := msgs[len(msgs)-1]
	assert.Equal(t, fifth.ID, last.ID)
	assert.Equal(t, "rewritten", last.Text)
	for _, m := range msgs {
		assert.False(t, m.CreatedAt.After(fifth.CreatedAt))
	}

	// the stack accepts answers again
	next := answer(t, f, sess.ID, "again")
	assert.Equal(t, 5, next.Session.CurrentQuestion)
}

func TestEditRejections(t *testing.T) {
	f := newFixture(t, llm.NewMockLLM())
	ctx := context.Background()
	start := startGratitude(t, f)
	sent := answer(t, f, start.Session.ID, "first")

	other := startGratitude(t, f)
	foreign := answer(t, f, other.Session.ID, "elsewhere")

	cases := []struct {
		name string
		msg  domain.MessageID
		text string
		want error
	}{
		{"assistant message", sent.AssistantMessage.ID, "x", domain.ErrInvalidRole},
		{"empty text", sent.UserMessage.ID, "  ", domain.ErrInvalidInput},
		{"unknown message", "nope", "x", domain.ErrMessageNotFound},
		{"message of another stack", foreign.UserMessage.ID, "x", domain.ErrMessageNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.EditMessage(ctx, conversation.EditMessageInput{
				SessionID: start.Session.ID,
				UserID:    owner,
				MessageID: tc.msg,
				Text:      tc.text,
			})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestGenerationFailurePersistsNothing(t *testing.T) {
	f := newFixture(t, failingLLM{})
	ctx := context.Background()
	sess := startGratitude(t, f).Session

	_, err := f.svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: sess.ID, UserID: owner, Text: "hello"})
	require.Error(t, err)
	assert.Equal(t, domain.KindUpstream, domain.KindOf(err))

	n, err := f.store.CountMessagesBySession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := f.svc.GetStack(ctx, sess.ID, owner)
	assert.Equal(t, 3, got.CurrentQuestion)
}

func TestOwnershipIsEnforced(t *testing.T) {
	f := newFixture(t, llm.NewMockLLM())
	ctx := context.Background()
	sess := startGratitude(t, f).Session
	intruder := domain.UserID("someone-else")

	_, err := f.svc.GetStack(ctx, sess.ID, intruder)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
	_, _, err = f.svc.GetTimeline(ctx, sess.ID, intruder, 0)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
	_, err = f.svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: sess.ID, UserID: intruder, Text: "x"})
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
	_, err = f.svc.CompleteStack(ctx, sess.ID, intruder)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
	_, _, err = f.svc.ExportStack(ctx, sess.ID, intruder)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = f.svc.GetStack(ctx, "missing", owner)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestCompleteStackIsIdempotent(t *testing.T) {
	f := newFixture(t, llm.NewMockLLM())
	ctx := context.Background()
	sess := startGratitude(t, f).Session

	done, err := f.svc.CompleteStack(ctx, sess.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, 3, done.CurrentQuestion)
	require.NotNil(t, done.CompletedAt)
	at := *done.CompletedAt

	again, err := f.svc.CompleteStack(ctx, sess.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, at, *again.CompletedAt)

	_, err = f.svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: sess.ID, UserID: owner, Text: "x"})
	assert.ErrorIs(t, err, domain.ErrSessionAlreadyCompleted)
}

func TestConcurrentAnswersKeepTranscriptConsistent(t *testing.T) {
	f := newFixture(t, llm.NewMockLLM())
	ctx := context.Background()
	sess := startGratitude(t, f).Session

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: sess.ID, UserID: owner, Text: "race"})
		}()
	}
	wg.Wait()

	got, err := f.svc.GetStack(ctx, sess.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, 3+8, got.CurrentQuestion)

	_, msgs, err := f.svc.GetTimeline(ctx, sess.ID, owner, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1+16)
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i].CreatedAt.After(msgs[i-1].CreatedAt))
		wantRole := domain.RoleUser
		if i%2 == 0 {
			wantRole = domain.RoleAssistant
		}
		assert.Equal(t, wantRole, msgs[i].Author)
	}
	assert.Equal(t, 9, domain.CountAssistant(msgs))
}

func TestListStacksNewestFirst(t *testing.T) {
	f := newFixture(t, llm.NewMockLLM())
	first := startGratitude(t, f).Session
	time.Sleep(time.Millisecond)
	second := startGratitude(t, f).Session

	list, err := f.svc.ListStacks(context.Background(), owner, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestExportIsStable(t *testing.T) {
	f := newFixture(t, llm.NewMockLLM())
	ctx := context.Background()
	sess := startGratitude(t, f).Session
	answer(t, f, sess.ID, "She listens.")

	_, a, err := f.svc.ExportStack(ctx, sess.ID, owner)
	require.NoError(t, err)
	_, b, err := f.svc.ExportStack(ctx, sess.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "STACK: Thankful\n")
	assert.Contains(t, a, "A: She listens.\n")
}
