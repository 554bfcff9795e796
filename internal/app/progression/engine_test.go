package progression_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/stacks/internal/app/progression"
	"github.com/PabloGalante/stacks/internal/domain"
	"github.com/PabloGalante/stacks/internal/stacks"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func gratitudeFlow(t *testing.T) stacks.Flow {
	t.Helper()
	f, ok := stacks.Default().Lookup(domain.StackGratitude)
	require.True(t, ok)
	return f
}

func newSession() *domain.Session {
	return &domain.Session{
		ID:              "s1",
		UserID:          "u1",
		StackType:       domain.StackGratitude,
		CurrentQuestion: progression.InitialCursor,
		Status:          domain.StatusInProgress,
	}
}

func TestAdvanceWalksToCompletion(t *testing.T) {
	flow := gratitudeFlow(t)
	s := newSession()

	for i := 1; i <= 11; i++ {
		st, err := progression.Advance(s, flow, fmt.Sprintf("answer %d", i))
		require.NoError(t, err)
		require.False(t, st.Complete)
		require.Equal(t, progression.InitialCursor+i, st.NextIndex)
		require.Equal(t, st.NextIndex+1, *st.QuestionNumber())
		st.Apply(s, t0)
	}
	assert.Equal(t, 14, s.CurrentQuestion)
	assert.Equal(t, domain.StatusInProgress, s.Status)

	st, err := progression.Advance(s, flow, "last answer")
	require.NoError(t, err)
	assert.True(t, st.Complete)
	assert.Nil(t, st.QuestionNumber())

	st.Apply(s, t0)
	assert.Equal(t, domain.StatusCompleted, s.Status)
	assert.Equal(t, flow.Total()-1, s.CurrentQuestion)
	require.NotNil(t, s.CompletedAt)

	_, err = progression.Advance(s, flow, "one more")
	assert.ErrorIs(t, err, domain.ErrSessionAlreadyCompleted)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestAdvanceRejectsBlankAnswer(t *testing.T) {
	s := newSession()
	_, err := progression.Advance(s, gratitudeFlow(t), "  \n\t")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, progression.InitialCursor, s.CurrentQuestion)
}

func TestAdvanceOnCompletedWinsOverBlank(t *testing.T) {
	s := newSession()
	s.Status = domain.StatusCompleted
	_, err := progression.Advance(s, gratitudeFlow(t), "")
	assert.ErrorIs(t, err, domain.ErrSessionAlreadyCompleted)
}

// transcript builds an opening question followed by n answer/question pairs.
func transcript(s *domain.Session, n int) []*domain.Message {
	var msgs []*domain.Message
	ts := t0
	add := func(role domain.Role, text string) {
		ts = ts.Add(time.Second)
		msgs = append(msgs, &domain.Message{
			ID:        domain.MessageID(fmt.Sprintf("m%02d", len(msgs))),
			SessionID: s.ID,
			Author:    role,
			Text:      text,
			CreatedAt: ts,
		})
	}
	add(domain.RoleAssistant, "q4")
	for i := 1; i <= n; i++ {
		add(domain.RoleUser, fmt.Sprintf("a%d", i))
		add(domain.RoleAssistant, fmt.Sprintf("q%d", i+4))
	}
	return msgs
}

func TestEditRecomputesCursorAndReopens(t *testing.T) {
	s := newSession()
	s.CurrentQuestion = 14
	s.Status = domain.StatusCompleted
	completed := t0
	s.CompletedAt = &completed

	msgs := transcript(s, 12)
	fifthUser := msgs[9]
	require.Equal(t, "a5", fifthUser.Text)

	rb, err := progression.Edit(s, msgs, fifthUser.ID, "edited")
	require.NoError(t, err)
	assert.True(t, rb.Reopened)
	assert.Equal(t, 4, rb.Cursor)
	assert.Len(t, rb.Kept, 10)
	assert.Len(t, rb.Dropped, len(msgs)-10)
	for _, m := range rb.Dropped {
		assert.True(t, m.CreatedAt.After(fifthUser.CreatedAt))
	}

	rb.Apply(s, t0)
	assert.Equal(t, 4, s.CurrentQuestion)
	assert.Equal(t, domain.StatusInProgress, s.Status)
	assert.Nil(t, s.CompletedAt)
}

func TestEditFirstAnswerKeepsCursorAtZeroFloor(t *testing.T) {
	s := newSession()
	msgs := transcript(s, 2)

	rb, err := progression.Edit(s, msgs, msgs[1].ID, "edited")
	require.NoError(t, err)
	assert.Equal(t, 0, rb.Cursor)
	assert.False(t, rb.Reopened)
	assert.Len(t, rb.Kept, 2)
}

func TestEditFailures(t *testing.T) {
	s := newSession()
	msgs := transcript(s, 2)

	_, err := progression.Edit(s, msgs, "missing", "x")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)

	foreign := &domain.Message{ID: "f1", SessionID: "other", Author: domain.RoleUser, CreatedAt: t0}
	_, err = progression.Edit(s, append(msgs, foreign), "f1", "x")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)

	_, err = progression.Edit(s, msgs, msgs[0].ID, "x")
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	_, err = progression.Edit(s, msgs, msgs[1].ID, "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestForceComplete(t *testing.T) {
	s := newSession()
	assert.True(t, progression.ForceComplete(s, t0))
	assert.Equal(t, domain.StatusCompleted, s.Status)
	assert.Equal(t, progression.InitialCursor, s.CurrentQuestion)
	assert.False(t, progression.ForceComplete(s, t0.Add(time.Hour)))
	assert.Equal(t, t0, *s.CompletedAt)
}

func TestNextTimestampIsStrictlyIncreasing(t *testing.T) {
	now := t0.Add(123 * time.Nanosecond)

	first := progression.NextTimestamp(time.Time{}, now)
	assert.Equal(t, t0, first)

	second := progression.NextTimestamp(first, now)
	assert.Equal(t, t0.Add(time.Microsecond), second)

	later := progression.NextTimestamp(second, t0.Add(time.Second))
	assert.Equal(t, t0.Add(time.Second), later)
}
