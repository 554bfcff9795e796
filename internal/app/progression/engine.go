// Package progression decides how a stack moves between questions. It does
// no I/O: callers load the session, ask for a decision, then persist it.
package progression

import (
	"fmt"
	"strings"
	"time"

	"github.com/PabloGalante/stacks/internal/domain"
	"github.com/PabloGalante/stacks/internal/stacks"
)

// InitialCursor is where every new stack starts: the setup questions are
// answered by the creation form.
const InitialCursor = stacks.SetupQuestions

// Step is the outcome of answering the current question.
type Step struct {
	AnsweredIndex int
	NextIndex     int
	// Complete is set when the answer closed the flow and a summary is due.
	Complete bool
}

// QuestionNumber is the 1-based number of the next question, or nil when the
// step completes the stack.
func (st Step) QuestionNumber() *int {
	if st.Complete {
		return nil
	}
	n := st.NextIndex + 1
	return &n
}

// Advance decides what follows answer for s.
func Advance(s *domain.Session, flow stacks.Flow, answer string) (Step, error) {
	if s.IsCompleted() {
		return Step{}, fmt.Errorf("advance stack %s: %w", s.ID, domain.ErrSessionAlreadyCompleted)
	}
	if strings.TrimSpace(answer) == "" {
		return Step{}, fmt.Errorf("%w: answer must not be empty", domain.ErrInvalidInput)
	}

	next := s.CurrentQuestion + 1
	return Step{
		AnsweredIndex: s.CurrentQuestion,
		NextIndex:     next,
		Complete:      next >= flow.Total(),
	}, nil
}

// Apply records st on s. A completing step leaves the cursor on the last
// question.
func (st Step) Apply(s *domain.Session, now time.Time) {
	if st.Complete {
		s.Status = domain.StatusCompleted
		s.CompletedAt = &now
	} else {
		s.CurrentQuestion = st.NextIndex
	}
	s.UpdatedAt = now
}

// Rollback is the outcome of editing an earlier user answer.
type Rollback struct {
	Target  *domain.Message
	Kept    []*domain.Message
	Dropped []*domain.Message
	Cursor  int
	// Reopened is set when a completed stack goes back to in_progress.
	Reopened bool
}

// Edit decides how the transcript is truncated when target is rewritten.
// transcript must be the session's full message list in creation order.
func Edit(s *domain.Session, transcript []*domain.Message, targetID domain.MessageID, newText string) (Rollback, error) {
	var target *domain.Message
	for _, m := range transcript {
		if m.ID == targetID {
			target = m
			break
		}
	}
	if target == nil || target.SessionID != s.ID {
		return Rollback{}, fmt.Errorf("edit message %s: %w", targetID, domain.ErrMessageNotFound)
	}
	if target.Author != domain.RoleUser {
		return Rollback{}, fmt.Errorf("edit message %s: %w", targetID, domain.ErrInvalidRole)
	}
	if strings.TrimSpace(newText) == "" {
		return Rollback{}, fmt.Errorf("%w: content must not be empty", domain.ErrInvalidInput)
	}

	rb := Rollback{Target: target, Reopened: s.IsCompleted()}
	for _, m := range transcript {
		if m.CreatedAt.After(target.CreatedAt) {
			rb.Dropped = append(rb.Dropped, m)
		} else {
			rb.Kept = append(rb.Kept, m)
		}
	}

	// The opening assistant turn is not an answered question.
	rb.Cursor = max(0, domain.CountAssistant(rb.Kept)-1)

	return rb, nil
}

// Apply records rb on s.
func (rb Rollback) Apply(s *domain.Session, now time.Time) {
	s.CurrentQuestion = rb.Cursor
	if s.IsCompleted() {
		s.Status = domain.StatusInProgress
		s.CompletedAt = nil
	}
	s.UpdatedAt = now
}

// ForceComplete marks s completed regardless of its cursor. It reports
// false when s was already completed.
func ForceComplete(s *domain.Session, now time.Time) bool {
	if s.IsCompleted() {
		return false
	}
	s.Status = domain.StatusCompleted
	s.CompletedAt = &now
	s.UpdatedAt = now
	return true
}

// NextTimestamp returns a creation time for a new message that sorts
// strictly after last. Times are kept at microsecond precision, which every
// storage backend round-trips unchanged.
func NextTimestamp(last, now time.Time) time.Time {
	ts := now.UTC().Truncate(time.Microsecond)
	if !last.IsZero() && !ts.After(last) {
		ts = last.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return ts
}
