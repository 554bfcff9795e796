package export_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/PabloGalante/stacks/internal/app/export"
	"github.com/PabloGalante/stacks/internal/domain"
	"github.com/PabloGalante/stacks/internal/stacks"
)

func intPtr(n int) *int { return &n }

func TestRenderCompletedStack(t *testing.T) {
	created := time.Date(2026, 3, 7, 22, 30, 0, 0, time.UTC)
	s := &domain.Session{
		ID:        "s1",
		UserID:    "u1",
		CreatedAt: created,
		Title:     "Thankful",
		StackType: domain.StackGratitude,
		Domain:    domain.DomainRelationships,
		Subject:   "my sister",
		Status:    domain.StatusCompleted,
	}
	flow, ok := stacks.Default().Lookup(domain.StackGratitude)
	if !ok {
		t.Fatal("gratitude flow missing")
	}
	q4, _ := flow.Question(3, "my sister")
	q5, _ := flow.Question(4, "my sister")

	at := func(m int) time.Time { return created.Add(time.Duration(m) * time.Minute) }
	transcript := []*domain.Message{
		{ID: "m1", Author: domain.RoleAssistant, Text: q4, QuestionNumber: intPtr(4), CreatedAt: at(0)},
		{ID: "m2", Author: domain.RoleUser, Text: "She listens.", CreatedAt: at(1)},
		{ID: "m3", Author: domain.RoleAssistant, Text: "Thank you.\n\n" + q5, QuestionNumber: intPtr(5), CreatedAt: at(2)},
		{ID: "m4", Author: domain.RoleUser, Text: "Patience, humour.", CreatedAt: at(3)},
		{ID: "m5", Author: domain.RoleAssistant, Text: "You found a lot to be grateful for.", CreatedAt: at(4)},
	}

	want := `STACK: Thankful
Type: Gratitude Stack
Domain: relationships
Subject: my sister
Date: March 7, 2026
Status: completed
========================================

Q1. What are you going to title this stack?

A: Thankful

Q2. Which domain of your life are you stacking?

A: relationships

Q3. Who or what are you stacking?

A: my sister

Q4. ` + q4 + `

A: She listens.

Q5. ` + q5 + `
Thank you.

` + q5 + `

A: Patience, humour.

----------------------------------------
SUMMARY
You found a lot to be grateful for.

========================================
End of stack - exported from Stacks
`

	got := export.Render(s, flow, transcript)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Render mismatch (-want +got):\n%s", diff)
	}

	if again := export.Render(s, flow, transcript); again != got {
		t.Errorf("Render is not stable across calls")
	}
}

func TestRenderInProgressHasNoSummary(t *testing.T) {
	s := &domain.Session{
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Title:     "t",
		StackType: domain.StackFear,
		Domain:    domain.DomainWork,
		Subject:   "the review",
		Status:    domain.StatusInProgress,
	}
	flow, _ := stacks.Default().Lookup(domain.StackFear)

	got := export.Render(s, flow, nil)
	if cmp.Equal(got, "") {
		t.Fatal("empty export")
	}
	for _, unwanted := range []string{"SUMMARY", "{subject}"} {
		if strings.Contains(got, unwanted) {
			t.Errorf("export contains %q:\n%s", unwanted, got)
		}
	}
	if !strings.Contains(got, "Status: in_progress\n") {
		t.Errorf("missing status line:\n%s", got)
	}
}

func TestFilename(t *testing.T) {
	s := &domain.Session{StackType: domain.StackAnger, CreatedAt: time.Date(2026, 2, 3, 23, 0, 0, 0, time.UTC)}
	if got, want := export.Filename(s), "stack-anger-2026-02-03.txt"; got != want {
		t.Errorf("Filename = %q, want %q", got, want)
	}
}
