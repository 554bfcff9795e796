package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PabloGalante/stacks/internal/domain"
)

// MockLLM answers deterministically from the prompt. Used locally and in tests.
type MockLLM struct{}

var _ domain.LLMClient = (*MockLLM)(nil)

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

func (m *MockLLM) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if req.JSON {
		return fmt.Sprintf(
			`{"summary":%q,"themes":["reflection"],"patterns":[],"suggestions":["Keep writing a little every day."]}`,
			fmt.Sprintf("Looked at %d earlier turns.", len(req.History)),
		), nil
	}

	// The responder puts the next question on the last line of the prompt.
	lines := strings.Split(strings.TrimSpace(req.Prompt), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if q, ok := strings.CutPrefix(last, "Next question: "); ok {
		return "Thank you for sharing that.\n\n" + q, nil
	}

	return fmt.Sprintf("Here is what I heard across your %d answers. %s",
		countUser(req.History)+1, preview(last, 80)), nil
}

func countUser(msgs []*domain.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Author == domain.RoleUser {
			n++
		}
	}
	return n
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
