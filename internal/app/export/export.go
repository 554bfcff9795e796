// Package export renders a stack as a plain-text document.
package export

import (
	"fmt"
	"strings"

	"github.com/PabloGalante/stacks/internal/domain"
	"github.com/PabloGalante/stacks/internal/stacks"
)

const (
	rule     = "========================================"
	thinRule = "----------------------------------------"
	footer   = "End of stack - exported from Stacks"

	dateLayout = "January 2, 2006"
)

// Render writes the header, every question with its answer, the closing
// summary if there is one, and the footer. The output depends only on its
// inputs.
func Render(s *domain.Session, flow stacks.Flow, transcript []*domain.Message) string {
	var b strings.Builder

	fmt.Fprintf(&b, "STACK: %s\n", s.Title)
	fmt.Fprintf(&b, "Type: %s\n", displayName(flow, s.StackType))
	fmt.Fprintf(&b, "Domain: %s\n", s.Domain)
	fmt.Fprintf(&b, "Subject: %s\n", s.Subject)
	fmt.Fprintf(&b, "Date: %s\n", s.CreatedAt.UTC().Format(dateLayout))
	fmt.Fprintf(&b, "Status: %s\n", s.Status)
	b.WriteString(rule + "\n\n")

	// The setup form answers the first questions.
	setup := []string{s.Title, string(s.Domain), s.Subject}
	for i, answer := range setup {
		q, _ := flow.Question(i, s.Subject)
		writeQuestion(&b, i+1, q, "")
		writeAnswer(&b, answer)
	}

	var summary []string
	for _, m := range transcript {
		switch {
		case m.Author == domain.RoleUser:
			writeAnswer(&b, m.Text)
		case m.QuestionNumber != nil:
			n := *m.QuestionNumber
			q, err := flow.Question(n-1, s.Subject)
			if err != nil {
				q = ""
			}
			writeQuestion(&b, n, q, m.Text)
		default:
			summary = append(summary, m.Text)
		}
	}

	if len(summary) > 0 {
		b.WriteString(thinRule + "\n")
		b.WriteString("SUMMARY\n")
		b.WriteString(strings.Join(summary, "\n\n"))
		b.WriteString("\n\n")
	}

	b.WriteString(rule + "\n")
	b.WriteString(footer + "\n")
	return b.String()
}

func writeQuestion(b *strings.Builder, n int, question, assistant string) {
	fmt.Fprintf(b, "Q%d. %s\n", n, question)
	// The opening turn is the bare question.
	if assistant = strings.TrimSpace(assistant); assistant != "" && assistant != question {
		b.WriteString(assistant + "\n")
	}
	b.WriteString("\n")
}

func writeAnswer(b *strings.Builder, answer string) {
	fmt.Fprintf(b, "A: %s\n\n", answer)
}

func displayName(flow stacks.Flow, t domain.StackType) string {
	if flow.Name != "" {
		return flow.Name
	}
	return string(t)
}

// Filename is the attachment name used for downloads.
func Filename(s *domain.Session) string {
	return fmt.Sprintf("stack-%s-%s.txt", s.StackType, s.CreatedAt.UTC().Format("2006-01-02"))
}
