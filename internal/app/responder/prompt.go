package responder

import (
	"fmt"
	"strings"

	"github.com/PabloGalante/stacks/internal/domain"
)

const baseSystemPrompt = `
You are the guide inside "Stacks", a journaling companion that walks the user through a structured reflection ("stack") one question at a time.

Your role:
- You listen with empathy and without judgment.
- You help the user notice what they feel and what they learned.
- You are NOT a therapist, doctor, or emergency service and you do NOT give medical or psychiatric diagnoses.

General style guidelines:
- Answer in the SAME LANGUAGE as the user.
- Use simple, everyday language, not technical jargon.
- Never invent details the user did not share.

Boundaries and safety:
- If the user mentions self-harm, suicide, or that they might hurt someone, encourage them to seek immediate help from local emergency services or a trusted person.
- Make it clear you cannot replace professional mental health care, especially in crisis situations.
`

const acknowledgeInstructions = `
Task: acknowledge and continue

Focus:
- One or two warm sentences reflecting the user's latest answer back to them.
- Then ask the next question EXACTLY as written below, on its own line, without changing a word.
- Do not ask any other question.
`

const summaryInstructions = `
Task: closing summary

Focus:
- The stack is finished. Write a long-form synthesis of everything the user answered.
- Name the main feelings, the insights they reached and any commitments they made.
- Close with one encouraging sentence. Do not ask further questions.
`

// Prompt is the system prompt plus the content sent as the final user turn.
type Prompt struct {
	System string
	User   string
}

func buildPrompt(in Input) Prompt {
	var system strings.Builder
	system.WriteString(baseSystemPrompt)
	fmt.Fprintf(&system, "\nStack: %s", in.StackName)
	if in.Description != "" {
		fmt.Fprintf(&system, " (%s)", in.Description)
	}
	fmt.Fprintf(&system, "\nSubject: %s\n", in.Subject)

	var user strings.Builder
	if in.Final {
		system.WriteString(summaryInstructions)
		user.WriteString("Final answer:\n")
		user.WriteString(in.Answer)
		user.WriteString("\n\nWrite the summary now.")
	} else {
		system.WriteString(acknowledgeInstructions)
		fmt.Fprintf(&user, "Answer to question %d:\n", in.Cursor+1)
		user.WriteString(in.Answer)
		user.WriteString("\n\nNext question: ")
		user.WriteString(oneLine(in.NextQuestion))
	}

	return Prompt{System: system.String(), User: user.String()}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func purpose(final bool) string {
	if final {
		return "summary"
	}
	return "acknowledge"
}

// historyFor skips blank turns, which the model API rejects.
func historyFor(msgs []*domain.Message) []*domain.Message {
	out := make([]*domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}
