package insights

import (
	"encoding/json"
	"fmt"
	"strings"
)

const insightSystemPrompt = `
You read excerpts from someone's guided journaling and reflect patterns back to them.
You are not a therapist and you do not diagnose.
Answer ONLY with a JSON object of this shape:
{"summary": "...", "themes": ["..."], "patterns": ["..."], "suggestions": ["..."]}
Keep every list to at most five short entries. Use the language of the excerpts.
`

func insightPrompt(topic string, texts []string) string {
	var b strings.Builder
	if topic != "" {
		fmt.Fprintf(&b, "Topic: %s\n\n", topic)
	}
	b.WriteString("Excerpts:\n")
	for i, t := range texts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.TrimSpace(t))
	}
	return b.String()
}

// Report is the structured part of an insight answer.
type Report struct {
	Summary     string
	Themes      []string
	Patterns    []string
	Suggestions []string
}

// ParseReport reads the model's answer. Code fences and prose around the
// object are ignored, non-string list entries are skipped, and text that is
// not JSON at all becomes the summary.
func ParseReport(raw string) Report {
	body := stripFences(raw)
	if i, j := strings.Index(body, "{"), strings.LastIndex(body, "}"); i >= 0 && j > i {
		body = body[i : j+1]
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return Report{Summary: strings.TrimSpace(raw)}
	}

	return Report{
		Summary:     strings.TrimSpace(getString(m, "summary")),
		Themes:      getStrings(m, "themes"),
		Patterns:    getStrings(m, "patterns"),
		Suggestions: getStrings(m, "suggestions"),
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the info string ("json")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// --- internal helpers --- //

func getString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getStrings(m map[string]any, key string) []string {
	list, ok := m[key].([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
