package stacks_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/stacks/internal/domain"
	"github.com/PabloGalante/stacks/internal/stacks"
)

func TestDefaultCatalogTypes(t *testing.T) {
	c := stacks.Default()

	assert.Equal(t, []domain.StackType{
		domain.StackAnger,
		domain.StackFear,
		domain.StackGratitude,
		domain.StackIdea,
		domain.StackSuffering,
	}, c.Types())

	for _, st := range c.Types() {
		f, ok := c.Lookup(st)
		require.True(t, ok, st)
		assert.Greater(t, f.Total(), stacks.SetupQuestions, st)
		assert.NotEmpty(t, f.Name, st)
	}
}

func TestGratitudeHasFifteenQuestions(t *testing.T) {
	f, ok := stacks.Default().Lookup(domain.StackGratitude)
	require.True(t, ok)
	assert.Equal(t, 15, f.Total())
}

func TestQuestionSubstitutesSubject(t *testing.T) {
	f, _ := stacks.Default().Lookup(domain.StackGratitude)

	q, err := f.Question(3, "my sister")
	require.NoError(t, err)
	assert.Equal(t, "What is it about my sister that you are grateful for right now?", q)

	tmpl, ok := f.Template(3)
	require.True(t, ok)
	assert.Contains(t, tmpl, "{subject}")
}

func TestQuestionOutOfRange(t *testing.T) {
	f, _ := stacks.Default().Lookup(domain.StackGratitude)

	_, err := f.Question(f.Total(), "x")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = f.Question(-1, "x")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestParseStackType(t *testing.T) {
	c := stacks.Default()

	st, err := c.ParseStackType("  Gratitude ")
	require.NoError(t, err)
	assert.Equal(t, domain.StackGratitude, st)

	_, err = c.ParseStackType("joy")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestParseRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"no placeholder": "setup: [a, b, c]\ntypes:\n  x:\n    questions: [q]\n",
		"short setup":    "placeholder: \"{s}\"\nsetup: [a]\ntypes:\n  x:\n    questions: [q]\n",
		"no types":       "placeholder: \"{s}\"\nsetup: [a, b, c]\n",
		"empty type":     "placeholder: \"{s}\"\nsetup: [a, b, c]\ntypes:\n  x:\n    name: X\n",
		"not yaml":       "placeholder: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := stacks.Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}
