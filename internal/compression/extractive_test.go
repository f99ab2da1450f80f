package compression

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prose = "The scheduler assigns jobs to idle workers in the pool. " +
	"Workers report progress back to the scheduler every few seconds. " +
	"When a worker stops reporting the scheduler reassigns its jobs to another worker. " +
	"Logs are kept for a week."

func TestExtractiveRewriter_KeepsEverythingAtFullGranularity(t *testing.T) {
	rw := NewExtractiveRewriter()
	got, err := rw.Rewrite(context.Background(), prose, Params{Gamma: 1})
	require.NoError(t, err)
	assert.Equal(t, prose, got)
}

func TestExtractiveRewriter_CondensesInOrder(t *testing.T) {
	rw := NewExtractiveRewriter()
	got, err := rw.Rewrite(context.Background(), prose, Params{Gamma: 0})
	require.NoError(t, err)

	assert.Less(t, len(got), len(prose))
	assert.NotEmpty(t, got)

	sentences := splitSentences(prose)
	last := -1
	for _, s := range splitSentences(got) {
		idx := indexOf(sentences, s)
		require.GreaterOrEqual(t, idx, 0, "sentence %q not in original", s)
		assert.Greater(t, idx, last)
		last = idx
	}
}

func TestExtractiveRewriter_PassesStructureThrough(t *testing.T) {
	doc := strings.Join([]string{
		"# Scheduler",
		"",
		prose,
		"",
		"- first item stays",
		"1. numbered stays",
		"| a | b |",
		"> quoted stays",
		"```go",
		"func main() { fmt.Println(\"This sentence. Is code. Not prose.\") }",
		"```",
	}, "\n")

	got, err := NewExtractiveRewriter().Rewrite(context.Background(), doc, Params{Gamma: 0})
	require.NoError(t, err)

	lines := strings.Split(got, "\n")
	assert.Equal(t, "# Scheduler", lines[0])
	assert.Equal(t, "", lines[1])
	assert.Less(t, len(lines[2]), len(prose))
	assert.Equal(t, []string{
		"",
		"- first item stays",
		"1. numbered stays",
		"| a | b |",
		"> quoted stays",
		"```go",
		"func main() { fmt.Println(\"This sentence. Is code. Not prose.\") }",
		"```",
	}, lines[3:])
}

func TestExtractiveRewriter_SingleSentence(t *testing.T) {
	got, err := NewExtractiveRewriter().Rewrite(context.Background(), "Only one sentence here.", Params{})
	require.NoError(t, err)
	assert.Equal(t, "Only one sentence here.", got)
}

func TestExtractiveRewriter_Errors(t *testing.T) {
	rw := NewExtractiveRewriter()
	assert.Equal(t, ExtractiveName, rw.Name())

	_, err := rw.Rewrite(context.Background(), prose, Params{Sigma: -0.1})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rw.Rewrite(ctx, prose, DefaultParams())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"short fragments merge", "Hi there. Go on now. Done.", []string{"Hi there. Go on now.", "Done."}},
		{"trailing text", "First full sentence. trailing", []string{"First full sentence.", "trailing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitSentences(tt.in))
		})
	}
}

func indexOf(items []string, s string) int {
	for i, it := range items {
		if it == s {
			return i
		}
	}
	return -1
}
