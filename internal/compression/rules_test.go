package compression

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRules_Groups(t *testing.T) {
	rs := DefaultRules()
	assert.Equal(t, []string{"headers", "abbreviations", "symbols", "fragments", "tables", "scaffolding"}, rs.Groups())
}

func TestRuleSet_ApplyGroup(t *testing.T) {
	rs := DefaultRules()

	tests := []struct {
		group string
		in    string
		want  string
	}{
		{"headers", "**Source**: 1332 lines", "**Src**: 1332L"},
		{"headers", "**example**: 40 tokens", "**Ex**: 40T"},
		{"abbreviations", "Authentication with configuration", "Auth w/ config"},
		{"abbreviations", "Chain-of-Thought without documentation", "CoT w/o doc"},
		{"symbols", "tests passed", "tests ✓"},
		{"symbols", "latency increases", "latency ↑"},
		{"symbols", "greater than or equal to 5", "≥ 5"},
		{"symbols", "move to disk", "move →disk"},
		{"fragments", "In order to scale, the system is capable of sharding.", "scale, the system can sharding."},
		{"tables", "| Effectiveness | Reliability |", "| E | R |"},
		{"scaffolding", "In summary, it works.\nMoreover, it scales.", "it works.\nit scales."},
	}

	for _, tt := range tests {
		t.Run(tt.group+"/"+tt.in, func(t *testing.T) {
			got, err := rs.Apply(tt.in, tt.group)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRuleSet_ApplyUnknownGroup(t *testing.T) {
	_, err := DefaultRules().Apply("text", "nope")
	assert.ErrorIs(t, err, ErrUnknownRewriter)
}

func TestRuleSet_SacredSpans(t *testing.T) {
	rs := DefaultRules()
	longQuote := `"this prompt talks with the model and keeps going well past fifty characters"`

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "fenced code",
			in:   "Use it with care.\n```\nconfiguration with defaults\n```",
			want: "Use it w/ care.\n```\nconfiguration with defaults\n```",
		},
		{
			name: "inline code",
			in:   "call `with_retry` with a timeout",
			want: "call `with_retry` w/ a timeout",
		},
		{
			name: "triple quotes",
			in:   "\"\"\"prompt with configuration\"\"\" with extras",
			want: "\"\"\"prompt with configuration\"\"\" w/ extras",
		},
		{
			name: "long quoted string",
			in:   longQuote + " with care",
			want: longQuote + " w/ care",
		},
		{
			name: "nested spans",
			in:   "\"a quoted prompt that mentions `with_config` and keeps going with more words\" with care",
			want: "\"a quoted prompt that mentions `with_config` and keeps going with more words\" w/ care",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rs.Apply(tt.in, "abbreviations")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, sacredOpen)
		})
	}
}

func TestRuleSet_ApplyAll(t *testing.T) {
	got, err := DefaultRules().Apply("**Documentation**: the authentication tests passed with 40 tokens")
	require.NoError(t, err)
	assert.Equal(t, "**Doc**: the auth tests ✓ w/ 40T", got)
}

func TestParseRules_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		msg  string
	}{
		{"bad toml", "[[group]\nname=", ""},
		{"no groups", "", "no groups"},
		{"unnamed group", "[[group]]\n[[group.rule]]\npattern='a'\nreplace='b'\n", "has no name"},
		{"reserved name", "[[group]]\nname='mock'\n", "reserved"},
		{"duplicate", "[[group]]\nname='a'\n[[group]]\nname='a'\n", "duplicate"},
		{"bad regex", "[[group]]\nname='a'\n[[group.rule]]\npattern='('\nreplace=''\n", "a rule 0"},
		{"unknown key", "[[group]]\nname='a'\nweight=3\n", "unknown keys"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.data))
			require.ErrorIs(t, err, ErrInvalidRules)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestLoadRulesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.toml")
	data := "[[group]]\nname = 'shout'\nignore_case = true\n\n  [[group.rule]]\n  pattern = 'hello'\n  replace = 'HI'\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	rs, err := LoadRulesFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"shout"}, rs.Groups())

	got, err := rs.Apply("Hello there")
	require.NoError(t, err)
	assert.Equal(t, "HI there", got)

	_, err = LoadRulesFile(filepath.Join(dir, "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRuleRewriter(t *testing.T) {
	rr := NewRuleRewriter(DefaultRules())
	assert.Equal(t, RulesName, rr.Name())

	sym := rr.Group("symbols")
	assert.Equal(t, "symbols", sym.Name())

	got, err := sym.Rewrite(context.Background(), "build passed with warning", DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, "build ✓ with ⚠", got)

	_, err = rr.Rewrite(context.Background(), "text", Params{Kappa: 2})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rr.Rewrite(ctx, "text", DefaultParams())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultRegistry(t *testing.T) {
	rs := DefaultRules()
	reg := DefaultRegistry(rs)

	names := reg.Names()
	for _, want := range append([]string{MockName, ExtractiveName, RulesName}, rs.Groups()...) {
		assert.Contains(t, names, want)
	}
	assert.IsIncreasing(t, names)

	rw, err := reg.Get("tables")
	require.NoError(t, err)
	assert.Equal(t, "tables", rw.Name())

	_, err = reg.Get("llm")
	assert.ErrorIs(t, err, ErrUnknownRewriter)
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.Names())

	echo := func(out string) RewriterFunc {
		return RewriterFunc{ID: "echo", Fn: func(context.Context, string, Params) (string, error) {
			return out, nil
		}}
	}
	reg.Register(echo("first"))
	reg.Register(echo("second"))

	rw, err := reg.Get("echo")
	require.NoError(t, err)
	got, err := rw.Rewrite(context.Background(), "x", DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, "second", got)
	assert.Equal(t, []string{"echo"}, reg.Names())
}
