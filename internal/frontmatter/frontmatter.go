// Package frontmatter reads and writes the YAML header block at the top of
// a markdown document and checks it against the header conventions.
package frontmatter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const delimiter = "---"

// ErrInvalidHeader is returned when the header block is not a YAML mapping.
var ErrInvalidHeader = errors.New("invalid frontmatter")

// Block is a split document.
type Block struct {
	Raw  string // YAML between the delimiters
	Body string // lines after the closing delimiter
}

// Split separates the frontmatter from the body. The content must start
// with "---"; the block closes at the first later line that trims to "---".
// ok is false when there is no complete block.
func Split(content string) (Block, bool) {
	if !strings.HasPrefix(content, delimiter) {
		return Block{}, false
	}
	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == delimiter {
			return Block{
				Raw:  strings.Join(lines[1:i], "\n"),
				Body: strings.Join(lines[i+1:], "\n"),
			}, true
		}
	}
	return Block{}, false
}

// Body returns the document without its frontmatter, or content unchanged
// when there is no complete block.
func Body(content string) string {
	if b, ok := Split(content); ok {
		return b.Body
	}
	return content
}

// Parse decodes a raw header. Sequences and scalars at the top level are
// rejected; an empty block decodes to an empty map.
func Parse(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider([]byte(raw)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	meta := k.Raw()
	if meta == nil {
		meta = map[string]any{}
	}
	return meta, nil
}

// Read splits and parses content in one step.
func Read(content string) (map[string]any, string, error) {
	b, ok := Split(content)
	if !ok {
		return nil, content, fmt.Errorf("%w: no frontmatter block", ErrInvalidHeader)
	}
	meta, err := Parse(b.Raw)
	if err != nil {
		return nil, b.Body, err
	}
	return meta, b.Body, nil
}

// Render writes meta back as a frontmatter block followed by body.
func Render(meta map[string]any, body string) (string, error) {
	out, err := yaml.Parser().Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal frontmatter: %w", err)
	}
	var sb strings.Builder
	sb.Grow(len(out) + len(body) + 8)
	sb.WriteString(delimiter + "\n")
	sb.Write(out)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		sb.WriteByte('\n')
	}
	sb.WriteString(delimiter + "\n")
	sb.WriteString(body)
	return sb.String(), nil
}

// Section returns meta[key] when it is a mapping.
func Section(meta map[string]any, key string) (map[string]any, bool) {
	m, ok := meta[key].(map[string]any)
	return m, ok
}

// BaselineTokens returns compression.baseline_tokens when it is a positive
// integer. Booleans, floats and strings are rejected.
func BaselineTokens(meta map[string]any) (int, bool) {
	comp, ok := Section(meta, "compression")
	if !ok {
		return 0, false
	}
	n, ok := asInt(comp["baseline_tokens"])
	if !ok || n <= 0 {
		return 0, false
	}
	return n, true
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int, int64, uint64:
		i, _ := asInt(n)
		return float64(i), true
	default:
		return 0, false
	}
}
