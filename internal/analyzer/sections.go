package analyzer

import (
	"regexp"
	"strings"
)

// introductionTitle names the implicit section holding text before the
// first header.
const introductionTitle = "Introduction"

// headerPattern matches H1-H3 only; "#### x" does not match, so deeper
// headers stay inside the enclosing section.
var headerPattern = regexp.MustCompile(`^(#{1,3})\s+(.+)$`)

type pendingSection struct {
	Section
	header string // raw header line, empty for the introduction
	body   strings.Builder
}

// Split breaks document into H1-H3 sections. A section whose trimmed content
// falls below Options.MinSectionTokens is dropped, or folded into the
// previous kept section when MergeShortSections is set.
func (a *Analyzer) Split(document string) []Section {
	if strings.TrimSpace(document) == "" {
		return nil
	}

	lines := strings.Split(document, "\n")
	var (
		kept []Section
		cur  *pendingSection
	)

	for i, line := range lines {
		lineNo := i + 1
		if m := headerPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			if cur != nil {
				cur.EndLine = lineNo - 1
				kept = a.finish(kept, cur)
			}
			cur = &pendingSection{
				Section: Section{
					Title:     strings.TrimSpace(m[2]),
					Level:     len(m[1]),
					StartLine: lineNo,
					EndLine:   lineNo,
				},
				header: line,
			}
			continue
		}

		switch {
		case cur != nil:
			cur.body.WriteString(line)
			cur.body.WriteByte('\n')
		case strings.TrimSpace(line) != "":
			cur = &pendingSection{
				Section: Section{
					Title:     introductionTitle,
					Level:     1,
					StartLine: lineNo,
					EndLine:   lineNo,
				},
			}
			cur.body.WriteString(line)
			cur.body.WriteByte('\n')
		}
	}

	if cur != nil {
		cur.EndLine = len(lines)
		kept = a.finish(kept, cur)
	}
	return kept
}

func (a *Analyzer) finish(kept []Section, p *pendingSection) []Section {
	p.Content = strings.TrimSpace(p.body.String())
	if a.sufficient(p.Content) {
		return append(kept, p.Section)
	}
	if !a.opts.MergeShortSections {
		return kept
	}
	if len(kept) == 0 {
		return append(kept, p.Section)
	}

	prev := &kept[len(kept)-1]
	extra := strings.TrimSpace(p.header + "\n" + p.Content)
	if extra != "" {
		prev.Content = strings.TrimSpace(prev.Content + "\n\n" + extra)
	}
	prev.EndLine = p.EndLine
	return kept
}

// sufficient reports whether content reaches the token floor. A tokenizer
// failure falls back to a word count.
func (a *Analyzer) sufficient(content string) bool {
	if content == "" {
		return false
	}
	n, err := a.counter.Count(content)
	if err != nil {
		n = len(strings.Fields(content))
	}
	return n >= a.opts.MinSectionTokens
}
