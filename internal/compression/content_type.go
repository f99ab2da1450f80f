package compression

import (
	"regexp"
	"strings"
)

// ContentType is the dominant shape of a document. It decides which
// rewriter "auto" resolves to.
type ContentType string

const (
	ContentTypeCode         ContentType = "code"
	ContentTypeMarkdown     ContentType = "markdown"
	ContentTypeConversation ContentType = "conversation"
	ContentTypeMixed        ContentType = "mixed"
	ContentTypePlain        ContentType = "plain"
)

// Any one of these marks text as markdown.
var markdownPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^#{1,6}\s+.+$`), // heading
	regexp.MustCompile(`(?m)^\s*[-*+]\s+`),  // bullet
	regexp.MustCompile(`(?m)^\s*\d+\.\s+`),  // numbered item
	regexp.MustCompile(`\[.+\]\(.+\)`),      // link
}

var (
	emphasis     = regexp.MustCompile(`(\*\*|__|_|\*)`)
	fence        = regexp.MustCompile("```[a-z]*\n")
	codeKeyword  = regexp.MustCompile(`\b(func|function|def|class|interface|struct|impl)\b`)
	punctuation  = regexp.MustCompile(`[{};]`)
	indentedLine = regexp.MustCompile(`(?m)^    \S`)
	speakerTurn  = regexp.MustCompile(`(?m)^(Human|Assistant|User|Bot|AI):\s+`)
)

// punctuationDensity is the share of {}; characters above which text
// reads as code even without keywords.
const punctuationDensity = 0.03

// DetectContentType classifies text. Code inside markdown is mixed;
// dialogue needs at least two speaker turns.
func DetectContentType(text string) ContentType {
	if strings.TrimSpace(text) == "" {
		return ContentTypePlain
	}
	md, code := isMarkdown(text), isCode(text)
	switch {
	case md && code:
		return ContentTypeMixed
	case code:
		return ContentTypeCode
	case md:
		return ContentTypeMarkdown
	case count(speakerTurn, text) >= 2:
		return ContentTypeConversation
	default:
		return ContentTypePlain
	}
}

func isMarkdown(text string) bool {
	for _, re := range markdownPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return count(emphasis, text) >= 2
}

func isCode(text string) bool {
	switch {
	case fence.MatchString(text):
		return true
	case codeKeyword.MatchString(text) && punctuation.MatchString(text):
		return true
	case count(indentedLine, text) >= 3:
		return true
	}
	return float64(count(punctuation, text))/float64(len(text)) > punctuationDensity
}

func count(re *regexp.Regexp, text string) int { return len(re.FindAllStringIndex(text, -1)) }

// AutoRewriter names the rewriter "auto" resolves to. Prose and dialogue
// go to sentence selection; structured text and code go to the rule
// tables, which leave code untouched.
func AutoRewriter(text string) string {
	switch DetectContentType(text) {
	case ContentTypePlain, ContentTypeConversation:
		return ExtractiveName
	default:
		return RulesName
	}
}
