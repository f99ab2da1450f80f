package entities

import "regexp"

var simplePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Z][a-z]+(?:[A-Z][a-z]*)*\b`),
	regexp.MustCompile(`\b[A-Z]{2,}\b`),
	regexp.MustCompile(`/[a-zA-Z][a-zA-Z0-9_/]*`),
	regexp.MustCompile(`\b[a-z]+(?:_[a-z]+)+\b`),
	regexp.MustCompile(`\b[a-z]+(?:[A-Z][a-z]*)+\b`),
	regexp.MustCompile(`\b[a-zA-Z_][a-zA-Z0-9_]*\(\)`),
	regexp.MustCompile(`\b[A-Z][a-zA-Z]*(?:Table|Model|Schema|DB)\b`),
}

var backtickIdentifier = regexp.MustCompile("`([a-zA-Z_][a-zA-Z0-9_\\.]*)`")

// SimpleExtract returns case-preserving identifiers found by pattern alone:
// capitalized words, acronyms, paths, snake_case, camelCase, calls, model
// names and backtick-quoted identifiers. It needs no NER model.
func SimpleExtract(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, re := range simplePatterns {
		for _, m := range re.FindAllString(text, -1) {
			out[m] = struct{}{}
		}
	}
	for _, m := range backtickIdentifier.FindAllStringSubmatch(text, -1) {
		out[m[1]] = struct{}{}
	}
	return out
}
