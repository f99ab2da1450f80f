// Package entities extracts named entities and technical identifiers from text.
//
// An Extractor unions the spans reported by a named-entity Recognizer with
// matches of a fixed set of technical identifier patterns (API paths,
// snake_case, camelCase, acronyms, file extensions, environment variables and
// URLs). All entities are normalized to NFKC lower case so sets taken from an
// original and a rewritten text can be compared directly.
package entities

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrNoRecognizer is returned by NewExtractor when no recognizer is supplied.
	ErrNoRecognizer = errors.New("entity recognizer is required")

	// ErrRecognitionFailed wraps recognizer failures and timeouts.
	ErrRecognitionFailed = errors.New("entity recognition failed")
)

const defaultTimeout = 10 * time.Second

var technicalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/[\w/\-]+`),                // API paths
	regexp.MustCompile(`\b[a-z]+_[a-z_]+\b`),       // snake_case
	regexp.MustCompile(`\b[a-z]+[A-Z][a-zA-Z]+\b`), // camelCase
	regexp.MustCompile(`\b[A-Z]{2,5}\b`),           // acronyms
	regexp.MustCompile(`\.[a-z]{2,4}\b`),           // file extensions
	regexp.MustCompile(`\b[A-Z][A-Z_]{2,}\b`),      // ENV_VARS
	regexp.MustCompile(`https?://[\w\.-]+`),        // URLs
}

// Recognizer reports named-entity spans in text.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]string, error)
}

// Set is a set of normalized entity strings.
type Set map[string]struct{}

// NewSet builds a set from already-normalized values.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Add normalizes v and inserts it. Blank values are ignored.
func (s Set) Add(v string) {
	if n := Normalize(v); n != "" {
		s[n] = struct{}{}
	}
}

// Has reports whether v is in the set.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Intersect returns the values present in both sets.
func (s Set) Intersect(other Set) Set {
	out := make(Set)
	for v := range s {
		if other.Has(v) {
			out[v] = struct{}{}
		}
	}
	return out
}

// Difference returns the values of s missing from other.
func (s Set) Difference(other Set) Set {
	out := make(Set)
	for v := range s {
		if !other.Has(v) {
			out[v] = struct{}{}
		}
	}
	return out
}

// Sorted returns the values in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Normalize lower-cases v and applies NFKC normalization.
func Normalize(v string) string {
	return norm.NFKC.String(strings.ToLower(strings.TrimSpace(v)))
}

// Technical returns the technical identifiers found in text, normalized.
// Patterns run on the original casing; results are lower-cased afterwards.
func Technical(text string) Set {
	out := make(Set)
	for _, re := range technicalPatterns {
		for _, m := range re.FindAllString(text, -1) {
			out.Add(m)
		}
	}
	return out
}

// Extractor combines NER output with technical identifier matching.
type Extractor struct {
	recognizer Recognizer
	timeout    time.Duration
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithTimeout bounds each recognizer call.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewExtractor creates an extractor backed by recognizer.
func NewExtractor(recognizer Recognizer, opts ...Option) (*Extractor, error) {
	if recognizer == nil {
		return nil, ErrNoRecognizer
	}
	e := &Extractor{recognizer: recognizer, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Extract returns the normalized entity set of text.
func (e *Extractor) Extract(ctx context.Context, text string) (Set, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	spans, err := e.recognizer.Recognize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecognitionFailed, err)
	}

	out := Technical(text)
	for _, span := range spans {
		out.Add(span)
	}
	return out, nil
}
