package entities

import (
	"context"
	"fmt"
	"runtime"

	"github.com/jdkato/prose/v2"
	"golang.org/x/sync/semaphore"
)

// ProseRecognizer runs the prose v2 named-entity model.
//
// The model cannot be interrupted. When ctx expires Recognize returns, but
// the parse keeps running in the background until it finishes. Such a
// parse still holds its slot, so at most MaxInFlight parses run at once
// however many callers time out.
type ProseRecognizer struct {
	slots *semaphore.Weighted
	run   func(text string) ([]string, error)
}

// ProseOption configures a ProseRecognizer.
type ProseOption func(*ProseRecognizer)

// WithMaxInFlight bounds concurrent model runs (default GOMAXPROCS).
func WithMaxInFlight(n int) ProseOption {
	return func(p *ProseRecognizer) {
		if n > 0 {
			p.slots = semaphore.NewWeighted(int64(n))
		}
	}
}

func NewProseRecognizer(opts ...ProseOption) *ProseRecognizer {
	p := &ProseRecognizer{
		slots: semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
		run:   proseEntities,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func proseEntities(text string) ([]string, error) {
	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	ents := doc.Entities()
	spans := make([]string, 0, len(ents))
	for _, ent := range ents {
		spans = append(spans, ent.Text)
	}
	return spans, nil
}

type proseResult struct {
	spans []string
	err   error
}

// Recognize implements Recognizer. It waits for a free slot, then for the
// model, and gives up on either when ctx expires.
func (p *ProseRecognizer) Recognize(ctx context.Context, text string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	done := make(chan proseResult, 1)
	go func() {
		defer p.slots.Release(1)
		spans, err := p.run(text)
		done <- proseResult{spans: spans, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.spans, r.err
	}
}
