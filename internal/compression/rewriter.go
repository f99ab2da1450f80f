package compression

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Dudley70/compression-framework/internal/safety"
)

// ErrUnknownRewriter is returned when a rewriter name is not registered.
var ErrUnknownRewriter = errors.New("unknown rewriter")

// Params are the σ/γ/κ style parameters, each in [0, 1].
type Params = safety.Parameters

// DefaultParams is a moderately aggressive style.
func DefaultParams() Params {
	return Params{Sigma: 0.7, Gamma: 0.4, Kappa: 0.3}
}

// Rewriter produces a compressed candidate for text. Implementations must
// be safe for concurrent use.
type Rewriter interface {
	Name() string
	Rewrite(ctx context.Context, text string, p Params) (string, error)
}

// RewriterFunc adapts a function to Rewriter.
type RewriterFunc struct {
	ID string
	Fn func(ctx context.Context, text string, p Params) (string, error)
}

// Name implements Rewriter.
func (f RewriterFunc) Name() string { return f.ID }

// Rewrite implements Rewriter.
func (f RewriterFunc) Rewrite(ctx context.Context, text string, p Params) (string, error) {
	return f.Fn(ctx, text, p)
}

// Registry maps rewriter names to implementations.
type Registry struct {
	mu        sync.RWMutex
	rewriters map[string]Rewriter
}

// NewRegistry returns a registry holding rs.
func NewRegistry(rs ...Rewriter) *Registry {
	r := &Registry{rewriters: make(map[string]Rewriter, len(rs))}
	for _, rw := range rs {
		r.Register(rw)
	}
	return r
}

// Register adds or replaces rw under its name.
func (r *Registry) Register(rw Rewriter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rewriters[rw.Name()] = rw
}

// Get looks up a rewriter by name.
func (r *Registry) Get(name string) (Rewriter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rw, ok := r.rewriters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRewriter, name)
	}
	return rw, nil
}

// Names returns registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.rewriters))
	for n := range r.rewriters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry registers the mock, extractive and rule rewriters plus
// one rewriter per rule group.
func DefaultRegistry(rules *RuleSet) *Registry {
	reg := NewRegistry(MockRewriter{}, NewExtractiveRewriter())
	rr := NewRuleRewriter(rules)
	reg.Register(rr)
	for _, g := range rules.Groups() {
		reg.Register(rr.Group(g))
	}
	return reg
}
