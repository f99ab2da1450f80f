package mcp

import (
	"sort"
	"strings"
	"sync"
)

// ToolCategory groups tools by the operation they expose.
type ToolCategory string

const (
	CategoryScoring     ToolCategory = "scoring"
	CategorySafety      ToolCategory = "safety"
	CategoryAnalysis    ToolCategory = "analysis"
	CategoryDrift       ToolCategory = "drift"
	CategoryCompression ToolCategory = "compression"
	CategoryHeader      ToolCategory = "header"
)

// ToolMetadata describes a registered MCP tool.
type ToolMetadata struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    ToolCategory `json:"category"`
	Keywords    []string     `json:"keywords,omitempty"`
}

// builtinTools are the tools every server registers.
var builtinTools = []*ToolMetadata{
	{
		Name:        "score_text",
		Description: "Score how compressed text already is (0 verbose, 1 dense). Pass text, or texts for a batch.",
		Category:    CategoryScoring,
		Keywords:    []string{"density", "verbosity", "entropy"},
	},
	{
		Name:        "validate_compression",
		Description: "Check whether a compressed text may safely replace its original: pre-check, entity preservation, minimal benefit and semantic similarity.",
		Category:    CategorySafety,
		Keywords:    []string{"safety", "entities", "similarity", "verdict"},
	},
	{
		Name:        "analyze_document",
		Description: "Split a markdown document into sections and classify each as verbose, mixed or compressed.",
		Category:    CategoryAnalysis,
		Keywords:    []string{"sections", "markdown", "state"},
	},
	{
		Name:        "check_drift",
		Description: "Compare a document's current token count against the baseline recorded in its header.",
		Category:    CategoryDrift,
		Keywords:    []string{"tokens", "baseline", "growth"},
	},
	{
		Name:        "compress_text",
		Description: "Rewrite text with a named rewriter and gate the candidate through the safety validator.",
		Category:    CategoryCompression,
		Keywords:    []string{"rewrite", "rules", "extractive"},
	},
	{
		Name:        "validate_header",
		Description: "Check a document's YAML frontmatter against the header conventions.",
		Category:    CategoryHeader,
		Keywords:    []string{"frontmatter", "yaml", "metadata"},
	},
}

// ToolRegistry holds metadata for registered tools.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*ToolMetadata
}

// RegisterBuiltinTools adds the metadata of every tool a Server exposes.
func RegisterBuiltinTools(r *ToolRegistry) {
	for _, tool := range builtinTools {
		r.Register(tool)
	}
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*ToolMetadata)}
}

// Register adds or replaces a tool. Nil or unnamed tools are ignored.
func (r *ToolRegistry) Register(tool *ToolMetadata) {
	if tool == nil || tool.Name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
}

// Get returns the metadata for a tool.
func (r *ToolRegistry) Get(name string) (*ToolMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all tools sorted by name.
func (r *ToolRegistry) List() []*ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ToolMetadata, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListByCategory returns the tools in category sorted by name.
func (r *ToolRegistry) ListByCategory(category ToolCategory) []*ToolMetadata {
	var out []*ToolMetadata
	for _, tool := range r.List() {
		if tool.Category == category {
			out = append(out, tool)
		}
	}
	return out
}

// SearchResult is a tool match.
type SearchResult struct {
	Tool *ToolMetadata `json:"tool"`

	// Score: 3 exact name, 2 name contains query, 1 description, category
	// or keyword match.
	Score       int    `json:"score"`
	MatchReason string `json:"match_reason"`
}

// Search finds tools matching query case-insensitively, best matches first.
func (r *ToolRegistry) Search(query string) []*SearchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var results []*SearchResult
	for _, tool := range r.List() {
		name := strings.ToLower(tool.Name)
		switch {
		case name == q:
			results = append(results, &SearchResult{Tool: tool, Score: 3, MatchReason: "exact name match"})
		case strings.Contains(name, q):
			results = append(results, &SearchResult{Tool: tool, Score: 2, MatchReason: "name contains query"})
		case strings.Contains(strings.ToLower(tool.Description), q):
			results = append(results, &SearchResult{Tool: tool, Score: 1, MatchReason: "description match"})
		case string(tool.Category) == q:
			results = append(results, &SearchResult{Tool: tool, Score: 1, MatchReason: "category match"})
		case hasKeyword(tool.Keywords, q):
			results = append(results, &SearchResult{Tool: tool, Score: 1, MatchReason: "keyword match"})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

func hasKeyword(keywords []string, q string) bool {
	for _, k := range keywords {
		if strings.Contains(strings.ToLower(k), q) {
			return true
		}
	}
	return false
}
