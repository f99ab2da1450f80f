package compression

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// RulesName is the registry name of the full rule pipeline.
const RulesName = "rules"

//go:embed rules.toml
var defaultRulesTOML []byte

// ErrInvalidRules is returned for rule files that fail to decode or compile.
var ErrInvalidRules = errors.New("invalid rewrite rules")

// Rule is one regex substitution.
type Rule struct {
	Pattern string `toml:"pattern"`
	Replace string `toml:"replace"`

	re *regexp.Regexp
}

// Group is an ordered list of rules sharing regex flags.
type Group struct {
	Name       string `toml:"name"`
	IgnoreCase bool   `toml:"ignore_case"`
	Multiline  bool   `toml:"multiline"`
	Rules      []Rule `toml:"rule"`
}

type ruleFile struct {
	Group []Group `toml:"group"`
}

// RuleSet is a compiled, immutable set of rule groups.
type RuleSet struct {
	groups []Group
	index  map[string]int
}

// ParseRules decodes and compiles a TOML rule table.
func ParseRules(data []byte) (*RuleSet, error) {
	var f ruleFile
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown keys %v", ErrInvalidRules, undecoded)
	}
	if len(f.Group) == 0 {
		return nil, fmt.Errorf("%w: no groups", ErrInvalidRules)
	}

	rs := &RuleSet{index: make(map[string]int, len(f.Group))}
	for gi, g := range f.Group {
		if g.Name == "" {
			return nil, fmt.Errorf("%w: group %d has no name", ErrInvalidRules, gi)
		}
		if g.Name == RulesName || g.Name == MockName || g.Name == ExtractiveName {
			return nil, fmt.Errorf("%w: group name %q is reserved", ErrInvalidRules, g.Name)
		}
		if _, dup := rs.index[g.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate group %q", ErrInvalidRules, g.Name)
		}
		flags := ""
		if g.IgnoreCase {
			flags += "i"
		}
		if g.Multiline {
			flags += "m"
		}
		for ri := range g.Rules {
			expr := g.Rules[ri].Pattern
			if flags != "" {
				expr = "(?" + flags + ")" + expr
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("%w: %s rule %d: %v", ErrInvalidRules, g.Name, ri, err)
			}
			g.Rules[ri].re = re
		}
		rs.index[g.Name] = len(rs.groups)
		rs.groups = append(rs.groups, g)
	}
	return rs, nil
}

// LoadRulesFile reads a TOML rule table from path.
func LoadRulesFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}

// DefaultRules returns the built-in rule table.
func DefaultRules() *RuleSet {
	rs, err := ParseRules(defaultRulesTOML)
	if err != nil {
		panic(fmt.Sprintf("embedded rules: %v", err))
	}
	return rs
}

// Groups returns the group names in application order.
func (rs *RuleSet) Groups() []string {
	names := make([]string, len(rs.groups))
	for i, g := range rs.groups {
		names[i] = g.Name
	}
	return names
}

// Apply runs the named groups, or all groups when none are named, over
// text with sacred spans protected.
func (rs *RuleSet) Apply(text string, groups ...string) (string, error) {
	selected := rs.groups
	if len(groups) > 0 {
		selected = make([]Group, 0, len(groups))
		for _, name := range groups {
			i, ok := rs.index[name]
			if !ok {
				return "", fmt.Errorf("%w: rule group %q", ErrUnknownRewriter, name)
			}
			selected = append(selected, rs.groups[i])
		}
	}

	protected, spans := protectSacred(text)
	for _, g := range selected {
		for _, r := range g.Rules {
			protected = r.re.ReplaceAllString(protected, r.Replace)
		}
	}
	return restoreSacred(protected, spans), nil
}

// Sacred spans are replaced by private-use delimited indices so no rule
// pattern can match inside them.
const (
	sacredOpen  = "\uE000"
	sacredClose = "\uE001"
)

var sacredPatterns = []*regexp.Regexp{
	regexp.MustCompile("(?s)```.*?```"),
	regexp.MustCompile(`(?s)""".*?"""`),
	regexp.MustCompile("`[^`\n]+`"),
	regexp.MustCompile(`"[^"]{50,}"`),
}

var sacredPlaceholder = regexp.MustCompile(sacredOpen + `(\d+)` + sacredClose)

func protectSacred(text string) (string, []string) {
	var spans []string
	for _, re := range sacredPatterns {
		text = re.ReplaceAllStringFunc(text, func(m string) string {
			spans = append(spans, m)
			return sacredOpen + strconv.Itoa(len(spans)-1) + sacredClose
		})
	}
	return text, spans
}

func restoreSacred(text string, spans []string) string {
	if len(spans) == 0 {
		return text
	}
	// Later spans may contain earlier placeholders, so restore until stable.
	for i := 0; i < len(sacredPatterns) && strings.Contains(text, sacredOpen); i++ {
		text = sacredPlaceholder.ReplaceAllStringFunc(text, func(m string) string {
			n, err := strconv.Atoi(m[len(sacredOpen) : len(m)-len(sacredClose)])
			if err != nil || n >= len(spans) {
				return m
			}
			return spans[n]
		})
	}
	return text
}

// RuleRewriter applies a RuleSet. Style parameters are validated but do
// not change which rules fire.
type RuleRewriter struct {
	rules  *RuleSet
	name   string
	groups []string
}

// NewRuleRewriter returns the full pipeline over rules.
func NewRuleRewriter(rules *RuleSet) *RuleRewriter {
	return &RuleRewriter{rules: rules, name: RulesName}
}

// Group returns a rewriter running only the named group.
func (r *RuleRewriter) Group(name string) *RuleRewriter {
	return &RuleRewriter{rules: r.rules, name: name, groups: []string{name}}
}

// Name implements Rewriter.
func (r *RuleRewriter) Name() string { return r.name }

// Rewrite implements Rewriter.
func (r *RuleRewriter) Rewrite(ctx context.Context, text string, p Params) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := p.Validate(); err != nil {
		return "", err
	}
	return r.rules.Apply(text, r.groups...)
}
