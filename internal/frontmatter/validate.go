package frontmatter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Violation is one header conformance problem.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return v.Field + ": " + v.Message
}

// ValidateOptions tunes conformance checking.
type ValidateOptions struct {
	// RequireCompression demands a compression block, as for documents that
	// have been through a full compression pass.
	RequireCompression bool
}

var (
	DocTypes = []string{
		"API_REFERENCE", "TUTORIAL", "SESSION_HANDOVER", "PROJECT_CONTEXT",
		"TASK_SPECIFICATION", "VALIDATION_REPORT", "ANALYSIS", "PLAN",
		"REFERENCE", "PATTERN", "METHODOLOGY", "RESEARCH", "PROPOSAL",
	}
	Audiences = []string{"llm-only", "human-technical", "human-general", "multi-role"}
	Layers    = []string{"Session", "Strategic", "Control", "Operational", "Archive"}
	Phases    = []string{"Active", "Complete", "Archived", "Deprecated"}
	Purposes  = []string{"Execution", "Learning", "Reference", "Audit", "Planning", "Analysis"}

	requiredFields = []string{"doc_type", "audience", "layer", "phase", "purpose", "target_style"}

	timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2} [A-Z]+$`)

	// Compression parameters may use the Greek letters or their names.
	paramAliases = map[string]string{"σ": "sigma", "γ": "gamma", "κ": "kappa"}
)

// Validate checks meta against the header conventions. Violations are
// sorted by field.
func Validate(meta map[string]any, opts ValidateOptions) []Violation {
	var out []Violation
	add := func(field, format string, args ...any) {
		out = append(out, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	for _, f := range requiredFields {
		if _, ok := meta[f]; !ok {
			add(f, "required field missing")
		}
	}

	checkEnum(meta, "doc_type", DocTypes, add)
	checkEnum(meta, "audience", Audiences, add)
	checkEnum(meta, "layer", Layers, add)
	checkEnum(meta, "phase", Phases, add)
	checkEnum(meta, "purpose", Purposes, add)

	if raw, ok := meta["target_style"]; ok {
		style, isMap := raw.(map[string]any)
		if !isMap {
			add("target_style", "must be a mapping")
		} else {
			for _, p := range []string{"sigma", "gamma", "kappa"} {
				v, present := style[p]
				if !present {
					add("target_style."+p, "required parameter missing")
					continue
				}
				checkUnit("target_style."+p, v, add)
			}
		}
	}

	if raw, ok := meta["compression"]; ok {
		validateCompression(raw, add)
	} else if opts.RequireCompression {
		add("compression", "required for compressed documents")
	}

	if raw, ok := meta["writing_guide"]; ok {
		guide, isMap := raw.(map[string]any)
		if !isMap {
			add("writing_guide", "must be a mapping")
		} else {
			for k, v := range guide {
				if _, isStr := v.(string); !isStr {
					add("writing_guide."+k, "must be a string")
				}
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// Conformance is the header check of a whole document.
type Conformance struct {
	HasHeader  bool        `json:"has_header"`
	Valid      bool        `json:"valid"`
	Error      string      `json:"error,omitempty"`
	Violations []Violation `json:"violations"`
}

// Check reads and validates the header of content. A missing block or
// malformed YAML makes the document invalid; it is not an error.
func Check(content string, opts ValidateOptions) Conformance {
	b, ok := Split(content)
	if !ok {
		return Conformance{Error: "no frontmatter block", Violations: []Violation{}}
	}
	meta, err := Parse(b.Raw)
	if err != nil {
		return Conformance{HasHeader: true, Error: err.Error(), Violations: []Violation{}}
	}
	vs := Validate(meta, opts)
	if vs == nil {
		vs = []Violation{}
	}
	return Conformance{HasHeader: true, Valid: len(vs) == 0, Violations: vs}
}

type addFunc func(field, format string, args ...any)

func checkEnum(meta map[string]any, field string, allowed []string, add addFunc) {
	raw, ok := meta[field]
	if !ok {
		return
	}
	s, isStr := raw.(string)
	if !isStr {
		add(field, "must be a string")
		return
	}
	for _, a := range allowed {
		if s == a {
			return
		}
	}
	add(field, "invalid value %q (allowed: %s)", s, strings.Join(allowed, ", "))
}

func checkUnit(field string, v any, add addFunc) {
	f, ok := asFloat(v)
	if !ok {
		add(field, "must be numeric")
		return
	}
	if f < 0 || f > 1 {
		add(field, "%v not in [0.0, 1.0]", f)
	}
}

func validateCompression(raw any, add addFunc) {
	comp, ok := raw.(map[string]any)
	if !ok {
		add("compression", "must be a mapping")
		return
	}

	for _, f := range []string{"last_full_compression", "baseline_tokens", "parameters", "validation"} {
		if _, present := comp[f]; !present {
			add("compression."+f, "required field missing")
		}
	}

	if v, present := comp["last_full_compression"]; present {
		s, isStr := v.(string)
		if !isStr || !timestampPattern.MatchString(s) {
			add("compression.last_full_compression", "invalid timestamp format %q (want YYYY-MM-DD HH:MM ZONE)", fmt.Sprint(v))
		}
	}

	if v, present := comp["baseline_tokens"]; present {
		if n, isInt := asInt(v); !isInt || n <= 0 {
			add("compression.baseline_tokens", "must be a positive integer")
		}
	}

	if v, present := comp["parameters"]; present {
		params, isMap := v.(map[string]any)
		if !isMap {
			add("compression.parameters", "must be a mapping")
		} else {
			for k, pv := range params {
				name := k
				if alias, ok := paramAliases[k]; ok {
					name = alias
				}
				switch name {
				case "sigma", "gamma", "kappa":
					checkUnit("compression.parameters."+k, pv, add)
				}
			}
		}
	}

	if v, present := comp["validation"]; present {
		val, isMap := v.(map[string]any)
		if !isMap {
			add("compression.validation", "must be a mapping")
			return
		}
		for _, f := range []string{"entity_preservation", "semantic_similarity"} {
			fv, ok := val[f]
			if !ok {
				add("compression.validation."+f, "required field missing")
				continue
			}
			checkUnit("compression.validation."+f, fv, add)
		}
	}
}
