package convergence

import (
	"fmt"
	"math"
	"strings"
)

// Curve classifies how fast a trajectory converged.
type Curve string

const (
	CurveInstant   Curve = "instant"   // converged by round 1
	CurveFast      Curve = "fast"      // rounds 2-5
	CurveGradual   Curve = "gradual"   // rounds 6-15
	CurveSlow      Curve = "slow"      // after round 15
	CurveDivergent Curve = "divergent" // never converged
	CurveFailed    Curve = "failed"    // a round errored
)

var curveOrder = []Curve{CurveInstant, CurveFast, CurveGradual, CurveSlow, CurveDivergent, CurveFailed}

var curveDescriptions = map[Curve]string{
	CurveInstant:   "Converges immediately or within 1 round",
	CurveFast:      "Converges within 2-5 rounds",
	CurveGradual:   "Converges within 6-15 rounds",
	CurveSlow:      "Converges after 15+ rounds",
	CurveDivergent: "Does not converge within test limits",
	CurveFailed:    "Test encountered an error",
}

// Pattern describes the shape of a token trajectory.
type Pattern string

const (
	PatternImmediate   Pattern = "immediate_stability"
	PatternExponential Pattern = "exponential_decay"
	PatternOscillation Pattern = "oscillation"
	PatternPlateau     Pattern = "plateau"
)

var patternOrder = []Pattern{PatternImmediate, PatternExponential, PatternOscillation, PatternPlateau}

var patternDescriptions = map[Pattern]string{
	PatternImmediate:   "Content unchanged after first compression",
	PatternExponential: "Rapid improvement followed by stabilization",
	PatternOscillation: "Non-monotonic behavior with ups and downs",
	PatternPlateau:     "Long periods without significant change",
}

// SafetyNecessity is the verdict on whether gating changes convergence.
type SafetyNecessity string

const (
	SafetyHinders      SafetyNecessity = "safety_blocks_hinder_convergence"
	SafetyNecessary    SafetyNecessity = "safety_blocks_necessary"
	SafetyNeutral      SafetyNecessity = "safety_blocks_neutral"
	SafetyInsufficient SafetyNecessity = "insufficient_data"
)

// Overall summarizes every trajectory.
type Overall struct {
	TotalTests             int     `json:"total_tests"`
	Converged              int     `json:"converged"`
	ConvergenceRate        float64 `json:"convergence_rate"`
	Failed                 int     `json:"failed"`
	FailureRate            float64 `json:"failure_rate"`
	AvgRoundsToConvergence float64 `json:"avg_rounds_to_convergence"`
	AvgReduction           float64 `json:"avg_compression_reduction"`
	ExecutionTime          float64 `json:"execution_time"`
}

// Bucket counts trajectories in one class.
type Bucket struct {
	Count      int      `json:"count"`
	Percentage float64  `json:"percentage"`
	Tests      []string `json:"tests"`
}

// TechniqueStats summarizes one rewriter.
type TechniqueStats struct {
	TotalTests           int     `json:"total_tests"`
	ConvergenceRate      float64 `json:"convergence_rate"`
	AvgRounds            float64 `json:"avg_rounds_to_converge"`
	AvgReduction         float64 `json:"avg_compression_reduction"`
	SafetyOnConvergence  float64 `json:"safety_enabled_convergence"`
	SafetyOffConvergence float64 `json:"safety_disabled_convergence"`
	Curve                Curve   `json:"curve_type"`
}

// DocumentStats summarizes one document.
type DocumentStats struct {
	TotalTests      int                `json:"total_tests"`
	OriginalTokens  int                `json:"original_tokens"`
	ConvergenceRate float64            `json:"convergence_rate"`
	AvgRounds       float64            `json:"avg_rounds"`
	AvgReduction    float64            `json:"avg_reduction"`
	PerTechnique    map[string]float64 `json:"technique_performance"`
}

// ModeStats summarizes one safety mode.
type ModeStats struct {
	Tests           int     `json:"tests"`
	ConvergenceRate float64 `json:"convergence_rate"`
	AvgRounds       float64 `json:"avg_rounds"`
	AvgReduction    float64 `json:"avg_reduction"`
}

// SafetyImpact compares safety on and off.
type SafetyImpact struct {
	Enabled  ModeStats `json:"safety_enabled"`
	Disabled ModeStats `json:"safety_disabled"`
	// Differences are disabled minus enabled.
	ConvergenceRateDifference float64         `json:"convergence_rate_difference"`
	RoundsDifference          float64         `json:"rounds_difference"`
	Necessity                 SafetyNecessity `json:"safety_necessity"`
}

// Analysis is the pattern analysis of a results set.
type Analysis struct {
	Overall    Overall                   `json:"overall_statistics"`
	Curves     map[Curve]Bucket          `json:"curve_classifications"`
	Techniques map[string]TechniqueStats `json:"technique_analysis"`
	Documents  map[string]DocumentStats  `json:"document_analysis"`
	Safety     SafetyImpact              `json:"safety_comparison"`
	Patterns   map[Pattern]Bucket        `json:"convergence_patterns"`
	Insights   []string                  `json:"key_insights"`

	techniqueOrder []string
	documentOrder  []string
}

// Analyze classifies every trajectory and derives the summary statistics.
func Analyze(res *Results) *Analysis {
	tests := res.Tests
	a := &Analysis{
		Curves:         make(map[Curve]Bucket, len(curveOrder)),
		Techniques:     make(map[string]TechniqueStats),
		Documents:      make(map[string]DocumentStats),
		Patterns:       make(map[Pattern]Bucket, len(patternOrder)),
		techniqueOrder: techniques(tests),
		documentOrder:  documents(tests),
	}

	converged := countConverged(tests)
	failed := countFailed(tests)
	a.Overall = Overall{
		TotalTests:             len(tests),
		Converged:              converged,
		ConvergenceRate:        rate(converged, len(tests)),
		Failed:                 failed,
		FailureRate:            rate(failed, len(tests)),
		AvgRoundsToConvergence: avgRounds(tests),
		AvgReduction:           avgReduction(tests),
		ExecutionTime:          res.Metadata.ExecutionTime,
	}

	for _, c := range curveOrder {
		a.Curves[c] = Bucket{Tests: []string{}}
	}
	for _, p := range patternOrder {
		a.Patterns[p] = Bucket{Tests: []string{}}
	}
	for i := range tests {
		t := &tests[i]
		add(a.Curves, ClassifyCurve(t), t.Key())
		if len(t.Rounds) > 0 {
			add(a.Patterns, IdentifyPattern(t.Rounds), t.Key())
		}
	}
	finishBuckets(a.Curves, len(tests))
	finishBuckets(a.Patterns, len(tests))

	for _, tech := range a.techniqueOrder {
		group := filter(tests, func(t Trajectory) bool { return t.Technique == tech })
		on := filter(group, func(t Trajectory) bool { return t.SafetyEnabled })
		off := filter(group, func(t Trajectory) bool { return !t.SafetyEnabled })
		a.Techniques[tech] = TechniqueStats{
			TotalTests:           len(group),
			ConvergenceRate:      rate(countConverged(group), len(group)),
			AvgRounds:            avgRounds(group),
			AvgReduction:         avgReduction(group),
			SafetyOnConvergence:  rate(countConverged(on), len(on)),
			SafetyOffConvergence: rate(countConverged(off), len(off)),
			Curve:                dominantCurve(group),
		}
	}

	for _, doc := range a.documentOrder {
		group := filter(tests, func(t Trajectory) bool { return t.Document == doc })
		perTech := make(map[string]float64)
		for _, tech := range techniques(group) {
			tg := filter(group, func(t Trajectory) bool { return t.Technique == tech })
			perTech[tech] = rate(countConverged(tg), len(tg))
		}
		a.Documents[doc] = DocumentStats{
			TotalTests:      len(group),
			OriginalTokens:  group[0].OriginalTokens,
			ConvergenceRate: rate(countConverged(group), len(group)),
			AvgRounds:       avgRounds(group),
			AvgReduction:    avgReduction(group),
			PerTechnique:    perTech,
		}
	}

	a.Safety = safetyImpact(tests)
	a.Insights = insights(a)
	return a
}

func add[K comparable](buckets map[K]Bucket, k K, key string) {
	b := buckets[k]
	b.Count++
	b.Tests = append(b.Tests, key)
	buckets[k] = b
}

func finishBuckets[K comparable](buckets map[K]Bucket, total int) {
	for k, b := range buckets {
		b.Percentage = rate(b.Count, total)
		buckets[k] = b
	}
}

// ClassifyCurve buckets a trajectory by the round it converged at.
func ClassifyCurve(t *Trajectory) Curve {
	switch {
	case t.Failed():
		return CurveFailed
	case !t.Converged || t.ConvergedAtRound == nil:
		return CurveDivergent
	}
	return curveFor(float64(*t.ConvergedAtRound))
}

func curveFor(rounds float64) Curve {
	switch {
	case rounds <= 1:
		return CurveInstant
	case rounds <= 5:
		return CurveFast
	case rounds <= 15:
		return CurveGradual
	default:
		return CurveSlow
	}
}

// dominantCurve classifies a group by its mean convergence round; groups
// averaging past five rounds are reported as gradual.
func dominantCurve(tests []Trajectory) Curve {
	if countConverged(tests) == 0 {
		return CurveDivergent
	}
	c := curveFor(avgRounds(tests))
	if c == CurveSlow {
		return CurveGradual
	}
	return c
}

// IdentifyPattern names the shape of a token series: two rounds or fewer
// is immediate; more than 30% rising steps oscillate; more than 60% flat
// steps plateau; anything else decays.
func IdentifyPattern(rounds []Round) Pattern {
	if len(rounds) <= 2 {
		return PatternImmediate
	}
	increases, flat := 0, 0
	for i := 1; i < len(rounds); i++ {
		switch prev, cur := rounds[i-1].Tokens, rounds[i].Tokens; {
		case cur > prev:
			increases++
		case cur == prev:
			flat++
		}
	}
	n := float64(len(rounds))
	switch {
	case float64(increases) > n*0.3:
		return PatternOscillation
	case float64(flat) > n*0.6:
		return PatternPlateau
	}
	return PatternExponential
}

func modeStats(tests []Trajectory) ModeStats {
	return ModeStats{
		Tests:           len(tests),
		ConvergenceRate: rate(countConverged(tests), len(tests)),
		AvgRounds:       avgRounds(tests),
		AvgReduction:    avgReduction(tests),
	}
}

func safetyImpact(tests []Trajectory) SafetyImpact {
	on := filter(tests, func(t Trajectory) bool { return t.SafetyEnabled })
	off := filter(tests, func(t Trajectory) bool { return !t.SafetyEnabled })
	s := SafetyImpact{
		Enabled:   modeStats(on),
		Disabled:  modeStats(off),
		Necessity: SafetyInsufficient,
	}
	if len(on) == 0 || len(off) == 0 {
		return s
	}
	s.ConvergenceRateDifference = s.Disabled.ConvergenceRate - s.Enabled.ConvergenceRate
	if countConverged(on) > 0 && countConverged(off) > 0 {
		s.RoundsDifference = s.Disabled.AvgRounds - s.Enabled.AvgRounds
	}
	switch d := s.ConvergenceRateDifference; {
	case d > 0.1:
		s.Necessity = SafetyHinders
	case d < -0.1:
		s.Necessity = SafetyNecessary
	default:
		s.Necessity = SafetyNeutral
	}
	return s
}

func insights(a *Analysis) []string {
	var out []string
	switch r := a.Overall.ConvergenceRate; {
	case r > 0.9:
		out = append(out, "Extremely high convergence rate (>90%) suggests the rewriters naturally stabilize")
	case r > 0.7:
		out = append(out, "High convergence rate indicates good intrinsic stability for most rewriters")
	default:
		out = append(out, "Moderate convergence rate suggests some rewriters may need safety blocks")
	}

	switch r := a.Overall.AvgRoundsToConvergence; {
	case r < 2:
		out = append(out, "Very fast convergence (< 2 rounds) indicates strong intrinsic stopping behavior")
	case r < 5:
		out = append(out, "Fast convergence suggests rewriters naturally find stable states")
	}

	if a.Curves[CurveInstant].Percentage > 0.5 {
		out = append(out, "Majority of tests show instant convergence, supporting the intrinsic stability hypothesis")
	}

	switch d := a.Safety.ConvergenceRateDifference; {
	case math.Abs(d) < 0.05:
		out = append(out, "Safety system has minimal impact on convergence")
	case d > 0.1:
		out = append(out, "Safety disabled shows higher convergence, so safety blocks may be overly conservative")
	}
	return out
}

// Report renders the analysis as markdown.
func (a *Analysis) Report(source string) string {
	var b strings.Builder
	o := a.Overall

	b.WriteString("# Convergence Analysis Report\n\n")
	if source != "" {
		fmt.Fprintf(&b, "**Source Data**: %s\n\n", source)
	}

	b.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(&b, "- **Total Tests**: %d\n", o.TotalTests)
	fmt.Fprintf(&b, "- **Overall Convergence Rate**: %.1f%%\n", o.ConvergenceRate*100)
	fmt.Fprintf(&b, "- **Average Rounds to Convergence**: %.1f\n", o.AvgRoundsToConvergence)
	fmt.Fprintf(&b, "- **Average Compression Reduction**: %.1f%%\n", o.AvgReduction*100)
	fmt.Fprintf(&b, "- **Execution Time**: %.2f seconds\n\n", o.ExecutionTime)

	b.WriteString("## Key Insights\n\n")
	for _, s := range a.Insights {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	b.WriteString("\n## Convergence Curve Classification\n\n")
	for _, c := range curveOrder {
		bucket := a.Curves[c]
		fmt.Fprintf(&b, "### %s Convergence\n", title(string(c)))
		fmt.Fprintf(&b, "- **Count**: %d tests (%.1f%%)\n", bucket.Count, bucket.Percentage*100)
		fmt.Fprintf(&b, "- **Description**: %s\n\n", curveDescriptions[c])
	}

	b.WriteString("## Technique Performance Analysis\n\n")
	for _, tech := range a.techniqueOrder {
		s := a.Techniques[tech]
		fmt.Fprintf(&b, "### %s\n", tech)
		fmt.Fprintf(&b, "- **Convergence Rate**: %.1f%%\n", s.ConvergenceRate*100)
		fmt.Fprintf(&b, "- **Average Rounds**: %.1f\n", s.AvgRounds)
		fmt.Fprintf(&b, "- **Average Reduction**: %.1f%%\n", s.AvgReduction*100)
		fmt.Fprintf(&b, "- **Curve Type**: %s\n", s.Curve)
		fmt.Fprintf(&b, "- **Safety Impact**: Enabled=%.1f%%, Disabled=%.1f%%\n\n",
			s.SafetyOnConvergence*100, s.SafetyOffConvergence*100)
	}

	b.WriteString("## Document-Specific Analysis\n\n")
	for _, doc := range a.documentOrder {
		s := a.Documents[doc]
		fmt.Fprintf(&b, "### %s\n", doc)
		fmt.Fprintf(&b, "- **Original Tokens**: %d\n", s.OriginalTokens)
		fmt.Fprintf(&b, "- **Convergence Rate**: %.1f%%\n", s.ConvergenceRate*100)
		fmt.Fprintf(&b, "- **Average Rounds**: %.1f\n", s.AvgRounds)
		fmt.Fprintf(&b, "- **Average Reduction**: %.1f%%\n\n", s.AvgReduction*100)
	}

	s := a.Safety
	b.WriteString("## Safety System Impact Analysis\n\n")
	for _, m := range []struct {
		label string
		stats ModeStats
	}{{"Enabled", s.Enabled}, {"Disabled", s.Disabled}} {
		fmt.Fprintf(&b, "### Safety %s Results\n", m.label)
		fmt.Fprintf(&b, "- **Tests**: %d\n", m.stats.Tests)
		fmt.Fprintf(&b, "- **Convergence Rate**: %.1f%%\n", m.stats.ConvergenceRate*100)
		fmt.Fprintf(&b, "- **Average Rounds**: %.1f\n\n", m.stats.AvgRounds)
	}
	b.WriteString("### Impact Assessment\n")
	fmt.Fprintf(&b, "- **Convergence Rate Difference**: %+.1f%% (disabled - enabled)\n", s.ConvergenceRateDifference*100)
	fmt.Fprintf(&b, "- **Rounds Difference**: %+.1f\n", s.RoundsDifference)
	fmt.Fprintf(&b, "- **Safety Necessity**: %s\n\n", title(string(s.Necessity)))

	b.WriteString("## Convergence Pattern Analysis\n\n")
	for _, p := range patternOrder {
		bucket := a.Patterns[p]
		if bucket.Count == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s\n", title(string(p)))
		fmt.Fprintf(&b, "- **Count**: %d (%.1f%%)\n", bucket.Count, bucket.Percentage*100)
		fmt.Fprintf(&b, "- **Description**: %s\n\n", patternDescriptions[p])
	}
	return b.String()
}

// title turns snake_case into Title Case.
func title(s string) string {
	words := strings.Split(s, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
