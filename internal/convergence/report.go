package convergence

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Paths lists the files written by Save.
type Paths struct {
	JSON     string `json:"json"`
	CSV      string `json:"csv"`
	Markdown string `json:"markdown"`
}

// TimestampLayout names output files.
const TimestampLayout = "20060102_150405"

// Save writes the raw results as JSON, the per-round curves as CSV and a
// markdown summary into dir, each suffixed with ts.
func Save(dir string, res *Results, ts string) (Paths, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("create output dir: %w", err)
	}
	p := Paths{
		JSON:     filepath.Join(dir, "convergence_data_"+ts+".json"),
		CSV:      filepath.Join(dir, "convergence_curves_"+ts+".csv"),
		Markdown: filepath.Join(dir, "convergence_summary_"+ts+".md"),
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return Paths{}, fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(p.JSON, data, 0o644); err != nil {
		return Paths{}, fmt.Errorf("write json: %w", err)
	}

	if err := writeFile(p.CSV, func(w io.Writer) error { return WriteCSV(w, res) }); err != nil {
		return Paths{}, err
	}
	if err := writeFile(p.Markdown, func(w io.Writer) error {
		_, err := io.WriteString(w, Summary(res))
		return err
	}); err != nil {
		return Paths{}, err
	}
	return p, nil
}

// Load reads results written by Save.
func Load(path string) (*Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	var res Results
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	return &res, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

var csvHeader = []string{
	"document", "technique", "safety",
	"round", "tokens", "chars", "ratio_to_original",
	"ratio_to_previous", "converged", "converged_at_round",
}

// WriteCSV writes one row per round.
func WriteCSV(w io.Writer, res *Results) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range res.Tests {
		convergedAt := ""
		if t.ConvergedAtRound != nil {
			convergedAt = strconv.Itoa(*t.ConvergedAtRound)
		}
		for _, r := range t.Rounds {
			row := []string{
				t.Document,
				t.Technique,
				strconv.FormatBool(t.SafetyEnabled),
				strconv.Itoa(r.Round),
				strconv.Itoa(r.Tokens),
				strconv.Itoa(r.Chars),
				strconv.FormatFloat(r.RatioToOriginal, 'g', -1, 64),
				strconv.FormatFloat(r.RatioToPrevious, 'g', -1, 64),
				strconv.FormatBool(t.Converged),
				convergedAt,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// Summary renders the markdown run summary.
func Summary(res *Results) string {
	var b strings.Builder
	tests := res.Tests
	total := len(tests)
	converged, failed := countConverged(tests), countFailed(tests)

	b.WriteString("# Convergence Testing Summary\n\n")
	fmt.Fprintf(&b, "**Generated**: %s\n", res.Metadata.Timestamp.Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&b, "**Mode**: %s\n", res.Metadata.Mode)
	fmt.Fprintf(&b, "**Total Tests**: %d\n", total)
	fmt.Fprintf(&b, "**Converged**: %d (%s)\n", converged, pct(converged, total))
	fmt.Fprintf(&b, "**Failed**: %d (%s)\n", failed, pct(failed, total))
	fmt.Fprintf(&b, "**Execution Time**: %.1f seconds\n\n", res.Metadata.ExecutionTime)

	b.WriteString("## Results by Technique\n\n")
	for _, tech := range techniques(tests) {
		group := filter(tests, func(t Trajectory) bool { return t.Technique == tech })
		conv, fail := countConverged(group), countFailed(group)
		fmt.Fprintf(&b, "### %s\n", tech)
		fmt.Fprintf(&b, "- Tests: %d\n", len(group))
		fmt.Fprintf(&b, "- Converged: %d (%s)\n", conv, pct(conv, len(group)))
		fmt.Fprintf(&b, "- Failed: %d (%s)\n", fail, pct(fail, len(group)))
		fmt.Fprintf(&b, "- Avg rounds to convergence: %.1f\n\n", avgRounds(group))
	}

	on := filter(tests, func(t Trajectory) bool { return t.SafetyEnabled })
	off := filter(tests, func(t Trajectory) bool { return !t.SafetyEnabled })

	b.WriteString("## Safety Mode Comparison\n\n")
	for _, m := range []struct {
		label string
		group []Trajectory
	}{{"Enabled", on}, {"Disabled", off}} {
		conv, fail := countConverged(m.group), countFailed(m.group)
		fmt.Fprintf(&b, "### Safety %s (%d tests)\n", m.label, len(m.group))
		fmt.Fprintf(&b, "- Converged: %d (%s)\n", conv, pct(conv, len(m.group)))
		fmt.Fprintf(&b, "- Failed: %d (%s)\n", fail, pct(fail, len(m.group)))
		fmt.Fprintf(&b, "- Avg rounds: %.1f\n\n", avgRounds(m.group))
	}

	b.WriteString("## Safety Impact Analysis\n\n")
	if len(on) > 0 && len(off) > 0 {
		diff := rate(countConverged(off), len(off)) - rate(countConverged(on), len(on))
		effect := "hinder"
		if diff < 0 {
			effect = "help"
		}
		fmt.Fprintf(&b, "- Convergence rate difference: %+.1f%% (disabled - enabled)\n", diff*100)
		fmt.Fprintf(&b, "- Safety appears to %s convergence\n\n", effect)
	}

	b.WriteString("## Key Findings\n\n")
	switch {
	case float64(converged) > float64(total)*0.8:
		b.WriteString("- **High convergence rate**: Most tests converged successfully\n")
	case float64(converged) > float64(total)*0.5:
		b.WriteString("- **Moderate convergence rate**: Mixed results across techniques\n")
	default:
		b.WriteString("- **Low convergence rate**: Many tests did not converge\n")
	}
	if float64(failed) > float64(total)*0.1 {
		b.WriteString("- **Significant failures**: Some tests encountered errors\n")
	}
	return b.String()
}

func pct(n, of int) string {
	return fmt.Sprintf("%.1f%%", rate(n, of)*100)
}

func rate(n, of int) float64 {
	if of == 0 {
		return 0
	}
	return float64(n) / float64(of)
}

func filter(tests []Trajectory, keep func(Trajectory) bool) []Trajectory {
	var out []Trajectory
	for _, t := range tests {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func countConverged(tests []Trajectory) int {
	n := 0
	for _, t := range tests {
		if t.Converged {
			n++
		}
	}
	return n
}

func countFailed(tests []Trajectory) int {
	n := 0
	for _, t := range tests {
		if t.Failed() {
			n++
		}
	}
	return n
}

// avgRounds is the mean converged_at_round over converged tests.
func avgRounds(tests []Trajectory) float64 {
	sum, n := 0, 0
	for _, t := range tests {
		if t.Converged && t.ConvergedAtRound != nil {
			sum += *t.ConvergedAtRound
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

func avgReduction(tests []Trajectory) float64 {
	if len(tests) == 0 {
		return 0
	}
	var sum float64
	for _, t := range tests {
		sum += t.TotalReduction
	}
	return sum / float64(len(tests))
}

// techniques returns technique names in first-seen order.
func techniques(tests []Trajectory) []string {
	return distinct(tests, func(t Trajectory) string { return t.Technique })
}

func documents(tests []Trajectory) []string {
	return distinct(tests, func(t Trajectory) string { return t.Document })
}

func distinct(tests []Trajectory, key func(Trajectory) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range tests {
		if k := key(t); !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
