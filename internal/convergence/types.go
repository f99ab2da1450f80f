// Package convergence repeatedly feeds a rewriter its own output and
// records whether the text settles, how fast, and how safety gating changes
// the trajectory.
package convergence

import (
	"fmt"
	"time"
)

// Document is one input to the harness.
type Document struct {
	Name string
	Text string
}

// Round is the measurement taken after one rewrite.
type Round struct {
	Round               int     `json:"round"`
	Tokens              int     `json:"tokens"`
	Chars               int     `json:"chars"`
	RatioToOriginal     float64 `json:"ratio_to_original"`
	RatioToPrevious     float64 `json:"ratio_to_previous"`
	IdenticalToPrevious bool    `json:"identical_to_previous"`
	ContentHash         string  `json:"content_hash"`
	Refused             bool    `json:"refused,omitempty"`
}

// Trajectory is the full run of one document under one rewriter and
// safety mode.
type Trajectory struct {
	Document         string  `json:"document"`
	Technique        string  `json:"technique"`
	SafetyEnabled    bool    `json:"safety_enabled"`
	OriginalTokens   int     `json:"original_tokens"`
	OriginalChars    int     `json:"original_chars"`
	Rounds           []Round `json:"rounds"`
	Converged        bool    `json:"converged"`
	ConvergedAtRound *int    `json:"converged_at_round,omitempty"`
	FinalTokens      int     `json:"final_tokens"`
	TotalReduction   float64 `json:"total_reduction"`
	Error            string  `json:"error,omitempty"`
	FailedAtRound    *int    `json:"failed_at_round,omitempty"`

	outputs []string
}

// Key identifies the trajectory in reports.
func (t *Trajectory) Key() string {
	return fmt.Sprintf("%s/%s/safety=%t", t.Document, t.Technique, t.SafetyEnabled)
}

// Failed reports whether a round returned an error.
func (t *Trajectory) Failed() bool {
	return t.Error != ""
}

// Outputs returns the text produced by each round.
func (t *Trajectory) Outputs() []string {
	return t.outputs
}

// Mode tags a matrix run.
type Mode string

const (
	ModeFull  Mode = "full"
	ModeQuick Mode = "quick"
)

// Metadata describes a matrix run.
type Metadata struct {
	Timestamp     time.Time `json:"timestamp"`
	Mode          Mode      `json:"mode"`
	TotalTests    int       `json:"total_tests"`
	Documents     int       `json:"documents"`
	Techniques    int       `json:"techniques"`
	MaxRounds     int       `json:"max_rounds"`
	SafetyModes   int       `json:"safety_modes"`
	ActualTests   int       `json:"actual_tests"`
	ExecutionTime float64   `json:"execution_time"` // seconds
}

// Results is the output of RunMatrix.
type Results struct {
	Metadata Metadata     `json:"metadata"`
	Tests    []Trajectory `json:"tests"`
}
