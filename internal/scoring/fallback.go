package scoring

import (
	"strings"
	"unicode/utf8"
)

var fallbackListPrefixes = []string{"-", "*", "•", "1.", "2."}

// FallbackScore estimates a compression score from line shape alone.
//
// It is the documented substitute used when the tokenizer fails while scoring a
// section: list-line share weighted 0.7 plus a short-line bonus weighted 0.3.
// Callers decide when to use it; Score never falls back on its own.
func FallbackScore(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}

	lines := strings.Split(text, "\n")
	listLines, nonBlank, totalLen := 0, 0, 0
	for _, line := range lines {
		totalLen += utf8.RuneCountInString(line)
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		nonBlank++
		for _, prefix := range fallbackListPrefixes {
			if strings.HasPrefix(trimmed, prefix) {
				listLines++
				break
			}
		}
	}
	if nonBlank == 0 {
		return 0
	}

	listRatio := float64(listLines) / float64(nonBlank)
	avgLineLen := float64(totalLen) / float64(len(lines))
	return clamp01(listRatio*0.7 + max(0, 1-avgLineLen/100)*0.3)
}
