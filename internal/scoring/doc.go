// Package scoring measures how compressed a piece of markdown already is.
//
// A CompressionScorer computes six independent metrics over a text span and
// folds them into a single overall score in [0,1]:
//
//   - list_density: share of tokens on bullet, numbered or lettered list lines
//   - prose_ratio: share of tokens on lines that read as running prose
//   - avg_sentence_length: mean words per sentence after markdown is stripped
//   - redundancy: 1 minus the share of repeated 3-word phrases
//   - explanation_markers: count of scaffolding phrases such as "for example"
//   - information_entropy: Shannon entropy (bits) of the token id distribution
//
// The weighted sum is fixed:
//
//	0.40*list_density + 0.30*(1-prose_ratio) + 0.15*norm(sentence length)
//	+ 0.05*redundancy + 0.05*norm(markers) + 0.05*norm(entropy)
//
// Scores at or above 0.8 mark content as already compressed; callers must not
// compress it again.
//
// # Usage
//
//	counter, err := tokens.NewTiktoken()
//	if err != nil {
//	    return err
//	}
//	scorer, err := scoring.New(counter)
//	if err != nil {
//	    return err
//	}
//	result, err := scorer.Score(ctx, text)
//
// Scoring is deterministic and holds no mutable state, so a single scorer can
// be shared between goroutines. BatchScore fans independent texts out over a
// bounded worker pool.
package scoring
