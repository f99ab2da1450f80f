// Package safety decides whether a compressed rewrite may replace the
// original document.
//
// A Validator runs a pre-check on the original (already-compressed text is
// refused outright) and then three independent checks on the pair: entity
// preservation, minimal token benefit and semantic similarity. Zero failed
// checks accept the rewrite, one asks for review and two or more refuse it.
//
// Backend errors during a check fail that check; they never pass silently.
package safety
