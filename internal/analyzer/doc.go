// Package analyzer classifies the compression state of a markdown document
// section by section.
//
// A document is split on H1-H3 headers, each section is scored with the
// compression scorer, and the per-section states are folded into an overall
// state (compressed, uncompressed, mixed, moderately_compressed or edited)
// together with a recommendation naming the sections worth compressing.
package analyzer
