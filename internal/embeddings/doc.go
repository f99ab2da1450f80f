// Package embeddings turns text into dense vectors for semantic comparison.
//
// Three providers are available behind the Provider interface:
//
//   - fastembed: local ONNX sentence models (requires a cgo build)
//   - tei: a Text Embeddings Inference server reached over HTTP
//   - lexical: deterministic feature hashing of words and word pairs, for
//     offline runs and tests; it must be selected explicitly
//
// NewProvider builds the configured provider and, when a cache size is set,
// wraps it in a CachedProvider. A Comparator embeds two texts and reports
// their cosine similarity.
package embeddings
