// Package compression rewrites markdown into denser forms and gates every
// candidate through the safety validator.
//
// # Rewriters
//
// Three rewriters ship with the package, all deterministic and offline:
//   - mock: the parameter-driven rewrite behind MockCompressor. Low κ strips
//     explanatory scaffolding, low γ truncates long sentences and high σ
//     turns long paragraphs into bullets.
//   - rules: the rule tables in rules.toml (headers, abbreviations, symbols,
//     fragments, tables, scaffolding), each group also registered under its
//     own name. Fenced code, inline code, triple-quoted blocks and long
//     quoted strings are never rewritten.
//   - extractive: sentence selection per paragraph, structure preserved.
//
// A user rule file replaces the built-in tables:
//
//	rules, err := compression.LoadRulesFile("rules.toml")
//	if err != nil {
//	    return err
//	}
//	reg := compression.DefaultRegistry(rules)
//
// # Pipeline
//
// Service.Compress scores the original, refuses already compressed text
// without rewriting it, rewrites, validates and reports:
//
//	out, err := svc.Compress(ctx, compression.Request{
//	    Text:     body,
//	    Rewriter: "rules",
//	    Params:   compression.DefaultParams(),
//	})
//	if err != nil {
//	    return err
//	}
//	if out.Applied {
//	    body = out.Candidate
//	}
//
// A warn verdict is applied with NeedsReview set. A refuse verdict is never
// applied by the service.
//
// # Observability
//
// The service exports OpenTelemetry metrics and traces:
//   - ctxcompress.compression.operations_total (counter): attempts by rewriter and recommendation
//   - ctxcompress.compression.duration_seconds (histogram): rewrite plus validation time
//   - ctxcompress.compression.ratio (histogram): candidate/original token ratio
//   - ctxcompress.compression.errors_total (counter): failures by error type
package compression
