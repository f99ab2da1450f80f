package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dudley70/compression-framework/internal/audit"
	"github.com/Dudley70/compression-framework/internal/drift"
	"github.com/Dudley70/compression-framework/internal/logging"
	"github.com/Dudley70/compression-framework/internal/safety"
	"github.com/Dudley70/compression-framework/internal/watch"
)

var (
	watchDebounce time.Duration
	auditLimit    int
)

func init() {
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(auditCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "quiet period before a changed file is checked (default watch.debounce)")
	auditCmd.Flags().IntVar(&auditLimit, "limit", audit.DefaultListLimit, "number of entries to show")
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir>...",
	Short: "Report token drift as markdown files change",
	Long: `Watch directories and re-check each markdown file for drift once its
writes settle. Runs until interrupted. Only files that are tracked and have
drifted past the flag band are printed, unless --json is set.

Examples:
  ctxcompress watch docs
  ctxcompress watch --debounce 2s docs notes`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	d, err := current.driftDetector()
	if err != nil {
		return err
	}
	debounce := watchDebounce
	if debounce <= 0 {
		debounce = current.cfg.Watch.Debounce.Duration()
	}
	w, err := watch.New(d, watch.WithDebounce(debounce), watch.WithLogger(current.logger))
	if err != nil {
		return err
	}
	defer w.Stop()
	if err := w.Add(args...); err != nil {
		return err
	}

	ctx := logging.WithOperation(cmd.Context(), "watch")
	if err := w.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "watching %d directories for markdown changes\n", len(args))

	out := cmd.OutOrStdout()
	for ev := range w.Events() {
		switch {
		case jsonOutput:
			if err := printJSON(out, watchEvent(ev)); err != nil {
				return err
			}
		case ev.Err != nil:
			fmt.Fprintf(out, "%s: %v\n", ev.Path, ev.Err)
		case ev.Result.Recommendation != drift.RecommendNone && ev.Result.Recommendation != drift.RecommendUntracked:
			fmt.Fprintf(out, "%s: %s (%s)\n", ev.Path, ev.Result.Recommendation, ev.Result.Explanation)
		}
	}
	return nil
}

// watchLine is the JSON form of a watch event.
type watchLine struct {
	Path   string        `json:"path"`
	Result *drift.Result `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

func watchEvent(ev watch.Event) watchLine {
	if ev.Err != nil {
		return watchLine{Path: ev.Path, Error: ev.Err.Error()}
	}
	r := ev.Result
	return watchLine{Path: ev.Path, Result: &r}
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent safety verdicts",
	Long: `List the most recent verdicts recorded in the audit log together with
totals per recommendation. Verdicts are recorded when audit.enabled is set.

Examples:
  ctxcompress audit
  ctxcompress audit --limit 10 --json`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

// auditOutput is the JSON output of audit.
type auditOutput struct {
	Entries []audit.Entry                 `json:"entries"`
	Counts  map[safety.Recommendation]int `json:"counts"`
}

func runAudit(cmd *cobra.Command, _ []string) error {
	if auditLimit < 1 {
		return errors.New("--limit must be positive")
	}
	store, err := current.auditStore()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	entries, err := store.List(ctx, auditLimit)
	if err != nil {
		return err
	}
	counts, err := store.Counts(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), auditOutput{Entries: entries, Counts: counts})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "accept: %d  warn: %d  refuse: %d\n\n",
		counts[safety.RecommendAccept], counts[safety.RecommendWarn], counts[safety.RecommendRefuse])
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tRECOMMENDATION\tDOCUMENT\tFAILURES")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", e.CreatedAt.Format(time.RFC3339), e.Recommendation, e.Document, len(e.Failures))
	}
	return tw.Flush()
}
