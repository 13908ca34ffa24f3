package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lazypower/factgraph/internal/prune"
	"github.com/lazypower/factgraph/internal/store"
)

const coldestShown = 5

func newDecayCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "decay",
		Short: "Apply one daily relevance decay step to non-permanent facts",
		Long: fmt.Sprintf(`Multiply every non-permanent fact's decay score by %.2f, never going
below %.2f. Facts without a score start at 1.0. Run once a day; serve mode
schedules it.`, store.DecayRate, store.DecayFloor),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(db *store.DB) error {
				ctx := commandContext(cmd)
				report, err := db.Decay(ctx, dryRun)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if report.ColumnAdded {
					fmt.Fprintln(out, "added decay_score column")
				}
				fmt.Fprintf(out, "initialized %d facts, decayed %d facts\n", report.NullInitialized, report.Decayed)
				if dryRun {
					fmt.Fprintln(out, "dry run: changes rolled back")
					return nil
				}

				st, err := db.Stats(ctx)
				if err != nil {
					return err
				}
				printDecayStats(out, st)

				cold, err := db.ColdestFacts(ctx, coldestShown)
				if err != nil {
					return err
				}
				if len(cold) > 0 {
					fmt.Fprintln(out, "coldest:")
					for _, f := range cold {
						fmt.Fprintf(out, "  %.3f  %s.%s = %s\n", *f.DecayScore, f.Entity, f.Key, f.Value)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing")
	return cmd
}

func printDecayStats(w io.Writer, st *store.Stats) {
	fmt.Fprintf(w, "facts: %d (%d permanent, %d decaying)\n", st.Total, st.Permanent, st.Decaying)
	fmt.Fprintf(w, "hot (>= %.2f): %d  cold (< %.2f): %d\n", store.HotThreshold, st.Hot, store.ColdThreshold, st.Cold)
	fmt.Fprintf(w, "score avg: %.3f  min: %.3f\n", st.AvgScore, st.MinScore)
}

func newPruneCmd(a *app) *cobra.Command {
	var (
		dryRun  bool
		asJSON  bool
		preview int
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove expired observations from the daily memory logs",
		Long: `Scan <workspace>/memory/YYYY-MM-DD.md for tagged observation lines and drop
the ones past their retention window:

  importance >= 0.8        structural, never pruned, listed for promotion
  0.4 <= importance < 0.8  potential, pruned after 30 days
  importance < 0.4         contextual, pruned after 7 days

Files younger than 7 days are skipped. Untagged lines are never touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.resolveWorkspace()
			if err != nil {
				return err
			}
			logger, err := a.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			p, err := prune.New(ws, logger)
			if err != nil {
				return err
			}
			p.PreviewLimit = a.cfg.Prune.PreviewLimit
			if preview > 0 {
				p.PreviewLimit = preview
			}

			report, err := p.Run(dryRun)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, struct {
					*prune.Report
					Preview []prune.Candidate `json:"preview"`
				}{report, report.Preview()})
			}
			printPrune(out, p.Dir, report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report planned removals without rewriting files")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.Flags().IntVar(&preview, "preview", 0, "promotion candidates to show (default from config)")
	return cmd
}

func printPrune(w io.Writer, dir string, r *prune.Report) {
	fmt.Fprintf(w, "memory dir: %s\n", dir)
	for _, f := range r.Files {
		fmt.Fprintf(w, "  %s (%d days): %d pruned\n", f.Name, f.AgeDays, f.Pruned)
	}
	fmt.Fprintf(w, "pruned %d observations across %d files\n", r.TotalPruned, len(r.Files))

	shown := r.Preview()
	fmt.Fprintf(w, "promotion candidates: %d", len(r.Promoted))
	if len(shown) < len(r.Promoted) {
		fmt.Fprintf(w, " (showing %d)", len(shown))
	}
	fmt.Fprintln(w)
	for _, c := range shown {
		fmt.Fprintf(w, "  [%s] %s (%.2f): %s\n", c.Date, c.Type, c.Importance, c.Content)
	}
	if r.DryRun {
		fmt.Fprintln(w, "dry run: no files were rewritten")
	}
}
