package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/factgraph/internal/store"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the store and bring its schema up to date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.storePath()
			if err != nil {
				return err
			}
			db, err := store.Create(path)
			if err != nil {
				return err
			}
			defer db.Close()

			report, err := db.Migrate(commandContext(cmd), false)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "store: %s\n", path)
			printMigration(out, report)
			return nil
		},
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply missing schema (tables, columns, indexes, FTS, triggers)",
		Long: `Bring an existing store up to the current schema. Every step checks the
live schema first, so stores left at any earlier version, or migrated out
of order, converge on the same result. With --dry-run the whole migration
runs inside a transaction that is rolled back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(db *store.DB) error {
				report, err := db.Migrate(commandContext(cmd), dryRun)
				if err != nil {
					return err
				}
				printMigration(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing")
	return cmd
}

func printMigration(w io.Writer, r *store.MigrationReport) {
	verb := "applied"
	if r.DryRun {
		verb = "would apply"
	}
	for _, s := range r.Steps {
		status := "exists"
		if s.Status == store.StepApplied {
			status = verb
		}
		fmt.Fprintf(w, "  %-40s %s\n", s.Name, status)
	}
	fmt.Fprintf(w, "%d %s, %d already present\n", r.Applied, verb, r.Existing)
	fmt.Fprintf(w, "tables: %s\n", strings.Join(r.Tables, ", "))
	for _, t := range r.Tables {
		if n, ok := r.Counts[t]; ok {
			fmt.Fprintf(w, "  %-20s %d rows\n", t, n)
		}
	}
	if r.DryRun {
		fmt.Fprintln(w, "dry run: nothing was written")
	}
}
