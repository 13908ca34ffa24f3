package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lazypower/factgraph/internal/store"
)

func newSeedCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "seed FILE",
		Short: "Load facts, aliases and relations from a YAML seed file",
		Long: `Insert the contents of a YAML seed file:

  facts:
    - {entity: Alice, key: timezone, value: Europe/Berlin, category: person}
  aliases:
    - {alias: ali, entity: Alice}
  relations:
    - {subject: Alice, predicate: maintains, object: gateway}

Rows already present are skipped, so seeding is safe to repeat.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := store.LoadSeedFile(args[0])
			if err != nil {
				return err
			}
			return a.withStore(func(db *store.DB) error {
				report, err := db.Seed(commandContext(cmd), set, dryRun)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, row := range []struct {
					name string
					c    store.SeedCount
				}{
					{"facts", report.Facts},
					{"aliases", report.Aliases},
					{"relations", report.Relations},
				} {
					fmt.Fprintf(out, "%-10s %d inserted, %d skipped\n", row.name, row.c.Inserted, row.c.Skipped)
				}
				if dryRun {
					fmt.Fprintln(out, "dry run: changes rolled back")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be inserted without writing")
	return cmd
}
