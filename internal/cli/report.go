package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lazypower/factgraph/internal/store"
)

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(db *store.DB) error {
				st, err := db.Stats(commandContext(cmd))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "store: %s\n", db.Path)
				printDecayStats(out, st)
				fmt.Fprintf(out, "relations: %d  aliases: %d\n", st.Relations, st.Aliases)
				if len(st.Categories) > 0 {
					fmt.Fprintln(out, "categories:")
					for _, c := range st.Categories {
						fmt.Fprintf(out, "  %-12s %d\n", c.Category, c.Count)
					}
				}
				return nil
			})
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the graph viewer document (nodes, edges, facts, stats)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(db *store.DB) error {
				g, err := db.ExportGraph(commandContext(cmd))
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(g, "", "  ")
				if err != nil {
					return fmt.Errorf("encode graph: %w", err)
				}

				path := outPath
				if path == "" {
					path = filepath.Join(filepath.Dir(db.Path), "graph-data.json")
				}
				if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
					return fmt.Errorf("write graph: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d entities, %d relations, %d facts to %s\n",
					g.Stats.Entities, g.Stats.Relations, g.Stats.Facts, path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default: graph-data.json next to the store)")
	return cmd
}
