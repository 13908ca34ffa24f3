package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/factgraph/internal/store"
)

func newQueryCmd(a *app) *cobra.Command {
	var (
		entity   string
		key      string
		category string
		limit    int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "query [TEXT]",
		Short: "Look up facts by entity, key, category or full-text search",
		Long: `Look up facts. With --entity (an alias works too) and optionally --key the
lookup is exact; --category lists a category; free TEXT runs a full-text
search over entity, key and value, best match first.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "" && entity == "" && category == "" {
				return errors.New("give search text, --entity or --category")
			}
			if key != "" && entity == "" {
				return errors.New("--key needs --entity")
			}

			return a.withStore(func(db *store.DB) error {
				ctx := commandContext(cmd)
				var facts []store.Fact

				switch {
				case entity != "":
					resolved, err := db.Resolve(ctx, entity)
					if err != nil {
						return err
					}
					if key != "" {
						f, err := db.GetFact(ctx, resolved, key)
						if err != nil {
							return err
						}
						if f != nil {
							facts = append(facts, *f)
						}
					} else if facts, err = db.FactsByEntity(ctx, resolved); err != nil {
						return err
					}
				case category != "":
					var err error
					if facts, err = db.FactsByCategory(ctx, category); err != nil {
						return err
					}
				default:
					var err error
					if facts, err = db.SearchFacts(ctx, text, limit); err != nil {
						return err
					}
				}

				out := cmd.OutOrStdout()
				if asJSON {
					if facts == nil {
						facts = []store.Fact{}
					}
					return writeJSON(out, facts)
				}
				if len(facts) == 0 {
					fmt.Fprintln(out, "no facts found")
					return nil
				}
				for _, f := range facts {
					printFact(out, f)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "entity name or alias")
	cmd.Flags().StringVar(&key, "key", "", "fact key (with --entity)")
	cmd.Flags().StringVar(&category, "category", "", "list facts in a category")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum search results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print facts as JSON")
	return cmd
}

func printFact(w io.Writer, f store.Fact) {
	heat := "permanent"
	if !f.Permanent && f.DecayScore != nil {
		heat = fmt.Sprintf("%.2f %s", *f.DecayScore, store.Classify(*f.DecayScore))
	}
	fmt.Fprintf(w, "%s.%s = %s  [%s] (%s)\n", f.Entity, f.Key, f.Value, f.Category, heat)
}

func newResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve NAME",
		Short: "Resolve a name or alias to its canonical entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(db *store.DB) error {
				ctx := commandContext(cmd)
				entity, err := db.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s -> %s\n", args[0], entity)

				aliases, err := db.AliasesFor(ctx, entity)
				if err != nil {
					return err
				}
				if len(aliases) > 0 {
					fmt.Fprintf(out, "aliases: %s\n", strings.Join(aliases, ", "))
				}
				return nil
			})
		},
	}
}

func newRelationsCmd(a *app) *cobra.Command {
	var (
		subject string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "relations [TEXT]",
		Short: "Show the relations of an entity or search relations",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if subject == "" && text == "" {
				return errors.New("give --subject or search text")
			}

			return a.withStore(func(db *store.DB) error {
				ctx := commandContext(cmd)
				out := cmd.OutOrStdout()

				if subject == "" {
					rels, err := db.SearchRelations(ctx, text, limit)
					if err != nil {
						return err
					}
					printRelations(out, rels, "no relations found")
					return nil
				}

				resolved, err := db.Resolve(ctx, subject)
				if err != nil {
					return err
				}
				from, err := db.RelationsFrom(ctx, resolved)
				if err != nil {
					return err
				}
				to, err := db.RelationsTo(ctx, resolved)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s:\n", resolved)
				printRelations(out, from, "  no outgoing relations")
				printRelations(out, to, "  no incoming relations")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "entity name or alias")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum search results")
	return cmd
}

func printRelations(w io.Writer, rels []store.Relation, empty string) {
	if len(rels) == 0 {
		fmt.Fprintln(w, empty)
		return
	}
	for _, r := range rels {
		fmt.Fprintf(w, "  %s --%s--> %s\n", r.Subject, r.Predicate, r.Object)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
