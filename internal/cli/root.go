package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/factgraph/internal/config"
	"github.com/lazypower/factgraph/internal/logging"
	"github.com/lazypower/factgraph/internal/store"
)

// app carries the global flags and the loaded configuration to every
// subcommand.
type app struct {
	configFile string
	dbPath     string
	workspace  string
	logLevel   string

	cfg config.Config
}

// NewRootCmd builds the factgraph command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "factgraph",
		Short: "Long-term fact memory for AI agents",
		Long: `factgraph keeps an agent's long-term memory in a single SQLite file:
entity facts with full-text search, aliases, a relation graph, a daily
relevance decay, and pruning of the agent's daily memory logs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.dbPath, "db-path", "", "path to facts.db (default: $FACTS_DB, then <workspace>/memory/facts.db)")
	flags.StringVar(&a.workspace, "workspace", "", "agent workspace root (default: $FACTGRAPH_WORKSPACE or cwd)")
	flags.StringVar(&a.configFile, "config", "", "YAML config file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newInitCmd(a),
		newMigrateCmd(a),
		newDecayCmd(a),
		newPruneCmd(a),
		newSeedCmd(a),
		newQueryCmd(a),
		newResolveCmd(a),
		newRelationsCmd(a),
		newStatsCmd(a),
		newExportCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI, printing any error to stderr.
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func (a *app) load() error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.workspace != "" {
		cfg.Workspace = a.workspace
	}
	a.cfg = cfg
	return nil
}

func (a *app) storePath() (string, error) {
	return a.cfg.ResolveDBPath(a.dbPath)
}

// openStore opens the existing store. A missing file is an error; only init
// creates one.
func (a *app) openStore() (*store.DB, error) {
	path, err := a.storePath()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(path)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("store not found at %s (run 'factgraph init' to create it)", path)
	}
	return db, err
}

// withStore opens the store for the duration of fn.
func (a *app) withStore(fn func(db *store.DB) error) error {
	db, err := a.openStore()
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func (a *app) logger() (*zap.Logger, error) {
	return logging.New(a.cfg.Log.Level)
}

func (a *app) resolveWorkspace() (string, error) {
	return a.cfg.ResolveWorkspace(a.workspace)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
