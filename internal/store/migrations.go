package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// StepStatus says what a schema step did (or would do) in a run.
type StepStatus string

const (
	StepExists  StepStatus = "exists"
	StepApplied StepStatus = "applied"
)

// StepResult is the outcome of one schema step.
type StepResult struct {
	Name   string     `json:"name"`
	Status StepStatus `json:"status"`
}

// MigrationReport describes a Migrate run. For a dry run it describes what
// a real run would do; nothing it reports was kept.
type MigrationReport struct {
	DryRun   bool           `json:"dry_run"`
	Steps    []StepResult   `json:"steps"`
	Applied  int            `json:"applied"`
	Existing int            `json:"existing"`
	Tables   []string       `json:"tables"`
	Counts   map[string]int `json:"counts"`
}

// step is one additive schema change. exists inspects the live schema;
// stmts run only when it reports false. Every step is safe on a store where
// any other subset of steps has already been applied.
type step struct {
	name   string
	exists func(ctx context.Context, q sqlx.QueryerContext) (bool, error)
	stmts  []string
}

func tableStep(name string, stmts ...string) step {
	return step{
		name:   "table " + name,
		exists: func(ctx context.Context, q sqlx.QueryerContext) (bool, error) { return hasObject(ctx, q, "table", name) },
		stmts:  stmts,
	}
}

func columnStep(table, column, definition string) step {
	return step{
		name: fmt.Sprintf("column %s.%s", table, column),
		exists: func(ctx context.Context, q sqlx.QueryerContext) (bool, error) {
			return hasColumn(ctx, q, table, column)
		},
		stmts: []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)},
	}
}

func indexStep(name, on string) step {
	return step{
		name:   "index " + name,
		exists: func(ctx context.Context, q sqlx.QueryerContext) (bool, error) { return hasObject(ctx, q, "index", name) },
		stmts:  []string{fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s", name, on)},
	}
}

// triggerStep groups the sync triggers of one shadow index. It counts as
// existing only when all of them do; each statement is guarded on its own.
// Rows written while a trigger was missing never reached the index, so
// applying the step also rebuilds it.
func triggerStep(name string, triggers map[string]string) step {
	var stmts []string
	for _, t := range []string{name + "_ai", name + "_ad", name + "_au"} {
		stmts = append(stmts, triggers[t])
	}
	stmts = append(stmts, fmt.Sprintf("INSERT INTO %[1]s_fts(%[1]s_fts) VALUES ('rebuild')", name))
	return step{
		name: "triggers " + name + "_ai/_ad/_au",
		exists: func(ctx context.Context, q sqlx.QueryerContext) (bool, error) {
			for _, t := range []string{name + "_ai", name + "_ad", name + "_au"} {
				ok, err := hasObject(ctx, q, "trigger", t)
				if err != nil || !ok {
					return false, err
				}
			}
			return true, nil
		},
		stmts: stmts,
	}
}

func decayScoreStep() step {
	return columnStep("facts", "decay_score", "REAL")
}

var schemaSteps = []step{
	tableStep("facts", `
CREATE TABLE IF NOT EXISTS facts (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    entity     TEXT NOT NULL,
    key        TEXT NOT NULL,
    value      TEXT NOT NULL,
    category   TEXT NOT NULL DEFAULT 'other',
    source     TEXT,
    permanent  INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
)`),
	columnStep("facts", "last_accessed", "TEXT"),
	decayScoreStep(),
	columnStep("facts", "activation", "REAL DEFAULT 0.0"),
	columnStep("facts", "importance", "REAL DEFAULT 0.5"),
	indexStep("idx_facts_entity", "facts(entity)"),
	indexStep("idx_facts_category", "facts(category)"),

	// The shadow index only holds tokens; content stays in facts. The rebuild
	// covers rows that predate the index.
	tableStep("facts_fts", `
CREATE VIRTUAL TABLE IF NOT EXISTS facts_fts USING fts5(
    entity, key, value,
    content=facts,
    content_rowid=id
)`,
		`INSERT INTO facts_fts(facts_fts) VALUES ('rebuild')`),
	triggerStep("facts", map[string]string{
		"facts_ai": `
CREATE TRIGGER IF NOT EXISTS facts_ai AFTER INSERT ON facts BEGIN
    INSERT INTO facts_fts(rowid, entity, key, value)
    VALUES (new.id, new.entity, new.key, new.value);
END`,
		"facts_ad": `
CREATE TRIGGER IF NOT EXISTS facts_ad AFTER DELETE ON facts BEGIN
    INSERT INTO facts_fts(facts_fts, rowid, entity, key, value)
    VALUES ('delete', old.id, old.entity, old.key, old.value);
END`,
		"facts_au": `
CREATE TRIGGER IF NOT EXISTS facts_au AFTER UPDATE OF entity, key, value ON facts BEGIN
    INSERT INTO facts_fts(facts_fts, rowid, entity, key, value)
    VALUES ('delete', old.id, old.entity, old.key, old.value);
    INSERT INTO facts_fts(rowid, entity, key, value)
    VALUES (new.id, new.entity, new.key, new.value);
END`,
	}),

	// Reserved: nothing populates or reads co_occurrences yet.
	tableStep("co_occurrences", `
CREATE TABLE IF NOT EXISTS co_occurrences (
    fact_a     INTEGER NOT NULL,
    fact_b     INTEGER NOT NULL,
    weight     REAL DEFAULT 1.0,
    last_wired TEXT,
    PRIMARY KEY (fact_a, fact_b),
    FOREIGN KEY (fact_a) REFERENCES facts(id),
    FOREIGN KEY (fact_b) REFERENCES facts(id)
)`),
	indexStep("idx_co_occ_a", "co_occurrences(fact_a)"),
	indexStep("idx_co_occ_b", "co_occurrences(fact_b)"),

	tableStep("aliases", `
CREATE TABLE IF NOT EXISTS aliases (
    alias  TEXT NOT NULL COLLATE NOCASE,
    entity TEXT NOT NULL COLLATE NOCASE,
    PRIMARY KEY (alias, entity)
)`),
	indexStep("idx_aliases_entity", "aliases(entity)"),

	tableStep("relations", `
CREATE TABLE IF NOT EXISTS relations (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    subject    TEXT NOT NULL,
    predicate  TEXT NOT NULL,
    object     TEXT NOT NULL,
    weight     REAL DEFAULT 1.0,
    source     TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    UNIQUE (subject, predicate, object)
)`),
	columnStep("relations", "weight", "REAL DEFAULT 1.0"),
	indexStep("idx_relations_subject", "relations(subject)"),
	indexStep("idx_relations_predicate", "relations(predicate)"),
	indexStep("idx_relations_object", "relations(object)"),

	tableStep("relations_fts", `
CREATE VIRTUAL TABLE IF NOT EXISTS relations_fts USING fts5(
    subject, predicate, object,
    content=relations,
    content_rowid=id
)`,
		`INSERT INTO relations_fts(relations_fts) VALUES ('rebuild')`),
	triggerStep("relations", map[string]string{
		"relations_ai": `
CREATE TRIGGER IF NOT EXISTS relations_ai AFTER INSERT ON relations BEGIN
    INSERT INTO relations_fts(rowid, subject, predicate, object)
    VALUES (new.id, new.subject, new.predicate, new.object);
END`,
		"relations_ad": `
CREATE TRIGGER IF NOT EXISTS relations_ad AFTER DELETE ON relations BEGIN
    INSERT INTO relations_fts(relations_fts, rowid, subject, predicate, object)
    VALUES ('delete', old.id, old.subject, old.predicate, old.object);
END`,
		"relations_au": `
CREATE TRIGGER IF NOT EXISTS relations_au AFTER UPDATE ON relations BEGIN
    INSERT INTO relations_fts(relations_fts, rowid, subject, predicate, object)
    VALUES ('delete', old.id, old.subject, old.predicate, old.object);
    INSERT INTO relations_fts(rowid, subject, predicate, object)
    VALUES (new.id, new.subject, new.predicate, new.object);
END`,
	}),
}

// Migrate brings the store to the current shape. Each step checks its own
// precondition against the live schema, so the run is idempotent and
// tolerates any partially migrated or hand-edited store. All steps run as
// one batch; with dryRun the batch is discarded after reporting.
func (db *DB) Migrate(ctx context.Context, dryRun bool) (*MigrationReport, error) {
	report := &MigrationReport{DryRun: dryRun}
	err := db.Apply(ctx, dryRun, func(tx *sqlx.Tx) error {
		for _, s := range schemaSteps {
			status, err := runStep(ctx, tx, s)
			if err != nil {
				return err
			}
			report.Steps = append(report.Steps, StepResult{Name: s.name, Status: status})
			if status == StepApplied {
				report.Applied++
			} else {
				report.Existing++
			}
		}

		var err error
		if report.Tables, err = listTables(ctx, tx); err != nil {
			return err
		}
		report.Counts, err = rowCounts(ctx, tx, "facts", "co_occurrences", "aliases", "relations")
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func runStep(ctx context.Context, tx *sqlx.Tx, s step) (StepStatus, error) {
	ok, err := s.exists(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("check %s: %w", s.name, err)
	}
	if ok {
		return StepExists, nil
	}
	for _, stmt := range s.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return "", fmt.Errorf("apply %s: %w", s.name, err)
		}
	}
	return StepApplied, nil
}

func hasObject(ctx context.Context, q sqlx.QueryerContext, kind, name string) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?", kind, name)
	return n > 0, err
}

func hasColumn(ctx context.Context, q sqlx.QueryerContext, table, column string) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column)
	return n > 0, err
}

func listTables(ctx context.Context, q sqlx.QueryerContext) ([]string, error) {
	var tables []string
	err := sqlx.SelectContext(ctx, q, &tables,
		"SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

// rowCounts counts rows of the given tables; a missing table counts as 0.
func rowCounts(ctx context.Context, q sqlx.QueryerContext, tables ...string) (map[string]int, error) {
	counts := make(map[string]int, len(tables))
	for _, t := range tables {
		ok, err := hasObject(ctx, q, "table", t)
		if err != nil {
			return nil, err
		}
		if !ok {
			counts[t] = 0
			continue
		}
		var n int
		if err := sqlx.GetContext(ctx, q, &n, "SELECT COUNT(*) FROM "+t); err != nil {
			return nil, fmt.Errorf("count %s: %w", t, err)
		}
		counts[t] = n
	}
	return counts, nil
}
