package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawDB(t *testing.T) *DB {
	t.Helper()
	db, err := openMemoryRaw()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func schemaSnapshot(t *testing.T, db *DB) []string {
	t.Helper()
	var rows []string
	err := db.Select(&rows, "SELECT type || ' ' || name FROM sqlite_master ORDER BY type, name")
	require.NoError(t, err)
	return rows
}

func TestMigrateFresh(t *testing.T) {
	db := rawDB(t)

	report, err := db.Migrate(context.Background(), false)
	require.NoError(t, err)

	assert.False(t, report.DryRun)
	// relations is created with its weight column, so that step finds it.
	assert.Equal(t, len(schemaSteps)-1, report.Applied)
	assert.Equal(t, 1, report.Existing)
	for _, s := range report.Steps {
		want := StepApplied
		if s.Name == "column relations.weight" {
			want = StepExists
		}
		assert.Equal(t, want, s.Status, s.Name)
	}
	assert.Contains(t, report.Tables, "facts")
	assert.Contains(t, report.Tables, "relations_fts")
	assert.Equal(t, map[string]int{"facts": 0, "co_occurrences": 0, "aliases": 0, "relations": 0}, report.Counts)
}

func TestMigrateIdempotent(t *testing.T) {
	ctx := context.Background()
	db := rawDB(t)

	_, err := db.Migrate(ctx, false)
	require.NoError(t, err)
	before := schemaSnapshot(t, db)

	report, err := db.Migrate(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Applied)
	assert.Equal(t, len(schemaSteps), report.Existing)
	for _, s := range report.Steps {
		assert.Equal(t, StepExists, s.Status, s.Name)
	}
	assert.Equal(t, before, schemaSnapshot(t, db))
}

func TestMigrateDryRunMatchesRealRun(t *testing.T) {
	ctx := context.Background()
	db := rawDB(t)

	dry, err := db.Migrate(ctx, true)
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	assert.Empty(t, schemaSnapshot(t, db), "dry run left schema behind")

	applied, err := db.Migrate(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, dry.Steps, applied.Steps)
	assert.Equal(t, dry.Applied, applied.Applied)
}

func TestMigrateDryRunOnCurrentStore(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	_, err := db.InsertFact(ctx, &Fact{Entity: "Alice", Key: "k", Value: "v"})
	require.NoError(t, err)

	report, err := db.Migrate(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Applied)
	assert.Equal(t, 1, report.Counts["facts"])
}

func TestMigrateLegacyStore(t *testing.T) {
	ctx := context.Background()
	db := rawDB(t)

	// A store from before decay, aliases and the relation graph existed.
	_, err := db.Exec(`
		CREATE TABLE facts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT 'other',
			source TEXT,
			permanent INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			last_accessed TEXT
		);
		INSERT INTO facts (entity, key, value, category, permanent)
		VALUES ('Alice', 'birthday', 'March 15', 'date', 1),
		       ('Project', 'stack', 'Go and SQLite', 'project', 0);
	`)
	require.NoError(t, err)

	report, err := db.Migrate(ctx, false)
	require.NoError(t, err)

	statuses := map[string]StepStatus{}
	for _, s := range report.Steps {
		statuses[s.Name] = s.Status
	}
	assert.Equal(t, StepExists, statuses["table facts"])
	assert.Equal(t, StepExists, statuses["column facts.last_accessed"])
	assert.Equal(t, StepApplied, statuses["column facts.decay_score"])
	assert.Equal(t, StepApplied, statuses["table relations"])
	assert.Equal(t, 2, report.Counts["facts"])

	// Existing rows are searchable once the shadow index is built.
	facts, err := db.SearchFacts(ctx, "sqlite", 10)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "Project", facts[0].Entity)

	f, err := db.GetFact(ctx, "Project", "stack")
	require.NoError(t, err)
	assert.Equal(t, 0.5, f.Importance)
}

func TestMigratePartialOutOfOrder(t *testing.T) {
	ctx := context.Background()
	db := rawDB(t)

	// Later steps present without earlier ones, and a relations table that
	// predates the weight column.
	_, err := db.Exec(`
		CREATE TABLE aliases (alias TEXT NOT NULL COLLATE NOCASE, entity TEXT NOT NULL, PRIMARY KEY (alias, entity));
		CREATE TABLE relations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subject TEXT NOT NULL, predicate TEXT NOT NULL, object TEXT NOT NULL,
			source TEXT, created_at TEXT,
			UNIQUE (subject, predicate, object)
		);
		INSERT INTO relations (subject, predicate, object) VALUES ('Alice', 'partner_of', 'Bob');
		CREATE INDEX idx_relations_object ON relations(object);
	`)
	require.NoError(t, err)

	report, err := db.Migrate(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Existing)
	assert.Equal(t, len(schemaSteps)-3, report.Applied)

	rels, err := db.SearchRelations(ctx, "partner_of", 0)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, 1.0, rels[0].Weight)

	again, err := db.Migrate(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Applied)
}

func TestMigratePartialTriggers(t *testing.T) {
	ctx := context.Background()
	db := rawDB(t)
	_, err := db.Migrate(ctx, false)
	require.NoError(t, err)

	_, err = db.Exec("DROP TRIGGER relations_au")
	require.NoError(t, err)

	report, err := db.Migrate(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)

	ok, err := hasObject(ctx, db, "trigger", "relations_au")
	require.NoError(t, err)
	assert.True(t, ok)
}

// A store whose shadow index predates its triggers holds rows the index
// never saw. Adding the triggers must reindex them before any update or
// delete tries to remove their entries.
func TestMigrateIndexWithoutTriggers(t *testing.T) {
	ctx := context.Background()
	db := rawDB(t)
	for _, stmt := range []string{
		`CREATE TABLE relations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subject TEXT NOT NULL, predicate TEXT NOT NULL, object TEXT NOT NULL,
			source TEXT, created_at TEXT DEFAULT (datetime('now')),
			UNIQUE (subject, predicate, object))`,
		`CREATE VIRTUAL TABLE relations_fts USING fts5(
			subject, predicate, object, content=relations, content_rowid=id)`,
		`INSERT INTO relations (subject, predicate, object) VALUES ('Alice', 'partner_of', 'Bob')`,
		`CREATE TABLE facts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity TEXT NOT NULL, key TEXT NOT NULL, value TEXT NOT NULL,
			category TEXT, source TEXT, permanent INTEGER DEFAULT 0)`,
		`CREATE VIRTUAL TABLE facts_fts USING fts5(
			entity, key, value, content=facts, content_rowid=id)`,
		`INSERT INTO facts (entity, key, value) VALUES ('Bob', 'city', 'Lisbon')`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	report, err := db.Migrate(ctx, false)
	require.NoError(t, err)
	for _, s := range report.Steps {
		switch s.Name {
		case "table relations_fts", "table facts_fts":
			assert.Equal(t, StepExists, s.Status, s.Name)
		case "triggers relations_ai/_ad/_au", "triggers facts_ai/_ad/_au":
			assert.Equal(t, StepApplied, s.Status, s.Name)
		}
	}

	rels, err := db.SearchRelations(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	require.NoError(t, db.UpdateRelation(ctx, rels[0].ID, "Alice", "married_to", "Bob"))

	rels, err = db.SearchRelations(ctx, "married", 10)
	require.NoError(t, err)
	assert.Len(t, rels, 1)
	rels, err = db.SearchRelations(ctx, "partner", 10)
	require.NoError(t, err)
	assert.Empty(t, rels)

	facts, err := db.SearchFacts(ctx, "lisbon", 10)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	_, err = db.Exec("DELETE FROM facts WHERE id = ?", facts[0].ID)
	require.NoError(t, err)

	var check string
	require.NoError(t, db.Get(&check, "PRAGMA integrity_check"))
	assert.Equal(t, "ok", check)
	_, err = db.Exec("INSERT INTO relations_fts(relations_fts) VALUES ('integrity-check')")
	assert.NoError(t, err)
	_, err = db.Exec("INSERT INTO facts_fts(facts_fts) VALUES ('integrity-check')")
	assert.NoError(t, err)
}
