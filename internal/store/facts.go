package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lazypower/factgraph/internal/fts"
)

// ErrNoFact is returned when a fact id does not exist.
var ErrNoFact = errors.New("fact not found")

// Categories lists the category labels facts are expected to carry.
var Categories = []string{
	"person", "project", "decision", "convention", "credential",
	"preference", "date", "location", "other",
}

// Fact is an atomic (entity, key) → value assertion.
type Fact struct {
	ID           int64    `db:"id" json:"id" yaml:"-"`
	Entity       string   `db:"entity" json:"entity" yaml:"entity"`
	Key          string   `db:"key" json:"key" yaml:"key"`
	Value        string   `db:"value" json:"value" yaml:"value"`
	Category     string   `db:"category" json:"category" yaml:"category"`
	Source       string   `db:"source" json:"source" yaml:"source"`
	Permanent    bool     `db:"permanent" json:"permanent" yaml:"permanent"`
	DecayScore   *float64 `db:"decay_score" json:"decay_score,omitempty" yaml:"-"`
	Activation   float64  `db:"activation" json:"activation" yaml:"-"`
	Importance   float64  `db:"importance" json:"importance" yaml:"-"`
	LastAccessed *string  `db:"last_accessed" json:"last_accessed,omitempty" yaml:"-"`
}

const factColumns = `id, entity, key, value,
	COALESCE(category, 'other') AS category,
	COALESCE(source, '') AS source,
	COALESCE(permanent, 0) AS permanent,
	decay_score,
	COALESCE(activation, 0.0) AS activation,
	COALESCE(importance, 0.5) AS importance,
	last_accessed`

// GetFact returns the most recent value stored for (entity, key), or nil.
func (db *DB) GetFact(ctx context.Context, entity, key string) (*Fact, error) {
	var f Fact
	err := db.GetContext(ctx, &f, `
		SELECT `+factColumns+`
		FROM facts WHERE entity = ? AND key = ?
		ORDER BY id DESC LIMIT 1
	`, entity, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fact: %w", err)
	}
	return &f, nil
}

// FactsByEntity returns every fact about entity, ordered by key.
func (db *DB) FactsByEntity(ctx context.Context, entity string) ([]Fact, error) {
	var facts []Fact
	err := db.SelectContext(ctx, &facts, `
		SELECT `+factColumns+`
		FROM facts WHERE entity = ?
		ORDER BY key, id
	`, entity)
	if err != nil {
		return nil, fmt.Errorf("facts by entity: %w", err)
	}
	return facts, nil
}

// FactsByCategory returns every fact with the given category.
func (db *DB) FactsByCategory(ctx context.Context, category string) ([]Fact, error) {
	var facts []Fact
	err := db.SelectContext(ctx, &facts, `
		SELECT `+factColumns+`
		FROM facts WHERE category = ?
		ORDER BY entity, key, id
	`, category)
	if err != nil {
		return nil, fmt.Errorf("facts by category: %w", err)
	}
	return facts, nil
}

// SearchFacts runs a full-text search over entity, key and value, best
// match first. Text without searchable tokens yields no results.
func (db *DB) SearchFacts(ctx context.Context, text string, limit int) ([]Fact, error) {
	match := fts.BuildOrQuery(text, nil, 1)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = -1
	}

	var facts []Fact
	err := db.SelectContext(ctx, &facts, `
		SELECT `+factColumns+`
		FROM facts
		JOIN (SELECT rowid AS rid, rank FROM facts_fts WHERE facts_fts MATCH ?) m ON facts.id = m.rid
		ORDER BY m.rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("search facts: %w", err)
	}
	return facts, nil
}

// InsertFact stores f unless the same (entity, key, value) is already
// present. It reports whether a row was written and sets f.ID either way.
func (db *DB) InsertFact(ctx context.Context, f *Fact) (bool, error) {
	var inserted bool
	err := db.Apply(ctx, false, func(tx *sqlx.Tx) error {
		var err error
		inserted, err = insertFact(ctx, tx, f)
		return err
	})
	return inserted, err
}

func insertFact(ctx context.Context, q sqlx.ExtContext, f *Fact) (bool, error) {
	var existing int64
	err := sqlx.GetContext(ctx, q, &existing,
		"SELECT id FROM facts WHERE entity = ? AND key = ? AND value = ? LIMIT 1",
		f.Entity, f.Key, f.Value)
	if err == nil {
		f.ID = existing
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("check duplicate fact: %w", err)
	}

	category := f.Category
	if category == "" {
		category = "other"
	}
	// Permanent facts carry no decay score.
	var score *float64
	if !f.Permanent {
		one := 1.0
		score = &one
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO facts (entity, key, value, category, source, permanent, decay_score)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, ?)
	`, f.Entity, f.Key, f.Value, category, f.Source, f.Permanent, score)
	if err != nil {
		return false, fmt.Errorf("insert fact: %w", err)
	}
	f.ID, _ = res.LastInsertId()
	f.Category = category
	f.DecayScore = score
	return true, nil
}

// TouchFact records an access: last_accessed moves to now and, unless the
// fact is permanent, its decay score resets to 1.0.
func (db *DB) TouchFact(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE facts SET
			last_accessed = datetime('now'),
			decay_score = CASE WHEN permanent = 1 THEN decay_score ELSE 1.0 END
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("touch fact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("touch fact %d: %w", id, ErrNoFact)
	}
	return nil
}

// EntityNames returns the distinct fact entities, sorted.
func (db *DB) EntityNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := db.SelectContext(ctx, &names, "SELECT DISTINCT entity FROM facts ORDER BY entity"); err != nil {
		return nil, fmt.Errorf("entity names: %w", err)
	}
	return names, nil
}
