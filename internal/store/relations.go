package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lazypower/factgraph/internal/fts"
)

// ErrNoRelation is returned when a relation id does not exist.
var ErrNoRelation = errors.New("relation not found")

// Relation is a directed, labelled edge: subject → predicate → object.
// The object may name another entity or be a literal value such as a port.
type Relation struct {
	ID        int64   `db:"id" json:"id" yaml:"-"`
	Subject   string  `db:"subject" json:"subject" yaml:"subject"`
	Predicate string  `db:"predicate" json:"predicate" yaml:"predicate"`
	Object    string  `db:"object" json:"object" yaml:"object"`
	Weight    float64 `db:"weight" json:"weight" yaml:"weight"`
	Source    string  `db:"source" json:"source" yaml:"source"`
	CreatedAt string  `db:"created_at" json:"created_at" yaml:"-"`
}

const relationColumns = `id, subject, predicate, object,
	COALESCE(weight, 1.0) AS weight,
	COALESCE(source, '') AS source,
	COALESCE(created_at, '') AS created_at`

// AddRelation inserts r. Re-asserting an existing triple is a no-op and
// reports false.
func (db *DB) AddRelation(ctx context.Context, r *Relation) (bool, error) {
	return addRelation(ctx, db, r)
}

func addRelation(ctx context.Context, q sqlx.ExecerContext, r *Relation) (bool, error) {
	weight := r.Weight
	if weight == 0 {
		weight = 1.0
	}
	res, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO relations (subject, predicate, object, weight, source)
		VALUES (?, ?, ?, ?, NULLIF(?, ''))
	`, r.Subject, r.Predicate, r.Object, weight, r.Source)
	if err != nil {
		return false, fmt.Errorf("add relation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	r.ID, _ = res.LastInsertId()
	r.Weight = weight
	return true, nil
}

// UpdateRelation rewrites the triple of an existing relation.
func (db *DB) UpdateRelation(ctx context.Context, id int64, subject, predicate, object string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE relations SET subject = ?, predicate = ?, object = ? WHERE id = ?
	`, subject, predicate, object, id)
	if err != nil {
		return fmt.Errorf("update relation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update relation %d: %w", id, ErrNoRelation)
	}
	return nil
}

// DeleteRelation removes a relation by id.
func (db *DB) DeleteRelation(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, "DELETE FROM relations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete relation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete relation %d: %w", id, ErrNoRelation)
	}
	return nil
}

// RelationsFrom returns the outgoing edges of subject.
func (db *DB) RelationsFrom(ctx context.Context, subject string) ([]Relation, error) {
	var rels []Relation
	err := db.SelectContext(ctx, &rels, `
		SELECT `+relationColumns+` FROM relations WHERE subject = ? ORDER BY predicate, object
	`, subject)
	if err != nil {
		return nil, fmt.Errorf("relations from: %w", err)
	}
	return rels, nil
}

// RelationsTo returns the incoming edges of object.
func (db *DB) RelationsTo(ctx context.Context, object string) ([]Relation, error) {
	var rels []Relation
	err := db.SelectContext(ctx, &rels, `
		SELECT `+relationColumns+` FROM relations WHERE object = ? ORDER BY predicate, subject
	`, object)
	if err != nil {
		return nil, fmt.Errorf("relations to: %w", err)
	}
	return rels, nil
}

// SearchRelations runs a full-text search over subject, predicate and
// object, best match first.
func (db *DB) SearchRelations(ctx context.Context, text string, limit int) ([]Relation, error) {
	match := fts.BuildOrQuery(text, nil, 1)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = -1
	}

	var rels []Relation
	err := db.SelectContext(ctx, &rels, `
		SELECT `+relationColumns+`
		FROM relations
		JOIN (SELECT rowid AS rid, rank FROM relations_fts WHERE relations_fts MATCH ?) m ON relations.id = m.rid
		ORDER BY m.rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("search relations: %w", err)
	}
	return rels, nil
}
