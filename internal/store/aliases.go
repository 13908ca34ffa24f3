package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Resolve maps a surface name to its canonical entity. It tries the alias
// table, then the fact entities (both case-insensitive), and otherwise
// returns name unchanged. An error means the store could not be read, never
// that the name is unknown.
//
// When one alias maps to several entities the earliest inserted mapping wins.
func (db *DB) Resolve(ctx context.Context, name string) (string, error) {
	for _, lookup := range []struct {
		table string
		query string
	}{
		{"aliases", "SELECT entity FROM aliases WHERE alias = ? COLLATE NOCASE ORDER BY rowid LIMIT 1"},
		{"facts", "SELECT entity FROM facts WHERE entity = ? COLLATE NOCASE ORDER BY id LIMIT 1"},
	} {
		ok, err := hasObject(ctx, db, "table", lookup.table)
		if err != nil {
			return "", fmt.Errorf("resolve %q: %w", name, err)
		}
		if !ok {
			continue
		}

		var entity string
		err = db.GetContext(ctx, &entity, lookup.query, name)
		if err == nil {
			return entity, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("resolve %q: %w", name, err)
		}
	}
	return name, nil
}

// AddAlias maps alias to entity and makes sure entity resolves to itself.
// It reports false when the mapping already existed.
func (db *DB) AddAlias(ctx context.Context, alias, entity string) (bool, error) {
	var inserted bool
	err := db.Apply(ctx, false, func(tx *sqlx.Tx) error {
		var err error
		inserted, err = addAlias(ctx, tx, alias, entity)
		return err
	})
	return inserted, err
}

func addAlias(ctx context.Context, q sqlx.ExecerContext, alias, entity string) (bool, error) {
	res, err := q.ExecContext(ctx,
		"INSERT OR IGNORE INTO aliases (alias, entity) VALUES (?, ?)", alias, entity)
	if err != nil {
		return false, fmt.Errorf("add alias: %w", err)
	}
	n, _ := res.RowsAffected()

	if _, err := q.ExecContext(ctx,
		"INSERT OR IGNORE INTO aliases (alias, entity) VALUES (?, ?)", entity, entity); err != nil {
		return false, fmt.Errorf("add self alias: %w", err)
	}
	return n > 0, nil
}

// AliasesFor lists the aliases that point at entity, in byte order.
func (db *DB) AliasesFor(ctx context.Context, entity string) ([]string, error) {
	var aliases []string
	err := db.SelectContext(ctx, &aliases,
		"SELECT alias FROM aliases WHERE entity = ? ORDER BY alias COLLATE BINARY", entity)
	if err != nil {
		return nil, fmt.Errorf("aliases for: %w", err)
	}
	return aliases, nil
}
