package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Pending is a batch whose statements have all run but whose effect is not
// yet durable. Exactly one of Commit or Discard finalizes it.
type Pending struct {
	tx *sqlx.Tx
}

// Commit makes the batch durable.
func (p *Pending) Commit() error {
	if err := p.tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Discard throws the batch away. Nothing it did is observable afterwards.
func (p *Pending) Discard() error {
	if err := p.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("discard batch: %w", err)
	}
	return nil
}

// Stage runs fn as one batch and returns it pending. If fn fails the batch
// is discarded and the error returned.
//
// fn must only use the transaction it is handed: the pool holds a single
// connection, so touching db inside fn blocks.
func (db *DB) Stage(ctx context.Context, fn func(tx *sqlx.Tx) error) (*Pending, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	p := &Pending{tx: tx}
	if err := fn(tx); err != nil {
		p.Discard()
		return nil, err
	}
	return p, nil
}

// Apply stages fn and then commits it, or discards it when dryRun is set.
func (db *DB) Apply(ctx context.Context, dryRun bool, fn func(tx *sqlx.Tx) error) error {
	p, err := db.Stage(ctx, fn)
	if err != nil {
		return err
	}
	if dryRun {
		return p.Discard()
	}
	return p.Commit()
}
