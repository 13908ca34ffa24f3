package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const (
	DecayRate     = 0.95 // per-run multiplier
	DecayFloor    = 0.01 // scores never drop below this
	ColdThreshold = 0.10 // strictly below is cold
	HotThreshold  = 0.90 // at or above is hot
)

// Heat is the derived view of a decay score.
type Heat string

const (
	Hot  Heat = "hot"
	Warm Heat = "warm"
	Cold Heat = "cold"
)

// Classify maps a decay score to its heat band.
func Classify(score float64) Heat {
	switch {
	case score >= HotThreshold:
		return Hot
	case score < ColdThreshold:
		return Cold
	default:
		return Warm
	}
}

// NextScore is one decay step applied to score.
func NextScore(score float64) float64 {
	return max(DecayFloor, score*DecayRate)
}

// DecayReport describes one Decay run.
type DecayReport struct {
	DryRun          bool  `json:"dry_run"`
	ColumnAdded     bool  `json:"column_added"`
	NullInitialized int64 `json:"null_initialized"`
	Decayed         int64 `json:"decayed"`
}

// Decay applies one decay step to every non-permanent fact. Scores that were
// never set start at 1.0 before the step. The store keeps no record of when
// it last ran; calling Decay twice decays twice.
func (db *DB) Decay(ctx context.Context, dryRun bool) (*DecayReport, error) {
	report := &DecayReport{DryRun: dryRun}
	err := db.Apply(ctx, dryRun, func(tx *sqlx.Tx) error {
		status, err := runStep(ctx, tx, decayScoreStep())
		if err != nil {
			return err
		}
		report.ColumnAdded = status == StepApplied

		res, err := tx.ExecContext(ctx, `
			UPDATE facts SET decay_score = 1.0
			WHERE decay_score IS NULL AND (permanent = 0 OR permanent IS NULL)
		`)
		if err != nil {
			return fmt.Errorf("initialize decay scores: %w", err)
		}
		report.NullInitialized, _ = res.RowsAffected()

		res, err = tx.ExecContext(ctx, `
			UPDATE facts SET decay_score = MAX(?, decay_score * ?)
			WHERE permanent = 0 OR permanent IS NULL
		`, DecayFloor, DecayRate)
		if err != nil {
			return fmt.Errorf("decay facts: %w", err)
		}
		report.Decayed, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ColdestFacts returns up to n cold, non-permanent facts, coldest first.
func (db *DB) ColdestFacts(ctx context.Context, n int) ([]Fact, error) {
	var facts []Fact
	err := db.SelectContext(ctx, &facts, `
		SELECT `+factColumns+`
		FROM facts
		WHERE (permanent = 0 OR permanent IS NULL) AND decay_score < ?
		ORDER BY decay_score ASC, id
		LIMIT ?
	`, ColdThreshold, n)
	if err != nil {
		return nil, fmt.Errorf("coldest facts: %w", err)
	}
	return facts, nil
}

// HotFacts returns up to n facts worth surfacing first: permanent facts,
// then hot facts by descending score.
func (db *DB) HotFacts(ctx context.Context, n int) ([]Fact, error) {
	var facts []Fact
	err := db.SelectContext(ctx, &facts, `
		SELECT `+factColumns+`
		FROM facts
		WHERE permanent = 1 OR decay_score >= ?
		ORDER BY permanent DESC, decay_score DESC, id
		LIMIT ?
	`, HotThreshold, n)
	if err != nil {
		return nil, fmt.Errorf("hot facts: %w", err)
	}
	return facts, nil
}
