package store

import (
	"context"
	"fmt"
)

// CategoryCount is the number of facts in one category.
type CategoryCount struct {
	Category string `db:"category" json:"category"`
	Count    int    `db:"n" json:"count"`
}

// Stats summarizes the store. Decay figures cover non-permanent facts only;
// a NULL permanent flag counts as non-permanent, as it does for Decay.
type Stats struct {
	Total      int             `db:"total" json:"total"`
	Permanent  int             `db:"permanent" json:"permanent"`
	Decaying   int             `db:"decaying" json:"decaying"`
	Hot        int             `db:"hot" json:"hot"`
	Cold       int             `db:"cold" json:"cold"`
	AvgScore   float64         `db:"avg_score" json:"avg_score"`
	MinScore   float64         `db:"min_score" json:"min_score"`
	Relations  int             `db:"-" json:"relations"`
	Aliases    int             `db:"-" json:"aliases"`
	Categories []CategoryCount `db:"-" json:"categories"`
}

// Stats computes aggregate counts over facts, relations and aliases.
func (db *DB) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := db.GetContext(ctx, &s, `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(permanent = 1), 0) AS permanent,
			COALESCE(SUM(permanent = 0 OR permanent IS NULL), 0) AS decaying,
			COALESCE(SUM((permanent = 0 OR permanent IS NULL) AND decay_score >= ?), 0) AS hot,
			COALESCE(SUM((permanent = 0 OR permanent IS NULL) AND decay_score < ?), 0) AS cold,
			COALESCE(AVG(CASE WHEN permanent = 0 OR permanent IS NULL THEN decay_score END), 0.0) AS avg_score,
			COALESCE(MIN(CASE WHEN permanent = 0 OR permanent IS NULL THEN decay_score END), 0.0) AS min_score
		FROM facts
	`, HotThreshold, ColdThreshold)
	if err != nil {
		return nil, fmt.Errorf("fact stats: %w", err)
	}

	err = db.SelectContext(ctx, &s.Categories, `
		SELECT COALESCE(category, 'other') AS category, COUNT(*) AS n
		FROM facts GROUP BY category ORDER BY n DESC, category
	`)
	if err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}

	counts, err := rowCounts(ctx, db, "relations", "aliases")
	if err != nil {
		return nil, err
	}
	s.Relations = counts["relations"]
	s.Aliases = counts["aliases"]
	return &s, nil
}
