package store

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"gopkg.in/yaml.v3"
)

// AliasSeed maps a surface name to a canonical entity.
type AliasSeed struct {
	Alias  string `yaml:"alias" json:"alias"`
	Entity string `yaml:"entity" json:"entity"`
}

// SeedSet is the content of a seed file.
type SeedSet struct {
	Facts     []Fact      `yaml:"facts"`
	Aliases   []AliasSeed `yaml:"aliases"`
	Relations []Relation  `yaml:"relations"`
}

// Empty reports whether the set has nothing to seed.
func (s *SeedSet) Empty() bool {
	return len(s.Facts) == 0 && len(s.Aliases) == 0 && len(s.Relations) == 0
}

// SeedCount is the outcome for one kind of row.
type SeedCount struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// SeedReport describes a Seed run.
type SeedReport struct {
	DryRun    bool      `json:"dry_run"`
	Facts     SeedCount `json:"facts"`
	Aliases   SeedCount `json:"aliases"`
	Relations SeedCount `json:"relations"`
}

// LoadSeedFile reads a YAML seed file.
func LoadSeedFile(path string) (*SeedSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var set SeedSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	for i, f := range set.Facts {
		if f.Entity == "" || f.Key == "" || f.Value == "" {
			return nil, fmt.Errorf("seed file %s: fact %d needs entity, key and value", path, i+1)
		}
	}
	for i, r := range set.Relations {
		if r.Subject == "" || r.Predicate == "" || r.Object == "" {
			return nil, fmt.Errorf("seed file %s: relation %d needs subject, predicate and object", path, i+1)
		}
	}
	return &set, nil
}

// Seed inserts every row of set that is not already present, as one batch.
// Duplicates are counted as skipped.
func (db *DB) Seed(ctx context.Context, set *SeedSet, dryRun bool) (*SeedReport, error) {
	report := &SeedReport{DryRun: dryRun}
	err := db.Apply(ctx, dryRun, func(tx *sqlx.Tx) error {
		for i := range set.Facts {
			f := set.Facts[i]
			ok, err := insertFact(ctx, tx, &f)
			if err != nil {
				return err
			}
			report.Facts.tally(ok)
		}
		for _, a := range set.Aliases {
			ok, err := addAlias(ctx, tx, a.Alias, a.Entity)
			if err != nil {
				return err
			}
			report.Aliases.tally(ok)
		}
		for i := range set.Relations {
			r := set.Relations[i]
			ok, err := addRelation(ctx, tx, &r)
			if err != nil {
				return err
			}
			report.Relations.tally(ok)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (c *SeedCount) tally(inserted bool) {
	if inserted {
		c.Inserted++
	} else {
		c.Skipped++
	}
}
