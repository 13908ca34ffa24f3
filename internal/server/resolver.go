package server

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lazypower/factgraph/internal/store"
)

const defaultCacheSize = 1024

// resolver caches alias resolution, keyed on the name exactly as given.
// Entries are never invalidated; the server does not write aliases.
type resolver struct {
	db    *store.DB
	cache *lru.Cache[string, string]
}

func newResolver(db *store.DB, size int) (*resolver, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create resolver cache: %w", err)
	}
	return &resolver{db: db, cache: cache}, nil
}

func (r *resolver) Resolve(ctx context.Context, name string) (string, error) {
	if entity, ok := r.cache.Get(name); ok {
		return entity, nil
	}
	entity, err := r.db.Resolve(ctx, name)
	if err != nil {
		return "", err
	}
	r.cache.Add(name, entity)
	return entity, nil
}
