package store

import (
	"context"
	"fmt"
	"sort"
)

// Node is one known entity in the exported graph.
type Node struct {
	ID       string `json:"id"`
	Category string `json:"category"`
}

// Edge is a relation whose endpoints are both known entities.
type Edge struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Predicate string `json:"predicate"`
}

// KeyValue is one fact as the graph viewer shows it.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GraphStats are the summary counts of an exported graph.
type GraphStats struct {
	Entities  int `json:"entities"`
	Relations int `json:"relations"`
	Facts     int `json:"facts"`
	Aliases   int `json:"aliases"`
}

// Graph is the document consumed by the graph viewer.
type Graph struct {
	Nodes []Node                `json:"nodes"`
	Edges []Edge                `json:"edges"`
	Facts map[string][]KeyValue `json:"facts"`
	Stats GraphStats            `json:"stats"`
}

// ExportGraph builds the viewer document. Known entities are fact entities,
// relation subjects, and relation objects that are themselves one of those.
// Relations pointing at literal values are left out of the edges.
func (db *DB) ExportGraph(ctx context.Context) (*Graph, error) {
	var factRows []struct {
		Entity   string `db:"entity"`
		Key      string `db:"key"`
		Value    string `db:"value"`
		Category string `db:"category"`
	}
	err := db.SelectContext(ctx, &factRows, `
		SELECT entity, key, value, COALESCE(category, 'other') AS category
		FROM facts ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("export facts: %w", err)
	}

	var rels []Relation
	if err := db.SelectContext(ctx, &rels, "SELECT "+relationColumns+" FROM relations ORDER BY id"); err != nil {
		return nil, fmt.Errorf("export relations: %w", err)
	}

	categories := make(map[string]string)
	known := make(map[string]bool)
	for _, f := range factRows {
		known[f.Entity] = true
		if _, ok := categories[f.Entity]; !ok {
			categories[f.Entity] = f.Category
		}
	}
	for _, r := range rels {
		known[r.Subject] = true
	}

	g := &Graph{Facts: make(map[string][]KeyValue)}
	for entity := range known {
		cat, ok := categories[entity]
		if !ok {
			cat = "other"
		}
		g.Nodes = append(g.Nodes, Node{ID: entity, Category: cat})
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })

	for _, r := range rels {
		if known[r.Object] {
			g.Edges = append(g.Edges, Edge{Source: r.Subject, Target: r.Object, Predicate: r.Predicate})
		}
	}

	sort.SliceStable(factRows, func(i, j int) bool {
		if factRows[i].Entity != factRows[j].Entity {
			return factRows[i].Entity < factRows[j].Entity
		}
		return factRows[i].Key < factRows[j].Key
	})
	for _, f := range factRows {
		g.Facts[f.Entity] = append(g.Facts[f.Entity], KeyValue{Key: f.Key, Value: f.Value})
	}

	counts, err := rowCounts(ctx, db, "aliases")
	if err != nil {
		return nil, err
	}
	g.Stats = GraphStats{
		Entities:  len(g.Nodes),
		Relations: len(g.Edges),
		Facts:     len(factRows),
		Aliases:   counts["aliases"],
	}
	if g.Nodes == nil {
		g.Nodes = []Node{}
	}
	if g.Edges == nil {
		g.Edges = []Edge{}
	}
	return g, nil
}
