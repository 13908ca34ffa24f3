package server

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/lazypower/factgraph/internal/store"
)

// maxContextFacts caps how many facts a context block carries.
const maxContextFacts = 15

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	block, err := s.buildContext(r.Context(), r.URL.Query().Get("entity"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"context": block})
}

// buildContext renders a markdown block for prompt injection. With an
// entity it lists that entity's facts and relations; without one it lists
// permanent and hot facts across the store.
func (s *Server) buildContext(ctx context.Context, name string) (string, error) {
	var b strings.Builder
	b.WriteString("<context>\n## Known Facts\n")

	if name == "" {
		facts, err := s.db.HotFacts(ctx, maxContextFacts)
		if err != nil {
			return "", err
		}
		for _, f := range facts {
			fmt.Fprintf(&b, "- %s.%s: %s%s\n", f.Entity, f.Key, f.Value, pinMark(f))
		}
		b.WriteString("</context>")
		return b.String(), nil
	}

	entity, err := s.resolver.Resolve(ctx, name)
	if err != nil {
		return "", err
	}
	facts, err := s.db.FactsByEntity(ctx, entity)
	if err != nil {
		return "", err
	}
	facts = rankFacts(facts)
	if len(facts) > maxContextFacts {
		facts = facts[:maxContextFacts]
	}

	fmt.Fprintf(&b, "\n### %s\n", entity)
	for _, f := range facts {
		fmt.Fprintf(&b, "- [%s] %s: %s%s\n", f.Category, f.Key, f.Value, pinMark(f))
	}

	rels, err := s.db.RelationsFrom(ctx, entity)
	if err != nil {
		return "", err
	}
	if len(rels) > 0 {
		b.WriteString("\n### Relations\n")
		for _, rel := range rels {
			fmt.Fprintf(&b, "- %s %s %s\n", rel.Subject, rel.Predicate, rel.Object)
		}
	}

	b.WriteString("</context>")
	return b.String(), nil
}

func pinMark(f store.Fact) string {
	if f.Permanent {
		return " (permanent)"
	}
	return ""
}

// rankFacts orders facts permanent first, then by decay score descending.
// The input order breaks ties.
func rankFacts(facts []store.Fact) []store.Fact {
	ranked := make([]store.Fact, 0, len(facts))
	ranked = append(ranked, facts...)
	score := func(f store.Fact) float64 {
		if f.Permanent || f.DecayScore == nil {
			return 2
		}
		return *f.DecayScore
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return score(ranked[i]) > score(ranked[j])
	})
	return ranked
}
