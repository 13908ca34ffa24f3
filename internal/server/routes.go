package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lazypower/factgraph/internal/store"
)

const defaultSearchLimit = 20

func (s *Server) handleFacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name, key, category := q.Get("entity"), q.Get("key"), q.Get("category")

	switch {
	case name != "":
		entity, err := s.resolver.Resolve(r.Context(), name)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if key != "" {
			f, err := s.db.GetFact(r.Context(), entity, key)
			if err != nil {
				s.internalError(w, r, err)
				return
			}
			if f == nil {
				writeError(w, http.StatusNotFound, "no fact for "+entity+"."+key)
				return
			}
			writeJSON(w, http.StatusOK, f)
			return
		}
		facts, err := s.db.FactsByEntity(r.Context(), entity)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"entity": entity,
			"facts":  nonNil(facts),
		})

	case category != "":
		facts, err := s.db.FactsByCategory(r.Context(), category)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"category": category,
			"facts":    nonNil(facts),
		})

	default:
		writeError(w, http.StatusBadRequest, "entity or category required")
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q parameter required")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	facts, err := s.db.SearchFacts(r.Context(), query, limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query": query,
		"facts": nonNil(facts),
	})
}

func (s *Server) handleRelations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if name := q.Get("subject"); name != "" {
		subject, err := s.resolver.Resolve(r.Context(), name)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		out, err := s.db.RelationsFrom(r.Context(), subject)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		in, err := s.db.RelationsTo(r.Context(), subject)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"subject":  subject,
			"outgoing": nonNil(out),
			"incoming": nonNil(in),
		})
		return
	}

	query := q.Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "subject or q required")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	rels, err := s.db.SearchRelations(r.Context(), query, limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":     query,
		"relations": nonNil(rels),
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	entity, err := s.resolver.Resolve(r.Context(), name)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	aliases, err := s.db.AliasesFor(r.Context(), entity)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    name,
		"entity":  entity,
		"aliases": nonNil(aliases),
	})
}

func (s *Server) handleTouch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid fact id")
		return
	}
	if err := s.db.TouchFact(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNoFact) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "touched"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.db.Stats(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	g, err := s.db.ExportGraph(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, err.Error())
}

// parseLimit reads ?limit=, defaulting to defaultSearchLimit. It writes a
// 400 and reports false on a malformed value.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultSearchLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	return n, true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
