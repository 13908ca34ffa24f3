package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/factgraph/internal/store"
)

func seedStore(t *testing.T, db *store.DB) {
	t.Helper()
	set := &store.SeedSet{
		Facts: []store.Fact{
			{Entity: "Alice", Key: "timezone", Value: "Europe/Berlin", Category: "person"},
			{Entity: "Alice", Key: "role", Value: "maintainer", Category: "person", Permanent: true},
			{Entity: "gateway", Key: "port", Value: "8443", Category: "project"},
		},
		Aliases: []store.AliasSeed{
			{Alias: "ali", Entity: "Alice"},
		},
		Relations: []store.Relation{
			{Subject: "Alice", Predicate: "maintains", Object: "gateway"},
			{Subject: "gateway", Predicate: "listens_on", Object: "8443"},
		},
	}
	_, err := db.Seed(context.Background(), set, false)
	require.NoError(t, err)
}

func TestFactsByAliasAndKey(t *testing.T) {
	srv, db := testServer(t)
	seedStore(t, db)

	w := do(t, srv, "GET", "/api/facts?entity=ali&key=timezone")
	require.Equal(t, http.StatusOK, w.Code)
	var f store.Fact
	decode(t, w, &f)
	assert.Equal(t, "Alice", f.Entity)
	assert.Equal(t, "Europe/Berlin", f.Value)

	w = do(t, srv, "GET", "/api/facts?entity=ali&key=shoe_size")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFactsByEntityAndCategory(t *testing.T) {
	srv, db := testServer(t)
	seedStore(t, db)

	var byEntity struct {
		Entity string       `json:"entity"`
		Facts  []store.Fact `json:"facts"`
	}
	w := do(t, srv, "GET", "/api/facts?entity=Alice")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &byEntity)
	assert.Equal(t, "Alice", byEntity.Entity)
	assert.Len(t, byEntity.Facts, 2)

	var byCategory struct {
		Facts []store.Fact `json:"facts"`
	}
	w = do(t, srv, "GET", "/api/facts?category=project")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &byCategory)
	require.Len(t, byCategory.Facts, 1)
	assert.Equal(t, "gateway", byCategory.Facts[0].Entity)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, "GET", "/api/facts").Code)
}

func TestSearch(t *testing.T) {
	srv, db := testServer(t)
	seedStore(t, db)

	var body struct {
		Facts []store.Fact `json:"facts"`
	}
	w := do(t, srv, "GET", "/api/search?q=berlin")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	require.Len(t, body.Facts, 1)
	assert.Equal(t, "timezone", body.Facts[0].Key)

	w = do(t, srv, "GET", `/api/search?q=%22%29%28*`)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	assert.Empty(t, body.Facts)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, "GET", "/api/search").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, "GET", "/api/search?q=x&limit=zero").Code)
}

func TestRelationsEndpoint(t *testing.T) {
	srv, db := testServer(t)
	seedStore(t, db)

	var bySubject struct {
		Subject  string           `json:"subject"`
		Outgoing []store.Relation `json:"outgoing"`
		Incoming []store.Relation `json:"incoming"`
	}
	w := do(t, srv, "GET", "/api/relations?subject=gateway")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &bySubject)
	require.Len(t, bySubject.Outgoing, 1)
	assert.Equal(t, "listens_on", bySubject.Outgoing[0].Predicate)
	require.Len(t, bySubject.Incoming, 1)
	assert.Equal(t, "Alice", bySubject.Incoming[0].Subject)

	var byQuery struct {
		Relations []store.Relation `json:"relations"`
	}
	w = do(t, srv, "GET", "/api/relations?q=maintains")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &byQuery)
	require.Len(t, byQuery.Relations, 1)
	assert.Equal(t, "gateway", byQuery.Relations[0].Object)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, "GET", "/api/relations").Code)
}

func TestResolveEndpoint(t *testing.T) {
	srv, db := testServer(t)
	seedStore(t, db)

	var body struct {
		Name    string   `json:"name"`
		Entity  string   `json:"entity"`
		Aliases []string `json:"aliases"`
	}
	w := do(t, srv, "GET", "/api/resolve/ALI")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	assert.Equal(t, "ALI", body.Name)
	assert.Equal(t, "Alice", body.Entity)
	assert.Equal(t, []string{"Alice", "ali"}, body.Aliases)

	w = do(t, srv, "GET", "/api/resolve/stranger")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	assert.Equal(t, "stranger", body.Entity)
	assert.Empty(t, body.Aliases)
}

func TestTouchEndpoint(t *testing.T) {
	srv, db := testServer(t)
	seedStore(t, db)

	f, err := db.GetFact(context.Background(), "gateway", "port")
	require.NoError(t, err)
	_, err = db.Exec("UPDATE facts SET decay_score = 0.2 WHERE id = ?", f.ID)
	require.NoError(t, err)

	w := do(t, srv, "POST", "/api/facts/"+strconv.FormatInt(f.ID, 10)+"/touch")
	require.Equal(t, http.StatusOK, w.Code)

	f, err = db.GetFact(context.Background(), "gateway", "port")
	require.NoError(t, err)
	require.NotNil(t, f.DecayScore)
	assert.Equal(t, 1.0, *f.DecayScore)

	assert.Equal(t, http.StatusNotFound, do(t, srv, "POST", "/api/facts/9999/touch").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, "POST", "/api/facts/abc/touch").Code)
}

func TestStatsAndGraph(t *testing.T) {
	srv, db := testServer(t)
	seedStore(t, db)

	var st store.Stats
	w := do(t, srv, "GET", "/api/stats")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &st)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.Permanent)
	assert.Equal(t, 2, st.Relations)

	var g store.Graph
	w = do(t, srv, "GET", "/api/graph")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &g)
	assert.Len(t, g.Nodes, 2)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, "maintains", g.Edges[0].Predicate)
}

func TestGetContext(t *testing.T) {
	srv, db := testServer(t)
	seedStore(t, db)

	var body map[string]string
	w := do(t, srv, "GET", "/api/context?entity=ali")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	block := body["context"]
	assert.Contains(t, block, "### Alice")
	assert.Contains(t, block, "- [person] role: maintainer (permanent)")
	assert.Contains(t, block, "Alice maintains gateway")
	assert.Less(t, strings.Index(block, "role:"), strings.Index(block, "timezone:"), "permanent facts first")

	w = do(t, srv, "GET", "/api/context")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	assert.Contains(t, body["context"], "gateway.port: 8443")
}

func TestRankFacts(t *testing.T) {
	score := func(v float64) *float64 { return &v }
	in := []store.Fact{
		{Key: "cool", DecayScore: score(0.3)},
		{Key: "pinned", Permanent: true},
		{Key: "hot", DecayScore: score(0.95)},
		{Key: "cool2", DecayScore: score(0.3)},
	}
	got := rankFacts(in)
	keys := make([]string, len(got))
	for i, f := range got {
		keys[i] = f.Key
	}
	assert.Equal(t, []string{"pinned", "hot", "cool", "cool2"}, keys)
	assert.Equal(t, "cool", in[0].Key, "input untouched")
}
