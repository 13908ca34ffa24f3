package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/factgraph/internal/store"
)

// isolateEnv keeps the host environment and any .env file out of the run.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"FACTGRAPH_WORKSPACE", "OPENCLAW_WORKSPACE", "FACTS_DB", "FACTGRAPH_LOG_LEVEL",
		"FACTGRAPH_BIND", "FACTGRAPH_PORT", "FACTGRAPH_RATE_LIMIT_RPS", "FACTGRAPH_RATE_LIMIT_BURST",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("FACTGRAPH_ENV", filepath.Join(t.TempDir(), "none.env"))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "factgraph %v\n%s", args, out)
	return out
}

// initStore creates a migrated store in a temp dir and returns its path.
func initStore(t *testing.T) string {
	t.Helper()
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "memory", "facts.db")
	mustRun(t, "--db-path", path, "init")
	return path
}

const seedYAML = `
facts:
  - {entity: Alice, key: timezone, value: Europe/Berlin, category: person}
  - {entity: Alice, key: role, value: maintainer, category: person, permanent: true}
  - {entity: gateway, key: port, value: "8443", category: project}
aliases:
  - {alias: ali, entity: Alice}
relations:
  - {subject: Alice, predicate: maintains, object: gateway}
`

func seedStore(t *testing.T, dbPath string) {
	t.Helper()
	file := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(file, []byte(seedYAML), 0644))
	mustRun(t, "--db-path", dbPath, "seed", file)
}

func TestMissingStoreIsAnError(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "facts.db")

	for _, args := range [][]string{
		{"migrate"},
		{"decay"},
		{"stats"},
		{"query", "anything"},
	} {
		_, err := run(t, append([]string{"--db-path", path}, args...)...)
		require.Error(t, err, "%v", args)
		assert.Contains(t, err.Error(), "store not found at "+path)
	}
	assert.NoFileExists(t, path)
}

func TestInitThenMigrateIsNoop(t *testing.T) {
	path := initStore(t)
	assert.FileExists(t, path)

	out := mustRun(t, "--db-path", path, "migrate")
	assert.Contains(t, out, "0 applied")

	out = mustRun(t, "--db-path", path, "migrate", "--dry-run")
	assert.Contains(t, out, "0 would apply")
	assert.Contains(t, out, "dry run: nothing was written")

	out = mustRun(t, "--db-path", path, "init")
	assert.Contains(t, out, "0 applied")
}

func TestSeedIsRepeatable(t *testing.T) {
	path := initStore(t)
	seedStore(t, path)

	file := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(file, []byte(seedYAML), 0644))
	out := mustRun(t, "--db-path", path, "seed", file)
	assert.Contains(t, out, "facts      0 inserted, 3 skipped")
	assert.Contains(t, out, "relations  0 inserted, 1 skipped")

	_, err := run(t, "--db-path", path, "seed", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestQuery(t *testing.T) {
	path := initStore(t)
	seedStore(t, path)

	out := mustRun(t, "--db-path", path, "query", "--entity", "ali", "--key", "timezone")
	assert.Contains(t, out, "Alice.timezone = Europe/Berlin  [person] (1.00 hot)")

	out = mustRun(t, "--db-path", path, "query", "--entity", "Alice")
	assert.Contains(t, out, "Alice.role = maintainer  [person] (permanent)")

	out = mustRun(t, "--db-path", path, "query", "berlin")
	assert.Contains(t, out, "Alice.timezone")

	out = mustRun(t, "--db-path", path, "query", "--category", "project", "--json")
	var facts []store.Fact
	require.NoError(t, json.Unmarshal([]byte(out), &facts))
	require.Len(t, facts, 1)
	assert.Equal(t, "gateway", facts[0].Entity)

	out = mustRun(t, "--db-path", path, "query", "nothing-like-this")
	assert.Contains(t, out, "no facts found")

	_, err := run(t, "--db-path", path, "query")
	assert.Error(t, err)
	_, err = run(t, "--db-path", path, "query", "--key", "timezone")
	assert.Error(t, err)
}

func TestResolveAndRelations(t *testing.T) {
	path := initStore(t)
	seedStore(t, path)

	out := mustRun(t, "--db-path", path, "resolve", "ALI")
	assert.Contains(t, out, "ALI -> Alice")
	assert.Contains(t, out, "aliases: Alice, ali")

	out = mustRun(t, "--db-path", path, "resolve", "nobody")
	assert.Equal(t, "nobody -> nobody\n", out)

	out = mustRun(t, "--db-path", path, "relations", "--subject", "ali")
	assert.Contains(t, out, "Alice --maintains--> gateway")
	assert.Contains(t, out, "no incoming relations")

	out = mustRun(t, "--db-path", path, "relations", "maintains")
	assert.Contains(t, out, "Alice --maintains--> gateway")

	_, err := run(t, "--db-path", path, "relations")
	assert.Error(t, err)
}

func TestDecay(t *testing.T) {
	path := initStore(t)
	seedStore(t, path)

	out := mustRun(t, "--db-path", path, "decay", "--dry-run")
	assert.Contains(t, out, "decayed 2 facts")
	assert.Contains(t, out, "dry run: changes rolled back")

	out = mustRun(t, "--db-path", path, "decay")
	assert.Contains(t, out, "decayed 2 facts")
	assert.Contains(t, out, "facts: 3 (1 permanent, 2 decaying)")
	assert.Contains(t, out, "score avg: 0.950")

	out = mustRun(t, "--db-path", path, "stats")
	assert.Contains(t, out, "relations: 1  aliases: 2")
	assert.Contains(t, out, "person")
}

func TestExportDefaultsNextToStore(t *testing.T) {
	path := initStore(t)
	seedStore(t, path)

	out := mustRun(t, "--db-path", path, "export")
	assert.Contains(t, out, "exported 2 entities, 1 relations, 3 facts")

	data, err := os.ReadFile(filepath.Join(filepath.Dir(path), "graph-data.json"))
	require.NoError(t, err)
	var g store.Graph
	require.NoError(t, json.Unmarshal(data, &g))
	assert.Len(t, g.Nodes, 2)

	custom := filepath.Join(t.TempDir(), "g.json")
	mustRun(t, "--db-path", path, "export", "--out", custom)
	assert.FileExists(t, custom)
}

func TestPrune(t *testing.T) {
	isolateEnv(t)
	ws := t.TempDir()
	mem := filepath.Join(ws, "memory")
	require.NoError(t, os.MkdirAll(mem, 0755))
	log := "# 2020-01-01\n" +
		"- [decision|i=0.85] Chose SQLite for local-first storage\n" +
		"- [context|i=0.20] Looked at the weather\n" +
		"plain note\n"
	file := filepath.Join(mem, "2020-01-01.md")
	require.NoError(t, os.WriteFile(file, []byte(log), 0644))
	// Only exact date names are daily logs.
	notes := filepath.Join(mem, "2020-01-01-notes.md")
	require.NoError(t, os.WriteFile(notes, []byte(log), 0644))

	out := mustRun(t, "--workspace", ws, "prune", "--dry-run", "--json")
	var report struct {
		DryRun      bool `json:"dry_run"`
		TotalPruned int  `json:"total_pruned"`
		Preview     []struct {
			Content string `json:"content"`
		} `json:"preview"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.TotalPruned)
	require.Len(t, report.Preview, 1)
	assert.Equal(t, "Chose SQLite for local-first storage", report.Preview[0].Content)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, log, string(data))

	out = mustRun(t, "--workspace", ws, "prune")
	assert.Contains(t, out, "pruned 1 observations across 1 files")
	data, err = os.ReadFile(file)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "weather")
	assert.Contains(t, string(data), "plain note")

	data, err = os.ReadFile(notes)
	require.NoError(t, err)
	assert.Equal(t, log, string(data))

	_, err = run(t, "--workspace", t.TempDir(), "prune")
	assert.ErrorContains(t, err, "memory directory not found")

	out = mustRun(t, "prune", "--help")
	assert.Contains(t, out, "memory/YYYY-MM-DD.md")
	assert.NotContains(t, out, "YYYY-MM-DD*")
}

func TestVersion(t *testing.T) {
	out := mustRun(t, "version")
	assert.Equal(t, "factgraph dev (commit: unknown, built: unknown)\n", out)
}
