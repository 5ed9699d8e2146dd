package gql

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgraph/graphlite/pkg/storage"
)

func newTestExecutor(t *testing.T) (*Executor, *storage.MemoryEngine) {
	t.Helper()
	engine := storage.NewMemoryEngine()
	t.Cleanup(func() { engine.Close() })

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return NewExecutor(engine, log), engine
}

func mustExec(t *testing.T, exec *Executor, query string) *Result {
	t.Helper()
	result, err := exec.Execute(context.Background(), query)
	require.NoError(t, err, "query: %s", query)
	return result
}

func seedPeople(t *testing.T, exec *Executor) {
	t.Helper()
	mustExec(t, exec, `
		INSERT (a:Person {name: "Alice", age: 30})-[:KNOWS {since: 2020}]->(b:Person {name: "Bob", age: 25});
		MATCH (b:Person {name: "Bob"}) INSERT (b)-[:KNOWS {since: 2021}]->(c:Person {name: "Carol", age: 35})
	`)
}

func TestExecuteInsertAndMatch(t *testing.T) {
	exec, _ := newTestExecutor(t)
	seedPeople(t, exec)

	result := mustExec(t, exec,
		`MATCH (a:Person)-[r:KNOWS]->(b:Person) WHERE a.name = "Alice" RETURN a.name AS from, b.name AS to, r.since AS since`)

	assert.Equal(t, []string{"from", "to", "since"}, result.Variables)
	require.Equal(t, 1, result.RowCount)
	row := result.Rows[0]
	assert.True(t, row["from"].Equal(storage.NewString("Alice")))
	assert.True(t, row["to"].Equal(storage.NewString("Bob")))
	assert.True(t, row["since"].Equal(storage.NewInt(2020)))
}

func TestExecuteMatchDirections(t *testing.T) {
	exec, _ := newTestExecutor(t)
	seedPeople(t, exec)

	// Bob has one incoming and one outgoing KNOWS edge.
	out := mustExec(t, exec, `MATCH (b {name: "Bob"})-[:KNOWS]->(x) RETURN x.name AS n`)
	require.Equal(t, 1, out.RowCount)
	assert.True(t, out.Rows[0]["n"].Equal(storage.NewString("Carol")))

	in := mustExec(t, exec, `MATCH (b {name: "Bob"})<-[:KNOWS]-(x) RETURN x.name AS n`)
	require.Equal(t, 1, in.RowCount)
	assert.True(t, in.Rows[0]["n"].Equal(storage.NewString("Alice")))

	both := mustExec(t, exec, `MATCH (b {name: "Bob"})-[:KNOWS]-(x) RETURN x.name AS n`)
	assert.Equal(t, 2, both.RowCount)
}

func TestExecuteOrderSkipLimit(t *testing.T) {
	exec, _ := newTestExecutor(t)
	seedPeople(t, exec)

	result := mustExec(t, exec, `MATCH (p:Person) RETURN p.name AS name ORDER BY p.age DESC`)
	require.Equal(t, 3, result.RowCount)
	assert.True(t, result.Rows[0]["name"].Equal(storage.NewString("Carol")))
	assert.True(t, result.Rows[1]["name"].Equal(storage.NewString("Alice")))
	assert.True(t, result.Rows[2]["name"].Equal(storage.NewString("Bob")))

	result = mustExec(t, exec, `MATCH (p:Person) RETURN p.name AS name ORDER BY p.age SKIP 1 LIMIT 1`)
	require.Equal(t, 1, result.RowCount)
	assert.True(t, result.Rows[0]["name"].Equal(storage.NewString("Alice")))
}

func TestExecuteSetAndRemove(t *testing.T) {
	exec, _ := newTestExecutor(t)
	seedPeople(t, exec)

	result := mustExec(t, exec,
		`MATCH (p:Person {name: "Alice"}) SET p.age = 31 RETURN p.age AS age`)
	require.Equal(t, 1, result.RowCount)
	assert.True(t, result.Rows[0]["age"].Equal(storage.NewInt(31)),
		"RETURN after SET must see the new value")

	mustExec(t, exec, `MATCH (p:Person {name: "Alice"}) REMOVE p.age`)
	result = mustExec(t, exec, `MATCH (p:Person {name: "Alice"}) RETURN p.age AS age`)
	require.Equal(t, 1, result.RowCount)
	assert.True(t, result.Rows[0]["age"].IsNull(), "absent property projects as null")
}

func TestExecuteDeleteCascades(t *testing.T) {
	exec, _ := newTestExecutor(t)
	seedPeople(t, exec)

	mustExec(t, exec, `MATCH (p:Person {name: "Bob"}) DELETE p`)

	people := mustExec(t, exec, `MATCH (p:Person) RETURN p.name AS n ORDER BY p.name`)
	assert.Equal(t, 2, people.RowCount)

	edges := mustExec(t, exec, `MATCH (a)-[r:KNOWS]->(b) RETURN r`)
	assert.Equal(t, 0, edges.RowCount, "edges touching Bob must be gone")
}

func TestExecuteFailedMutationRollsBack(t *testing.T) {
	exec, _ := newTestExecutor(t)
	seedPeople(t, exec)

	// Second statement fails on an unknown variable; the first insert
	// must not survive.
	_, err := exec.Execute(context.Background(), `
		INSERT (:Person {name: "Dave"});
		MATCH (p:Person {name: "Dave"}) SET q.age = 1`)
	require.Error(t, err)

	result := mustExec(t, exec, `MATCH (p:Person {name: "Dave"}) RETURN p`)
	assert.Equal(t, 0, result.RowCount, "aborted query must leave no trace")
}

func TestExecuteMultiStatementReadYourWrites(t *testing.T) {
	exec, _ := newTestExecutor(t)

	result := mustExec(t, exec, `
		INSERT (:City {name: "Oslo"});
		MATCH (c:City {name: "Oslo"}) SET c.pop = 700000;
		MATCH (c:City) RETURN c.name AS name, c.pop AS pop`)

	require.Equal(t, 1, result.RowCount)
	assert.True(t, result.Rows[0]["pop"].Equal(storage.NewInt(700000)))
}

func TestExecuteUnknownVariable(t *testing.T) {
	exec, _ := newTestExecutor(t)
	seedPeople(t, exec)

	_, err := exec.Execute(context.Background(), `MATCH (p:Person) RETURN q.name`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown variable")

	_, err = exec.Execute(context.Background(), `MATCH (p:Person) WHERE missing.age > 1 RETURN p`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown variable")
}

func TestExecuteUnknownVariableOnEmptyGraph(t *testing.T) {
	exec, _ := newTestExecutor(t)

	// Nothing matches, so nothing would ever be evaluated. The bad
	// reference must still be rejected.
	for _, query := range []string{
		`MATCH (p:Person) RETURN bogus.name`,
		`MATCH (p:Person) WHERE ghost.age > 1 RETURN p`,
		`MATCH (p:Person) RETURN p.name ORDER BY ghost.age`,
		`MATCH (p:Person) SET q.name = "x"`,
		`MATCH (p:Person) DELETE q`,
	} {
		_, err := exec.Execute(context.Background(), query)
		require.Error(t, err, "query: %s", query)
		assert.Contains(t, err.Error(), "unknown variable", query)
	}
}

func TestExecuteNullComparisonsNeverMatch(t *testing.T) {
	exec, _ := newTestExecutor(t)
	mustExec(t, exec, `INSERT (:Person {name: "NoAge"})`)

	for _, query := range []string{
		`MATCH (p:Person) WHERE p.age = 30 RETURN p`,
		`MATCH (p:Person) WHERE p.age <> 30 RETURN p`,
		`MATCH (p:Person) WHERE p.age < 30 RETURN p`,
	} {
		result := mustExec(t, exec, query)
		assert.Equal(t, 0, result.RowCount, query)
	}
}

func TestExecuteTypeMismatchIsAnError(t *testing.T) {
	exec, _ := newTestExecutor(t)
	mustExec(t, exec, `INSERT (:Person {name: "Alice", age: 30})`)

	_, err := exec.Execute(context.Background(), `MATCH (p:Person) WHERE p.name < 10 RETURN p`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot compare")

	_, err = exec.Execute(context.Background(), `MATCH (p:Person) WHERE p.age CONTAINS "3" RETURN p`)
	require.Error(t, err)
}

func TestExecuteStringOperators(t *testing.T) {
	exec, _ := newTestExecutor(t)
	seedPeople(t, exec)

	result := mustExec(t, exec, `MATCH (p:Person) WHERE p.name STARTS WITH "Al" RETURN p.name AS n`)
	require.Equal(t, 1, result.RowCount)
	assert.True(t, result.Rows[0]["n"].Equal(storage.NewString("Alice")))

	result = mustExec(t, exec, `MATCH (p:Person) WHERE p.name CONTAINS "aro" RETURN p.name AS n`)
	require.Equal(t, 1, result.RowCount)
	assert.True(t, result.Rows[0]["n"].Equal(storage.NewString("Carol")))
}

func TestExecuteEntityProjection(t *testing.T) {
	exec, _ := newTestExecutor(t)
	mustExec(t, exec, `INSERT (a:Person {name: "Alice"})-[:KNOWS]->(b:Person {name: "Bob"})`)

	result := mustExec(t, exec, `MATCH (a:Person {name: "Alice"})-[r:KNOWS]->(b) RETURN a, r`)
	require.Equal(t, 1, result.RowCount)

	node := result.Rows[0]["a"]
	require.Equal(t, storage.KindMap, node.Kind())
	nm := node.Map()
	assert.Equal(t, storage.KindInt, nm["id"].Kind())
	assert.Equal(t, storage.KindList, nm["labels"].Kind())
	assert.True(t, nm["properties"].Map()["name"].Equal(storage.NewString("Alice")))

	edge := result.Rows[0]["r"]
	require.Equal(t, storage.KindMap, edge.Kind())
	em := edge.Map()
	assert.True(t, em["type"].Equal(storage.NewString("KNOWS")))
	assert.Equal(t, storage.KindInt, em["source"].Kind())
	assert.Equal(t, storage.KindInt, em["target"].Kind())
}

func TestExecuteVariableReuseAcrossPatterns(t *testing.T) {
	exec, _ := newTestExecutor(t)
	seedPeople(t, exec)

	// Two-hop path through a shared middle variable.
	result := mustExec(t, exec,
		`MATCH (a)-[:KNOWS]->(m), (m)-[:KNOWS]->(c) RETURN a.name AS a, c.name AS c`)
	require.Equal(t, 1, result.RowCount)
	assert.True(t, result.Rows[0]["a"].Equal(storage.NewString("Alice")))
	assert.True(t, result.Rows[0]["c"].Equal(storage.NewString("Carol")))
}

func TestExecuteMatchInsertPerBinding(t *testing.T) {
	exec, _ := newTestExecutor(t)
	seedPeople(t, exec)

	// Every person gets a FOUNDED edge to a fresh company node.
	mustExec(t, exec, `MATCH (p:Person) INSERT (p)-[:FOUNDED]->(:Company)`)

	result := mustExec(t, exec, `MATCH (:Person)-[:FOUNDED]->(c:Company) RETURN c`)
	assert.Equal(t, 3, result.RowCount)
}

func TestExecuteMatchInsertReturnsNewBindings(t *testing.T) {
	exec, _ := newTestExecutor(t)
	mustExec(t, exec, `INSERT (:Person {name: "Alice"})`)

	result := mustExec(t, exec,
		`MATCH (p:Person) INSERT (p)-[f:FOUNDED {year: 1999}]->(c:Company {name: "Acme"}) RETURN p.name AS who, c.name AS cname, f.year AS year`)

	require.Equal(t, 1, result.RowCount)
	row := result.Rows[0]
	assert.True(t, row["who"].Equal(storage.NewString("Alice")))
	assert.True(t, row["cname"].Equal(storage.NewString("Acme")))
	assert.True(t, row["year"].Equal(storage.NewInt(1999)))
}

func TestExecuteInsertUndirectedEdgeFails(t *testing.T) {
	exec, _ := newTestExecutor(t)

	_, err := exec.Execute(context.Background(), `INSERT (a:X)-[:REL]-(b:Y)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "direction")
}

func TestExecuteDeterministicResults(t *testing.T) {
	exec, _ := newTestExecutor(t)
	for i := 0; i < 20; i++ {
		mustExec(t, exec, `INSERT (:Item)`)
	}

	first := mustExec(t, exec, `MATCH (i:Item) RETURN i`)
	for run := 0; run < 5; run++ {
		again := mustExec(t, exec, `MATCH (i:Item) RETURN i`)
		require.Equal(t, first.RowCount, again.RowCount)
		for j := range first.Rows {
			assert.True(t, first.Rows[j]["i"].Equal(again.Rows[j]["i"]),
				"row %d changed between identical queries", j)
		}
	}
}

func TestExecuteEmptyResultShape(t *testing.T) {
	exec, _ := newTestExecutor(t)

	result := mustExec(t, exec, `INSERT (:Person {name: "Alice"})`)
	assert.Empty(t, result.Variables)
	assert.Equal(t, 0, result.RowCount)
}

func TestExecuteContextCancelled(t *testing.T) {
	exec, _ := newTestExecutor(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := exec.Execute(ctx, `INSERT (:Person)`)
	assert.ErrorIs(t, err, context.Canceled)
}
