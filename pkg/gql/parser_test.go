package gql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgraph/graphlite/pkg/storage"
)

func parseOne(t *testing.T, query string) Statement {
	t.Helper()
	stmts, err := Parse(query)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	return stmts[0]
}

func TestParseInsertNode(t *testing.T) {
	stmt := parseOne(t, `INSERT (n:Person {name: "Alice", age: 30, score: 1.5, ok: true, gone: null})`)
	ins, ok := stmt.(*InsertStatement)
	require.True(t, ok)
	require.Len(t, ins.Patterns, 1)

	node := ins.Patterns[0].Nodes[0]
	assert.Equal(t, "n", node.Variable)
	assert.False(t, node.Anonymous)
	assert.Equal(t, []string{"Person"}, node.Labels)
	assert.True(t, node.Properties["name"].Equal(storage.NewString("Alice")))
	assert.True(t, node.Properties["age"].Equal(storage.NewInt(30)))
	assert.True(t, node.Properties["score"].Equal(storage.NewFloat(1.5)))
	assert.True(t, node.Properties["ok"].Equal(storage.NewBool(true)))
	assert.True(t, node.Properties["gone"].IsNull())
	assert.True(t, ins.Mutates())
}

func TestParseInsertPath(t *testing.T) {
	stmt := parseOne(t, `INSERT (a:Person)-[r:KNOWS {since: 2020}]->(b:Person)`)
	ins := stmt.(*InsertStatement)
	pat := ins.Patterns[0]
	require.Len(t, pat.Nodes, 2)
	require.Len(t, pat.Edges, 1)

	edge := pat.Edges[0]
	assert.Equal(t, "r", edge.Variable)
	assert.Equal(t, "KNOWS", edge.Type)
	assert.Equal(t, EdgeOutgoing, edge.Direction)
	assert.True(t, edge.Properties["since"].Equal(storage.NewInt(2020)))
}

func TestParseMatchDirections(t *testing.T) {
	cases := []struct {
		query string
		want  EdgeDirection
	}{
		{`MATCH (a)-[r]->(b) RETURN r`, EdgeOutgoing},
		{`MATCH (a)<-[r]-(b) RETURN r`, EdgeIncoming},
		{`MATCH (a)-[r]-(b) RETURN r`, EdgeBoth},
	}
	for _, tc := range cases {
		stmt := parseOne(t, tc.query)
		m := stmt.(*MatchStatement)
		assert.Equal(t, tc.want, m.Patterns[0].Edges[0].Direction, tc.query)
		assert.False(t, m.Mutates())
	}
}

func TestParseAnonymousVariables(t *testing.T) {
	stmt := parseOne(t, `MATCH (:Person)-[]->() RETURN 1`)
	m := stmt.(*MatchStatement)

	first := m.Patterns[0].Nodes[0]
	assert.True(t, first.Anonymous)
	assert.NotEmpty(t, first.Variable)
	assert.Equal(t, []string{"Person"}, first.Labels)

	edge := m.Patterns[0].Edges[0]
	assert.True(t, edge.Anonymous)
	assert.NotEqual(t, first.Variable, edge.Variable, "generated names must not collide")
}

func TestParseWherePrecedence(t *testing.T) {
	stmt := parseOne(t, `MATCH (n) WHERE n.a = 1 OR n.b = 2 AND NOT n.c = 3 RETURN n`)
	m := stmt.(*MatchStatement)

	// OR binds loosest: (a=1) OR ((b=2) AND (NOT c=3))
	or, ok := m.Where.(*LogicalExpr)
	require.True(t, ok)
	assert.Equal(t, "OR", or.Operator)

	and, ok := or.Right.(*LogicalExpr)
	require.True(t, ok)
	assert.Equal(t, "AND", and.Operator)

	_, ok = and.Right.(*NotExpr)
	assert.True(t, ok)
}

func TestParseStringOperators(t *testing.T) {
	stmt := parseOne(t, `MATCH (n) WHERE n.name STARTS WITH "Al" AND n.bio CONTAINS "go" RETURN n`)
	m := stmt.(*MatchStatement)
	and := m.Where.(*LogicalExpr)

	starts := and.Left.(*Comparison)
	assert.Equal(t, "STARTS WITH", starts.Operator)
	contains := and.Right.(*Comparison)
	assert.Equal(t, "CONTAINS", contains.Operator)
}

func TestParseReturnClause(t *testing.T) {
	stmt := parseOne(t, `MATCH (n:Person) RETURN n.name AS name, n.age ORDER BY n.age DESC, n.name SKIP 2 LIMIT 10`)
	m := stmt.(*MatchStatement)
	ret := m.Return
	require.NotNil(t, ret)

	require.Len(t, ret.Items, 2)
	assert.Equal(t, "name", ret.Items[0].Name())
	assert.Equal(t, "n.age", ret.Items[1].Name(), "unaliased items keep their source text")

	require.Len(t, ret.OrderBy, 2)
	assert.True(t, ret.OrderBy[0].Descending)
	assert.False(t, ret.OrderBy[1].Descending)

	require.NotNil(t, ret.Skip)
	assert.Equal(t, 2, *ret.Skip)
	require.NotNil(t, ret.Limit)
	assert.Equal(t, 10, *ret.Limit)
}

func TestParseMutationTails(t *testing.T) {
	stmt := parseOne(t, `MATCH (n:Person) SET n.age = 31, n.city = "Oslo" RETURN n`)
	m := stmt.(*MatchStatement)
	require.Len(t, m.Sets, 2)
	assert.Equal(t, "n", m.Sets[0].Variable)
	assert.Equal(t, "age", m.Sets[0].Property)
	assert.NotNil(t, m.Return)
	assert.True(t, m.Mutates())

	stmt = parseOne(t, `MATCH (n) REMOVE n.age`)
	m = stmt.(*MatchStatement)
	require.Len(t, m.Removes, 1)
	assert.Equal(t, "age", m.Removes[0].Property)

	stmt = parseOne(t, `MATCH (a)-[r]->(b) DELETE r, a`)
	m = stmt.(*MatchStatement)
	require.Len(t, m.Deletes, 2)
	assert.Equal(t, "r", m.Deletes[0].Variable)

	stmt = parseOne(t, `MATCH (a:Person {name: "Alice"}), (b:Person {name: "Bob"}) INSERT (a)-[:KNOWS]->(b)`)
	m = stmt.(*MatchStatement)
	require.Len(t, m.Inserts, 1)
	assert.True(t, m.Mutates())
}

func TestParseMultipleStatements(t *testing.T) {
	stmts, err := Parse(`INSERT (:A); INSERT (:B); MATCH (n) RETURN n;`)
	require.NoError(t, err)
	assert.Len(t, stmts, 3)
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		``,
		`   `,
		`RETURN 1`,
		`MATCH (n)`,
		`MATCH (n RETURN n`,
		`INSERT (a)<-[r:X]->(b)`,
		`MATCH (n) WHERE n.name STARTS "Al" RETURN n`,
		`MATCH (n) RETURN n LIMIT x`,
		`INSERT (n {name: })`,
		`MATCH (n) RETURN n extra`,
		`INSERT (n {name: "unterminated})`,
	}
	for _, query := range cases {
		_, err := Parse(query)
		assert.Error(t, err, "query %q should not parse", query)
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := Parse(`MATCH (n) RETURN n LIMIT`)
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Greater(t, perr.Pos, 0)
	assert.Contains(t, err.Error(), "offset")
}

func TestParseLineComments(t *testing.T) {
	stmts, err := Parse("// seed data\nINSERT (:Person) // trailing\n")
	require.NoError(t, err)
	assert.Len(t, stmts, 1)
}
