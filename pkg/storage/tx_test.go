package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxCommit(t *testing.T) {
	engine := NewMemoryEngine()
	defer engine.Close()

	tx, err := engine.Begin()
	require.NoError(t, err)

	alice, err := tx.CreateNode([]string{"Person"}, map[string]Value{"name": NewString("Alice")})
	require.NoError(t, err)
	bob, err := tx.CreateNode([]string{"Person"}, nil)
	require.NoError(t, err)
	_, err = tx.CreateEdge(alice, bob, "KNOWS", nil)
	require.NoError(t, err)

	require.NoError(t, tx.Commit())

	node, err := engine.GetNode(alice)
	require.NoError(t, err)
	assert.True(t, node.Properties["name"].Equal(NewString("Alice")))

	edges, err := engine.OutgoingEdges(alice)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestTxRollbackRestoresEverything(t *testing.T) {
	engine, alice, bob, knows := newTestGraph(t)
	defer engine.Close()

	tx, err := engine.Begin()
	require.NoError(t, err)

	// Touch every mutation path, then roll it all back.
	_, err = tx.CreateNode([]string{"Ghost"}, nil)
	require.NoError(t, err)
	require.NoError(t, tx.SetNodeProperty(alice, "name", NewString("Mallory")))
	require.NoError(t, tx.SetNodeProperty(alice, "age", NewInt(99)))
	require.NoError(t, tx.RemoveNodeProperty(bob, "name"))
	require.NoError(t, tx.SetEdgeProperty(knows, "since", NewInt(1900)))
	require.NoError(t, tx.DeleteNode(bob))
	require.NoError(t, tx.Rollback())

	node, err := engine.GetNode(alice)
	require.NoError(t, err)
	assert.True(t, node.Properties["name"].Equal(NewString("Alice")))
	_, hasAge := node.Properties["age"]
	assert.False(t, hasAge)

	restored, err := engine.GetNode(bob)
	require.NoError(t, err)
	assert.True(t, restored.Properties["name"].Equal(NewString("Bob")))

	edge, err := engine.GetEdge(knows)
	require.NoError(t, err)
	assert.True(t, edge.Properties["since"].Equal(NewInt(2020)))

	ghosts, err := engine.NodesByLabel("Ghost")
	require.NoError(t, err)
	assert.Empty(t, ghosts)

	count, err := engine.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestTxRollbackRestoresCascadedEdges(t *testing.T) {
	engine, alice, bob, knows := newTestGraph(t)
	defer engine.Close()

	tx, err := engine.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.DeleteNode(alice))
	_, err = tx.GetEdge(knows)
	assert.ErrorIs(t, err, ErrNotFound, "cascade visible inside the transaction")
	require.NoError(t, tx.Rollback())

	edge, err := engine.GetEdge(knows)
	require.NoError(t, err)
	assert.Equal(t, alice, edge.Source)
	assert.Equal(t, bob, edge.Target)

	out, err := engine.OutgoingEdges(alice)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestTxReadYourWrites(t *testing.T) {
	engine := NewMemoryEngine()
	defer engine.Close()

	tx, err := engine.Begin()
	require.NoError(t, err)

	id, err := tx.CreateNode([]string{"Person"}, map[string]Value{"name": NewString("Carol")})
	require.NoError(t, err)

	node, err := tx.GetNode(id)
	require.NoError(t, err)
	assert.True(t, node.Properties["name"].Equal(NewString("Carol")))

	people, err := tx.NodesByLabel("Person")
	require.NoError(t, err)
	assert.Len(t, people, 1)

	require.NoError(t, tx.Rollback())

	_, err = engine.GetNode(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTxDoneIsSticky(t *testing.T) {
	engine := NewMemoryEngine()
	defer engine.Close()

	tx, err := engine.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.ErrorIs(t, tx.Commit(), ErrTxDone)
	assert.ErrorIs(t, tx.Rollback(), ErrTxDone)
	_, err = tx.CreateNode(nil, nil)
	assert.ErrorIs(t, err, ErrTxDone)
}
