package storage

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func openBadger(t *testing.T, dir string) *BadgerEngine {
	t.Helper()
	engine, err := NewBadgerEngine(BadgerOptions{Dir: dir, Logger: quietLogger()})
	require.NoError(t, err)
	return engine
}

func TestBadgerEnginePersistence(t *testing.T) {
	dir := t.TempDir()

	engine := openBadger(t, dir)
	alice, err := engine.CreateNode([]string{"Person"}, map[string]Value{"name": NewString("Alice")})
	require.NoError(t, err)
	bob, err := engine.CreateNode([]string{"Person"}, map[string]Value{"name": NewString("Bob")})
	require.NoError(t, err)
	knows, err := engine.CreateEdge(alice, bob, "KNOWS", map[string]Value{"since": NewInt(2020)})
	require.NoError(t, err)
	require.NoError(t, engine.Close())

	// Reopen: data, indexes and counters must all come back.
	engine = openBadger(t, dir)
	defer engine.Close()

	node, err := engine.GetNode(alice)
	require.NoError(t, err)
	assert.True(t, node.Properties["name"].Equal(NewString("Alice")))
	assert.Equal(t, []string{"Person"}, node.Labels)

	edge, err := engine.GetEdge(knows)
	require.NoError(t, err)
	assert.Equal(t, alice, edge.Source)
	assert.Equal(t, bob, edge.Target)
	assert.True(t, edge.Properties["since"].Equal(NewInt(2020)))

	people, err := engine.NodesByLabel("Person")
	require.NoError(t, err)
	assert.Len(t, people, 2, "label index rebuilt on open")

	out, err := engine.OutgoingEdges(alice)
	require.NoError(t, err)
	assert.Len(t, out, 1, "adjacency rebuilt on open")

	// Counters resume past existing ids.
	carol, err := engine.CreateNode(nil, nil)
	require.NoError(t, err)
	assert.Greater(t, carol, bob)
}

func TestBadgerEngineDeletePersists(t *testing.T) {
	dir := t.TempDir()

	engine := openBadger(t, dir)
	alice, err := engine.CreateNode([]string{"Person"}, nil)
	require.NoError(t, err)
	bob, err := engine.CreateNode([]string{"Person"}, nil)
	require.NoError(t, err)
	knows, err := engine.CreateEdge(alice, bob, "KNOWS", nil)
	require.NoError(t, err)

	require.NoError(t, engine.DeleteNode(alice))
	require.NoError(t, engine.Close())

	engine = openBadger(t, dir)
	defer engine.Close()

	_, err = engine.GetNode(alice)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = engine.GetEdge(knows)
	assert.ErrorIs(t, err, ErrNotFound, "cascaded edge must not resurrect")

	node, err := engine.GetNode(bob)
	require.NoError(t, err)
	assert.Equal(t, bob, node.ID)
}

func TestBadgerEngineTxRollbackNotPersisted(t *testing.T) {
	dir := t.TempDir()

	engine := openBadger(t, dir)
	tx, err := engine.Begin()
	require.NoError(t, err)
	ghost, err := tx.CreateNode([]string{"Ghost"}, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	require.NoError(t, engine.Close())

	engine = openBadger(t, dir)
	defer engine.Close()

	_, err = engine.GetNode(ghost)
	assert.ErrorIs(t, err, ErrNotFound)
	count, err := engine.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
