package graphlite

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemoryDB(t *testing.T) *DB {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	db, err := Open(MemoryPath, &Options{Logger: log})
	require.NoError(t, err)
	return db
}

func TestOpenExecuteClose(t *testing.T) {
	db := openMemoryDB(t)

	token, err := db.CreateSession("alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = db.Execute(context.Background(), token,
		`INSERT (a:Person {name: "Alice"})-[:KNOWS]->(b:Person {name: "Bob"})`)
	require.NoError(t, err)

	result, err := db.Execute(context.Background(), token,
		`MATCH (a:Person)-[:KNOWS]->(b:Person) RETURN a.name AS from, b.name AS to`)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RowCount)

	require.NoError(t, db.CloseSession(token))
	require.NoError(t, db.Close())
}

func TestSessionErrors(t *testing.T) {
	db := openMemoryDB(t)
	defer db.Close()

	// Unknown token.
	_, err := db.Execute(context.Background(), "no-such-token", `MATCH (n) RETURN n`)
	require.Error(t, err)
	assert.Equal(t, CodeSessionError, CodeOf(err))

	// Double close.
	token, err := db.CreateSession("alice")
	require.NoError(t, err)
	require.NoError(t, db.CloseSession(token))
	err = db.CloseSession(token)
	require.Error(t, err)
	assert.Equal(t, CodeSessionError, CodeOf(err))

	// Closed sessions cannot execute.
	_, err = db.Execute(context.Background(), token, `MATCH (n) RETURN n`)
	assert.Equal(t, CodeSessionError, CodeOf(err))

	// Empty username.
	_, err = db.CreateSession("")
	assert.Equal(t, CodeSessionError, CodeOf(err))
}

func TestMaxSessions(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	db, err := Open("", &Options{MaxSessions: 1, Logger: log})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.CreateSession("alice")
	require.NoError(t, err)
	_, err = db.CreateSession("bob")
	require.Error(t, err)
	assert.Equal(t, CodeSessionError, CodeOf(err))
}

func TestQueryErrorCode(t *testing.T) {
	db := openMemoryDB(t)
	defer db.Close()

	token, err := db.CreateSession("alice")
	require.NoError(t, err)

	_, err = db.Execute(context.Background(), token, `THIS IS NOT GQL`)
	require.Error(t, err)
	assert.Equal(t, CodeQueryError, CodeOf(err))

	_, err = db.Execute(context.Background(), token, `INSERT (:Person)`)
	require.NoError(t, err)
	_, err = db.Execute(context.Background(), token, `MATCH (n) RETURN missing.prop`)
	require.Error(t, err)
	assert.Equal(t, CodeQueryError, CodeOf(err))
}

func TestInvalidUtf8(t *testing.T) {
	db := openMemoryDB(t)
	defer db.Close()

	token, err := db.CreateSession("alice")
	require.NoError(t, err)

	_, err = db.Execute(context.Background(), token, "MATCH (n) RETURN n\xff")
	require.Error(t, err)
	assert.Equal(t, CodeInvalidUtf8, CodeOf(err))

	_, err = db.CreateSession("bad\xffname")
	require.Error(t, err)
	assert.Equal(t, CodeInvalidUtf8, CodeOf(err))
}

func TestRetainAndShareCounting(t *testing.T) {
	db := openMemoryDB(t)

	require.NoError(t, db.Retain())
	token, err := db.CreateSession("alice")
	require.NoError(t, err)

	// First Close drops one share; the database keeps working.
	require.NoError(t, db.Close())
	_, err = db.Execute(context.Background(), token, `MATCH (n) RETURN n`)
	require.NoError(t, err)

	// Last Close tears everything down.
	require.NoError(t, db.Close())
	assert.Equal(t, 0, db.Sessions())

	_, err = db.Execute(context.Background(), token, `MATCH (n) RETURN n`)
	require.Error(t, err)
	assert.Equal(t, CodeDatabaseOpen, CodeOf(err))
	assert.Error(t, db.Retain(), "a fully closed database cannot be revived")
}

func TestConcurrentSessions(t *testing.T) {
	db := openMemoryDB(t)
	defer db.Close()

	const n = 50
	tokens := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := db.CreateSession("user")
			assert.NoError(t, err)
			tokens[i] = token

			_, err = db.Execute(context.Background(), token, `INSERT (:Item)`)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, token := range tokens {
		assert.False(t, seen[token])
		seen[token] = true
	}

	token, err := db.CreateSession("checker")
	require.NoError(t, err)
	result, err := db.Execute(context.Background(), token, `MATCH (i:Item) RETURN i`)
	require.NoError(t, err)
	assert.Equal(t, n, result.RowCount)
}

func TestEncodeResult(t *testing.T) {
	db := openMemoryDB(t)
	defer db.Close()

	token, err := db.CreateSession("alice")
	require.NoError(t, err)
	mustExecute := func(query string) string {
		result, err := db.Execute(context.Background(), token, query)
		require.NoError(t, err)
		encoded, err := EncodeResult(result)
		require.NoError(t, err)
		return encoded
	}

	mustExecute(`INSERT (:Person {name: "Alice", age: 30})`)
	encoded := mustExecute(`MATCH (p:Person) RETURN p.name AS name, p.age AS age`)

	var wire struct {
		Variables []string         `json:"variables"`
		Rows      []map[string]any `json:"rows"`
		RowCount  int              `json:"row_count"`
	}
	require.NoError(t, json.Unmarshal([]byte(encoded), &wire))
	assert.Equal(t, []string{"name", "age"}, wire.Variables)
	require.Len(t, wire.Rows, 1)
	assert.Equal(t, "Alice", wire.Rows[0]["name"])
	assert.Equal(t, float64(30), wire.Rows[0]["age"])
	assert.Equal(t, 1, wire.RowCount)

	// Empty results serialize arrays, not nulls.
	encoded = mustExecute(`MATCH (x:Nothing) RETURN x`)
	assert.Contains(t, encoded, `"rows":[]`)

	_, err = EncodeResult(nil)
	assert.Equal(t, CodeNullPointer, CodeOf(err))
}

func TestNilDB(t *testing.T) {
	var db *DB
	assert.Equal(t, CodeNullPointer, CodeOf(db.Retain()))
	assert.Equal(t, CodeNullPointer, CodeOf(db.Close()))
	_, err := db.CreateSession("alice")
	assert.Equal(t, CodeNullPointer, CodeOf(err))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeSuccess, CodeOf(nil))
	assert.Equal(t, CodeQueryError, CodeOf(errors.New("plain")))

	wrapped := codedErr(CodeSessionError, errors.New("inner"))
	assert.Equal(t, CodeSessionError, CodeOf(wrapped))
	assert.ErrorContains(t, wrapped, "session error")
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "0.1.0", Version())
}
