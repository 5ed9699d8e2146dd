// Package graphlite is the embedding facade: one DB value owns a
// storage engine, a session registry and a query executor, and exposes
// the handful of operations an embedder needs. Every failure crossing
// this boundary is a classified *Error.
package graphlite

import (
	"context"
	"encoding/json"
	"sync"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/deepgraph/graphlite/pkg/gql"
	"github.com/deepgraph/graphlite/pkg/session"
	"github.com/deepgraph/graphlite/pkg/storage"
)

// MemoryPath opens an in-memory database; so does the empty string.
const MemoryPath = ":memory:"

// Options tune a DB beyond its storage path.
type Options struct {
	// SyncWrites makes every commit hit disk before returning.
	// Ignored for in-memory databases.
	SyncWrites bool

	// MaxSessions bounds concurrently open sessions. Zero means
	// unlimited.
	MaxSessions int

	// Logger receives structured logs. Nil falls back to the logrus
	// standard logger.
	Logger *logrus.Logger
}

// DB is the query coordinator. It is safe for concurrent use and
// reference counted: Retain adds a share, Close drops one, and the
// last Close tears down sessions and the engine.
type DB struct {
	mu       sync.Mutex
	refs     int
	engine   storage.Engine
	sessions *session.Registry
	exec     *gql.Executor
	log      *logrus.Logger
}

// Open opens the database at path, creating it when absent. An empty
// path or MemoryPath yields a volatile in-memory database. The caller
// holds one share; release it with Close.
func Open(path string, opts *Options) (*DB, error) {
	if opts == nil {
		opts = &Options{}
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	var engine storage.Engine
	if path == "" || path == MemoryPath {
		engine = storage.NewMemoryEngine()
	} else {
		eng, err := storage.NewBadgerEngine(storage.BadgerOptions{
			Dir:        path,
			SyncWrites: opts.SyncWrites,
			Logger:     log,
		})
		if err != nil {
			return nil, codedErr(CodeDatabaseOpen, err)
		}
		engine = eng
	}

	log.WithFields(logrus.Fields{
		"path":     path,
		"inMemory": path == "" || path == MemoryPath,
	}).Info("database opened")

	return &DB{
		refs:     1,
		engine:   engine,
		sessions: session.NewRegistry(opts.MaxSessions),
		exec:     gql.NewExecutor(engine, log),
		log:      log,
	}, nil
}

// Retain adds a share to the database. Each share needs its own Close.
func (db *DB) Retain() error {
	if db == nil {
		return codedErrf(CodeNullPointer, "nil database")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.refs == 0 {
		return codedErrf(CodeDatabaseOpen, "database is closed")
	}
	db.refs++
	return nil
}

// Close releases one share. The last release closes every open
// session and shuts the engine down.
func (db *DB) Close() error {
	if db == nil {
		return codedErrf(CodeNullPointer, "nil database")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.refs == 0 {
		return codedErrf(CodeDatabaseOpen, "database is closed")
	}
	db.refs--
	if db.refs > 0 {
		return nil
	}

	db.sessions.CloseAll()
	if err := db.engine.Close(); err != nil {
		return codedErr(CodeDatabaseOpen, err)
	}
	db.log.Info("database closed")
	return nil
}

func (db *DB) live() error {
	if db == nil {
		return codedErrf(CodeNullPointer, "nil database")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.refs == 0 {
		return codedErrf(CodeDatabaseOpen, "database is closed")
	}
	return nil
}

// CreateSession registers a session for username and returns its
// opaque token.
func (db *DB) CreateSession(username string) (string, error) {
	if err := db.live(); err != nil {
		return "", err
	}
	if !utf8.ValidString(username) {
		return "", codedErrf(CodeInvalidUtf8, "username is not valid utf-8")
	}
	token, err := db.sessions.Create(username)
	if err != nil {
		return "", codedErr(CodeSessionError, err)
	}
	db.log.WithField("username", username).Debug("session created")
	return token, nil
}

// CloseSession invalidates a session token. Closing an unknown or
// already-closed token fails.
func (db *DB) CloseSession(token string) error {
	if err := db.live(); err != nil {
		return err
	}
	if err := db.sessions.Close(token); err != nil {
		return codedErr(CodeSessionError, err)
	}
	return nil
}

// Execute runs query text on behalf of the session identified by
// token and returns the tabular result of the last statement.
func (db *DB) Execute(ctx context.Context, token, query string) (result *gql.Result, err error) {
	if err := db.live(); err != nil {
		return nil, err
	}
	if !utf8.ValidString(query) {
		return nil, codedErrf(CodeInvalidUtf8, "query is not valid utf-8")
	}
	if err := db.sessions.Touch(token); err != nil {
		return nil, codedErr(CodeSessionError, err)
	}

	// A bug below this line must not take the embedder down.
	defer func() {
		if r := recover(); r != nil {
			db.log.WithField("panic", r).Error("query execution panicked")
			result = nil
			err = codedErrf(CodePanicError, "query execution panicked: %v", r)
		}
	}()

	res, err := db.exec.Execute(ctx, query)
	if err != nil {
		return nil, codedErr(CodeQueryError, err)
	}
	return res, nil
}

// EncodeResult renders a result in its JSON wire form.
func EncodeResult(result *gql.Result) (string, error) {
	if result == nil {
		return "", codedErrf(CodeNullPointer, "nil result")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", codedErr(CodeJSONError, err)
	}
	return string(data), nil
}

// Sessions reports the number of currently open sessions.
func (db *DB) Sessions() int {
	if db == nil {
		return 0
	}
	return db.sessions.Len()
}
