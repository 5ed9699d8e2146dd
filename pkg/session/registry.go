// Package session provides the session registry for GraphLite.
//
// A session is an opaque, per-user handle used to scope and audit query
// calls. Sessions carry identity and activity timestamps only; they hold
// no transaction state and grant no isolation. Each coordinator owns its
// own Registry - there is no process-wide registry.
//
// Example:
//
//	reg := session.NewRegistry(0)
//	id, err := reg.Create("alice")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	sess, _ := reg.Get(id)
//	fmt.Printf("%s created at %s\n", sess.Username, sess.CreatedAt)
//
//	if err := reg.Close(id); err != nil {
//		log.Fatal(err)
//	}
//	// Second close is an error, not a no-op:
//	err = reg.Close(id) // session.ErrNotFound
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Errors returned by the registry.
var (
	ErrNotFound        = errors.New("session not found")
	ErrInvalidUsername = errors.New("username must not be empty")
	ErrTooManySessions = errors.New("session limit reached")
)

// Session holds the metadata tracked per open session.
//
// Registry methods return copies; mutating a returned Session does not
// affect registry state.
type Session struct {
	// ID is the opaque session token (uuid v4, unguessable).
	ID string
	// Username is the owning user, for bookkeeping and audit.
	Username string
	// CreatedAt is when the session was opened.
	CreatedAt time.Time
	// LastActive is updated each time a query runs under the session.
	LastActive time.Time
}

// Registry maps opaque session identifiers to session metadata.
//
// All methods are individually atomic and linearizable with respect to
// one another: a single mutex guards the map with short critical
// sections. Safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	// maxSessions bounds the number of concurrently open sessions.
	// Zero means unlimited.
	maxSessions int
}

// NewRegistry creates an empty registry. maxSessions of zero means no
// limit on concurrently open sessions.
func NewRegistry(maxSessions int) *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
	}
}

// Create opens a session for username and returns its fresh identifier.
//
// Identifiers are uuid v4: 122 bits from crypto/rand, so collisions are
// negligible and two sessions created concurrently always receive
// distinct ids.
func (r *Registry) Create(username string) (string, error) {
	if username == "" {
		return "", ErrInvalidUsername
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		return "", ErrTooManySessions
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	r.sessions[id] = &Session{
		ID:         id,
		Username:   username,
		CreatedAt:  now,
		LastActive: now,
	}
	return id, nil
}

// Get looks up a session by id, returning a copy of its metadata or
// ErrNotFound.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

// Touch records activity on a session, updating its LastActive time.
func (r *Registry) Touch(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.LastActive = time.Now().UTC()
	return nil
}

// Close destroys a session. Closing an unknown or already-closed session
// returns ErrNotFound; the registry distinguishes "was open" from
// "was not", the caller decides whether repeat-close is tolerable.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll destroys every open session. Used at coordinator teardown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[string]*Session)
}
