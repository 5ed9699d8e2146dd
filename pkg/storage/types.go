// Package storage provides the graph store for GraphLite.
//
// The store is the single source of truth for graph state: nodes, edges,
// and the indexes that make pattern matching cheap (per-label node sets,
// per-type edge sets, and per-node adjacency lists in both directions).
//
// Design principles:
//   - Labeled property graph model
//   - Thread-safe engines behind one interface
//   - Every structural mutation updates data and indexes atomically
//   - Deterministic reads: multi-result lookups are sorted by id
//
// Example usage:
//
//	engine := storage.NewMemoryEngine()
//	defer engine.Close()
//
//	alice, _ := engine.CreateNode([]string{"Person"},
//		map[string]storage.Value{"name": storage.NewString("Alice")})
//	bob, _ := engine.CreateNode([]string{"Person"},
//		map[string]storage.Value{"name": storage.NewString("Bob")})
//
//	_, err := engine.CreateEdge(alice, bob, "KNOWS", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	people, _ := engine.NodesByLabel("Person")
//	fmt.Printf("found %d people\n", len(people))
package storage

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidData   = errors.New("invalid data")
	ErrInvalidEdge   = errors.New("invalid edge: source or target node not found")
	ErrStorageClosed = errors.New("storage closed")
	ErrTxDone        = errors.New("transaction already finished")
)

// NodeID is the unique identifier of a graph node.
//
// IDs are assigned monotonically by the engine that created the node and
// are never reused within a store's lifetime.
type NodeID uint64

// EdgeID is the unique identifier of a graph edge. Edge ids live in their
// own namespace, separate from node ids.
type EdgeID uint64

// Node is a vertex in the labeled property graph.
//
// A node carries zero or more labels and a property mapping. Engines hand
// out deep copies; mutating a returned Node never affects stored state.
type Node struct {
	ID         NodeID           `json:"id"`
	Labels     []string         `json:"labels"`
	Properties map[string]Value `json:"properties"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// HasLabel reports whether the node carries the given label.
func (n *Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Copy returns a deep copy of the node.
func (n *Node) Copy() *Node {
	if n == nil {
		return nil
	}
	cp := &Node{
		ID:         n.ID,
		Labels:     make([]string, len(n.Labels)),
		Properties: CopyProperties(n.Properties),
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
	}
	copy(cp.Labels, n.Labels)
	return cp
}

// Edge is a directed relationship between two nodes.
//
// Both endpoints must exist when the edge is created; deleting either
// endpoint deletes the edge.
type Edge struct {
	ID         EdgeID           `json:"id"`
	Source     NodeID           `json:"source"`
	Target     NodeID           `json:"target"`
	Type       string           `json:"type"`
	Properties map[string]Value `json:"properties"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Copy returns a deep copy of the edge.
func (e *Edge) Copy() *Edge {
	if e == nil {
		return nil
	}
	return &Edge{
		ID:         e.ID,
		Source:     e.Source,
		Target:     e.Target,
		Type:       e.Type,
		Properties: CopyProperties(e.Properties),
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

// Engine is the graph store interface.
//
// All implementations MUST be thread-safe. Read-only operations may run
// concurrently; each mutating operation is atomic with respect to both
// the data maps and every affected index - a concurrent reader never
// observes an edge whose endpoint is gone, or an index entry for a
// deleted record.
//
// Multi-result reads return records ordered by ascending id so that
// identical graphs produce identical result sequences.
type Engine interface {
	// Node operations
	CreateNode(labels []string, props map[string]Value) (NodeID, error)
	GetNode(id NodeID) (*Node, error)
	SetNodeProperty(id NodeID, key string, value Value) error
	RemoveNodeProperty(id NodeID, key string) error
	DeleteNode(id NodeID) error

	// Edge operations
	CreateEdge(source, target NodeID, edgeType string, props map[string]Value) (EdgeID, error)
	GetEdge(id EdgeID) (*Edge, error)
	SetEdgeProperty(id EdgeID, key string, value Value) error
	RemoveEdgeProperty(id EdgeID, key string) error
	DeleteEdge(id EdgeID) error

	// Index-assisted reads
	NodesByLabel(label string) ([]*Node, error)
	EdgesByType(edgeType string) ([]*Edge, error)
	OutgoingEdges(id NodeID) ([]*Edge, error)
	IncomingEdges(id NodeID) ([]*Edge, error)

	// Scans
	AllNodes() ([]*Node, error)
	AllEdges() ([]*Edge, error)

	// Stats
	NodeCount() (int64, error)
	EdgeCount() (int64, error)

	// Begin opens an exclusive mutation unit. While the returned Tx is
	// open no reader or other writer may proceed; Commit or Rollback
	// releases it.
	Begin() (*Tx, error)

	// Lifecycle
	Close() error
}
