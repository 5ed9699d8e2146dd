// Package storage - exclusive mutation units.
//
// A Tx is the atomic unit behind a mutating query: it holds the store's
// write lock from Begin until Commit or Rollback, applies mutations
// immediately (so later statements in the same query observe earlier
// writes), and keeps an undo journal of inverse operations. Rollback
// replays the journal in reverse, restoring data and every index to the
// pre-transaction state before any reader can run again.
//
// Id counters are not rewound on rollback; ids consumed by an aborted
// transaction are simply never issued again.
package storage

import (
	"sort"
)

// changeSet tracks which records a transaction touched, for persistent
// engines that flush to disk on commit. Only dirty ids are tracked; the
// final record state is read from the working set at flush time.
type changeSet struct {
	nodes map[NodeID]struct{}
	edges map[EdgeID]struct{}
}

func newChangeSet() *changeSet {
	return &changeSet{
		nodes: make(map[NodeID]struct{}),
		edges: make(map[EdgeID]struct{}),
	}
}

func (cs *changeSet) touchNode(id NodeID) { cs.nodes[id] = struct{}{} }
func (cs *changeSet) touchEdge(id EdgeID) { cs.edges[id] = struct{}{} }

// sortedNodeIDs returns the dirty node ids in ascending order.
func (cs *changeSet) sortedNodeIDs() []NodeID {
	ids := make([]NodeID, 0, len(cs.nodes))
	for id := range cs.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (cs *changeSet) sortedEdgeIDs() []EdgeID {
	ids := make([]EdgeID, 0, len(cs.edges))
	for id := range cs.edges {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Tx is an exclusive mutation unit over a graph store.
//
// While a Tx is open it owns the store's write lock: no reader or other
// writer proceeds until Commit or Rollback. Mutations apply immediately to
// the working set; reads through the Tx therefore see the transaction's
// own writes.
//
// Example:
//
//	tx, err := engine.Begin()
//	if err != nil {
//		return err
//	}
//	a, _ := tx.CreateNode([]string{"Person"}, nil)
//	b, _ := tx.CreateNode([]string{"Person"}, nil)
//	if _, err := tx.CreateEdge(a, b, "KNOWS", nil); err != nil {
//		tx.Rollback() // store is exactly as it was before Begin
//		return err
//	}
//	return tx.Commit()
type Tx struct {
	mem *MemoryEngine

	// undo holds inverse operations, applied in reverse on Rollback.
	undo []func()

	// cs and flush are set by persistent engines; flush writes the dirty
	// records to disk at commit time.
	cs    *changeSet
	flush func(cs *changeSet) error

	done bool
}

// Commit makes the transaction's mutations permanent and releases the
// store for other callers. For persistent engines a flush failure rolls
// the working set back and returns the error; the on-disk state is then
// unchanged as well.
func (tx *Tx) Commit() error {
	if tx.done {
		return ErrTxDone
	}

	if tx.flush != nil && tx.cs != nil {
		if err := tx.flush(tx.cs); err != nil {
			tx.rollbackLocked()
			tx.finish()
			return err
		}
	}
	tx.finish()
	return nil
}

// Rollback undoes every mutation made through the transaction and
// releases the store. Rolling back a finished transaction returns
// ErrTxDone.
func (tx *Tx) Rollback() error {
	if tx.done {
		return ErrTxDone
	}
	tx.rollbackLocked()
	tx.finish()
	return nil
}

func (tx *Tx) rollbackLocked() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *Tx) finish() {
	tx.done = true
	tx.mem.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Mutations
// ---------------------------------------------------------------------------

// CreateNode creates a node inside the transaction.
func (tx *Tx) CreateNode(labels []string, props map[string]Value) (NodeID, error) {
	if tx.done {
		return 0, ErrTxDone
	}

	id := tx.mem.createNodeLocked(labels, props)
	tx.undo = append(tx.undo, func() {
		tx.mem.deleteNodeLocked(id)
	})
	if tx.cs != nil {
		tx.cs.touchNode(id)
	}
	return id, nil
}

// CreateEdge creates an edge inside the transaction. Both endpoints must
// exist at this point in the transaction.
func (tx *Tx) CreateEdge(source, target NodeID, edgeType string, props map[string]Value) (EdgeID, error) {
	if tx.done {
		return 0, ErrTxDone
	}

	id, err := tx.mem.createEdgeLocked(source, target, edgeType, props)
	if err != nil {
		return 0, err
	}
	tx.undo = append(tx.undo, func() {
		tx.mem.deleteEdgeLocked(id)
	})
	if tx.cs != nil {
		tx.cs.touchEdge(id)
	}
	return id, nil
}

// SetNodeProperty sets a property on a node inside the transaction.
func (tx *Tx) SetNodeProperty(id NodeID, key string, value Value) error {
	if tx.done {
		return ErrTxDone
	}

	prev, had, err := tx.mem.setNodePropLocked(id, key, value)
	if err != nil {
		return err
	}
	tx.undo = append(tx.undo, func() {
		if had {
			tx.mem.setNodePropLocked(id, key, prev)
		} else {
			tx.mem.removeNodePropLocked(id, key)
		}
	})
	if tx.cs != nil {
		tx.cs.touchNode(id)
	}
	return nil
}

// RemoveNodeProperty removes a property from a node inside the transaction.
func (tx *Tx) RemoveNodeProperty(id NodeID, key string) error {
	if tx.done {
		return ErrTxDone
	}

	prev, had, err := tx.mem.removeNodePropLocked(id, key)
	if err != nil {
		return err
	}
	if had {
		tx.undo = append(tx.undo, func() {
			tx.mem.setNodePropLocked(id, key, prev)
		})
	}
	if tx.cs != nil {
		tx.cs.touchNode(id)
	}
	return nil
}

// DeleteNode deletes a node and its incident edges inside the transaction.
func (tx *Tx) DeleteNode(id NodeID) error {
	if tx.done {
		return ErrTxDone
	}

	node, removedEdges, err := tx.mem.deleteNodeLocked(id)
	if err != nil {
		return err
	}
	tx.undo = append(tx.undo, func() {
		tx.mem.insertNodeLocked(node)
		for _, edge := range removedEdges {
			tx.mem.insertEdgeLocked(edge)
		}
	})
	if tx.cs != nil {
		tx.cs.touchNode(id)
		for _, edge := range removedEdges {
			tx.cs.touchEdge(edge.ID)
		}
	}
	return nil
}

// SetEdgeProperty sets a property on an edge inside the transaction.
func (tx *Tx) SetEdgeProperty(id EdgeID, key string, value Value) error {
	if tx.done {
		return ErrTxDone
	}

	prev, had, err := tx.mem.setEdgePropLocked(id, key, value)
	if err != nil {
		return err
	}
	tx.undo = append(tx.undo, func() {
		if had {
			tx.mem.setEdgePropLocked(id, key, prev)
		} else {
			tx.mem.removeEdgePropLocked(id, key)
		}
	})
	if tx.cs != nil {
		tx.cs.touchEdge(id)
	}
	return nil
}

// RemoveEdgeProperty removes a property from an edge inside the transaction.
func (tx *Tx) RemoveEdgeProperty(id EdgeID, key string) error {
	if tx.done {
		return ErrTxDone
	}

	prev, had, err := tx.mem.removeEdgePropLocked(id, key)
	if err != nil {
		return err
	}
	if had {
		tx.undo = append(tx.undo, func() {
			tx.mem.setEdgePropLocked(id, key, prev)
		})
	}
	if tx.cs != nil {
		tx.cs.touchEdge(id)
	}
	return nil
}

// DeleteEdge deletes an edge inside the transaction.
func (tx *Tx) DeleteEdge(id EdgeID) error {
	if tx.done {
		return ErrTxDone
	}

	edge, err := tx.mem.deleteEdgeLocked(id)
	if err != nil {
		return err
	}
	tx.undo = append(tx.undo, func() {
		tx.mem.insertEdgeLocked(edge)
	})
	if tx.cs != nil {
		tx.cs.touchEdge(id)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Reads. These mirror the Engine read methods so query execution can run
// against an open transaction and observe its own writes.
// ---------------------------------------------------------------------------

// GetNode retrieves a node, including uncommitted writes.
func (tx *Tx) GetNode(id NodeID) (*Node, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	return tx.mem.getNodeLocked(id)
}

// GetEdge retrieves an edge, including uncommitted writes.
func (tx *Tx) GetEdge(id EdgeID) (*Edge, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	return tx.mem.getEdgeLocked(id)
}

// NodesByLabel returns the labeled nodes visible inside the transaction.
func (tx *Tx) NodesByLabel(label string) ([]*Node, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	return tx.mem.nodesByLabelLocked(label), nil
}

// EdgesByType returns the typed edges visible inside the transaction.
func (tx *Tx) EdgesByType(edgeType string) ([]*Edge, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	return tx.mem.edgesByTypeLocked(edgeType), nil
}

// OutgoingEdges returns a node's outgoing edges inside the transaction.
func (tx *Tx) OutgoingEdges(id NodeID) ([]*Edge, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	return tx.mem.adjacencyLocked(tx.mem.outgoing[id]), nil
}

// IncomingEdges returns a node's incoming edges inside the transaction.
func (tx *Tx) IncomingEdges(id NodeID) ([]*Edge, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	return tx.mem.adjacencyLocked(tx.mem.incoming[id]), nil
}

// AllNodes returns every node visible inside the transaction.
func (tx *Tx) AllNodes() ([]*Node, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	return tx.mem.allNodesLocked(), nil
}

// AllEdges returns every edge visible inside the transaction.
func (tx *Tx) AllEdges() ([]*Edge, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	return tx.mem.allEdgesLocked(), nil
}
