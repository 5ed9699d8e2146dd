package storage

import (
	"sort"
	"sync"
	"time"
)

// MemoryEngine is a thread-safe in-memory graph store.
//
// It is the default engine (used for ":memory:" databases and as the
// working set of the persistent BadgerEngine) and the reference
// implementation of the Engine contract.
//
// Performance characteristics:
//   - Node/edge lookup by id: O(1)
//   - Lookup by label/type: O(k log k) for k matches (sorted output)
//   - Outgoing/incoming edges: O(degree log degree)
//
// Concurrency: a single RWMutex implements the readers-writer discipline.
// Read-only operations take the read lock and run in parallel; mutations
// and open transactions hold the write lock exclusively, so no reader can
// observe a half-applied node/index pair.
type MemoryEngine struct {
	mu    sync.RWMutex
	nodes map[NodeID]*Node
	edges map[EdgeID]*Edge

	// Indexes for pattern matching
	nodesByLabel map[string]map[NodeID]struct{}
	edgesByType  map[string]map[EdgeID]struct{}
	outgoing     map[NodeID]map[EdgeID]struct{}
	incoming     map[NodeID]map[EdgeID]struct{}

	// Monotonic id counters; ids are never reused.
	nextNodeID NodeID
	nextEdgeID EdgeID

	closed bool
}

// NewMemoryEngine creates an empty in-memory store ready for concurrent use.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		nodes:        make(map[NodeID]*Node),
		edges:        make(map[EdgeID]*Edge),
		nodesByLabel: make(map[string]map[NodeID]struct{}),
		edgesByType:  make(map[string]map[EdgeID]struct{}),
		outgoing:     make(map[NodeID]map[EdgeID]struct{}),
		incoming:     make(map[NodeID]map[EdgeID]struct{}),
		nextNodeID:   1,
		nextEdgeID:   1,
	}
}

// CreateNode creates a node with a fresh id and returns the id.
func (m *MemoryEngine) CreateNode(labels []string, props map[string]Value) (NodeID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStorageClosed
	}
	return m.createNodeLocked(labels, props), nil
}

// GetNode retrieves a node by id, returning a deep copy.
func (m *MemoryEngine) GetNode(id NodeID) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	return m.getNodeLocked(id)
}

// SetNodeProperty sets a single property on an existing node.
func (m *MemoryEngine) SetNodeProperty(id NodeID, key string, value Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	_, _, err := m.setNodePropLocked(id, key, value)
	return err
}

// RemoveNodeProperty removes a property from an existing node. Removing a
// property that is not present is not an error; the node must exist.
func (m *MemoryEngine) RemoveNodeProperty(id NodeID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	_, _, err := m.removeNodePropLocked(id, key)
	return err
}

// DeleteNode removes a node and cascades to every incident edge. The node
// map, label index, type index and both adjacency lists are updated in the
// same critical section.
func (m *MemoryEngine) DeleteNode(id NodeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	_, _, err := m.deleteNodeLocked(id)
	return err
}

// CreateEdge creates an edge between two existing nodes. Returns
// ErrInvalidEdge if either endpoint is absent; nothing is mutated in that
// case.
func (m *MemoryEngine) CreateEdge(source, target NodeID, edgeType string, props map[string]Value) (EdgeID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStorageClosed
	}
	return m.createEdgeLocked(source, target, edgeType, props)
}

// GetEdge retrieves an edge by id, returning a deep copy.
func (m *MemoryEngine) GetEdge(id EdgeID) (*Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	return m.getEdgeLocked(id)
}

// SetEdgeProperty sets a single property on an existing edge.
func (m *MemoryEngine) SetEdgeProperty(id EdgeID, key string, value Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	_, _, err := m.setEdgePropLocked(id, key, value)
	return err
}

// RemoveEdgeProperty removes a property from an existing edge.
func (m *MemoryEngine) RemoveEdgeProperty(id EdgeID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	_, _, err := m.removeEdgePropLocked(id, key)
	return err
}

// DeleteEdge removes an edge and its index entries.
func (m *MemoryEngine) DeleteEdge(id EdgeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	_, err := m.deleteEdgeLocked(id)
	return err
}

// NodesByLabel returns copies of all nodes carrying the label, ordered by id.
func (m *MemoryEngine) NodesByLabel(label string) ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	return m.nodesByLabelLocked(label), nil
}

// EdgesByType returns copies of all edges of the given type, ordered by id.
func (m *MemoryEngine) EdgesByType(edgeType string) ([]*Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	return m.edgesByTypeLocked(edgeType), nil
}

// OutgoingEdges returns copies of all edges leaving the node, ordered by id.
func (m *MemoryEngine) OutgoingEdges(id NodeID) ([]*Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	return m.adjacencyLocked(m.outgoing[id]), nil
}

// IncomingEdges returns copies of all edges arriving at the node, ordered by id.
func (m *MemoryEngine) IncomingEdges(id NodeID) ([]*Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	return m.adjacencyLocked(m.incoming[id]), nil
}

// AllNodes returns copies of every node, ordered by id.
func (m *MemoryEngine) AllNodes() ([]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	return m.allNodesLocked(), nil
}

// AllEdges returns copies of every edge, ordered by id.
func (m *MemoryEngine) AllEdges() ([]*Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	return m.allEdgesLocked(), nil
}

// NodeCount returns the number of nodes.
func (m *MemoryEngine) NodeCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStorageClosed
	}
	return int64(len(m.nodes)), nil
}

// EdgeCount returns the number of edges.
func (m *MemoryEngine) EdgeCount() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStorageClosed
	}
	return int64(len(m.edges)), nil
}

// Begin opens an exclusive mutation unit against this engine. The write
// lock is held until the returned Tx commits or rolls back.
func (m *MemoryEngine) Begin() (*Tx, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrStorageClosed
	}
	return &Tx{mem: m}, nil
}

// Close shuts the engine down. Subsequent operations return
// ErrStorageClosed. Close is idempotent.
func (m *MemoryEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.nodes = nil
	m.edges = nil
	m.nodesByLabel = nil
	m.edgesByType = nil
	m.outgoing = nil
	m.incoming = nil

	return nil
}

// ---------------------------------------------------------------------------
// Lock-held internals. Shared by the public methods above and by Tx, which
// holds the write lock for its whole lifetime. Callers must hold m.mu (write
// lock for mutators, either lock for reads).
// ---------------------------------------------------------------------------

func (m *MemoryEngine) createNodeLocked(labels []string, props map[string]Value) NodeID {
	id := m.nextNodeID
	m.nextNodeID++

	now := time.Now().UTC()
	node := &Node{
		ID:         id,
		Labels:     append([]string(nil), labels...),
		Properties: CopyProperties(props),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.insertNodeLocked(node)
	return id
}

// insertNodeLocked stores a node record and its label index entries.
// Used by createNodeLocked and by Tx rollback when undoing a delete.
func (m *MemoryEngine) insertNodeLocked(node *Node) {
	m.nodes[node.ID] = node
	for _, label := range node.Labels {
		if m.nodesByLabel[label] == nil {
			m.nodesByLabel[label] = make(map[NodeID]struct{})
		}
		m.nodesByLabel[label][node.ID] = struct{}{}
	}
}

func (m *MemoryEngine) getNodeLocked(id NodeID) (*Node, error) {
	node, ok := m.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return node.Copy(), nil
}

// setNodePropLocked sets one property, returning the previous value for undo.
func (m *MemoryEngine) setNodePropLocked(id NodeID, key string, value Value) (prev Value, had bool, err error) {
	node, ok := m.nodes[id]
	if !ok {
		return Value{}, false, ErrNotFound
	}
	prev, had = node.Properties[key]
	node.Properties[key] = value
	node.UpdatedAt = time.Now().UTC()
	return prev, had, nil
}

func (m *MemoryEngine) removeNodePropLocked(id NodeID, key string) (prev Value, had bool, err error) {
	node, ok := m.nodes[id]
	if !ok {
		return Value{}, false, ErrNotFound
	}
	prev, had = node.Properties[key]
	delete(node.Properties, key)
	node.UpdatedAt = time.Now().UTC()
	return prev, had, nil
}

// deleteNodeLocked removes a node, its label index entries and every
// incident edge. It returns the removed records so a transaction can
// restore them on rollback.
func (m *MemoryEngine) deleteNodeLocked(id NodeID) (*Node, []*Edge, error) {
	node, ok := m.nodes[id]
	if !ok {
		return nil, nil, ErrNotFound
	}

	// Cascade: collect incident edge ids first, then remove each edge with
	// full index maintenance.
	incident := make(map[EdgeID]struct{})
	for edgeID := range m.outgoing[id] {
		incident[edgeID] = struct{}{}
	}
	for edgeID := range m.incoming[id] {
		incident[edgeID] = struct{}{}
	}

	removed := make([]*Edge, 0, len(incident))
	for edgeID := range incident {
		if edge, err := m.deleteEdgeLocked(edgeID); err == nil {
			removed = append(removed, edge)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })

	for _, label := range node.Labels {
		if m.nodesByLabel[label] != nil {
			delete(m.nodesByLabel[label], id)
		}
	}
	delete(m.outgoing, id)
	delete(m.incoming, id)
	delete(m.nodes, id)

	return node, removed, nil
}

func (m *MemoryEngine) createEdgeLocked(source, target NodeID, edgeType string, props map[string]Value) (EdgeID, error) {
	if _, ok := m.nodes[source]; !ok {
		return 0, ErrInvalidEdge
	}
	if _, ok := m.nodes[target]; !ok {
		return 0, ErrInvalidEdge
	}

	id := m.nextEdgeID
	m.nextEdgeID++

	now := time.Now().UTC()
	edge := &Edge{
		ID:         id,
		Source:     source,
		Target:     target,
		Type:       edgeType,
		Properties: CopyProperties(props),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.insertEdgeLocked(edge)
	return id, nil
}

// insertEdgeLocked stores an edge record and all of its index entries.
func (m *MemoryEngine) insertEdgeLocked(edge *Edge) {
	m.edges[edge.ID] = edge

	if m.edgesByType[edge.Type] == nil {
		m.edgesByType[edge.Type] = make(map[EdgeID]struct{})
	}
	m.edgesByType[edge.Type][edge.ID] = struct{}{}

	if m.outgoing[edge.Source] == nil {
		m.outgoing[edge.Source] = make(map[EdgeID]struct{})
	}
	m.outgoing[edge.Source][edge.ID] = struct{}{}

	if m.incoming[edge.Target] == nil {
		m.incoming[edge.Target] = make(map[EdgeID]struct{})
	}
	m.incoming[edge.Target][edge.ID] = struct{}{}
}

func (m *MemoryEngine) getEdgeLocked(id EdgeID) (*Edge, error) {
	edge, ok := m.edges[id]
	if !ok {
		return nil, ErrNotFound
	}
	return edge.Copy(), nil
}

func (m *MemoryEngine) setEdgePropLocked(id EdgeID, key string, value Value) (prev Value, had bool, err error) {
	edge, ok := m.edges[id]
	if !ok {
		return Value{}, false, ErrNotFound
	}
	prev, had = edge.Properties[key]
	edge.Properties[key] = value
	edge.UpdatedAt = time.Now().UTC()
	return prev, had, nil
}

func (m *MemoryEngine) removeEdgePropLocked(id EdgeID, key string) (prev Value, had bool, err error) {
	edge, ok := m.edges[id]
	if !ok {
		return Value{}, false, ErrNotFound
	}
	prev, had = edge.Properties[key]
	delete(edge.Properties, key)
	edge.UpdatedAt = time.Now().UTC()
	return prev, had, nil
}

// deleteEdgeLocked removes an edge and its index entries, returning the
// removed record for undo.
func (m *MemoryEngine) deleteEdgeLocked(id EdgeID) (*Edge, error) {
	edge, ok := m.edges[id]
	if !ok {
		return nil, ErrNotFound
	}

	if m.edgesByType[edge.Type] != nil {
		delete(m.edgesByType[edge.Type], id)
	}
	if m.outgoing[edge.Source] != nil {
		delete(m.outgoing[edge.Source], id)
	}
	if m.incoming[edge.Target] != nil {
		delete(m.incoming[edge.Target], id)
	}
	delete(m.edges, id)

	return edge, nil
}

func (m *MemoryEngine) nodesByLabelLocked(label string) []*Node {
	ids := m.nodesByLabel[label]
	if len(ids) == 0 {
		return []*Node{}
	}

	sorted := make([]NodeID, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	nodes := make([]*Node, 0, len(sorted))
	for _, id := range sorted {
		if node := m.nodes[id]; node != nil {
			nodes = append(nodes, node.Copy())
		}
	}
	return nodes
}

func (m *MemoryEngine) edgesByTypeLocked(edgeType string) []*Edge {
	return m.sortedEdgesLocked(m.edgesByType[edgeType])
}

func (m *MemoryEngine) adjacencyLocked(ids map[EdgeID]struct{}) []*Edge {
	return m.sortedEdgesLocked(ids)
}

func (m *MemoryEngine) sortedEdgesLocked(ids map[EdgeID]struct{}) []*Edge {
	if len(ids) == 0 {
		return []*Edge{}
	}

	sorted := make([]EdgeID, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	edges := make([]*Edge, 0, len(sorted))
	for _, id := range sorted {
		if edge := m.edges[id]; edge != nil {
			edges = append(edges, edge.Copy())
		}
	}
	return edges
}

func (m *MemoryEngine) allNodesLocked() []*Node {
	ids := make([]NodeID, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	nodes := make([]*Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, m.nodes[id].Copy())
	}
	return nodes
}

func (m *MemoryEngine) allEdgesLocked() []*Edge {
	ids := make([]EdgeID, 0, len(m.edges))
	for id := range m.edges {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	edges := make([]*Edge, 0, len(ids))
	for _, id := range ids {
		edges = append(edges, m.edges[id].Copy())
	}
	return edges
}

// Verify MemoryEngine implements Engine
var _ Engine = (*MemoryEngine)(nil)
