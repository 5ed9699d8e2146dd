// Package storage - persistent engine on BadgerDB.
//
// BadgerEngine keeps the full graph as an in-memory working set (a
// MemoryEngine) and writes node/edge records through to BadgerDB when a
// transaction commits. Opening a database rebuilds the working set with a
// single prefix scan; label, type and adjacency indexes are derived
// structures and are rebuilt rather than persisted.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// Key prefixes for BadgerDB storage organization.
// Single-byte prefixes keep keys compact.
const (
	prefixNode = byte(0x01) // 0x01 + nodeID(8B big-endian) -> JSON(nodeRecord)
	prefixEdge = byte(0x02) // 0x02 + edgeID(8B big-endian) -> JSON(edgeRecord)
	prefixMeta = byte(0x00) // 0x00 + name -> JSON(metadata)
)

var metaCountersKey = append([]byte{prefixMeta}, []byte("counters")...)

// nodeRecord is the on-disk form of a Node.
type nodeRecord struct {
	ID         NodeID           `json:"id"`
	Labels     []string         `json:"labels"`
	Properties map[string]Value `json:"properties"`
	CreatedAt  int64            `json:"created_at"`
	UpdatedAt  int64            `json:"updated_at"`
}

// edgeRecord is the on-disk form of an Edge.
type edgeRecord struct {
	ID         EdgeID           `json:"id"`
	Source     NodeID           `json:"source"`
	Target     NodeID           `json:"target"`
	Type       string           `json:"type"`
	Properties map[string]Value `json:"properties"`
	CreatedAt  int64            `json:"created_at"`
	UpdatedAt  int64            `json:"updated_at"`
}

// counterRecord persists the monotonic id counters so ids are never
// reused across restarts, even after deletes.
type counterRecord struct {
	NextNodeID NodeID `json:"next_node_id"`
	NextEdgeID EdgeID `json:"next_edge_id"`
}

// BadgerOptions configures the persistent engine.
type BadgerOptions struct {
	// Dir is the directory holding the Badger data files. Required.
	Dir string

	// SyncWrites makes every commit fsync. Slower, safer.
	SyncWrites bool

	// Logger receives Badger's internal log output. Optional.
	Logger *logrus.Logger
}

// BadgerEngine is a persistent graph store.
//
// All Engine operations are served by the in-memory working set, so reads
// cost the same as MemoryEngine; commits additionally write the dirty
// records to BadgerDB in one Badger transaction.
//
// Example:
//
//	engine, err := storage.NewBadgerEngine(storage.BadgerOptions{Dir: "/data/graph"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
type BadgerEngine struct {
	mem *MemoryEngine
	db  *badger.DB
}

// NewBadgerEngine opens (or initializes) a persistent store in opts.Dir
// and loads the existing graph into the working set.
func NewBadgerEngine(opts BadgerOptions) (*BadgerEngine, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: badger data dir is required", ErrInvalidData)
	}

	badgerOpts := badger.DefaultOptions(opts.Dir).WithSyncWrites(opts.SyncWrites)
	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(opts.Logger.WithField("component", "badger"))
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", opts.Dir, err)
	}

	engine := &BadgerEngine{
		mem: NewMemoryEngine(),
		db:  db,
	}
	if err := engine.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load graph from %s: %w", opts.Dir, err)
	}
	return engine, nil
}

// load rebuilds the working set from the node and edge records on disk.
func (b *BadgerEngine) load() error {
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		var maxNode NodeID
		var maxEdge EdgeID

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.Key()
			if len(key) == 0 {
				continue
			}

			switch key[0] {
			case prefixNode:
				var rec nodeRecord
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &rec)
				}); err != nil {
					return fmt.Errorf("corrupt node record %x: %w", key, err)
				}
				b.mem.insertNodeLocked(&Node{
					ID:         rec.ID,
					Labels:     rec.Labels,
					Properties: CopyProperties(rec.Properties),
					CreatedAt:  time.Unix(rec.CreatedAt, 0).UTC(),
					UpdatedAt:  time.Unix(rec.UpdatedAt, 0).UTC(),
				})
				if rec.ID > maxNode {
					maxNode = rec.ID
				}

			case prefixEdge:
				var rec edgeRecord
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &rec)
				}); err != nil {
					return fmt.Errorf("corrupt edge record %x: %w", key, err)
				}
				b.mem.insertEdgeLocked(&Edge{
					ID:         rec.ID,
					Source:     rec.Source,
					Target:     rec.Target,
					Type:       rec.Type,
					Properties: CopyProperties(rec.Properties),
					CreatedAt:  time.Unix(rec.CreatedAt, 0).UTC(),
					UpdatedAt:  time.Unix(rec.UpdatedAt, 0).UTC(),
				})
				if rec.ID > maxEdge {
					maxEdge = rec.ID
				}
			}
		}

		// Edge endpoint invariant: records are written atomically per
		// commit, so a dangling edge means the store is corrupt.
		for id, edge := range b.mem.edges {
			if _, ok := b.mem.nodes[edge.Source]; !ok {
				return fmt.Errorf("%w: edge %d references missing node %d", ErrInvalidData, id, edge.Source)
			}
			if _, ok := b.mem.nodes[edge.Target]; !ok {
				return fmt.Errorf("%w: edge %d references missing node %d", ErrInvalidData, id, edge.Target)
			}
		}

		b.mem.nextNodeID = maxNode + 1
		b.mem.nextEdgeID = maxEdge + 1

		item, err := txn.Get(metaCountersKey)
		if err == nil {
			var counters counterRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &counters)
			}); err != nil {
				return fmt.Errorf("corrupt counters record: %w", err)
			}
			if counters.NextNodeID > b.mem.nextNodeID {
				b.mem.nextNodeID = counters.NextNodeID
			}
			if counters.NextEdgeID > b.mem.nextEdgeID {
				b.mem.nextEdgeID = counters.NextEdgeID
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		return nil
	})
}

func nodeKey(id NodeID) []byte {
	key := make([]byte, 9)
	key[0] = prefixNode
	binary.BigEndian.PutUint64(key[1:], uint64(id))
	return key
}

func edgeKey(id EdgeID) []byte {
	key := make([]byte, 9)
	key[0] = prefixEdge
	binary.BigEndian.PutUint64(key[1:], uint64(id))
	return key
}

// flushChanges writes every dirty record (and the id counters) to disk in
// one Badger transaction. Called at Tx commit while the working set's
// write lock is still held, so the snapshot is consistent.
func (b *BadgerEngine) flushChanges(cs *changeSet) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, id := range cs.sortedNodeIDs() {
			node, ok := b.mem.nodes[id]
			if !ok {
				if err := txn.Delete(nodeKey(id)); err != nil {
					return err
				}
				continue
			}
			data, err := json.Marshal(nodeRecord{
				ID:         node.ID,
				Labels:     node.Labels,
				Properties: node.Properties,
				CreatedAt:  node.CreatedAt.Unix(),
				UpdatedAt:  node.UpdatedAt.Unix(),
			})
			if err != nil {
				return err
			}
			if err := txn.Set(nodeKey(id), data); err != nil {
				return err
			}
		}

		for _, id := range cs.sortedEdgeIDs() {
			edge, ok := b.mem.edges[id]
			if !ok {
				if err := txn.Delete(edgeKey(id)); err != nil {
					return err
				}
				continue
			}
			data, err := json.Marshal(edgeRecord{
				ID:         edge.ID,
				Source:     edge.Source,
				Target:     edge.Target,
				Type:       edge.Type,
				Properties: edge.Properties,
				CreatedAt:  edge.CreatedAt.Unix(),
				UpdatedAt:  edge.UpdatedAt.Unix(),
			})
			if err != nil {
				return err
			}
			if err := txn.Set(edgeKey(id), data); err != nil {
				return err
			}
		}

		counters, err := json.Marshal(counterRecord{
			NextNodeID: b.mem.nextNodeID,
			NextEdgeID: b.mem.nextEdgeID,
		})
		if err != nil {
			return err
		}
		return txn.Set(metaCountersKey, counters)
	})
}

// Begin opens an exclusive mutation unit whose commit persists to disk.
func (b *BadgerEngine) Begin() (*Tx, error) {
	tx, err := b.mem.Begin()
	if err != nil {
		return nil, err
	}
	tx.cs = newChangeSet()
	tx.flush = b.flushChanges
	return tx, nil
}

// singleOp runs one mutation as its own transaction.
func (b *BadgerEngine) singleOp(op func(tx *Tx) error) error {
	tx, err := b.Begin()
	if err != nil {
		return err
	}
	if err := op(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// CreateNode creates and persists a node.
func (b *BadgerEngine) CreateNode(labels []string, props map[string]Value) (NodeID, error) {
	var id NodeID
	err := b.singleOp(func(tx *Tx) error {
		var opErr error
		id, opErr = tx.CreateNode(labels, props)
		return opErr
	})
	return id, err
}

// SetNodeProperty sets and persists a node property.
func (b *BadgerEngine) SetNodeProperty(id NodeID, key string, value Value) error {
	return b.singleOp(func(tx *Tx) error {
		return tx.SetNodeProperty(id, key, value)
	})
}

// RemoveNodeProperty removes and persists a node property removal.
func (b *BadgerEngine) RemoveNodeProperty(id NodeID, key string) error {
	return b.singleOp(func(tx *Tx) error {
		return tx.RemoveNodeProperty(id, key)
	})
}

// DeleteNode deletes a node (and incident edges) and persists the change.
func (b *BadgerEngine) DeleteNode(id NodeID) error {
	return b.singleOp(func(tx *Tx) error {
		return tx.DeleteNode(id)
	})
}

// CreateEdge creates and persists an edge.
func (b *BadgerEngine) CreateEdge(source, target NodeID, edgeType string, props map[string]Value) (EdgeID, error) {
	var id EdgeID
	err := b.singleOp(func(tx *Tx) error {
		var opErr error
		id, opErr = tx.CreateEdge(source, target, edgeType, props)
		return opErr
	})
	return id, err
}

// SetEdgeProperty sets and persists an edge property.
func (b *BadgerEngine) SetEdgeProperty(id EdgeID, key string, value Value) error {
	return b.singleOp(func(tx *Tx) error {
		return tx.SetEdgeProperty(id, key, value)
	})
}

// RemoveEdgeProperty removes and persists an edge property removal.
func (b *BadgerEngine) RemoveEdgeProperty(id EdgeID, key string) error {
	return b.singleOp(func(tx *Tx) error {
		return tx.RemoveEdgeProperty(id, key)
	})
}

// DeleteEdge deletes an edge and persists the change.
func (b *BadgerEngine) DeleteEdge(id EdgeID) error {
	return b.singleOp(func(tx *Tx) error {
		return tx.DeleteEdge(id)
	})
}

// Reads are served entirely by the working set.

func (b *BadgerEngine) GetNode(id NodeID) (*Node, error) { return b.mem.GetNode(id) }
func (b *BadgerEngine) GetEdge(id EdgeID) (*Edge, error) { return b.mem.GetEdge(id) }
func (b *BadgerEngine) NodesByLabel(l string) ([]*Node, error) {
	return b.mem.NodesByLabel(l)
}
func (b *BadgerEngine) EdgesByType(t string) ([]*Edge, error) { return b.mem.EdgesByType(t) }
func (b *BadgerEngine) OutgoingEdges(id NodeID) ([]*Edge, error) {
	return b.mem.OutgoingEdges(id)
}
func (b *BadgerEngine) IncomingEdges(id NodeID) ([]*Edge, error) {
	return b.mem.IncomingEdges(id)
}
func (b *BadgerEngine) AllNodes() ([]*Node, error) { return b.mem.AllNodes() }
func (b *BadgerEngine) AllEdges() ([]*Edge, error) { return b.mem.AllEdges() }
func (b *BadgerEngine) NodeCount() (int64, error) { return b.mem.NodeCount() }
func (b *BadgerEngine) EdgeCount() (int64, error) { return b.mem.EdgeCount() }

// Close releases the working set and the underlying BadgerDB.
func (b *BadgerEngine) Close() error {
	b.mem.Close()
	return b.db.Close()
}

// Verify BadgerEngine implements Engine
var _ Engine = (*BadgerEngine)(nil)
