package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/corralhq/corral/pkg/types"
)

var (
	bucketNodes     = []byte("nodes")
	bucketWorkloads = []byte("workloads")
)

// BoltStore implements Store on top of bbolt so the cluster registry
// survives control-plane restarts. Revision checks run inside the write
// transaction, which makes every mutation atomic with respect to all
// others.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the registry database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "corral.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketNodes, bucketWorkloads} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func put(b *bolt.Bucket, id string, obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return b.Put([]byte(id), data)
}

// Node operations

func (s *BoltStore) CreateNode(node *types.Node) (uint64, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		if b.Get([]byte(node.ID)) != nil {
			return fmt.Errorf("node %s: %w", node.ID, ErrAlreadyExists)
		}
		node.Revision = 1
		return put(b, node.ID, node)
	})
	if err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *BoltStore) GetNode(id string) (*types.Node, error) {
	var node types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketNodes).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("node %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &node)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *BoltStore) ListNodes() ([]*types.Node, error) {
	var nodes []*types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
			var node types.Node
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			nodes = append(nodes, &node)
			return nil
		})
	})
	return nodes, err
}

func (s *BoltStore) UpdateNode(node *types.Node, expectedRevision uint64) (uint64, error) {
	var newRev uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		data := b.Get([]byte(node.ID))
		if data == nil {
			return fmt.Errorf("node %s: %w", node.ID, ErrNotFound)
		}
		var current types.Node
		if err := json.Unmarshal(data, &current); err != nil {
			return err
		}
		if current.Revision != expectedRevision {
			return fmt.Errorf("node %s: expected revision %d, have %d: %w",
				node.ID, expectedRevision, current.Revision, ErrConflict)
		}
		c := node.Clone()
		c.Revision = current.Revision + 1
		newRev = c.Revision
		return put(b, c.ID, c)
	})
	if err != nil {
		return 0, err
	}
	return newRev, nil
}

func (s *BoltStore) DeleteNode(id string, expectedRevision uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("node %s: %w", id, ErrNotFound)
		}
		if expectedRevision != 0 {
			var current types.Node
			if err := json.Unmarshal(data, &current); err != nil {
				return err
			}
			if current.Revision != expectedRevision {
				return fmt.Errorf("node %s: expected revision %d, have %d: %w",
					id, expectedRevision, current.Revision, ErrConflict)
			}
		}
		return b.Delete([]byte(id))
	})
}

// Workload operations

func (s *BoltStore) CreateWorkload(w *types.Workload) (uint64, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkloads)
		if b.Get([]byte(w.ID)) != nil {
			return fmt.Errorf("workload %s: %w", w.ID, ErrAlreadyExists)
		}
		w.Revision = 1
		return put(b, w.ID, w)
	})
	if err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *BoltStore) GetWorkload(id string) (*types.Workload, error) {
	var w types.Workload
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketWorkloads).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("workload %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &w)
	})
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *BoltStore) ListWorkloads() ([]*types.Workload, error) {
	var workloads []*types.Workload
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWorkloads).ForEach(func(k, v []byte) error {
			var w types.Workload
			if err := json.Unmarshal(v, &w); err != nil {
				return err
			}
			workloads = append(workloads, &w)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(workloads, func(i, j int) bool { return workloads[i].ID < workloads[j].ID })
	return workloads, nil
}

func (s *BoltStore) ListWorkloadsByNode(nodeID string) ([]*types.Workload, error) {
	all, err := s.ListWorkloads()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Workload
	for _, w := range all {
		if w.NodeID == nodeID {
			filtered = append(filtered, w)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateWorkload(w *types.Workload, expectedRevision uint64) (uint64, error) {
	var newRev uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkloads)
		data := b.Get([]byte(w.ID))
		if data == nil {
			return fmt.Errorf("workload %s: %w", w.ID, ErrNotFound)
		}
		var current types.Workload
		if err := json.Unmarshal(data, &current); err != nil {
			return err
		}
		if current.Revision != expectedRevision {
			return fmt.Errorf("workload %s: expected revision %d, have %d: %w",
				w.ID, expectedRevision, current.Revision, ErrConflict)
		}
		c := w.Clone()
		c.Revision = current.Revision + 1
		newRev = c.Revision
		return put(b, c.ID, c)
	})
	if err != nil {
		return 0, err
	}
	return newRev, nil
}

func (s *BoltStore) DeleteWorkload(id string, expectedRevision uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkloads)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("workload %s: %w", id, ErrNotFound)
		}
		if expectedRevision != 0 {
			var current types.Workload
			if err := json.Unmarshal(data, &current); err != nil {
				return err
			}
			if current.Revision != expectedRevision {
				return fmt.Errorf("workload %s: expected revision %d, have %d: %w",
					id, expectedRevision, current.Revision, ErrConflict)
			}
		}
		return b.Delete([]byte(id))
	})
}

func (s *BoltStore) BindWorkload(workloadID string, workloadRev uint64, nodeID string, nodeRev uint64, at time.Time) (*types.Workload, error) {
	var bound *types.Workload
	err := s.db.Update(func(tx *bolt.Tx) error {
		wb := tx.Bucket(bucketWorkloads)
		nb := tx.Bucket(bucketNodes)

		data := wb.Get([]byte(workloadID))
		if data == nil {
			return fmt.Errorf("workload %s: %w", workloadID, ErrNotFound)
		}
		var w types.Workload
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		if w.Revision != workloadRev {
			return fmt.Errorf("workload %s: expected revision %d, have %d: %w",
				workloadID, workloadRev, w.Revision, ErrConflict)
		}
		if w.Phase != types.WorkloadPending {
			return fmt.Errorf("workload %s: phase %s is not pending: %w",
				workloadID, w.Phase, ErrConflict)
		}

		data = nb.Get([]byte(nodeID))
		if data == nil {
			return fmt.Errorf("node %s: %w", nodeID, ErrNotFound)
		}
		var node types.Node
		if err := json.Unmarshal(data, &node); err != nil {
			return err
		}
		if node.Revision != nodeRev {
			return fmt.Errorf("node %s: expected revision %d, have %d: %w",
				nodeID, nodeRev, node.Revision, ErrConflict)
		}
		if node.Phase != types.NodeReady {
			return fmt.Errorf("node %s: phase %s is not ready: %w",
				nodeID, node.Phase, ErrConflict)
		}

		w.Phase = types.WorkloadScheduled
		w.NodeID = nodeID
		w.ScheduledAt = at
		w.UnscheduledReason = ""
		w.Revision++
		if err := put(wb, w.ID, &w); err != nil {
			return err
		}

		node.Revision++
		if err := put(nb, node.ID, &node); err != nil {
			return err
		}

		bound = &w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bound, nil
}
