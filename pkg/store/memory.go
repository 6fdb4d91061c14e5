package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/corralhq/corral/pkg/types"
)

// MemStore implements Store as a mutex-guarded in-memory registry. It is
// the default for tests and for running the control plane without a data
// directory. Objects are cloned on the way in and out so callers never
// share memory with store-held state.
type MemStore struct {
	mu        sync.RWMutex
	nodes     map[string]*types.Node
	workloads map[string]*types.Workload
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		nodes:     make(map[string]*types.Node),
		workloads: make(map[string]*types.Workload),
	}
}

// Node operations

func (s *MemStore) CreateNode(node *types.Node) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[node.ID]; ok {
		return 0, fmt.Errorf("node %s: %w", node.ID, ErrAlreadyExists)
	}
	c := node.Clone()
	c.Revision = 1
	s.nodes[node.ID] = c
	node.Revision = 1
	return 1, nil
}

func (s *MemStore) GetNode(id string) (*types.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return node.Clone(), nil
}

func (s *MemStore) ListNodes() ([]*types.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]*types.Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		nodes = append(nodes, node.Clone())
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

func (s *MemStore) UpdateNode(node *types.Node, expectedRevision uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.nodes[node.ID]
	if !ok {
		return 0, fmt.Errorf("node %s: %w", node.ID, ErrNotFound)
	}
	if current.Revision != expectedRevision {
		return 0, fmt.Errorf("node %s: expected revision %d, have %d: %w",
			node.ID, expectedRevision, current.Revision, ErrConflict)
	}
	c := node.Clone()
	c.Revision = current.Revision + 1
	s.nodes[node.ID] = c
	return c.Revision, nil
}

func (s *MemStore) DeleteNode(id string, expectedRevision uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	if expectedRevision != 0 && current.Revision != expectedRevision {
		return fmt.Errorf("node %s: expected revision %d, have %d: %w",
			id, expectedRevision, current.Revision, ErrConflict)
	}
	delete(s.nodes, id)
	return nil
}

// Workload operations

func (s *MemStore) CreateWorkload(w *types.Workload) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workloads[w.ID]; ok {
		return 0, fmt.Errorf("workload %s: %w", w.ID, ErrAlreadyExists)
	}
	c := w.Clone()
	c.Revision = 1
	s.workloads[w.ID] = c
	w.Revision = 1
	return 1, nil
}

func (s *MemStore) GetWorkload(id string) (*types.Workload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.workloads[id]
	if !ok {
		return nil, fmt.Errorf("workload %s: %w", id, ErrNotFound)
	}
	return w.Clone(), nil
}

func (s *MemStore) ListWorkloads() ([]*types.Workload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workloads := make([]*types.Workload, 0, len(s.workloads))
	for _, w := range s.workloads {
		workloads = append(workloads, w.Clone())
	}
	sort.Slice(workloads, func(i, j int) bool { return workloads[i].ID < workloads[j].ID })
	return workloads, nil
}

func (s *MemStore) ListWorkloadsByNode(nodeID string) ([]*types.Workload, error) {
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

func (s *MemStore) UpdateWorkload(w *types.Workload, expectedRevision uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.workloads[w.ID]
	if !ok {
		return 0, fmt.Errorf("workload %s: %w", w.ID, ErrNotFound)
	}
	if current.Revision != expectedRevision {
		return 0, fmt.Errorf("workload %s: expected revision %d, have %d: %w",
			w.ID, expectedRevision, current.Revision, ErrConflict)
	}
	c := w.Clone()
	c.Revision = current.Revision + 1
	s.workloads[w.ID] = c
	return c.Revision, nil
}

func (s *MemStore) DeleteWorkload(id string, expectedRevision uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.workloads[id]
	if !ok {
		return fmt.Errorf("workload %s: %w", id, ErrNotFound)
	}
	if expectedRevision != 0 && current.Revision != expectedRevision {
		return fmt.Errorf("workload %s: expected revision %d, have %d: %w",
			id, expectedRevision, current.Revision, ErrConflict)
	}
	delete(s.workloads, id)
	return nil
}

func (s *MemStore) BindWorkload(workloadID string, workloadRev uint64, nodeID string, nodeRev uint64, at time.Time) (*types.Workload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workloads[workloadID]
	if !ok {
		return nil, fmt.Errorf("workload %s: %w", workloadID, ErrNotFound)
	}
	if w.Revision != workloadRev {
		return nil, fmt.Errorf("workload %s: expected revision %d, have %d: %w",
			workloadID, workloadRev, w.Revision, ErrConflict)
	}
	if w.Phase != types.WorkloadPending {
		return nil, fmt.Errorf("workload %s: phase %s is not pending: %w",
			workloadID, w.Phase, ErrConflict)
	}
	node, ok := s.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", nodeID, ErrNotFound)
	}
	if node.Revision != nodeRev {
		return nil, fmt.Errorf("node %s: expected revision %d, have %d: %w",
			nodeID, nodeRev, node.Revision, ErrConflict)
	}
	if node.Phase != types.NodeReady {
		return nil, fmt.Errorf("node %s: phase %s is not ready: %w",
			nodeID, node.Phase, ErrConflict)
	}

	bound := w.Clone()
	bound.Phase = types.WorkloadScheduled
	bound.NodeID = nodeID
	bound.ScheduledAt = at
	bound.UnscheduledReason = ""
	bound.Revision = w.Revision + 1
	s.workloads[workloadID] = bound

	node.Revision++

	return bound.Clone(), nil
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error {
	return nil
}
