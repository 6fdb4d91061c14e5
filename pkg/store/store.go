package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/corralhq/corral/pkg/types"
)

var (
	// ErrNotFound is returned when no object with the given ID exists.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write presents a stale revision. The
	// caller must re-read and retry; the store never silently overwrites.
	ErrConflict = errors.New("revision conflict")

	// ErrAlreadyExists is returned when creating an object whose ID is taken.
	ErrAlreadyExists = errors.New("already exists")
)

// Store is the authoritative registry of cluster objects and the single
// synchronization point for all cluster state. All mutating operations are
// atomic with respect to each other, and every mutation bumps the object's
// revision.
//
// Update and Delete take the revision the caller last read; a mismatch
// returns ErrConflict. An expected revision of 0 on Delete skips the check
// (writes accept an optional expected revision at the API surface).
type Store interface {
	// Nodes
	CreateNode(node *types.Node) (uint64, error)
	GetNode(id string) (*types.Node, error)
	ListNodes() ([]*types.Node, error)
	UpdateNode(node *types.Node, expectedRevision uint64) (uint64, error)
	DeleteNode(id string, expectedRevision uint64) error

	// Workloads
	CreateWorkload(w *types.Workload) (uint64, error)
	GetWorkload(id string) (*types.Workload, error)
	ListWorkloads() ([]*types.Workload, error)
	ListWorkloadsByNode(nodeID string) ([]*types.Workload, error)
	UpdateWorkload(w *types.Workload, expectedRevision uint64) (uint64, error)
	DeleteWorkload(id string, expectedRevision uint64) error

	// BindWorkload atomically commits a placement: it verifies that the
	// workload is still Pending at workloadRev and the node is still Ready
	// at nodeRev, moves the workload to Scheduled on that node, and bumps
	// BOTH revisions. Bumping the node revision is what lets concurrent
	// reconciliation passes detect each other's placements: a pass holding
	// a stale node snapshot gets ErrConflict instead of overcommitting the
	// node's capacity.
	BindWorkload(workloadID string, workloadRev uint64, nodeID string, nodeRev uint64, at time.Time) (*types.Workload, error)

	Close() error
}

const maxMutateRetries = 5

// MutateNode applies a read-mutate-commit cycle to one node, retrying a
// bounded number of times on revision conflict. fn returns false to skip
// the write when the mutation turns out to be a no-op.
func MutateNode(s Store, id string, fn func(*types.Node) (bool, error)) (*types.Node, error) {
	for i := 0; i < maxMutateRetries; i++ {
		node, err := s.GetNode(id)
		if err != nil {
			return nil, err
		}
		changed, err := fn(node)
		if err != nil {
			return nil, err
		}
		if !changed {
			return node, nil
		}
		rev, err := s.UpdateNode(node, node.Revision)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		node.Revision = rev
		return node, nil
	}
	return nil, fmt.Errorf("node %s: %w after %d attempts", id, ErrConflict, maxMutateRetries)
}

// MutateWorkload is the workload counterpart of MutateNode.
func MutateWorkload(s Store, id string, fn func(*types.Workload) (bool, error)) (*types.Workload, error) {
	for i := 0; i < maxMutateRetries; i++ {
		w, err := s.GetWorkload(id)
		if err != nil {
			return nil, err
		}
		changed, err := fn(w)
		if err != nil {
			return nil, err
		}
		if !changed {
			return w, nil
		}
		rev, err := s.UpdateWorkload(w, w.Revision)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		w.Revision = rev
		return w, nil
	}
	return nil, fmt.Errorf("workload %s: %w after %d attempts", id, ErrConflict, maxMutateRetries)
}
