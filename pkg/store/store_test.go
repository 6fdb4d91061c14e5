package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corralhq/corral/pkg/types"
)

const gb = int64(1024 * 1024 * 1024)

// withStores runs the same assertions against both store implementations.
func withStores(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemStore())
	})
	t.Run("bolt", func(t *testing.T) {
		s, err := NewBoltStore(t.TempDir())
		require.NoError(t, err)
		defer func() { _ = s.Close() }()
		fn(t, s)
	})
}

func testNode(id string, cpu int) *types.Node {
	return &types.Node{
		ID:        id,
		Capacity:  types.Resources{CPUCores: cpu, MemoryBytes: 8 * gb},
		Phase:     types.NodeReady,
		CreatedAt: time.Now(),
	}
}

func testWorkload(id string, cpu int) *types.Workload {
	return &types.Workload{
		ID:        id,
		Name:      id,
		Request:   types.Resources{CPUCores: cpu, MemoryBytes: gb},
		Phase:     types.WorkloadPending,
		CreatedAt: time.Now(),
	}
}

func TestCreateAndGetNode(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		node := testNode("node-a", 4)
		rev, err := s.CreateNode(node)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), rev)

		got, err := s.GetNode("node-a")
		require.NoError(t, err)
		assert.Equal(t, node.Capacity, got.Capacity)
		assert.Equal(t, uint64(1), got.Revision)
	})
}

func TestCreateNodeDuplicate(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		_, err := s.CreateNode(testNode("node-a", 4))
		require.NoError(t, err)

		_, err = s.CreateNode(testNode("node-a", 2))
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})
}

func TestGetNodeNotFound(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		_, err := s.GetNode("missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUpdateNodeRevisionCheck(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		node := testNode("node-a", 4)
		_, err := s.CreateNode(node)
		require.NoError(t, err)

		node.Phase = types.NodeDraining
		rev, err := s.UpdateNode(node, 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), rev)

		// A second writer holding the stale revision must conflict, never
		// silently win.
		node.Phase = types.NodeFailed
		_, err = s.UpdateNode(node, 1)
		assert.ErrorIs(t, err, ErrConflict)

		got, err := s.GetNode("node-a")
		require.NoError(t, err)
		assert.Equal(t, types.NodeDraining, got.Phase)
	})
}

func TestDeleteNodeRevisionCheck(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		node := testNode("node-a", 4)
		_, err := s.CreateNode(node)
		require.NoError(t, err)

		assert.ErrorIs(t, s.DeleteNode("node-a", 99), ErrConflict)

		// Zero means unconditional.
		require.NoError(t, s.DeleteNode("node-a", 0))
		_, err = s.GetNode("node-a")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestListNodesSorted(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		for _, id := range []string{"node-c", "node-a", "node-b"} {
			_, err := s.CreateNode(testNode(id, 2))
			require.NoError(t, err)
		}

		nodes, err := s.ListNodes()
		require.NoError(t, err)
		require.Len(t, nodes, 3)
		assert.Equal(t, "node-a", nodes[0].ID)
		assert.Equal(t, "node-b", nodes[1].ID)
		assert.Equal(t, "node-c", nodes[2].ID)
	})
}

func TestWorkloadCRUD(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		w := testWorkload("w1", 2)
		rev, err := s.CreateWorkload(w)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), rev)

		got, err := s.GetWorkload("w1")
		require.NoError(t, err)
		assert.Equal(t, types.WorkloadPending, got.Phase)

		got.Phase = types.WorkloadTerminated
		_, err = s.UpdateWorkload(got, got.Revision)
		require.NoError(t, err)

		_, err = s.UpdateWorkload(got, got.Revision)
		assert.ErrorIs(t, err, ErrConflict)

		require.NoError(t, s.DeleteWorkload("w1", 0))
		_, err = s.GetWorkload("w1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestListWorkloadsByNode(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		node := testNode("node-a", 8)
		_, err := s.CreateNode(node)
		require.NoError(t, err)

		w1 := testWorkload("w1", 2)
		_, err = s.CreateWorkload(w1)
		require.NoError(t, err)
		w2 := testWorkload("w2", 2)
		_, err = s.CreateWorkload(w2)
		require.NoError(t, err)

		_, err = s.BindWorkload("w1", 1, "node-a", 1, time.Now())
		require.NoError(t, err)

		hosted, err := s.ListWorkloadsByNode("node-a")
		require.NoError(t, err)
		require.Len(t, hosted, 1)
		assert.Equal(t, "w1", hosted[0].ID)
	})
}

func TestBindWorkload(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		_, err := s.CreateNode(testNode("node-a", 4))
		require.NoError(t, err)
		_, err = s.CreateWorkload(testWorkload("w1", 2))
		require.NoError(t, err)

		bound, err := s.BindWorkload("w1", 1, "node-a", 1, time.Now())
		require.NoError(t, err)
		assert.Equal(t, types.WorkloadScheduled, bound.Phase)
		assert.Equal(t, "node-a", bound.NodeID)
		assert.False(t, bound.ScheduledAt.IsZero())

		// Both revisions moved: the workload's and the node's.
		node, err := s.GetNode("node-a")
		require.NoError(t, err)
		assert.Equal(t, uint64(2), node.Revision)
		assert.Equal(t, uint64(2), bound.Revision)
	})
}

func TestBindWorkloadStaleNodeRevision(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		node := testNode("node-a", 4)
		_, err := s.CreateNode(node)
		require.NoError(t, err)
		_, err = s.CreateWorkload(testWorkload("w1", 2))
		require.NoError(t, err)

		// Node revision moves between snapshot and bind.
		_, err = s.UpdateNode(node, 1)
		require.NoError(t, err)

		_, err = s.BindWorkload("w1", 1, "node-a", 1, time.Now())
		assert.ErrorIs(t, err, ErrConflict)

		// Conflict means no mutation: the workload stays Pending.
		got, err := s.GetWorkload("w1")
		require.NoError(t, err)
		assert.Equal(t, types.WorkloadPending, got.Phase)
		assert.Empty(t, got.NodeID)
	})
}

func TestBindWorkloadNonReadyNode(t *testing.T) {
	withStores(t, func(t *testing.T, s Store) {
		node := testNode("node-a", 4)
		node.Phase = types.NodeDraining
		_, err := s.CreateNode(node)
		require.NoError(t, err)
		_, err = s.CreateWorkload(testWorkload("w1", 2))
		require.NoError(t, err)

		_, err = s.BindWorkload("w1", 1, "node-a", 1, time.Now())
		assert.ErrorIs(t, err, ErrConflict)
	})
}

func TestMutateNodeRetriesOnConflict(t *testing.T) {
	s := NewMemStore()
	node := testNode("node-a", 4)
	_, err := s.CreateNode(node)
	require.NoError(t, err)

	calls := 0
	got, err := MutateNode(s, "node-a", func(n *types.Node) (bool, error) {
		calls++
		if calls == 1 {
			// Simulate a racing writer between read and commit.
			fresh, gerr := s.GetNode("node-a")
			require.NoError(t, gerr)
			_, uerr := s.UpdateNode(fresh, fresh.Revision)
			require.NoError(t, uerr)
		}
		n.Phase = types.NodeDraining
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "mutate must retry after the injected conflict")
	assert.Equal(t, types.NodeDraining, got.Phase)
}

func TestMutateWorkloadSkipsNoOpWrite(t *testing.T) {
	s := NewMemStore()
	_, err := s.CreateWorkload(testWorkload("w1", 2))
	require.NoError(t, err)

	got, err := MutateWorkload(s, "w1", func(w *types.Workload) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Revision, "skipped write must not bump the revision")
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewBoltStore(dir)
	require.NoError(t, err)
	_, err = s.CreateNode(testNode("node-a", 4))
	require.NoError(t, err)
	_, err = s.CreateWorkload(testWorkload("w1", 2))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewBoltStore(dir)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	node, err := s.GetNode("node-a")
	require.NoError(t, err)
	assert.Equal(t, 4, node.Capacity.CPUCores)

	w, err := s.GetWorkload("w1")
	require.NoError(t, err)
	assert.Equal(t, types.WorkloadPending, w.Phase)
}

func TestErrorsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrConflict, ErrNotFound))
	assert.False(t, errors.Is(ErrAlreadyExists, ErrConflict))
}
