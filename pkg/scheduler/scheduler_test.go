package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corralhq/corral/pkg/nodes"
	"github.com/corralhq/corral/pkg/runtime"
	"github.com/corralhq/corral/pkg/store"
	"github.com/corralhq/corral/pkg/types"
)

const gb = int64(1024 * 1024 * 1024)

type testCluster struct {
	store   store.Store
	runtime *runtime.SimRuntime
	manager *nodes.Manager
	sched   *Scheduler
}

func newTestCluster(t *testing.T) *testCluster {
	t.Helper()

	st := store.NewMemStore()
	rt := runtime.NewSimRuntime()
	mgr := nodes.NewManager(st, rt, nil, nodes.Config{})
	sched := NewScheduler(st, mgr, nil, Config{})
	return &testCluster{store: st, runtime: rt, manager: mgr, sched: sched}
}

// addReadyNode seeds a Ready node with a live simulated environment. Nodes
// are seeded directly so tests control IDs and with them the first-fit
// tie-break order.
func (tc *testCluster) addReadyNode(t *testing.T, id string, cpu int, memory int64) *types.Node {
	t.Helper()

	handle, err := tc.runtime.CreateEnvironment(context.Background(), runtime.EnvironmentSpec{NodeID: id})
	require.NoError(t, err)
	require.NoError(t, tc.runtime.StartEnvironment(context.Background(), handle))

	node := &types.Node{
		ID:            id,
		Capacity:      types.Resources{CPUCores: cpu, MemoryBytes: memory},
		Phase:         types.NodeReady,
		RuntimeHandle: handle,
		LastHeartbeat: time.Now(),
		CreatedAt:     time.Now(),
	}
	_, err = tc.store.CreateNode(node)
	require.NoError(t, err)
	return node
}

func (tc *testCluster) submitWorkload(t *testing.T, id string, cpu int, memory int64, createdAt time.Time) *types.Workload {
	t.Helper()

	w := &types.Workload{
		ID:        id,
		Name:      id,
		Request:   types.Resources{CPUCores: cpu, MemoryBytes: memory},
		Phase:     types.WorkloadPending,
		CreatedAt: createdAt,
	}
	_, err := tc.store.CreateWorkload(w)
	require.NoError(t, err)
	return w
}

func (tc *testCluster) getWorkload(t *testing.T, id string) *types.Workload {
	t.Helper()
	w, err := tc.store.GetWorkload(id)
	require.NoError(t, err)
	return w
}

func TestFirstFitWorkedExample(t *testing.T) {
	tc := newTestCluster(t)
	tc.addReadyNode(t, "node-a", 4, 16*gb)
	tc.addReadyNode(t, "node-b", 2, 16*gb)

	base := time.Now()
	tc.submitWorkload(t, "w1", 3, gb, base)
	tc.submitWorkload(t, "w2", 3, gb, base.Add(time.Second))

	res, err := tc.sched.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Scheduled)
	assert.Equal(t, 1, res.Started)
	assert.Equal(t, 1, res.Unschedulable)

	w1 := tc.getWorkload(t, "w1")
	assert.Equal(t, types.WorkloadRunning, w1.Phase)
	assert.Equal(t, "node-a", w1.NodeID)

	// Neither node-a's remaining 1 CPU nor node-b's 2 CPU fit w2.
	w2 := tc.getWorkload(t, "w2")
	assert.Equal(t, types.WorkloadPending, w2.Phase)
	assert.Empty(t, w2.NodeID)
	assert.Contains(t, w2.UnscheduledReason, "cannot fit")
}

func TestFIFOOrdering(t *testing.T) {
	tc := newTestCluster(t)
	tc.addReadyNode(t, "node-a", 3, 16*gb)

	base := time.Now()
	// Submitted out of ID order; creation time must win.
	tc.submitWorkload(t, "w-later", 3, gb, base.Add(time.Second))
	tc.submitWorkload(t, "w-earlier", 3, gb, base)

	_, err := tc.sched.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.WorkloadRunning, tc.getWorkload(t, "w-earlier").Phase)
	assert.Equal(t, types.WorkloadPending, tc.getWorkload(t, "w-later").Phase)
}

func TestSchedulingDeterminism(t *testing.T) {
	// Two identical snapshots must produce identical placement decisions.
	placements := func() map[string]string {
		tc := newTestCluster(t)
		tc.addReadyNode(t, "node-a", 4, 16*gb)
		tc.addReadyNode(t, "node-b", 4, 16*gb)
		tc.addReadyNode(t, "node-c", 2, 16*gb)

		base := time.Unix(1700000000, 0)
		for i := 0; i < 6; i++ {
			tc.submitWorkload(t, fmt.Sprintf("w%d", i), 2, gb, base.Add(time.Duration(i)*time.Second))
		}

		_, err := tc.sched.Reconcile(context.Background())
		require.NoError(t, err)

		got := make(map[string]string)
		workloads, err := tc.store.ListWorkloads()
		require.NoError(t, err)
		for _, w := range workloads {
			got[w.ID] = w.NodeID
		}
		return got
	}

	first := placements()
	second := placements()
	assert.Equal(t, first, second)

	// First-fit in ascending node ID order: w0..w1 on a, w2..w3 on b, w4 on c.
	assert.Equal(t, "node-a", first["w0"])
	assert.Equal(t, "node-a", first["w1"])
	assert.Equal(t, "node-b", first["w2"])
	assert.Equal(t, "node-b", first["w3"])
	assert.Equal(t, "node-c", first["w4"])
	assert.Equal(t, "", first["w5"])
}

func TestConvergedPassMakesNoMutations(t *testing.T) {
	tc := newTestCluster(t)
	tc.addReadyNode(t, "node-a", 4, 16*gb)
	tc.submitWorkload(t, "w1", 3, gb, time.Now())
	tc.submitWorkload(t, "w2", 3, gb, time.Now().Add(time.Second))

	_, err := tc.sched.Reconcile(context.Background())
	require.NoError(t, err)
	// Second pass records the unscheduled reason for w2.
	_, err = tc.sched.Reconcile(context.Background())
	require.NoError(t, err)

	revisions := func() map[string]uint64 {
		revs := make(map[string]uint64)
		nodeList, err := tc.store.ListNodes()
		require.NoError(t, err)
		for _, n := range nodeList {
			revs["node/"+n.ID] = n.Revision
		}
		workloads, err := tc.store.ListWorkloads()
		require.NoError(t, err)
		for _, w := range workloads {
			revs["workload/"+w.ID] = w.Revision
		}
		return revs
	}

	before := revisions()
	res, err := tc.sched.Reconcile(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Mutated())
	assert.Equal(t, before, revisions(), "converged pass must not bump any revision")
}

func TestRuntimeRefusalFailsWorkload(t *testing.T) {
	tc := newTestCluster(t)
	node := tc.addReadyNode(t, "node-a", 4, 16*gb)
	tc.submitWorkload(t, "w1", 2, gb, time.Now())

	// Environment dies between the capacity snapshot and the start command.
	tc.runtime.SetAlive(node.RuntimeHandle, false)

	res, err := tc.sched.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scheduled)
	assert.Equal(t, 1, res.Failed)

	w1 := tc.getWorkload(t, "w1")
	assert.Equal(t, types.WorkloadFailed, w1.Phase)
	assert.Empty(t, w1.NodeID, "failed workload must not hold a placement")
	assert.NotEmpty(t, w1.Error)

	// A Failed workload is terminal: the next pass must not resubmit it.
	tc.runtime.SetAlive(node.RuntimeHandle, true)
	res, err = tc.sched.Reconcile(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Mutated())
	assert.Equal(t, types.WorkloadFailed, tc.getWorkload(t, "w1").Phase)
}

func TestEvictionReturnsWorkloadsToPending(t *testing.T) {
	tc := newTestCluster(t)
	tc.addReadyNode(t, "node-a", 4, 16*gb)
	tc.addReadyNode(t, "node-b", 2, 16*gb)
	tc.submitWorkload(t, "w1", 3, gb, time.Now())

	_, err := tc.sched.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, "node-a", tc.getWorkload(t, "w1").NodeID)

	require.NoError(t, tc.manager.Terminate(context.Background(), "node-a"))

	w1 := tc.getWorkload(t, "w1")
	assert.Equal(t, types.WorkloadPending, w1.Phase)
	assert.Empty(t, w1.NodeID)

	// node-b's 2 CPU cannot hold w1's 3; it stays Pending, not an error.
	res, err := tc.sched.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Scheduled)
	assert.Equal(t, 1, res.Unschedulable)
	assert.Equal(t, types.WorkloadPending, tc.getWorkload(t, "w1").Phase)
}

func TestEvictionCountMatchesPlacements(t *testing.T) {
	tc := newTestCluster(t)
	tc.addReadyNode(t, "node-a", 8, 64*gb)
	for i := 0; i < 4; i++ {
		tc.submitWorkload(t, fmt.Sprintf("w%d", i), 2, gb, time.Now().Add(time.Duration(i)*time.Millisecond))
	}

	_, err := tc.sched.Reconcile(context.Background())
	require.NoError(t, err)

	evicted, err := tc.manager.EvictNode("node-a")
	require.NoError(t, err)
	assert.Equal(t, 4, evicted)

	hosted, err := tc.store.ListWorkloadsByNode("node-a")
	require.NoError(t, err)
	assert.Empty(t, hosted, "no placement may reference the drained node")

	workloads, err := tc.store.ListWorkloads()
	require.NoError(t, err)
	for _, w := range workloads {
		assert.Equal(t, types.WorkloadPending, w.Phase)
	}
}

// TestCapacityInvariantUnderConcurrency races workload submissions against
// reconciliation passes and verifies no node ever exceeds its capacity.
func TestCapacityInvariantUnderConcurrency(t *testing.T) {
	tc := newTestCluster(t)
	capacities := map[string]int{"node-a": 4, "node-b": 4, "node-c": 2}
	for id, cpu := range capacities {
		tc.addReadyNode(t, id, cpu, 64*gb)
	}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tc.submitWorkload(t, fmt.Sprintf("w%d", i), 1+i%3, gb, time.Now())
		}(i)
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tc.sched.Reconcile(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Drain the pending pool with a final sequence of passes.
	for i := 0; i < 5; i++ {
		_, err := tc.sched.Reconcile(context.Background())
		require.NoError(t, err)
	}

	for id, cpu := range capacities {
		hosted, err := tc.store.ListWorkloadsByNode(id)
		require.NoError(t, err)
		used := 0
		for _, w := range hosted {
			require.True(t, w.Placed(), "workload indexed by node must hold a placement")
			used += w.Request.CPUCores
		}
		assert.LessOrEqual(t, used, cpu, "node %s overcommitted", id)
	}
}

func TestKickCoalesces(t *testing.T) {
	tc := newTestCluster(t)

	// Kicking an idle scheduler repeatedly must never block.
	for i := 0; i < 10; i++ {
		tc.sched.Kick()
	}
}

func TestStaleBindAbandonedOnConflict(t *testing.T) {
	tc := newTestCluster(t)
	node := tc.addReadyNode(t, "node-a", 4, 16*gb)
	w := tc.submitWorkload(t, "w1", 2, gb, time.Now())

	// Simulate a racing pass: the node revision moves after the snapshot.
	_, err := tc.store.UpdateNode(node, node.Revision)
	require.NoError(t, err)

	_, err = tc.store.BindWorkload(w.ID, w.Revision, node.ID, node.Revision, time.Now())
	assert.ErrorIs(t, err, store.ErrConflict)

	// The workload is untouched and schedulable on the next pass.
	got := tc.getWorkload(t, "w1")
	assert.Equal(t, types.WorkloadPending, got.Phase)

	res, err := tc.sched.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scheduled)
}
