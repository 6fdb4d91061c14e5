package client

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corralhq/corral/pkg/api"
	"github.com/corralhq/corral/pkg/nodes"
	"github.com/corralhq/corral/pkg/runtime"
	"github.com/corralhq/corral/pkg/scheduler"
	"github.com/corralhq/corral/pkg/store"
	"github.com/corralhq/corral/pkg/types"
)

const gb = int64(1024 * 1024 * 1024)

func newTestClient(t *testing.T) (*Client, *scheduler.Scheduler) {
	t.Helper()

	st := store.NewMemStore()
	rt := runtime.NewSimRuntime()
	mgr := nodes.NewManager(st, rt, nil, nodes.Config{})
	sched := scheduler.NewScheduler(st, mgr, nil, scheduler.Config{})
	srv := api.NewServer(":0", st, mgr, sched, nil)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return NewClient(ts.URL), sched
}

func TestClientRoundTrip(t *testing.T) {
	c, sched := newTestClient(t)

	node, err := c.CreateNode(4, 8*gb)
	require.NoError(t, err)
	assert.Equal(t, types.NodeReady, node.Phase)

	workload, err := c.CreateWorkload("web", 2, gb)
	require.NoError(t, err)
	assert.Equal(t, types.WorkloadPending, workload.Phase)

	_, err = sched.Reconcile(context.Background())
	require.NoError(t, err)

	got, err := c.GetWorkload(workload.ID)
	require.NoError(t, err)
	assert.Equal(t, types.WorkloadRunning, got.Phase)
	assert.Equal(t, node.ID, got.NodeID)

	status, err := c.ClusterStatus()
	require.NoError(t, err)
	require.Len(t, status.Nodes, 1)
	assert.Equal(t, 2, status.Nodes[0].Free.CPUCores)

	require.NoError(t, c.DeleteWorkload(workload.ID, 0))
	require.NoError(t, c.DeleteNode(node.ID, 0))

	nodeList, err := c.ListNodes()
	require.NoError(t, err)
	assert.Empty(t, nodeList)
}

func TestClientErrorMapping(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.GetNode("missing")
	assert.True(t, IsNotFound(err), "expected not-found, got %v", err)

	node, err := c.CreateNode(2, gb)
	require.NoError(t, err)

	err = c.DeleteNode(node.ID, 999)
	assert.True(t, IsConflict(err), "expected conflict, got %v", err)

	_, err = c.CreateNode(0, gb)
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.False(t, IsConflict(err))
}
