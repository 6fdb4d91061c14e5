package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/corralhq/corral/pkg/events"
	"github.com/corralhq/corral/pkg/metrics"
	"github.com/corralhq/corral/pkg/runtime"
	"github.com/corralhq/corral/pkg/store"
	"github.com/corralhq/corral/pkg/types"
)

// Start launches the health monitor loop. The monitor probes every Ready
// node each interval; a node that misses the configured number of
// consecutive probes is marked Failed and its workloads evicted.
func (m *Manager) Start() {
	go m.monitor()
	m.logger.Info().
		Dur("interval", m.cfg.HeartbeatInterval).
		Int("threshold", m.cfg.MissedHeartbeatThreshold).
		Msg("health monitor started")
}

// Stop halts the health monitor loop.
func (m *Manager) Stop() {
	close(m.stopCh)
}

func (m *Manager) monitor() {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CheckAll(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// CheckAll runs one health pass over every Ready node.
func (m *Manager) CheckAll(ctx context.Context) {
	nodeList, err := m.store.ListNodes()
	if err != nil {
		m.logger.Error().Err(err).Msg("health pass: failed to list nodes")
		return
	}
	for _, node := range nodeList {
		if node.Phase != types.NodeReady {
			continue
		}
		if _, err := m.HealthCheck(ctx, node.ID); err != nil {
			m.logger.Error().Str("node_id", node.ID).Err(err).Msg("health check error")
		}
	}
}

// HealthCheck probes one node's environment and commits the resulting phase.
// A live probe resets the missed counter; a dead probe increments it, and
// crossing the threshold marks the node Failed and evicts its workloads.
// The returned phase is the node's phase after the check.
func (m *Manager) HealthCheck(ctx context.Context, nodeID string) (types.NodePhase, error) {
	node, err := m.store.GetNode(nodeID)
	if err != nil {
		return "", err
	}
	if node.Phase != types.NodeReady {
		return node.Phase, nil
	}

	rtCtx, cancel := context.WithTimeout(ctx, m.cfg.RuntimeTimeout)
	alive, err := m.runtime.IsAlive(rtCtx, node.RuntimeHandle)
	cancel()
	if err != nil {
		// A probe error counts as a miss, same as a dead environment.
		m.logger.Warn().Str("node_id", nodeID).Err(err).Msg("health probe failed")
		alive = false
	}

	if alive {
		if _, err := store.MutateNode(m.store, nodeID, func(n *types.Node) (bool, error) {
			if n.Phase != types.NodeReady {
				return false, nil
			}
			n.LastHeartbeat = time.Now()
			n.MissedHeartbeats = 0
			return true, nil
		}); err != nil {
			return types.NodeReady, err
		}
		return types.NodeReady, nil
	}

	missed := 0
	node, err = store.MutateNode(m.store, nodeID, func(n *types.Node) (bool, error) {
		if n.Phase != types.NodeReady {
			return false, nil
		}
		n.MissedHeartbeats++
		missed = n.MissedHeartbeats
		return true, nil
	})
	if err != nil {
		return types.NodeReady, err
	}
	m.logger.Warn().Str("node_id", nodeID).Int("missed", missed).Msg("missed heartbeat")

	if missed < m.cfg.MissedHeartbeatThreshold {
		return node.Phase, nil
	}

	cause := fmt.Errorf("%w: %d consecutive heartbeats missed", runtime.ErrRuntime, missed)
	if _, err := m.failNode(nodeID, cause); err != nil && err != cause {
		return types.NodeFailed, err
	}
	evicted, err := m.EvictNode(nodeID)
	if err != nil {
		return types.NodeFailed, err
	}
	if evicted > 0 {
		m.publish(&events.Event{
			Type:    events.EventNodeFailed,
			NodeID:  nodeID,
			Message: fmt.Sprintf("evicted %d workloads from failed node", evicted),
		})
	}
	metrics.NodeFailuresTotal.Inc()
	m.wake()
	return types.NodeFailed, nil
}
