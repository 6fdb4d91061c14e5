package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/corralhq/corral/pkg/events"
	"github.com/corralhq/corral/pkg/log"
	"github.com/corralhq/corral/pkg/metrics"
	"github.com/corralhq/corral/pkg/runtime"
	"github.com/corralhq/corral/pkg/store"
	"github.com/corralhq/corral/pkg/types"
)

// Config holds node lifecycle settings.
type Config struct {
	// EnvironmentImage is the container image backing each node.
	EnvironmentImage string

	// DataDir is bind-mounted read-only into each environment when set.
	DataDir string

	// RuntimeTimeout bounds every call to the container runtime. A call
	// that exceeds it is treated as failed, never retried forever.
	RuntimeTimeout time.Duration

	// DrainTimeout is the graceful-stop window during teardown.
	DrainTimeout time.Duration

	// HeartbeatInterval is the health monitor probe period.
	HeartbeatInterval time.Duration

	// MissedHeartbeatThreshold is the number of consecutive missed probes
	// after which a Ready node is marked Failed.
	MissedHeartbeatThreshold int
}

func (c Config) withDefaults() Config {
	if c.EnvironmentImage == "" {
		c.EnvironmentImage = "docker.io/library/busybox:latest"
	}
	if c.RuntimeTimeout <= 0 {
		c.RuntimeTimeout = 30 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.MissedHeartbeatThreshold <= 0 {
		c.MissedHeartbeatThreshold = 3
	}
	return c
}

// Manager owns node lifecycle: it is the only component that talks to the
// container runtime, and the only writer of node phase transitions. Nodes
// live in the store; the manager holds no private copies beyond the working
// snapshot of one decision.
type Manager struct {
	store   store.Store
	runtime runtime.Runtime
	broker  *events.Broker
	cfg     Config
	logger  zerolog.Logger
	stopCh  chan struct{}

	// kick wakes the scheduler after mutations that free or add capacity.
	kick func()
}

// NewManager creates a node lifecycle manager.
func NewManager(s store.Store, rt runtime.Runtime, broker *events.Broker, cfg Config) *Manager {
	return &Manager{
		store:   s,
		runtime: rt,
		broker:  broker,
		cfg:     cfg.withDefaults(),
		logger:  log.WithComponent("nodes"),
		stopCh:  make(chan struct{}),
	}
}

// SetKick registers the scheduler wake-up callback. The scheduler is built
// after the manager, so the hook is attached late.
func (m *Manager) SetKick(kick func()) {
	m.kick = kick
}

func (m *Manager) wake() {
	if m.kick != nil {
		m.kick()
	}
}

func (m *Manager) publish(event *events.Event) {
	if m.broker != nil {
		m.broker.Publish(event)
	}
}

// Provision creates one isolated execution environment and records the node
// through Pending, Provisioning, and Ready. A runtime failure marks the node
// Failed and surfaces the error; the caller decides whether to resubmit.
func (m *Manager) Provision(ctx context.Context, capacity types.Resources) (*types.Node, error) {
	node := &types.Node{
		ID:        uuid.New().String(),
		Capacity:  capacity,
		Phase:     types.NodePending,
		CreatedAt: time.Now(),
	}
	if _, err := m.store.CreateNode(node); err != nil {
		return nil, fmt.Errorf("failed to record node: %w", err)
	}

	logger := m.logger.With().Str("node_id", node.ID).Logger()
	logger.Info().Int("cpu_cores", capacity.CPUCores).Int64("memory_bytes", capacity.MemoryBytes).
		Msg("provisioning node")

	rtCtx, cancel := context.WithTimeout(ctx, m.cfg.RuntimeTimeout)
	handle, err := m.runtime.CreateEnvironment(rtCtx, runtime.EnvironmentSpec{
		NodeID:   node.ID,
		Image:    m.cfg.EnvironmentImage,
		Capacity: capacity,
		DataDir:  m.cfg.DataDir,
	})
	cancel()
	if err != nil {
		return m.failNode(node.ID, fmt.Errorf("create environment: %w", err))
	}

	node, err = store.MutateNode(m.store, node.ID, func(n *types.Node) (bool, error) {
		n.Phase = types.NodeProvisioning
		n.RuntimeHandle = handle
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(&events.Event{Type: events.EventNodeProvisioned, NodeID: node.ID})

	rtCtx, cancel = context.WithTimeout(ctx, m.cfg.RuntimeTimeout)
	err = m.runtime.StartEnvironment(rtCtx, handle)
	cancel()
	if err != nil {
		return m.failNode(node.ID, fmt.Errorf("start environment: %w", err))
	}

	rtCtx, cancel = context.WithTimeout(ctx, m.cfg.RuntimeTimeout)
	alive, err := m.runtime.IsAlive(rtCtx, handle)
	cancel()
	if err != nil {
		return m.failNode(node.ID, fmt.Errorf("probe environment: %w", err))
	}
	if !alive {
		return m.failNode(node.ID, fmt.Errorf("%w: environment not live after start", runtime.ErrRuntime))
	}

	node, err = store.MutateNode(m.store, node.ID, func(n *types.Node) (bool, error) {
		n.Phase = types.NodeReady
		n.LastHeartbeat = time.Now()
		n.MissedHeartbeats = 0
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Msg("node ready")
	m.publish(&events.Event{Type: events.EventNodeReady, NodeID: node.ID})
	m.wake()
	return node, nil
}

// failNode commits the Failed phase with the surfaced error and returns the
// updated node alongside the original error.
func (m *Manager) failNode(nodeID string, cause error) (*types.Node, error) {
	metrics.RuntimeErrorsTotal.Inc()
	node, err := store.MutateNode(m.store, nodeID, func(n *types.Node) (bool, error) {
		if n.Phase == types.NodeFailed {
			return false, nil
		}
		n.Phase = types.NodeFailed
		n.Error = cause.Error()
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("marking node %s failed after %v: %w", nodeID, cause, err)
	}
	m.logger.Error().Str("node_id", nodeID).Err(cause).Msg("node failed")
	m.publish(&events.Event{Type: events.EventNodeFailed, NodeID: nodeID, Message: cause.Error()})
	return node, cause
}

// Terminate drains the node, evicts every hosted placement, tears down the
// backing environment, and removes the node record. No workload is silently
// lost: each eviction is a recorded phase transition back to Pending.
func (m *Manager) Terminate(ctx context.Context, nodeID string) error {
	node, err := m.store.GetNode(nodeID)
	if err != nil {
		return err
	}
	if node.Phase == types.NodeDeleted {
		return nil
	}

	logger := m.logger.With().Str("node_id", nodeID).Logger()

	node, err = store.MutateNode(m.store, nodeID, func(n *types.Node) (bool, error) {
		if n.Phase == types.NodeDraining {
			return false, nil
		}
		n.Phase = types.NodeDraining
		return true, nil
	})
	if err != nil {
		return err
	}

	evicted, err := m.EvictNode(nodeID)
	if err != nil {
		return fmt.Errorf("evicting workloads from node %s: %w", nodeID, err)
	}
	if evicted > 0 {
		logger.Info().Int("evicted", evicted).Msg("evicted workloads before teardown")
	}

	if node.RuntimeHandle != "" {
		rtCtx, cancel := context.WithTimeout(ctx, m.cfg.RuntimeTimeout)
		if err := m.runtime.StopEnvironment(rtCtx, node.RuntimeHandle, m.cfg.DrainTimeout); err != nil {
			logger.Warn().Err(err).Msg("failed to stop environment, forcing removal")
		}
		cancel()

		rtCtx, cancel = context.WithTimeout(ctx, m.cfg.RuntimeTimeout)
		err = m.runtime.RemoveEnvironment(rtCtx, node.RuntimeHandle)
		cancel()
		if err != nil {
			metrics.RuntimeErrorsTotal.Inc()
			if _, serr := store.MutateNode(m.store, nodeID, func(n *types.Node) (bool, error) {
				n.Error = err.Error()
				return true, nil
			}); serr != nil {
				logger.Error().Err(serr).Msg("failed to record teardown error")
			}
			return fmt.Errorf("teardown of node %s: %w", nodeID, err)
		}
	}

	if _, err := store.MutateNode(m.store, nodeID, func(n *types.Node) (bool, error) {
		n.Phase = types.NodeDeleted
		return true, nil
	}); err != nil {
		return err
	}
	if err := m.store.DeleteNode(nodeID, 0); err != nil {
		return err
	}

	logger.Info().Msg("node deleted")
	m.publish(&events.Event{Type: events.EventNodeDeleted, NodeID: nodeID})
	m.wake()
	return nil
}

// EvictNode forces every workload placed on the node back to Pending for
// rescheduling. Returns the number of evicted workloads.
func (m *Manager) EvictNode(nodeID string) (int, error) {
	hosted, err := m.store.ListWorkloadsByNode(nodeID)
	if err != nil {
		return 0, err
	}

	evicted := 0
	for _, w := range hosted {
		if !w.Placed() {
			continue
		}
		if _, err := store.MutateWorkload(m.store, w.ID, func(cur *types.Workload) (bool, error) {
			if !cur.Placed() || cur.NodeID != nodeID {
				return false, nil
			}
			cur.Phase = types.WorkloadPending
			cur.NodeID = ""
			cur.ScheduledAt = time.Time{}
			cur.StartedAt = time.Time{}
			return true, nil
		}); err != nil {
			return evicted, err
		}
		evicted++
		metrics.EvictionsTotal.Inc()
		m.publish(&events.Event{
			Type:       events.EventWorkloadEvicted,
			NodeID:     nodeID,
			WorkloadID: w.ID,
			Message:    "hosting node lost",
		})
	}
	return evicted, nil
}

// StartWorkload is the start command the scheduler issues for a newly
// scheduled workload: it confirms the node is still Ready and its
// environment live. A refusal is returned as an error; the scheduler owns
// the resulting workload phase transition.
func (m *Manager) StartWorkload(ctx context.Context, nodeID string, w *types.Workload) error {
	node, err := m.store.GetNode(nodeID)
	if err != nil {
		return err
	}
	if node.Phase != types.NodeReady {
		return fmt.Errorf("%w: node %s is %s, refusing start", runtime.ErrRuntime, nodeID, node.Phase)
	}

	rtCtx, cancel := context.WithTimeout(ctx, m.cfg.RuntimeTimeout)
	defer cancel()
	alive, err := m.runtime.IsAlive(rtCtx, node.RuntimeHandle)
	if err != nil {
		metrics.RuntimeErrorsTotal.Inc()
		return fmt.Errorf("probing node %s for workload %s: %w", nodeID, w.ID, err)
	}
	if !alive {
		metrics.RuntimeErrorsTotal.Inc()
		return fmt.Errorf("%w: environment of node %s not live, refusing start", runtime.ErrRuntime, nodeID)
	}
	return nil
}

// Heartbeat records an explicit heartbeat from a node, resetting its missed
// probe counter.
func (m *Manager) Heartbeat(nodeID string) error {
	_, err := store.MutateNode(m.store, nodeID, func(n *types.Node) (bool, error) {
		if n.Phase == types.NodeDeleted {
			return false, fmt.Errorf("node %s: %w", nodeID, store.ErrNotFound)
		}
		n.LastHeartbeat = time.Now()
		n.MissedHeartbeats = 0
		return true, nil
	})
	return err
}
