package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/corralhq/corral/pkg/events"
	"github.com/corralhq/corral/pkg/log"
	"github.com/corralhq/corral/pkg/metrics"
	"github.com/corralhq/corral/pkg/nodes"
	"github.com/corralhq/corral/pkg/store"
	"github.com/corralhq/corral/pkg/types"
)

// Config holds scheduler settings.
type Config struct {
	// Interval is the periodic reconciliation period. Kick wakes the loop
	// earlier when a relevant mutation lands.
	Interval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	return c
}

// Result summarizes one reconciliation pass.
type Result struct {
	// Scheduled is the number of placements committed this pass.
	Scheduled int
	// Started is the number of workloads that transitioned to Running.
	Started int
	// Failed is the number of workloads that transitioned to Failed after
	// a runtime refusal.
	Failed int
	// Unschedulable is the number of Pending workloads no Ready node fits.
	Unschedulable int
	// Conflicts is the number of placements abandoned because a revision
	// moved under the pass. Those workloads are retried next pass.
	Conflicts int
}

// Mutated reports whether the pass committed any state change.
func (r Result) Mutated() bool {
	return r.Scheduled > 0 || r.Started > 0 || r.Failed > 0 || r.Conflicts > 0
}

// Scheduler is the reconciliation loop: it compares desired state (Pending
// workloads) with observed state (Ready nodes and their free capacity) and
// converges by committing placements through revision-checked store writes.
// Placement policy is FIFO over workloads, first-fit over nodes in ascending
// ID order. Deliberately not bin-packing; determinism over optimality.
type Scheduler struct {
	store   store.Store
	manager *nodes.Manager
	broker  *events.Broker
	cfg     Config
	logger  zerolog.Logger

	mu     sync.Mutex // serializes passes; concurrent passes are safe but wasteful
	kickCh chan struct{}
	stopCh chan struct{}
}

// NewScheduler creates a scheduler over the given store and node manager.
func NewScheduler(s store.Store, mgr *nodes.Manager, broker *events.Broker, cfg Config) *Scheduler {
	return &Scheduler{
		store:   s,
		manager: mgr,
		broker:  broker,
		cfg:     cfg.withDefaults(),
		logger:  log.WithComponent("scheduler"),
		kickCh:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the reconciliation loop.
func (s *Scheduler) Start() {
	go s.run()
	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("scheduler started")
}

// Stop stops the reconciliation loop.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

// Kick wakes the loop for an immediate pass. Non-blocking; multiple kicks
// before the loop wakes coalesce into one pass.
func (s *Scheduler) Kick() {
	select {
	case s.kickCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-s.kickCh:
		case <-s.stopCh:
			return
		}
		if _, err := s.Reconcile(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("reconciliation pass failed")
		}
	}
}

// Reconcile performs one reconciliation pass. Safe to call concurrently
// with the background loop; passes are serialized.
func (s *Scheduler) Reconcile(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconcileDuration)
		metrics.ReconcilePasses.Inc()
	}()

	var res Result

	pending, err := s.pendingWorkloads()
	if err != nil {
		return res, err
	}
	if len(pending) == 0 {
		return res, nil
	}

	free, err := s.freeCapacity()
	if err != nil {
		return res, err
	}

	for _, w := range pending {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}
		s.scheduleOne(ctx, w, free, &res)
	}

	if res.Mutated() {
		s.logger.Info().
			Int("scheduled", res.Scheduled).
			Int("started", res.Started).
			Int("failed", res.Failed).
			Int("unschedulable", res.Unschedulable).
			Int("conflicts", res.Conflicts).
			Msg("reconciliation pass complete")
	}
	return res, nil
}

// pendingWorkloads returns Pending workloads ordered by creation time,
// earliest first. FIFO, no priority classes; creation-time ties broken by ID
// to keep the order total.
func (s *Scheduler) pendingWorkloads() ([]*types.Workload, error) {
	all, err := s.store.ListWorkloads()
	if err != nil {
		return nil, fmt.Errorf("failed to list workloads: %w", err)
	}

	var pending []*types.Workload
	for _, w := range all {
		if w.Phase == types.WorkloadPending {
			pending = append(pending, w)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID < pending[j].ID
	})
	return pending, nil
}

// candidate is a Ready node with its free capacity at snapshot time. The
// pass decrements free as it commits placements so later workloads in the
// same pass see capacity already claimed.
type candidate struct {
	node *types.Node
	free types.Resources
}

// freeCapacity snapshots Ready nodes with capacity minus active placements,
// in ascending node ID order.
func (s *Scheduler) freeCapacity() ([]*candidate, error) {
	nodeList, err := s.store.ListNodes()
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	var candidates []*candidate
	for _, n := range nodeList {
		if !n.Schedulable() {
			continue
		}
		free := n.Capacity
		hosted, err := s.store.ListWorkloadsByNode(n.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list workloads on node %s: %w", n.ID, err)
		}
		for _, w := range hosted {
			if w.Placed() {
				free = free.Sub(w.Request)
			}
		}
		candidates = append(candidates, &candidate{node: n, free: free})
	}
	// ListNodes is already ID-sorted; keep the order explicit anyway.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].node.ID < candidates[j].node.ID
	})
	return candidates, nil
}

// scheduleOne walks the candidate nodes first-fit for one Pending workload
// and drives it through bind and start.
func (s *Scheduler) scheduleOne(ctx context.Context, w *types.Workload, candidates []*candidate, res *Result) {
	var fit *candidate
	for _, c := range candidates {
		if c.free.Fits(w.Request) {
			fit = c
			break
		}
	}

	if fit == nil {
		res.Unschedulable++
		s.markUnschedulable(w)
		return
	}

	bound, err := s.store.BindWorkload(w.ID, w.Revision, fit.node.ID, fit.node.Revision, time.Now())
	if err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			// Another pass or an API write raced ahead. Abandon this
			// workload; the next pass re-reads fresh state.
			res.Conflicts++
			metrics.PlacementConflictsTotal.Inc()
			s.logger.Debug().Str("workload_id", w.ID).Err(err).Msg("placement abandoned on conflict")
			return
		}
		s.logger.Error().Str("workload_id", w.ID).Err(err).Msg("placement write failed")
		return
	}

	res.Scheduled++
	metrics.PlacementsTotal.Inc()
	fit.free = fit.free.Sub(w.Request)
	// BindWorkload bumped the node revision; refresh so a later placement
	// on the same node in this pass carries the current revision.
	if n, err := s.store.GetNode(fit.node.ID); err == nil {
		fit.node = n
	}
	s.publish(&events.Event{
		Type:       events.EventWorkloadScheduled,
		NodeID:     fit.node.ID,
		WorkloadID: w.ID,
	})

	s.startScheduled(ctx, bound, fit, res)
}

// startScheduled issues the start command for a newly Scheduled workload and
// commits the resulting phase: Running on confirmed start, Failed with the
// placement released on refusal. A Failed workload is not requeued; explicit
// resubmission avoids crash-looping a bad spec.
func (s *Scheduler) startScheduled(ctx context.Context, w *types.Workload, fit *candidate, res *Result) {
	startErr := s.manager.StartWorkload(ctx, fit.node.ID, w)
	if startErr == nil {
		if _, err := store.MutateWorkload(s.store, w.ID, func(cur *types.Workload) (bool, error) {
			if cur.Phase != types.WorkloadScheduled || cur.NodeID != fit.node.ID {
				return false, nil
			}
			cur.Phase = types.WorkloadRunning
			cur.StartedAt = time.Now()
			return true, nil
		}); err != nil {
			s.logger.Error().Str("workload_id", w.ID).Err(err).Msg("failed to commit running phase")
			return
		}
		res.Started++
		s.publish(&events.Event{
			Type:       events.EventWorkloadRunning,
			NodeID:     fit.node.ID,
			WorkloadID: w.ID,
		})
		return
	}

	s.logger.Warn().Str("workload_id", w.ID).Str("node_id", fit.node.ID).Err(startErr).
		Msg("runtime refused start, failing workload")

	if _, err := store.MutateWorkload(s.store, w.ID, func(cur *types.Workload) (bool, error) {
		if cur.Phase != types.WorkloadScheduled || cur.NodeID != fit.node.ID {
			return false, nil
		}
		cur.Phase = types.WorkloadFailed
		cur.NodeID = ""
		cur.Error = startErr.Error()
		cur.FinishedAt = time.Now()
		return true, nil
	}); err != nil {
		s.logger.Error().Str("workload_id", w.ID).Err(err).Msg("failed to commit failed phase")
		return
	}
	// Placement released: the capacity claimed during bind is free again.
	fit.free = fit.free.Add(w.Request)
	res.Failed++
	metrics.WorkloadFailuresTotal.Inc()
	s.publish(&events.Event{
		Type:       events.EventWorkloadFailed,
		NodeID:     fit.node.ID,
		WorkloadID: w.ID,
		Message:    startErr.Error(),
	})
}

// markUnschedulable records the informational "cannot fit" status. Not an
// error, and not a write when the reason is already set, so a converged
// pass stays mutation-free.
func (s *Scheduler) markUnschedulable(w *types.Workload) {
	const reason = "cannot fit: no ready node has sufficient free capacity"
	if w.UnscheduledReason == reason {
		return
	}
	if _, err := store.MutateWorkload(s.store, w.ID, func(cur *types.Workload) (bool, error) {
		if cur.Phase != types.WorkloadPending || cur.UnscheduledReason == reason {
			return false, nil
		}
		cur.UnscheduledReason = reason
		return true, nil
	}); err != nil {
		s.logger.Debug().Str("workload_id", w.ID).Err(err).Msg("failed to record unscheduled reason")
	}
}

func (s *Scheduler) publish(event *events.Event) {
	if s.broker != nil {
		s.broker.Publish(event)
	}
}
