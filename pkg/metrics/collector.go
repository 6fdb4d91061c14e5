package metrics

import (
	"time"

	"github.com/corralhq/corral/pkg/store"
	"github.com/corralhq/corral/pkg/types"
)

// Collector periodically snapshots the store into the cluster gauges.
type Collector struct {
	store    store.Store
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector reading from the given store.
func NewCollector(s store.Store, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		store:    s,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect runs one snapshot of the cluster gauges.
func (c *Collector) Collect() {
	c.collectNodes()
	c.collectWorkloads()
}

func (c *Collector) collectNodes() {
	nodes, err := c.store.ListNodes()
	if err != nil {
		return
	}

	counts := make(map[types.NodePhase]int)
	var cpuCapacity int
	var memCapacity int64

	for _, node := range nodes {
		counts[node.Phase]++
		if node.Phase == types.NodeReady {
			cpuCapacity += node.Capacity.CPUCores
			memCapacity += node.Capacity.MemoryBytes
		}
	}

	for _, phase := range types.NodePhases() {
		NodesTotal.WithLabelValues(string(phase)).Set(float64(counts[phase]))
	}
	ClusterCPUCapacity.Set(float64(cpuCapacity))
	ClusterMemoryCapacity.Set(float64(memCapacity))
}

func (c *Collector) collectWorkloads() {
	workloads, err := c.store.ListWorkloads()
	if err != nil {
		return
	}

	counts := make(map[types.WorkloadPhase]int)
	var cpuReserved int
	var memReserved int64

	for _, w := range workloads {
		counts[w.Phase]++
		if w.Placed() {
			cpuReserved += w.Request.CPUCores
			memReserved += w.Request.MemoryBytes
		}
	}

	for _, phase := range types.WorkloadPhases() {
		WorkloadsTotal.WithLabelValues(string(phase)).Set(float64(counts[phase]))
	}
	ClusterCPUReserved.Set(float64(cpuReserved))
	ClusterMemoryReserved.Set(float64(memReserved))
}
