package types

import (
	"time"
)

// Kind identifies an object kind in the store. The store is generic over
// kind but every kind carries a fixed schema.
type Kind string

const (
	KindNode     Kind = "node"
	KindWorkload Kind = "workload"
)

// Resources describes a resource amount, used both as node capacity and as
// a workload request.
type Resources struct {
	CPUCores    int   `json:"cpu_cores"`
	MemoryBytes int64 `json:"memory_bytes"`
}

// Fits reports whether r is large enough to satisfy req.
func (r Resources) Fits(req Resources) bool {
	return r.CPUCores >= req.CPUCores && r.MemoryBytes >= req.MemoryBytes
}

// Sub returns r minus other. Results may go negative; callers that care
// check Fits first.
func (r Resources) Sub(other Resources) Resources {
	return Resources{
		CPUCores:    r.CPUCores - other.CPUCores,
		MemoryBytes: r.MemoryBytes - other.MemoryBytes,
	}
}

// Add returns r plus other.
func (r Resources) Add(other Resources) Resources {
	return Resources{
		CPUCores:    r.CPUCores + other.CPUCores,
		MemoryBytes: r.MemoryBytes + other.MemoryBytes,
	}
}

// IsZero reports whether r requests nothing.
func (r Resources) IsZero() bool {
	return r.CPUCores == 0 && r.MemoryBytes == 0
}

// NodePhase represents the lifecycle phase of a node.
type NodePhase string

const (
	NodePending      NodePhase = "pending"
	NodeProvisioning NodePhase = "provisioning"
	NodeReady        NodePhase = "ready"
	NodeDraining     NodePhase = "draining"
	NodeFailed       NodePhase = "failed"
	NodeDeleted      NodePhase = "deleted"
)

// NodePhases returns every node phase, in lifecycle order.
func NodePhases() []NodePhase {
	return []NodePhase{NodePending, NodeProvisioning, NodeReady, NodeDraining, NodeFailed, NodeDeleted}
}

// Node is a logical cluster member backed by one isolated execution
// environment. Owned by the node lifecycle manager; everyone else reads it
// through the store by ID.
type Node struct {
	ID               string    `json:"id"`
	Capacity         Resources `json:"capacity"`
	Phase            NodePhase `json:"phase"`
	RuntimeHandle    string    `json:"runtime_handle,omitempty"`
	LastHeartbeat    time.Time `json:"last_heartbeat"`
	MissedHeartbeats int       `json:"missed_heartbeats"`
	Error            string    `json:"error,omitempty"`
	Revision         uint64    `json:"revision"`
	CreatedAt        time.Time `json:"created_at"`
}

// Clone returns a deep copy so store reads never alias store-held state.
func (n *Node) Clone() *Node {
	c := *n
	return &c
}

// Schedulable reports whether the node accepts new placements.
func (n *Node) Schedulable() bool {
	return n.Phase == NodeReady
}

// WorkloadPhase represents the lifecycle phase of a workload.
type WorkloadPhase string

const (
	WorkloadPending    WorkloadPhase = "pending"
	WorkloadScheduled  WorkloadPhase = "scheduled"
	WorkloadRunning    WorkloadPhase = "running"
	WorkloadFailed     WorkloadPhase = "failed"
	WorkloadTerminated WorkloadPhase = "terminated"
)

// WorkloadPhases returns every workload phase, in lifecycle order.
func WorkloadPhases() []WorkloadPhase {
	return []WorkloadPhase{WorkloadPending, WorkloadScheduled, WorkloadRunning, WorkloadFailed, WorkloadTerminated}
}

// Terminal reports whether p is a terminal phase. Failed workloads are not
// rescheduled automatically; resubmission is an explicit caller action.
func (p WorkloadPhase) Terminal() bool {
	return p == WorkloadFailed || p == WorkloadTerminated
}

// Workload is a schedulable unit of work with a resource request, analogous
// to a pod. NodeID is empty until the workload is bound to a node; it is
// set exactly while the phase is Scheduled or Running.
type Workload struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Request Resources     `json:"request"`
	Phase   WorkloadPhase `json:"phase"`
	NodeID  string        `json:"node_id,omitempty"`

	// UnscheduledReason carries the informational "cannot fit" status for a
	// Pending workload no Ready node can hold. Not an error.
	UnscheduledReason string `json:"unscheduled_reason,omitempty"`

	Error       string    `json:"error,omitempty"`
	Revision    uint64    `json:"revision"`
	CreatedAt   time.Time `json:"created_at"`
	ScheduledAt time.Time `json:"scheduled_at,omitzero"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
}

// Clone returns a deep copy.
func (w *Workload) Clone() *Workload {
	c := *w
	return &c
}

// Placed reports whether the workload currently holds a placement.
func (w *Workload) Placed() bool {
	return w.Phase == WorkloadScheduled || w.Phase == WorkloadRunning
}

// Placement is the binding of a workload instance to a node. It is derived
// from workload state: a placement exists iff the workload phase is
// Scheduled or Running.
type Placement struct {
	WorkloadID string `json:"workload_id"`
	NodeID     string `json:"node_id"`
}

// NodeStatus is the cluster-status view of a node: its record plus the
// capacity left after subtracting all active placements.
type NodeStatus struct {
	Node *Node     `json:"node"`
	Free Resources `json:"free"`
}

// ClusterStatus is the cluster-wide status consumed by the CLI.
type ClusterStatus struct {
	Nodes     []*NodeStatus `json:"nodes"`
	Workloads []*Workload   `json:"workloads"`
}
