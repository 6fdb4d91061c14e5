/*
Package store implements Corral's object store: the authoritative registry
of nodes and workloads and the single synchronization point for all cluster
state.

Every object carries a revision that the store bumps on each mutation.
Writers present the revision they last read; a mismatch yields ErrConflict
and the writer re-reads and retries (see MutateNode / MutateWorkload). No
component holds a lock across a store operation that calls out to the
container runtime — slow runtime work happens between a read and a
revision-checked commit.

Two implementations are provided:

  - MemStore: mutex-guarded in-memory maps. Used by tests and by a control
    plane run without a data directory.
  - BoltStore: bbolt-backed, one bucket per object kind, revision checks
    inside the write transaction. The daemon default; the registry survives
    restarts.

BindWorkload is the one composite operation: committing a placement bumps
both the workload and the hosting node revision atomically, so concurrent
reconciliation passes can never overcommit a node's capacity and a pass can
never bind against a node that has left the Ready phase.
*/
package store
