/*
Package scheduler implements the reconciliation loop that converges workload
desired state onto the cluster.

Each pass reads Pending workloads FIFO by creation time and Ready nodes with
their free capacity, then places each workload on the first node that fits,
nodes ordered by ascending ID so identical snapshots always produce
identical decisions. A placement is committed with a single revision-checked
bind that moves the workload to Scheduled and bumps both the workload and
node revisions; any concurrent mutation surfaces as a conflict and the
workload is simply retried on the next pass.

After binding, the scheduler asks the node lifecycle manager to start the
workload. A confirmed start commits Running; a runtime refusal commits
Failed and releases the placement. Failed workloads are never requeued
automatically.

The loop runs on a ticker and wakes early on Kick, which API writes and
node lifecycle transitions call after any mutation that could unblock a
Pending workload.
*/
package scheduler
