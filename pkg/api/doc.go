/*
Package api is the HTTP boundary of the control plane. It exposes node and
workload CRUD, the cluster status view, heartbeats, and the event stream
under /v1, plus /healthz, /readyz, and /metrics.

The layer is deliberately thin: validation happens here before anything
reaches the store, writes carry the caller's optional If-Match revision for
optimistic concurrency, and every mutation that could unblock a Pending
workload kicks the scheduler. Stale revisions come back as 409 Conflict,
never as a silent overwrite.
*/
package api
