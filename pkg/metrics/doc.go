/*
Package metrics provides Prometheus metrics collection and exposition.

All metrics are registered on the default registry at package init and
exposed through Handler for scraping. The Collector periodically snapshots
the store into the cluster gauges (node and workload counts by phase,
capacity and reservation totals); counters for placements, evictions,
conflicts, and runtime errors are incremented inline by the owning
components.

The package also carries the component health registry backing the
/healthz and /readyz endpoints.
*/
package metrics
