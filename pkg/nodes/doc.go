/*
Package nodes implements the node lifecycle manager: the sole component that
drives the container runtime and the sole writer of node phase transitions.

Provisioning walks a node through Pending, Provisioning, and Ready, backing
it with one isolated execution environment. Termination drains the node,
evicts every hosted workload back to Pending, and tears the environment
down. A background health monitor probes Ready nodes; a node that misses
the configured number of consecutive probes is marked Failed and its
workloads evicted for rescheduling.

All runtime calls are bounded by a timeout. A runtime failure marks the
affected node Failed with the surfaced error; nothing retries silently.
*/
package nodes
