/*
Package types defines the cluster object model shared by every Corral
component: nodes, workloads, placements, their lifecycle phases, and the
resource arithmetic used for scheduling decisions.

Objects carry a per-object Revision, a monotonically increasing counter
bumped by the store on every mutation and used for optimistic concurrency
control. Components never hold long-lived copies; they read, decide, and
commit back against the revision they read.
*/
package types
