/*
Package events provides the in-process event broker that carries cluster
state transitions: node provisioning and failure, workload scheduling,
evictions, and deletions.

Publishing is non-blocking; a subscriber that falls behind drops events
rather than stalling the control loop. The API layer exposes the stream to
external consumers over server-sent events.
*/
package events
