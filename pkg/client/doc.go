// Package client is the REST client for the control plane API, used by the
// CLI and by external callers. It maps server error envelopes back onto
// inspectable errors (IsNotFound, IsConflict) and carries the optional
// expected revision as an If-Match header.
package client
