package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/corralhq/corral/pkg/types"
)

// ErrRuntime marks failures of the container runtime itself: creation,
// start, stop, or teardown refused or timed out. The node lifecycle manager
// surfaces these on the affected object instead of retrying silently.
var ErrRuntime = errors.New("runtime error")

// EnvironmentSpec describes the isolated execution environment backing one
// logical node.
type EnvironmentSpec struct {
	// NodeID is the logical node this environment backs.
	NodeID string

	// Image is the container image used for the environment.
	Image string

	// Capacity is applied as a resource limit on the environment.
	Capacity types.Resources

	// DataDir, when set, is bind-mounted read-only into the environment.
	DataDir string
}

// Runtime is the capability interface over the container runtime. The node
// lifecycle manager is the only caller; a test double substitutes for the
// real runtime in unit tests.
//
// Calls are potentially slow. Callers pass a context with a bounded
// deadline and must not hold store state across a call.
type Runtime interface {
	// CreateEnvironment creates (but does not start) an environment and
	// returns its opaque handle.
	CreateEnvironment(ctx context.Context, spec EnvironmentSpec) (string, error)

	// StartEnvironment starts a created environment.
	StartEnvironment(ctx context.Context, handle string) error

	// StopEnvironment stops a running environment, allowing up to timeout
	// for a graceful shutdown before forcing.
	StopEnvironment(ctx context.Context, handle string, timeout time.Duration) error

	// RemoveEnvironment tears down the environment and releases its
	// resources. Safe to call on an already-removed handle.
	RemoveEnvironment(ctx context.Context, handle string) error

	// IsAlive reports whether the environment is live and reachable.
	IsAlive(ctx context.Context, handle string) (bool, error)

	// Close releases the runtime client connection.
	Close() error
}
