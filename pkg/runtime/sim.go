package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SimRuntime is an in-memory stand-in for a real container runtime: the
// fallback when neither containerd nor Docker is reachable, and the test
// double for everything that drives the runtime boundary. Failure modes can
// be injected to exercise error paths.
type SimRuntime struct {
	mu   sync.Mutex
	next int
	envs map[string]*simEnv

	// Injected failures. When set, the corresponding call fails with the
	// given error until cleared.
	CreateErr error
	StartErr  error
	StopErr   error
}

type simEnv struct {
	spec    EnvironmentSpec
	running bool
}

// NewSimRuntime creates an empty simulated runtime.
func NewSimRuntime() *SimRuntime {
	return &SimRuntime{envs: make(map[string]*simEnv)}
}

func (r *SimRuntime) CreateEnvironment(ctx context.Context, spec EnvironmentSpec) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CreateErr != nil {
		return "", fmt.Errorf("%w: %v", ErrRuntime, r.CreateErr)
	}
	r.next++
	handle := fmt.Sprintf("sim-%d", r.next)
	r.envs[handle] = &simEnv{spec: spec}
	return handle, nil
}

func (r *SimRuntime) StartEnvironment(ctx context.Context, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.StartErr != nil {
		return fmt.Errorf("%w: %v", ErrRuntime, r.StartErr)
	}
	env, ok := r.envs[handle]
	if !ok {
		return fmt.Errorf("%w: unknown environment %s", ErrRuntime, handle)
	}
	env.running = true
	return nil
}

func (r *SimRuntime) StopEnvironment(ctx context.Context, handle string, timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.StopErr != nil {
		return fmt.Errorf("%w: %v", ErrRuntime, r.StopErr)
	}
	if env, ok := r.envs[handle]; ok {
		env.running = false
	}
	return nil
}

func (r *SimRuntime) RemoveEnvironment(ctx context.Context, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.envs, handle)
	return nil
}

func (r *SimRuntime) IsAlive(ctx context.Context, handle string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	env, ok := r.envs[handle]
	return ok && env.running, nil
}

// SetAlive flips an environment's liveness without going through the
// lifecycle calls, simulating a crashed or recovered environment.
func (r *SimRuntime) SetAlive(handle string, alive bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if env, ok := r.envs[handle]; ok {
		env.running = alive
	}
}

// EnvironmentCount returns the number of environments the runtime holds.
func (r *SimRuntime) EnvironmentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.envs)
}

// Close is a no-op for the simulated runtime.
func (r *SimRuntime) Close() error {
	return nil
}
