package runtime

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

const (
	// DefaultNamespace is the containerd namespace for Corral environments.
	DefaultNamespace = "corral"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"

	// cfsPeriod is the CFS scheduling period used to express CPU limits.
	cfsPeriod = 100000
)

// ContainerdRuntime implements Runtime using containerd. Each node
// environment is a container running a long-lived sleep process.
type ContainerdRuntime struct {
	client    *containerd.Client
	namespace string
}

// NewContainerdRuntime connects to containerd at socketPath.
func NewContainerdRuntime(socketPath string) (*ContainerdRuntime, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to containerd: %v", ErrRuntime, err)
	}

	return &ContainerdRuntime{
		client:    client,
		namespace: DefaultNamespace,
	}, nil
}

// Close closes the containerd client connection.
func (r *ContainerdRuntime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// CreateEnvironment pulls the environment image and creates a container
// constrained to the node's declared capacity.
func (r *ContainerdRuntime) CreateEnvironment(ctx context.Context, spec EnvironmentSpec) (string, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	image, err := r.client.Pull(ctx, spec.Image, containerd.WithPullUnpack)
	if err != nil {
		return "", fmt.Errorf("%w: failed to pull image %s: %v", ErrRuntime, spec.Image, err)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithProcessArgs("sleep", "infinity"),
		oci.WithHostname(spec.NodeID),
	}
	if spec.Capacity.MemoryBytes > 0 {
		opts = append(opts, oci.WithMemoryLimit(uint64(spec.Capacity.MemoryBytes)))
	}
	if spec.Capacity.CPUCores > 0 {
		opts = append(opts, oci.WithCPUCFS(int64(spec.Capacity.CPUCores)*cfsPeriod, cfsPeriod))
	}
	if spec.DataDir != "" {
		opts = append(opts, oci.WithMounts([]specs.Mount{
			{
				Source:      spec.DataDir,
				Destination: "/var/lib/corral",
				Type:        "bind",
				Options:     []string{"ro", "bind"},
			},
		}))
	}

	id := "corral-node-" + spec.NodeID
	container, err := r.client.NewContainer(
		ctx,
		id,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create environment: %v", ErrRuntime, err)
	}

	return container.ID(), nil
}

// StartEnvironment starts the environment's init process.
func (r *ContainerdRuntime) StartEnvironment(ctx context.Context, handle string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, handle)
	if err != nil {
		return fmt.Errorf("%w: failed to load environment %s: %v", ErrRuntime, handle, err)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("%w: failed to create task: %v", ErrRuntime, err)
	}

	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("%w: failed to start environment %s: %v", ErrRuntime, handle, err)
	}

	return nil
}

// StopEnvironment sends SIGTERM, waits up to timeout, then forces SIGKILL.
func (r *ContainerdRuntime) StopEnvironment(ctx context.Context, handle string, timeout time.Duration) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, handle)
	if err != nil {
		return fmt.Errorf("%w: failed to load environment %s: %v", ErrRuntime, handle, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		// No task means the environment is not running.
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("%w: failed to signal environment %s: %v", ErrRuntime, handle, err)
	}

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("%w: failed to wait for environment %s: %v", ErrRuntime, handle, err)
	}

	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("%w: failed to force kill environment %s: %v", ErrRuntime, handle, err)
		}
	}

	if _, err := task.Delete(ctx); err != nil {
		return fmt.Errorf("%w: failed to delete task: %v", ErrRuntime, err)
	}

	return nil
}

// RemoveEnvironment removes the container and its snapshot.
func (r *ContainerdRuntime) RemoveEnvironment(ctx context.Context, handle string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, handle)
	if err != nil {
		// Environment already gone.
		return nil
	}

	if err := r.StopEnvironment(ctx, handle, 10*time.Second); err != nil {
		// Best effort; deletion below still forces cleanup.
		fmt.Printf("Warning: failed to stop environment before removal: %v\n", err)
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("%w: failed to delete environment %s: %v", ErrRuntime, handle, err)
	}

	return nil
}

// IsAlive reports whether the environment's task is running.
func (r *ContainerdRuntime) IsAlive(ctx context.Context, handle string) (bool, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, handle)
	if err != nil {
		return false, nil
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return false, nil
	}

	status, err := task.Status(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: failed to get environment status: %v", ErrRuntime, err)
	}

	return status.Status == containerd.Running, nil
}
