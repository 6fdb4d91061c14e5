package runtime

import (
	"context"
	"fmt"
	"io"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// DockerRuntime implements Runtime against the Docker Engine API, for hosts
// where containerd is not directly reachable.
type DockerRuntime struct {
	cli *client.Client
}

// NewDockerRuntime connects to the local Docker daemon using the standard
// environment configuration (DOCKER_HOST etc.).
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to docker: %v", ErrRuntime, err)
	}
	return &DockerRuntime{cli: cli}, nil
}

// Close closes the Docker client connection.
func (r *DockerRuntime) Close() error {
	if r.cli != nil {
		return r.cli.Close()
	}
	return nil
}

// CreateEnvironment pulls the environment image and creates a container
// constrained to the node's declared capacity. The container is created
// stopped; StartEnvironment brings it up.
func (r *DockerRuntime) CreateEnvironment(ctx context.Context, spec EnvironmentSpec) (string, error) {
	reader, err := r.cli.ImagePull(ctx, spec.Image, dockertypes.ImagePullOptions{})
	if err != nil {
		return "", fmt.Errorf("%w: failed to pull image %s: %v", ErrRuntime, spec.Image, err)
	}
	// Drain the pull progress stream so the pull completes.
	_, _ = io.Copy(io.Discard, reader)
	reader.Close()

	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			NanoCPUs: int64(spec.Capacity.CPUCores) * 1e9,
			Memory:   spec.Capacity.MemoryBytes,
		},
	}
	if spec.DataDir != "" {
		hostConfig.Binds = []string{spec.DataDir + ":/var/lib/corral:ro"}
	}

	resp, err := r.cli.ContainerCreate(ctx, &container.Config{
		Image:    spec.Image,
		Cmd:      []string{"sleep", "infinity"},
		Hostname: spec.NodeID,
		Labels: map[string]string{
			"app":            "corral",
			"corral.node.id": spec.NodeID,
		},
	}, hostConfig, nil, nil, "corral-node-"+spec.NodeID)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create environment: %v", ErrRuntime, err)
	}

	return resp.ID, nil
}

// StartEnvironment starts the container.
func (r *DockerRuntime) StartEnvironment(ctx context.Context, handle string) error {
	if err := r.cli.ContainerStart(ctx, handle, dockertypes.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("%w: failed to start environment %s: %v", ErrRuntime, handle, err)
	}
	return nil
}

// StopEnvironment stops the container, allowing up to timeout for graceful
// shutdown before the daemon forces a kill.
func (r *DockerRuntime) StopEnvironment(ctx context.Context, handle string, timeout time.Duration) error {
	seconds := int(timeout / time.Second)
	if err := r.cli.ContainerStop(ctx, handle, container.StopOptions{Timeout: &seconds}); err != nil {
		return fmt.Errorf("%w: failed to stop environment %s: %v", ErrRuntime, handle, err)
	}
	return nil
}

// RemoveEnvironment force-removes the container.
func (r *DockerRuntime) RemoveEnvironment(ctx context.Context, handle string) error {
	err := r.cli.ContainerRemove(ctx, handle, dockertypes.ContainerRemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("%w: failed to remove environment %s: %v", ErrRuntime, handle, err)
	}
	return nil
}

// IsAlive reports whether the container is running.
func (r *DockerRuntime) IsAlive(ctx context.Context, handle string) (bool, error) {
	info, err := r.cli.ContainerInspect(ctx, handle)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: failed to inspect environment %s: %v", ErrRuntime, handle, err)
	}
	return info.State != nil && info.State.Running, nil
}
