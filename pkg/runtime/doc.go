/*
Package runtime defines the container runtime boundary: the capability
interface the node lifecycle manager uses to create, start, stop, remove,
and probe the isolated execution environment behind each logical node.

Three drivers are provided:

  - ContainerdRuntime: the default, talking to containerd over its socket.
  - DockerRuntime: the Docker Engine API, for hosts without direct
    containerd access.
  - SimRuntime: an in-memory simulation used as a fallback when no real
    runtime is reachable and as the test double throughout the codebase.

Runtime errors wrap ErrRuntime so callers can distinguish a refused or
timed-out runtime call from store conflicts and validation failures.
*/
package runtime
