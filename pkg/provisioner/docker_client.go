package provisioner

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// ContainerAPI is the slice of the Docker API the Docker provisioner uses.
type ContainerAPI interface {
	PullImage(ctx context.Context, ref string) (io.ReadCloser, error)
	CreateContainer(ctx context.Context, cfg *container.Config, host *container.HostConfig, name string) (string, error)
	StartContainer(ctx context.Context, id string) error
	ContainerLogs(ctx context.Context, id string) (io.ReadCloser, error)
	StopContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
	Close() error
}

// DockerClient wraps Docker client operations.
type DockerClient struct {
	Cli *client.Client
}

// NewDockerClient creates a client from the DOCKER_* environment.
func NewDockerClient() (*DockerClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &DockerClient{Cli: cli}, nil
}

// PullImage pulls ref and returns the JSON progress stream.
func (c *DockerClient) PullImage(ctx context.Context, ref string) (io.ReadCloser, error) {
	return c.Cli.ImagePull(ctx, ref, image.PullOptions{})
}

// CreateContainer creates a container and returns its ID.
func (c *DockerClient) CreateContainer(ctx context.Context, cfg *container.Config, host *container.HostConfig, name string) (string, error) {
	resp, err := c.Cli.ContainerCreate(ctx, cfg, host, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	return resp.ID, nil
}

// StartContainer starts a created container.
func (c *DockerClient) StartContainer(ctx context.Context, id string) error {
	if err := c.Cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// ContainerLogs follows stdout and stderr, multiplexed.
func (c *DockerClient) ContainerLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	return c.Cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
}

// containerStopTimeout is how long mongod gets after SIGTERM before the daemon kills it.
var containerStopTimeout = 10

// StopContainer sends SIGTERM to the container and kills it once containerStopTimeout passes.
func (c *DockerClient) StopContainer(ctx context.Context, id string) error {
	return c.Cli.ContainerStop(ctx, id, container.StopOptions{Signal: "SIGTERM", Timeout: &containerStopTimeout})
}

// RemoveContainer removes a Docker container and its anonymous volumes.
func (c *DockerClient) RemoveContainer(ctx context.Context, id string) error {
	return c.Cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
}

// Close closes the Docker client.
func (c *DockerClient) Close() error {
	return c.Cli.Close()
}
