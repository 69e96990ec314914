package provisioner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/kdeps/embedmongo/pkg/logbridge"
)

const mongoContainerPort = nat.Port("27017/tcp")

// ManagedLabel marks containers created by the Docker provisioner.
const ManagedLabel = "io.embedmongo.managed"

// Docker runs the official mongo image.
type Docker struct {
	// NewClient opens the Docker API. Defaults to NewDockerClient.
	NewClient func() (ContainerAPI, error)
}

// NewDocker returns a Docker provisioner. A nil newClient connects using the
// DOCKER_* environment.
func NewDocker(newClient func() (ContainerAPI, error)) *Docker {
	if newClient == nil {
		newClient = func() (ContainerAPI, error) { return NewDockerClient() }
	}
	return &Docker{NewClient: newClient}
}

// ImageRef returns image:release.
func ImageRef(image, release string) string {
	return image + ":" + release
}

// Prepare pulls the image for pc.Version.
func (d *Docker) Prepare(ctx context.Context, rc RuntimeConfig, pc ProcessConfig) (Executable, error) {
	rc = rc.withDefaults()
	logger := rc.Logger.Component("docker")

	cli, err := d.NewClient()
	if err != nil {
		return nil, err
	}

	ref := ImageRef(rc.Store.DockerImage, pc.Version.Release)
	logger.Info("Pulling MongoDB image", "image", ref)
	if err := pullImage(ctx, cli, ref, rc.Store.Progress); err != nil {
		cli.Close()
		return nil, err
	}
	return &dockerExecutable{cli: cli, ref: ref, rc: rc, pc: pc}, nil
}

func pullImage(ctx context.Context, cli ContainerAPI, ref string, listener logbridge.ProgressListener) error {
	rc, err := cli.PullImage(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer rc.Close()

	label := "Pull " + ref
	listener.Start(label)
	dec := json.NewDecoder(rc)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("failed to read pull progress for %s: %w", ref, err)
		}
		if msg.Error != nil {
			return fmt.Errorf("failed to pull image %s: %s", ref, msg.Error.Message)
		}
		if msg.Progress != nil && msg.Progress.Total > 0 {
			listener.Progress(label+" "+msg.ID, int(msg.Progress.Current*100/msg.Progress.Total))
			continue
		}
		if msg.Status != "" {
			listener.Info(label, msg.Status)
		}
	}
	listener.Done(label)
	return nil
}

type dockerExecutable struct {
	cli ContainerAPI
	ref string
	rc  RuntimeConfig
	pc  ProcessConfig
}

func (e *dockerExecutable) configs() (*container.Config, *container.HostConfig) {
	cfg := &container.Config{
		Image:        e.ref,
		ExposedPorts: nat.PortSet{mongoContainerPort: struct{}{}},
		Labels:       map[string]string{ManagedLabel: "true"},
	}
	if e.pc.Net.IPv6 {
		cfg.Cmd = []string{"--ipv6", "--bind_ip_all"}
	}
	host := &container.HostConfig{
		PortBindings: nat.PortMap{
			mongoContainerPort: []nat.PortBinding{{HostIP: e.pc.Net.BindIP, HostPort: strconv.Itoa(e.pc.Net.Port)}},
		},
	}
	return cfg, host
}

// Start creates and starts the container, then waits for mongod to log that it
// accepts connections and for the published port to answer. docker-proxy
// accepts on the host port before mongod listens, so the dial alone proves nothing.
func (e *dockerExecutable) Start(ctx context.Context) (Process, error) {
	logger := e.rc.Logger.Component("mongod")
	name := "embedmongo-" + uuid.NewString()
	cfg, host := e.configs()

	e.rc.Output.Commands.Process(fmt.Sprintf("starting container %s from %s on %s", name, e.ref, e.pc.Net.Address()))
	id, err := e.cli.CreateContainer(ctx, cfg, host, name)
	if err != nil {
		e.cli.Close()
		return nil, err
	}

	p := &dockerProcess{
		cli:    e.cli,
		id:     id,
		name:   name,
		net:    e.pc.Net,
		output: e.rc.Output,
		done:   make(chan struct{}),
	}

	if err := e.cli.StartContainer(ctx, id); err != nil {
		close(p.done)
		_ = p.Stop(context.WithoutCancel(ctx))
		return nil, err
	}

	// Log streaming ends when the container exits, which doubles as the exit signal.
	logs, err := e.cli.ContainerLogs(context.WithoutCancel(ctx), id)
	if err != nil {
		close(p.done)
		_ = p.Stop(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to attach to container logs: %w", err)
	}
	watcher := NewReadinessWatcher()
	go p.follow(logs, watcher)

	if err := WaitForServer(ctx, e.pc.Net.Address(), e.rc.StartupTimeout, watcher, p.done, logger); err != nil {
		_ = p.Stop(context.WithoutCancel(ctx))
		return nil, err
	}
	e.rc.Output.Commands.Process(fmt.Sprintf("mongod %s ready on %s (container %s)", e.pc.Version.Release, e.pc.Net.Address(), name))
	return p, nil
}

type dockerProcess struct {
	cli    ContainerAPI
	id     string
	name   string
	net    Net
	output logbridge.ProcessOutput
	done   chan struct{}

	once sync.Once
	err  error
}

func (p *dockerProcess) follow(logs io.ReadCloser, watcher *ReadinessWatcher) {
	defer close(p.done)
	defer logs.Close()

	stdout := logbridge.NewLineWriter(watcher.Observe(p.output.Output))
	stderr := logbridge.NewLineWriter(watcher.Observe(p.output.Error))
	_, _ = stdcopy.StdCopy(stdout, stderr, logs)
	stdout.Close()
	stderr.Close()
}

func (p *dockerProcess) Endpoint() Net { return p.net }

func (p *dockerProcess) Done() <-chan struct{} { return p.done }

func (p *dockerProcess) Stop(ctx context.Context) error {
	p.once.Do(func() {
		var errs []error
		if err := p.cli.StopContainer(ctx, p.id); err != nil {
			errs = append(errs, fmt.Errorf("stop container %s: %w", p.name, err))
		}
		if err := p.cli.RemoveContainer(ctx, p.id); err != nil {
			errs = append(errs, fmt.Errorf("remove container %s: %w", p.name, err))
		}
		if err := p.cli.Close(); err != nil {
			errs = append(errs, err)
		}
		p.err = errors.Join(errs...)
		p.output.Commands.Process("container " + p.name + " stopped")
	})
	return p.err
}
