package provisioner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/kdeps/embedmongo/pkg/logbridge"
	"github.com/kdeps/embedmongo/pkg/logging"
	"github.com/kdeps/embedmongo/pkg/mongoversion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocker struct {
	mu sync.Mutex

	pullStream string
	pullErr    error
	createErr  error
	logs       []byte

	pulled  []string
	created *container.Config
	host    *container.HostConfig
	name    string
	stopped int
	removed int
	closed  int

	logsReader *io.PipeReader
	logsWriter *io.PipeWriter
}

func (f *fakeDocker) PullImage(_ context.Context, ref string) (io.ReadCloser, error) {
	f.pulled = append(f.pulled, ref)
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return io.NopCloser(strings.NewReader(f.pullStream)), nil
}

func (f *fakeDocker) CreateContainer(_ context.Context, cfg *container.Config, host *container.HostConfig, name string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created, f.host, f.name = cfg, host, name
	return "c0ffee", nil
}

func (f *fakeDocker) StartContainer(context.Context, string) error { return nil }

// ContainerLogs streams the canned logs and stays open until StopContainer.
func (f *fakeDocker) ContainerLogs(context.Context, string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, w := io.Pipe()
	f.logsReader, f.logsWriter = r, w
	go func() { _, _ = w.Write(f.logs) }()
	return r, nil
}

func (f *fakeDocker) StopContainer(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	if f.logsWriter != nil {
		f.logsWriter.Close()
	}
	return nil
}

func (f *fakeDocker) RemoveContainer(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed++
	return nil
}

func (f *fakeDocker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func multiplexed(t *testing.T, stdout, stderr string) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(stdout))
	require.NoError(t, err)
	_, err = stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(stderr))
	require.NoError(t, err)
	return buf.Bytes()
}

func dockerRuntime(logger *logging.Logger) RuntimeConfig {
	return RuntimeConfig{
		Logger:         logger,
		Output:         logbridge.NewProcessOutput(logger),
		StartupTimeout: 5 * time.Second,
		Store:          ArtifactStoreConfig{DockerImage: "mongo", Progress: logbridge.NewProgressListener(logger)},
	}
}

func TestDockerStartAndStop(t *testing.T) {
	logger := logging.NewTestLogger()
	fake := &fakeDocker{
		pullStream: `{"status":"Pulling from library/mongo","id":"7.0.14"}
{"status":"Downloading","id":"abc","progressDetail":{"current":50,"total":100}}
{"status":"Download complete","id":"abc"}
`,
		logs: multiplexed(t, "Waiting for connections\n", "soft rlimits too low\n"),
	}

	l, addr := listen(t)
	port := l.Addr().(*net.TCPAddr).Port
	pc := ProcessConfig{Version: mongoversion.V7_0_14, Net: Net{BindIP: "127.0.0.1", Port: port}}

	d := NewDocker(func() (ContainerAPI, error) { return fake, nil })
	exe, err := d.Prepare(context.Background(), dockerRuntime(logger), pc)
	require.NoError(t, err)
	assert.Equal(t, []string{"mongo:7.0.14"}, fake.pulled)

	proc, err := exe.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, addr, proc.Endpoint().Address())

	assert.Equal(t, "mongo:7.0.14", fake.created.Image)
	assert.Equal(t, "true", fake.created.Labels[ManagedLabel])
	assert.True(t, strings.HasPrefix(fake.name, "embedmongo-"))
	bindings := fake.host.PortBindings[mongoContainerPort]
	require.Len(t, bindings, 1)
	assert.Equal(t, "127.0.0.1", bindings[0].HostIP)
	assert.Equal(t, strconv.Itoa(port), bindings[0].HostPort)

	require.Eventually(t, func() bool {
		return strings.Contains(logger.GetOutput(), "soft rlimits too low")
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, proc.Stop(context.Background()))
	require.NoError(t, proc.Stop(context.Background()))
	<-proc.Done()

	assert.Equal(t, 1, fake.stopped)
	assert.Equal(t, 1, fake.removed)
	assert.Equal(t, 1, fake.closed)

	out := logger.GetOutput()
	assert.Contains(t, out, "Pull mongo:7.0.14 abc 50%")
	assert.Contains(t, out, "Waiting for connections")
	assert.Contains(t, out, "WARN soft rlimits too low")
}

func TestDockerPullError(t *testing.T) {
	logger := logging.NewTestLogger()
	fake := &fakeDocker{pullStream: `{"error":"manifest for mongo:99.99.99 not found","errorDetail":{"message":"manifest for mongo:99.99.99 not found"}}`}
	d := NewDocker(func() (ContainerAPI, error) { return fake, nil })

	_, err := d.Prepare(context.Background(), dockerRuntime(logger), ProcessConfig{Version: mongoversion.Generic("99.99.99")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.Equal(t, 1, fake.closed)
}

func TestDockerClientError(t *testing.T) {
	d := NewDocker(func() (ContainerAPI, error) { return nil, errors.New("no docker daemon") })
	_, err := d.Prepare(context.Background(), dockerRuntime(logging.NewTestLogger()), ProcessConfig{Version: mongoversion.Production})
	require.EqualError(t, err, "no docker daemon")
}

func TestDockerCreateError(t *testing.T) {
	fake := &fakeDocker{createErr: errors.New("port is already allocated")}
	d := NewDocker(func() (ContainerAPI, error) { return fake, nil })

	exe, err := d.Prepare(context.Background(), dockerRuntime(logging.NewTestLogger()), ProcessConfig{
		Version: mongoversion.Production,
		Net:     Net{BindIP: "127.0.0.1", Port: 27017},
	})
	require.NoError(t, err)

	_, err = exe.Start(context.Background())
	require.ErrorContains(t, err, "already allocated")
	assert.Equal(t, 1, fake.closed)
}

func TestDockerContainerExitsBeforeReady(t *testing.T) {
	logger := logging.NewTestLogger()
	fake := &fakeDocker{logs: multiplexed(t, "", "invalid command line\n")}
	d := NewDocker(func() (ContainerAPI, error) { return fake, nil })

	exe, err := d.Prepare(context.Background(), dockerRuntime(logger), ProcessConfig{
		Version: mongoversion.Production,
		Net:     Net{BindIP: "127.0.0.1", Port: portOf(t, closedAddress(t))},
	})
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		fake.mu.Lock()
		defer fake.mu.Unlock()
		fake.logsWriter.Close()
	}()

	_, err = exe.Start(context.Background())
	require.ErrorIs(t, err, ErrProcessExited)
	assert.Equal(t, 1, fake.removed)
}

func TestDockerIPv6Command(t *testing.T) {
	e := &dockerExecutable{ref: "mongo:7.0.14", pc: ProcessConfig{Net: Net{BindIP: "::1", Port: 1, IPv6: true}}}
	cfg, host := e.configs()
	assert.Equal(t, []string{"--ipv6", "--bind_ip_all"}, cfg.Cmd)
	assert.Equal(t, "::1", host.PortBindings[mongoContainerPort][0].HostIP)
}

func TestDockerProxyAcceptsBeforeMongod(t *testing.T) {
	logger := logging.NewTestLogger()
	fake := &fakeDocker{logs: multiplexed(t, "about to fork child process\n", "")}

	// docker-proxy listens on the host port as soon as the container starts.
	_, addr := listen(t)
	d := NewDocker(func() (ContainerAPI, error) { return fake, nil })
	exe, err := d.Prepare(context.Background(), dockerRuntime(logger), ProcessConfig{
		Version: mongoversion.V7_0_14,
		Net:     Net{BindIP: "127.0.0.1", Port: portOf(t, addr)},
	})
	require.NoError(t, err)

	type started struct {
		proc Process
		err  error
	}
	result := make(chan started, 1)
	go func() {
		proc, err := exe.Start(context.Background())
		result <- started{proc, err}
	}()

	select {
	case r := <-result:
		t.Fatalf("Start returned before mongod logged readiness: %v", r.err)
	case <-time.After(500 * time.Millisecond):
	}

	fake.mu.Lock()
	_, err = fake.logsWriter.Write(multiplexed(t, "Waiting for connections\n", ""))
	fake.mu.Unlock()
	require.NoError(t, err)

	select {
	case r := <-result:
		require.NoError(t, r.err)
		require.NoError(t, r.proc.Stop(context.Background()))
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after the ready line")
	}
}

func TestDockerProxyWithoutReadyLineTimesOut(t *testing.T) {
	logger := logging.NewTestLogger()
	fake := &fakeDocker{logs: multiplexed(t, "about to fork child process\n", "")}
	_, addr := listen(t)

	rc := dockerRuntime(logger)
	rc.StartupTimeout = 300 * time.Millisecond
	d := NewDocker(func() (ContainerAPI, error) { return fake, nil })
	exe, err := d.Prepare(context.Background(), rc, ProcessConfig{
		Version: mongoversion.V7_0_14,
		Net:     Net{BindIP: "127.0.0.1", Port: portOf(t, addr)},
	})
	require.NoError(t, err)

	_, err = exe.Start(context.Background())
	require.ErrorIs(t, err, ErrStartupTimeout)
	assert.Equal(t, 1, fake.stopped)
	assert.Equal(t, 1, fake.removed)
}

func TestDockerAddressInUseFromLogs(t *testing.T) {
	logger := logging.NewTestLogger()
	fake := &fakeDocker{logs: multiplexed(t, "", "Failed to set up listener: SocketException: Address already in use\n")}
	_, addr := listen(t)

	d := NewDocker(func() (ContainerAPI, error) { return fake, nil })
	exe, err := d.Prepare(context.Background(), dockerRuntime(logger), ProcessConfig{
		Version: mongoversion.V7_0_14,
		Net:     Net{BindIP: "127.0.0.1", Port: portOf(t, addr)},
	})
	require.NoError(t, err)

	_, err = exe.Start(context.Background())
	require.ErrorIs(t, err, ErrAddressInUse)
}
