package embedmongo

import (
	"context"
	"errors"
	"sync"

	"github.com/kdeps/embedmongo/pkg/environment"
	"github.com/kdeps/embedmongo/pkg/logging"
	"github.com/kdeps/embedmongo/pkg/provisioner"
	"github.com/spf13/afero"
)

type fakeProvisioner struct {
	mu         sync.Mutex
	prepareErr error
	startErr   error
	stopErr    error

	runtimes  []provisioner.RuntimeConfig
	processes []provisioner.ProcessConfig
	started   []*fakeProcess
}

func (f *fakeProvisioner) Prepare(_ context.Context, rc provisioner.RuntimeConfig, pc provisioner.ProcessConfig) (provisioner.Executable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runtimes = append(f.runtimes, rc)
	f.processes = append(f.processes, pc)
	if f.prepareErr != nil {
		return nil, f.prepareErr
	}
	return &fakeExecutable{f: f, pc: pc}, nil
}

func (f *fakeProvisioner) prepared() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.processes)
}

type fakeExecutable struct {
	f  *fakeProvisioner
	pc provisioner.ProcessConfig
}

func (e *fakeExecutable) Start(context.Context) (provisioner.Process, error) {
	if e.f.startErr != nil {
		return nil, e.f.startErr
	}
	p := &fakeProcess{net: e.pc.Net, done: make(chan struct{}), stopErr: e.f.stopErr}
	e.f.mu.Lock()
	e.f.started = append(e.f.started, p)
	e.f.mu.Unlock()
	return p, nil
}

type fakeProcess struct {
	net     provisioner.Net
	done    chan struct{}
	stopErr error
	stops   int
}

func (p *fakeProcess) Endpoint() provisioner.Net { return p.net }
func (p *fakeProcess) Done() <-chan struct{}     { return p.done }

func (p *fakeProcess) Stop(context.Context) error {
	p.stops++
	if p.stops == 1 {
		close(p.done)
	}
	return p.stopErr
}

var errBoom = errors.New("boom")

func testEnvironment() *environment.Environment {
	e := environment.Default()
	e.CacheDir = "/cache"
	return e
}

// newTestBuilder returns a builder wired to a fake provisioner and an in-memory logger.
func newTestBuilder() (*Builder, *fakeProvisioner, *logging.Logger) {
	fake := &fakeProvisioner{}
	logger := logging.NewTestLogger()
	b := NewBuilder().
		WithProvisioner(fake).
		WithLogger(logger).
		WithEnvironment(testEnvironment()).
		WithFs(afero.NewMemMapFs())
	return b, fake, logger
}
