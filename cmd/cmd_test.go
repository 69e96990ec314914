package cmd

import (
	"context"
	"sync"

	"github.com/kdeps/embedmongo/pkg/environment"
	"github.com/kdeps/embedmongo/pkg/provisioner"
)

// exitedProvisioner starts processes that have already exited, so run
// returns without waiting for a signal.
type exitedProvisioner struct {
	mu         sync.Mutex
	prepareErr error
	configs    []provisioner.ProcessConfig
	runtime    provisioner.RuntimeConfig
	stops      int
}

func (p *exitedProvisioner) Prepare(_ context.Context, rc provisioner.RuntimeConfig, pc provisioner.ProcessConfig) (provisioner.Executable, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs = append(p.configs, pc)
	p.runtime = rc
	if p.prepareErr != nil {
		return nil, p.prepareErr
	}
	return &exitedExecutable{p: p, net: pc.Net}, nil
}

type exitedExecutable struct {
	p   *exitedProvisioner
	net provisioner.Net
}

func (e *exitedExecutable) Start(context.Context) (provisioner.Process, error) {
	done := make(chan struct{})
	close(done)
	return &exitedProcess{p: e.p, net: e.net, done: done}, nil
}

type exitedProcess struct {
	p    *exitedProvisioner
	net  provisioner.Net
	done chan struct{}
}

func (e *exitedProcess) Endpoint() provisioner.Net { return e.net }
func (e *exitedProcess) Done() <-chan struct{}     { return e.done }

func (e *exitedProcess) Stop(context.Context) error {
	e.p.mu.Lock()
	e.p.stops++
	e.p.mu.Unlock()
	return nil
}

// runningProvisioner starts processes that run until stopped.
type runningProvisioner struct {
	mu    sync.Mutex
	stops int
	done  chan struct{}
	net   provisioner.Net
}

func (p *runningProvisioner) Prepare(_ context.Context, _ provisioner.RuntimeConfig, pc provisioner.ProcessConfig) (provisioner.Executable, error) {
	p.net = pc.Net
	p.done = make(chan struct{})
	return p, nil
}

func (p *runningProvisioner) Start(context.Context) (provisioner.Process, error) {
	return p, nil
}

func (p *runningProvisioner) Endpoint() provisioner.Net { return p.net }
func (p *runningProvisioner) Done() <-chan struct{}     { return p.done }

func (p *runningProvisioner) Stop(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	if p.stops == 1 {
		close(p.done)
	}
	return nil
}

// notifyWriter signals after the first write.
type notifyWriter struct {
	mu      sync.Mutex
	buf     []byte
	written chan struct{}
}

func (w *notifyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.buf = append(w.buf, p...)
	w.mu.Unlock()
	select {
	case w.written <- struct{}{}:
	default:
	}
	return len(p), nil
}

// useProvisioner swaps NewProvisionerFn for the duration of a test.
func useProvisioner(t interface{ Cleanup(func()) }, p provisioner.Provisioner) *[]string {
	var kinds []string
	orig := NewProvisionerFn
	NewProvisionerFn = func(kind string) (provisioner.Provisioner, error) {
		kinds = append(kinds, kind)
		return p, nil
	}
	t.Cleanup(func() { NewProvisionerFn = orig })
	return &kinds
}

func testEnvironment() *environment.Environment {
	env := environment.Default()
	env.CacheDir = "/cache"
	return env
}
