package procexec

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	execute "github.com/alexellis/go-execute/v2"
	"github.com/kdeps/embedmongo/pkg/logging"
)

// Task describes a long-running command.
type Task struct {
	Command string
	Args    []string
	Env     []string
	Cwd     string
	Stdout  io.Writer
	Stderr  io.Writer
}

// Handle tracks a command started in the background.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	logger *logging.Logger

	mu     sync.Mutex
	result execute.ExecResult
	err    error
}

// StartBackground runs task in a goroutine until it exits or Stop is called.
// Cancelling ctx also stops the command.
func StartBackground(ctx context.Context, task Task, logger *logging.Logger) (*Handle, error) {
	if task.Command == "" {
		return nil, errors.New("command must not be empty")
	}
	logger.Debug("executing", "command", task.Command, "args", task.Args, "dir", task.Cwd, "background", true)

	et := execute.ExecTask{
		Command:            task.Command,
		Args:               task.Args,
		Env:                task.Env,
		Cwd:                task.Cwd,
		StdOutWriter:       task.Stdout,
		StdErrWriter:       task.Stderr,
		DisableStdioBuffer: true,
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{}), logger: logger}

	go func() {
		defer close(h.done)
		result, err := et.Execute(runCtx)

		h.mu.Lock()
		h.result, h.err = result, err
		h.mu.Unlock()

		switch {
		case err != nil && errors.Is(runCtx.Err(), context.Canceled):
			logger.Debug("background command stopped", "command", task.Command)
		case err != nil:
			logger.Error("background command failed", "command", task.Command, "error", err)
		case result.ExitCode != 0:
			logger.Warn("background command exited with non-zero code", "command", task.Command, "code", result.ExitCode)
		default:
			logger.Debug("background command exited", "command", task.Command)
		}
	}()

	return h, nil
}

// Done is closed once the command has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result returns the exit result. It is only meaningful after Done is closed.
func (h *Handle) Result() (execute.ExecResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// Stop kills the command and waits for it to exit, or for ctx to end.
func (h *Handle) Stop(ctx context.Context) error {
	h.cancel()
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown asks the command to exit through request and gives it grace to do
// so before killing it. A failed request is logged and the wait still applies.
func (h *Handle) Shutdown(ctx context.Context, grace time.Duration, request func(context.Context) error) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	graceCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := request(graceCtx); err != nil {
		h.logger.Warn("graceful shutdown request failed", "error", err)
	}

	select {
	case <-h.done:
		return nil
	case <-graceCtx.Done():
		h.logger.Warn("command did not exit in time, killing it", "grace", grace)
	}
	return h.Stop(ctx)
}
