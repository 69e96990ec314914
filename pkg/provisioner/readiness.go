package provisioner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/kdeps/embedmongo/pkg/logbridge"
	"github.com/kdeps/embedmongo/pkg/logging"
)

var (
	ErrStartupTimeout = errors.New("timeout waiting for mongod to accept connections")
	ErrProcessExited  = errors.New("mongod exited before accepting connections")
	ErrAddressInUse   = errors.New("mongod could not bind: address already in use")
	ErrInitFailed     = errors.New("mongod failed to initialize")
)

var pollInterval = 250 * time.Millisecond

// Lower-case markers matched against mongod log lines. Releases before 4.4
// log plain text, later ones log JSON with a numeric id.
var (
	readyMarkers = []string{"waiting for connections", `"id":23016`}

	failureMarkers = []struct {
		marker string
		err    error
	}{
		{"address already in use", ErrAddressInUse},
		{"exception in initandlisten", ErrInitFailed},
		{`"id":20557`, ErrInitFailed},
	}
)

// ReadinessWatcher reads mongod output and records whether the server
// announced it is listening or reported a fatal startup error. The first
// event wins.
type ReadinessWatcher struct {
	ready  chan struct{}
	failed chan struct{}

	mu  sync.Mutex
	err error
}

// NewReadinessWatcher returns a watcher with no events recorded.
func NewReadinessWatcher() *ReadinessWatcher {
	return &ReadinessWatcher{ready: make(chan struct{}), failed: make(chan struct{})}
}

// Observe returns a StreamProcessor that inspects every block and passes it on to next.
func (w *ReadinessWatcher) Observe(next logbridge.StreamProcessor) logbridge.StreamProcessor {
	return &watchedStream{w: w, next: next}
}

// Ready is closed once mongod logged that it waits for connections.
func (w *ReadinessWatcher) Ready() <-chan struct{} { return w.ready }

// Failed is closed once mongod logged a fatal startup error.
func (w *ReadinessWatcher) Failed() <-chan struct{} { return w.failed }

// Err returns the startup error seen in the output, if any.
func (w *ReadinessWatcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *ReadinessWatcher) inspect(line string) {
	lower := strings.ToLower(line)
	for _, f := range failureMarkers {
		if strings.Contains(lower, f.marker) {
			w.fail(fmt.Errorf("%w: %s", f.err, strings.TrimSpace(line)))
			return
		}
	}
	for _, m := range readyMarkers {
		if strings.Contains(lower, m) {
			w.markReady()
			return
		}
	}
}

func (w *ReadinessWatcher) settled() bool {
	select {
	case <-w.ready:
		return true
	case <-w.failed:
		return true
	default:
		return false
	}
}

func (w *ReadinessWatcher) markReady() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.settled() {
		close(w.ready)
	}
}

func (w *ReadinessWatcher) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.settled() {
		w.err = err
		close(w.failed)
	}
}

type watchedStream struct {
	w    *ReadinessWatcher
	next logbridge.StreamProcessor
}

func (s *watchedStream) Process(block string) {
	s.next.Process(block)
	s.w.inspect(block)
}

func (s *watchedStream) OnProcessed() { s.next.OnProcessed() }

// IsServerReady checks whether something accepts TCP connections on addr.
func IsServerReady(addr string, logger *logging.Logger) bool {
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		logger.Debug("mongod not ready", "address", addr, "error", err)
		return false
	}
	conn.Close()
	return true
}

// WaitForServer waits until the launched mongod announces it accepts
// connections, then confirms addr answers while the process is still alive.
// A port held by another process is never mistaken for readiness. It gives
// up when mongod reports a startup error, exits, ctx ends or timeout elapses.
func WaitForServer(ctx context.Context, addr string, timeout time.Duration, watcher *ReadinessWatcher, exited <-chan struct{}, logger *logging.Logger) error {
	logger.Debug("waiting for mongod to be ready", "address", addr, "timeout", timeout)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	interrupted := func() error {
		select {
		case <-watcher.Failed():
			return watcher.Err()
		case <-exited:
			if err := watcher.Err(); err != nil {
				return err
			}
			return ErrProcessExited
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w after %s on %s", ErrStartupTimeout, timeout, addr)
		default:
			return nil
		}
	}

	select {
	case <-watcher.Ready():
	case <-watcher.Failed():
		return watcher.Err()
	case <-exited:
		if err := watcher.Err(); err != nil {
			return err
		}
		return ErrProcessExited
	case <-ctx.Done():
		return ctx.Err()
	case <-deadline.C:
		return fmt.Errorf("%w after %s on %s", ErrStartupTimeout, timeout, addr)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if err := interrupted(); err != nil {
			return err
		}
		if IsServerReady(addr, logger) {
			// The dial only counts if our process did not die meanwhile.
			select {
			case <-exited:
				return ErrProcessExited
			default:
			}
			logger.Debug("mongod is ready", "address", addr)
			return nil
		}
		select {
		case <-ticker.C:
		case <-exited:
		case <-ctx.Done():
		case <-deadline.C:
			return fmt.Errorf("%w after %s on %s", ErrStartupTimeout, timeout, addr)
		}
	}
}
