// Package mongotest starts a throwaway MongoDB server for a single test.
package mongotest

import (
	"context"
	"testing"

	"github.com/kdeps/embedmongo/pkg/embedmongo"
	"github.com/kdeps/embedmongo/pkg/environment"
)

// Option customizes the builder before the instance is started.
type Option func(*embedmongo.Builder)

// New starts an instance and registers its teardown with t.Cleanup. The test
// fails immediately when the server cannot be started and is skipped when
// EMBEDMONGO_SKIP is set.
func New(t testing.TB, opts ...Option) *embedmongo.Instance {
	t.Helper()

	env, err := environment.NewEnvironment(nil)
	if err != nil {
		t.Fatalf("embedmongo: read environment: %v", err)
	}
	if env.Skipped() {
		t.Skip("embedmongo: skipped by EMBEDMONGO_SKIP")
	}

	b := embedmongo.NewBuilder().WithEnvironment(env)
	for _, opt := range opts {
		opt(b)
	}
	return start(t, b)
}

func start(t testing.TB, b *embedmongo.Builder) *embedmongo.Instance {
	t.Helper()

	inst, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("embedmongo: %v", err)
	}
	t.Cleanup(func() {
		if err := inst.Close(context.Background()); err != nil {
			t.Errorf("embedmongo: close: %v", err)
		}
	})
	return inst
}

// WithVersion selects a version by name, e.g. "7.0" or "V4_4".
func WithVersion(version string) Option {
	return func(b *embedmongo.Builder) { b.VersionString(version) }
}

// WithPort pins the port instead of asking the OS for one.
func WithPort(port int) Option {
	return func(b *embedmongo.Builder) { b.Port(port) }
}
