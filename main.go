package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"syscall"

	"github.com/kdeps/embedmongo/pkg/environment"
	"github.com/kdeps/embedmongo/pkg/logging"
)

// dotEnvFile is loaded from the working directory when present.
const dotEnvFile = ".env"

func main() {
	OsExitFn(Run(os.Args[1:]))
}

// Run executes the CLI with args and returns the process exit code.
func Run(args []string) int {
	fs := NewOsFsFn()
	ctx, cancel := ContextWithCancelFn(context.Background())
	defer cancel()

	env, err := SetupEnvironment()
	logger := GetLoggerFn()
	if err != nil {
		logger.Error("Failed to set up environment", "error", err)
		return 1
	}

	SetupSignalHandler(cancel, logger)

	rootCmd := NewRootCommandFn(ctx, fs, env, logger)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		logger.Error("Command failed", "error", err)
		return 1
	}
	return 0
}

// SetupEnvironment loads an optional .env file, then reads EMBEDMONGO_* variables.
func SetupEnvironment() (*environment.Environment, error) {
	if err := LoadDotEnvFn(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return NewEnvironmentFn(nil)
}

// SetupSignalHandler cancels the command context on SIGINT or SIGTERM so a
// running server is torn down before the process exits.
func SetupSignalHandler(cancelFunc context.CancelFunc, logger *logging.Logger) {
	sigs := MakeSignalChanFn()
	SignalNotifyFn(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigs
		logger.Debug("Received signal, initiating shutdown", "signal", sig)
		cancelFunc()
	}()
}
