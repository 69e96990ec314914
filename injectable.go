package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/kdeps/embedmongo/cmd"
	"github.com/kdeps/embedmongo/pkg/environment"
	"github.com/kdeps/embedmongo/pkg/logging"
	"github.com/spf13/afero"
)

// Injectable functions for testability
var (
	// OS operations
	OsExitFn       = os.Exit
	SignalNotifyFn = signal.Notify

	// Environment functions
	LoadDotEnvFn     = godotenv.Load
	NewEnvironmentFn = environment.NewEnvironment

	// Command functions
	NewRootCommandFn = cmd.NewRootCommand

	// Logging functions
	GetLoggerFn = logging.GetLogger

	// Signal channel creation
	MakeSignalChanFn = func() chan os.Signal {
		return make(chan os.Signal, 1)
	}

	// Context creation
	ContextWithCancelFn = context.WithCancel

	// Afero filesystem
	NewOsFsFn = afero.NewOsFs
)
