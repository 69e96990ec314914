package cmd

import (
	"github.com/kdeps/embedmongo/pkg/provisioner"
	"github.com/spf13/afero"
)

// Injectable functions for testability (shared across cmd package)
var (
	// Provisioner selection
	NewProvisionerFn = provisioner.New

	// Cache operations
	RemoveAllFn = func(fs afero.Fs, path string) error {
		return fs.RemoveAll(path)
	}
)
