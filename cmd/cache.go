package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/kdeps/embedmongo/pkg/environment"
	"github.com/kdeps/embedmongo/pkg/logging"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// NewCacheCommand groups the download cache subcommands.
func NewCacheCommand(fs afero.Fs, env *environment.Environment, logger *logging.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the download cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the cache directory",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), env.CacheDir)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clean",
		Short: "Remove downloaded archives and extracted binaries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			size, err := dirSize(fs, env.CacheDir)
			if err != nil {
				return err
			}
			if err := RemoveAllFn(fs, env.CacheDir); err != nil {
				return fmt.Errorf("failed to clean cache %s: %w", env.CacheDir, err)
			}
			logger.Info("Cache cleaned", "dir", env.CacheDir, "freed", humanize.Bytes(size))
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", humanize.Bytes(size), env.CacheDir)
			return nil
		},
	})
	return cmd
}

func dirSize(fs afero.Fs, dir string) (uint64, error) {
	exists, err := afero.DirExists(fs, dir)
	if err != nil || !exists {
		return 0, err
	}
	var total uint64
	err = afero.Walk(fs, dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += uint64(info.Size())
		}
		return nil
	})
	return total, err
}
