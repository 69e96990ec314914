package cmd

import (
	"context"

	"github.com/kdeps/embedmongo/pkg/environment"
	"github.com/kdeps/embedmongo/pkg/logging"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// NewRootCommand returns the root command with all subcommands attached
func NewRootCommand(ctx context.Context, fs afero.Fs, env *environment.Environment, logger *logging.Logger) *cobra.Command {
	cobra.EnableCommandSorting = false
	rootCmd := &cobra.Command{
		Use:   "embedmongo",
		Short: "Throwaway MongoDB servers for tests.",
		Long: `Embedmongo downloads, starts and stops a local MongoDB server for integration tests.
The server runs either from the official release archives or from the mongo Docker image,
and is torn down when the command exits.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "",
		`Path to a YAML config file. Defaults to .embedmongo.yaml in the working directory when present.`)
	rootCmd.AddCommand(NewRunCommand(ctx, fs, env, logger))
	rootCmd.AddCommand(NewVersionsCommand())
	rootCmd.AddCommand(NewCacheCommand(fs, env, logger))
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}
