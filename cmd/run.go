package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kdeps/embedmongo/pkg/config"
	"github.com/kdeps/embedmongo/pkg/embedmongo"
	"github.com/kdeps/embedmongo/pkg/environment"
	"github.com/kdeps/embedmongo/pkg/logging"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// ErrServerExited is returned by run when mongod stops before shutdown was requested.
var ErrServerExited = errors.New("mongod exited unexpectedly")

// NewRunCommand creates the 'run' command and passes the necessary dependencies.
func NewRunCommand(ctx context.Context, fs afero.Fs, env *environment.Environment, logger *logging.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"r"},
		Example: "$ embedmongo run --mongo-version 7.0 --port 27017",
		Short:   "Start a MongoDB server and keep it running until interrupted",
		Args:    cobra.NoArgs,
		// Runtime failures are not usage errors.
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(fs, ".", cfgPath, env)
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, &cfg); err != nil {
				return err
			}

			b, err := newBuilder(cfg, env, logger)
			if err != nil {
				return err
			}
			inst, err := b.Build(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), inst.URI())
			logger.Info("MongoDB is ready", "version", inst.Version().Release, "uri", inst.URI())

			var runErr error
			select {
			case <-ctx.Done():
				logger.Debug("Shutdown requested")
			case <-inst.Done():
				runErr = ErrServerExited
			}
			return errors.Join(runErr, inst.Close(context.WithoutCancel(ctx)))
		},
	}
	cmd.Flags().String("mongo-version", "", "MongoDB version, e.g. 7.0, 4.2.0 or production")
	cmd.Flags().String("bind-ip", "", "Address to listen on (default loopback)")
	cmd.Flags().Int("port", 0, "Port to listen on (default a free port)")
	cmd.Flags().String("provisioner", "", "How to run mongod: binary or docker")
	return cmd
}

// applyRunFlags overrides config values with flags the user actually set.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("mongo-version") {
		cfg.Version, _ = flags.GetString("mongo-version")
	}
	if flags.Changed("bind-ip") {
		cfg.BindIP, _ = flags.GetString("bind-ip")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("provisioner") {
		cfg.Provisioner, _ = flags.GetString("provisioner")
	}
	return cfg.Validate()
}

func newBuilder(cfg config.Config, env *environment.Environment, logger *logging.Logger) (*embedmongo.Builder, error) {
	runEnv := *env
	if cfg.CacheDir != "" {
		runEnv.CacheDir = cfg.CacheDir
	}
	if cfg.Provisioner != "" {
		runEnv.Provisioner = cfg.Provisioner
	}

	prov, err := NewProvisionerFn(runEnv.Provisioner)
	if err != nil {
		return nil, err
	}

	b := embedmongo.NewBuilder().
		WithEnvironment(&runEnv).
		WithLogger(logger).
		WithProvisioner(prov)
	if cfg.TimeoutSec > 0 {
		b.WithStartupTimeout(time.Duration(cfg.TimeoutSec) * time.Second)
	}
	if cfg.Version != "" {
		b.VersionString(cfg.Version)
	}
	if cfg.BindIP != "" {
		b.BindIP(cfg.BindIP)
	}
	if cfg.Port != 0 {
		b.Port(cfg.Port)
	}
	return b, nil
}
