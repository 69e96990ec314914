package embedmongo

import (
	"context"
	"fmt"
	"time"

	"github.com/kdeps/embedmongo/pkg/environment"
	perrors "github.com/kdeps/embedmongo/pkg/errors"
	"github.com/kdeps/embedmongo/pkg/logbridge"
	"github.com/kdeps/embedmongo/pkg/logging"
	"github.com/kdeps/embedmongo/pkg/mongoversion"
	"github.com/kdeps/embedmongo/pkg/network"
	"github.com/kdeps/embedmongo/pkg/provisioner"
	"github.com/spf13/afero"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Builder collects the settings for an embedded MongoDB instance.
// It is meant to be configured from a single goroutine.
type Builder struct {
	version mongoversion.Version
	port    int
	bindIP  string
	err     error

	provisioner    provisioner.Provisioner
	env            *environment.Environment
	logger         *logging.Logger
	startupTimeout time.Duration
	fs             afero.Fs

	freePort func() (int, error)
}

// NewBuilder returns a builder for the production version on a loopback
// address and a free port.
func NewBuilder() *Builder {
	return &Builder{
		version:  mongoversion.Production,
		bindIP:   network.LoopbackAddress(),
		freePort: network.FreeServerPort,
	}
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Err returns the first validation error recorded by a setter.
func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) log() *logging.Logger {
	if b.logger == nil {
		b.logger = logging.GetLogger()
	}
	return b.logger
}

// Version sets a symbolic version. The zero Version is rejected.
func (b *Builder) Version(v mongoversion.Version) *Builder {
	if err := b.setVersion(v); err != nil {
		return b.fail(err)
	}
	return b
}

func (b *Builder) setVersion(v mongoversion.Version) error {
	if v.IsZero() {
		return perrors.NewInvalidArgumentError("version", "version must not be empty")
	}
	b.version = v
	return nil
}

// VersionString resolves s to a known version, falling back to a generic
// version wrapping s when it is not recognized.
func (b *Builder) VersionString(s string) *Builder {
	if err := b.setVersionString(s); err != nil {
		return b.fail(err)
	}
	return b
}

func (b *Builder) setVersionString(s string) error {
	if s == "" {
		return perrors.NewInvalidArgumentError("version", "version must not be null or empty")
	}
	v, ok := mongoversion.Parse(s)
	if !ok {
		b.log().Warn("Unrecognized MongoDB version, it may be newer than this release knows about; attempting download anyway", "version", s)
	}
	b.version = v
	return nil
}

// Port sets the TCP port, which must be between 1 and 65535.
func (b *Builder) Port(port int) *Builder {
	if err := b.setPort(port); err != nil {
		return b.fail(err)
	}
	return b
}

func (b *Builder) setPort(port int) error {
	if !network.ValidPort(port) {
		return perrors.NewInvalidArgumentError("port", "port number must be between 1 and 65535").
			WithContext("port", port)
	}
	b.port = port
	return nil
}

// BindIP sets the address mongod listens on. Defaults to loopback.
func (b *Builder) BindIP(ip string) *Builder {
	if err := b.setBindIP(ip); err != nil {
		return b.fail(err)
	}
	return b
}

func (b *Builder) setBindIP(ip string) error {
	if ip == "" {
		return perrors.NewInvalidArgumentError("bind_ip", "bind address must not be null or empty")
	}
	b.bindIP = ip
	return nil
}

// WithProvisioner overrides the provisioner selected from the environment.
func (b *Builder) WithProvisioner(p provisioner.Provisioner) *Builder {
	b.provisioner = p
	return b
}

// WithLogger sets the logger used for lifecycle messages and mongod output.
func (b *Builder) WithLogger(l *logging.Logger) *Builder {
	b.logger = l
	return b
}

// WithEnvironment replaces the settings otherwise read from EMBEDMONGO_* variables.
func (b *Builder) WithEnvironment(env *environment.Environment) *Builder {
	b.env = env
	return b
}

// WithStartupTimeout overrides EMBEDMONGO_TIMEOUT.
func (b *Builder) WithStartupTimeout(d time.Duration) *Builder {
	b.startupTimeout = d
	return b
}

// WithFs sets the filesystem used for the artifact cache.
func (b *Builder) WithFs(fs afero.Fs) *Builder {
	b.fs = fs
	return b
}

// SelectedVersion returns the version that will be launched.
func (b *Builder) SelectedVersion() mongoversion.Version {
	return b.version
}

// Endpoint returns the bind address and port, asking the OS for a free port
// on first use when none was set. The port is kept for the builder's lifetime.
func (b *Builder) Endpoint() (provisioner.Net, error) {
	if b.port == 0 {
		port, err := b.freePort()
		if err != nil {
			b.log().Error("Could not get free server port", "error", err)
			return provisioner.Net{}, perrors.NewPortResolutionError(err)
		}
		b.port = port
	}
	return provisioner.Net{
		BindIP: b.bindIP,
		Port:   b.port,
		// Follows the address mongod binds, not the host's localhost resolution.
		IPv6: network.IsIPv6(b.bindIP),
	}, nil
}

func (b *Builder) environment() (*environment.Environment, error) {
	if b.env == nil {
		env, err := environment.NewEnvironment(nil)
		if err != nil {
			return nil, fmt.Errorf("load environment: %w", err)
		}
		b.env = env
	}
	return b.env, nil
}

func (b *Builder) outputConfig() logbridge.ProcessOutput {
	return logbridge.NewProcessOutput(b.log().Component("mongod"))
}

func (b *Builder) artifactStoreConfig(env *environment.Environment) provisioner.ArtifactStoreConfig {
	fs := b.fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return provisioner.ArtifactStoreConfig{
		DownloadURL: env.DownloadURL,
		CacheDir:    env.CacheDir,
		LinuxDistro: env.LinuxDistro,
		DockerImage: env.DockerImage,
		Progress:    logbridge.NewProgressListener(b.log().Component("download")),
		Fs:          fs,
	}
}

// RuntimeConfig assembles output redirection, artifact store and timeout
// settings for the provisioner.
func (b *Builder) RuntimeConfig() (provisioner.RuntimeConfig, error) {
	env, err := b.environment()
	if err != nil {
		return provisioner.RuntimeConfig{}, err
	}
	timeout := b.startupTimeout
	if timeout <= 0 {
		timeout = env.StartupTimeout()
	}
	return provisioner.RuntimeConfig{
		Output:         b.outputConfig(),
		Store:          b.artifactStoreConfig(env),
		StartupTimeout: timeout,
		Logger:         b.log(),
	}, nil
}

// ProcessConfig pairs the selected version with the resolved endpoint.
func (b *Builder) ProcessConfig() (provisioner.ProcessConfig, error) {
	endpoint, err := b.Endpoint()
	if err != nil {
		return provisioner.ProcessConfig{}, err
	}
	return provisioner.ProcessConfig{Version: b.version, Net: endpoint}, nil
}

func (b *Builder) resolveProvisioner(env *environment.Environment) (provisioner.Provisioner, error) {
	if b.provisioner != nil {
		return b.provisioner, nil
	}
	return provisioner.New(env.Provisioner)
}

// Build prepares and starts mongod, then connects a client to it. It blocks
// until the server accepts connections. Every call starts a new server.
func (b *Builder) Build(ctx context.Context) (*Instance, error) {
	if b.err != nil {
		return nil, b.err
	}
	logger := b.log()

	rc, err := b.RuntimeConfig()
	if err != nil {
		return nil, perrors.NewStartupError("configure", err)
	}
	pc, err := b.ProcessConfig()
	if err != nil {
		return nil, perrors.NewStartupError("resolve port", err)
	}
	prov, err := b.resolveProvisioner(b.env)
	if err != nil {
		return nil, perrors.NewStartupError("configure", err)
	}

	logger.Info("Initializing embedded MongoDB instance", "version", pc.Version.Release, "address", pc.Net.Address())
	exe, err := prov.Prepare(ctx, rc, pc)
	if err != nil {
		return nil, perrors.NewStartupError("prepare", err)
	}

	logger.Info("Starting embedded MongoDB instance")
	proc, err := exe.Start(ctx)
	if err != nil {
		return nil, perrors.NewStartupError("start", err)
	}

	client, err := mongo.Connect(ctx, ClientOptions(proc.Endpoint()))
	if err != nil {
		if stopErr := proc.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			logger.Error("failed to stop mongod after client error", "error", stopErr)
		}
		return nil, perrors.NewStartupError("connect", err)
	}

	return newInstance(client, proc, pc.Version, logger), nil
}

// ClientOptions returns driver options for a direct connection to endpoint.
func ClientOptions(endpoint provisioner.Net) *options.ClientOptions {
	return options.Client().
		SetHosts([]string{endpoint.Address()}).
		SetDirect(true)
}
