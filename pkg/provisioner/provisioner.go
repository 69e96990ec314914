// Package provisioner acquires, launches and stops MongoDB servers.
//
// A Provisioner turns a RuntimeConfig and a ProcessConfig into an Executable;
// starting the Executable blocks until mongod accepts connections on the
// configured endpoint. Two adapters are provided: Binary downloads and caches
// the official distribution and runs mongod directly, Docker runs the official
// image.
package provisioner

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/kdeps/embedmongo/pkg/environment"
	"github.com/kdeps/embedmongo/pkg/logbridge"
	"github.com/kdeps/embedmongo/pkg/logging"
	"github.com/kdeps/embedmongo/pkg/mongoversion"
	"github.com/spf13/afero"
)

// Net is the endpoint mongod binds to.
type Net struct {
	BindIP string
	Port   int
	IPv6   bool
}

// Address returns host:port, bracketing IPv6 literals.
func (n Net) Address() string {
	return net.JoinHostPort(n.BindIP, strconv.Itoa(n.Port))
}

// ProcessConfig describes the server to run.
type ProcessConfig struct {
	Version mongoversion.Version
	Net     Net
}

// ArtifactStoreConfig controls where distributions come from and where they are kept.
type ArtifactStoreConfig struct {
	DownloadURL string
	CacheDir    string
	LinuxDistro string
	DockerImage string
	HTTPClient  *http.Client
	Progress    logbridge.ProgressListener
	Fs          afero.Fs
}

// RuntimeConfig carries everything a provisioner needs besides the process itself.
type RuntimeConfig struct {
	Output         logbridge.ProcessOutput
	Store          ArtifactStoreConfig
	StartupTimeout time.Duration
	Logger         *logging.Logger
}

// Provisioner prepares a runnable MongoDB server.
type Provisioner interface {
	Prepare(ctx context.Context, rc RuntimeConfig, pc ProcessConfig) (Executable, error)
}

// Executable is a prepared server that has not been started yet.
type Executable interface {
	Start(ctx context.Context) (Process, error)
}

// Process is a running server.
type Process interface {
	Endpoint() Net
	// Done is closed when the server exits for any reason.
	Done() <-chan struct{}
	// Stop terminates the server. Calls after the first return nil.
	Stop(ctx context.Context) error
}

// New returns the provisioner registered under kind.
func New(kind string) (Provisioner, error) {
	switch kind {
	case "", environment.ProvisionerBinary:
		return NewBinary(), nil
	case environment.ProvisionerDocker:
		return NewDocker(nil), nil
	default:
		return nil, fmt.Errorf("unknown provisioner %q", kind)
	}
}

// withDefaults fills unset runtime fields.
func (rc RuntimeConfig) withDefaults() RuntimeConfig {
	if rc.Logger == nil {
		rc.Logger = logging.GetLogger()
	}
	if rc.StartupTimeout <= 0 {
		rc.StartupTimeout = environment.Default().StartupTimeout()
	}
	if rc.Output.Output == nil || rc.Output.Error == nil || rc.Output.Commands == nil {
		def := logbridge.NewProcessOutput(rc.Logger)
		if rc.Output.Output == nil {
			rc.Output.Output = def.Output
		}
		if rc.Output.Error == nil {
			rc.Output.Error = def.Error
		}
		if rc.Output.Commands == nil {
			rc.Output.Commands = def.Commands
		}
	}
	if rc.Store.Progress == nil {
		rc.Store.Progress = logbridge.NopProgressListener{}
	}
	if rc.Store.Fs == nil {
		rc.Store.Fs = afero.NewOsFs()
	}
	if rc.Store.HTTPClient == nil {
		rc.Store.HTTPClient = http.DefaultClient
	}
	d := environment.Default()
	if rc.Store.DownloadURL == "" {
		rc.Store.DownloadURL = d.DownloadURL
	}
	if rc.Store.CacheDir == "" {
		rc.Store.CacheDir = d.CacheDir
	}
	if rc.Store.DockerImage == "" {
		rc.Store.DockerImage = d.DockerImage
	}
	return rc
}
