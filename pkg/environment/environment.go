package environment

import (
	"path/filepath"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/adrg/xdg"
)

const (
	ProvisionerBinary = "binary"
	ProvisionerDocker = "docker"
)

// Environment holds provisioner settings loaded from the OS or defaults.
type Environment struct {
	CacheDir    string `env:"EMBEDMONGO_CACHE_DIR"`
	DownloadURL string `env:"EMBEDMONGO_DOWNLOAD_URL,default=https://fastdl.mongodb.org"`
	LinuxDistro string `env:"EMBEDMONGO_LINUX_DISTRO,default=auto"`
	Provisioner string `env:"EMBEDMONGO_PROVISIONER,default=binary"`
	DockerImage string `env:"EMBEDMONGO_DOCKER_IMAGE,default=mongo"`
	TimeoutSec  int    `env:"EMBEDMONGO_TIMEOUT,default=60"`
	LogLevel    string `env:"EMBEDMONGO_LOG_LEVEL,default=info"`
	Skip        string `env:"EMBEDMONGO_SKIP,default=0"`
	Extras      env.EnvSet
}

// Default returns the settings used when nothing is configured.
func Default() *Environment {
	return &Environment{
		CacheDir:    DefaultCacheDir(),
		DownloadURL: "https://fastdl.mongodb.org",
		LinuxDistro: "auto",
		Provisioner: ProvisionerBinary,
		DockerImage: "mongo",
		TimeoutSec:  60,
		LogLevel:    "info",
		Skip:        "0",
	}
}

// DefaultCacheDir is $XDG_CACHE_HOME/embedmongo.
func DefaultCacheDir() string {
	return filepath.Join(xdg.CacheHome, "embedmongo")
}

// NewEnvironment initializes and returns a new Environment. A non-nil environ
// takes priority over the process environment; its empty fields fall back to
// defaults.
func NewEnvironment(environ *Environment) (*Environment, error) {
	if environ != nil {
		return withDefaults(*environ), nil
	}

	environment := &Environment{}
	extras, err := env.UnmarshalFromEnviron(environment)
	if err != nil {
		return nil, err
	}
	environment.Extras = extras

	return withDefaults(*environment), nil
}

func withDefaults(e Environment) *Environment {
	d := Default()
	if e.CacheDir == "" {
		e.CacheDir = d.CacheDir
	}
	if e.DownloadURL == "" {
		e.DownloadURL = d.DownloadURL
	}
	if e.LinuxDistro == "" {
		e.LinuxDistro = d.LinuxDistro
	}
	if e.Provisioner == "" {
		e.Provisioner = d.Provisioner
	}
	if e.DockerImage == "" {
		e.DockerImage = d.DockerImage
	}
	if e.TimeoutSec <= 0 {
		e.TimeoutSec = d.TimeoutSec
	}
	if e.LogLevel == "" {
		e.LogLevel = d.LogLevel
	}
	if e.Skip == "" {
		e.Skip = d.Skip
	}
	return &e
}

// StartupTimeout is how long a provisioner waits for mongod to accept connections.
func (e *Environment) StartupTimeout() time.Duration {
	return time.Duration(e.TimeoutSec) * time.Second
}

// Skipped reports whether EMBEDMONGO_SKIP=1.
func (e *Environment) Skipped() bool {
	return e.Skip == "1"
}
