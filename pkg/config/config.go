package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/kdeps/embedmongo/pkg/environment"
	"github.com/kdeps/embedmongo/pkg/network"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// FileName is looked up in the working directory when no path is given.
const FileName = ".embedmongo.yaml"

// Config holds the settings the CLI starts an instance with.
type Config struct {
	Version     string
	BindIP      string
	Port        int
	Provisioner string
	CacheDir    string
	TimeoutSec  int
}

// FileConfig represents supported YAML config overrides.
type FileConfig struct {
	Version     string `yaml:"version"`
	BindIP      string `yaml:"bind_ip"`
	Port        int    `yaml:"port"`
	Provisioner string `yaml:"provisioner"`
	CacheDir    string `yaml:"cache_dir"`
	TimeoutSec  int    `yaml:"timeout_sec"`
}

// DefaultConfig leaves version, bind address and port empty so the builder
// applies its own defaults.
func DefaultConfig(env *environment.Environment) Config {
	if env == nil {
		env = environment.Default()
	}
	return Config{
		Provisioner: env.Provisioner,
		CacheDir:    env.CacheDir,
		TimeoutSec:  env.TimeoutSec,
	}
}

// Load reads the YAML file at path and applies it over defaults. An empty
// path means FileName in dir; a missing default file is not an error.
func Load(fs afero.Fs, dir, path string, env *environment.Environment) (Config, error) {
	cfg := DefaultConfig(env)

	explicit := path != ""
	if !explicit {
		path = filepath.Join(dir, FileName)
	}

	exists, err := afero.Exists(fs, path)
	if err != nil {
		return cfg, fmt.Errorf("stat config %s: %w", path, err)
	}
	if !exists {
		if explicit {
			return cfg, fmt.Errorf("config %s does not exist", path)
		}
		return cfg, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	var fileCfg FileConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyFileConfig(&cfg, fileCfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func applyFileConfig(cfg *Config, fc FileConfig) {
	if fc.Version != "" {
		cfg.Version = fc.Version
	}
	if fc.BindIP != "" {
		cfg.BindIP = fc.BindIP
	}
	if fc.Port != 0 {
		cfg.Port = fc.Port
	}
	if fc.Provisioner != "" {
		cfg.Provisioner = fc.Provisioner
	}
	if fc.CacheDir != "" {
		cfg.CacheDir = fc.CacheDir
	}
	if fc.TimeoutSec != 0 {
		cfg.TimeoutSec = fc.TimeoutSec
	}
}

// Validate checks the values the builder would otherwise reject later.
func (c Config) Validate() error {
	var errs []error
	if c.Port != 0 && !network.ValidPort(c.Port) {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Provisioner {
	case "", environment.ProvisionerBinary, environment.ProvisionerDocker:
	default:
		errs = append(errs, fmt.Errorf("unknown provisioner %q", c.Provisioner))
	}
	if c.TimeoutSec < 0 {
		errs = append(errs, errors.New("timeout_sec must not be negative"))
	}
	return errors.Join(errs...)
}
