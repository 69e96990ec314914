package cmd

import (
	"bytes"
	"context"
	"testing"

	perrors "github.com/kdeps/embedmongo/pkg/errors"
	"github.com/kdeps/embedmongo/pkg/logging"
	"github.com/kdeps/embedmongo/pkg/mongoversion"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCommandFlags(t *testing.T) {
	prov := &exitedProvisioner{}
	kinds := useProvisioner(t, prov)

	cmd := NewRunCommand(context.Background(), afero.NewMemMapFs(), testEnvironment(), logging.NewTestLogger())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--mongo-version", "4.2.0", "--bind-ip", "127.0.0.1", "--port", "27018", "--provisioner", "docker"})

	err := cmd.Execute()
	require.ErrorIs(t, err, ErrServerExited)

	assert.Equal(t, "mongodb://127.0.0.1:27018/?directConnection=true\n", out.String())
	assert.Equal(t, []string{"docker"}, *kinds)
	require.Len(t, prov.configs, 1)
	assert.Equal(t, mongoversion.V4_2_0, prov.configs[0].Version)
	assert.Equal(t, 1, prov.stops)
}

func TestRunCommandReadsConfigFile(t *testing.T) {
	prov := &exitedProvisioner{}
	useProvisioner(t, prov)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/embedmongo.yaml", []byte("version: \"6.0\"\nport: 27020\ncache_dir: /var/cache/mongo\ntimeout_sec: 5\n"), 0o644))

	root := NewRootCommand(context.Background(), fs, testEnvironment(), logging.NewTestLogger())
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "--config", "/etc/embedmongo.yaml", "--port", "27021"})

	err := root.Execute()
	require.ErrorIs(t, err, ErrServerExited)

	require.Len(t, prov.configs, 1)
	assert.Equal(t, mongoversion.V6_0, prov.configs[0].Version)
	assert.Equal(t, 27021, prov.configs[0].Net.Port)
	assert.Equal(t, "/var/cache/mongo", prov.runtime.Store.CacheDir)
	assert.Equal(t, "5s", prov.runtime.StartupTimeout.String())
}

func TestRunCommandRejectsBadFlags(t *testing.T) {
	prov := &exitedProvisioner{}
	useProvisioner(t, prov)

	cmd := NewRunCommand(context.Background(), afero.NewMemMapFs(), testEnvironment(), logging.NewTestLogger())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--port", "70000"})

	require.Error(t, cmd.Execute())
	assert.Empty(t, prov.configs)
}

func TestRunCommandStopsOnCancel(t *testing.T) {
	prov := &runningProvisioner{}
	useProvisioner(t, prov)

	ctx, cancel := context.WithCancel(context.Background())
	cmd := NewRunCommand(ctx, afero.NewMemMapFs(), testEnvironment(), logging.NewTestLogger())
	out := &notifyWriter{written: make(chan struct{}, 1)}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--port", "27022"})

	errc := make(chan error, 1)
	go func() { errc <- cmd.Execute() }()

	<-out.written
	cancel()
	require.NoError(t, <-errc)
	assert.Equal(t, 1, prov.stops)
}

func TestRunCommandBuildError(t *testing.T) {
	prov := &exitedProvisioner{prepareErr: assert.AnError}
	useProvisioner(t, prov)

	cmd := NewRunCommand(context.Background(), afero.NewMemMapFs(), testEnvironment(), logging.NewTestLogger())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(nil)

	err := cmd.Execute()
	require.ErrorIs(t, err, perrors.StartupFailure)
	require.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, out.String())
}
