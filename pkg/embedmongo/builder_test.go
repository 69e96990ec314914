package embedmongo

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kdeps/embedmongo/pkg/environment"
	perrors "github.com/kdeps/embedmongo/pkg/errors"
	"github.com/kdeps/embedmongo/pkg/mongoversion"
	"github.com/kdeps/embedmongo/pkg/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortValidation(t *testing.T) {
	for _, p := range []int{1, 27017, 65535} {
		b := NewBuilder().Port(p)
		require.NoError(t, b.Err(), p)
	}
	for _, p := range []int{-1, 0, 65536, 70000} {
		b := NewBuilder().Port(p)
		require.ErrorIs(t, b.Err(), perrors.InvalidArgument, p)
	}
}

func TestBindIPValidation(t *testing.T) {
	require.NoError(t, NewBuilder().BindIP("0.0.0.0").Err())
	require.ErrorIs(t, NewBuilder().BindIP("").Err(), perrors.InvalidArgument)
}

func TestDefaultBindAddressIsLoopback(t *testing.T) {
	b := NewBuilder().Port(27017)
	endpoint, err := b.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, network.LoopbackAddress(), endpoint.BindIP)
	assert.True(t, net.ParseIP(endpoint.BindIP).IsLoopback())
}

func TestVersionValidation(t *testing.T) {
	require.ErrorIs(t, NewBuilder().Version(mongoversion.Version{}).Err(), perrors.InvalidArgument)
	require.ErrorIs(t, NewBuilder().VersionString("").Err(), perrors.InvalidArgument)

	b := NewBuilder().Version(mongoversion.V6_0)
	require.NoError(t, b.Err())
	assert.Equal(t, mongoversion.V6_0, b.SelectedVersion())
}

func TestDefaultVersionIsProduction(t *testing.T) {
	assert.Equal(t, mongoversion.Production, NewBuilder().SelectedVersion())
}

func TestVersionStringResolvesSymbolic(t *testing.T) {
	b, _, logger := newTestBuilder()
	b.VersionString("4.2.0")
	require.NoError(t, b.Err())
	assert.Equal(t, mongoversion.V4_2_0, b.SelectedVersion())
	assert.NotContains(t, logger.GetOutput(), "Unrecognized")
}

func TestVersionStringFallsBackToGeneric(t *testing.T) {
	b, _, logger := newTestBuilder()
	b.VersionString("99.99.99")
	require.NoError(t, b.Err())

	v := b.SelectedVersion()
	assert.True(t, v.IsGeneric())
	assert.Equal(t, "99.99.99", v.Release)
	assert.Contains(t, logger.GetOutput(), "WARN")
	assert.Contains(t, logger.GetOutput(), "version=99.99.99")
}

func TestFirstErrorWins(t *testing.T) {
	b := NewBuilder().Port(0).BindIP("").Port(27017)
	pe, ok := perrors.AsProvisionError(b.Err())
	require.True(t, ok)
	assert.Equal(t, "port", pe.Op)
}

func TestLazyPortIsResolvedOnce(t *testing.T) {
	calls := 0
	b := NewBuilder()
	b.freePort = func() (int, error) {
		calls++
		return 40000 + calls, nil
	}

	first, err := b.Endpoint()
	require.NoError(t, err)
	second, err := b.Endpoint()
	require.NoError(t, err)

	assert.Equal(t, 40001, first.Port)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestExplicitPortSkipsLookup(t *testing.T) {
	b := NewBuilder().Port(27017)
	b.freePort = func() (int, error) {
		t.Fatal("free port lookup should not run")
		return 0, nil
	}
	endpoint, err := b.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, 27017, endpoint.Port)
}

func TestPortResolutionFailure(t *testing.T) {
	b, fake, logger := newTestBuilder()
	b.freePort = func() (int, error) { return 0, errBoom }

	_, err := b.Build(context.Background())
	require.ErrorIs(t, err, perrors.StartupFailure)
	require.ErrorIs(t, err, perrors.PortResolution)
	require.ErrorIs(t, err, errBoom)
	assert.Zero(t, fake.prepared())
	assert.Contains(t, logger.GetOutput(), "Could not get free server port")
}

func TestIPv6BindAddress(t *testing.T) {
	b := NewBuilder().BindIP("::1").Port(27017)
	endpoint, err := b.Endpoint()
	require.NoError(t, err)
	assert.True(t, endpoint.IPv6)
	assert.Equal(t, "[::1]:27017", endpoint.Address())
}

func TestIPv6FollowsBindAddress(t *testing.T) {
	endpoint, err := NewBuilder().BindIP("127.0.0.1").Port(27017).Endpoint()
	require.NoError(t, err)
	assert.False(t, endpoint.IPv6)
}

func TestRuntimeConfig(t *testing.T) {
	b, _, logger := newTestBuilder()
	env := testEnvironment()
	env.LinuxDistro = "debian12"
	env.TimeoutSec = 7
	b.WithEnvironment(env)

	rc, err := b.RuntimeConfig()
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, rc.StartupTimeout)
	assert.Equal(t, "/cache", rc.Store.CacheDir)
	assert.Equal(t, "debian12", rc.Store.LinuxDistro)
	assert.Equal(t, "https://fastdl.mongodb.org", rc.Store.DownloadURL)
	assert.NotNil(t, rc.Store.Fs)

	rc.Output.Error.Process("stderr line")
	rc.Output.Commands.Process("command line")
	rc.Output.Output.Process("stdout line")
	rc.Store.Progress.Progress("Download", 30)

	out := logger.GetOutput()
	assert.Regexp(t, `WARN.*mongod.*stderr line`, out)
	assert.Regexp(t, `INFO.*mongod.*command line`, out)
	assert.Regexp(t, `mongod.*stdout line`, out)
	assert.Regexp(t, `DEBU.*download.*Download 30%`, out)

	b.WithStartupTimeout(time.Second)
	rc, err = b.RuntimeConfig()
	require.NoError(t, err)
	assert.Equal(t, time.Second, rc.StartupTimeout)
}

func TestProcessConfig(t *testing.T) {
	b := NewBuilder().VersionString("4.2.0").BindIP("127.0.0.1").Port(27017)
	pc, err := b.ProcessConfig()
	require.NoError(t, err)
	assert.Equal(t, mongoversion.V4_2_0, pc.Version)
	assert.Equal(t, "127.0.0.1:27017", pc.Net.Address())
	assert.False(t, pc.Net.IPv6)
}

func TestResolveProvisionerFromEnvironment(t *testing.T) {
	b := NewBuilder()
	env := testEnvironment()
	env.Provisioner = environment.ProvisionerDocker
	p, err := b.resolveProvisioner(env)
	require.NoError(t, err)
	assert.NotNil(t, p)

	env.Provisioner = "podman"
	_, err = b.resolveProvisioner(env)
	require.Error(t, err)
}
