package provisioner

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kdeps/embedmongo/pkg/archive"
	"github.com/kdeps/embedmongo/pkg/download"
	perrors "github.com/kdeps/embedmongo/pkg/errors"
	"github.com/kdeps/embedmongo/pkg/logbridge"
	"github.com/kdeps/embedmongo/pkg/procexec"
	"github.com/spf13/afero"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// shutdownGrace bounds how long Stop waits for mongod to exit after the
// shutdown command before killing it.
var shutdownGrace = 10 * time.Second

// requestShutdown sends the admin shutdown command. The server drops the
// connection while handling it, so network errors count as success.
var requestShutdown = func(ctx context.Context, n Net) error {
	client, err := mongo.Connect(ctx, options.Client().
		SetHosts([]string{n.Address()}).
		SetDirect(true).
		SetServerSelectionTimeout(shutdownGrace))
	if err != nil {
		return err
	}
	defer client.Disconnect(context.WithoutCancel(ctx))

	err = client.Database("admin").RunCommand(ctx, bson.D{{Key: "shutdown", Value: 1}}).Err()
	if err != nil && !mongo.IsNetworkError(err) {
		return err
	}
	return nil
}

// Binary runs the official mongod distribution directly on the host.
type Binary struct {
	Platform Platform
}

// NewBinary returns a Binary provisioner for the current platform.
func NewBinary() *Binary {
	return &Binary{Platform: CurrentPlatform()}
}

// Prepare makes sure a mongod for pc.Version is present in the cache,
// downloading and extracting it when missing.
func (b *Binary) Prepare(ctx context.Context, rc RuntimeConfig, pc ProcessConfig) (Executable, error) {
	rc = rc.withDefaults()
	store := rc.Store
	logger := rc.Logger.Component("download")

	distro := store.LinuxDistro
	if b.Platform.OS == "linux" && (distro == "" || distro == DistroAuto) {
		distro = DetectLinuxDistro(store.Fs)
		logger.Debug("detected linux distribution", "distro", distro)
	}
	name, err := b.Platform.ArchiveName(pc.Version.Release, distro)
	if err != nil {
		return nil, err
	}
	binPath := BinaryPath(store.CacheDir, name)

	exists, err := afero.Exists(store.Fs, binPath)
	if err != nil {
		return nil, fmt.Errorf("check cached mongod: %w", err)
	}
	if !exists {
		url, err := b.Platform.DownloadURL(store.DownloadURL, pc.Version.Release, distro)
		if err != nil {
			return nil, err
		}
		archivePath := ArchivePath(store.CacheDir, name)
		logger.Info("Downloading MongoDB distribution", "version", pc.Version.Release, "url", url)
		if err := download.DownloadFile(store.Fs, ctx, store.HTTPClient, url, archivePath, store.Progress, logger); err != nil {
			return nil, perrors.NewDownloadError(url, err)
		}

		label := "Extract " + name
		store.Progress.Start(label)
		if err := archive.ExtractFile(store.Fs, archivePath, "bin/mongod", binPath); err != nil {
			return nil, fmt.Errorf("extract mongod from %s: %w", archivePath, err)
		}
		store.Progress.Done(label)
	}
	logger.Debug("using cached mongod", "path", binPath)

	return &binaryExecutable{binPath: binPath, rc: rc, pc: pc}, nil
}

type binaryExecutable struct {
	binPath string
	rc      RuntimeConfig
	pc      ProcessConfig
}

func (e *binaryExecutable) args(dbPath string) []string {
	args := []string{
		"--port", strconv.Itoa(e.pc.Net.Port),
		"--bind_ip", e.pc.Net.BindIP,
		"--dbpath", dbPath,
		"--nounixsocket",
	}
	if e.pc.Net.IPv6 {
		args = append(args, "--ipv6")
	}
	return args
}

// Start launches mongod and blocks until it accepts connections.
func (e *binaryExecutable) Start(ctx context.Context) (Process, error) {
	fs := e.rc.Store.Fs
	logger := e.rc.Logger.Component("mongod")

	dbPath, err := afero.TempDir(fs, "", "embedmongo-")
	if err != nil {
		return nil, fmt.Errorf("create db path: %w", err)
	}

	watcher := NewReadinessWatcher()
	stdout := logbridge.NewLineWriter(watcher.Observe(e.rc.Output.Output))
	stderr := logbridge.NewLineWriter(watcher.Observe(e.rc.Output.Error))
	args := e.args(dbPath)
	e.rc.Output.Commands.Process(fmt.Sprintf("starting %s %s", e.binPath, strings.Join(args, " ")))

	// The process must outlive the caller's context; only Stop ends it.
	h, err := procexec.StartBackground(context.WithoutCancel(ctx), procexec.Task{
		Command: e.binPath,
		Args:    args,
		Stdout:  stdout,
		Stderr:  stderr,
	}, logger)
	if err != nil {
		_ = fs.RemoveAll(dbPath)
		return nil, err
	}

	p := &binaryProcess{
		handle: h,
		net:    e.pc.Net,
		dbPath: dbPath,
		fs:     fs,
		stdout: stdout,
		stderr: stderr,
		output: e.rc.Output,
	}

	if err := WaitForServer(ctx, e.pc.Net.Address(), e.rc.StartupTimeout, watcher, h.Done(), logger); err != nil {
		_ = p.Stop(context.WithoutCancel(ctx))
		if res, _ := h.Result(); res.ExitCode > 0 {
			err = fmt.Errorf("%w (exit code %d)", err, res.ExitCode)
		}
		return nil, err
	}
	p.ready.Store(true)
	e.rc.Output.Commands.Process(fmt.Sprintf("mongod %s ready on %s", e.pc.Version.Release, e.pc.Net.Address()))
	return p, nil
}

type binaryProcess struct {
	handle *procexec.Handle
	net    Net
	dbPath string
	fs     afero.Fs
	stdout *logbridge.LineWriter
	stderr *logbridge.LineWriter
	output logbridge.ProcessOutput
	// ready is set once startup succeeded; only then does the port belong to
	// this mongod and a shutdown command may be sent to it.
	ready atomic.Bool

	once sync.Once
	err  error
}

func (p *binaryProcess) Endpoint() Net { return p.net }

func (p *binaryProcess) Done() <-chan struct{} { return p.handle.Done() }

func (p *binaryProcess) Stop(ctx context.Context) error {
	p.once.Do(func() {
		if p.ready.Load() {
			p.err = p.handle.Shutdown(ctx, shutdownGrace, func(ctx context.Context) error {
				return requestShutdown(ctx, p.net)
			})
		} else {
			p.err = p.handle.Stop(ctx)
		}
		p.stdout.Close()
		p.stderr.Close()
		if err := p.fs.RemoveAll(p.dbPath); err != nil && p.err == nil {
			p.err = fmt.Errorf("remove db path %s: %w", p.dbPath, err)
		}
		p.output.Commands.Process("mongod on " + p.net.Address() + " stopped")
	})
	return p.err
}
