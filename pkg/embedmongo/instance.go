package embedmongo

import (
	"context"
	"errors"
	"sync"

	perrors "github.com/kdeps/embedmongo/pkg/errors"
	"github.com/kdeps/embedmongo/pkg/logging"
	"github.com/kdeps/embedmongo/pkg/mongoversion"
	"github.com/kdeps/embedmongo/pkg/provisioner"
	"go.mongodb.org/mongo-driver/mongo"
)

// State is the lifecycle state of an Instance.
type State int

const (
	Unstarted State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Instance owns a running mongod and the client connected to it.
type Instance struct {
	client  *mongo.Client
	process provisioner.Process
	version mongoversion.Version
	logger  *logging.Logger

	mu    sync.Mutex
	state State
}

func newInstance(client *mongo.Client, process provisioner.Process, version mongoversion.Version, logger *logging.Logger) *Instance {
	return &Instance{
		client:  client,
		process: process,
		version: version,
		logger:  logger,
		state:   Running,
	}
}

// Client returns the connected client. It stays valid until Close.
func (i *Instance) Client() *mongo.Client {
	return i.client
}

// Endpoint returns the address mongod listens on.
func (i *Instance) Endpoint() provisioner.Net {
	return i.process.Endpoint()
}

// URI returns a connection string for the instance.
func (i *Instance) URI() string {
	return "mongodb://" + i.Endpoint().Address() + "/?directConnection=true"
}

// Version returns the version the instance was started with.
func (i *Instance) Version() mongoversion.Version {
	return i.version
}

// State reports the lifecycle state.
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Done is closed when mongod exits, whether through Close or on its own.
func (i *Instance) Done() <-chan struct{} {
	return i.process.Done()
}

// Close disconnects the client and stops mongod. Only the first call acts.
func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	if i.state != Running {
		i.mu.Unlock()
		return nil
	}
	i.state = Stopped
	i.mu.Unlock()

	i.logger.Info("Stopping embedded MongoDB instance", "address", i.Endpoint().Address())

	var errs []error
	if i.client != nil {
		if err := i.client.Disconnect(ctx); err != nil {
			errs = append(errs, perrors.WrapError(err, perrors.ErrTeardown, "failed to disconnect client").WithOp("disconnect"))
		}
	}
	if err := i.process.Stop(ctx); err != nil {
		errs = append(errs, perrors.WrapError(err, perrors.ErrTeardown, "failed to stop mongod").WithOp("stop"))
	}
	return errors.Join(errs...)
}
