package embedmongo

import (
	"context"
	"reflect"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"
)

// Factory adapts a Builder to containers that ask for an object, cache it as
// a singleton, and call a teardown hook on shutdown.
type Factory struct {
	builder *Builder

	mu       sync.Mutex
	instance *Instance
}

// NewFactory returns a factory with default settings.
func NewFactory() *Factory {
	return &Factory{builder: NewBuilder()}
}

// NewFactoryFrom wraps an existing builder.
func NewFactoryFrom(b *Builder) *Factory {
	return &Factory{builder: b}
}

// Builder exposes the underlying builder for the With* options.
func (f *Factory) Builder() *Builder {
	return f.builder
}

// SetVersion sets the version from a string.
func (f *Factory) SetVersion(version string) error {
	return f.builder.setVersionString(version)
}

// SetPort sets the port.
func (f *Factory) SetPort(port int) error {
	return f.builder.setPort(port)
}

// SetBindIP sets the bind address.
func (f *Factory) SetBindIP(ip string) error {
	return f.builder.setBindIP(ip)
}

// Produce starts the instance on first call and returns its client; later
// calls return the same client while it is running.
func (f *Factory) Produce(ctx context.Context) (*mongo.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.instance != nil && f.instance.State() == Running {
		return f.instance.Client(), nil
	}
	inst, err := f.builder.Build(ctx)
	if err != nil {
		return nil, err
	}
	f.instance = inst
	return inst.Client(), nil
}

// ProducedType is *mongo.Client.
func (f *Factory) ProducedType() reflect.Type {
	return reflect.TypeOf((*mongo.Client)(nil))
}

// IsSingleton is always true.
func (f *Factory) IsSingleton() bool {
	return true
}

// Instance returns the produced instance, or nil.
func (f *Factory) Instance() *Instance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.instance
}

// Destroy closes the produced instance. It does nothing when Produce was
// never called or the instance is already closed.
func (f *Factory) Destroy(ctx context.Context) error {
	f.mu.Lock()
	inst := f.instance
	f.mu.Unlock()

	if inst == nil {
		return nil
	}
	return inst.Close(ctx)
}
