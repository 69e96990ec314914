package embedmongo

import (
	"context"
	"errors"
)

// Run builds an instance, passes it to fn and closes it when fn returns,
// including on panic.
func Run(ctx context.Context, b *Builder, fn func(*Instance) error) (err error) {
	inst, err := b.Build(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, inst.Close(context.WithoutCancel(ctx)))
	}()
	return fn(inst)
}
