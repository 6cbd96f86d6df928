package srv

import (
	"context"

	"github.com/GriffinCanCode/srvgate/internal/ipc"
	"github.com/GriffinCanCode/srvgate/internal/kernel"
)

// RegisterPort publishes a client port under name. The handle is copied to
// the service manager; the caller keeps its own.
func (c *Client) RegisterPort(ctx context.Context, name string, clientPort kernel.Handle) error {
	_, err := c.call(ctx, "RegisterPort", CmdRegisterPort, func(b *ipc.Builder) *ipc.Builder {
		return b.Name(name).SharedHandles(clientPort)
	})
	return err
}

// UnregisterPort withdraws a named port.
func (c *Client) UnregisterPort(ctx context.Context, name string) error {
	_, err := c.call(ctx, "UnregisterPort", CmdUnregisterPort, func(b *ipc.Builder) *ipc.Builder {
		return b.Name(name)
	})
	return err
}

// GetPort returns a client port handle for a named port.
func (c *Client) GetPort(ctx context.Context, name string) (kernel.Handle, error) {
	r, err := c.call(ctx, "GetPort", CmdGetPort, func(b *ipc.Builder) *ipc.Builder {
		return b.Name(name).Word(0)
	})
	if err != nil {
		return 0, err
	}
	return handleOut(r, "GetPort")
}
