package srv

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/srvgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/srvgate/internal/ipc"
	"github.com/GriffinCanCode/srvgate/internal/kernel"
	"github.com/GriffinCanCode/srvgate/internal/result"
)

// ErrNegativeSessions is returned by RegisterService for a negative session limit.
var ErrNegativeSessions = errors.New("negative max sessions")

// GetServiceHandle returns a session handle for the named service. A matching
// override entry is duplicated and returned without contacting the service
// manager; the entry itself stays valid for later lookups.
func (c *Client) GetServiceHandle(ctx context.Context, name string) (kernel.Handle, error) {
	if h, ok := c.overrides.Lookup(name); ok {
		timer := monitoring.NewTimer(c.metrics, "srv", "GetServiceHandle")
		dup, err := c.kernel.DuplicateHandle(ctx, h)
		if err != nil {
			timer.Stop(monitoring.OutcomeTransport)
			return 0, result.Transport("DuplicateHandle", err)
		}
		timer.Stop(monitoring.OutcomeOverride)
		c.metrics.IncOverrideHits()
		c.logger.Debug("service handle from override table", zap.String("service", name))
		return dup, nil
	}
	return c.GetServiceHandleDirect(ctx, name)
}

// GetServiceHandleDirect asks the service manager for a session to the named
// service, ignoring the override table.
func (c *Client) GetServiceHandleDirect(ctx context.Context, name string) (kernel.Handle, error) {
	r, err := c.call(ctx, "GetServiceHandle", CmdGetServiceHandle, func(b *ipc.Builder) *ipc.Builder {
		return b.Name(name).Word(0)
	})
	if err != nil {
		return 0, err
	}
	return handleOut(r, "GetServiceHandle")
}

// RegisterService publishes a service and returns the server port handle the
// caller accepts sessions on. maxSessions must not be negative.
func (c *Client) RegisterService(ctx context.Context, name string, maxSessions int) (kernel.Handle, error) {
	if maxSessions < 0 {
		return 0, fmt.Errorf("RegisterService: %w: %d", ErrNegativeSessions, maxSessions)
	}
	r, err := c.call(ctx, "RegisterService", CmdRegisterService, func(b *ipc.Builder) *ipc.Builder {
		return b.Name(name).Word(uint32(maxSessions))
	})
	if err != nil {
		return 0, err
	}
	return handleOut(r, "RegisterService")
}

// UnregisterService withdraws a service the caller registered.
func (c *Client) UnregisterService(ctx context.Context, name string) error {
	_, err := c.call(ctx, "UnregisterService", CmdUnregisterService, func(b *ipc.Builder) *ipc.Builder {
		return b.Name(name)
	})
	return err
}

// IsServiceRegistered reports whether a service of that name is registered.
func (c *Client) IsServiceRegistered(ctx context.Context, name string) (bool, error) {
	r, err := c.call(ctx, "IsServiceRegistered", CmdIsServiceRegistered, func(b *ipc.Builder) *ipc.Builder {
		return b.Name(name)
	})
	if err != nil {
		return false, err
	}
	return r.Word(2)&0xFF != 0, nil
}

// handleOut reads the single handle a response carries at words 2 and 3.
func handleOut(r *ipc.Reader, op string) (kernel.Handle, error) {
	h, err := r.Handle(2)
	if err != nil {
		return 0, &result.Error{Kind: result.KindProtocol, Op: op, Code: result.InvalidDescriptor, Err: err}
	}
	return h, nil
}
