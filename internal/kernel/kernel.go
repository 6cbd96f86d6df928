package kernel

import (
	"context"

	"github.com/GriffinCanCode/srvgate/internal/ipc"
)

// Handle is an opaque capability owned by the process that holds it.
type Handle = ipc.Handle

// Kernel is the set of primitives the gateway needs from the platform. Every
// error returned by an implementation should carry a result.Code so callers
// can report the platform status.
type Kernel interface {
	// ConnectToPort opens a session to a named global port.
	ConnectToPort(ctx context.Context, name string) (Handle, error)
	// SendSyncRequest exchanges buf with the server behind session h. The call
	// blocks until the server replies; the reply overwrites buf.
	SendSyncRequest(ctx context.Context, h Handle, buf *ipc.CommandBuffer) error
	// DuplicateHandle returns a new handle to the object behind h.
	DuplicateHandle(ctx context.Context, h Handle) (Handle, error)
	// CloseHandle releases h. The underlying object survives while other handles refer to it.
	CloseHandle(ctx context.Context, h Handle) error
	// WaitSynchronization blocks until the object behind h is signaled or ctx ends.
	WaitSynchronization(ctx context.Context, h Handle) error
}
