// Package testutil provides testing utilities and helpers for gateway tests.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GriffinCanCode/srvgate/internal/ipc"
	"github.com/GriffinCanCode/srvgate/internal/kernel"
	"github.com/GriffinCanCode/srvgate/internal/kernel/sim"
	"github.com/GriffinCanCode/srvgate/internal/result"
	"github.com/GriffinCanCode/srvgate/internal/srvmgr"
)

// MockKernel is a mock implementation of kernel.Kernel for testing.
type MockKernel struct {
	mock.Mock
}

var _ kernel.Kernel = (*MockKernel)(nil)

// ConnectToPort mocks the ConnectToPort method.
func (m *MockKernel) ConnectToPort(ctx context.Context, name string) (kernel.Handle, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(kernel.Handle), args.Error(1)
}

// SendSyncRequest mocks the SendSyncRequest method.
func (m *MockKernel) SendSyncRequest(ctx context.Context, h kernel.Handle, buf *ipc.CommandBuffer) error {
	args := m.Called(ctx, h, buf)
	return args.Error(0)
}

// DuplicateHandle mocks the DuplicateHandle method.
func (m *MockKernel) DuplicateHandle(ctx context.Context, h kernel.Handle) (kernel.Handle, error) {
	args := m.Called(ctx, h)
	return args.Get(0).(kernel.Handle), args.Error(1)
}

// CloseHandle mocks the CloseHandle method.
func (m *MockKernel) CloseHandle(ctx context.Context, h kernel.Handle) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

// WaitSynchronization mocks the WaitSynchronization method.
func (m *MockKernel) WaitSynchronization(ctx context.Context, h kernel.Handle) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

// Reply returns a Run function that overwrites the request buffer with a
// response carrying code and the given extra normal words.
func Reply(code result.Code, words ...uint32) func(mock.Arguments) {
	return func(args mock.Arguments) {
		buf := args.Get(2).(*ipc.CommandBuffer)
		cmd := buf.Header().CommandID()
		if err := ipc.NewReply(buf, cmd, uint32(code)).Words(words...).Finish(); err != nil {
			panic(err)
		}
	}
}

// Command matches a SendSyncRequest buffer carrying the given command id.
func Command(cmd uint16) interface{} {
	return mock.MatchedBy(func(buf *ipc.CommandBuffer) bool {
		return buf.Header().CommandID() == cmd
	})
}

// NewMockKernel creates a mock kernel whose session port connects as handle
// session and whose RegisterClient handshake succeeds.
func NewMockKernel(t *testing.T, session kernel.Handle) *MockKernel {
	t.Helper()
	m := new(MockKernel)

	m.On("ConnectToPort", mock.Anything, "srv:").Return(session, nil).Maybe()
	m.On("SendSyncRequest", mock.Anything, session, Command(0x1)).
		Run(Reply(result.Success)).
		Return(nil).
		Maybe()
	m.On("CloseHandle", mock.Anything, mock.Anything).Return(nil).Maybe()

	return m
}

// Emulator is a simulated kernel with a running service manager.
type Emulator struct {
	Kernel  *sim.Kernel
	Manager *srvmgr.Manager
}

// NewEmulator starts a service manager on a fresh simulated kernel and stops
// it when the test ends.
func NewEmulator(t *testing.T) *Emulator {
	t.Helper()
	logger := zaptest.NewLogger(t)

	k := sim.New(logger)
	m, err := srvmgr.Start(k, 0, srvmgr.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(m.Stop)

	return &Emulator{Kernel: k, Manager: m}
}

// Process creates a simulated process that exits when the test ends.
func (e *Emulator) Process(t *testing.T, name string) *sim.Process {
	t.Helper()
	p := e.Kernel.NewProcess(name)
	t.Cleanup(p.Exit)
	return p
}
