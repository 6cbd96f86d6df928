package srv_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/srvgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/srvgate/internal/ipc"
	"github.com/GriffinCanCode/srvgate/internal/kernel"
	"github.com/GriffinCanCode/srvgate/internal/kernel/sim"
	"github.com/GriffinCanCode/srvgate/internal/result"
	"github.com/GriffinCanCode/srvgate/internal/srv"
	"github.com/GriffinCanCode/srvgate/tests/helpers/testutil"
)

const sessionHandle kernel.Handle = 0x10

func TestEnsureConnectedIsIdempotent(t *testing.T) {
	k := testutil.NewMockKernel(t, sessionHandle)
	c := srv.New(k)
	ctx := context.Background()

	first, err := c.Session().EnsureConnected(ctx)
	require.NoError(t, err)
	second, err := c.Session().EnsureConnected(ctx)
	require.NoError(t, err)

	assert.Equal(t, sessionHandle, first)
	assert.Equal(t, first, second)
	k.AssertNumberOfCalls(t, "ConnectToPort", 1)
	k.AssertNumberOfCalls(t, "SendSyncRequest", 1)
}

func TestRejectedHandshakeLeavesSessionDisconnected(t *testing.T) {
	k := new(testutil.MockKernel)
	k.On("ConnectToPort", mock.Anything, srv.PortName).Return(sessionHandle, nil)
	k.On("SendSyncRequest", mock.Anything, sessionHandle, testutil.Command(srv.CmdRegisterClient)).
		Run(testutil.Reply(result.AccessDenied)).
		Return(nil).
		Once()
	k.On("SendSyncRequest", mock.Anything, sessionHandle, testutil.Command(srv.CmdRegisterClient)).
		Run(testutil.Reply(result.Success)).
		Return(nil).
		Once()
	k.On("CloseHandle", mock.Anything, sessionHandle).Return(nil)

	c := srv.New(k)
	ctx := context.Background()

	err := c.Init(ctx)
	require.Error(t, err)
	assert.True(t, result.IsKind(err, result.KindInit))
	assert.Equal(t, result.AccessDenied, result.CodeOf(err))
	assert.False(t, c.Session().Connected())
	k.AssertCalled(t, "CloseHandle", mock.Anything, sessionHandle)

	require.NoError(t, c.Init(ctx))
	assert.True(t, c.Session().Connected())
	k.AssertNumberOfCalls(t, "ConnectToPort", 2)
	k.AssertNumberOfCalls(t, "SendSyncRequest", 2)
}

func TestConnectFailureIsInitError(t *testing.T) {
	k := new(testutil.MockKernel)
	k.On("ConnectToPort", mock.Anything, srv.PortName).Return(kernel.Handle(0), result.NotFound)

	_, err := srv.New(k).IsServiceRegistered(context.Background(), "fs:USER")
	require.Error(t, err)

	var e *result.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, result.KindInit, e.Kind)
	assert.Equal(t, result.NotFound, result.CodeOf(err))
	k.AssertNotCalled(t, "SendSyncRequest", mock.Anything, mock.Anything, mock.Anything)
}

func TestTeardownTwiceClosesOnce(t *testing.T) {
	k := testutil.NewMockKernel(t, sessionHandle)
	c := srv.New(k)
	ctx := context.Background()

	require.NoError(t, c.Init(ctx))
	require.NoError(t, c.Exit(ctx))
	require.NoError(t, c.Exit(ctx))

	assert.False(t, c.Session().Connected())
	k.AssertNumberOfCalls(t, "CloseHandle", 1)
}

func TestOverrideHitSkipsExchange(t *testing.T) {
	const granted, dup kernel.Handle = 0x99, 0x100

	k := new(testutil.MockKernel)
	k.On("DuplicateHandle", mock.Anything, granted).Return(dup, nil)

	c := srv.New(k, srv.WithOverrides(srv.NewOverrideTable(
		srv.Override{Name: "fs:USER", Handle: granted},
	)))

	h, err := c.GetServiceHandle(context.Background(), "fs:USER")
	require.NoError(t, err)
	assert.Equal(t, dup, h)
	assert.False(t, c.Session().Connected())
	k.AssertNotCalled(t, "ConnectToPort", mock.Anything, mock.Anything)
	k.AssertNotCalled(t, "SendSyncRequest", mock.Anything, mock.Anything, mock.Anything)
}

func TestOverrideHitIsRecorded(t *testing.T) {
	k := new(testutil.MockKernel)
	k.On("DuplicateHandle", mock.Anything, kernel.Handle(0x99)).Return(kernel.Handle(0x100), nil)
	m := monitoring.NewMetrics(prometheus.NewRegistry())

	c := srv.New(k, srv.WithMetrics(m), srv.WithOverrides(srv.NewOverrideTable(
		srv.Override{Name: "fs:USER", Handle: 0x99},
	)))
	_, err := c.GetServiceHandle(context.Background(), "fs:USER")
	require.NoError(t, err)

	hits := m.Exchanges.WithLabelValues("srv", "GetServiceHandle", monitoring.OutcomeOverride)
	assert.Equal(t, 1.0, promtest.ToFloat64(hits))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.OverrideHits))
	assert.Zero(t, m.Snapshot().FailedExchanges)
}

func TestRegisterServiceRejectsNegativeLimit(t *testing.T) {
	k := testutil.NewMockKernel(t, sessionHandle)

	_, err := srv.New(k).RegisterService(context.Background(), "echo", -1)
	assert.ErrorIs(t, err, srv.ErrNegativeSessions)
	k.AssertNotCalled(t, "SendSyncRequest", mock.Anything, mock.Anything, mock.Anything)
}

func TestExitReleasesOverrides(t *testing.T) {
	k := new(testutil.MockKernel)
	k.On("CloseHandle", mock.Anything, kernel.Handle(0x99)).Return(nil).Once()

	table := srv.NewOverrideTable(srv.Override{Name: "fs:USER", Handle: 0x99})
	c := srv.New(k, srv.WithOverrides(table))

	require.NoError(t, c.Exit(context.Background()))
	assert.Equal(t, 0, table.Len())
	k.AssertExpectations(t)
}

func TestOverrideLookup(t *testing.T) {
	table := srv.NewOverrideTable(
		srv.Override{Name: "fs:USER", Handle: 0x20},
		srv.Override{Name: "fs:USER", Handle: 0x21},
		srv.Override{Name: "hid:USER", Handle: 0},
		srv.Override{Name: "cfg:u-long", Handle: 0x22},
	)

	tests := []struct {
		name   string
		lookup string
		want   kernel.Handle
		found  bool
	}{
		{"first match wins", "fs:USER", 0x20, true},
		{"zero handle is a miss", "hid:USER", 0, false},
		{"absent", "ac:u", 0, false},
		{"compares eight bytes", "cfg:u-lo", 0x22, true},
		{"prefix is not a match", "fs:", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, ok := table.Lookup(tt.lookup)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, h)
		})
	}

	var empty *srv.OverrideTable
	_, ok := empty.Lookup("fs:USER")
	assert.False(t, ok)
	assert.NoError(t, empty.ReleaseAll(context.Background(), nil))
}

func TestLongNameKeepsItsLengthOnTheWire(t *testing.T) {
	k := testutil.NewMockKernel(t, sessionHandle)
	var sent ipc.CommandBuffer
	k.On("SendSyncRequest", mock.Anything, sessionHandle, testutil.Command(srv.CmdIsServiceRegistered)).
		Run(func(args mock.Arguments) {
			sent = *args.Get(2).(*ipc.CommandBuffer)
			testutil.Reply(result.Success, 1)(args)
		}).
		Return(nil)

	ok, err := srv.New(k).IsServiceRegistered(context.Background(), "averylongname")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint32(ipc.MakeHeader(srv.CmdIsServiceRegistered, 3, 0)), sent.Words[0])
	assert.Equal(t, uint32(0x72657661), sent.Words[1]) // "aver"
	assert.Equal(t, uint32(0x6E6F6C79), sent.Words[2]) // "ylon"
	assert.Equal(t, uint32(len("averylongname")), sent.Words[3])
}

func TestPublishAndGetSubscriber(t *testing.T) {
	tests := []struct {
		name    string
		reply   []uint32
		pids    []uint32
		count   int
		want    []uint32
		wantErr error
	}{
		{
			name:  "zero count touches nothing",
			reply: []uint32{0, 0x55, 0x56},
			pids:  []uint32{0xAA, 0xAA},
			count: 0,
			want:  []uint32{0xAA, 0xAA},
		},
		{
			name:  "copies every id",
			reply: []uint32{2, 0x21, 0x22},
			pids:  make([]uint32, 4),
			count: 2,
			want:  []uint32{0x21, 0x22, 0, 0},
		},
		{
			name:    "short slice",
			reply:   []uint32{3, 0x21, 0x22, 0x23},
			pids:    make([]uint32, 2),
			count:   3,
			want:    []uint32{0x21, 0x22},
			wantErr: srv.ErrShortBuffer,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := testutil.NewMockKernel(t, sessionHandle)
			k.On("SendSyncRequest", mock.Anything, sessionHandle, testutil.Command(srv.CmdPublishAndGetSubscriber)).
				Run(testutil.Reply(result.Success, tt.reply...)).
				Return(nil)

			count, err := srv.New(k).PublishAndGetSubscriber(context.Background(), 0x100, tt.pids)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.count, count)
			assert.Equal(t, tt.want, tt.pids)
		})
	}
}

func TestPublishAndGetSubscriberRejectsOversizedCount(t *testing.T) {
	k := testutil.NewMockKernel(t, sessionHandle)
	k.On("SendSyncRequest", mock.Anything, sessionHandle, testutil.Command(srv.CmdPublishAndGetSubscriber)).
		Run(testutil.Reply(result.Success, srv.MaxSubscribers+1)).
		Return(nil)

	_, err := srv.New(k).PublishAndGetSubscriber(context.Background(), 0x100, make([]uint32, 4))
	assert.True(t, result.IsKind(err, result.KindProtocol))
}

func TestExchangeErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		run  func(mock.Arguments)
		err  error
		kind result.Kind
		code result.Code
	}{
		{"transport", func(mock.Arguments) {}, result.SessionClosed, result.KindTransport, result.SessionClosed},
		{"protocol", testutil.Reply(result.ServiceNotRegistered), nil, result.KindProtocol, result.ServiceNotRegistered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := testutil.NewMockKernel(t, sessionHandle)
			k.On("SendSyncRequest", mock.Anything, sessionHandle, testutil.Command(srv.CmdGetServiceHandle)).
				Run(tt.run).
				Return(tt.err)

			h, err := srv.New(k).GetServiceHandle(context.Background(), "fs:USER")
			require.Error(t, err)
			assert.Zero(t, h)
			assert.True(t, result.IsKind(err, tt.kind))
			assert.Equal(t, tt.code, result.CodeOf(err))
		})
	}
}

func echoHandler() sim.Handler {
	return sim.HandlerFunc(func(_ context.Context, req *sim.Request) error {
		cmd := req.Buf.Header().CommandID()
		v := req.Buf.Words[1]
		return ipc.NewReply(req.Buf, cmd, 0).Word(v + 1).Finish()
	})
}

func echo(t *testing.T, p *sim.Process, h kernel.Handle, v uint32) uint32 {
	t.Helper()
	var buf ipc.CommandBuffer
	require.NoError(t, ipc.NewBuilder(&buf, 1).Word(v).Finish())
	require.NoError(t, p.SendSyncRequest(context.Background(), h, &buf))
	require.Equal(t, uint32(0), buf.Words[1])
	return buf.Words[2]
}

func TestOverrideDuplicateIsIndependent(t *testing.T) {
	emu := testutil.NewEmulator(t)
	require.NoError(t, emu.Manager.RegisterBuiltin("echo", 4, echoHandler()))
	ctx := context.Background()

	p := emu.Process(t, "app")
	own, err := srv.New(p).GetServiceHandleDirect(ctx, "echo")
	require.NoError(t, err)

	c := srv.New(p, srv.WithOverrides(srv.NewOverrideTable(srv.Override{Name: "echo", Handle: own})))
	dup, err := c.GetServiceHandle(ctx, "echo")
	require.NoError(t, err)
	assert.NotEqual(t, own, dup)

	require.NoError(t, p.CloseHandle(ctx, dup))
	assert.Equal(t, uint32(8), echo(t, p, own, 7))

	again, err := c.GetServiceHandle(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), echo(t, p, again, 1))
}

func TestOverrideMissFallsThrough(t *testing.T) {
	emu := testutil.NewEmulator(t)
	require.NoError(t, emu.Manager.RegisterBuiltin("echo", 4, echoHandler()))
	ctx := context.Background()

	p := emu.Process(t, "app")
	c := srv.New(p, srv.WithOverrides(srv.NewOverrideTable(srv.Override{Name: "other", Handle: 0x1234})))

	h, err := c.GetServiceHandle(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, uint32(43), echo(t, p, h, 42))
	assert.True(t, c.Session().Connected())
}

func TestServiceRegistration(t *testing.T) {
	emu := testutil.NewEmulator(t)
	ctx := context.Background()

	serverProc := emu.Process(t, "server")
	server := srv.New(serverProc)
	port, err := server.RegisterService(ctx, "echo", 2)
	require.NoError(t, err)
	require.NoError(t, serverProc.Serve(port, echoHandler()))

	_, err = server.RegisterService(ctx, "echo", 2)
	assert.Equal(t, result.AlreadyRegistered, result.CodeOf(err))

	clientProc := emu.Process(t, "client")
	client := srv.New(clientProc)

	registered, err := client.IsServiceRegistered(ctx, "echo")
	require.NoError(t, err)
	assert.True(t, registered)

	h, err := client.GetServiceHandle(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, uint32(11), echo(t, clientProc, h, 10))

	err = client.UnregisterService(ctx, "echo")
	assert.Equal(t, result.AccessDenied, result.CodeOf(err))

	require.NoError(t, server.UnregisterService(ctx, "echo"))
	registered, err = client.IsServiceRegistered(ctx, "echo")
	require.NoError(t, err)
	assert.False(t, registered)

	_, err = client.GetServiceHandle(ctx, "echo")
	assert.True(t, result.IsKind(err, result.KindProtocol))
	assert.Equal(t, result.ServiceNotRegistered, result.CodeOf(err))
}

func TestNamedPorts(t *testing.T) {
	emu := testutil.NewEmulator(t)
	ctx := context.Background()

	owner := emu.Process(t, "owner")
	server, clientPort, err := owner.CreatePort("", 1)
	require.NoError(t, err)
	require.NoError(t, owner.Serve(server, echoHandler()))

	oc := srv.New(owner)
	require.NoError(t, oc.RegisterPort(ctx, "dbg:port", clientPort))

	user := emu.Process(t, "user")
	uc := srv.New(user)
	cp, err := uc.GetPort(ctx, "dbg:port")
	require.NoError(t, err)

	session, err := user.CreateSessionToPort(cp)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), echo(t, user, session, 5))

	require.NoError(t, oc.UnregisterPort(ctx, "dbg:port"))
	_, err = uc.GetPort(ctx, "dbg:port")
	assert.True(t, result.IsKind(err, result.KindProtocol))
}

func TestNotifications(t *testing.T) {
	emu := testutil.NewEmulator(t)
	ctx := context.Background()

	subProc := emu.Process(t, "sub")
	sub := srv.New(subProc)
	sem, err := sub.EnableNotification(ctx)
	require.NoError(t, err)
	require.NoError(t, sub.Subscribe(ctx, 0x100))

	pub := srv.New(emu.Process(t, "pub"))
	require.NoError(t, pub.PublishToSubscriber(ctx, 0x100, 0))

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	id, err := sub.WaitNotification(waitCtx, sem)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x100), id)

	pids := make([]uint32, srv.MaxSubscribers)
	count, err := pub.PublishAndGetSubscriber(ctx, 0x100, pids)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, subProc.PID(), pids[0])

	id, err = sub.ReceiveNotification(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x100), id)

	require.NoError(t, sub.Unsubscribe(ctx, 0x100))
	count, err = pub.PublishAndGetSubscriber(ctx, 0x100, pids)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReceiveNotificationHonoursDeadline(t *testing.T) {
	emu := testutil.NewEmulator(t)
	c := srv.New(emu.Process(t, "sub"))
	require.NoError(t, c.Init(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.ReceiveNotification(ctx)
	require.Error(t, err)
	assert.True(t, result.IsKind(err, result.KindTransport))
	assert.Equal(t, result.Timeout, result.CodeOf(err))
}

func TestManagerExitFailsExchanges(t *testing.T) {
	emu := testutil.NewEmulator(t)
	c := srv.New(emu.Process(t, "app"))
	ctx := context.Background()
	require.NoError(t, c.Init(ctx))

	emu.Manager.Stop()

	_, err := c.IsServiceRegistered(ctx, "fs:USER")
	assert.True(t, result.IsKind(err, result.KindTransport))
	assert.NoError(t, c.Exit(ctx))
}
