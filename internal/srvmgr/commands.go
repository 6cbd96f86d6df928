package srvmgr

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/srvgate/internal/ipc"
	"github.com/GriffinCanCode/srvgate/internal/kernel/sim"
	"github.com/GriffinCanCode/srvgate/internal/result"
	"github.com/GriffinCanCode/srvgate/internal/srv"
)

type command struct {
	name      string
	normal    int
	translate int
	serve     func(m *Manager, ctx context.Context, req *sim.Request, r *ipc.Reader) error
}

var commands = map[uint16]command{
	srv.CmdRegisterClient:          {"RegisterClient", 0, 2, (*Manager).registerClient},
	srv.CmdEnableNotification:      {"EnableNotification", 0, 0, (*Manager).enableNotification},
	srv.CmdRegisterService:         {"RegisterService", 4, 0, (*Manager).registerService},
	srv.CmdUnregisterService:       {"UnregisterService", 3, 0, (*Manager).unregisterService},
	srv.CmdGetServiceHandle:        {"GetServiceHandle", 4, 0, (*Manager).getServiceHandle},
	srv.CmdRegisterPort:            {"RegisterPort", 3, 2, (*Manager).registerPort},
	srv.CmdUnregisterPort:          {"UnregisterPort", 3, 0, (*Manager).unregisterPort},
	srv.CmdGetPort:                 {"GetPort", 4, 0, (*Manager).getPort},
	srv.CmdSubscribe:               {"Subscribe", 1, 0, (*Manager).subscribe},
	srv.CmdUnsubscribe:             {"Unsubscribe", 1, 0, (*Manager).unsubscribe},
	srv.CmdReceiveNotification:     {"ReceiveNotification", 0, 0, (*Manager).receiveNotification},
	srv.CmdPublishToSubscriber:     {"PublishToSubscriber", 2, 0, (*Manager).publishToSubscriber},
	srv.CmdPublishAndGetSubscriber: {"PublishAndGetSubscriber", 1, 0, (*Manager).publishAndGetSubscriber},
	srv.CmdIsServiceRegistered:     {"IsServiceRegistered", 3, 0, (*Manager).isServiceRegistered},
}

// ServeIPC dispatches one request on the "srv:" port.
func (m *Manager) ServeIPC(ctx context.Context, req *sim.Request) error {
	r := ipc.NewReader(req.Buf)
	id := r.Header().CommandID()

	cmd, ok := commands[id]
	if !ok {
		m.logger.Debug("unknown command", zap.Uint16("cmd", id), zap.Uint32("caller", req.Caller))
		return reply(req.Buf, id, result.InvalidCommand)
	}
	if err := r.Expect(id, cmd.normal, cmd.translate); err != nil {
		m.logger.Debug("malformed request", zap.String("cmd", cmd.name), zap.Error(err))
		return reply(req.Buf, id, result.InvalidCommand)
	}
	if m.Reject != nil {
		if code := m.Reject(id, req.Caller); code.Failed() {
			return reply(req.Buf, id, code)
		}
	}
	if id != srv.CmdRegisterClient && !m.registered(req.Caller) {
		return reply(req.Buf, id, result.ClientNotRegistered)
	}

	m.logger.Debug("command", zap.String("cmd", cmd.name), zap.Uint32("caller", req.Caller))
	return cmd.serve(m, ctx, req, r)
}

func reply(buf *ipc.CommandBuffer, cmd uint16, code result.Code) error {
	return ipc.NewReply(buf, cmd, uint32(code)).Finish()
}

func success(buf *ipc.CommandBuffer, cmd uint16) *ipc.Builder {
	return ipc.NewReply(buf, cmd, uint32(result.Success))
}

// nameParam reads the name parameter at word 1. An empty or over-long name fails.
func nameParam(r *ipc.Reader) (string, result.Code) {
	s, err := r.Name(1)
	if err != nil || s == "" {
		return "", result.NameTooLong
	}
	return s, result.Success
}

func (m *Manager) registered(pid uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.clients[pid]
	return ok
}

// clientLocked returns the state of a registered caller. m.mu must be held.
func (m *Manager) clientLocked(pid uint32) (*client, result.Code) {
	c, ok := m.clients[pid]
	if !ok {
		return nil, result.ClientNotRegistered
	}
	return c, result.Success
}

func (m *Manager) registerClient(ctx context.Context, req *sim.Request, r *ipc.Reader) error {
	if !ipc.IsCurProcess(r.Word(1)) {
		return reply(req.Buf, srv.CmdRegisterClient, result.InvalidDescriptor)
	}
	ph := r.Word(2)
	pid, err := m.proc.ProcessID(sim.Handle(ph))
	m.proc.CloseHandle(ctx, sim.Handle(ph))
	if err != nil || pid != req.Caller {
		return reply(req.Buf, srv.CmdRegisterClient, result.InvalidHandle)
	}

	m.mu.Lock()
	if _, exists := m.clients[pid]; !exists {
		m.clients[pid] = &client{
			pid:           pid,
			subscriptions: make(map[uint32]struct{}),
			wake:          make(chan struct{}, 1),
			gone:          make(chan struct{}),
		}
	}
	m.mu.Unlock()

	m.logger.Info("client registered", zap.Uint32("pid", pid))
	return success(req.Buf, srv.CmdRegisterClient).Finish()
}

func (m *Manager) enableNotification(_ context.Context, req *sim.Request, _ *ipc.Reader) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, code := m.clientLocked(req.Caller)
	if code.Failed() {
		return reply(req.Buf, srv.CmdEnableNotification, code)
	}
	if c.semaphore == 0 {
		sem, err := m.proc.CreateSemaphore(len(c.queue), MaxPending)
		if err != nil {
			return reply(req.Buf, srv.CmdEnableNotification, result.CodeOf(err))
		}
		c.semaphore = sem
	}
	return success(req.Buf, srv.CmdEnableNotification).SharedHandles(c.semaphore).Finish()
}

func (m *Manager) registerService(_ context.Context, req *sim.Request, r *ipc.Reader) error {
	svc, code := nameParam(r)
	if code.Failed() {
		return reply(req.Buf, srv.CmdRegisterService, code)
	}
	maxSessions := int(r.Word(4))

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.services[svc]; exists {
		return reply(req.Buf, srv.CmdRegisterService, result.AlreadyRegistered)
	}
	server, clientPort, err := m.proc.CreatePort("", maxSessions)
	if err != nil {
		return reply(req.Buf, srv.CmdRegisterService, result.CodeOf(err))
	}
	m.services[svc] = &service{name: svc, owner: req.Caller, client: clientPort}
	m.metrics.SetServicesRegistered(len(m.services))

	m.logger.Info("service registered",
		zap.String("service", svc),
		zap.Uint32("owner", req.Caller),
		zap.Int("max_sessions", maxSessions))
	return success(req.Buf, srv.CmdRegisterService).MoveHandles(server).Finish()
}

func (m *Manager) unregisterService(ctx context.Context, req *sim.Request, r *ipc.Reader) error {
	svc, code := nameParam(r)
	if code.Failed() {
		return reply(req.Buf, srv.CmdUnregisterService, code)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.services[svc]
	if !exists {
		return reply(req.Buf, srv.CmdUnregisterService, result.ServiceNotRegistered)
	}
	if s.owner != req.Caller {
		return reply(req.Buf, srv.CmdUnregisterService, result.AccessDenied)
	}
	delete(m.services, svc)
	m.proc.CloseHandle(ctx, s.client)
	m.metrics.SetServicesRegistered(len(m.services))

	m.logger.Info("service unregistered", zap.String("service", svc))
	return success(req.Buf, srv.CmdUnregisterService).Finish()
}

func (m *Manager) getServiceHandle(_ context.Context, req *sim.Request, r *ipc.Reader) error {
	svc, code := nameParam(r)
	if code.Failed() {
		return reply(req.Buf, srv.CmdGetServiceHandle, code)
	}

	m.mu.Lock()
	s, exists := m.services[svc]
	m.mu.Unlock()
	if !exists {
		return reply(req.Buf, srv.CmdGetServiceHandle, result.ServiceNotRegistered)
	}

	session, err := m.proc.CreateSessionToPort(s.client)
	if err != nil {
		return reply(req.Buf, srv.CmdGetServiceHandle, result.CodeOf(err))
	}
	return success(req.Buf, srv.CmdGetServiceHandle).MoveHandles(session).Finish()
}

func (m *Manager) isServiceRegistered(_ context.Context, req *sim.Request, r *ipc.Reader) error {
	svc, code := nameParam(r)
	if code.Failed() {
		return reply(req.Buf, srv.CmdIsServiceRegistered, code)
	}

	m.mu.Lock()
	_, exists := m.services[svc]
	m.mu.Unlock()

	var registered uint32
	if exists {
		registered = 1
	}
	return success(req.Buf, srv.CmdIsServiceRegistered).Word(registered).Finish()
}

func (m *Manager) registerPort(ctx context.Context, req *sim.Request, r *ipc.Reader) error {
	pt, code := nameParam(r)
	h, err := r.Handle(4)
	if err != nil || h == 0 {
		return reply(req.Buf, srv.CmdRegisterPort, result.InvalidDescriptor)
	}
	if code.Failed() {
		m.proc.CloseHandle(ctx, h)
		return reply(req.Buf, srv.CmdRegisterPort, code)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.ports[pt]; exists {
		m.proc.CloseHandle(ctx, h)
		return reply(req.Buf, srv.CmdRegisterPort, result.AlreadyRegistered)
	}
	m.ports[pt] = &namedPort{name: pt, owner: req.Caller, client: h}
	m.metrics.SetPortsRegistered(len(m.ports))

	m.logger.Info("port registered", zap.String("port", pt), zap.Uint32("owner", req.Caller))
	return success(req.Buf, srv.CmdRegisterPort).Finish()
}

func (m *Manager) unregisterPort(ctx context.Context, req *sim.Request, r *ipc.Reader) error {
	pt, code := nameParam(r)
	if code.Failed() {
		return reply(req.Buf, srv.CmdUnregisterPort, code)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, exists := m.ports[pt]
	if !exists {
		return reply(req.Buf, srv.CmdUnregisterPort, result.ServiceNotRegistered)
	}
	if p.owner != req.Caller {
		return reply(req.Buf, srv.CmdUnregisterPort, result.AccessDenied)
	}
	delete(m.ports, pt)
	m.proc.CloseHandle(ctx, p.client)
	m.metrics.SetPortsRegistered(len(m.ports))
	return success(req.Buf, srv.CmdUnregisterPort).Finish()
}

func (m *Manager) getPort(_ context.Context, req *sim.Request, r *ipc.Reader) error {
	pt, code := nameParam(r)
	if code.Failed() {
		return reply(req.Buf, srv.CmdGetPort, code)
	}

	m.mu.Lock()
	p, exists := m.ports[pt]
	m.mu.Unlock()
	if !exists {
		return reply(req.Buf, srv.CmdGetPort, result.ServiceNotRegistered)
	}
	return success(req.Buf, srv.CmdGetPort).SharedHandles(p.client).Finish()
}
