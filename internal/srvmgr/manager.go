package srvmgr

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/srvgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/srvgate/internal/ipc"
	"github.com/GriffinCanCode/srvgate/internal/kernel/sim"
	"github.com/GriffinCanCode/srvgate/internal/result"
	"github.com/GriffinCanCode/srvgate/internal/srv"
)

const (
	// DefaultMaxSessions bounds sessions to the manager's own port.
	DefaultMaxSessions = 64
	// MaxPending is the per-process notification queue depth.
	MaxPending = 16
	// MaxSubscriptions is the per-process subscription limit.
	MaxSubscriptions = 64
)

type service struct {
	name   string
	owner  uint32
	client sim.Handle
}

type namedPort struct {
	name   string
	owner  uint32
	client sim.Handle
}

type client struct {
	pid           uint32
	subscriptions map[uint32]struct{}
	queue         []uint32
	semaphore     sim.Handle
	wake          chan struct{}
	gone          chan struct{}
}

// Manager is an emulated service manager. It runs as its own simulated
// process and serves the "srv:" port.
type Manager struct {
	proc    *sim.Process
	logger  *zap.Logger
	metrics *monitoring.Metrics

	// Reject, when set, is consulted before every command; a failing code is
	// returned to the caller instead of running the command.
	Reject func(cmd uint16, caller uint32) result.Code

	mu       sync.Mutex
	clients  map[uint32]*client
	services map[string]*service
	ports    map[string]*namedPort
	server   sim.Handle
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics enables registration and publish metrics.
func WithMetrics(mt *monitoring.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// Start creates the manager process on k and publishes the service manager port.
func Start(k *sim.Kernel, maxSessions int, opts ...Option) (*Manager, error) {
	m := &Manager{
		proc:     k.NewProcess("srv"),
		clients:  make(map[uint32]*client),
		services: make(map[string]*service),
		ports:    make(map[string]*namedPort),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.Named("srvmgr")

	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	server, _, err := m.proc.CreatePort(srv.PortName, maxSessions)
	if err != nil {
		m.proc.Exit()
		return nil, fmt.Errorf("failed to create %s port: %w", srv.PortName, err)
	}
	if err := m.proc.Serve(server, m); err != nil {
		m.proc.Exit()
		return nil, fmt.Errorf("failed to serve %s: %w", srv.PortName, err)
	}
	m.server = server
	k.OnExit(m.forget)

	m.logger.Info("service manager started", zap.Uint32("pid", m.proc.PID()))
	return m, nil
}

// forget drops the state of an exited client and wakes its blocked receives.
func (m *Manager) forget(pid uint32) {
	m.mu.Lock()
	c, ok := m.clients[pid]
	delete(m.clients, pid)
	m.mu.Unlock()
	if !ok {
		return
	}

	close(c.gone)
	if c.semaphore != 0 {
		m.proc.CloseHandle(context.Background(), c.semaphore)
	}
	m.logger.Info("client exited",
		zap.Uint32("pid", pid),
		zap.Int("subscriptions", len(c.subscriptions)),
		zap.Int("pending", len(c.queue)))
}

// Process returns the manager's simulated process.
func (m *Manager) Process() *sim.Process {
	return m.proc
}

// Stop exits the manager process; every session to it starts failing.
func (m *Manager) Stop() {
	m.proc.Exit()
	m.logger.Info("service manager stopped")
}

// RegisterBuiltin publishes a service implemented inside the emulator.
func (m *Manager) RegisterBuiltin(name string, maxSessions int, handler sim.Handler) error {
	if len(name) == 0 || len(name) > ipc.NameSize {
		return result.NameTooLong
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.services[name]; exists {
		return result.AlreadyRegistered
	}
	server, clientPort, err := m.proc.CreatePort("", maxSessions)
	if err != nil {
		return err
	}
	if err := m.proc.Serve(server, handler); err != nil {
		return err
	}
	m.services[name] = &service{name: name, owner: m.proc.PID(), client: clientPort}
	m.metrics.SetServicesRegistered(len(m.services))
	m.logger.Debug("builtin service registered", zap.String("service", name))
	return nil
}

// Services returns the registered service names in order.
func (m *Manager) Services() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.services))
	for name := range m.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clients returns the ids of registered processes in order.
func (m *Manager) Clients() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	pids := make([]uint32, 0, len(m.clients))
	for pid := range m.clients {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids
}

// Pending returns the notification ids queued for pid.
func (m *Manager) Pending(pid uint32) []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[pid]
	if !ok {
		return nil
	}
	return append([]uint32(nil), c.queue...)
}
