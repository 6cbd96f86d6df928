package sim

import (
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/srvgate/internal/result"
)

// Kernel owns the global state shared by simulated processes: the named port
// table and the process list.
type Kernel struct {
	logger *zap.Logger

	mu      sync.Mutex
	ports   map[string]*port
	procs   map[uint32]*Process
	nextPID uint32
	onExit  []func(pid uint32)
}

// New creates an empty kernel.
func New(logger *zap.Logger) *Kernel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kernel{
		logger:  logger.Named("sim"),
		ports:   make(map[string]*port),
		procs:   make(map[uint32]*Process),
		nextPID: 0x20,
	}
}

// NewProcess starts a process with an empty handle table.
func (k *Kernel) NewProcess(name string) *Process {
	k.mu.Lock()
	pid := k.nextPID
	k.nextPID++
	p := &Process{
		kernel:  k,
		pid:     pid,
		name:    name,
		handles: make(map[Handle]any),
		next:    firstHandle,
	}
	k.procs[pid] = p
	k.mu.Unlock()

	k.logger.Debug("process started", zap.String("name", name), zap.Uint32("pid", pid))
	return p
}

// Process returns the live process with the given id.
func (k *Kernel) Process(pid uint32) (*Process, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.procs[pid]
	return p, ok
}

// Processes returns the number of live processes.
func (k *Kernel) Processes() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.procs)
}

// OnExit registers fn to run after a process exits. Hooks run in
// registration order without the kernel lock held.
func (k *Kernel) OnExit(fn func(pid uint32)) {
	k.mu.Lock()
	k.onExit = append(k.onExit, fn)
	k.mu.Unlock()
}

func (k *Kernel) publishPort(p *port) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, exists := k.ports[p.name]; exists {
		return result.Make(result.LevelPermanent, result.SummaryInvalidState, result.ModuleKernel, 0x3F6)
	}
	k.ports[p.name] = p
	return nil
}

func (k *Kernel) lookupPort(name string) (*port, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.ports[name]
	return p, ok
}

func (k *Kernel) exit(p *Process) {
	k.mu.Lock()
	delete(k.procs, p.pid)
	for name, pt := range k.ports {
		if pt.owner == p {
			delete(k.ports, name)
		}
	}
	hooks := append(([]func(uint32))(nil), k.onExit...)
	k.mu.Unlock()

	for _, fn := range hooks {
		fn(p.pid)
	}

	k.logger.Debug("process exited", zap.String("name", p.name), zap.Uint32("pid", p.pid))
}
