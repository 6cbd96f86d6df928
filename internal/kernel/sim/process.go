package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/srvgate/internal/ipc"
	"github.com/GriffinCanCode/srvgate/internal/kernel"
	"github.com/GriffinCanCode/srvgate/internal/result"
)

// Handle is a kernel handle.
type Handle = kernel.Handle

// CurrentProcess is the pseudo-handle that always refers to the calling process.
const CurrentProcess Handle = 0xFFFF8001

const firstHandle Handle = 0x00010000

const maxHandles = 512

var _ kernel.Kernel = (*Process)(nil)

// Process is a simulated process. Its methods are the kernel primitives as
// seen from that process, so a *Process satisfies kernel.Kernel.
type Process struct {
	kernel *Kernel
	pid    uint32
	name   string

	mu      sync.Mutex
	handles map[Handle]any
	next    Handle
	exited  bool
}

// PID returns the process id.
func (p *Process) PID() uint32 { return p.pid }

// Name returns the process name.
func (p *Process) Name() string { return p.name }

// Kernel returns the kernel the process runs on.
func (p *Process) Kernel() *Kernel { return p.kernel }

// Handles returns the number of open handles.
func (p *Process) Handles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

func (p *Process) insert(obj any) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.exited {
		return 0, result.SessionClosed
	}
	if len(p.handles) >= maxHandles {
		return 0, result.OutOfHandles
	}
	h := p.next
	p.next++
	p.handles[h] = obj
	if rc, ok := obj.(refCounted); ok {
		rc.retain()
	}
	return h, nil
}

func (p *Process) lookup(h Handle) (any, error) {
	if h == CurrentProcess {
		return p, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	obj, ok := p.handles[h]
	if !ok {
		return nil, result.InvalidHandle
	}
	return obj, nil
}

func (p *Process) remove(h Handle) (any, error) {
	p.mu.Lock()
	obj, ok := p.handles[h]
	if ok {
		delete(p.handles, h)
	}
	p.mu.Unlock()

	if !ok {
		return nil, result.InvalidHandle
	}
	if rc, isRC := obj.(refCounted); isRC {
		rc.release()
	}
	return obj, nil
}

// ConnectToPort opens a session to a named global port.
func (p *Process) ConnectToPort(_ context.Context, name string) (Handle, error) {
	if len(name) > 11 {
		return 0, result.Make(result.LevelPermanent, result.SummaryInvalidArg, result.ModuleOS, 0x1F)
	}
	pt, ok := p.kernel.lookupPort(name)
	if !ok {
		return 0, result.NotFound
	}
	s, err := pt.openSession()
	if err != nil {
		return 0, err
	}
	h, err := p.insert(s)
	if err != nil {
		pt.dropSession()
		return 0, err
	}
	return h, nil
}

// SendSyncRequest delivers buf to the handler of the session's port and
// copies the translated reply back into buf.
func (p *Process) SendSyncRequest(ctx context.Context, h Handle, buf *ipc.CommandBuffer) error {
	obj, err := p.lookup(h)
	if err != nil {
		return err
	}
	s, ok := obj.(*session)
	if !ok {
		return result.InvalidHandle
	}
	handler, owner := s.port.serving()
	if handler == nil || owner == nil {
		return result.SessionClosed
	}

	var in ipc.CommandBuffer
	if err := translate(p, owner, buf, &in); err != nil {
		return err
	}

	req := &Request{Caller: p.pid, Buf: &in}
	if err := handler.ServeIPC(ctx, req); err != nil {
		p.kernel.logger.Debug("exchange aborted",
			zap.String("port", s.port.name),
			zap.Uint32("caller", p.pid),
			zap.Error(err))
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, result.Timeout) {
			return result.Timeout
		}
		var code result.Code
		if errors.As(err, &code) {
			return code
		}
		return result.SessionClosed
	}

	var out ipc.CommandBuffer
	if err := translate(owner, p, req.Buf, &out); err != nil {
		return err
	}
	buf.Words = out.Words
	return nil
}

// DuplicateHandle returns a second handle to the same object.
func (p *Process) DuplicateHandle(_ context.Context, h Handle) (Handle, error) {
	obj, err := p.lookup(h)
	if err != nil {
		return 0, err
	}
	return p.insert(obj)
}

// CloseHandle removes h from the handle table.
func (p *Process) CloseHandle(_ context.Context, h Handle) error {
	_, err := p.remove(h)
	return err
}

// WaitSynchronization waits on a semaphore handle.
func (p *Process) WaitSynchronization(ctx context.Context, h Handle) error {
	sem, err := p.semaphore(h)
	if err != nil {
		return err
	}
	return sem.wait(ctx)
}

// CreatePort creates a port owned by p. A non-empty name publishes the port
// globally so other processes can ConnectToPort it.
func (p *Process) CreatePort(name string, maxSessions int) (server, client Handle, err error) {
	pt := &port{name: name, owner: p, maxSessions: maxSessions}
	if name != "" {
		if err := p.kernel.publishPort(pt); err != nil {
			return 0, 0, err
		}
	}
	if server, err = p.insert(serverPort{pt}); err != nil {
		return 0, 0, err
	}
	if client, err = p.insert(clientPort{pt}); err != nil {
		p.remove(server)
		return 0, 0, err
	}
	return server, client, nil
}

// Serve attaches handler to the port behind a server port handle.
func (p *Process) Serve(server Handle, handler Handler) error {
	obj, err := p.lookup(server)
	if err != nil {
		return err
	}
	sp, ok := obj.(serverPort)
	if !ok {
		return result.InvalidHandle
	}
	sp.mu.Lock()
	sp.handler = handler
	sp.mu.Unlock()
	return nil
}

// Serving reports whether a handler is attached to the port behind a server port handle.
func (p *Process) Serving(server Handle) bool {
	obj, err := p.lookup(server)
	if err != nil {
		return false
	}
	sp, ok := obj.(serverPort)
	if !ok {
		return false
	}
	h, _ := sp.serving()
	return h != nil
}

// CreateSessionToPort opens a session through a client port handle.
func (p *Process) CreateSessionToPort(client Handle) (Handle, error) {
	obj, err := p.lookup(client)
	if err != nil {
		return 0, err
	}
	cp, ok := obj.(clientPort)
	if !ok {
		return 0, result.InvalidHandle
	}
	s, err := cp.openSession()
	if err != nil {
		return 0, err
	}
	h, err := p.insert(s)
	if err != nil {
		cp.dropSession()
		return 0, err
	}
	return h, nil
}

// CreateSemaphore creates a counting semaphore.
func (p *Process) CreateSemaphore(initial, max int) (Handle, error) {
	sem, err := newSemaphore(initial, max)
	if err != nil {
		return 0, err
	}
	return p.insert(sem)
}

// ReleaseSemaphore signals the semaphore n times.
func (p *Process) ReleaseSemaphore(h Handle, n int) error {
	sem, err := p.semaphore(h)
	if err != nil {
		return err
	}
	return sem.signal(n)
}

// SemaphoreCount returns the number of pending signals on a semaphore.
func (p *Process) SemaphoreCount(h Handle) (int, error) {
	sem, err := p.semaphore(h)
	if err != nil {
		return 0, err
	}
	return len(sem.ch), nil
}

// TryAcquireSemaphore takes one signal without blocking and reports whether
// one was available.
func (p *Process) TryAcquireSemaphore(h Handle) (bool, error) {
	sem, err := p.semaphore(h)
	if err != nil {
		return false, err
	}
	return sem.tryWait(), nil
}

func (p *Process) semaphore(h Handle) (*semaphore, error) {
	obj, err := p.lookup(h)
	if err != nil {
		return nil, err
	}
	sem, ok := obj.(*semaphore)
	if !ok {
		return nil, result.InvalidHandle
	}
	return sem, nil
}

// ProcessID returns the id of the process behind a process handle.
func (p *Process) ProcessID(h Handle) (uint32, error) {
	obj, err := p.lookup(h)
	if err != nil {
		return 0, err
	}
	proc, ok := obj.(*Process)
	if !ok {
		return 0, result.InvalidHandle
	}
	return proc.pid, nil
}

// Exit closes every handle, stops serving owned ports and removes the process.
func (p *Process) Exit() {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return
	}
	p.exited = true
	handles := make([]Handle, 0, len(p.handles))
	for h := range p.handles {
		handles = append(handles, h)
	}
	p.mu.Unlock()

	for _, h := range handles {
		obj, _ := p.remove(h)
		if sp, ok := obj.(serverPort); ok && sp.owner == p {
			sp.mu.Lock()
			sp.handler = nil
			sp.mu.Unlock()
		}
	}
	p.kernel.exit(p)
}

func (p *Process) String() string {
	return fmt.Sprintf("%s(%d)", p.name, p.pid)
}
