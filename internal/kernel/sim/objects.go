package sim

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/srvgate/internal/ipc"
	"github.com/GriffinCanCode/srvgate/internal/result"
)

// Request is one exchange delivered to a port's handler. Handles in Buf have
// already been translated into the serving process.
type Request struct {
	// Caller is the process id of the sender.
	Caller uint32
	Buf    *ipc.CommandBuffer
}

// Handler serves the sessions of a port. It replaces the contents of req.Buf
// with the reply. A returned error aborts the exchange.
type Handler interface {
	ServeIPC(ctx context.Context, req *Request) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) error

// ServeIPC calls f.
func (f HandlerFunc) ServeIPC(ctx context.Context, req *Request) error {
	return f(ctx, req)
}

// refCounted objects are notified as handles to them come and go.
type refCounted interface {
	retain()
	release()
}

type port struct {
	name        string
	owner       *Process
	maxSessions int

	mu       sync.Mutex
	sessions int
	handler  Handler
}

func (p *port) openSession() (*session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.maxSessions > 0 && p.sessions >= p.maxSessions {
		return nil, result.MaxSessions
	}
	p.sessions++
	return &session{port: p}, nil
}

func (p *port) dropSession() {
	p.mu.Lock()
	p.sessions--
	p.mu.Unlock()
}

func (p *port) serving() (Handler, *Process) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handler, p.owner
}

// serverPort and clientPort are the two ends of a port as seen through handles.
type serverPort struct{ *port }

type clientPort struct{ *port }

type session struct {
	port *port
	refs atomic.Int32
}

func (s *session) retain() {
	s.refs.Add(1)
}

func (s *session) release() {
	if s.refs.Add(-1) == 0 {
		s.port.dropSession()
	}
}

type semaphore struct {
	ch chan struct{}
}

func newSemaphore(initial, max int) (*semaphore, error) {
	if max <= 0 || initial < 0 || initial > max {
		return nil, result.Make(result.LevelPermanent, result.SummaryInvalidArg, result.ModuleKernel, 0x3FD)
	}
	s := &semaphore{ch: make(chan struct{}, max)}
	for i := 0; i < initial; i++ {
		s.ch <- struct{}{}
	}
	return s, nil
}

func (s *semaphore) signal(n int) error {
	for i := 0; i < n; i++ {
		select {
		case s.ch <- struct{}{}:
		default:
			return result.Make(result.LevelPermanent, result.SummaryInvalidArg, result.ModuleKernel, 0x3FD)
		}
	}
	return nil
}

func (s *semaphore) tryWait() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

func (s *semaphore) wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return result.Timeout
	}
}
