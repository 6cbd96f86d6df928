package srv

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/srvgate/internal/kernel"
	"github.com/GriffinCanCode/srvgate/internal/result"
)

// Handshake runs on a freshly opened connection before it is published.
type Handshake func(ctx context.Context, h kernel.Handle) error

// Session owns the single connection to the service manager.
//
// State moves Disconnected -> Connected -> Disconnected. A connection is only
// published once its handshake succeeds, so no caller ever observes a
// half-initialized session.
type Session struct {
	kernel    kernel.Kernel
	port      string
	handshake Handshake
	logger    *zap.Logger

	mu     sync.Mutex
	handle kernel.Handle
}

// NewSession creates a disconnected session for the named port.
func NewSession(k kernel.Kernel, port string, handshake Handshake, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{kernel: k, port: port, handshake: handshake, logger: logger}
}

// EnsureConnected returns the session handle, connecting and running the
// handshake if needed. A failed handshake closes the connection again.
func (s *Session) EnsureConnected(ctx context.Context) (kernel.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != 0 {
		return s.handle, nil
	}

	h, err := s.kernel.ConnectToPort(ctx, s.port)
	if err != nil {
		s.logger.Warn("connect to service manager failed", zap.String("port", s.port), zap.Error(err))
		return 0, result.Init("connect", result.Transport("ConnectToPort", err))
	}

	if s.handshake != nil {
		if err := s.handshake(ctx, h); err != nil {
			if cerr := s.kernel.CloseHandle(ctx, h); cerr != nil {
				s.logger.Warn("close after failed handshake", zap.Error(cerr))
			}
			s.logger.Warn("service manager handshake failed", zap.String("port", s.port), zap.Error(err))
			return 0, result.Init("connect", err)
		}
	}

	s.handle = h
	s.logger.Debug("connected to service manager", zap.String("port", s.port), zap.Uint32("handle", uint32(h)))
	return h, nil
}

// Teardown closes the connection if one is open. It is safe to call repeatedly.
func (s *Session) Teardown(ctx context.Context) error {
	s.mu.Lock()
	h := s.handle
	s.handle = 0
	s.mu.Unlock()

	if h == 0 {
		return nil
	}
	s.logger.Debug("disconnecting from service manager", zap.Uint32("handle", uint32(h)))
	if err := s.kernel.CloseHandle(ctx, h); err != nil {
		return result.Transport("CloseHandle", err)
	}
	return nil
}

// Handle returns the raw session handle, or zero when disconnected.
func (s *Session) Handle() kernel.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Connected reports whether the session is established.
func (s *Session) Connected() bool {
	return s.Handle() != 0
}
