package remote

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/srvgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/srvgate/internal/ipc"
	"github.com/GriffinCanCode/srvgate/internal/kernel/sim"
	"github.com/GriffinCanCode/srvgate/internal/result"
	"github.com/GriffinCanCode/srvgate/internal/shared/id"
)

// Server exposes a simulated kernel over gRPC. Each attached client is backed
// by its own simulated process, named by the token Attach returns.
type Server struct {
	kernel  *sim.Kernel
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu      sync.Mutex
	clients map[id.ClientToken]*sim.Process
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger.
func WithServerLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithServerMetrics records served calls.
func WithServerMetrics(metrics *monitoring.Metrics) ServerOption {
	return func(s *Server) { s.metrics = metrics }
}

// NewServer serves processes of k.
func NewServer(k *sim.Kernel, opts ...ServerOption) *Server {
	s := &Server{
		kernel:  k,
		logger:  zap.NewNop(),
		clients: make(map[id.ClientToken]*sim.Process),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("remote")
	return s
}

var _ KernelServer = (*Server)(nil)

// Clients returns the number of attached clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close detaches every client and exits its process.
func (s *Server) Close() {
	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[id.ClientToken]*sim.Process)
	s.mu.Unlock()

	for _, p := range clients {
		p.Exit()
	}
}

// Attach creates a process for a new client.
func (s *Server) Attach(_ context.Context, req *AttachRequest) (*AttachResponse, error) {
	name := req.Name
	if name == "" {
		name = "remote"
	}
	p := s.kernel.NewProcess(name)
	token := id.NewClientToken()

	s.mu.Lock()
	s.clients[token] = p
	s.mu.Unlock()

	s.logger.Info("client attached",
		zap.String("token", token.String()),
		zap.String("name", name),
		zap.Uint32("pid", p.PID()))
	return &AttachResponse{Token: token.String(), PID: p.PID()}, nil
}

// Detach exits the caller's process. Its handles are closed with it.
func (s *Server) Detach(ctx context.Context, _ *Empty) (*Empty, error) {
	token, err := tokenFrom(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	p, ok := s.clients[token]
	delete(s.clients, token)
	s.mu.Unlock()

	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown client %s", token)
	}
	p.Exit()
	s.logger.Info("client detached", zap.String("token", token.String()), zap.Uint32("pid", p.PID()))
	return &Empty{}, nil
}

// ConnectToPort opens a session for the caller.
func (s *Server) ConnectToPort(ctx context.Context, req *ConnectRequest) (*HandleResponse, error) {
	p, err := s.process(ctx)
	if err != nil {
		return nil, err
	}
	h, err := p.ConnectToPort(ctx, req.Name)
	return &HandleResponse{Status: statusOf(err), Handle: uint32(h)}, nil
}

// SendSyncRequest performs one exchange on behalf of the caller. Buffers the
// server could have written are returned with the reply.
func (s *Server) SendSyncRequest(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	p, err := s.process(ctx)
	if err != nil {
		return nil, err
	}
	if len(req.Words) == 0 || len(req.Words) > ipc.MaxWords {
		return nil, status.Errorf(codes.InvalidArgument, "command buffer holds %d words", len(req.Words))
	}

	var buf ipc.CommandBuffer
	loadWords(&buf, req.Words)
	for _, b := range req.Buffers {
		buf.Buffers = append(buf.Buffers, ipc.Buffer{Data: b.Data, Rights: b.Rights})
	}

	if err := p.SendSyncRequest(ctx, ipc.Handle(req.Handle), &buf); err != nil {
		return &SendResponse{Status: statusOf(err)}, nil
	}

	resp := &SendResponse{Words: usedWords(&buf)}
	if len(buf.Buffers) > 0 {
		resp.Buffers = make([][]byte, len(buf.Buffers))
		for i, b := range buf.Buffers {
			if b.Rights&ipc.BufferW != 0 {
				resp.Buffers[i] = b.Data
			}
		}
	}
	return resp, nil
}

// DuplicateHandle duplicates a handle of the caller.
func (s *Server) DuplicateHandle(ctx context.Context, req *HandleRequest) (*HandleResponse, error) {
	p, err := s.process(ctx)
	if err != nil {
		return nil, err
	}
	h, err := p.DuplicateHandle(ctx, ipc.Handle(req.Handle))
	return &HandleResponse{Status: statusOf(err), Handle: uint32(h)}, nil
}

// CloseHandle closes a handle of the caller.
func (s *Server) CloseHandle(ctx context.Context, req *HandleRequest) (*StatusResponse, error) {
	p, err := s.process(ctx)
	if err != nil {
		return nil, err
	}
	return &StatusResponse{Status: statusOf(p.CloseHandle(ctx, ipc.Handle(req.Handle)))}, nil
}

// WaitSynchronization waits on a handle of the caller until the call's deadline.
func (s *Server) WaitSynchronization(ctx context.Context, req *HandleRequest) (*StatusResponse, error) {
	p, err := s.process(ctx)
	if err != nil {
		return nil, err
	}
	return &StatusResponse{Status: statusOf(p.WaitSynchronization(ctx, ipc.Handle(req.Handle)))}, nil
}

func (s *Server) process(ctx context.Context) (*sim.Process, error) {
	token, err := tokenFrom(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	p, ok := s.clients[token]
	s.mu.Unlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown client %s", token)
	}
	return p, nil
}

func tokenFrom(ctx context.Context) (id.ClientToken, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing client token")
	}
	vals := md.Get(TokenHeader)
	if len(vals) == 0 {
		return "", status.Error(codes.Unauthenticated, "missing client token")
	}
	token, err := id.ParseClientToken(vals[0])
	if err != nil {
		return "", status.Errorf(codes.Unauthenticated, "invalid client token: %v", err)
	}
	return token, nil
}

// statusOf converts a kernel error into the status word sent to the client.
func statusOf(err error) uint32 {
	return uint32(result.CodeOf(err))
}

// RateLimitInterceptor rejects calls beyond the limiter's rate with ResourceExhausted.
func RateLimitInterceptor(limiter *rate.Limiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !limiter.Allow() {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

// MetricsInterceptor records every served call.
func MetricsInterceptor(metrics *monitoring.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		metrics.RecordGRPCCall(info.FullMethod, status.Code(err).String(), time.Since(start))
		return resp, err
	}
}
