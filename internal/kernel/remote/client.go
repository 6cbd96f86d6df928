package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/srvgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/srvgate/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/srvgate/internal/ipc"
	"github.com/GriffinCanCode/srvgate/internal/kernel"
	"github.com/GriffinCanCode/srvgate/internal/result"
)

// Client is a kernel.Kernel backed by a remote simulated process.
type Client struct {
	conn    *grpc.ClientConn
	breaker *resilience.Breaker
	logger  *zap.Logger
	metrics *monitoring.Metrics
	dial    []grpc.DialOption

	token string
	pid   uint32
}

var _ kernel.Kernel = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics records every remote call.
func WithMetrics(metrics *monitoring.Metrics) ClientOption {
	return func(c *Client) { c.metrics = metrics }
}

// WithDialOptions appends gRPC dial options, such as a custom dialer or
// interceptors.
func WithDialOptions(opts ...grpc.DialOption) ClientOption {
	return func(c *Client) { c.dial = append(c.dial, opts...) }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *resilience.Breaker) ClientOption {
	return func(c *Client) { c.breaker = b }
}

// Dial connects to the kernel server at target and attaches as a new process
// called name.
func Dial(ctx context.Context, target, name string, opts ...ClientOption) (*Client, error) {
	c := &Client{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("remote")
	if c.breaker == nil {
		c.breaker = NewBreaker(c.logger)
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    60 * time.Second,
			Timeout: 20 * time.Second,
		}),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(CodecName),
			grpc.MaxCallRecvMsgSize(1<<20),
			grpc.MaxCallSendMsgSize(1<<20),
		),
	}, c.dial...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial kernel %s: %w", target, err)
	}
	c.conn = conn

	var resp AttachResponse
	if err := c.invoke(ctx, MethodAttach, &AttachRequest{Name: name}, &resp); err != nil {
		conn.Close()
		return nil, err
	}
	c.token = resp.Token
	c.pid = resp.PID
	c.logger.Info("attached to kernel",
		zap.String("target", target),
		zap.String("token", c.token),
		zap.Uint32("pid", c.pid))
	return c, nil
}

// NewBreaker returns the default breaker for kernel calls. Only transport
// failures count against it; kernel statuses and caller deadlines do not.
func NewBreaker(logger *zap.Logger) *resilience.Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return resilience.New("kernel", resilience.Settings{
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.5)
		},
		Failure: isTransportFailure,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})
}

func isTransportFailure(err error) bool {
	switch status.Code(err) {
	case codes.OK, codes.Canceled, codes.DeadlineExceeded, codes.NotFound, codes.InvalidArgument, codes.ResourceExhausted:
		return false
	default:
		return true
	}
}

// PID returns the id of the remote process backing this client.
func (c *Client) PID() uint32 { return c.pid }

// Token returns the client token issued by the server.
func (c *Client) Token() string { return c.token }

// Close detaches from the server and closes the connection. Every handle of
// the remote process is released by the server.
func (c *Client) Close(ctx context.Context) error {
	err := c.invoke(ctx, MethodDetach, &Empty{}, &Empty{})
	return errors.Join(err, c.conn.Close())
}

// ConnectToPort opens a session to a named global port.
func (c *Client) ConnectToPort(ctx context.Context, name string) (kernel.Handle, error) {
	var resp HandleResponse
	if err := c.invoke(ctx, MethodConnectToPort, &ConnectRequest{Name: name}, &resp); err != nil {
		return 0, err
	}
	if err := statusError(resp.Status); err != nil {
		return 0, err
	}
	return kernel.Handle(resp.Handle), nil
}

// SendSyncRequest ships buf to the server and loads the reply. Writable
// buffers receive the data the server wrote.
func (c *Client) SendSyncRequest(ctx context.Context, h kernel.Handle, buf *ipc.CommandBuffer) error {
	req := &SendRequest{Handle: uint32(h), Words: usedWords(buf)}
	for _, b := range buf.Buffers {
		req.Buffers = append(req.Buffers, Buffer{Data: b.Data, Rights: b.Rights})
	}

	var resp SendResponse
	if err := c.invoke(ctx, MethodSendSyncRequest, req, &resp); err != nil {
		return err
	}
	if err := statusError(resp.Status); err != nil {
		return err
	}

	loadWords(buf, resp.Words)
	for i, data := range resp.Buffers {
		if i < len(buf.Buffers) && buf.Buffers[i].Rights&ipc.BufferW != 0 {
			copy(buf.Buffers[i].Data, data)
		}
	}
	return nil
}

// DuplicateHandle returns a new handle to the object behind h.
func (c *Client) DuplicateHandle(ctx context.Context, h kernel.Handle) (kernel.Handle, error) {
	var resp HandleResponse
	if err := c.invoke(ctx, MethodDuplicateHandle, &HandleRequest{Handle: uint32(h)}, &resp); err != nil {
		return 0, err
	}
	if err := statusError(resp.Status); err != nil {
		return 0, err
	}
	return kernel.Handle(resp.Handle), nil
}

// CloseHandle releases h.
func (c *Client) CloseHandle(ctx context.Context, h kernel.Handle) error {
	var resp StatusResponse
	if err := c.invoke(ctx, MethodCloseHandle, &HandleRequest{Handle: uint32(h)}, &resp); err != nil {
		return err
	}
	return statusError(resp.Status)
}

// WaitSynchronization blocks until h is signaled. The ctx deadline travels to
// the server with the call.
func (c *Client) WaitSynchronization(ctx context.Context, h kernel.Handle) error {
	var resp StatusResponse
	if err := c.invoke(ctx, MethodWaitSynchronization, &HandleRequest{Handle: uint32(h)}, &resp); err != nil {
		return err
	}
	return statusError(resp.Status)
}

// invoke performs one call through the breaker. Failed calls carry the
// result code that best describes them.
func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, TokenHeader, c.token)
	}

	start := time.Now()
	err := c.breaker.Call(func() error {
		return c.conn.Invoke(ctx, fullMethod(method), in, out)
	})
	c.metrics.RecordGRPCCall(method, status.Code(err).String(), time.Since(start))
	if err == nil {
		return nil
	}

	code := result.Unavailable
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
	case status.Code(err) == codes.DeadlineExceeded, status.Code(err) == codes.Canceled:
		code = result.Timeout
	}
	c.logger.Debug("kernel call failed", zap.String("method", method), zap.Error(err))
	return fmt.Errorf("%s: %w: %w", method, code, err)
}

func statusError(s uint32) error {
	if s == 0 {
		return nil
	}
	return result.Code(s)
}
