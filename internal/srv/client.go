package srv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/srvgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/srvgate/internal/ipc"
	"github.com/GriffinCanCode/srvgate/internal/kernel"
	"github.com/GriffinCanCode/srvgate/internal/result"
)

// PortName is the well-known port of the service manager.
const PortName = "srv:"

// Service manager command ids.
const (
	CmdRegisterClient          uint16 = 0x1
	CmdEnableNotification      uint16 = 0x2
	CmdRegisterService         uint16 = 0x3
	CmdUnregisterService       uint16 = 0x4
	CmdGetServiceHandle        uint16 = 0x5
	CmdRegisterPort            uint16 = 0x6
	CmdUnregisterPort          uint16 = 0x7
	CmdGetPort                 uint16 = 0x8
	CmdSubscribe               uint16 = 0x9
	CmdUnsubscribe             uint16 = 0xA
	CmdReceiveNotification     uint16 = 0xB
	CmdPublishToSubscriber     uint16 = 0xC
	CmdPublishAndGetSubscriber uint16 = 0xD
	CmdIsServiceRegistered     uint16 = 0xE
)

// Client issues service-manager operations over a single Session. All
// methods connect on demand.
type Client struct {
	kernel    kernel.Kernel
	session   *Session
	overrides *OverrideTable
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	port      string
}

// Option configures a Client.
type Option func(*Client)

// WithOverrides installs the loader-supplied handle table.
func WithOverrides(t *OverrideTable) Option {
	return func(c *Client) { c.overrides = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics enables exchange metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithPort overrides the service manager port name.
func WithPort(name string) Option {
	return func(c *Client) { c.port = name }
}

// New creates a disconnected client.
func New(k kernel.Kernel, opts ...Option) *Client {
	c := &Client{kernel: k, port: PortName}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("srv")
	c.session = NewSession(k, c.port, c.handshake, c.logger)
	return c
}

// Init connects to the service manager and registers the process.
func (c *Client) Init(ctx context.Context) error {
	_, err := c.session.EnsureConnected(ctx)
	return err
}

// Exit closes the session and then the override table's handles.
func (c *Client) Exit(ctx context.Context) error {
	connected := c.session.Connected()
	err := c.session.Teardown(ctx)
	if connected {
		c.metrics.DecSessionsActive()
	}
	return errors.Join(err, c.overrides.ReleaseAll(ctx, c.kernel))
}

// Session returns the underlying session.
func (c *Client) Session() *Session {
	return c.session
}

// Overrides returns the installed override table, which may be nil.
func (c *Client) Overrides() *OverrideTable {
	return c.overrides
}

func (c *Client) handshake(ctx context.Context, h kernel.Handle) error {
	err := c.registerClient(ctx, h)
	outcome := monitoring.OutcomeOK
	if err != nil {
		outcome = monitoring.OutcomeProtocol
		if result.IsKind(err, result.KindTransport) {
			outcome = monitoring.OutcomeTransport
		}
	}
	c.metrics.RecordHandshake(outcome)
	return err
}

// call ensures a session and performs one exchange on it.
func (c *Client) call(ctx context.Context, op string, cmd uint16, build func(*ipc.Builder) *ipc.Builder) (*ipc.Reader, error) {
	h, err := c.session.EnsureConnected(ctx)
	if err != nil {
		return nil, err
	}
	return c.exchange(ctx, h, op, cmd, build)
}

// exchange encodes a request, sends it on h and checks both status levels.
// Outputs are only readable when the returned error is nil.
func (c *Client) exchange(ctx context.Context, h kernel.Handle, op string, cmd uint16, build func(*ipc.Builder) *ipc.Builder) (*ipc.Reader, error) {
	buf := new(ipc.CommandBuffer)
	if err := build(ipc.NewBuilder(buf, cmd)).Finish(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	start := time.Now()
	if err := c.kernel.SendSyncRequest(ctx, h, buf); err != nil {
		c.metrics.RecordExchange("srv", op, monitoring.OutcomeTransport, time.Since(start))
		c.logger.Warn("exchange failed", zap.String("op", op), zap.Error(err))
		return nil, result.Transport(op, err)
	}

	r := ipc.NewReader(buf)
	if code := r.Result(); code.Failed() {
		c.metrics.RecordExchange("srv", op, monitoring.OutcomeProtocol, time.Since(start))
		c.logger.Debug("request rejected", zap.String("op", op), zap.Stringer("result", code))
		return nil, result.Protocol(op, code)
	}

	c.metrics.RecordExchange("srv", op, monitoring.OutcomeOK, time.Since(start))
	c.logger.Debug("exchange", zap.String("op", op), zap.Duration("took", time.Since(start)))
	return r, nil
}

func noParams(b *ipc.Builder) *ipc.Builder { return b }

// RegisterClient hands the process identity to the service manager. It runs
// automatically during connection; calling it again re-registers.
func (c *Client) RegisterClient(ctx context.Context) error {
	h, err := c.session.EnsureConnected(ctx)
	if err != nil {
		return err
	}
	return c.registerClient(ctx, h)
}

func (c *Client) registerClient(ctx context.Context, h kernel.Handle) error {
	_, err := c.exchange(ctx, h, "RegisterClient", CmdRegisterClient, func(b *ipc.Builder) *ipc.Builder {
		return b.CurrentProcess()
	})
	return err
}
