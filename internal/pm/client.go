// Package pm is the client of the process manager's launch service, "pm:app".
//
// The service handle comes from the service manager and is held until Exit.
package pm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/srvgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/srvgate/internal/ipc"
	"github.com/GriffinCanCode/srvgate/internal/kernel"
	"github.com/GriffinCanCode/srvgate/internal/result"
)

// ServiceName is the service the client opens.
const ServiceName = "pm:app"

// Launch service command ids.
const (
	CmdLaunchTitle           uint16 = 0x1
	CmdLaunchFIRMSetParams   uint16 = 0x2
	CmdGetFIRMLaunchParams   uint16 = 0x7
	CmdGetTitleExheaderFlags uint16 = 0x8
	CmdSetFIRMLaunchParams   uint16 = 0xA
)

// ErrNotInitialized is returned by operations issued before Init or after Exit.
var ErrNotInitialized = errors.New("pm: service handle not open")

// MediaType selects where a title is installed.
type MediaType uint8

const (
	MediaNAND MediaType = 0
	MediaSD   MediaType = 1
	MediaCard MediaType = 2
)

// ExheaderFlags are the eight flag bytes of a title's extended header.
type ExheaderFlags [8]byte

// ServiceOpener hands out service sessions. *srv.Client satisfies it.
type ServiceOpener interface {
	GetServiceHandle(ctx context.Context, name string) (kernel.Handle, error)
}

// Client issues launch requests over one "pm:app" session.
type Client struct {
	kernel  kernel.Kernel
	opener  ServiceOpener
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu     sync.Mutex
	handle kernel.Handle
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics enables exchange metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client that opens its session through opener.
func New(k kernel.Kernel, opener ServiceOpener, opts ...Option) *Client {
	c := &Client{kernel: k, opener: opener}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("pm")
	return c
}

// Init opens the service session. Calling it again while open does nothing.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle != 0 {
		return nil
	}
	h, err := c.opener.GetServiceHandle(ctx, ServiceName)
	if err != nil {
		return result.Init("pm", err)
	}
	c.handle = h
	return nil
}

// Exit closes the service session.
func (c *Client) Exit(ctx context.Context) error {
	c.mu.Lock()
	h := c.handle
	c.handle = 0
	c.mu.Unlock()

	if h == 0 {
		return nil
	}
	if err := c.kernel.CloseHandle(ctx, h); err != nil {
		return result.Transport("CloseHandle", err)
	}
	return nil
}

// LaunchTitle starts a title.
func (c *Client) LaunchTitle(ctx context.Context, media MediaType, titleID uint64, flags uint32) error {
	_, err := c.call(ctx, "LaunchTitle", CmdLaunchTitle, func(b *ipc.Builder) *ipc.Builder {
		return b.Word64(titleID).Word(uint32(media)).Word(0).Word(flags)
	})
	return err
}

// GetTitleExheaderFlags reads the launch flags from a title's extended header.
func (c *Client) GetTitleExheaderFlags(ctx context.Context, media MediaType, titleID uint64) (ExheaderFlags, error) {
	var flags ExheaderFlags
	r, err := c.call(ctx, "GetTitleExheaderFlags", CmdGetTitleExheaderFlags, func(b *ipc.Builder) *ipc.Builder {
		return b.Word64(titleID).Word(uint32(media)).Word(0)
	})
	if err != nil {
		return flags, err
	}
	binary.LittleEndian.PutUint64(flags[:], r.Word64(2))
	return flags, nil
}

// SetFIRMLaunchParams replaces the parameters handed to the next FIRM launch.
func (c *Client) SetFIRMLaunchParams(ctx context.Context, params []byte) error {
	_, err := c.call(ctx, "SetFIRMLaunchParams", CmdSetFIRMLaunchParams, func(b *ipc.Builder) *ipc.Builder {
		return b.Word(uint32(len(params))).Buffer(params, ipc.BufferR)
	})
	return err
}

// GetFIRMLaunchParams fills out with the current FIRM launch parameters.
func (c *Client) GetFIRMLaunchParams(ctx context.Context, out []byte) error {
	_, err := c.call(ctx, "GetFIRMLaunchParams", CmdGetFIRMLaunchParams, func(b *ipc.Builder) *ipc.Builder {
		return b.Word(uint32(len(out))).Buffer(out, ipc.BufferW)
	})
	return err
}

// LaunchFIRMSetParams sets the FIRM launch parameters and launches the FIRM
// title with the given low title id.
func (c *Client) LaunchFIRMSetParams(ctx context.Context, firmTitleIDLow uint32, params []byte) error {
	_, err := c.call(ctx, "LaunchFIRMSetParams", CmdLaunchFIRMSetParams, func(b *ipc.Builder) *ipc.Builder {
		return b.Word(firmTitleIDLow).Word(uint32(len(params))).Buffer(params, ipc.BufferR)
	})
	return err
}

func (c *Client) call(ctx context.Context, op string, cmd uint16, build func(*ipc.Builder) *ipc.Builder) (*ipc.Reader, error) {
	c.mu.Lock()
	h := c.handle
	c.mu.Unlock()
	if h == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrNotInitialized)
	}

	buf := new(ipc.CommandBuffer)
	if err := build(ipc.NewBuilder(buf, cmd)).Finish(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	timer := monitoring.NewTimer(c.metrics, ServiceName, op)
	if err := c.kernel.SendSyncRequest(ctx, h, buf); err != nil {
		timer.Stop(monitoring.OutcomeTransport)
		c.logger.Warn("exchange failed", zap.String("op", op), zap.Error(err))
		return nil, result.Transport(op, err)
	}

	r := ipc.NewReader(buf)
	if code := r.Result(); code.Failed() {
		timer.Stop(monitoring.OutcomeProtocol)
		return nil, result.Protocol(op, code)
	}
	took := timer.Stop(monitoring.OutcomeOK)
	c.logger.Debug("exchange", zap.String("op", op), zap.Duration("took", took))
	return r, nil
}
