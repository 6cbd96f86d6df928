package srv

import (
	"context"
	"errors"

	"github.com/GriffinCanCode/srvgate/internal/ipc"
	"github.com/GriffinCanCode/srvgate/internal/kernel"
	"github.com/GriffinCanCode/srvgate/internal/result"
)

// MaxSubscribers is the most process ids a PublishAndGetSubscriber reply holds.
const MaxSubscribers = 60

// Flags for PublishToSubscriber.
const (
	// PublishOnlyIfNotPending skips subscribers that already have the id queued.
	PublishOnlyIfNotPending uint32 = 1 << 0
	// PublishIgnoreOverflow suppresses the error for subscribers whose queue is full.
	PublishIgnoreOverflow uint32 = 1 << 1
)

// ErrShortBuffer is returned alongside the subscriber count when the caller's
// slice cannot hold every reported process id.
var ErrShortBuffer = errors.New("subscriber list exceeds buffer")

// EnableNotification returns the semaphore the service manager signals when a
// notification is queued for this process.
func (c *Client) EnableNotification(ctx context.Context) (kernel.Handle, error) {
	r, err := c.call(ctx, "EnableNotification", CmdEnableNotification, noParams)
	if err != nil {
		return 0, err
	}
	return handleOut(r, "EnableNotification")
}

// Subscribe registers interest in a notification id.
func (c *Client) Subscribe(ctx context.Context, id uint32) error {
	_, err := c.call(ctx, "Subscribe", CmdSubscribe, func(b *ipc.Builder) *ipc.Builder {
		return b.Word(id)
	})
	return err
}

// Unsubscribe drops interest in a notification id.
func (c *Client) Unsubscribe(ctx context.Context, id uint32) error {
	_, err := c.call(ctx, "Unsubscribe", CmdUnsubscribe, func(b *ipc.Builder) *ipc.Builder {
		return b.Word(id)
	})
	return err
}

// ReceiveNotification takes the next queued notification id. The exchange
// blocks until one is posted or ctx is done.
func (c *Client) ReceiveNotification(ctx context.Context) (uint32, error) {
	r, err := c.call(ctx, "ReceiveNotification", CmdReceiveNotification, noParams)
	if err != nil {
		return 0, err
	}
	return r.Word(2), nil
}

// WaitNotification blocks on the semaphore from EnableNotification and then
// receives the notification that signaled it.
func (c *Client) WaitNotification(ctx context.Context, semaphore kernel.Handle) (uint32, error) {
	if err := c.kernel.WaitSynchronization(ctx, semaphore); err != nil {
		return 0, result.Transport("WaitSynchronization", err)
	}
	return c.ReceiveNotification(ctx)
}

// PublishToSubscriber queues a notification for every subscriber.
func (c *Client) PublishToSubscriber(ctx context.Context, id, flags uint32) error {
	_, err := c.call(ctx, "PublishToSubscriber", CmdPublishToSubscriber, func(b *ipc.Builder) *ipc.Builder {
		return b.Word(id).Word(flags)
	})
	return err
}

// PublishAndGetSubscriber publishes id and returns how many processes are
// subscribed to it, copying their ids into pids. The count is read before any
// id is copied, and a zero count leaves pids untouched. When pids is shorter
// than the count, the ids that fit are copied and ErrShortBuffer is returned.
func (c *Client) PublishAndGetSubscriber(ctx context.Context, id uint32, pids []uint32) (int, error) {
	r, err := c.call(ctx, "PublishAndGetSubscriber", CmdPublishAndGetSubscriber, func(b *ipc.Builder) *ipc.Builder {
		return b.Word(id)
	})
	if err != nil {
		return 0, err
	}

	count := int(r.Word(2))
	if count == 0 {
		return 0, nil
	}
	if count > MaxSubscribers {
		return 0, &result.Error{Kind: result.KindProtocol, Op: "PublishAndGetSubscriber", Code: result.InvalidCommand}
	}
	r.Words(pids, 3, count)
	if len(pids) < count {
		return count, ErrShortBuffer
	}
	return count, nil
}
