package srvmgr

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/srvgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/srvgate/internal/ipc"
	"github.com/GriffinCanCode/srvgate/internal/kernel/sim"
	"github.com/GriffinCanCode/srvgate/internal/result"
	"github.com/GriffinCanCode/srvgate/internal/srv"
)

// Overflow is returned by PublishToSubscriber when at least one subscriber's
// queue was full and srv.PublishIgnoreOverflow was not set.
var Overflow = result.Make(result.LevelPermanent, result.SummaryOutOfResource, result.ModuleSRV, 11)

func (m *Manager) subscribe(_ context.Context, req *sim.Request, r *ipc.Reader) error {
	id := r.Word(1)

	m.mu.Lock()
	defer m.mu.Unlock()

	c, code := m.clientLocked(req.Caller)
	if code.Failed() {
		return reply(req.Buf, srv.CmdSubscribe, code)
	}
	if _, exists := c.subscriptions[id]; !exists && len(c.subscriptions) >= MaxSubscriptions {
		return reply(req.Buf, srv.CmdSubscribe, result.TooManySubscriptions)
	}
	c.subscriptions[id] = struct{}{}
	return success(req.Buf, srv.CmdSubscribe).Finish()
}

func (m *Manager) unsubscribe(_ context.Context, req *sim.Request, r *ipc.Reader) error {
	id := r.Word(1)

	m.mu.Lock()
	defer m.mu.Unlock()

	c, code := m.clientLocked(req.Caller)
	if code.Failed() {
		return reply(req.Buf, srv.CmdUnsubscribe, code)
	}
	if _, exists := c.subscriptions[id]; !exists {
		return reply(req.Buf, srv.CmdUnsubscribe, result.NotFound)
	}
	delete(c.subscriptions, id)
	return success(req.Buf, srv.CmdUnsubscribe).Finish()
}

// receiveNotification pops the oldest queued id, blocking until one arrives.
// A cancelled ctx aborts the exchange.
//
// The notification semaphore counts queued ids. A caller that waited on it
// already took the signal for the id it pops; a caller that did not leaves
// one signal too many, which is taken here so the count keeps matching the
// queue.
func (m *Manager) receiveNotification(ctx context.Context, req *sim.Request, _ *ipc.Reader) error {
	for {
		m.mu.Lock()
		c, code := m.clientLocked(req.Caller)
		if code.Failed() {
			m.mu.Unlock()
			return reply(req.Buf, srv.CmdReceiveNotification, code)
		}
		if len(c.queue) > 0 {
			id := c.queue[0]
			c.queue = c.queue[1:]
			m.settleSemaphore(c)
			m.mu.Unlock()
			return success(req.Buf, srv.CmdReceiveNotification).Word(id).Finish()
		}
		wake, gone := c.wake, c.gone
		m.mu.Unlock()

		select {
		case <-wake:
		case <-gone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// settleSemaphore takes surplus signals off c's semaphore. m.mu must be held.
func (m *Manager) settleSemaphore(c *client) {
	if c.semaphore == 0 {
		return
	}
	n, err := m.proc.SemaphoreCount(c.semaphore)
	for ; err == nil && n > len(c.queue); n-- {
		if _, err = m.proc.TryAcquireSemaphore(c.semaphore); err != nil {
			m.logger.Debug("semaphore acquire failed", zap.Uint32("pid", c.pid), zap.Error(err))
		}
	}
}

func (m *Manager) publishToSubscriber(_ context.Context, req *sim.Request, r *ipc.Reader) error {
	id, flags := r.Word(1), r.Word(2)

	_, overflowed := m.publish(id, flags)
	if overflowed && flags&srv.PublishIgnoreOverflow == 0 {
		return reply(req.Buf, srv.CmdPublishToSubscriber, Overflow)
	}
	return success(req.Buf, srv.CmdPublishToSubscriber).Finish()
}

func (m *Manager) publishAndGetSubscriber(_ context.Context, req *sim.Request, r *ipc.Reader) error {
	id := r.Word(1)

	pids, _ := m.publish(id, srv.PublishIgnoreOverflow)
	if len(pids) > srv.MaxSubscribers {
		pids = pids[:srv.MaxSubscribers]
	}
	b := success(req.Buf, srv.CmdPublishAndGetSubscriber).Word(uint32(len(pids)))
	for _, pid := range pids {
		b.Word(pid)
	}
	return b.Finish()
}

// Publish queues id for every subscriber, as PublishToSubscriber does. It
// returns the ids of the subscribed processes.
func (m *Manager) Publish(id, flags uint32) []uint32 {
	pids, _ := m.publish(id, flags)
	return pids
}

func (m *Manager) publish(id, flags uint32) (pids []uint32, overflowed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for pid, c := range m.clients {
		if _, subscribed := c.subscriptions[id]; !subscribed {
			continue
		}
		pids = append(pids, pid)

		if flags&srv.PublishOnlyIfNotPending != 0 && slices.Contains(c.queue, id) {
			continue
		}
		if len(c.queue) >= MaxPending {
			overflowed = true
			m.logger.Warn("notification queue full", zap.Uint32("pid", pid), zap.Uint32("id", id))
			continue
		}
		c.queue = append(c.queue, id)

		if c.semaphore != 0 {
			if err := m.proc.ReleaseSemaphore(c.semaphore, 1); err != nil {
				m.logger.Debug("semaphore release failed", zap.Uint32("pid", pid), zap.Error(err))
			}
		}
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
	slices.Sort(pids)

	outcome := monitoring.OutcomeOK
	if overflowed {
		outcome = monitoring.OutcomeOverflow
	}
	m.metrics.RecordPublish(outcome)
	return pids, overflowed
}
