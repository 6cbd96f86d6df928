package monitoring

import "time"

// Exchange outcomes used as metric labels
const (
	OutcomeOK        = "ok"
	OutcomeTransport = "transport"
	OutcomeProtocol  = "protocol"
	OutcomeOverride  = "override"
	OutcomeOverflow  = "overflow"
)

// Timer measures operation duration
type Timer struct {
	start   time.Time
	metrics *Metrics
	service string
	op      string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, service, op string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		service: service,
		op:      op,
	}
}

// Stop records the exchange and returns its duration
func (t *Timer) Stop(outcome string) time.Duration {
	d := time.Since(t.start)
	t.metrics.RecordExchange(t.service, t.op, outcome, d)
	return d
}
