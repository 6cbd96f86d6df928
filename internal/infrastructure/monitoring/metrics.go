package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Exchange metrics
	Exchanges        *prometheus.CounterVec
	ExchangeDuration *prometheus.HistogramVec
	OverrideHits     prometheus.Counter

	// Session metrics
	SessionsActive prometheus.Gauge
	Handshakes     *prometheus.CounterVec

	// Service manager metrics
	ServicesRegistered     prometheus.Gauge
	PortsRegistered        prometheus.Gauge
	NotificationsPublished *prometheus.CounterVec

	// gRPC metrics
	GRPCCalls    *prometheus.CounterVec
	GRPCDuration *prometheus.HistogramVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for log summaries - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds running totals for log summaries
type Snapshot struct {
	TotalExchanges  int64
	FailedExchanges int64
	OverrideHits    int64
	TotalDuration   float64
}

// NewMetrics creates a new metrics collector registered with reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		Exchanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "srvgate_exchanges_total",
				Help: "Total number of IPC exchanges",
			},
			[]string{"service", "op", "outcome"},
		),
		ExchangeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "srvgate_exchange_duration_seconds",
				Help:    "IPC exchange duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"service", "op"},
		),
		OverrideHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "srvgate_override_hits_total",
				Help: "Service handles served from the override table",
			},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "srvgate_sessions_active",
				Help: "Number of connected service manager sessions",
			},
		),
		Handshakes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "srvgate_handshakes_total",
				Help: "Service manager handshakes by outcome",
			},
			[]string{"outcome"},
		),

		ServicesRegistered: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "srvgate_services_registered",
				Help: "Number of services registered with the service manager",
			},
		),
		PortsRegistered: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "srvgate_ports_registered",
				Help: "Number of ports registered with the service manager",
			},
		),
		NotificationsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "srvgate_notifications_published_total",
				Help: "Notifications published by outcome",
			},
			[]string{"outcome"},
		),

		GRPCCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "srvgate_grpc_calls_total",
				Help: "Total number of remote kernel calls",
			},
			[]string{"method", "status"},
		),
		GRPCDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "srvgate_grpc_duration_seconds",
				Help:    "Remote kernel call duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method"},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "srvgate_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	return m
}

// RunUptime updates the uptime metric every second until done is closed
func (m *Metrics) RunUptime(done <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		}
	}
}

// RecordExchange records one IPC exchange
func (m *Metrics) RecordExchange(service, op, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Exchanges.WithLabelValues(service, op, outcome).Inc()
	m.ExchangeDuration.WithLabelValues(service, op).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalExchanges++
	m.snapshot.TotalDuration += duration.Seconds()
	switch outcome {
	case OutcomeTransport, OutcomeProtocol:
		m.snapshot.FailedExchanges++
	}
	m.mu.Unlock()
}

// IncOverrideHits counts a handle served from the override table
func (m *Metrics) IncOverrideHits() {
	if m == nil {
		return
	}
	m.OverrideHits.Inc()
	m.mu.Lock()
	m.snapshot.OverrideHits++
	m.mu.Unlock()
}

// RecordHandshake records a handshake outcome and adjusts the session gauge
func (m *Metrics) RecordHandshake(outcome string) {
	if m == nil {
		return
	}
	m.Handshakes.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		m.SessionsActive.Inc()
	}
}

// DecSessionsActive decrements the session gauge on teardown
func (m *Metrics) DecSessionsActive() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// SetServicesRegistered sets the registered service count
func (m *Metrics) SetServicesRegistered(count int) {
	if m == nil {
		return
	}
	m.ServicesRegistered.Set(float64(count))
}

// SetPortsRegistered sets the registered port count
func (m *Metrics) SetPortsRegistered(count int) {
	if m == nil {
		return
	}
	m.PortsRegistered.Set(float64(count))
}

// RecordPublish records a notification publish outcome
func (m *Metrics) RecordPublish(outcome string) {
	if m == nil {
		return
	}
	m.NotificationsPublished.WithLabelValues(outcome).Inc()
}

// RecordGRPCCall records a remote kernel call
func (m *Metrics) RecordGRPCCall(method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GRPCCalls.WithLabelValues(method, status).Inc()
	m.GRPCDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// Snapshot returns a copy of the running totals
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
