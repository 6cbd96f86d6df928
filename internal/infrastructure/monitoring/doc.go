/*
Package monitoring provides metrics collection for IPC exchanges.

# Overview

This package implements Prometheus-based metrics for the gateway client, the
emulated service manager and the remote kernel transport.

# Features

- Exchange metrics per service and operation (count, latency, outcome)
- Override table hit counter
- Session and handshake metrics
- Service manager registration gauges and publish counters
- Remote kernel gRPC call metrics
- Uptime

All recording methods are safe on a nil *Metrics, so metrics stay optional.

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	// Time an exchange
	timer := monitoring.NewTimer(metrics, "srv", "GetServiceHandle")
	// ... perform exchange ...
	timer.Stop(monitoring.OutcomeOK)

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	mux.Handle("/metrics", promhttp.Handler())
*/
package monitoring
