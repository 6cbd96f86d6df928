// Package main is the service manager emulator daemon.
//
// srvemu runs a simulated kernel with the service manager on "srv:" and the
// builtin services from a YAML manifest, and exposes the kernel over gRPC so
// that srvgate and other clients can attach as processes.
//
// Configuration:
//   - Environment variables (SRVGATE_*)
//   - CLI flags (override env vars)
//
// Usage:
//
//	srvemu --listen 127.0.0.1:7340 --manifest services.yaml
//	srvemu --dev --metrics 127.0.0.1:9340
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
