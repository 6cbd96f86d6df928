// Package config provides 12-factor configuration for the emulator and the
// gateway CLI.
//
// Settings are loaded from SRVGATE_* environment variables with defaults;
// command-line flags override them. The services and titles an emulator
// hosts come from a YAML manifest.
//
// Environment Variables:
//   - SRVGATE_LISTEN, SRVGATE_MAX_SESSIONS, SRVGATE_MANIFEST
//   - SRVGATE_ADDR, SRVGATE_TIMEOUT
//   - SRVGATE_METRICS_ADDR, SRVGATE_METRICS_ENABLED
//   - SRVGATE_LOG_LEVEL, SRVGATE_LOG_DEV
//   - SRVGATE_RATE_LIMIT_RPS, SRVGATE_RATE_LIMIT_BURST, SRVGATE_RATE_LIMIT_ENABLED
//
// Manifest:
//
//	services:
//	  - name: "pm:app"
//	    kind: pm
//	    max_sessions: 4
//	titles:
//	  - id: 0x0004003000008F02
//	    media: nand
//	    exheader: "0102000000000080"
package config
