// Package logging builds the zap loggers used by the emulator and the gateway CLI.
//
// Production mode writes JSON for machine parsing; development mode writes
// colored console output at debug level. Components receive a *zap.Logger
// and name it after themselves.
//
//	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
//	if err != nil {
//		return err
//	}
//	defer logger.Sync()
package logging
