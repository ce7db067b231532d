// Package logger provides logging for enseal commands and the relay server.
//
// Two loggers live here. Logger is the colored, flag-driven logger used by
// the CLI commands. Backend is the leveled, per-module backend used by the
// long-running relay, where output goes to a file or stdout with
// timestamps.
//
// # Verbosity Levels
//
// CLI logging behavior is controlled by two flags:
//
//   - --verbose: Shows info messages
//   - --debug: Shows all messages including debug details
//
// Without flags, only warnings and errors are shown.
//
// # Log Methods
//
//	Logger.Infof()           // Shown with --verbose
//	Logger.Debugf()          // Shown only with --debug
//	Logger.Warnf()           // Shown with --verbose or --debug
//	Logger.WarnfAlways()     // Always shown (critical warnings)
//	Logger.Errorf()          // Always shown
//	Logger.ErrorfAndReturn() // Always shown, returns the error
//
// Secret values, wormhole codes, and derived keys must never be passed to
// any of these methods.
//
// # Server Backend
//
// The relay creates one Backend at startup and hands out per-module
// loggers:
//
//	backend, err := logger.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
//	log := backend.GetLogger("relay")
//	log.Noticef("listening on %s", addr)
package logger
