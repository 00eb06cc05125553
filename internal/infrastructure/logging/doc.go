// Package logging provides structured logging for the kettle bridge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output by default (machine-parsable), text for interactive use
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error), adjustable at runtime
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "warn"      # debug, info, warn, error (LOG_LEVEL overrides)
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("kettle").Info("connected", "address", mac)
//
// Never log broker passwords.
package logging
