// Package logging provides structured logging for the housing back office.
//
// It wraps log/slog with the service defaults: JSON or text output, a
// configured level, and service/version fields on every entry.
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("api server started", "address", addr)
//	logger.Warn("login failed", "source_ip", ip)
//
// # Security
//
// Never log passwords, password hashes or session tokens. Log principal
// IDs and kinds instead of emails where an identifier is enough.
package logging
