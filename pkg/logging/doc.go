// Package logging provides a structured logging system for pkghub with unified
// log handling and level filtering.
//
// This package is built on Go's standard slog package. All log entries carry a
// timestamp, a level, a subsystem identifier for categorization, the message,
// and optional error information.
//
// # Usage
//
//	import "pkghub/pkg/logging"
//
//	// Initialize with Info level logging to stdout
//	logging.Init(logging.LevelInfo, os.Stdout)
//
//	// Log messages
//	logging.Info("Bootstrap", "Application starting up")
//	logging.Debug("Config", "Loaded configuration from %s", configPath)
//	logging.Warn("Fetcher", "Upstream responded slowly")
//	logging.Error("Bridge", err, "Handshake with adapter failed")
//
// # Subsystem Organization
//
// Logs are organized by subsystem to enable filtering and categorization:
//
//   - **Bootstrap**: Application initialization and startup
//   - **Config**: Configuration loading and validation
//   - **Bridge**: Model merging, routing, and health aggregation
//   - **Adapter**: Per-ecosystem request handling
//   - **Fetcher**: Upstream HTTP operations
//   - **Cache**: Metadata cache operation
//   - **Index**: Name index builds and refreshes
//
// # Thread Safety
//
// The logging system is fully thread-safe and may be called concurrently from
// multiple goroutines after Init has returned.
package logging
