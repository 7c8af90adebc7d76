// Package logging provides structured logging for the transport and codec.
//
// This package wraps a global zap logger with convenience functions for the
// logging patterns used by the transport, the receive loop and the probe CLI.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Packet hex dumps, group joins, interface events
//   - Info: Transport start and stop, bound ports
//   - Warn: Failed sends, optional socket options that could not be applied
//   - Error: Receive failures and setup errors
//
// # Structured Logging
//
// All log functions use structured fields:
//
//	logging.Info("Socket bound",
//	    zap.String("socket", "ipv4/unicast/secure"),
//	    zap.Int("port", 49152),
//	)
//
// # Specialized Logging
//
// Packet logging (hex dump only at debug level):
//
//	logging.LogPacket("received", "ipv6/multicast", ep, data)
//
// Multicast membership:
//
//	logging.LogMembership("eth0", "ff02::fd", err)
//
// # Configuration
//
// Logging is silent unless a level is given explicitly or through the
// OCF_LOG_LEVEL environment variable:
//
//	if err := logging.Initialize(cfg.LogLevel); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. Initialize and SetLogger
// must not race with logging calls.
package logging
