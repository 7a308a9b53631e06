// Package logging provides structured logging for the coop door tools.
//
// This package wraps a global zap logger that is silent until initialized,
// so the protocol packages can log freely when used as a library without
// producing output.
//
// # Log Levels
//
//   - Debug: every radio frame with a hex dump, discarded frames
//   - Info: commands issued, door state changes, bridge clients
//   - Warn: retransmissions, exhausted commands, stale acknowledgments
//   - Error: transport faults
//
// # Component Loggers
//
// Components accept an optional *zap.Logger. When nil they fall back to a
// named child of the global logger:
//
//	log := logging.OrDefault(opts.Logger, "link")
//	logging.LogFrame(log, "tx", seq, frame)
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// An empty level falls back to the COOPDOOR_LOG_LEVEL environment variable.
// Output goes to stderr so it never mixes with command output on stdout.
package logging
