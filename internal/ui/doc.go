// Package ui provides terminal UI components for the coopctl CLI.
//
// This package uses Bubble Tea and Lipgloss to render terminal output. Most
// commands follow a "run once and exit" pattern: a Header describing the
// operation followed by a Result box. The watch command is the exception,
// running an interactive dashboard (WatchModel) that shows the door state,
// the radio attempt counter and an event log while the user opens and
// closes the door with single keys.
//
// # Components
//
//   - Header: command banner showing operation name and parameters
//   - Result: success, failure and warning boxes
//   - Printer: writes components to any io.Writer
//   - Confirm: yes/no prompt behind a warning box
//   - WatchModel: the interactive door dashboard
//
// # Logging Integration
//
// Zap logging is silent unless COOPDOOR_LOG_LEVEL (or --log-level) is set,
// so the curated UI output is displayed cleanly. Logging to the terminal
// while the watch dashboard runs will garble the display.
package ui
