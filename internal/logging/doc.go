// Package logging builds the slog loggers used across the daemon and CLI.
//
// It provides console and JSON handlers, standardized attribute keys, and
// helpers for component-scoped and no-op loggers so tests and background
// services share one logging discipline.
package logging
