// Package logger provides structured logging for heapsight.
//
//   - logger.go: slog handler construction and the shared level
//   - context.go: context propagation of the logger and session ID
//   - sanitize.go: escaping of strings decoded from foreign memory
//
// Components take a *slog.Logger. Only the CLI builds one, with New; the
// level it sets is shared by every logger built here and can be changed
// while running with SetLevel.
package logger
