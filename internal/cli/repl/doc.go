// Package repl provides the interactive shell for heapsight.
//
// The shell keeps one attach session open across commands, so a snapshot
// captured once can be inspected repeatedly:
//
//   - repl.go: read loop and command dispatch
//   - completer.go: prefix completion over the registered command names
//   - history.go: command history persistence
package repl
