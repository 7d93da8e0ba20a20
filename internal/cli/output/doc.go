// Package output provides output formatting for the heapsight CLI.
//
// This package handles all CLI output formatting:
//
//   - formatter.go: Formatter interface and factory
//   - table.go: Table rendering via text/tabwriter
//   - json.go: JSON output formatting
//   - yaml.go: YAML output formatting
//
// Addresses render as 0x-prefixed hex in every format.
package output
