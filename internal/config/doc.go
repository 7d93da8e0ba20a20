// Package config provides the heapsight configuration.
//
// This package defines the configuration structure and validation:
//
//   - spec.go: Config struct definition
//   - default.go: Default configuration values
//   - verify.go: Range and consistency checks
//   - load.go: Layering of file, environment and flag values
//
// Configuration is loaded via internal/infra/confloader and supports
// YAML and TOML files, HEAPSIGHT_* environment variables and flags.
package config
