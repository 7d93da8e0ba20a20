// Package confloader loads heapsight configuration with koanf.
//
// Sources, lowest to highest priority:
//
//  1. Default values (the target struct as passed in)
//  2. Configuration file (YAML, or TOML when the name ends in .toml)
//  3. Environment variables (HEAPSIGHT_SECTION_KEY)
//  4. Maps loaded with LoadMap, used for command-line flags
//
// Watcher reports edits to the configuration file so long-running commands
// can apply the parts that are safe to change at run time.
package confloader
