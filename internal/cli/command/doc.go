// Package command provides the heapsight CLI commands.
//
// This package defines all CLI commands using urfave/cli/v2:
//
//   - root.go: Root command, global flags, configuration and logging setup
//   - source.go: Opening a live process or a saved image
//   - attach.go: attach and locate
//   - tree.go: UI tree dump
//   - image.go: image save and image info
//   - object.go: dict and typename single-object tools
//   - shell.go: Interactive inspection over one session
//   - watch.go: Refresh loop with metrics and config hot-reload
//   - version.go: Build information
//
// Commands follow a consistent pattern of parsing flags, running a session
// and formatting output.
package command
