// Package buildinfo reports the heapsight version.
//
// Values are injected at build time via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/heapsight-go/internal/infra/buildinfo.Version=v0.3.0"
//
// Missing values fall back to the module and VCS data embedded by the Go
// toolchain.
package buildinfo
