//go:build !linux

package procmem

import (
	"errors"
	"log/slog"

	"github.com/yndnr/heapsight-go/internal/core/domain"
)

// ErrUnsupported is returned by Open on platforms without a live reader.
var ErrUnsupported = errors.New("procmem: live process access is only implemented on linux")

// Process is unavailable on this platform. Use a heap image instead.
type Process struct{}

// Open always fails on this platform.
func Open(pid int, logger *slog.Logger) (*Process, error) {
	return nil, ErrUnsupported
}

// PID returns 0.
func (p *Process) PID() int { return 0 }

// Regions always fails on this platform.
func (p *Process) Regions() ([]domain.RegionInfo, error) { return nil, ErrUnsupported }

// ReadAt always fails on this platform.
func (p *Process) ReadAt(domain.Addr, []byte) (int, error) { return 0, ErrUnsupported }

// Close is a no-op.
func (p *Process) Close() error { return nil }
