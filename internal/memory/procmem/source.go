// Package procmem is the boundary to the memory of a foreign process.
//
// Source is all the core needs: region enumeration and bulk reads. Process
// implements it for live Linux processes; the image store and the synthetic
// test image implement it offline.
package procmem

import (
	"github.com/yndnr/heapsight-go/internal/core/domain"
)

// Source enumerates and reads the memory of one process.
type Source interface {
	// Regions lists the mapped regions with their protection.
	Regions() ([]domain.RegionInfo, error)

	// ReadAt fills buf with memory starting at addr. A short read returns
	// the number of bytes copied and, where known, the reason.
	ReadAt(addr domain.Addr, buf []byte) (int, error)
}

// Closer is implemented by sources holding OS resources.
type Closer interface {
	Close() error
}
