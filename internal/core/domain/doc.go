// Package domain defines the core domain models for heapsight.
//
// Domain models are plain values without IO dependencies. This package contains:
//
//   - Addr, CandidateSet: foreign addresses and scan results
//   - AddressWindow, WindowLatch: derived scan windows
//   - MemoryRegion, RegionInfo: captured and enumerated memory regions
//   - Layout: the object header layout of the embedded runtime
//   - Errors: domain-specific error definitions
//
// Nothing in this package dereferences foreign memory. Addresses are opaque
// integers until a reader resolves them against a region snapshot.
package domain
