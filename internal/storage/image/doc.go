// Package image stores captured heap snapshots on disk in Badger and serves
// them back as a memory source, so the attach pipeline can run offline
// against a saved process image.
//
// Layout of the keyspace:
//
//	meta                          JSON Meta
//	region/<base:16 hex>          region size, 8 bytes big-endian
//	chunk/<base:16 hex>/<idx:8 hex> region content, ChunkSize bytes per chunk
package image
