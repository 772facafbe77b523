// Package crc32accum implements the CRC32 accumulator the patch engine
// uses for the three independent checksums a BPS patch carries (source,
// target and patch-file checksums). It is a thin, snapshot-friendly
// wrapper around the standard library's reflected-IEEE implementation:
// crc32.Update already performs the seed-at-0xFFFFFFFF / finalize-by-XOR
// dance the format requires on every call, so the running value can be
// read mid-stream without disturbing further updates.
package crc32accum

import "hash/crc32"

// Accumulator incrementally computes a CRC32/IEEE checksum (polynomial
// 0xEDB88320 reflected) and supports taking a non-destructive snapshot
// of the running value at any point.
type Accumulator struct {
	h uint32
}

// New returns an empty accumulator. The stored value is always the
// finalized checksum of the bytes seen so far (0 for none), since
// crc32.Update applies the IEEE seed and final XOR itself.
func New() *Accumulator {
	return &Accumulator{h: 0}
}

// Update feeds additional bytes into the running checksum.
func (a *Accumulator) Update(p []byte) {
	a.h = crc32.Update(a.h, crc32.IEEETable, p)
}

// Snapshot returns the checksum as of the bytes seen so far, without
// resetting the running state: further Update calls keep accumulating
// from this point, which is exactly what the BPS trailer's "snapshot the
// patch checksum immediately before reading the trailer" requirement
// needs.
func (a *Accumulator) Snapshot() uint32 {
	return a.h
}

// Finalize is an alias for Snapshot, used at call sites where the
// accumulator is not expected to be written to again.
func (a *Accumulator) Finalize() uint32 {
	return a.Snapshot()
}

// Checksum computes the CRC32/IEEE of p in one call; a convenience for
// tests.
func Checksum(p []byte) uint32 {
	return crc32.ChecksumIEEE(p)
}
