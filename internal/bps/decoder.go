// Package bps implements the BPS patch format decoder: marker check,
// header parsing, a four-opcode action loop over two independent
// cursors, and trailer CRC32 verification.
//
// Actions are applied one per Next call, rather than in one tight loop,
// so a caller driving the decoder can publish progress between actions.
package bps

import (
	"io"

	pkgerrors "github.com/pkg/errors"

	"github.com/rombp/rombp/internal/bytestream"
	"github.com/rombp/rombp/internal/crc32accum"
)

// Marker is the 4-byte ASCII header every BPS patch begins with.
var Marker = []byte("BPS1")

// TrailerSize is the three little-endian u32 checksums at the end of
// every BPS patch file (source, target, patch).
const TrailerSize = 12

// opcode is the 2-bit action tag packed into the low bits of each
// action's leading varint.
type opcode uint64

const (
	opSourceRead opcode = iota
	opTargetRead
	opSourceCopy
	opTargetCopy
)

// Status is the outcome of one Decoder.Next call.
type Status int

const (
	// ActionNext means one action was applied and more may follow.
	ActionNext Status = iota
	// ActionDone means out_pos has reached target_size.
	ActionDone
)

// Header is the parsed BPS header: the two file sizes and the opaque
// metadata blob (unused for patching).
type Header struct {
	SourceSize uint64
	TargetSize uint64
	Metadata   []byte
}

// PatchCRCReader wraps a patch file reader so that the first remaining
// bytes physically pulled through it feed acc and later bytes do not.
// Callers pass the count of bytes that precede the BPS trailer, so the
// trailer is excluded from the patch checksum's coverage. Partial
// reads that straddle the boundary are split so the feed is exact
// regardless of how the caller's buffering chunks its reads.
//
// The caller is expected to construct this around the raw patch file
// (after consuming the 4-byte BPS1 marker, which must be fed to acc
// separately since it precedes this wrapper) and use it as the source
// for the bytestream.Reader that actually decodes the patch.
type PatchCRCReader struct {
	r         io.Reader
	acc       *crc32accum.Accumulator
	remaining int64
}

// NewPatchCRCReader wraps r, feeding acc with every byte read until
// remaining bytes have been fed.
func NewPatchCRCReader(r io.Reader, acc *crc32accum.Accumulator, remaining int64) *PatchCRCReader {
	return &PatchCRCReader{r: r, acc: acc, remaining: remaining}
}

func (c *PatchCRCReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 && c.remaining > 0 {
		feed := int64(n)
		if feed > c.remaining {
			feed = c.remaining
		}
		c.acc.Update(p[:feed])
		c.remaining -= feed
	}
	return n, err
}

// Decoder applies BPS actions to an in-memory target buffer sized to
// Header.TargetSize. TargetCopy's read-after-write access pattern is
// simplest against a RAM buffer rather than a flushed OS file.
type Decoder struct {
	patch  *bytestream.Reader
	source *bytestream.RandomReader

	header Header
	target []byte

	outPos       uint64
	sourceCursor uint64
	targetCursor uint64

	sourceCRC *crc32accum.Accumulator
	targetCRC *crc32accum.Accumulator
	patchCRC  *crc32accum.Accumulator
}

// VerifyMarker reads Marker's length from r and reports whether it
// matches the BPS header.
func VerifyMarker(r *bytestream.Reader) (bool, error) {
	buf, err := r.ReadExact(len(Marker))
	if err != nil {
		if err == bytestream.ErrUnexpectedEOF {
			return false, nil
		}
		return false, err
	}
	return string(buf) == string(Marker), nil
}

// New constructs a Decoder. source provides BPS's random-access
// SourceCopy/SourceRead reads against the source file; patch must be
// positioned just past the 4-byte marker, and should be built on top of
// a PatchCRCReader so patchCRC already reflects every patch byte read so
// far (the marker itself is fed by the caller before wrapping, since it
// precedes PatchCRCReader's view).
func New(patch *bytestream.Reader, source *bytestream.RandomReader, sourceCRC, targetCRC, patchCRC *crc32accum.Accumulator) *Decoder {
	return &Decoder{
		patch:     patch,
		source:    source,
		sourceCRC: sourceCRC,
		targetCRC: targetCRC,
		patchCRC:  patchCRC,
	}
}

// Start parses the BPS header (sizes + metadata) and allocates the
// target buffer.
func (d *Decoder) Start() (Header, error) {
	sourceSize, err := d.patch.ReadVarint()
	if err != nil {
		return Header{}, pkgerrors.Wrap(err, "bps: source size")
	}
	targetSize, err := d.patch.ReadVarint()
	if err != nil {
		return Header{}, pkgerrors.Wrap(err, "bps: target size")
	}
	metaLen, err := d.patch.ReadVarint()
	if err != nil {
		return Header{}, pkgerrors.Wrap(err, "bps: metadata length")
	}
	metadata, err := d.patch.ReadExact(int(metaLen))
	if err != nil {
		return Header{}, pkgerrors.Wrap(err, "bps: metadata")
	}

	d.header = Header{SourceSize: sourceSize, TargetSize: targetSize, Metadata: metadata}
	d.target = make([]byte, targetSize)
	return d.header, nil
}

// Next decodes and applies one action, or reports ActionDone once
// out_pos has reached target_size.
func (d *Decoder) Next() (Status, error) {
	if d.outPos >= d.header.TargetSize {
		return ActionDone, nil
	}

	v, err := d.patch.ReadVarint()
	if err != nil {
		return ActionDone, pkgerrors.Wrap(err, "bps: action header")
	}

	op := opcode(v & 3)
	length := (v >> 2) + 1

	switch op {
	case opSourceRead:
		err = d.doSourceRead(length)
	case opTargetRead:
		err = d.doTargetRead(length)
	case opSourceCopy:
		err = d.doSourceCopy(length)
	case opTargetCopy:
		err = d.doTargetCopy(length)
	default:
		err = pkgerrors.Errorf("bps: impossible opcode %d", op)
	}
	if err != nil {
		return ActionDone, err
	}
	return ActionNext, nil
}

func (d *Decoder) doSourceRead(length uint64) error {
	buf, err := d.source.ReadAt(int64(d.outPos), int(length))
	if err != nil {
		return pkgerrors.Wrap(err, "bps: source read")
	}
	d.sourceCRC.Update(buf)
	d.writeTarget(buf)
	return nil
}

func (d *Decoder) doTargetRead(length uint64) error {
	// The bytes read here flow through the patch's PatchCRCReader, which
	// already feeds patchCRC; only targetCRC needs an explicit update.
	buf, err := d.patch.ReadExact(int(length))
	if err != nil {
		return pkgerrors.Wrap(err, "bps: target read")
	}
	d.writeTarget(buf)
	return nil
}

func (d *Decoder) doSourceCopy(length uint64) error {
	delta, err := d.patch.ReadSignedVarint()
	if err != nil {
		return pkgerrors.Wrap(err, "bps: source copy delta")
	}
	d.sourceCursor = applyDelta(d.sourceCursor, delta)

	buf, err := d.source.ReadAt(int64(d.sourceCursor), int(length))
	if err != nil {
		return pkgerrors.Wrap(err, "bps: source copy read")
	}
	d.sourceCRC.Update(buf)
	d.writeTarget(buf)
	d.sourceCursor += length
	return nil
}

// doTargetCopy copies length bytes one at a time from the already
// (partially) written target buffer. When target_cursor + length >
// out_pos at the start of the action, each byte read may itself have
// been written earlier within this same action, producing RLE-like
// periodic propagation. A pre-buffered window would silently break that.
func (d *Decoder) doTargetCopy(length uint64) error {
	delta, err := d.patch.ReadSignedVarint()
	if err != nil {
		return pkgerrors.Wrap(err, "bps: target copy delta")
	}
	d.targetCursor = applyDelta(d.targetCursor, delta)

	for i := uint64(0); i < length; i++ {
		b := d.target[d.targetCursor]
		d.target[d.outPos] = b
		d.targetCRC.Update([]byte{b})
		d.targetCursor++
		d.outPos++
	}
	return nil
}

func (d *Decoder) writeTarget(buf []byte) {
	copy(d.target[d.outPos:], buf)
	d.targetCRC.Update(buf)
	d.outPos += uint64(len(buf))
}

func applyDelta(cursor uint64, delta int64) uint64 {
	return uint64(int64(cursor) + delta)
}

// Trailer holds the BPS trailer's three expected checksums.
type Trailer struct {
	SourceCRC uint32
	TargetCRC uint32
	PatchCRC  uint32
}

// VerifyResult reports which, if any, of the four trailer checks failed.
type VerifyResult struct {
	OutputSizeMismatch bool
	SourceCRCMismatch  bool
	TargetCRCMismatch  bool
	PatchCRCMismatch   bool
}

// OK reports whether every check in the result passed.
func (r VerifyResult) OK() bool {
	return !r.OutputSizeMismatch && !r.SourceCRCMismatch && !r.TargetCRCMismatch && !r.PatchCRCMismatch
}

// End reads the trailer and verifies it against the accumulated state,
// checking output size, then source checksum, then target checksum,
// then patch checksum, in that order. The patch checksum is snapshotted
// before the trailer bytes themselves are read; in practice
// PatchCRCReader's byte budget already stops feeding exactly at the
// trailer boundary, so the snapshot is stable either way, but taking it
// first keeps the ordering honest.
func (d *Decoder) End() (VerifyResult, Trailer, error) {
	var result VerifyResult
	if d.outPos != d.header.TargetSize {
		result.OutputSizeMismatch = true
	}

	patchCRCSnapshot := d.patchCRC.Snapshot()

	expectedSourceCRC, err := d.patch.ReadU32LE()
	if err != nil {
		return result, Trailer{}, pkgerrors.Wrap(err, "bps: trailer source crc")
	}
	expectedTargetCRC, err := d.patch.ReadU32LE()
	if err != nil {
		return result, Trailer{}, pkgerrors.Wrap(err, "bps: trailer target crc")
	}
	expectedPatchCRC, err := d.patch.ReadU32LE()
	if err != nil {
		return result, Trailer{}, pkgerrors.Wrap(err, "bps: trailer patch crc")
	}

	if d.sourceCRC.Finalize() != expectedSourceCRC {
		result.SourceCRCMismatch = true
	}
	if d.targetCRC.Finalize() != expectedTargetCRC {
		result.TargetCRCMismatch = true
	}
	if patchCRCSnapshot != expectedPatchCRC {
		result.PatchCRCMismatch = true
	}

	return result, Trailer{
		SourceCRC: expectedSourceCRC,
		TargetCRC: expectedTargetCRC,
		PatchCRC:  expectedPatchCRC,
	}, nil
}

// Target returns the fully-written output buffer. Valid any time after
// Start; callers inspecting a failed run get the best-effort bytes, since
// a failed verification does not roll back any bytes already written.
func (d *Decoder) Target() []byte {
	return d.target
}
