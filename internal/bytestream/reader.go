// Package bytestream provides buffered, format-agnostic byte decoding
// helpers shared by the IPS and BPS patch decoders: fixed-width
// big/little-endian integers and the BPS variable-length integer
// encoding, on top of a 32 KiB buffered reader.
package bytestream

import (
	"bufio"
	"errors"
	"io"

	pkgerrors "github.com/pkg/errors"
)

// maxVarintBytes bounds the number of 7-bit groups a BPS varint may
// spread across. 10 groups cover every value up to 2^70, well past the
// 2^63 ceiling the format actually uses; beyond that the encoding can
// only be corrupt or adversarial.
const maxVarintBytes = 10

// BufferSize is the recommended internal read buffer for the hot copy
// paths (IPS initial copy and hunk bodies, BPS TargetRead runs).
const BufferSize = 32 * 1024

// ErrUnexpectedEOF is returned when fewer bytes than requested were
// available before the underlying stream ran out.
var ErrUnexpectedEOF = errors.New("bytestream: unexpected eof")

// ErrVarintOverflow is returned when a BPS varint accumulates beyond 64
// bits without terminating.
var ErrVarintOverflow = errors.New("bytestream: varint overflow")

// ErrNotSeekable is returned by SeekAbs when the wrapped source doesn't
// implement io.Seeker, e.g. a CRC-tracking forward-only wrapper.
var ErrNotSeekable = errors.New("bytestream: underlying reader is not seekable")

// Reader is a buffered sequential reader, with convenience decoders for
// the fixed-width and BPS varint encodings used by both patch formats.
// The wrapped source need only be an io.Reader; SeekAbs additionally
// requires it to implement io.Seeker.
type Reader struct {
	br   *bufio.Reader
	rs   io.Reader
	pos  int64
	size int64
}

// New wraps rs in a buffered Reader positioned at its current offset if
// rs is seekable, or at 0 otherwise. size should be the total length of
// rs (used only by Size).
func New(rs io.Reader, size int64) *Reader {
	var pos int64
	if seeker, ok := rs.(io.Seeker); ok {
		pos, _ = seeker.Seek(0, io.SeekCurrent)
	}
	return &Reader{
		br:   bufio.NewReaderSize(rs, BufferSize),
		rs:   rs,
		pos:  pos,
		size: size,
	}
}

// Size returns the total length of the underlying stream.
func (r *Reader) Size() int64 {
	return r.size
}

// Tell returns the current logical read position.
func (r *Reader) Tell() int64 {
	return r.pos
}

// SeekAbs repositions the reader at an absolute offset and discards the
// buffered lookahead. It returns ErrNotSeekable if the wrapped source
// isn't an io.Seeker.
func (r *Reader) SeekAbs(pos int64) error {
	seeker, ok := r.rs.(io.Seeker)
	if !ok {
		return ErrNotSeekable
	}
	if _, err := seeker.Seek(pos, io.SeekStart); err != nil {
		return pkgerrors.Wrap(err, "bytestream: seek")
	}
	r.br.Reset(r.rs)
	r.pos = pos
	return nil
}

// ReadExact reads exactly n bytes, returning ErrUnexpectedEOF if the
// stream ends early.
func (r *Reader) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	nread, err := io.ReadFull(r.br, buf)
	r.pos += int64(nread)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return buf[:nread], ErrUnexpectedEOF
	}
	if err != nil {
		return buf[:nread], pkgerrors.Wrap(err, "bytestream: read")
	}
	return buf, nil
}

// ReadU8 reads a single byte.
func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.ReadExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16BE reads a big-endian 16-bit integer.
func (r *Reader) ReadU16BE() (uint16, error) {
	b, err := r.ReadExact(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

// ReadU24BE reads a big-endian 24-bit integer (IPS hunk offsets).
func (r *Reader) ReadU24BE() (uint32, error) {
	b, err := r.ReadExact(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}

// ReadU32LE reads a little-endian 32-bit integer (BPS trailer CRCs).
func (r *Reader) ReadU32LE() (uint32, error) {
	b, err := r.ReadExact(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// ReadVarint decodes one BPS unsigned variable-length integer: 7 data
// bits per byte, continuation signalled by the high bit being *unset*,
// termination by the high bit being set, with the "+1 trick" applied to
// every non-terminal group so every value has exactly one encoding.
func (r *Reader) ReadVarint() (uint64, error) {
	var data uint64
	var shift uint64 = 1

	for i := 0; ; i++ {
		if i >= maxVarintBytes {
			return 0, ErrVarintOverflow
		}

		b, err := r.ReadU8()
		if err != nil {
			return 0, err
		}

		data += uint64(b&0x7f) * shift

		if b&0x80 != 0 {
			return data, nil
		}

		shift <<= 7
		data += shift
	}
}

// ReadSignedVarint decodes a BPS signed varint: the low bit of the
// unsigned payload is the sign, the remaining bits are the magnitude.
func (r *Reader) ReadSignedVarint() (int64, error) {
	raw, err := r.ReadVarint()
	if err != nil {
		return 0, err
	}
	magnitude := int64(raw >> 1)
	if raw&1 != 0 {
		return -magnitude, nil
	}
	return magnitude, nil
}

// RandomReader wraps an io.ReaderAt for BPS's positioned reads from the
// source file: SourceRead at the output position and SourceCopy at the
// source cursor.
type RandomReader struct {
	ra io.ReaderAt
}

// NewRandomReader wraps ra for random-access reads.
func NewRandomReader(ra io.ReaderAt) *RandomReader {
	return &RandomReader{ra: ra}
}

// ReadAt reads n bytes starting at off.
func (r *RandomReader) ReadAt(off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	nread, err := r.ra.ReadAt(buf, off)
	if err == io.EOF && nread == n {
		// io.ReaderAt may legally return io.EOF alongside a full read
		// when the read ends exactly at EOF.
		return buf, nil
	}
	if err != nil {
		return buf[:nread], pkgerrors.Wrap(err, "bytestream: random read")
	}
	return buf, nil
}
