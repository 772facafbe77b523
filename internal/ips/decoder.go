// Package ips implements the IPS patch format decoder: marker check,
// whole-file initial copy, and a hunk loop supporting raw and
// run-length-encoded payloads, terminated by the EOF sentinel.
//
// Hunks are applied one per Next call, rather than in one tight loop, so
// a caller driving the decoder can publish progress between hunks.
package ips

import (
	"bytes"
	"io"

	pkgerrors "github.com/pkg/errors"

	"github.com/rombp/rombp/internal/bytestream"
)

// Marker is the 5-byte ASCII header every IPS patch begins with.
var Marker = []byte("PATCH")

// eofTag is the 3-byte sentinel that terminates the hunk loop.
var eofTag = []byte("EOF")

const hunkPreambleSize = 5

// Status is the outcome of one Decoder.Next call.
type Status int

const (
	// HunkNext means one hunk was applied and more may follow.
	HunkNext Status = iota
	// HunkDone means the EOF sentinel was reached.
	HunkDone
)

// Decoder applies IPS hunks to an output file, one hunk per Next call.
type Decoder struct {
	patch *bytestream.Reader
	out   io.WriterAt
}

// New constructs a Decoder reading hunks from patch and writing to out.
func New(patch *bytestream.Reader, out io.WriterAt) *Decoder {
	return &Decoder{patch: patch, out: out}
}

// VerifyMarker reads Marker's length from r and reports whether it
// matches the IPS header. The caller is responsible for resetting the
// stream position on mismatch (see internal/patch's kind sniffer).
func VerifyMarker(r *bytestream.Reader) (bool, error) {
	buf, err := r.ReadExact(len(Marker))
	if err != nil {
		if err == bytestream.ErrUnexpectedEOF {
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(buf, Marker), nil
}

// Start copies the entire source file to the output file byte-for-byte,
// buffered. It is the caller's responsibility to have both streams
// positioned at 0.
func Start(src io.Reader, dst io.Writer) error {
	buf := make([]byte, bytestream.BufferSize)
	if _, err := io.CopyBuffer(dst, src, buf); err != nil {
		return pkgerrors.Wrap(err, "ips: initial copy")
	}
	return nil
}

// Next decodes and applies one hunk, or reports HunkDone once the EOF
// sentinel is reached.
func (d *Decoder) Next() (Status, error) {
	// The EOF tag is only 3 bytes long, so it is checked before the
	// remaining 2 preamble bytes are read. Running out of bytes anywhere
	// in the preamble (no EOF tag written) is an error.
	preamble, err := d.patch.ReadExact(len(eofTag))
	if err == nil && bytes.Equal(preamble, eofTag) {
		return HunkDone, nil
	}
	if err == nil {
		var rest []byte
		rest, err = d.patch.ReadExact(hunkPreambleSize - len(eofTag))
		preamble = append(preamble, rest...)
	}
	if err != nil {
		if err == bytestream.ErrUnexpectedEOF {
			return HunkDone, pkgerrors.Wrap(err, "ips: truncated hunk preamble")
		}
		return HunkDone, err
	}

	offset := uint32(preamble[0])<<16 | uint32(preamble[1])<<8 | uint32(preamble[2])
	length := uint16(preamble[3])<<8 | uint16(preamble[4])

	if length == 0 {
		if err := d.applyRLE(int64(offset)); err != nil {
			return HunkDone, err
		}
		return HunkNext, nil
	}

	if err := d.applyRaw(int64(offset), int(length)); err != nil {
		return HunkDone, err
	}
	return HunkNext, nil
}

func (d *Decoder) applyRLE(offset int64) error {
	rleLength, err := d.patch.ReadU16BE()
	if err != nil {
		return pkgerrors.Wrap(err, "ips: rle length")
	}
	value, err := d.patch.ReadU8()
	if err != nil {
		return pkgerrors.Wrap(err, "ips: rle value")
	}

	run := bytes.Repeat([]byte{value}, int(rleLength))
	if _, err := d.out.WriteAt(run, offset); err != nil {
		return pkgerrors.Wrap(err, "ips: rle write")
	}
	return nil
}

func (d *Decoder) applyRaw(offset int64, length int) error {
	body, err := d.patch.ReadExact(length)
	if err != nil {
		return pkgerrors.Wrap(err, "ips: hunk payload")
	}
	if _, err := d.out.WriteAt(body, offset); err != nil {
		return pkgerrors.Wrap(err, "ips: hunk write")
	}
	return nil
}
