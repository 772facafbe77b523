package bps

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rombp/rombp/internal/bytestream"
	"github.com/rombp/rombp/internal/crc32accum"
)

// encodeVarint mirrors the "+1 trick" encoder used by the format itself.
func encodeVarint(n uint64) []byte {
	var out []byte
	for {
		x := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			out = append(out, 0x80|x)
			return out
		}
		out = append(out, x)
		n--
	}
}

func encodeSignedVarint(v int64) []byte {
	magnitude := uint64(v)
	sign := uint64(0)
	if v < 0 {
		magnitude = uint64(-v)
		sign = 1
	}
	return encodeVarint(magnitude<<1 | sign)
}

func encodeAction(op opcode, length uint64) []byte {
	return encodeVarint(uint64(op) | (length-1)<<2)
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// buildPatch assembles a full BPS file: marker, header, actions, and a
// correctly computed trailer.
func buildPatch(t *testing.T, sourceSize, targetSize uint64, actions []byte, target []byte, source []byte) []byte {
	t.Helper()
	var body bytes.Buffer
	body.Write(encodeVarint(sourceSize))
	body.Write(encodeVarint(targetSize))
	body.Write(encodeVarint(0)) // no metadata
	body.Write(actions)

	patchCRC := crc32accum.Checksum(append(append([]byte{}, Marker...), body.Bytes()...))
	sourceCRC := crc32accum.Checksum(source)
	targetCRC := crc32accum.Checksum(target)

	var full bytes.Buffer
	full.Write(Marker)
	full.Write(body.Bytes())
	full.Write(le32(sourceCRC))
	full.Write(le32(targetCRC))
	full.Write(le32(patchCRC))
	return full.Bytes()
}

// runBPS drives a Decoder to completion against a fully-assembled patch
// file and source buffer, wiring the marker-exclusive PatchCRCReader the
// way the controller is expected to.
func runBPS(t *testing.T, patchBytes, source []byte) (*Decoder, VerifyResult, Trailer) {
	t.Helper()

	matched, err := VerifyMarker(bytestream.New(bytes.NewReader(patchBytes[:len(Marker)]), int64(len(Marker))))
	require.NoError(t, err)
	require.True(t, matched)

	patchCRCAcc := crc32accum.New()
	patchCRCAcc.Update(patchBytes[:len(Marker)])

	rest := patchBytes[len(Marker):]
	remaining := int64(len(rest) - TrailerSize)
	crcReader := NewPatchCRCReader(bytes.NewReader(rest), patchCRCAcc, remaining)
	patchReader := bytestream.New(crcReader, int64(len(rest)))

	sourceReader := bytestream.NewRandomReader(bytes.NewReader(source))

	sourceCRCAcc := crc32accum.New()
	targetCRCAcc := crc32accum.New()

	dec := New(patchReader, sourceReader, sourceCRCAcc, targetCRCAcc, patchCRCAcc)
	_, err = dec.Start()
	require.NoError(t, err)

	for {
		status, err := dec.Next()
		require.NoError(t, err)
		if status == ActionDone {
			break
		}
	}

	result, trailer, err := dec.End()
	require.NoError(t, err)
	return dec, result, trailer
}

func TestBPSSourceReadIdentity(t *testing.T) {
	source := []byte("hello world")
	var actions bytes.Buffer
	actions.Write(encodeAction(opSourceRead, uint64(len(source))))

	patchBytes := buildPatch(t, uint64(len(source)), uint64(len(source)), actions.Bytes(), source, source)
	dec, result, _ := runBPS(t, patchBytes, source)

	require.True(t, result.OK())
	require.Equal(t, source, dec.Target())
}

func TestBPSTargetReadLiteral(t *testing.T) {
	source := []byte{}
	target := []byte("new bytes")
	var actions bytes.Buffer
	actions.Write(encodeAction(opTargetRead, uint64(len(target))))
	actions.Write(target)

	patchBytes := buildPatch(t, 0, uint64(len(target)), actions.Bytes(), target, source)
	dec, result, _ := runBPS(t, patchBytes, source)

	require.True(t, result.OK())
	require.Equal(t, target, dec.Target())
}

func TestBPSTargetCopyRLEPropagation(t *testing.T) {
	// Seed one byte via TargetRead, then TargetCopy with delta 0 (the
	// target cursor still points at the seed byte) and a length that
	// reads past what was written when the action started, producing a
	// repeating run from the single seed byte.
	source := []byte{}
	seed := []byte{0x5a}
	target := append(append([]byte{}, seed...), bytes.Repeat(seed, 5)...)

	var actions bytes.Buffer
	actions.Write(encodeAction(opTargetRead, 1))
	actions.Write(seed)
	actions.Write(encodeAction(opTargetCopy, 5))
	actions.Write(encodeSignedVarint(0))

	patchBytes := buildPatch(t, 0, uint64(len(target)), actions.Bytes(), target, source)
	dec, result, _ := runBPS(t, patchBytes, source)

	require.True(t, result.OK())
	require.Equal(t, target, dec.Target())
}

func TestBPSSourceCopy(t *testing.T) {
	source := []byte("abcdefghij")
	target := []byte("cdefg")

	var actions bytes.Buffer
	actions.Write(encodeAction(opSourceCopy, uint64(len(target))))
	actions.Write(encodeSignedVarint(2))

	// The source checksum covers the source bytes the actions read
	// ("cdefg"), not the whole source file.
	patchBytes := buildPatch(t, uint64(len(source)), uint64(len(target)), actions.Bytes(), target, source[2:7])
	dec, result, _ := runBPS(t, patchBytes, source)

	require.True(t, result.OK())
	require.Equal(t, target, dec.Target())
}

func TestBPSWrongTargetCRCDetected(t *testing.T) {
	source := []byte{}
	target := []byte("payload")
	var actions bytes.Buffer
	actions.Write(encodeAction(opTargetRead, uint64(len(target))))
	actions.Write(target)

	patchBytes := buildPatch(t, 0, uint64(len(target)), actions.Bytes(), target, source)

	// Corrupt the target CRC field in the trailer (second-to-last u32).
	corrupted := append([]byte{}, patchBytes...)
	off := len(corrupted) - 8
	corrupted[off] ^= 0xff

	_, result, _ := runBPS(t, corrupted, source)
	require.False(t, result.OK())
	require.True(t, result.TargetCRCMismatch)
	require.False(t, result.SourceCRCMismatch)
}

func TestBPSDegenerateEmptyIdentity(t *testing.T) {
	source := []byte{}
	target := []byte{}
	patchBytes := buildPatch(t, 0, 0, nil, target, source)

	dec, result, _ := runBPS(t, patchBytes, source)
	require.True(t, result.OK())
	require.Empty(t, dec.Target())
}
