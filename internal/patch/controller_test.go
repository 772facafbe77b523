package patch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rombp/rombp/internal/crc32accum"
	"github.com/rombp/rombp/internal/patcherr"
	"github.com/rombp/rombp/internal/status"
)

func writeTemp(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

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

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func buildBPS(sourceSize, targetSize uint64, actions, target, source []byte) []byte {
	var body bytes.Buffer
	body.Write(encodeVarint(sourceSize))
	body.Write(encodeVarint(targetSize))
	body.Write(encodeVarint(0))
	body.Write(actions)

	var withMarker bytes.Buffer
	withMarker.WriteString("BPS1")
	withMarker.Write(body.Bytes())

	patchCRC := crc32accum.Checksum(withMarker.Bytes())
	sourceCRC := crc32accum.Checksum(source)
	targetCRC := crc32accum.Checksum(target)

	withMarker.Write(le32(sourceCRC))
	withMarker.Write(le32(targetCRC))
	withMarker.Write(le32(patchCRC))
	return withMarker.Bytes()
}

func TestApplyIPSRaw(t *testing.T) {
	dir := t.TempDir()
	source := []byte{0, 0, 0, 0, 0}
	patchBody := []byte{0x00, 0x00, 0x02, 0x00, 0x02, 0xAB, 0xCD}
	patchBody = append(patchBody, []byte("EOF")...)
	patchBytes := append([]byte("PATCH"), patchBody...)

	sourcePath := writeTemp(t, dir, "source.rom", source)
	patchPath := writeTemp(t, dir, "patch.ips", patchBytes)
	outPath := filepath.Join(dir, "out.rom")

	var shared status.Shared
	err := Apply(context.Background(), Command{SourcePath: sourcePath, PatchPath: patchPath, OutputPath: outPath}, &shared)
	require.NoError(t, err)

	out, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x00, 0xAB, 0xCD, 0x00}, out)

	rec := shared.Snapshot()
	require.True(t, rec.IsDone)
	require.Equal(t, status.Done, rec.IterStatus)
	require.Nil(t, rec.Err)
}

func TestApplyBPSDegenerateIdentity(t *testing.T) {
	dir := t.TempDir()
	source := []byte{0xAA, 0xBB, 0xCC}

	var actions bytes.Buffer
	actions.Write(encodeVarint(uint64(0) | (3-1)<<2)) // opcode 0 (SourceRead), length 3
	patchBytes := buildBPS(3, 3, actions.Bytes(), source, source)

	sourcePath := writeTemp(t, dir, "source.rom", source)
	patchPath := writeTemp(t, dir, "patch.bps", patchBytes)
	outPath := filepath.Join(dir, "out.rom")

	var shared status.Shared
	err := Apply(context.Background(), Command{SourcePath: sourcePath, PatchPath: patchPath, OutputPath: outPath}, &shared)
	require.NoError(t, err)

	out, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, source, out)
}

func TestApplyBPSTargetCopyRLE(t *testing.T) {
	dir := t.TempDir()
	source := []byte{}
	target := []byte{0x5A, 0x5A, 0x5A, 0x5A}

	var actions bytes.Buffer
	// opcode 1 (TargetRead), length 1, literal byte 0x5A
	actions.Write(encodeVarint(uint64(1) | (1-1)<<2))
	actions.WriteByte(0x5A)
	// opcode 3 (TargetCopy), length 3, delta 0
	actions.Write(encodeVarint(uint64(3) | (3-1)<<2))
	actions.Write(encodeSignedVarint(0))

	patchBytes := buildBPS(0, uint64(len(target)), actions.Bytes(), target, source)

	sourcePath := writeTemp(t, dir, "source.rom", source)
	patchPath := writeTemp(t, dir, "patch.bps", patchBytes)
	outPath := filepath.Join(dir, "out.rom")

	var shared status.Shared
	err := Apply(context.Background(), Command{SourcePath: sourcePath, PatchPath: patchPath, OutputPath: outPath}, &shared)
	require.NoError(t, err)

	out, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, target, out)
}

func TestApplyBPSWrongTargetCRC(t *testing.T) {
	dir := t.TempDir()
	source := []byte{0xAA, 0xBB, 0xCC}

	var actions bytes.Buffer
	actions.Write(encodeVarint(uint64(0) | (3-1)<<2))
	patchBytes := buildBPS(3, 3, actions.Bytes(), source, source)

	// Corrupt the target CRC field (XOR 1 on the first byte of the
	// second-to-last u32 in the trailer).
	off := len(patchBytes) - 8
	patchBytes[off] ^= 1

	sourcePath := writeTemp(t, dir, "source.rom", source)
	patchPath := writeTemp(t, dir, "patch.bps", patchBytes)
	outPath := filepath.Join(dir, "out.rom")

	var shared status.Shared
	err := Apply(context.Background(), Command{SourcePath: sourcePath, PatchPath: patchPath, OutputPath: outPath}, &shared)
	require.Error(t, err)

	var perr *patcherr.Error
	require.True(t, errors.As(err, &perr))
	require.Equal(t, patcherr.InvalidOutputChecksum, perr.Kind)

	// Best-effort output bytes are still on disk.
	out, readErr := os.ReadFile(outPath)
	require.NoError(t, readErr)
	require.Equal(t, source, out)
}

func TestApplyUnknownType(t *testing.T) {
	dir := t.TempDir()
	sourcePath := writeTemp(t, dir, "source.rom", []byte{1, 2, 3})
	patchPath := writeTemp(t, dir, "patch.bin", []byte("not a patch at all"))
	outPath := filepath.Join(dir, "out.rom")

	var shared status.Shared
	err := Apply(context.Background(), Command{SourcePath: sourcePath, PatchPath: patchPath, OutputPath: outPath}, &shared)
	require.Error(t, err)

	var perr *patcherr.Error
	require.True(t, errors.As(err, &perr))
	require.Equal(t, patcherr.UnknownType, perr.Kind)
}
