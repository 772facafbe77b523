// Package patch detects a patch file's format and drives the matching
// decoder to completion against a source/output file pair, publishing
// progress to a shared status record as it goes.
package patch

import (
	"context"
	"os"

	pkgerrors "github.com/pkg/errors"

	"github.com/rombp/rombp/internal/bps"
	"github.com/rombp/rombp/internal/bytestream"
	"github.com/rombp/rombp/internal/crc32accum"
	"github.com/rombp/rombp/internal/ips"
	"github.com/rombp/rombp/internal/patcherr"
	"github.com/rombp/rombp/internal/status"
)

// Command is the immutable description of one patch run.
type Command struct {
	SourcePath string
	PatchPath  string
	OutputPath string
}

// Apply opens the three files named by cmd, detects the patch format,
// drives the matching decoder to completion, and publishes progress to
// shared after every hunk/action and once more on completion. It
// returns a *patcherr.Error on any failure; a nil return means
// PATCH_OK.
//
// ctx is accepted but not polled: no opcode-level cancellation is wired
// up today, since nothing in this tree ever calls cancel. It is carried
// through the call so that threading it in does not require reworking
// this signature later.
func Apply(ctx context.Context, cmd Command, shared *status.Shared) error {
	_ = ctx
	sourceFile, err := os.Open(cmd.SourcePath)
	if err != nil {
		return fail(shared, patcherr.New(patcherr.IO, pkgerrors.Wrap(err, "open source")))
	}
	defer sourceFile.Close()

	patchFile, err := os.Open(cmd.PatchPath)
	if err != nil {
		return fail(shared, patcherr.New(patcherr.IO, pkgerrors.Wrap(err, "open patch")))
	}
	defer patchFile.Close()

	patchInfo, err := patchFile.Stat()
	if err != nil {
		return fail(shared, patcherr.New(patcherr.IO, pkgerrors.Wrap(err, "stat patch")))
	}

	outFile, err := os.Create(cmd.OutputPath)
	if err != nil {
		return fail(shared, patcherr.New(patcherr.IO, pkgerrors.Wrap(err, "create output")))
	}
	defer outFile.Close()

	kind, err := sniff(patchFile)
	if err != nil {
		return fail(shared, patcherr.New(patcherr.IO, err))
	}

	switch kind {
	case IPS:
		return runIPS(sourceFile, patchFile, outFile, patchInfo.Size(), shared)
	case BPS:
		return runBPS(sourceFile, patchFile, outFile, patchInfo.Size(), shared)
	default:
		return fail(shared, patcherr.New(patcherr.UnknownType, nil))
	}
}

func fail(shared *status.Shared, perr *patcherr.Error) error {
	shared.Publish(status.Record{
		IterStatus: status.IOError,
		Err:        perr,
		IsDone:     true,
	})
	return perr
}

func runIPS(sourceFile, patchFile, outFile *os.File, patchSize int64, shared *status.Shared) error {
	if err := ips.Start(sourceFile, outFile); err != nil {
		return fail(shared, patcherr.New(patcherr.FailedToStart, err))
	}

	patchReader := bytestream.New(patchFile, patchSize)
	dec := ips.New(patchReader, outFile)

	var hunks uint64
	for {
		st, err := dec.Next()
		if err != nil {
			return fail(shared, patcherr.New(patcherr.IO, err))
		}
		if st == ips.HunkDone {
			break
		}
		hunks++
		shared.Publish(status.Record{HunkCount: hunks, IterStatus: status.Next})
	}

	shared.Publish(status.Record{HunkCount: hunks, IterStatus: status.Done, IsDone: true})
	return nil
}

func runBPS(sourceFile, patchFile, outFile *os.File, patchSize int64, shared *status.Shared) error {
	patchCRCAcc := crc32accum.New()
	patchCRCAcc.Update(bps.Marker)

	remaining := patchSize - int64(len(bps.Marker)) - bps.TrailerSize
	crcReader := bps.NewPatchCRCReader(patchFile, patchCRCAcc, remaining)
	patchReader := bytestream.New(crcReader, patchSize-int64(len(bps.Marker)))

	sourceCRCAcc := crc32accum.New()
	targetCRCAcc := crc32accum.New()
	sourceReader := bytestream.NewRandomReader(sourceFile)

	dec := bps.New(patchReader, sourceReader, sourceCRCAcc, targetCRCAcc, patchCRCAcc)

	if _, err := dec.Start(); err != nil {
		return fail(shared, patcherr.New(patcherr.FailedToStart, err))
	}

	var actions uint64
	for {
		st, err := dec.Next()
		if err != nil {
			return fail(shared, patcherr.New(patcherr.IO, err))
		}
		if st == bps.ActionDone {
			break
		}
		actions++
		shared.Publish(status.Record{HunkCount: actions, IterStatus: status.Next})
	}

	result, _, err := dec.End()
	if err != nil {
		return fail(shared, patcherr.New(patcherr.IO, err))
	}

	// The target buffer is flushed to disk whether or not verification
	// passes: a failed run leaves the best-effort bytes on disk rather
	// than rolling back.
	if _, werr := outFile.Write(dec.Target()); werr != nil {
		return fail(shared, patcherr.New(patcherr.IO, pkgerrors.Wrap(werr, "write output")))
	}

	if !result.OK() {
		var kind patcherr.Kind
		switch {
		case result.OutputSizeMismatch:
			kind = patcherr.InvalidOutputSize
		default:
			kind = patcherr.InvalidOutputChecksum
		}
		return fail(shared, patcherr.New(kind, nil))
	}

	shared.Publish(status.Record{HunkCount: actions, IterStatus: status.Done, IsDone: true})
	return nil
}
