// Package inspect implements rombp's read-only "-info" mode: identify a
// patch file's format and, for BPS, parse its header, without applying
// anything or touching an output file.
package inspect

import (
	"os"

	pkgerrors "github.com/pkg/errors"

	"github.com/rombp/rombp/internal/bps"
	"github.com/rombp/rombp/internal/bytestream"
	"github.com/rombp/rombp/internal/patch"
)

// Report is everything -info can determine from the patch file alone.
type Report struct {
	Kind           patch.Kind
	BPSSourceSize  uint64
	BPSTargetSize  uint64
	BPSMetaLength  int
	PatchFileBytes int64
}

// Run opens patchPath, sniffs its kind, and for BPS additionally parses
// the header. No output file is created and no decoder is driven past
// the header.
func Run(patchPath string) (Report, error) {
	f, err := os.Open(patchPath)
	if err != nil {
		return Report{}, pkgerrors.Wrap(err, "inspect: open patch")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Report{}, pkgerrors.Wrap(err, "inspect: stat patch")
	}

	report := Report{PatchFileBytes: info.Size()}

	kind, err := patch.Sniff(f)
	if err != nil {
		return Report{}, pkgerrors.Wrap(err, "inspect: sniff")
	}
	report.Kind = kind

	if kind != patch.BPS {
		return report, nil
	}

	r := bytestream.New(f, info.Size()-int64(len(bps.Marker)))
	sourceSize, err := r.ReadVarint()
	if err != nil {
		return report, pkgerrors.Wrap(err, "inspect: bps source size")
	}
	targetSize, err := r.ReadVarint()
	if err != nil {
		return report, pkgerrors.Wrap(err, "inspect: bps target size")
	}
	metaLen, err := r.ReadVarint()
	if err != nil {
		return report, pkgerrors.Wrap(err, "inspect: bps metadata length")
	}

	report.BPSSourceSize = sourceSize
	report.BPSTargetSize = targetSize
	report.BPSMetaLength = int(metaLen)
	return report, nil
}
