package patch

import (
	"io"

	pkgerrors "github.com/pkg/errors"

	"github.com/rombp/rombp/internal/bps"
	"github.com/rombp/rombp/internal/bytestream"
	"github.com/rombp/rombp/internal/ips"
)

// Kind is the detected patch file format.
type Kind int

const (
	// Unknown means neither marker matched.
	Unknown Kind = iota
	// IPS means the patch begins with the 5-byte "PATCH" marker.
	IPS
	// BPS means the patch begins with the 4-byte "BPS1" marker.
	BPS
)

func (k Kind) String() string {
	switch k {
	case IPS:
		return "IPS"
	case BPS:
		return "BPS"
	default:
		return "Unknown"
	}
}

// sniff reads the leading bytes of a seekable patch stream and
// identifies its format: try the IPS marker first, and on mismatch seek
// back to 0 and try the BPS marker. The stream is left positioned just
// past the matched marker (or back at 0 if neither matched), never mid-
// marker, so the caller can hand it straight to the chosen decoder.
//
// Each attempt uses its own throwaway bytestream.Reader, then seeks rs
// directly (bypassing that reader's internal bufio lookahead, which may
// have pulled more bytes from rs than it reported consuming) so the
// real file descriptor ends up exactly where the caller expects.
// Sniff exposes the kind detector for read-only callers such as the
// inspect command, which need to identify a patch file without running
// it through Apply.
func Sniff(rs io.ReadSeeker) (Kind, error) {
	return sniff(rs)
}

func sniff(rs io.ReadSeeker) (Kind, error) {
	matched, err := ips.VerifyMarker(bytestream.New(rs, 0))
	if err != nil {
		return Unknown, pkgerrors.Wrap(err, "patch: sniff ips marker")
	}
	if matched {
		if _, err := rs.Seek(int64(len(ips.Marker)), io.SeekStart); err != nil {
			return Unknown, pkgerrors.Wrap(err, "patch: seek past ips marker")
		}
		return IPS, nil
	}

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return Unknown, pkgerrors.Wrap(err, "patch: seek back to 0")
	}

	matched, err = bps.VerifyMarker(bytestream.New(rs, 0))
	if err != nil {
		return Unknown, pkgerrors.Wrap(err, "patch: sniff bps marker")
	}
	if matched {
		if _, err := rs.Seek(int64(len(bps.Marker)), io.SeekStart); err != nil {
			return Unknown, pkgerrors.Wrap(err, "patch: seek past bps marker")
		}
		return BPS, nil
	}

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return Unknown, pkgerrors.Wrap(err, "patch: seek back to 0")
	}
	return Unknown, nil
}
