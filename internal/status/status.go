// Package status holds the progress record the patch worker publishes
// and an external observer polls, guarded by a single mutex: the worker
// overwrites the shared record from its own local copy under lock and
// releases immediately — no work happens while the lock is held.
package status

import (
	"sync"

	"github.com/rombp/rombp/internal/patcherr"
)

// IterStatus mirrors the original decoder's per-call outcome.
type IterStatus int

const (
	// None means no hunk/action has been processed yet.
	None IterStatus = iota
	// Next means the decoder consumed one hunk/action and is ready for
	// another call.
	Next
	// Done means the decoder reached the end of the patch stream.
	Done
	// IOError means an I/O failure terminated the decoder.
	IOError
)

// Record is a snapshot of patch-run progress: how many hunks/actions
// have been applied, the decoder's last iteration outcome, the terminal
// error (nil while still running or on success), and whether the run is
// over.
type Record struct {
	HunkCount  uint64
	IterStatus IterStatus
	Err        *patcherr.Error
	IsDone     bool
}

// Shared is a Record behind a mutex, written by the worker goroutine and
// read by an external observer. The zero value is ready to use.
type Shared struct {
	mu  sync.Mutex
	rec Record
}

// Publish overwrites the shared record from the worker's local copy.
func (s *Shared) Publish(rec Record) {
	s.mu.Lock()
	s.rec = rec
	s.mu.Unlock()
}

// Snapshot copies out the current shared record for the observer.
func (s *Shared) Snapshot() Record {
	s.mu.Lock()
	rec := s.rec
	s.mu.Unlock()
	return rec
}
