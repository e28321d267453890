package diag

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// RunID tags one engine invocation's diagnostics (log lines, depdb
// stanzas, progress reports) so concurrent or overlapping invocations
// against the same output tree can be told apart in shared logs.
type RunID string

// NewRunID mints a fresh run id.
func NewRunID() RunID { return RunID(uuid.NewString()) }

// Progress tracks a running count of targets processed against a known (or
// estimated) total, rendering the count and a human-friendly elapsed time
// (no rate or ETA). Grounded on spec.md §7's progress reporting requirement;
// the elapsed-time phrasing uses github.com/dustin/go-humanize the way please's own CLI progress
// reporting formats byte counts and durations.
type Progress struct {
	run     RunID
	started time.Time
	total   int64
	done    int64
}

// NewProgress starts a progress tracker for total targets (0 if unknown).
func NewProgress(total int64) *Progress {
	return &Progress{run: NewRunID(), started: time.Now(), total: total}
}

// RunID returns this progress tracker's run id.
func (p *Progress) RunID() RunID { return p.run }

// Advance records n more targets completed and returns the new total.
func (p *Progress) Advance(n int64) int64 { return atomic.AddInt64(&p.done, n) }

// String renders "<done>/<total> targets, <elapsed> elapsed" (or
// "<done> targets, <elapsed> elapsed" when total is unknown).
func (p *Progress) String() string {
	done := atomic.LoadInt64(&p.done)
	elapsed := humanize.RelTime(p.started, time.Now(), "", "")
	if p.total <= 0 {
		return fmt.Sprintf("%d targets, %s elapsed", done, elapsed)
	}
	return fmt.Sprintf("%d/%d targets, %s elapsed", done, p.total, elapsed)
}
