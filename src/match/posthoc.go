package match

import (
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/build2/build2-sub005/src/diag"
	"github.com/build2/build2-sub005/src/graph"
)

// PostHocList is the context-wide list of post-hoc prerequisite targets a
// rule registered during apply (spec.md §4.5 "Post-hoc prerequisites"):
// accumulated under a single mutex (low contention expected, spec.md §4.5's
// "Concurrency" note) and match-and-executed in a second pass after the main
// graph, re-iterating additions made during that second pass to a fixed
// point.
type PostHocList struct {
	mu      sync.Mutex
	pending []*graph.Target
	seen    map[*graph.Target]bool
}

// NewPostHocList returns an empty post-hoc list, one per Context.
func NewPostHocList() *PostHocList {
	return &PostHocList{seen: map[*graph.Target]bool{}}
}

// Add registers t as a post-hoc prerequisite if it hasn't been seen before,
// reporting whether it was newly added.
func (l *PostHocList) Add(t *graph.Target) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen[t] {
		return false
	}
	l.seen[t] = true
	l.pending = append(l.pending, t)
	return true
}

// Drain returns and clears the targets added since the last Drain call, the
// unit of work one post-hoc pass processes.
func (l *PostHocList) Drain() []*graph.Target {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.pending
	l.pending = nil
	return batch
}

// Len reports how many targets are currently pending a pass.
func (l *PostHocList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Drive runs process against successive Drain batches until a pass adds
// nothing new, the fixed point spec.md §4.5 requires ("post-hoc additions
// during the post-hoc pass are permitted and iterated to a fixed point").
// Failures from individual targets are collected rather than aborting the
// whole pass, matching the keep-going failure aggregation the rest of the
// engine uses; Drive returns the collected errors only once a Drain comes
// back empty, so targets added by a failing pass are still attempted.
func (l *PostHocList) Drive(process func(*graph.Target) error) error {
	var errs *multierror.Error
	for {
		batch := l.Drain()
		if len(batch) == 0 {
			return errs.ErrorOrNil()
		}
		for _, t := range batch {
			if err := process(t); err != nil {
				errs = multierror.Append(errs, diag.Failf("post-hoc prerequisite %s: %s", t, err))
			}
		}
	}
}
