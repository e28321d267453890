package context

import (
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
)

// Scheduler runs match/execute work across a bounded pool of goroutines,
// expanding and shrinking that bound as phases interleave (spec.md §5). The
// worker-queue shape -- a channel of func() tasks, with workers added and
// retired by sending a poison nil -- is grounded on please's core.Pool
// (src/core/pool.go). The default size is picked from the host's physical
// CPU count via gopsutil, the way please's core.BuildState.UpdateResources
// samples cpu.Counts.
//
// A Scheduler holds a single worker count and a single PushPhase stack.
// NewContext and NewNestedContext each start their own; a Scheduler driven
// by the phase mutexes of more than one Context is not supported, since
// their PushPhase/PopPhase calls would restore each other's saved counts.
type Scheduler struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu        sync.Mutex
	workers   int
	pushStack []int
}

// DefaultParallelism returns the host's physical CPU core count, falling back
// to runtime.NumCPU on error.
func DefaultParallelism() int {
	if n, err := cpu.Counts(false); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// NewScheduler starts a scheduler with the given number of workers (clamped
// to at least 1).
func NewScheduler(workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	s := &Scheduler{tasks: make(chan func()), workers: workers}
	for i := 0; i < workers; i++ {
		go s.run()
	}
	return s
}

func (s *Scheduler) run() {
	for f := range s.tasks {
		if f == nil {
			return
		}
		f()
	}
}

// Async submits f to run on some worker goroutine; Wait blocks until every
// f submitted so far has returned.
func (s *Scheduler) Async(f func()) {
	s.wg.Add(1)
	s.tasks <- func() {
		defer s.wg.Done()
		f()
	}
}

// Wait blocks until every task submitted via Async so far has returned.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) addWorker() {
	s.mu.Lock()
	s.workers++
	s.mu.Unlock()
	go s.run()
}

func (s *Scheduler) stopWorker() {
	s.mu.Lock()
	s.workers--
	s.mu.Unlock()
	go func() { s.tasks <- nil }()
}

// Deactivate steps one goroutine out of the active pool while it blocks on
// something other than scheduled work -- here, a phase switch. Adding a
// replacement worker keeps overall throughput roughly constant while the
// caller isn't producing any. external distinguishes a thread the scheduler
// never owned (e.g. the initial caller) from one of its own workers; this
// scheduler treats both the same today but keeps the parameter so
// phaseScheduler callers don't need to know that.
func (s *Scheduler) Deactivate(external bool) {
	s.addWorker()
}

// Activate reverses a prior Deactivate.
func (s *Scheduler) Activate(external bool) {
	s.stopWorker()
}

// PushPhase saves the current worker count when switching from match into
// execute, so PopPhase can restore it -- execute's own workload is
// generally less parallel-friendly (it's largely waiting on external
// processes) than the extra capacity match's phase-switch waiters borrowed.
func (s *Scheduler) PushPhase() {
	s.mu.Lock()
	s.pushStack = append(s.pushStack, s.workers)
	s.mu.Unlock()
}

// PopPhase restores the worker count saved by the matching PushPhase,
// undoing whatever net growth Deactivate/Activate left behind during the
// phase in between (e.g. execute's workers blocking on external processes).
func (s *Scheduler) PopPhase() {
	s.mu.Lock()
	n := len(s.pushStack)
	if n == 0 {
		s.mu.Unlock()
		return
	}
	target := s.pushStack[n-1]
	s.pushStack = s.pushStack[:n-1]
	current := s.workers
	s.mu.Unlock()

	for ; current > target; current-- {
		s.stopWorker()
	}
	for ; current < target; current++ {
		s.addWorker()
	}
}
