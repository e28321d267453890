package process

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// atExitOnce arranges a single signal handler for the whole process,
// replacing please's cli.AtExit (that package is out of scope here -- see
// DESIGN.md). On SIGINT or SIGTERM the subprocesses of every live Executor
// are killed and the process exits with status 1; the signal is not
// re-raised.
var (
	atExitOnce      sync.Once
	atExitMu        sync.Mutex
	atExitExecutors []*Executor
)

func registerForAtExit(e *Executor) {
	atExitMu.Lock()
	atExitExecutors = append(atExitExecutors, e)
	atExitMu.Unlock()

	atExitOnce.Do(func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-ch
			atExitMu.Lock()
			executors := append([]*Executor{}, atExitExecutors...)
			atExitMu.Unlock()
			for _, e := range executors {
				e.killAll()
			}
			signal.Stop(ch)
			os.Exit(1)
		}()
	})
}
