package pipeline

import "github.com/haruue-net/wgveil/internal/wglog"

// Run starts the engine and blocks until Stop is called. In ModeSingle it
// runs entirely on the calling goroutine (spec.md §5's single-core
// collapse); in ModeDual it spawns the ingress, worker, and reaper
// goroutines and blocks until the two ingress and two worker goroutines
// have exited; the reaper goroutine is not waited for.
func (e *Engine) Run() {
	wglog.Info("listening on %s, forwarding to %s, mode=%s", e.listenConn.LocalAddr(), e.forwardAddr, e.mode)

	if e.mode == ModeSingle {
		e.runInline()
		close(e.doneCh)
		return
	}

	const workerCount = 4
	finished := make(chan struct{}, workerCount)
	runners := []func(){e.runClientIngress, e.runServerIngress, e.runClientWorker, e.runServerWorker}
	for _, run := range runners {
		run := run
		go func() {
			run()
			finished <- struct{}{}
		}()
	}
	go e.runReaper()

	for i := 0; i < workerCount; i++ {
		<-finished
	}
	close(e.doneCh)
}

// Stop signals every engine goroutine to exit and closes the listening
// socket, unblocking any goroutine parked in a read. It does not wait for
// Run to return.
func (e *Engine) Stop() {
	close(e.shutdownCh)
	_ = e.listenConn.Close()
}

// Done returns a channel closed once Run has fully wound down, for
// callers that called Run in its own goroutine and need to wait for
// shutdown to complete.
func (e *Engine) Done() <-chan struct{} {
	return e.doneCh
}
