package pipeline

import (
	"time"

	"github.com/haruue-net/wgveil/internal/session"
	"github.com/haruue-net/wgveil/internal/wglog"
)

// reapInterval is how often the engine scans the session table for idle
// peers (spec.md §4.7).
const reapInterval = 10 * time.Second

// reapIdle evicts every entry idle past the configured timeout,
// unregistering each from the poller before the table closes its upstream
// socket, so a racing Wait call never observes a dead file descriptor.
func (e *Engine) reapIdle() {
	n := e.table.ReapIdle(func(entry *session.Entry) bool {
		if entry.IdleFor() <= e.idleTimeout {
			return false
		}
		e.poller.Remove(entry)
		return true
	})
	if n > 0 {
		wglog.Debug("reaper: evicted %d idle session(s)", n)
	}
}

// runReaper drives reapIdle on a fixed interval for the dual-worker
// pipeline. ModeSingle's inline loop ticks its own timer instead.
func (e *Engine) runReaper() {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.shutdownCh:
			return
		case <-ticker.C:
			e.reapIdle()
		}
	}
}
