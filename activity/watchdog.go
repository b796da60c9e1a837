package activity

import (
	"context"
	"time"

	"cdr.dev/slog/v3"
)

// armWatchdog replaces any pending idle timer with one firing after d.
// Each timer carries a generation so a tick that was already in flight when
// its timer was replaced is discarded by the loop.
func (e *Engine) armWatchdog(d time.Duration) {
	e.stopWatchdog()
	e.generation++
	generation := e.generation
	e.watchdog = e.clock.AfterFunc(d, func() {
		select {
		case e.events <- envelope{event: idleTick{generation: generation}}:
		case <-e.ctx.Done():
		}
	}, "activity", "watchdog")
}

func (e *Engine) stopWatchdog() {
	if e.watchdog == nil {
		return
	}
	e.watchdog.Stop("activity", "watchdog")
	e.watchdog = nil
}

// onIdleTick bills everything since the last heartbeat to idle against the
// shadow's own document, then keeps ticking at the heartbeat interval.
func (e *Engine) onIdleTick(ctx context.Context, tick idleTick) {
	if tick.generation != e.generation {
		e.log.Debug(ctx, "discarded stale idle tick",
			slog.F("generation", tick.generation),
			slog.F("current", e.generation),
		)
		return
	}
	e.watchdog = nil
	e.setIdle(true)
	e.accrue(ctx, e.shadow.observation(), e.now())
	e.lastIdle = true
}

// goIdle bills the span since the last heartbeat to the bucket that was in
// effect, then enters the idle state without waiting for the watchdog.
func (e *Engine) goIdle(ctx context.Context, now time.Time) {
	if e.idle {
		return
	}
	if e.shadow.doc.Path != "" {
		e.accrue(ctx, e.shadow.observation(), now)
	}
	e.setIdle(true)
	e.lastIdle = true
	if e.shadow.doc.Path != "" {
		e.armWatchdog(e.idleHeartbeatInterval)
	}
}
