package activity

import (
	"context"
	"time"

	"cdr.dev/slog/v3"
)

type activeDebugSession struct {
	labels  []string
	started time.Time
}

func (e *Engine) onDebugSessionStarted(ctx context.Context, ev DebugSessionStarted) {
	now := e.now()
	if prev, ok := e.sessions.debug.end(ev.Session.ID); ok {
		e.finishDebugSession(prev, now)
	}
	s := newDebugSession(ev.Session, now)
	e.sessions.debug.start(ev.Session.ID, s)
	e.metrics.debugSessionsActive.WithLabelValues(s.labels...).Inc()
	e.refresh(ctx)
}

func (e *Engine) onDebugSessionEnded(ctx context.Context, ev DebugSessionEnded) {
	s, ok := e.sessions.debug.end(ev.Session.ID)
	if !ok {
		e.log.Debug(ctx, "dropped end for unknown debug session", slog.F("id", ev.Session.ID))
		return
	}
	e.finishDebugSession(s, e.now())
	e.refresh(ctx)
}

func (e *Engine) finishDebugSession(s *debugSession, now time.Time) {
	addSeconds(e.metrics.debugSecondsTotal.WithLabelValues(s.labels...), now.Sub(s.started))
	e.metrics.debugSessionsActive.WithLabelValues(s.labels...).Dec()
}

// onDebugSessionFocusChanged bills the previously active debug session for
// the time it held focus.
func (e *Engine) onDebugSessionFocusChanged(ctx context.Context, ev DebugSessionFocusChanged) {
	now := e.now()
	if prev := e.debugFocus; prev != nil {
		addSeconds(e.metrics.debugSecondsActive.WithLabelValues(prev.labels...), now.Sub(prev.started))
		e.debugFocus = nil
	}
	if ev.Session != nil {
		e.debugFocus = &activeDebugSession{
			labels:  newDebugSession(*ev.Session, now).labels,
			started: now,
		}
	}
	e.refresh(ctx)
}

func (e *Engine) onDebugCustomEvent(ctx context.Context, ev DebugCustomEvent) {
	s, ok := e.sessions.debug.get(ev.Session.ID)
	if !ok {
		e.log.Debug(ctx, "dropped custom event for unknown debug session", slog.F("id", ev.Session.ID))
		return
	}
	e.metrics.debugCustomEvents.WithLabelValues(s.labels...).Inc()
}

func (e *Engine) onBreakpointsChanged(ctx context.Context, ev BreakpointsChanged) {
	e.sessions.breakpoints.apply(ev.Added, ev.Removed, ev.Changed)
	total, enabled := e.sessions.breakpoints.counts()
	e.metrics.breakpointsActive.Set(float64(total))
	e.metrics.breakpointsEnabled.Set(float64(enabled))
	e.refresh(ctx)
}
