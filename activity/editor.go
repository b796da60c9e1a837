package activity

import (
	"context"
	"time"

	"cdr.dev/slog/v3"
)

// shadow is the last billed observation of the focused document.
type shadow struct {
	doc       Document
	heartbeat time.Time
	debugging bool
	compiling bool
}

// observation is a candidate for billing: a document plus the overlay
// flags in effect when it was seen.
type observation struct {
	doc       Document
	debugging bool
	compiling bool
}

// observeKind is what caused an observation.
type observeKind int

const (
	observeFocus observeKind = iota
	observeWrite
	observeRefresh
)

func (s shadow) observation() observation {
	return observation{doc: s.doc, debugging: s.debugging, compiling: s.compiling}
}

func (e *Engine) onFocusChanged(ctx context.Context, ev FocusChanged) {
	e.switchEditor(ev.Document, e.now())
	if ev.Document == nil {
		return
	}
	e.observe(ctx, *ev.Document, observeFocus)
}

func (e *Engine) onDocumentSaved(ctx context.Context, ev DocumentSaved) {
	e.metrics.documentsSaved.WithLabelValues(documentLabelValues(ev.Document, e.roots)...).Inc()

	// A save is a write to the focused document. The saved document is
	// only billed directly when it is the focused one.
	target := e.shadow.doc
	if target.Path == "" || target.Path == ev.Document.Path {
		target = ev.Document
	}
	e.observe(ctx, target, observeWrite)
}

// refresh re-evaluates the focused document after the debugging or
// compiling flags may have changed.
func (e *Engine) refresh(ctx context.Context) {
	if e.shadow.doc.Path == "" {
		return
	}
	e.observe(ctx, e.shadow.doc, observeRefresh)
}

// observe handles a focus or content observation of doc.
func (e *Engine) observe(ctx context.Context, doc Document, kind observeKind) {
	now := e.now()
	obs := observation{
		doc:       doc,
		debugging: e.sessions.debugging(),
		compiling: e.sessions.compiling(),
	}
	if kind != observeFocus && e.blurred() {
		// Only focus brings a blurred window back. The span is still billed
		// so overlay flags change at the right time.
		e.accrue(ctx, obs, now)
		e.lastIdle = true
		return
	}
	if !e.shouldRegister(obs, kind == observeWrite, now) {
		// The user is active even though nothing is billed yet.
		e.armWatchdog(e.idleTimeout)
		return
	}

	e.setIdle(false)
	e.accrue(ctx, obs, now)
	e.lastIdle = false
}

// blurred reports whether the engine is idle because the host window lost
// focus.
func (e *Engine) blurred() bool {
	return e.idle && e.idleOnBlur && !e.focus.focused
}

func (e *Engine) shouldRegister(obs observation, write bool, now time.Time) bool {
	switch {
	case write, e.idle:
		return true
	case e.shadow.heartbeat.Add(e.minRegistrationInterval).Before(now):
		return true
	case obs.doc.Path != e.shadow.doc.Path:
		return true
	case obs.debugging != e.shadow.debugging, obs.compiling != e.shadow.compiling:
		return true
	default:
		return false
	}
}

// accrue bills the time since the last heartbeat, replaces the shadow with
// obs and rearms the watchdog. Time is billed to the shadow's document and
// flags when the focus moved, since that is what was active during the
// span.
func (e *Engine) accrue(ctx context.Context, obs observation, now time.Time) {
	elapsed := wholeSeconds(now.Sub(e.shadow.heartbeat))
	idle := e.idle || e.lastIdle

	switch {
	case e.shadow.doc.Path == "":
	case e.shadow.doc.Path == obs.doc.Path:
		e.bill(ctx, obs, elapsed, idle)
	default:
		e.bill(ctx, e.shadow.observation(), elapsed, idle)
	}

	e.shadow = shadow{
		doc:       obs.doc,
		heartbeat: now,
		debugging: obs.debugging,
		compiling: obs.compiling,
	}
	if e.idle {
		e.armWatchdog(e.idleHeartbeatInterval)
	} else {
		e.armWatchdog(e.idleTimeout)
	}
}

func (e *Engine) bill(ctx context.Context, obs observation, elapsed int64, idle bool) {
	if obs.doc.Untitled && !e.includeUntitled {
		return
	}
	labels := fileLabelValues(DeriveLabels(obs.doc.Path, e.roots), obs.doc.Language)
	e.metrics.lines.WithLabelValues(labels...).Set(float64(obs.doc.Lines))
	if elapsed <= 0 {
		return
	}

	seconds := float64(elapsed)
	if idle {
		e.metrics.idleSeconds.WithLabelValues(labels...).Add(seconds)
	} else {
		e.metrics.editingSeconds.WithLabelValues(labels...).Add(seconds)
	}
	if obs.debugging {
		e.metrics.debuggingSeconds.WithLabelValues(labels...).Add(seconds)
	}
	if obs.compiling {
		e.metrics.compilingSeconds.WithLabelValues(labels...).Add(seconds)
	}
	e.log.Debug(ctx, "billed activity",
		slog.F("path", obs.doc.Path),
		slog.F("seconds", elapsed),
		slog.F("idle", idle),
		slog.F("debugging", obs.debugging),
		slog.F("compiling", obs.compiling),
	)
}

func (e *Engine) setIdle(idle bool) {
	e.idle = idle
	if idle {
		e.metrics.idle.Set(1)
	} else {
		e.metrics.idle.Set(0)
	}
}

// wholeSeconds truncates d to whole seconds, clamping negative spans to
// zero.
func wholeSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}
