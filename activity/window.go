package activity

import (
	"context"
	"strings"
	"time"

	"cdr.dev/slog/v3"
)

type activeEditor struct {
	doc     Document
	labels  []string
	started time.Time
}

type activeNotebook struct {
	nb      Notebook
	labels  []string
	started time.Time
}

type activeTerminal struct {
	name    string
	started time.Time
}

type focusWindow struct {
	focused bool
	since   time.Time
}

// switchEditor bills the previous active editor and records doc as the new
// one. A nil doc leaves no active editor.
func (e *Engine) switchEditor(doc *Document, now time.Time) {
	if prev := e.editor; prev != nil {
		addSeconds(e.metrics.editorSecondsActive.WithLabelValues(prev.labels...), now.Sub(prev.started))
		e.metrics.editorCharacters.WithLabelValues(prev.labels...).Set(float64(prev.doc.Characters))
		e.metrics.editorLines.WithLabelValues(prev.labels...).Set(float64(prev.doc.Lines))
		if doc != nil && doc.Path == prev.doc.Path && doc.Version > prev.doc.Version {
			e.metrics.editorEdits.WithLabelValues(prev.labels...).Add(float64(doc.Version - prev.doc.Version))
		}
		e.editor = nil
	}
	if doc == nil {
		return
	}
	e.editor = &activeEditor{
		doc:     *doc,
		labels:  documentLabelValues(*doc, e.roots),
		started: now,
	}
	e.metrics.editorCharacters.WithLabelValues(e.editor.labels...).Set(float64(doc.Characters))
	e.metrics.editorLines.WithLabelValues(e.editor.labels...).Set(float64(doc.Lines))
}

// switchNotebook is switchEditor for notebooks.
func (e *Engine) switchNotebook(nb *Notebook, now time.Time) {
	if prev := e.notebook; prev != nil {
		addSeconds(e.metrics.notebookSecondsActive.WithLabelValues(prev.labels...), now.Sub(prev.started))
		e.metrics.notebookCells.WithLabelValues(prev.labels...).Set(float64(prev.nb.Cells))
		if nb != nil && nb.Path == prev.nb.Path && nb.Version > prev.nb.Version {
			e.metrics.notebookEdits.WithLabelValues(prev.labels...).Add(float64(nb.Version - prev.nb.Version))
		}
		e.notebook = nil
	}
	if nb == nil {
		return
	}
	e.notebook = &activeNotebook{
		nb:      *nb,
		labels:  notebookLabelValues(*nb, e.roots),
		started: now,
	}
	e.metrics.notebookCells.WithLabelValues(e.notebook.labels...).Set(float64(nb.Cells))
}

func (e *Engine) switchTerminal(t *Terminal, now time.Time) {
	if prev := e.terminal; prev != nil {
		addSeconds(e.metrics.terminalSecondsActive.WithLabelValues(prev.name), now.Sub(prev.started))
		e.terminal = nil
	}
	if t == nil {
		return
	}
	e.terminal = &activeTerminal{name: t.Name, started: now}
}

func (e *Engine) onWindowFocusChanged(ctx context.Context, ev WindowFocusChanged) {
	now := e.now()
	addSeconds(e.metrics.focusedSecondsActive.WithLabelValues(boolLabel(e.focus.focused)), now.Sub(e.focus.since))
	if !ev.Focused {
		e.switchNotebook(nil, now)
		e.switchTerminal(nil, now)
		e.switchEditor(nil, now)
		if e.idleOnBlur {
			e.goIdle(ctx, now)
		}
	}
	e.focus = focusWindow{focused: ev.Focused, since: now}
}

func (e *Engine) onTerminalOpened(ctx context.Context, ev TerminalOpened) {
	if ev.Terminal.PID == 0 {
		e.log.Debug(ctx, "dropped terminal without pid", slog.F("name", ev.Terminal.Name))
		return
	}
	now := e.now()
	if prev, ok := e.sessions.terminals.end(ev.Terminal.PID); ok {
		// The pid was reused before we saw the previous terminal close.
		e.finishTerminal(prev, nil, now)
	}
	e.sessions.terminals.start(ev.Terminal.PID, &terminalSession{Terminal: ev.Terminal, started: now})
	e.metrics.terminalsActive.WithLabelValues(ev.Terminal.Name).Inc()
}

func (e *Engine) onTerminalClosed(ctx context.Context, ev TerminalClosed) {
	s, ok := e.sessions.terminals.end(ev.Terminal.PID)
	if !ok {
		e.log.Debug(ctx, "dropped close for unknown terminal", slog.F("pid", ev.Terminal.PID))
		return
	}
	e.finishTerminal(s, ev.ExitCode, e.now())
}

func (e *Engine) finishTerminal(s *terminalSession, exitCode *int, now time.Time) {
	addSeconds(e.metrics.terminalSecondsTotal.WithLabelValues(s.Name, exitCodeLabel(exitCode)), now.Sub(s.started))
	e.metrics.terminalsActive.WithLabelValues(s.Name).Dec()
}

// onVisibleEditorsChanged replaces the visible editor gauges with the
// current counts so editors that are no longer visible drop out.
func (e *Engine) onVisibleEditorsChanged(ev VisibleEditorsChanged) {
	counts := map[string][]string{}
	n := map[string]int{}
	for _, doc := range ev.Documents {
		labels := documentLabelValues(doc, e.roots)
		key := strings.Join(labels, "\x00")
		counts[key] = labels
		n[key]++
	}
	e.metrics.editorsVisible.Reset()
	for key, labels := range counts {
		e.metrics.editorsVisible.WithLabelValues(labels...).Set(float64(n[key]))
	}
}

func (e *Engine) onVisibleNotebooksChanged(ev VisibleNotebooksChanged) {
	counts := map[string][]string{}
	n := map[string]int{}
	for _, nb := range ev.Notebooks {
		labels := notebookLabelValues(nb, e.roots)
		key := strings.Join(labels, "\x00")
		counts[key] = labels
		n[key]++
	}
	e.metrics.notebooksVisible.Reset()
	for key, labels := range counts {
		e.metrics.notebooksVisible.WithLabelValues(labels...).Set(float64(n[key]))
	}
}
