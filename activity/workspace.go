package activity

import (
	"context"
	"path/filepath"
	"time"

	"cdr.dev/slog/v3"
)

func (e *Engine) onFilesCreated(ev FilesCreated) {
	for _, path := range ev.Paths {
		e.metrics.filesAdded.WithLabelValues(uriLabelValues(path, e.roots)...).Inc()
	}
}

func (e *Engine) onFilesDeleted(ev FilesDeleted) {
	for _, path := range ev.Paths {
		e.metrics.filesRemoved.WithLabelValues(uriLabelValues(path, e.roots)...).Inc()
	}
}

func (e *Engine) onFilesRenamed(ev FilesRenamed) {
	for _, r := range ev.Renames {
		oldLabels := DeriveLabels(r.OldPath, e.roots)
		newLabels := DeriveLabels(r.NewPath, e.roots)
		e.metrics.filesRenamed.WithLabelValues(
			oldLabels.Project, newLabels.Project,
			oldLabels.Folder, newLabels.Folder,
			oldLabels.File, newLabels.File,
		).Inc()
	}
}

func (e *Engine) onDocumentChanged(ev DocumentChanged) {
	if ev.ContentChanges <= 0 {
		return
	}
	e.metrics.editorContentChanges.WithLabelValues(documentLabelValues(ev.Document, e.roots)...).Add(float64(ev.ContentChanges))
}

func (e *Engine) onNotebookOpened(ev NotebookOpened) {
	labels := notebookLabelValues(ev.Notebook, e.roots)
	e.metrics.notebooksOpened.WithLabelValues(labels...).Inc()

	now := e.now()
	if prev, ok := e.sessions.notebooks.end(ev.Notebook.Path); ok {
		e.finishNotebook(prev, now)
	}
	e.sessions.notebooks.start(ev.Notebook.Path, &notebookSession{Notebook: ev.Notebook, labels: labels, started: now})
	e.metrics.notebooksOpen.WithLabelValues(labels...).Inc()
}

func (e *Engine) onNotebookClosed(ev NotebookClosed) {
	e.metrics.notebooksClosed.WithLabelValues(notebookLabelValues(ev.Notebook, e.roots)...).Inc()
	if s, ok := e.sessions.notebooks.end(ev.Notebook.Path); ok {
		e.finishNotebook(s, e.now())
	}
}

func (e *Engine) finishNotebook(s *notebookSession, now time.Time) {
	addSeconds(e.metrics.notebookSecondsOpen.WithLabelValues(s.labels...), now.Sub(s.started))
	e.metrics.notebooksOpen.WithLabelValues(s.labels...).Dec()
}

func (e *Engine) onNotebookChanged(ev NotebookChanged) {
	labels := notebookLabelValues(ev.Notebook, e.roots)
	if ev.ContentChanges > 0 {
		e.metrics.notebookContentChanges.WithLabelValues(labels...).Add(float64(ev.ContentChanges))
	}
	if ev.CellChanges > 0 {
		e.metrics.notebookCellChanges.WithLabelValues(labels...).Add(float64(ev.CellChanges))
	}
}

// onWorkspaceFoldersChanged counts the change and updates the roots used
// for every later label derivation.
func (e *Engine) onWorkspaceFoldersChanged(ctx context.Context, ev WorkspaceFoldersChanged) {
	for _, f := range ev.Removed {
		e.metrics.foldersRemoved.WithLabelValues(folderLabelValues(f)...).Inc()
		e.removeRoot(f)
	}
	for _, f := range ev.Added {
		e.metrics.foldersAdded.WithLabelValues(folderLabelValues(f)...).Inc()
		e.removeRoot(f)
		e.roots = append(e.roots, f)
	}
	e.log.Debug(ctx, "workspace folders changed", slog.F("roots", e.roots))
}

func (e *Engine) removeRoot(f WorkspaceFolder) {
	kept := e.roots[:0]
	for _, root := range e.roots {
		if filepath.Clean(root.Path) == filepath.Clean(f.Path) {
			continue
		}
		kept = append(kept, root)
	}
	e.roots = kept
}

func folderLabelValues(f WorkspaceFolder) []string {
	l := DeriveLabels(f.Path, nil)
	return []string{f.Name, l.Folder, l.File}
}

// activeProject is the project of the focused document, falling back to
// the active notebook.
func (e *Engine) activeProject() string {
	if e.shadow.doc.Path != "" {
		return DeriveLabels(e.shadow.doc.Path, e.roots).Project
	}
	if e.notebook != nil {
		return DeriveLabels(e.notebook.nb.Path, e.roots).Project
	}
	return ""
}
