package exportersdk

import (
	"encoding/json"
	"fmt"

	"github.com/coder/activity-exporter/activity"
)

type EventType string

const (
	EventTypeFocusChanged             EventType = "focus_changed"
	EventTypeDocumentOpened           EventType = "document_opened"
	EventTypeDocumentClosed           EventType = "document_closed"
	EventTypeDocumentSaved            EventType = "document_saved"
	EventTypeDocumentChanged          EventType = "document_changed"
	EventTypeVisibleEditorsChanged    EventType = "visible_editors_changed"
	EventTypeNotebookOpened           EventType = "notebook_opened"
	EventTypeNotebookClosed           EventType = "notebook_closed"
	EventTypeNotebookSaved            EventType = "notebook_saved"
	EventTypeNotebookChanged          EventType = "notebook_changed"
	EventTypeNotebookFocusChanged     EventType = "notebook_focus_changed"
	EventTypeVisibleNotebooksChanged  EventType = "visible_notebooks_changed"
	EventTypeTaskStarted              EventType = "task_started"
	EventTypeTaskEnded                EventType = "task_ended"
	EventTypeTaskProcessStarted       EventType = "task_process_started"
	EventTypeTaskProcessEnded         EventType = "task_process_ended"
	EventTypeDebugSessionStarted      EventType = "debug_session_started"
	EventTypeDebugSessionEnded        EventType = "debug_session_ended"
	EventTypeDebugSessionFocusChanged EventType = "debug_session_focus_changed"
	EventTypeDebugCustomEvent         EventType = "debug_custom_event"
	EventTypeBreakpointsChanged       EventType = "breakpoints_changed"
	EventTypeTerminalOpened           EventType = "terminal_opened"
	EventTypeTerminalClosed           EventType = "terminal_closed"
	EventTypeTerminalFocusChanged     EventType = "terminal_focus_changed"
	EventTypeWindowFocusChanged       EventType = "window_focus_changed"
	EventTypeFilesCreated             EventType = "files_created"
	EventTypeFilesDeleted             EventType = "files_deleted"
	EventTypeFilesRenamed             EventType = "files_renamed"
	EventTypeWorkspaceFoldersChanged  EventType = "workspace_folders_changed"
	EventTypeWorkspaceTrustGranted    EventType = "workspace_trust_granted"
)

type Document struct {
	Path       string `json:"path" validate:"required"`
	Language   string `json:"language,omitempty"`
	Untitled   bool   `json:"untitled,omitempty"`
	Lines      int    `json:"lines,omitempty" validate:"gte=0"`
	Characters int    `json:"characters,omitempty" validate:"gte=0"`
	Version    int    `json:"version,omitempty" validate:"gte=0"`
}

type Notebook struct {
	Path     string `json:"path" validate:"required"`
	Type     string `json:"type,omitempty"`
	Untitled bool   `json:"untitled,omitempty"`
	Cells    int    `json:"cells,omitempty" validate:"gte=0"`
	Version  int    `json:"version,omitempty" validate:"gte=0"`
}

type Task struct {
	// ID is the host execution id. Tasks without one are keyed by name.
	ID         string `json:"id,omitempty"`
	Name       string `json:"name" validate:"required"`
	Type       string `json:"type,omitempty"`
	Source     string `json:"source,omitempty"`
	Background bool   `json:"background,omitempty"`
}

type DebugSession struct {
	ID     string `json:"id" validate:"required"`
	Name   string `json:"name,omitempty"`
	Type   string `json:"type,omitempty"`
	Folder string `json:"folder,omitempty"`
}

type Terminal struct {
	PID  int    `json:"pid" validate:"gte=0"`
	Name string `json:"name,omitempty"`
}

type Breakpoint struct {
	ID      string `json:"id" validate:"required"`
	Enabled bool   `json:"enabled"`
}

type Rename struct {
	OldPath string `json:"old_path" validate:"required"`
	NewPath string `json:"new_path" validate:"required"`
}

type WorkspaceFolder struct {
	Name string `json:"name" validate:"required"`
	Path string `json:"path" validate:"required"`
}

// Event is a host notification on the wire. Type selects which payload
// fields are read. "added" and "removed" hold breakpoints for
// breakpoints_changed and workspace folders for workspace_folders_changed.
type Event struct {
	Type EventType `json:"type" validate:"required"`

	Document       *Document       `json:"document,omitempty"`
	Documents      []Document      `json:"documents,omitempty" validate:"dive"`
	Notebook       *Notebook       `json:"notebook,omitempty"`
	Notebooks      []Notebook      `json:"notebooks,omitempty" validate:"dive"`
	Task           *Task           `json:"task,omitempty"`
	DebugSession   *DebugSession   `json:"debug_session,omitempty"`
	CustomEvent    string          `json:"event,omitempty"`
	Terminal       *Terminal       `json:"terminal,omitempty"`
	ExitCode       *int            `json:"exit_code,omitempty"`
	Focused        *bool           `json:"focused,omitempty"`
	ContentChanges int             `json:"content_changes,omitempty" validate:"gte=0"`
	CellChanges    int             `json:"cell_changes,omitempty" validate:"gte=0"`
	Paths          []string        `json:"paths,omitempty" validate:"dive,required"`
	Renames        []Rename        `json:"renames,omitempty" validate:"dive"`
	Added          json.RawMessage `json:"added,omitempty"`
	Removed        json.RawMessage `json:"removed,omitempty"`
	Changed        []Breakpoint    `json:"changed,omitempty" validate:"dive"`
}

// Activity converts the wire event into the engine's event. Missing or
// malformed payloads are reported as a ValidationError naming the field.
func (e Event) Activity() (activity.Event, error) {
	switch e.Type {
	case EventTypeFocusChanged:
		return activity.FocusChanged{Document: optionalDocument(e.Document)}, nil
	case EventTypeDocumentOpened, EventTypeDocumentClosed, EventTypeDocumentSaved, EventTypeDocumentChanged:
		if e.Document == nil {
			return nil, missing("document", e.Type)
		}
		doc := e.Document.activity()
		switch e.Type {
		case EventTypeDocumentOpened:
			return activity.DocumentOpened{Document: doc}, nil
		case EventTypeDocumentClosed:
			return activity.DocumentClosed{Document: doc}, nil
		case EventTypeDocumentSaved:
			return activity.DocumentSaved{Document: doc}, nil
		default:
			return activity.DocumentChanged{Document: doc, ContentChanges: e.ContentChanges}, nil
		}
	case EventTypeVisibleEditorsChanged:
		docs := make([]activity.Document, 0, len(e.Documents))
		for _, d := range e.Documents {
			docs = append(docs, d.activity())
		}
		return activity.VisibleEditorsChanged{Documents: docs}, nil
	case EventTypeNotebookOpened, EventTypeNotebookClosed, EventTypeNotebookSaved, EventTypeNotebookChanged:
		if e.Notebook == nil {
			return nil, missing("notebook", e.Type)
		}
		nb := e.Notebook.activity()
		switch e.Type {
		case EventTypeNotebookOpened:
			return activity.NotebookOpened{Notebook: nb}, nil
		case EventTypeNotebookClosed:
			return activity.NotebookClosed{Notebook: nb}, nil
		case EventTypeNotebookSaved:
			return activity.NotebookSaved{Notebook: nb}, nil
		default:
			return activity.NotebookChanged{Notebook: nb, ContentChanges: e.ContentChanges, CellChanges: e.CellChanges}, nil
		}
	case EventTypeNotebookFocusChanged:
		var nb *activity.Notebook
		if e.Notebook != nil {
			v := e.Notebook.activity()
			nb = &v
		}
		return activity.NotebookFocusChanged{Notebook: nb}, nil
	case EventTypeVisibleNotebooksChanged:
		nbs := make([]activity.Notebook, 0, len(e.Notebooks))
		for _, nb := range e.Notebooks {
			nbs = append(nbs, nb.activity())
		}
		return activity.VisibleNotebooksChanged{Notebooks: nbs}, nil
	case EventTypeTaskStarted, EventTypeTaskEnded, EventTypeTaskProcessStarted, EventTypeTaskProcessEnded:
		if e.Task == nil {
			return nil, missing("task", e.Type)
		}
		task := activity.Task(*e.Task)
		switch e.Type {
		case EventTypeTaskStarted:
			return activity.TaskStarted{Task: task}, nil
		case EventTypeTaskEnded:
			return activity.TaskEnded{Task: task}, nil
		case EventTypeTaskProcessStarted:
			return activity.TaskProcessStarted{Task: task}, nil
		default:
			return activity.TaskProcessEnded{Task: task, ExitCode: e.ExitCode}, nil
		}
	case EventTypeDebugSessionStarted, EventTypeDebugSessionEnded, EventTypeDebugCustomEvent:
		if e.DebugSession == nil {
			return nil, missing("debug_session", e.Type)
		}
		session := activity.DebugSession(*e.DebugSession)
		switch e.Type {
		case EventTypeDebugSessionStarted:
			return activity.DebugSessionStarted{Session: session}, nil
		case EventTypeDebugSessionEnded:
			return activity.DebugSessionEnded{Session: session}, nil
		default:
			return activity.DebugCustomEvent{Session: session, Event: e.CustomEvent}, nil
		}
	case EventTypeDebugSessionFocusChanged:
		var session *activity.DebugSession
		if e.DebugSession != nil {
			v := activity.DebugSession(*e.DebugSession)
			session = &v
		}
		return activity.DebugSessionFocusChanged{Session: session}, nil
	case EventTypeBreakpointsChanged:
		var added, removed []Breakpoint
		if err := decodeList(e.Added, "added", &added); err != nil {
			return nil, err
		}
		if err := decodeList(e.Removed, "removed", &removed); err != nil {
			return nil, err
		}
		for field, bps := range map[string][]Breakpoint{"added": added, "removed": removed} {
			for _, bp := range bps {
				if bp.ID == "" {
					return nil, ValidationError{Field: field, Detail: "breakpoint id is required"}
				}
			}
		}
		return activity.BreakpointsChanged{
			Added:   breakpoints(added),
			Removed: breakpoints(removed),
			Changed: breakpoints(e.Changed),
		}, nil
	case EventTypeTerminalOpened, EventTypeTerminalClosed:
		if e.Terminal == nil {
			return nil, missing("terminal", e.Type)
		}
		term := activity.Terminal(*e.Terminal)
		if e.Type == EventTypeTerminalOpened {
			return activity.TerminalOpened{Terminal: term}, nil
		}
		return activity.TerminalClosed{Terminal: term, ExitCode: e.ExitCode}, nil
	case EventTypeTerminalFocusChanged:
		var term *activity.Terminal
		if e.Terminal != nil {
			v := activity.Terminal(*e.Terminal)
			term = &v
		}
		return activity.TerminalFocusChanged{Terminal: term}, nil
	case EventTypeWindowFocusChanged:
		if e.Focused == nil {
			return nil, missing("focused", e.Type)
		}
		return activity.WindowFocusChanged{Focused: *e.Focused}, nil
	case EventTypeFilesCreated:
		return activity.FilesCreated{Paths: e.Paths}, nil
	case EventTypeFilesDeleted:
		return activity.FilesDeleted{Paths: e.Paths}, nil
	case EventTypeFilesRenamed:
		renames := make([]activity.Rename, 0, len(e.Renames))
		for _, r := range e.Renames {
			renames = append(renames, activity.Rename(r))
		}
		return activity.FilesRenamed{Renames: renames}, nil
	case EventTypeWorkspaceFoldersChanged:
		var added, removed []WorkspaceFolder
		if err := decodeList(e.Added, "added", &added); err != nil {
			return nil, err
		}
		if err := decodeList(e.Removed, "removed", &removed); err != nil {
			return nil, err
		}
		for field, folders := range map[string][]WorkspaceFolder{"added": added, "removed": removed} {
			for _, f := range folders {
				if f.Path == "" {
					return nil, ValidationError{Field: field, Detail: "workspace folder path is required"}
				}
			}
		}
		return activity.WorkspaceFoldersChanged{
			Added:   WorkspaceFolders(added),
			Removed: WorkspaceFolders(removed),
		}, nil
	case EventTypeWorkspaceTrustGranted:
		return activity.WorkspaceTrustGranted{}, nil
	default:
		return nil, ValidationError{Field: "type", Detail: fmt.Sprintf("unknown event type %q", e.Type)}
	}
}

func (d Document) activity() activity.Document {
	return activity.Document(d)
}

func (n Notebook) activity() activity.Notebook {
	return activity.Notebook(n)
}

func optionalDocument(d *Document) *activity.Document {
	if d == nil {
		return nil
	}
	v := d.activity()
	return &v
}

func breakpoints(bps []Breakpoint) []activity.Breakpoint {
	out := make([]activity.Breakpoint, 0, len(bps))
	for _, bp := range bps {
		out = append(out, activity.Breakpoint(bp))
	}
	return out
}

// WorkspaceFolders converts wire folders to engine folders.
func WorkspaceFolders(folders []WorkspaceFolder) []activity.WorkspaceFolder {
	out := make([]activity.WorkspaceFolder, 0, len(folders))
	for _, f := range folders {
		out = append(out, activity.WorkspaceFolder(f))
	}
	return out
}

func decodeList(raw json.RawMessage, field string, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return ValidationError{Field: field, Detail: err.Error()}
	}
	return nil
}

func missing(field string, typ EventType) error {
	return ValidationError{Field: field, Detail: fmt.Sprintf("%s is required for %s events", field, typ)}
}
