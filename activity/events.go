package activity

// Event is a host notification consumed by the Engine. Every event the
// Engine understands is declared in this file; others are dropped.
type Event interface {
	// Type is the stable name of the event, used for logging and the
	// events_total metric.
	Type() string
}

// Document describes a text document as last reported by the host.
type Document struct {
	Path       string
	Language   string
	Untitled   bool
	Lines      int
	Characters int
	Version    int
}

// Notebook describes a notebook document.
type Notebook struct {
	Path     string
	Type     string
	Untitled bool
	Cells    int
	Version  int
}

// Task identifies a task execution.
type Task struct {
	// ID is the host-assigned execution id. When empty, Name is used as the
	// identity.
	ID         string
	Name       string
	Type       string
	Source     string
	Background bool
}

func (t Task) key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.Name
}

// DebugSession identifies a debug session.
type DebugSession struct {
	ID     string
	Name   string
	Type   string
	Folder string
}

// Terminal identifies an integrated terminal by its shell pid.
type Terminal struct {
	PID  int
	Name string
}

// Breakpoint is a single breakpoint keyed by its host id.
type Breakpoint struct {
	ID      string
	Enabled bool
}

// Rename is a single file move.
type Rename struct {
	OldPath string
	NewPath string
}

type (
	// FocusChanged is sent on active editor and selection changes. A nil
	// Document means no text editor has focus.
	FocusChanged struct{ Document *Document }

	DocumentOpened struct{ Document Document }
	DocumentClosed struct{ Document Document }
	DocumentSaved  struct{ Document Document }

	DocumentChanged struct {
		Document       Document
		ContentChanges int
	}

	VisibleEditorsChanged struct{ Documents []Document }

	NotebookOpened struct{ Notebook Notebook }
	NotebookClosed struct{ Notebook Notebook }
	NotebookSaved  struct{ Notebook Notebook }

	NotebookChanged struct {
		Notebook       Notebook
		ContentChanges int
		CellChanges    int
	}

	// NotebookFocusChanged carries the active notebook, or nil when no
	// notebook editor has focus.
	NotebookFocusChanged struct{ Notebook *Notebook }

	VisibleNotebooksChanged struct{ Notebooks []Notebook }

	TaskStarted struct{ Task Task }
	TaskEnded   struct{ Task Task }

	TaskProcessStarted struct{ Task Task }
	TaskProcessEnded   struct {
		Task     Task
		ExitCode *int
	}

	DebugSessionStarted struct{ Session DebugSession }
	DebugSessionEnded   struct{ Session DebugSession }

	// DebugSessionFocusChanged carries the active debug session, or nil.
	DebugSessionFocusChanged struct{ Session *DebugSession }

	DebugCustomEvent struct {
		Session DebugSession
		Event   string
	}

	BreakpointsChanged struct {
		Added   []Breakpoint
		Removed []Breakpoint
		Changed []Breakpoint
	}

	TerminalOpened struct{ Terminal Terminal }
	TerminalClosed struct {
		Terminal Terminal
		ExitCode *int
	}

	// TerminalFocusChanged carries the active terminal, or nil.
	TerminalFocusChanged struct{ Terminal *Terminal }

	WindowFocusChanged struct{ Focused bool }

	FilesCreated struct{ Paths []string }
	FilesDeleted struct{ Paths []string }
	FilesRenamed struct{ Renames []Rename }

	WorkspaceFoldersChanged struct {
		Added   []WorkspaceFolder
		Removed []WorkspaceFolder
	}

	WorkspaceTrustGranted struct{}
)

// idleTick is produced by the idle watchdog. Ticks from a timer that has
// since been replaced carry a stale generation and are ignored.
type idleTick struct{ generation uint64 }

// stateRequest asks the loop for a snapshot.
type stateRequest struct{ reply chan State }

func (FocusChanged) Type() string             { return "focus_changed" }
func (DocumentOpened) Type() string           { return "document_opened" }
func (DocumentClosed) Type() string           { return "document_closed" }
func (DocumentSaved) Type() string            { return "document_saved" }
func (DocumentChanged) Type() string          { return "document_changed" }
func (VisibleEditorsChanged) Type() string    { return "visible_editors_changed" }
func (NotebookOpened) Type() string           { return "notebook_opened" }
func (NotebookClosed) Type() string           { return "notebook_closed" }
func (NotebookSaved) Type() string            { return "notebook_saved" }
func (NotebookChanged) Type() string          { return "notebook_changed" }
func (NotebookFocusChanged) Type() string     { return "notebook_focus_changed" }
func (VisibleNotebooksChanged) Type() string  { return "visible_notebooks_changed" }
func (TaskStarted) Type() string              { return "task_started" }
func (TaskEnded) Type() string                { return "task_ended" }
func (TaskProcessStarted) Type() string       { return "task_process_started" }
func (TaskProcessEnded) Type() string         { return "task_process_ended" }
func (DebugSessionStarted) Type() string      { return "debug_session_started" }
func (DebugSessionEnded) Type() string        { return "debug_session_ended" }
func (DebugSessionFocusChanged) Type() string { return "debug_session_focus_changed" }
func (DebugCustomEvent) Type() string         { return "debug_custom_event" }
func (BreakpointsChanged) Type() string       { return "breakpoints_changed" }
func (TerminalOpened) Type() string           { return "terminal_opened" }
func (TerminalClosed) Type() string           { return "terminal_closed" }
func (TerminalFocusChanged) Type() string     { return "terminal_focus_changed" }
func (WindowFocusChanged) Type() string       { return "window_focus_changed" }
func (FilesCreated) Type() string             { return "files_created" }
func (FilesDeleted) Type() string             { return "files_deleted" }
func (FilesRenamed) Type() string             { return "files_renamed" }
func (WorkspaceFoldersChanged) Type() string  { return "workspace_folders_changed" }
func (WorkspaceTrustGranted) Type() string    { return "workspace_trust_granted" }
func (idleTick) Type() string                 { return "idle_tick" }
func (stateRequest) Type() string             { return "state_request" }
