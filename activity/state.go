package activity

import (
	"strconv"
	"time"
)

// State is a point-in-time view of the Engine.
type State struct {
	Idle               bool
	WindowFocused      bool
	Document           string
	Heartbeat          time.Time
	Debugging          bool
	Compiling          bool
	ActiveEditor       string
	ActiveNotebook     string
	ActiveTerminal     string
	DebugSessions      []string
	Tasks              []string
	Terminals          []string
	Notebooks          []string
	Breakpoints        int
	EnabledBreakpoints int
	WorkspaceFolders   []WorkspaceFolder
}

func (e *Engine) snapshot() State {
	total, enabled := e.sessions.breakpoints.counts()
	st := State{
		Idle:               e.idle,
		WindowFocused:      e.focus.focused,
		Document:           e.shadow.doc.Path,
		Heartbeat:          e.shadow.heartbeat,
		Debugging:          e.sessions.debugging(),
		Compiling:          e.sessions.compiling(),
		DebugSessions:      keys(e.sessions.debug, func(id string, _ *debugSession) string { return id }),
		Tasks:              keys(e.sessions.tasks, func(_ string, s *taskSession) string { return s.Name }),
		Terminals:          keys(e.sessions.terminals, func(pid int, s *terminalSession) string { return s.Name + " (" + strconv.Itoa(pid) + ")" }),
		Notebooks:          keys(e.sessions.notebooks, func(path string, _ *notebookSession) string { return path }),
		Breakpoints:        total,
		EnabledBreakpoints: enabled,
		WorkspaceFolders:   append([]WorkspaceFolder(nil), e.roots...),
	}
	if e.editor != nil {
		st.ActiveEditor = e.editor.doc.Path
	}
	if e.notebook != nil {
		st.ActiveNotebook = e.notebook.nb.Path
	}
	if e.terminal != nil {
		st.ActiveTerminal = e.terminal.name
	}
	return st
}
