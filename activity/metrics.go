package activity

import (
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/xerrors"
)

const defaultNamespace = "vscode"

var (
	fileLabelNames     = []string{"project", "folder", "file", "extension", "language"}
	documentLabelNames = []string{"project", "folder", "file", "language", "is_untitled"}
	notebookLabelNames = []string{"project", "folder", "file", "type", "is_untitled"}
	uriLabelNames      = []string{"project", "folder", "name"}
	renameLabelNames   = []string{"old_project", "new_project", "old_folder", "new_folder", "old_name", "new_name"}
	debugLabelNames    = []string{"id", "name", "type", "folder"}
	taskLabelNames     = []string{"name", "type", "source", "is_background"}
)

// Metrics are the series written by the Engine.
type Metrics struct {
	// Editor accrual.
	editingSeconds   *prometheus.CounterVec
	idleSeconds      *prometheus.CounterVec
	debuggingSeconds *prometheus.CounterVec
	compilingSeconds *prometheus.CounterVec
	lines            *prometheus.GaugeVec

	// Debug.
	debugSecondsTotal   *prometheus.CounterVec
	debugSecondsActive  *prometheus.CounterVec
	debugSessionsActive *prometheus.GaugeVec
	debugCustomEvents   *prometheus.CounterVec
	breakpointsActive   prometheus.Gauge
	breakpointsEnabled  prometheus.Gauge

	// Tasks.
	tasksSecondsTotal  *prometheus.CounterVec
	tasksActive        *prometheus.GaugeVec
	tasksProcessActive *prometheus.GaugeVec
	tasksProcessTotal  *prometheus.CounterVec

	// Window.
	editorSecondsActive   *prometheus.CounterVec
	editorEdits           *prometheus.CounterVec
	editorLines           *prometheus.GaugeVec
	editorCharacters      *prometheus.GaugeVec
	editorsVisible        *prometheus.GaugeVec
	notebookSecondsActive *prometheus.CounterVec
	notebookEdits         *prometheus.CounterVec
	notebookCells         *prometheus.GaugeVec
	notebooksVisible      *prometheus.GaugeVec
	notebookSecondsOpen   *prometheus.CounterVec
	notebooksOpen         *prometheus.GaugeVec
	terminalSecondsActive *prometheus.CounterVec
	terminalSecondsTotal  *prometheus.CounterVec
	terminalsActive       *prometheus.GaugeVec
	focusedSecondsActive  *prometheus.CounterVec

	// Workspace.
	filesAdded             *prometheus.CounterVec
	filesRemoved           *prometheus.CounterVec
	filesRenamed           *prometheus.CounterVec
	documentsOpened        *prometheus.CounterVec
	documentsClosed        *prometheus.CounterVec
	documentsSaved         *prometheus.CounterVec
	notebooksOpened        *prometheus.CounterVec
	notebooksClosed        *prometheus.CounterVec
	notebooksSaved         *prometheus.CounterVec
	foldersAdded           *prometheus.CounterVec
	foldersRemoved         *prometheus.CounterVec
	trustGrants            *prometheus.CounterVec
	editorContentChanges   *prometheus.CounterVec
	notebookContentChanges *prometheus.CounterVec
	notebookCellChanges    *prometheus.CounterVec

	// Engine.
	eventsTotal   *prometheus.CounterVec
	eventsDropped prometheus.Counter
	idle          prometheus.Gauge
}

// NewMetrics creates the Engine's series under namespace. An empty
// namespace uses "vscode".
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	counter := func(name, help string, labels []string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: name, Help: help,
		}, labels)
	}
	gauge := func(name, help string, labels []string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: name, Help: help,
		}, labels)
	}
	workspace := func(name, help string, labels []string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "workspace", Name: name, Help: help,
		}, labels)
	}

	return &Metrics{
		editingSeconds:   counter("editing_seconds", "Seconds spent editing a file.", fileLabelNames),
		idleSeconds:      counter("idle_seconds", "Seconds a file was focused while the user was idle.", fileLabelNames),
		debuggingSeconds: counter("debugging_seconds", "Seconds a file was focused while a debug session was live.", fileLabelNames),
		compilingSeconds: counter("compiling_seconds", "Seconds a file was focused while a task was running.", fileLabelNames),
		lines:            gauge("lines_total", "Line count of a file when it was last billed.", fileLabelNames),

		debugSecondsTotal:   counter("debug_seconds_total", "Lifetime of ended debug sessions in seconds.", debugLabelNames),
		debugSecondsActive:  counter("debug_seconds_active", "Seconds a debug session was the active one.", debugLabelNames),
		debugSessionsActive: gauge("debug_sessions_active", "Live debug sessions.", debugLabelNames),
		debugCustomEvents:   counter("debug_custom_events", "Custom events received from debug adapters.", debugLabelNames),
		breakpointsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "breakpoints_active", Help: "Breakpoints set.",
		}),
		breakpointsEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "breakpoints_enabled", Help: "Breakpoints set and enabled.",
		}),

		tasksSecondsTotal:  counter("tasks_seconds_total", "Lifetime of ended tasks in seconds.", taskLabelNames),
		tasksActive:        gauge("tasks_active", "Running tasks.", taskLabelNames),
		tasksProcessActive: gauge("tasks_process_active", "Running task processes.", taskLabelNames),
		tasksProcessTotal:  counter("tasks_process_total", "Ended task processes by exit code.", append(append([]string{}, taskLabelNames...), "exit_code")),

		editorSecondsActive:   counter("editor_seconds_active", "Seconds a document was the active editor.", documentLabelNames),
		editorEdits:           counter("editors_edits_total", "Document versions observed between focus changes.", documentLabelNames),
		editorLines:           gauge("editor_lines", "Line count of the active document.", documentLabelNames),
		editorCharacters:      gauge("editor_characters", "Character count of the active document.", documentLabelNames),
		editorsVisible:        gauge("editors_visible", "Visible text editors.", documentLabelNames),
		notebookSecondsActive: counter("notebooks_seconds_active", "Seconds a notebook was the active editor.", notebookLabelNames),
		notebookEdits:         counter("notebooks_edits_total", "Notebook versions observed between focus changes.", notebookLabelNames),
		notebookCells:         gauge("notebooks_cells", "Cell count of the active notebook.", notebookLabelNames),
		notebooksVisible:      gauge("notebooks_visible", "Visible notebook editors.", notebookLabelNames),
		notebookSecondsOpen:   counter("notebooks_seconds_open_total", "Seconds closed notebooks were open.", notebookLabelNames),
		notebooksOpen:         gauge("notebooks_open", "Open notebooks.", notebookLabelNames),
		terminalSecondsActive: counter("terminals_seconds_active", "Seconds a terminal was the active one.", []string{"name"}),
		terminalSecondsTotal:  counter("terminals_seconds_total", "Lifetime of closed terminals in seconds.", []string{"name", "exit_code"}),
		terminalsActive:       gauge("terminals_active", "Open terminals.", []string{"name"}),
		focusedSecondsActive:  counter("seconds_active", "Seconds the host window spent focused and unfocused.", []string{"focused"}),

		filesAdded:             workspace("files_added", "Files created.", uriLabelNames),
		filesRemoved:           workspace("files_removed", "Files deleted.", uriLabelNames),
		filesRenamed:           workspace("files_renamed", "Files renamed or moved.", renameLabelNames),
		documentsOpened:        workspace("documents_opened", "Documents opened.", documentLabelNames),
		documentsClosed:        workspace("documents_closed", "Documents closed.", documentLabelNames),
		documentsSaved:         workspace("documents_saved", "Documents saved.", documentLabelNames),
		notebooksOpened:        workspace("notebooks_opened", "Notebooks opened.", notebookLabelNames),
		notebooksClosed:        workspace("notebooks_closed", "Notebooks closed.", notebookLabelNames),
		notebooksSaved:         workspace("notebooks_saved", "Notebooks saved.", notebookLabelNames),
		foldersAdded:           workspace("folders_added", "Workspace folders added.", uriLabelNames),
		foldersRemoved:         workspace("folders_removed", "Workspace folders removed.", uriLabelNames),
		trustGrants:            workspace("trust_grants", "Workspace trust grants.", []string{"project"}),
		editorContentChanges:   counter("editors_content_changes_total", "Content changes applied to documents.", documentLabelNames),
		notebookContentChanges: counter("notebooks_content_changes_total", "Content changes applied to notebooks.", notebookLabelNames),
		notebookCellChanges:    counter("notebooks_cell_changes_total", "Cell changes applied to notebooks.", notebookLabelNames),

		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exporter",
			Name:      "events_total",
			Help:      "Events processed by type.",
		}, []string{"type"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exporter",
			Name:      "events_dropped_total",
			Help:      "Events dropped because the queue was full.",
		}),
		idle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "exporter",
			Name:      "idle",
			Help:      "1 while the user is considered idle.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.editingSeconds, m.idleSeconds, m.debuggingSeconds, m.compilingSeconds, m.lines,
		m.debugSecondsTotal, m.debugSecondsActive, m.debugSessionsActive, m.debugCustomEvents,
		m.breakpointsActive, m.breakpointsEnabled,
		m.tasksSecondsTotal, m.tasksActive, m.tasksProcessActive, m.tasksProcessTotal,
		m.editorSecondsActive, m.editorEdits, m.editorLines, m.editorCharacters, m.editorsVisible,
		m.notebookSecondsActive, m.notebookEdits, m.notebookCells, m.notebooksVisible,
		m.notebookSecondsOpen, m.notebooksOpen,
		m.terminalSecondsActive, m.terminalSecondsTotal, m.terminalsActive, m.focusedSecondsActive,
		m.filesAdded, m.filesRemoved, m.filesRenamed,
		m.documentsOpened, m.documentsClosed, m.documentsSaved,
		m.notebooksOpened, m.notebooksClosed, m.notebooksSaved,
		m.foldersAdded, m.foldersRemoved, m.trustGrants,
		m.editorContentChanges, m.notebookContentChanges, m.notebookCellChanges,
		m.eventsTotal, m.eventsDropped, m.idle,
	}
}

func (m *Metrics) register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return xerrors.Errorf("register collector: %w", err)
		}
	}
	return nil
}
