package activity

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"
)

const (
	// DefaultIdleTimeout is how long the user may go without a registered
	// observation before being considered idle.
	DefaultIdleTimeout = 60 * time.Second
	// DefaultIdleHeartbeatInterval is how often idle time is flushed while
	// the user stays idle.
	DefaultIdleHeartbeatInterval = 15 * time.Second
	// DefaultMinRegistrationInterval bounds how often an unchanged focus is
	// re-billed.
	DefaultMinRegistrationInterval = 15 * time.Second

	defaultQueueSize = 1024
)

// ErrClosed is returned when submitting to an Engine that has stopped.
var ErrClosed = xerrors.New("activity engine closed")

// Engine turns host events into duration and count metrics. All state is
// owned by a single goroutine that drains one ordered queue; the idle
// watchdog feeds its ticks into the same queue.
type Engine struct {
	log     slog.Logger
	clock   quartz.Clock
	metrics *Metrics

	namespace               string
	idleTimeout             time.Duration
	idleHeartbeatInterval   time.Duration
	minRegistrationInterval time.Duration
	includeUntitled         bool
	idleOnBlur              bool
	queueSize               int

	events chan envelope
	ctx    context.Context

	// Fields below are owned by the run goroutine.
	roots    []WorkspaceFolder
	sessions *sessions
	shadow   shadow
	// idle is true between an idle transition and the next registered
	// observation. lastIdle records whether the most recent accrual was an
	// idle one, so the first span after idling is billed to idle too.
	idle       bool
	lastIdle   bool
	watchdog   *quartz.Timer
	generation uint64

	editor     *activeEditor
	notebook   *activeNotebook
	terminal   *activeTerminal
	debugFocus *activeDebugSession
	focus      focusWindow
}

type envelope struct {
	event Event
	done  chan struct{}
}

// Option is a functional option for configuring an Engine.
type Option func(e *Engine)

func WithLogger(log slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

func WithClock(clock quartz.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithNamespace sets the metric namespace. Defaults to "vscode".
func WithNamespace(namespace string) Option {
	return func(e *Engine) {
		e.namespace = namespace
	}
}

func WithIdleTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.idleTimeout = d
	}
}

func WithIdleHeartbeatInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.idleHeartbeatInterval = d
	}
}

func WithMinRegistrationInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.minRegistrationInterval = d
	}
}

// WithIncludeUntitled bills time spent in untitled documents.
func WithIncludeUntitled(include bool) Option {
	return func(e *Engine) {
		e.includeUntitled = include
	}
}

// WithIdleOnBlur makes the host window losing focus an immediate idle
// transition.
func WithIdleOnBlur(enabled bool) Option {
	return func(e *Engine) {
		e.idleOnBlur = enabled
	}
}

func WithWorkspaceFolders(folders ...WorkspaceFolder) Option {
	return func(e *Engine) {
		e.roots = append([]WorkspaceFolder(nil), folders...)
	}
}

func WithQueueSize(size int) Option {
	return func(e *Engine) {
		e.queueSize = size
	}
}

// NewEngine creates an Engine, registers its metrics with reg and starts it.
// The returned func stops the Engine and waits for it to exit.
func NewEngine(ctx context.Context, reg prometheus.Registerer, opts ...Option) (*Engine, func(), error) {
	e := &Engine{
		log:                     slog.Logger{},
		clock:                   quartz.NewReal(),
		idleTimeout:             DefaultIdleTimeout,
		idleHeartbeatInterval:   DefaultIdleHeartbeatInterval,
		minRegistrationInterval: DefaultMinRegistrationInterval,
		idleOnBlur:              true,
		queueSize:               defaultQueueSize,
		sessions:                newSessions(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.idleTimeout <= 0 || e.idleHeartbeatInterval <= 0 || e.minRegistrationInterval < 0 {
		return nil, nil, xerrors.Errorf("invalid intervals: idle timeout %s, idle heartbeat %s, min registration %s",
			e.idleTimeout, e.idleHeartbeatInterval, e.minRegistrationInterval)
	}
	if e.queueSize <= 0 {
		e.queueSize = defaultQueueSize
	}

	e.metrics = NewMetrics(e.namespace)
	if err := e.metrics.register(reg); err != nil {
		return nil, nil, xerrors.Errorf("register metrics: %w", err)
	}

	e.events = make(chan envelope, e.queueSize)
	e.focus = focusWindow{focused: true, since: e.clock.Now("activity", "start")}

	cancelCtx, cancelFunc := context.WithCancel(ctx)
	e.ctx = cancelCtx
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.run(cancelCtx)
	}()

	closer := func() {
		cancelFunc()
		<-done
	}
	return e, closer, nil
}

// Enqueue queues an event without blocking. If the queue is full the event
// is dropped and false is returned.
func (e *Engine) Enqueue(ev Event) bool {
	select {
	case <-e.ctx.Done():
		return false
	default:
	}
	select {
	case e.events <- envelope{event: ev}:
		return true
	default:
		e.metrics.eventsDropped.Inc()
		e.log.Warn(e.ctx, "event queue at capacity, dropped event",
			slog.F("type", ev.Type()),
			slog.F("queue_size", cap(e.events)),
		)
		return false
	}
}

// Submit queues an event and waits until it has been processed.
func (e *Engine) Submit(ctx context.Context, ev Event) error {
	done := make(chan struct{})
	select {
	case e.events <- envelope{event: ev, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.ctx.Done():
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.ctx.Done():
		return ErrClosed
	}
}

// Sync waits until every event queued before the call has been processed.
func (e *Engine) Sync(ctx context.Context) error {
	_, err := e.State(ctx)
	return err
}

// State returns a snapshot of the Engine, taken by the processing loop
// after every previously queued event.
func (e *Engine) State(ctx context.Context) (State, error) {
	reply := make(chan State, 1)
	if err := e.Submit(ctx, stateRequest{reply: reply}); err != nil {
		return State{}, err
	}
	return <-reply, nil
}

// QueueDepth is the number of events waiting to be processed.
func (e *Engine) QueueDepth() int {
	return len(e.events)
}

func (e *Engine) run(ctx context.Context) {
	defer e.stopWatchdog()
	for {
		select {
		case <-ctx.Done():
			e.log.Debug(ctx, "context done, stopping activity engine")
			return
		case env := <-e.events:
			e.handle(ctx, env.event)
			if env.done != nil {
				close(env.done)
			}
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev Event) {
	if req, ok := ev.(stateRequest); ok {
		req.reply <- e.snapshot()
		return
	}

	e.log.Debug(ctx, "received event", slog.F("type", ev.Type()))
	e.metrics.eventsTotal.WithLabelValues(ev.Type()).Inc()

	switch ev := ev.(type) {
	case idleTick:
		e.onIdleTick(ctx, ev)
	case FocusChanged:
		e.onFocusChanged(ctx, ev)
	case DocumentSaved:
		e.onDocumentSaved(ctx, ev)
	case DocumentOpened:
		e.metrics.documentsOpened.WithLabelValues(documentLabelValues(ev.Document, e.roots)...).Inc()
	case DocumentClosed:
		e.metrics.documentsClosed.WithLabelValues(documentLabelValues(ev.Document, e.roots)...).Inc()
	case DocumentChanged:
		e.onDocumentChanged(ev)
	case VisibleEditorsChanged:
		e.onVisibleEditorsChanged(ev)
	case NotebookOpened:
		e.onNotebookOpened(ev)
	case NotebookClosed:
		e.onNotebookClosed(ev)
	case NotebookSaved:
		e.metrics.notebooksSaved.WithLabelValues(notebookLabelValues(ev.Notebook, e.roots)...).Inc()
	case NotebookChanged:
		e.onNotebookChanged(ev)
	case NotebookFocusChanged:
		e.switchNotebook(ev.Notebook, e.now())
	case VisibleNotebooksChanged:
		e.onVisibleNotebooksChanged(ev)
	case TaskStarted:
		e.onTaskStarted(ctx, ev)
	case TaskEnded:
		e.onTaskEnded(ctx, ev)
	case TaskProcessStarted:
		e.onTaskProcessStarted(ctx, ev)
	case TaskProcessEnded:
		e.onTaskProcessEnded(ctx, ev)
	case DebugSessionStarted:
		e.onDebugSessionStarted(ctx, ev)
	case DebugSessionEnded:
		e.onDebugSessionEnded(ctx, ev)
	case DebugSessionFocusChanged:
		e.onDebugSessionFocusChanged(ctx, ev)
	case DebugCustomEvent:
		e.onDebugCustomEvent(ctx, ev)
	case BreakpointsChanged:
		e.onBreakpointsChanged(ctx, ev)
	case TerminalOpened:
		e.onTerminalOpened(ctx, ev)
	case TerminalClosed:
		e.onTerminalClosed(ctx, ev)
	case TerminalFocusChanged:
		e.switchTerminal(ev.Terminal, e.now())
	case WindowFocusChanged:
		e.onWindowFocusChanged(ctx, ev)
	case FilesCreated:
		e.onFilesCreated(ev)
	case FilesDeleted:
		e.onFilesDeleted(ev)
	case FilesRenamed:
		e.onFilesRenamed(ev)
	case WorkspaceFoldersChanged:
		e.onWorkspaceFoldersChanged(ctx, ev)
	case WorkspaceTrustGranted:
		e.metrics.trustGrants.WithLabelValues(e.activeProject()).Inc()
	default:
		e.log.Warn(ctx, "dropped unknown event", slog.F("type", ev.Type()))
	}
}

func (e *Engine) now() time.Time {
	return e.clock.Now("activity", "now")
}

// addSeconds adds d to c, skipping non-positive durations.
func addSeconds(c prometheus.Counter, d time.Duration) {
	if d <= 0 {
		return
	}
	c.Add(d.Seconds())
}
