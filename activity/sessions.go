package activity

import (
	"sort"
	"time"
)

// registry holds live sessions of one kind keyed by their host identity.
// Sessions are removed only by an explicit end; a session whose end event
// never arrives stays live until the Engine stops.
type registry[K comparable, S any] struct {
	live map[K]*S
}

func newRegistry[K comparable, S any]() *registry[K, S] {
	return &registry[K, S]{live: make(map[K]*S)}
}

func (r *registry[K, S]) start(key K, s *S) {
	r.live[key] = s
}

func (r *registry[K, S]) get(key K) (*S, bool) {
	s, ok := r.live[key]
	return s, ok
}

// end removes the session and returns it if it was live.
func (r *registry[K, S]) end(key K) (*S, bool) {
	s, ok := r.live[key]
	if ok {
		delete(r.live, key)
	}
	return s, ok
}

func (r *registry[K, S]) len() int {
	return len(r.live)
}

type debugSession struct {
	DebugSession
	labels  []string
	started time.Time
}

func newDebugSession(s DebugSession, now time.Time) *debugSession {
	return &debugSession{
		DebugSession: s,
		labels:       []string{s.ID, s.Name, s.Type, s.Folder},
		started:      now,
	}
}

type taskSession struct {
	Task
	labels    []string
	started   time.Time
	processes int
}

func newTaskSession(t Task, now time.Time) *taskSession {
	return &taskSession{
		Task:    t,
		labels:  []string{t.Name, t.Type, t.Source, boolLabel(t.Background)},
		started: now,
	}
}

type terminalSession struct {
	Terminal
	started time.Time
}

type notebookSession struct {
	Notebook
	labels  []string
	started time.Time
}

// breakpointSet is the live set of breakpoints. Counts are always derived
// from the set itself.
type breakpointSet map[string]bool

// apply reconciles a delta. Removed and changed ids are dropped first, then
// changed and added breakpoints are inserted with their current state.
func (b breakpointSet) apply(added, removed, changed []Breakpoint) {
	for _, bp := range removed {
		delete(b, bp.ID)
	}
	for _, bp := range changed {
		delete(b, bp.ID)
	}
	for _, bp := range changed {
		b[bp.ID] = bp.Enabled
	}
	for _, bp := range added {
		b[bp.ID] = bp.Enabled
	}
}

func (b breakpointSet) counts() (total, enabled int) {
	for _, on := range b {
		if on {
			enabled++
		}
	}
	return len(b), enabled
}

// sessions is the Session State Store.
type sessions struct {
	debug       *registry[string, debugSession]
	tasks       *registry[string, taskSession]
	terminals   *registry[int, terminalSession]
	notebooks   *registry[string, notebookSession]
	breakpoints breakpointSet
}

func newSessions() *sessions {
	return &sessions{
		debug:       newRegistry[string, debugSession](),
		tasks:       newRegistry[string, taskSession](),
		terminals:   newRegistry[int, terminalSession](),
		notebooks:   newRegistry[string, notebookSession](),
		breakpoints: breakpointSet{},
	}
}

// debugging reports whether any debug session is live.
func (s *sessions) debugging() bool {
	return s.debug.len() > 0
}

// compiling reports whether any task is running.
func (s *sessions) compiling() bool {
	return s.tasks.len() > 0
}

// keys returns the sorted identities of a registry, for snapshots.
func keys[K comparable, S any](r *registry[K, S], name func(K, *S) string) []string {
	out := make([]string, 0, r.len())
	for k, s := range r.live {
		out = append(out, name(k, s))
	}
	sort.Strings(out)
	return out
}
