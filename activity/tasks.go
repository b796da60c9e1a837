package activity

import (
	"context"
	"time"

	"cdr.dev/slog/v3"
)

func (e *Engine) onTaskStarted(ctx context.Context, ev TaskStarted) {
	now := e.now()
	key := ev.Task.key()
	if prev, ok := e.sessions.tasks.end(key); ok {
		e.finishTask(prev, now)
	}
	s := newTaskSession(ev.Task, now)
	e.sessions.tasks.start(key, s)
	e.metrics.tasksActive.WithLabelValues(s.labels...).Inc()
	e.refresh(ctx)
}

func (e *Engine) onTaskEnded(ctx context.Context, ev TaskEnded) {
	s, ok := e.sessions.tasks.end(ev.Task.key())
	if !ok {
		e.log.Debug(ctx, "dropped end for unknown task", slog.F("task", ev.Task.key()))
		return
	}
	e.finishTask(s, e.now())
	e.refresh(ctx)
}

func (e *Engine) finishTask(s *taskSession, now time.Time) {
	addSeconds(e.metrics.tasksSecondsTotal.WithLabelValues(s.labels...), now.Sub(s.started))
	e.metrics.tasksActive.WithLabelValues(s.labels...).Dec()
	if s.processes > 0 {
		e.metrics.tasksProcessActive.WithLabelValues(s.labels...).Sub(float64(s.processes))
		s.processes = 0
	}
}

func (e *Engine) onTaskProcessStarted(ctx context.Context, ev TaskProcessStarted) {
	s, ok := e.sessions.tasks.get(ev.Task.key())
	if !ok {
		e.log.Debug(ctx, "dropped process start for unknown task", slog.F("task", ev.Task.key()))
		return
	}
	s.processes++
	e.metrics.tasksProcessActive.WithLabelValues(s.labels...).Inc()
}

func (e *Engine) onTaskProcessEnded(ctx context.Context, ev TaskProcessEnded) {
	s, ok := e.sessions.tasks.get(ev.Task.key())
	if !ok {
		e.log.Debug(ctx, "dropped process end for unknown task", slog.F("task", ev.Task.key()))
		return
	}
	labels := append(append([]string{}, s.labels...), exitCodeLabel(ev.ExitCode))
	e.metrics.tasksProcessTotal.WithLabelValues(labels...).Inc()
	if s.processes > 0 {
		s.processes--
		e.metrics.tasksProcessActive.WithLabelValues(s.labels...).Dec()
	}
}
