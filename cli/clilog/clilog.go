// Package clilog builds the logger for long-running commands from their
// logging options.
package clilog

import (
	"context"
	"io"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/xerrors"
	"gopkg.in/natefinch/lumberjack.v2"

	"cdr.dev/slog/v3"
	"cdr.dev/slog/v3/sloggers/sloghuman"
	"cdr.dev/slog/v3/sloggers/slogjson"
	"github.com/coder/serpent"
)

type (
	Option  func(*Builder)
	Builder struct {
		Filter  []string
		Human   string
		JSON    string
		Verbose bool
	}
)

func New(opts ...Option) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func WithFilter(filters ...string) Option {
	return func(b *Builder) {
		b.Filter = filters
	}
}

func WithHuman(loc string) Option {
	return func(b *Builder) {
		b.Human = loc
	}
}

func WithJSON(loc string) Option {
	return func(b *Builder) {
		b.JSON = loc
	}
}

func WithVerbose(verbose bool) Option {
	return func(b *Builder) {
		b.Verbose = verbose
	}
}

// Options returns the serpent options that configure b. Flags and
// environment variables are prefixed with envPrefix.
func (b *Builder) Options(envPrefix string) serpent.OptionSet {
	return serpent.OptionSet{
		{
			Name:        "Verbose",
			Description: "Output debug-level logs.",
			Flag:        "verbose",
			Env:         envPrefix + "VERBOSE",
			YAML:        "verbose",
			Default:     "false",
			Value:       serpent.BoolOf(&b.Verbose),
		},
		{
			Name:        "Human Log Location",
			Description: "Output human-readable logs to a given file. Use /dev/stdout or /dev/stderr for the terminal.",
			Flag:        "log-human",
			Env:         envPrefix + "LOGGING_HUMAN",
			YAML:        "humanPath",
			Default:     "/dev/stderr",
			Value:       serpent.StringOf(&b.Human),
		},
		{
			Name:        "JSON Log Location",
			Description: "Output JSON logs to a given file.",
			Flag:        "log-json",
			Env:         envPrefix + "LOGGING_JSON",
			YAML:        "jsonPath",
			Default:     "",
			Value:       serpent.StringOf(&b.JSON),
		},
		{
			Name:        "Log Filter",
			Description: "Filter debug logs by matching against a given regex. Use .* to match all debug logs.",
			Flag:        "log-filter",
			Env:         envPrefix + "LOG_FILTER",
			YAML:        "filter",
			Value:       serpent.StringArrayOf(&b.Filter),
		},
	}
}

// Build creates the logger. The returned func closes any log files and must
// be called once the logger is no longer used.
func (b *Builder) Build(inv *serpent.Invocation) (log slog.Logger, closeLog func(), err error) {
	var (
		sinks   = []slog.Sink{}
		closers = []func() error{}
	)
	defer func() {
		if err != nil {
			for _, closer := range closers {
				_ = closer()
			}
		}
	}()

	noopClose := func() {}
	addSink := func(sinkFn func(io.Writer) slog.Sink, loc string) {
		switch loc {
		case "", "/dev/null":
		case "/dev/stdout":
			sinks = append(sinks, sinkFn(inv.Stdout))
		case "/dev/stderr":
			sinks = append(sinks, sinkFn(inv.Stderr))
		default:
			logWriter := &LumberjackWriteCloseFixer{Writer: &lumberjack.Logger{
				Filename: loc,
				MaxSize:  5, // MB
				// Without this, rotated logs will never be deleted.
				MaxBackups: 1,
			}}
			closers = append(closers, logWriter.Close)
			sinks = append(sinks, sinkFn(logWriter))
		}
	}
	addSink(sloghuman.Sink, b.Human)
	addSink(slogjson.Sink, b.JSON)

	filter := &debugFilterSink{next: sinks}
	if err := filter.compile(b.Filter); err != nil {
		return slog.Logger{}, noopClose, xerrors.Errorf("compile filters: %w", err)
	}

	level := slog.LevelInfo
	// Debug logging is always enabled if a filter is present.
	if b.Verbose || filter.re != nil {
		level = slog.LevelDebug
	}
	return slog.Make(filter).Leveled(level), func() {
		for _, closer := range closers {
			_ = closer()
		}
	}, nil
}

var _ slog.Sink = &debugFilterSink{}

type debugFilterSink struct {
	next []slog.Sink
	re   *regexp.Regexp
}

func (f *debugFilterSink) compile(res []string) error {
	if len(res) == 0 {
		return nil
	}

	var reb strings.Builder
	for i, re := range res {
		_, _ = reb.WriteString("(" + re + ")")
		if i != len(res)-1 {
			_, _ = reb.WriteRune('|')
		}
	}

	re, err := regexp.Compile(reb.String())
	if err != nil {
		return xerrors.Errorf("compile regex: %w", err)
	}
	f.re = re
	return nil
}

func (f *debugFilterSink) LogEntry(ctx context.Context, ent slog.SinkEntry) {
	if ent.Level == slog.LevelDebug {
		logName := strings.Join(ent.LoggerNames, ".")
		if f.re != nil && !f.re.MatchString(logName) && !f.re.MatchString(ent.Message) {
			return
		}
	}
	for _, sink := range f.next {
		sink.LogEntry(ctx, ent)
	}
}

func (f *debugFilterSink) Sync() {
	for _, sink := range f.next {
		sink.Sync()
	}
}

// LumberjackWriteCloseFixer is a wrapper around an io.WriteCloser that
// prevents writes after Close. This is necessary because lumberjack
// re-opens the file on Write.
type LumberjackWriteCloseFixer struct {
	Writer io.WriteCloser

	mu     sync.Mutex // Protects following.
	closed bool
}

func (c *LumberjackWriteCloseFixer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.Writer.Close()
}

func (c *LumberjackWriteCloseFixer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, io.ErrClosedPipe
	}
	return c.Writer.Write(p)
}
