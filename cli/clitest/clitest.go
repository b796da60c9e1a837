// Package clitest runs the activity-exporter command tree in tests.
package clitest

import (
	"bytes"
	"context"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/coder/activity-exporter/activity"
	"github.com/coder/activity-exporter/cli"
	"github.com/coder/activity-exporter/exporterd"
	"github.com/coder/activity-exporter/testutil"
	"github.com/coder/quartz"
	"github.com/coder/serpent"
)

// Buffer is a bytes.Buffer safe for a command writing while the test reads.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Output captures what an invocation writes.
type Output struct {
	Stdout Buffer
	Stderr Buffer
}

// New creates an invocation of the root command with args. The environment
// starts empty so the host's variables do not leak in.
func New(t testing.TB, args ...string) (*serpent.Invocation, *Output) {
	t.Helper()

	var root cli.RootCmd
	cmd := root.Command()
	out := &Output{}
	inv := cmd.Invoke(args...)
	inv.Stdout = &out.Stdout
	inv.Stderr = &out.Stderr
	inv.Environ = serpent.Environ{}
	return inv, out
}

// Start runs inv in the background. The result is sent on the returned
// channel.
func Start(t testing.TB, inv *serpent.Invocation) <-chan error {
	t.Helper()

	errCh := make(chan error, 1)
	go func() {
		errCh <- inv.Run()
	}()
	return errCh
}

// Exporter is an in-process daemon for commands that talk to one.
type Exporter struct {
	URL    *url.URL
	Engine *activity.Engine
	Clock  *quartz.Mock
	API    *exporterd.API
}

// NewExporter starts an engine on a mock clock behind an httptest server.
func NewExporter(t testing.TB, opts ...activity.Option) *Exporter {
	t.Helper()

	logger := testutil.Logger(t)
	mClock := quartz.NewMock(t)
	reg := prometheus.NewRegistry()
	opts = append([]activity.Option{
		activity.WithLogger(logger.Named("activity")),
		activity.WithClock(mClock),
	}, opts...)
	engine, closeEngine, err := activity.NewEngine(context.Background(), reg, opts...)
	require.NoError(t, err)
	t.Cleanup(closeEngine)

	api := exporterd.New(&exporterd.Options{
		Logger:     logger.Named("exporterd"),
		Engine:     engine,
		Gatherer:   reg,
		Registerer: reg,
		Clock:      mClock,
	})
	srv := httptest.NewServer(api.Handler)
	t.Cleanup(func() {
		_ = api.Close()
		srv.Close()
	})

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return &Exporter{
		URL:    u,
		Engine: engine,
		Clock:  mClock,
		API:    api,
	}
}
