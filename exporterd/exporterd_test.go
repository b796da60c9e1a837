package exporterd_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/coder/activity-exporter/activity"
	"github.com/coder/activity-exporter/exporterd"
	"github.com/coder/activity-exporter/exportersdk"
	"github.com/coder/activity-exporter/testutil"
	"github.com/coder/quartz"
	"github.com/coder/websocket"
)

type harness struct {
	client *exportersdk.Client
	engine *activity.Engine
	clock  *quartz.Mock
	reg    *prometheus.Registry
	api    *exporterd.API
	url    *url.URL
}

func setup(t *testing.T, mutate ...func(*exporterd.Options)) *harness {
	t.Helper()

	logger := testutil.Logger(t)
	mClock := quartz.NewMock(t)
	reg := prometheus.NewRegistry()
	engine, closeEngine, err := activity.NewEngine(context.Background(), reg,
		activity.WithLogger(logger.Named("activity")),
		activity.WithClock(mClock),
		activity.WithWorkspaceFolders(activity.WorkspaceFolder{Name: "proj", Path: "/ws/proj"}),
	)
	require.NoError(t, err)
	t.Cleanup(closeEngine)

	opts := &exporterd.Options{
		Logger:     logger.Named("exporterd"),
		Engine:     engine,
		Gatherer:   reg,
		Registerer: reg,
		Clock:      mClock,
	}
	for _, m := range mutate {
		m(opts)
	}
	api := exporterd.New(opts)
	srv := httptest.NewServer(api.Handler)
	t.Cleanup(func() {
		_ = api.Close()
		srv.Close()
	})

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return &harness{
		client: exportersdk.New(u),
		engine: engine,
		clock:  mClock,
		reg:    reg,
		api:    api,
		url:    u,
	}
}

func focusEvent(path string) exportersdk.Event {
	return exportersdk.Event{
		Type:     exportersdk.EventTypeFocusChanged,
		Document: &exportersdk.Document{Path: path, Language: "go", Lines: 10},
	}
}

func TestPostEvents(t *testing.T) {
	t.Parallel()

	t.Run("Accepted", func(t *testing.T) {
		t.Parallel()
		h := setup(t)
		ctx := testutil.Context(t, testutil.WaitShort)

		res, err := h.client.PostEvents(ctx, exportersdk.PostEventsRequest{
			Events: []exportersdk.Event{focusEvent("/ws/proj/a.go")},
		})
		require.NoError(t, err)
		require.Equal(t, 1, res.Accepted)
		require.Zero(t, res.Dropped)
		require.NotEqual(t, uuid.Nil, res.BatchID)
		require.NoError(t, h.engine.Sync(ctx))

		h.clock.Advance(10 * time.Second).MustWait(ctx)
		res, err = h.client.PostEvents(ctx, exportersdk.PostEventsRequest{
			Events: []exportersdk.Event{focusEvent("/ws/proj/b.go")},
		})
		require.NoError(t, err)
		require.Equal(t, 1, res.Accepted)

		st, err := h.client.State(ctx)
		require.NoError(t, err)
		require.Equal(t, "/ws/proj/b.go", st.Document)
		require.Equal(t, []exportersdk.WorkspaceFolder{{Name: "proj", Path: "/ws/proj"}}, st.WorkspaceFolders)

		families := testutil.Gather(t, h.reg)
		require.True(t, testutil.PromCounterHasValue(t, families, 10, "vscode_editing_seconds", testutil.Labels{
			"project":   "proj",
			"folder":    "",
			"file":      "a.go",
			"extension": "go",
			"language":  "go",
		}))
	})

	t.Run("InvalidBatchNotApplied", func(t *testing.T) {
		t.Parallel()
		h := setup(t)
		ctx := testutil.Context(t, testutil.WaitShort)

		_, err := h.client.PostEvents(ctx, exportersdk.PostEventsRequest{
			Events: []exportersdk.Event{
				focusEvent("/ws/proj/a.go"),
				{Type: exportersdk.EventTypeDocumentSaved},
				{Type: "bogus"},
			},
		})
		var sdkErr *exportersdk.Error
		require.True(t, xerrors.As(err, &sdkErr))
		require.Equal(t, http.StatusBadRequest, sdkErr.StatusCode())
		require.Len(t, sdkErr.Validations, 2)
		require.Equal(t, "events[1].document", sdkErr.Validations[0].Field)
		require.Equal(t, "events[2].type", sdkErr.Validations[1].Field)

		st, err := h.client.State(ctx)
		require.NoError(t, err)
		require.Empty(t, st.Document)
	})

	t.Run("EmptyBatch", func(t *testing.T) {
		t.Parallel()
		h := setup(t)
		ctx := testutil.Context(t, testutil.WaitShort)

		_, err := h.client.PostEvents(ctx, exportersdk.PostEventsRequest{})
		var sdkErr *exportersdk.Error
		require.True(t, xerrors.As(err, &sdkErr))
		require.Equal(t, http.StatusBadRequest, sdkErr.StatusCode())
	})

	t.Run("Wait", func(t *testing.T) {
		t.Parallel()
		h := setup(t)
		ctx := testutil.Context(t, testutil.WaitShort)

		res, err := h.client.Request(ctx, http.MethodPost, "/api/v1/events", exportersdk.PostEventsRequest{
			Events: []exportersdk.Event{{Type: exportersdk.EventTypeWorkspaceTrustGranted}},
		}, exportersdk.WithQueryParam("wait", "true"))
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, http.StatusAccepted, res.StatusCode)

		// Waiting means the event is visible without a sync.
		families := testutil.Gather(t, h.reg)
		require.True(t, testutil.PromCounterHasValue(t, families, 1, "vscode_workspace_trust_grants", testutil.Labels{"project": ""}))
	})

	t.Run("BadWaitParam", func(t *testing.T) {
		t.Parallel()
		h := setup(t)
		ctx := testutil.Context(t, testutil.WaitShort)

		res, err := h.client.Request(ctx, http.MethodPost, "/api/v1/events", exportersdk.PostEventsRequest{
			Events: []exportersdk.Event{{Type: exportersdk.EventTypeWorkspaceTrustGranted}},
		}, exportersdk.WithQueryParam("wait", "sometimes"))
		require.NoError(t, err)
		err = exportersdk.ReadBodyAsError(res)
		var sdkErr *exportersdk.Error
		require.True(t, xerrors.As(err, &sdkErr))
		require.Equal(t, "wait", sdkErr.Validations[0].Field)
	})
}

func TestStreamEvents(t *testing.T) {
	t.Parallel()

	t.Run("Applied", func(t *testing.T) {
		t.Parallel()
		h := setup(t)
		ctx := testutil.Context(t, testutil.WaitShort)

		stream, err := h.client.StreamEvents(ctx)
		require.NoError(t, err)
		defer stream.Close()

		require.NoError(t, stream.Send(ctx, focusEvent("/ws/proj/a.go")))
		testutil.Eventually(ctx, t, func(ctx context.Context) bool {
			st, err := h.engine.State(ctx)
			return err == nil && st.Document == "/ws/proj/a.go"
		}, testutil.IntervalFast)
	})

	t.Run("InvalidEventClosesStream", func(t *testing.T) {
		t.Parallel()
		h := setup(t)
		ctx := testutil.Context(t, testutil.WaitShort)

		u := *h.url
		u.Path = "/api/v1/events/stream"
		//nolint:bodyclose
		conn, _, err := websocket.Dial(ctx, u.String(), nil)
		require.NoError(t, err)
		defer conn.Close(websocket.StatusNormalClosure, "")

		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"task_started"}`)))
		_, _, err = conn.Read(ctx)
		require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	})
}

func TestRoutes(t *testing.T) {
	t.Parallel()

	h := setup(t)
	ctx := testutil.Context(t, testutil.WaitShort)

	t.Run("RootRedirects", func(t *testing.T) {
		t.Parallel()
		client := &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url.String()+"/", nil)
		require.NoError(t, err)
		res, err := client.Do(req)
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, http.StatusTemporaryRedirect, res.StatusCode)
		require.Equal(t, "/metrics", res.Header.Get("Location"))
	})

	t.Run("Metrics", func(t *testing.T) {
		t.Parallel()
		res, err := h.client.Metrics(ctx)
		require.NoError(t, err)
		defer res.Body.Close()
		body, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), "vscode_exporter_idle")
	})

	t.Run("Healthz", func(t *testing.T) {
		t.Parallel()
		res, err := h.client.Healthcheck(ctx)
		require.NoError(t, err)
		require.True(t, res.Healthy)
	})

	t.Run("BuildInfo", func(t *testing.T) {
		t.Parallel()
		res, err := h.client.BuildInfo(ctx)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(res.Version, "v"), res.Version)
	})

	t.Run("NotFound", func(t *testing.T) {
		t.Parallel()
		res, err := h.client.Request(ctx, http.MethodGet, "/api/v1/nope", nil)
		require.NoError(t, err)
		err = exportersdk.ReadBodyAsError(res)
		var sdkErr *exportersdk.Error
		require.True(t, xerrors.As(err, &sdkErr))
		require.Equal(t, http.StatusNotFound, sdkErr.StatusCode())
	})
}

// stuckEngine never answers snapshot requests.
type stuckEngine struct {
	exporterd.Engine
}

func (stuckEngine) State(ctx context.Context) (activity.State, error) {
	<-ctx.Done()
	return activity.State{}, ctx.Err()
}

func TestHealthzTimeout(t *testing.T) {
	t.Parallel()

	ctx := testutil.Context(t, testutil.WaitShort)
	h := setup(t, func(o *exporterd.Options) {
		o.Engine = stuckEngine{Engine: o.Engine}
	})
	trap := h.clock.Trap().AfterFunc("exporterd", "healthz")
	defer trap.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := h.client.Healthcheck(ctx)
		errCh <- err
	}()
	trap.MustWait(ctx).MustRelease(ctx)
	h.clock.Advance(5 * time.Second).MustWait(ctx)

	err := testutil.RequireReceive(ctx, t, errCh)
	var sdkErr *exportersdk.Error
	require.ErrorAs(t, err, &sdkErr)
	require.Equal(t, http.StatusServiceUnavailable, sdkErr.StatusCode())
}

func TestCORS(t *testing.T) {
	t.Parallel()

	h := setup(t, func(o *exporterd.Options) {
		o.CORSAllowedOrigins = []string{"vscode-webview://extension"}
	})
	ctx := testutil.Context(t, testutil.WaitShort)

	res, err := h.client.Request(ctx, http.MethodOptions, "/api/v1/events", nil, func(r *http.Request) {
		r.Header.Set("Origin", "vscode-webview://extension")
		r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	})
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, "vscode-webview://extension", res.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer(t *testing.T) {
	t.Parallel()

	logger := testutil.Logger(t)
	engine, closeEngine, err := activity.NewEngine(context.Background(), prometheus.NewRegistry(),
		activity.WithClock(quartz.NewMock(t)),
	)
	require.NoError(t, err)
	defer closeEngine()

	api := exporterd.New(&exporterd.Options{
		Logger:   logger,
		Engine:   engine,
		Gatherer: prometheus.NewRegistry(),
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx := testutil.Context(t, testutil.WaitShort)
	srv := exporterd.Serve(ctx, logger, api, ln)

	u, err := url.Parse("http://" + srv.Addr().String())
	require.NoError(t, err)
	client := exportersdk.New(u)
	res, err := client.Healthcheck(ctx)
	require.NoError(t, err)
	require.True(t, res.Healthy)

	require.NoError(t, srv.Shutdown(ctx))
	testutil.TryReceive(ctx, t, srv.Done())
	require.NoError(t, srv.Err())
}
