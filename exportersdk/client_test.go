package exportersdk_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3/sloggers/slogtest"
	"github.com/coder/activity-exporter/exportersdk"
	"github.com/coder/activity-exporter/testutil"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func newClient(t *testing.T, handler http.Handler) *exportersdk.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	client := exportersdk.New(u)
	client.Logger = slogtest.Make(t, nil)
	client.LogBodies = true
	return client
}

func TestClient(t *testing.T) {
	t.Parallel()

	t.Run("PostEvents", func(t *testing.T) {
		t.Parallel()

		batchID := uuid.New()
		client := newClient(t, http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v1/events", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var req exportersdk.PostEventsRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Len(t, req.Events, 2)

			rw.Header().Set("Content-Type", "application/json")
			rw.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(rw).Encode(exportersdk.PostEventsResponse{
				BatchID:  batchID,
				Accepted: len(req.Events),
			})
		}))

		ctx := testutil.Context(t, testutil.WaitShort)
		res, err := client.PostEvents(ctx, exportersdk.PostEventsRequest{
			Events: []exportersdk.Event{
				{Type: exportersdk.EventTypeFocusChanged, Document: &exportersdk.Document{Path: "/ws/a.go"}},
				{Type: exportersdk.EventTypeWorkspaceTrustGranted},
			},
		})
		require.NoError(t, err)
		require.Equal(t, batchID, res.BatchID)
		require.Equal(t, 2, res.Accepted)
	})

	t.Run("ErrorResponse", func(t *testing.T) {
		t.Parallel()

		client := newClient(t, http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
			rw.Header().Set("Content-Type", "application/json")
			rw.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(rw).Encode(exportersdk.Response{
				Message: "Validation failed.",
				Validations: []exportersdk.ValidationError{
					{Field: "events", Detail: "required"},
				},
			})
		}))

		ctx := testutil.Context(t, testutil.WaitShort)
		_, err := client.PostEvents(ctx, exportersdk.PostEventsRequest{})
		var sdkErr *exportersdk.Error
		require.True(t, xerrors.As(err, &sdkErr))
		require.Equal(t, http.StatusBadRequest, sdkErr.StatusCode())
		require.Len(t, sdkErr.Validations, 1)
	})

	t.Run("State", func(t *testing.T) {
		t.Parallel()

		client := newClient(t, http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/state", r.URL.Path)
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(exportersdk.State{Idle: true, Document: "/ws/a.go"})
		}))

		ctx := testutil.Context(t, testutil.WaitShort)
		st, err := client.State(ctx)
		require.NoError(t, err)
		require.True(t, st.Idle)
		require.Equal(t, "/ws/a.go", st.Document)
	})
}

func TestStreamEvents(t *testing.T) {
	t.Parallel()

	received := make(chan exportersdk.Event, 1)
	client := newClient(t, http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if !assert.Equal(t, "/api/v1/events/stream", r.URL.Path) {
			rw.WriteHeader(http.StatusNotFound)
			return
		}
		conn, err := websocket.Accept(rw, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		var ev exportersdk.Event
		if assert.NoError(t, wsjson.Read(r.Context(), conn, &ev)) {
			received <- ev
		}
		// Wait for the client to hang up.
		_, _, _ = conn.Read(context.Background())
	}))

	ctx := testutil.Context(t, testutil.WaitShort)
	stream, err := client.StreamEvents(ctx)
	require.NoError(t, err)

	focused := true
	require.NoError(t, stream.Send(ctx, exportersdk.Event{Type: exportersdk.EventTypeWindowFocusChanged, Focused: &focused}))
	ev := testutil.RequireReceive(ctx, t, received)
	require.Equal(t, exportersdk.EventTypeWindowFocusChanged, ev.Type)
	require.NotNil(t, ev.Focused)
	require.True(t, *ev.Focused)
	_ = stream.Close()
}
