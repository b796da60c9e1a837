package exporterd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
	"github.com/coder/activity-exporter/activity"
	"github.com/coder/activity-exporter/buildinfo"
	"github.com/coder/activity-exporter/exporterd/httpapi"
	"github.com/coder/activity-exporter/exportersdk"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// convertEvents converts a whole batch, collecting every invalid event so
// the caller sees all problems at once.
func convertEvents(events []exportersdk.Event) ([]activity.Event, []exportersdk.ValidationError) {
	var (
		out         = make([]activity.Event, 0, len(events))
		validations []exportersdk.ValidationError
	)
	for i, ev := range events {
		converted, err := ev.Activity()
		if err != nil {
			var verr exportersdk.ValidationError
			if !xerrors.As(err, &verr) {
				verr = exportersdk.ValidationError{Field: "events", Detail: err.Error()}
			}
			verr.Field = fmt.Sprintf("events[%d].%s", i, verr.Field)
			validations = append(validations, verr)
			continue
		}
		out = append(out, converted)
	}
	return out, validations
}

func (api *API) postEvents(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	parser := httpapi.NewQueryParamParser()
	wait := parser.Boolean(r.URL.Query(), false, "wait")
	if len(parser.Errors) > 0 {
		httpapi.Write(ctx, rw, http.StatusBadRequest, exportersdk.Response{
			Message:     "Query parameters have invalid values.",
			Validations: parser.Errors,
		})
		return
	}

	var req exportersdk.PostEventsRequest
	if !httpapi.Read(ctx, rw, r, &req) {
		return
	}
	events, validations := convertEvents(req.Events)
	if len(validations) > 0 {
		httpapi.Write(ctx, rw, http.StatusBadRequest, exportersdk.Response{
			Message:     "Invalid events in batch, nothing was applied.",
			Validations: validations,
		})
		return
	}

	res := exportersdk.PostEventsResponse{BatchID: uuid.New()}
	var merr error
	for _, ev := range events {
		if wait {
			if err := api.Engine.Submit(ctx, ev); err != nil {
				merr = multierror.Append(merr, xerrors.Errorf("submit %s: %w", ev.Type(), err))
				res.Dropped++
				continue
			}
			res.Accepted++
			continue
		}
		if api.Engine.Enqueue(ev) {
			res.Accepted++
		} else {
			res.Dropped++
		}
	}
	if merr != nil {
		api.Logger.Warn(ctx, "submit events", slog.Error(merr))
		if xerrors.Is(merr, activity.ErrClosed) {
			httpapi.Write(ctx, rw, http.StatusServiceUnavailable, exportersdk.Response{
				Message: "The activity engine is shutting down.",
				Detail:  merr.Error(),
			})
			return
		}
	}
	api.Logger.Debug(ctx, "accepted event batch",
		slog.F("batch_id", res.BatchID),
		slog.F("accepted", res.Accepted),
		slog.F("dropped", res.Dropped),
	)
	httpapi.Write(ctx, rw, http.StatusAccepted, res)
}

func (api *API) streamEvents(rw http.ResponseWriter, r *http.Request) {
	if !api.trackWebsocket() {
		httpapi.Write(r.Context(), rw, http.StatusServiceUnavailable, exportersdk.Response{
			Message: "The server is shutting down.",
		})
		return
	}
	defer api.websocketWaitGroup.Done()

	conn, err := websocket.Accept(rw, r, nil)
	if err != nil {
		api.Logger.Debug(r.Context(), "accept event stream", slog.Error(err))
		return
	}
	// Scope the stream to the API so Close ends it.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-api.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	log := api.Logger.Named("stream")
	log.Debug(ctx, "event stream opened")
	var received int
	for {
		var wire exportersdk.Event
		err := wsjson.Read(ctx, conn, &wire)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				log.Debug(ctx, "event stream closed", slog.F("received", received))
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			log.Debug(ctx, "read event stream", slog.Error(err))
			_ = conn.Close(websocket.StatusPolicyViolation, httpapi.WebsocketCloseSprintf("read event: %s", err))
			return
		}

		if validations := httpapi.Validate(wire); len(validations) > 0 {
			_ = conn.Close(websocket.StatusPolicyViolation, httpapi.WebsocketCloseSprintf("invalid event: %s", validations[0]))
			return
		}
		ev, err := wire.Activity()
		if err != nil {
			_ = conn.Close(websocket.StatusPolicyViolation, httpapi.WebsocketCloseSprintf("invalid event: %s", err))
			return
		}
		received++
		// A full queue drops the event; the engine counts and logs it.
		_ = api.Engine.Enqueue(ev)
	}
}

func (api *API) state(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := api.Engine.State(ctx)
	if err != nil {
		httpapi.Write(ctx, rw, http.StatusServiceUnavailable, exportersdk.Response{
			Message: "Failed to read engine state.",
			Detail:  err.Error(),
		})
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, convertState(st))
}

const healthzTimeout = 5 * time.Second

func (api *API) healthz(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	timeout := api.Clock.AfterFunc(healthzTimeout, cancel, "exporterd", "healthz")
	defer timeout.Stop("exporterd", "healthz")

	res := exportersdk.HealthcheckResponse{
		Healthy:    true,
		QueueDepth: api.Engine.QueueDepth(),
	}
	status := http.StatusOK
	// A stuck loop cannot answer a snapshot request.
	if _, err := api.Engine.State(ctx); err != nil {
		res.Healthy = false
		status = http.StatusServiceUnavailable
	}
	httpapi.Write(ctx, rw, status, res)
}

func buildInfo(rw http.ResponseWriter, r *http.Request) {
	info := buildinfo.Current()
	httpapi.Write(r.Context(), rw, http.StatusOK, exportersdk.BuildInfoResponse{
		ExternalURL: info.ExternalURL,
		Version:     info.Version,
		BuildTime:   info.BuildTime,
	})
}

func convertState(st activity.State) exportersdk.State {
	folders := make([]exportersdk.WorkspaceFolder, 0, len(st.WorkspaceFolders))
	for _, f := range st.WorkspaceFolders {
		folders = append(folders, exportersdk.WorkspaceFolder(f))
	}
	return exportersdk.State{
		Idle:               st.Idle,
		WindowFocused:      st.WindowFocused,
		Document:           st.Document,
		Heartbeat:          st.Heartbeat,
		Debugging:          st.Debugging,
		Compiling:          st.Compiling,
		ActiveEditor:       st.ActiveEditor,
		ActiveNotebook:     st.ActiveNotebook,
		ActiveTerminal:     st.ActiveTerminal,
		DebugSessions:      st.DebugSessions,
		Tasks:              st.Tasks,
		Terminals:          st.Terminals,
		Notebooks:          st.Notebooks,
		Breakpoints:        st.Breakpoints,
		EnabledBreakpoints: st.EnabledBreakpoints,
		WorkspaceFolders:   folders,
	}
}
