package exportersdk

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// PostEventsRequest is a batch of host events. A batch is applied only if
// every event in it is valid.
type PostEventsRequest struct {
	Events []Event `json:"events" validate:"required,min=1,dive"`
}

type PostEventsResponse struct {
	BatchID  uuid.UUID `json:"batch_id" format:"uuid"`
	Accepted int       `json:"accepted"`
	// Dropped counts events rejected because the engine queue was full.
	Dropped int `json:"dropped"`
}

// PostEvents submits a batch of events to the daemon.
func (c *Client) PostEvents(ctx context.Context, req PostEventsRequest) (PostEventsResponse, error) {
	return makeSDKRequest[PostEventsResponse](ctx, c, sdkRequestArgs{
		Method:     http.MethodPost,
		URL:        "/api/v1/events",
		Body:       req,
		ExpectCode: http.StatusAccepted,
	})
}

// State is a snapshot of the engine.
type State struct {
	Idle               bool              `json:"idle"`
	WindowFocused      bool              `json:"window_focused"`
	Document           string            `json:"document,omitempty"`
	Heartbeat          time.Time         `json:"heartbeat" format:"date-time"`
	Debugging          bool              `json:"debugging"`
	Compiling          bool              `json:"compiling"`
	ActiveEditor       string            `json:"active_editor,omitempty"`
	ActiveNotebook     string            `json:"active_notebook,omitempty"`
	ActiveTerminal     string            `json:"active_terminal,omitempty"`
	DebugSessions      []string          `json:"debug_sessions"`
	Tasks              []string          `json:"tasks"`
	Terminals          []string          `json:"terminals"`
	Notebooks          []string          `json:"notebooks"`
	Breakpoints        int               `json:"breakpoints"`
	EnabledBreakpoints int               `json:"enabled_breakpoints"`
	WorkspaceFolders   []WorkspaceFolder `json:"workspace_folders"`
}

// State returns the engine's current snapshot.
func (c *Client) State(ctx context.Context) (State, error) {
	return makeSDKRequest[State](ctx, c, sdkRequestArgs{
		Method:     http.MethodGet,
		URL:        "/api/v1/state",
		ExpectCode: http.StatusOK,
	})
}

// BuildInfoResponse contains build information for the running daemon.
type BuildInfoResponse struct {
	// ExternalURL references the current version. For production builds
	// this links to a release, for development builds to a commit.
	ExternalURL string `json:"external_url"`
	// Version returns the semantic version of the build.
	Version   string    `json:"version"`
	BuildTime time.Time `json:"build_time,omitempty" format:"date-time"`
}

func (c *Client) BuildInfo(ctx context.Context) (BuildInfoResponse, error) {
	return makeSDKRequest[BuildInfoResponse](ctx, c, sdkRequestArgs{
		Method:     http.MethodGet,
		URL:        "/api/v1/buildinfo",
		ExpectCode: http.StatusOK,
	})
}

// HealthcheckResponse is returned by /healthz.
type HealthcheckResponse struct {
	Healthy bool `json:"healthy"`
	// QueueDepth is the number of events waiting for the engine.
	QueueDepth int `json:"queue_depth"`
}

func (c *Client) Healthcheck(ctx context.Context) (HealthcheckResponse, error) {
	return makeSDKRequest[HealthcheckResponse](ctx, c, sdkRequestArgs{
		Method:     http.MethodGet,
		URL:        "/healthz",
		ExpectCode: http.StatusOK,
	})
}

// Metrics fetches the raw exposition text from /metrics.
func (c *Client) Metrics(ctx context.Context) (*http.Response, error) {
	res, err := c.Request(ctx, http.MethodGet, "/metrics", nil)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, ReadBodyAsError(res)
	}
	return res, nil
}
