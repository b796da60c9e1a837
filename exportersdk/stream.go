package exportersdk

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/xerrors"
)

// EventStream sends events over a single websocket. Each event is one text
// frame. The daemon closes the stream with StatusPolicyViolation when it
// receives an invalid event.
type EventStream struct {
	conn *websocket.Conn
}

// StreamEvents opens an event stream to the daemon.
func (c *Client) StreamEvents(ctx context.Context) (*EventStream, error) {
	serverURL, err := c.URL.Parse("/api/v1/events/stream")
	if err != nil {
		return nil, xerrors.Errorf("parse url: %w", err)
	}
	//nolint:bodyclose
	conn, res, err := websocket.Dial(ctx, serverURL.String(), &websocket.DialOptions{
		HTTPClient: c.HTTPClient,
	})
	if err != nil {
		if res == nil {
			return nil, xerrors.Errorf("dial event stream: %w", err)
		}
		return nil, ReadBodyAsError(res)
	}
	if res.StatusCode != http.StatusSwitchingProtocols {
		_ = conn.Close(websocket.StatusInternalError, "")
		return nil, xerrors.Errorf("unexpected status %d", res.StatusCode)
	}
	// Reading is only needed to observe the daemon closing the stream.
	_ = conn.CloseRead(context.Background())
	return &EventStream{conn: conn}, nil
}

// Send writes ev to the stream.
func (s *EventStream) Send(ctx context.Context, ev Event) error {
	return wsjson.Write(ctx, s.conn, ev)
}

// Close closes the stream normally.
func (s *EventStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
