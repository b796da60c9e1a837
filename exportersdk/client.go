package exportersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
)

// BypassRatelimitHeader is accepted by the daemon from loopback callers
// that need to replay large backlogs.
const BypassRatelimitHeader = "X-Activity-Exporter-Bypass-Ratelimit"

// New creates an exporter client for the daemon at serverURL.
func New(serverURL *url.URL) *Client {
	return &Client{
		URL:        serverURL,
		HTTPClient: &http.Client{},
	}
}

// Client is an HTTP client for the activity exporter daemon.
type Client struct {
	HTTPClient *http.Client
	URL        *url.URL

	// Logger is optionally provided to log requests.
	Logger slog.Logger
	// LogBodies can be enabled to print request and response bodies to the
	// logger.
	LogBodies bool
}

// RequestOption mutates a request before it is sent.
type RequestOption func(*http.Request)

// WithQueryParam adds a query parameter to the request.
func WithQueryParam(key, value string) RequestOption {
	return func(r *http.Request) {
		if value == "" {
			return
		}
		q := r.URL.Query()
		q.Add(key, value)
		r.URL.RawQuery = q.Encode()
	}
}

// Request performs an HTTP request with the body provided. The caller is
// responsible for closing the response body.
func (c *Client) Request(ctx context.Context, method, path string, body interface{}, opts ...RequestOption) (*http.Response, error) {
	serverURL, err := c.URL.Parse(path)
	if err != nil {
		return nil, xerrors.Errorf("parse url: %w", err)
	}

	var r io.Reader
	var reqBody []byte
	if body != nil {
		if data, ok := body.([]byte); ok {
			reqBody = data
		} else {
			buf := &bytes.Buffer{}
			enc := json.NewEncoder(buf)
			enc.SetEscapeHTML(false)
			if err := enc.Encode(body); err != nil {
				return nil, xerrors.Errorf("encode body: %w", err)
			}
			reqBody = buf.Bytes()
		}
		r = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, serverURL.String(), r)
	if err != nil {
		return nil, xerrors.Errorf("create request: %w", err)
	}
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	fields := []slog.Field{
		slog.F("method", req.Method),
		slog.F("url", req.URL.String()),
	}
	if c.LogBodies {
		fields = append(fields, slog.F("body", string(reqBody)))
	}
	c.Logger.Debug(ctx, "sdk request", fields...)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("do: %w", err)
	}
	c.Logger.Debug(ctx, "sdk response",
		slog.F("method", req.Method),
		slog.F("url", req.URL.String()),
		slog.F("status", resp.StatusCode),
	)
	return resp, nil
}

// Response represents a generic HTTP response.
type Response struct {
	// Message is an actionable message that depicts actions the request took.
	Message string `json:"message"`
	// Detail is a debug message that provides further insight into why the
	// action failed.
	Detail string `json:"detail,omitempty"`
	// Validations are form field-specific friendly error messages.
	Validations []ValidationError `json:"validations,omitempty"`
}

// ValidationError represents a scoped error to a user input.
type ValidationError struct {
	Field  string `json:"field" validate:"required"`
	Detail string `json:"detail" validate:"required"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("field: %s detail: %s", e.Field, e.Detail)
}

// Error represents an unaccepted or invalid request to the API.
type Error struct {
	Response

	statusCode int
	method     string
	url        string
}

// NewError creates an Error with the given status code and response.
func NewError(statusCode int, response Response) *Error {
	return &Error{
		statusCode: statusCode,
		Response:   response,
	}
}

func (e *Error) StatusCode() int {
	return e.statusCode
}

func (e *Error) Error() string {
	var builder strings.Builder
	if e.method != "" && e.url != "" {
		_, _ = fmt.Fprintf(&builder, "%v %v\n", e.method, e.url)
	}
	_, _ = fmt.Fprintf(&builder, "Error: %s", e.Message)
	if e.Detail != "" {
		_, _ = fmt.Fprintf(&builder, "\n\t%s", e.Detail)
	}
	for _, v := range e.Validations {
		_, _ = fmt.Fprintf(&builder, "\n\t%s: %s", v.Field, v.Detail)
	}
	_, _ = fmt.Fprintf(&builder, "\n\tStatus: %d", e.statusCode)
	return builder.String()
}

// ReadBodyAsError reads the response as a Response and wraps it in an
// Error type for easy handling.
func ReadBodyAsError(res *http.Response) error {
	if res == nil {
		return xerrors.Errorf("no body returned")
	}
	defer res.Body.Close()

	var method, requestURL string
	if res.Request != nil {
		method = res.Request.Method
		if res.Request.URL != nil {
			requestURL = res.Request.URL.String()
		}
	}

	resp, err := io.ReadAll(res.Body)
	if err != nil {
		return xerrors.Errorf("read body: %w", err)
	}

	mimeType, _, err := mime.ParseMediaType(res.Header.Get("Content-Type"))
	if err != nil {
		mimeType = strings.TrimSpace(strings.Split(res.Header.Get("Content-Type"), ";")[0])
	}
	if mimeType != "application/json" {
		if len(resp) > 1024 {
			resp = append(resp[:1024], []byte("...")...)
		}
		if len(resp) == 0 {
			resp = []byte("no response body")
		}
		return &Error{
			statusCode: res.StatusCode,
			method:     method,
			url:        requestURL,
			Response: Response{
				Message: fmt.Sprintf("unexpected non-JSON response %q", mimeType),
				Detail:  string(resp),
			},
		}
	}

	var m Response
	err = json.NewDecoder(bytes.NewBuffer(resp)).Decode(&m)
	if err != nil {
		if xerrors.Is(err, io.EOF) {
			return &Error{
				statusCode: res.StatusCode,
				method:     method,
				url:        requestURL,
				Response: Response{
					Message: "empty response body",
				},
			}
		}
		return xerrors.Errorf("decode body: %w", err)
	}
	if m.Message == "" {
		if len(resp) > 1024 {
			resp = append(resp[:1024], []byte("...")...)
		}
		m.Message = fmt.Sprintf("unexpected status code %d, response has no message", res.StatusCode)
		m.Detail = string(resp)
	}

	return &Error{
		Response:   m,
		statusCode: res.StatusCode,
		method:     method,
		url:        requestURL,
	}
}

type noResponse struct{}

type sdkRequestArgs struct {
	Method     string
	URL        string
	Body       any
	ReqOpts    []RequestOption
	ExpectCode int
}

func makeSDKRequest[T any](ctx context.Context, cli *Client, req sdkRequestArgs) (T, error) {
	var empty T
	res, err := cli.Request(ctx, req.Method, req.URL, req.Body, req.ReqOpts...)
	if err != nil {
		return empty, err
	}
	defer res.Body.Close()

	if res.StatusCode != req.ExpectCode {
		return empty, ReadBodyAsError(res)
	}

	switch (any)(empty).(type) {
	case noResponse:
		return empty, nil
	default:
	}
	var result T
	return result, json.NewDecoder(res.Body).Decode(&result)
}
