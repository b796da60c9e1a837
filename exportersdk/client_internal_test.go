package exportersdk

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

const jsonCT = "application/json"

func TestReadBodyAsError(t *testing.T) {
	t.Parallel()

	exampleURL := "http://example.com/api/v1/events"
	simpleResponse := Response{
		Message: "Validation failed.",
		Detail:  "hi",
		Validations: []ValidationError{
			{Field: "events[0].type", Detail: "required"},
		},
	}
	longResponse := strings.Repeat("a", 2000)

	//nolint:bodyclose
	tests := []struct {
		name   string
		req    *http.Request
		res    *http.Response
		assert func(t *testing.T, err error)
	}{
		{
			name: "JSONWithRequest",
			req:  httptest.NewRequest(http.MethodPost, exampleURL, nil),
			res:  newResponse(http.StatusBadRequest, jsonCT, marshal(simpleResponse)),
			assert: func(t *testing.T, err error) {
				sdkErr := assertSDKError(t, err)

				assert.Equal(t, simpleResponse, sdkErr.Response)
				assert.Equal(t, http.StatusBadRequest, sdkErr.StatusCode())
				assert.Equal(t, http.MethodPost, sdkErr.method)
				assert.Equal(t, exampleURL, sdkErr.url)
				assert.ErrorContains(t, err, "events[0].type")
				assert.ErrorContains(t, err, "Status: 400")
			},
		},
		{
			name: "JSONWithoutRequest",
			res:  newResponse(http.StatusNotFound, jsonCT, marshal(simpleResponse)),
			assert: func(t *testing.T, err error) {
				sdkErr := assertSDKError(t, err)

				assert.Equal(t, simpleResponse, sdkErr.Response)
				assert.Empty(t, sdkErr.method)
				assert.Empty(t, sdkErr.url)
			},
		},
		{
			name: "NonJSON",
			res:  newResponse(http.StatusNotFound, "text/plain; charset=utf-8", "hello world"),
			assert: func(t *testing.T, err error) {
				sdkErr := assertSDKError(t, err)

				assert.Contains(t, sdkErr.Message, "unexpected non-JSON response")
				assert.Equal(t, "hello world", sdkErr.Detail)
			},
		},
		{
			name: "NonJSONLong",
			res:  newResponse(http.StatusNotFound, "text/plain; charset=utf-8", longResponse),
			assert: func(t *testing.T, err error) {
				sdkErr := assertSDKError(t, err)

				assert.Equal(t, longResponse[:1024]+"...", sdkErr.Detail)
			},
		},
		{
			name: "JSONNoBody",
			res:  newResponse(http.StatusNotFound, jsonCT, ""),
			assert: func(t *testing.T, err error) {
				sdkErr := assertSDKError(t, err)

				assert.Contains(t, sdkErr.Message, "empty response body")
			},
		},
		{
			name: "JSONNoMessage",
			res:  newResponse(http.StatusTeapot, jsonCT, `{"hello":"world"}`),
			assert: func(t *testing.T, err error) {
				sdkErr := assertSDKError(t, err)

				assert.Contains(t, sdkErr.Message, "has no message")
				assert.Equal(t, `{"hello":"world"}`, sdkErr.Detail)
			},
		},
	}

	for _, c := range tests {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			c.res.Request = c.req
			err := ReadBodyAsError(c.res)
			c.assert(t, err)
		})
	}
}

func assertSDKError(t *testing.T, err error) *Error {
	t.Helper()

	var sdkErr *Error
	require.Error(t, err)
	require.True(t, xerrors.As(err, &sdkErr))
	return sdkErr
}

func newResponse(status int, contentType string, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header: map[string][]string{
			"Content-Type": {contentType},
		},
		Body: io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func marshal(res any) string {
	b, err := json.Marshal(res)
	if err != nil {
		panic(err)
	}
	return string(b)
}
