package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

// RequireEventuallyJSON polls endpoint with GET until it answers 200 with a
// body that decodes into T, and returns the decoded body. It is used to wait
// for a server started in the background to come up.
func RequireEventuallyJSON[T any](ctx context.Context, t testing.TB, endpoint string) T {
	t.Helper()

	var out T
	ok := Eventually(ctx, t, func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return false
		}
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			return false
		}
		var body T
		if json.NewDecoder(res.Body).Decode(&body) != nil {
			return false
		}
		out = body
		return true
	}, IntervalFast)
	require.True(t, ok, "%s did not answer in time", endpoint)
	return out
}
