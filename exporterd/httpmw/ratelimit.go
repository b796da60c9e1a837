package httpmw

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/coder/activity-exporter/exporterd/httpapi"
	"github.com/coder/activity-exporter/exportersdk"
)

// RateLimit returns a handler that limits requests per IP over window. A
// count of zero or less disables the limiter. Loopback callers may bypass
// it with exportersdk.BypassRatelimitHeader.
func RateLimit(count int, window time.Duration) func(http.Handler) http.Handler {
	if count <= 0 {
		return func(handler http.Handler) http.Handler {
			return handler
		}
	}

	limiter := httprate.Limit(
		count,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpapi.Write(r.Context(), w, http.StatusTooManyRequests, exportersdk.Response{
				Message: "You've been rate limited for sending more than the allowed number of requests in this window.",
			})
		}),
	)
	return func(next http.Handler) http.Handler {
		limited := limiter(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(exportersdk.BypassRatelimitHeader) == "true" && isLoopback(r) {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

func isLoopback(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
