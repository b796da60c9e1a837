package httpmw

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"cdr.dev/slog/v3"
)

// Logger logs every request at debug level, or warn for server errors.
func Logger(log slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := middleware.NewWrapResponseWriter(rw, r.ProtoMajor)

			next.ServeHTTP(sw, r)

			end := time.Now()
			// Scrapes are far too frequent to log.
			if r.URL.Path == "/metrics" && sw.Status() == http.StatusOK {
				return
			}

			httplog := log.With(
				slog.F("method", r.Method),
				slog.F("path", r.URL.Path),
				slog.F("proto", r.Proto),
				slog.F("remote_addr", r.RemoteAddr),
				slog.F("took", end.Sub(start)),
				slog.F("status_code", sw.Status()),
				slog.F("bytes_written", sw.BytesWritten()),
			)
			logLevelFn := httplog.Debug
			if sw.Status() >= http.StatusInternalServerError {
				logLevelFn = httplog.Warn
			}
			logLevelFn(r.Context(), r.Method)
		})
	}
}
