package exporterd

import (
	"context"
	"net"
	"net/http"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
)

// Server runs an API on a listener.
type Server struct {
	log slog.Logger
	api *API
	srv *http.Server
	ln  net.Listener

	done     chan struct{}
	serveErr error
}

// Serve starts serving api on ln in the background.
func Serve(ctx context.Context, log slog.Logger, api *API, ln net.Listener) *Server {
	// ReadHeaderTimeout is purposefully not enabled. Event streams are
	// long-lived websockets.
	//nolint:gosec
	srv := &http.Server{
		Handler: api.Handler,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	s := &Server{
		log:  log,
		api:  api,
		srv:  srv,
		ln:   ln,
		done: make(chan struct{}),
	}
	log.Info(ctx, "http server listening", slog.F("addr", ln.Addr().String()))
	go func() {
		err := srv.Serve(ln)
		if xerrors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.serveErr = err
		close(s.done)
	}()
	return s
}

// Addr is the address the server is listening on.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Done is closed when the serve loop exits.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Err is the serve loop's error. It is only valid after Done is closed.
func (s *Server) Err() error {
	return s.serveErr
}

// Shutdown stops accepting connections, closes open event streams and
// waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info(ctx, "shutting down http server", slog.F("addr", s.ln.Addr().String()))
	var merr error
	// Streams are hijacked connections, so http.Server.Shutdown does not
	// wait for them.
	if err := s.api.Close(); err != nil {
		merr = multierror.Append(merr, xerrors.Errorf("close api: %w", err))
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		merr = multierror.Append(merr, xerrors.Errorf("shutdown http server: %w", err))
		_ = s.srv.Close()
	}
	select {
	case <-s.done:
		if s.serveErr != nil {
			merr = multierror.Append(merr, xerrors.Errorf("serve: %w", s.serveErr))
		}
	case <-ctx.Done():
		merr = multierror.Append(merr, ctx.Err())
	}
	return merr
}
