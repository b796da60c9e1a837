package exporterd

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cdr.dev/slog/v3"
	"github.com/coder/activity-exporter/activity"
	"github.com/coder/activity-exporter/exporterd/httpapi"
	"github.com/coder/activity-exporter/exporterd/httpmw"
	"github.com/coder/activity-exporter/exportersdk"
	"github.com/coder/quartz"
)

// Engine is the subset of *activity.Engine the API drives.
type Engine interface {
	Enqueue(ev activity.Event) bool
	Submit(ctx context.Context, ev activity.Event) error
	State(ctx context.Context) (activity.State, error)
	QueueDepth() int
}

// Options are the parameters for the exporter API.
type Options struct {
	Logger slog.Logger
	Engine Engine
	// Gatherer is exposed on /metrics. It must include the engine's
	// registry.
	Gatherer prometheus.Gatherer
	// Registerer receives the API's own request metrics. Nil disables them.
	Registerer prometheus.Registerer
	// Clock times out health checks.
	Clock quartz.Clock

	// IngestRateLimit is the number of requests per minute each client may
	// make to the event routes. Zero or less disables the limit.
	IngestRateLimit    int
	CORSAllowedOrigins []string
}

// API serves the exporter's HTTP routes.
type API struct {
	*Options
	Handler http.Handler

	ctx    context.Context
	cancel context.CancelFunc
	// websocketWaitGroup tracks open event streams so Close can wait for
	// them.
	websocketWaitMutex sync.Mutex
	websocketWaitGroup sync.WaitGroup
	closed             bool
}

// New constructs the exporter API.
func New(options *Options) *API {
	if options.Clock == nil {
		options.Clock = quartz.NewReal()
	}
	if options.Gatherer == nil {
		options.Gatherer = prometheus.DefaultGatherer
	}

	ctx, cancel := context.WithCancel(context.Background())
	api := &API{
		Options: options,
		ctx:     ctx,
		cancel:  cancel,
	}

	r := chi.NewRouter()
	r.Use(
		httpmw.Recover(options.Logger),
		httpmw.AttachRequestID,
		middleware.RealIP,
		httpmw.Logger(options.Logger),
	)
	if options.Registerer != nil {
		r.Use(httpmw.Prometheus(options.Registerer))
	}
	if len(options.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: options.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", exportersdk.BypassRatelimitHeader},
			ExposedHeaders: []string{httpmw.RequestIDHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/", func(rw http.ResponseWriter, r *http.Request) {
		http.Redirect(rw, r, "/metrics", http.StatusTemporaryRedirect)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(options.Gatherer, promhttp.HandlerOpts{
		ErrorLog: slogErrorLogger{log: options.Logger.Named("promhttp")},
	}))
	r.Get("/healthz", api.healthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.NotFound(func(rw http.ResponseWriter, _ *http.Request) {
			httpapi.RouteNotFound(rw)
		})
		r.Get("/buildinfo", buildInfo)
		r.Get("/state", api.state)
		r.Route("/events", func(r chi.Router) {
			r.Use(httpmw.RateLimit(options.IngestRateLimit, time.Minute))
			r.Post("/", api.postEvents)
			r.Get("/stream", api.streamEvents)
		})
	})
	r.NotFound(func(rw http.ResponseWriter, _ *http.Request) {
		httpapi.RouteNotFound(rw)
	})

	api.Handler = r
	return api
}

// Close stops accepting event streams and waits for open ones to finish.
func (api *API) Close() error {
	api.cancel()

	api.websocketWaitMutex.Lock()
	api.closed = true
	api.websocketWaitMutex.Unlock()
	api.websocketWaitGroup.Wait()
	return nil
}

// trackWebsocket registers an open stream, returning false once the API is
// closing.
func (api *API) trackWebsocket() bool {
	api.websocketWaitMutex.Lock()
	defer api.websocketWaitMutex.Unlock()
	if api.closed {
		return false
	}
	api.websocketWaitGroup.Add(1)
	return true
}

// slogErrorLogger adapts a slog.Logger to promhttp's error logger.
type slogErrorLogger struct {
	log slog.Logger
}

func (l slogErrorLogger) Println(v ...interface{}) {
	l.log.Error(context.Background(), "serve metrics", slog.F("error", v))
}
