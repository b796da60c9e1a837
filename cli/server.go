package cli

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
	"github.com/coder/activity-exporter/activity"
	"github.com/coder/activity-exporter/cli/clilog"
	"github.com/coder/activity-exporter/exporterd"
	"github.com/coder/serpent"
)

type serverFlags struct {
	Config serpent.YAMLConfigPath

	Address                 string
	Port                    int64
	IdleTimeout             time.Duration
	IdleHeartbeatInterval   time.Duration
	MinRegistrationInterval time.Duration
	IncludeUntitled         bool
	IdleOnBlur              bool
	WorkspaceFolders        []string
	MetricsNamespace        string
	CollectProcessMetrics   bool
	EventQueueSize          int64
	IngestRateLimit         int64
	CORSAllowedOrigins      []string
}

func (f *serverFlags) attach(opts *serpent.OptionSet) {
	*opts = append(*opts,
		serpent.Option{
			Name:        "Config Path",
			Description: "Read options from a YAML file. Flags and environment variables take precedence.",
			Flag:        "config",
			Env:         envPrefix + "CONFIG_PATH",
			Value:       &f.Config,
		},
		serpent.Option{
			Name:        "Address",
			Description: "Host to bind the HTTP server to.",
			Flag:        "address",
			Env:         envPrefix + "ADDRESS",
			YAML:        "address",
			Default:     "127.0.0.1",
			Value:       serpent.StringOf(&f.Address),
		},
		serpent.Option{
			Name:        "Port",
			Description: "Port to serve metrics and event ingestion on.",
			Flag:        "port",
			Env:         envPrefix + "PORT",
			YAML:        "port",
			Default:     strconv.Itoa(defaultPort),
			Value:       serpent.Int64Of(&f.Port),
		},
		serpent.Option{
			Name:        "Idle Timeout",
			Description: "Time without a qualifying event after which the user is considered idle.",
			Flag:        "idle-timeout",
			Env:         envPrefix + "IDLE_TIMEOUT",
			YAML:        "idleTimeout",
			Default:     activity.DefaultIdleTimeout.String(),
			Value:       serpent.DurationOf(&f.IdleTimeout),
		},
		serpent.Option{
			Name:        "Idle Heartbeat Interval",
			Description: "How often idle time is billed while the user stays idle.",
			Flag:        "idle-heartbeat-interval",
			Env:         envPrefix + "IDLE_HEARTBEAT_INTERVAL",
			YAML:        "idleHeartbeatInterval",
			Default:     activity.DefaultIdleHeartbeatInterval.String(),
			Value:       serpent.DurationOf(&f.IdleHeartbeatInterval),
		},
		serpent.Option{
			Name:        "Minimum Registration Interval",
			Description: "Minimum time between registrations of the same document and flags.",
			Flag:        "min-registration-interval",
			Env:         envPrefix + "MIN_REGISTRATION_INTERVAL",
			YAML:        "minRegistrationInterval",
			Default:     activity.DefaultMinRegistrationInterval.String(),
			Value:       serpent.DurationOf(&f.MinRegistrationInterval),
		},
		serpent.Option{
			Name:        "Include Untitled",
			Description: "Bill time spent in untitled documents.",
			Flag:        "include-untitled",
			Env:         envPrefix + "INCLUDE_UNTITLED",
			YAML:        "includeUntitled",
			Default:     "false",
			Value:       serpent.BoolOf(&f.IncludeUntitled),
		},
		serpent.Option{
			Name:        "Idle On Blur",
			Description: "Treat the user as idle as soon as the host window loses focus.",
			Flag:        "idle-on-blur",
			Env:         envPrefix + "IDLE_ON_BLUR",
			YAML:        "idleOnBlur",
			Default:     "true",
			Value:       serpent.BoolOf(&f.IdleOnBlur),
		},
		serpent.Option{
			Name:        "Workspace Folders",
			Description: "Workspace roots known at startup, as name=path. Repeat for multiple roots.",
			Flag:        "workspace-folder",
			Env:         envPrefix + "WORKSPACE_FOLDERS",
			YAML:        "workspaceFolders",
			Value:       serpent.StringArrayOf(&f.WorkspaceFolders),
		},
		serpent.Option{
			Name:        "Metrics Namespace",
			Description: "Namespace prepended to every activity series.",
			Flag:        "metrics-namespace",
			Env:         envPrefix + "METRICS_NAMESPACE",
			YAML:        "metricsNamespace",
			Default:     "vscode",
			Value:       serpent.StringOf(&f.MetricsNamespace),
		},
		serpent.Option{
			Name:        "Collect Process Metrics",
			Description: "Expose Go runtime and process series alongside activity series.",
			Flag:        "collect-process-metrics",
			Env:         envPrefix + "COLLECT_PROCESS_METRICS",
			YAML:        "collectProcessMetrics",
			Default:     "true",
			Value:       serpent.BoolOf(&f.CollectProcessMetrics),
		},
		serpent.Option{
			Name:        "Event Queue Size",
			Description: "Events buffered ahead of the engine. Events arriving at a full queue are dropped.",
			Flag:        "event-queue-size",
			Env:         envPrefix + "EVENT_QUEUE_SIZE",
			YAML:        "eventQueueSize",
			Default:     "1024",
			Value:       serpent.Int64Of(&f.EventQueueSize),
		},
		serpent.Option{
			Name:        "Ingest Rate Limit",
			Description: "Event requests allowed per minute per client. Set to 0 to disable.",
			Flag:        "ingest-rate-limit",
			Env:         envPrefix + "INGEST_RATE_LIMIT",
			YAML:        "ingestRateLimit",
			Default:     "6000",
			Value:       serpent.Int64Of(&f.IngestRateLimit),
		},
		serpent.Option{
			Name:        "CORS Allowed Origins",
			Description: "Origins allowed to call the HTTP API from a browser.",
			Flag:        "cors-allowed-origin",
			Env:         envPrefix + "CORS_ALLOWED_ORIGINS",
			YAML:        "corsAllowedOrigins",
			Value:       serpent.StringArrayOf(&f.CORSAllowedOrigins),
		},
	)
}

func (f *serverFlags) valid() error {
	if f.Port < 0 || f.Port > 65535 {
		return xerrors.Errorf("port %d is out of range", f.Port)
	}
	if f.IdleTimeout <= 0 {
		return xerrors.Errorf("idle timeout must be positive, got %s", f.IdleTimeout)
	}
	if f.IdleHeartbeatInterval <= 0 {
		return xerrors.Errorf("idle heartbeat interval must be positive, got %s", f.IdleHeartbeatInterval)
	}
	if f.MinRegistrationInterval < 0 {
		return xerrors.Errorf("min registration interval must not be negative, got %s", f.MinRegistrationInterval)
	}
	if f.EventQueueSize <= 0 {
		return xerrors.Errorf("event queue size must be positive, got %d", f.EventQueueSize)
	}
	return nil
}

// parseWorkspaceFolders parses name=path pairs.
func parseWorkspaceFolders(raw []string) ([]activity.WorkspaceFolder, error) {
	folders := make([]activity.WorkspaceFolder, 0, len(raw))
	for _, s := range raw {
		name, path, ok := strings.Cut(s, "=")
		name, path = strings.TrimSpace(name), strings.TrimSpace(path)
		if !ok || name == "" || path == "" {
			return nil, xerrors.Errorf("invalid workspace folder %q, expected name=path", s)
		}
		folders = append(folders, activity.WorkspaceFolder{Name: name, Path: path})
	}
	return folders, nil
}

func (*RootCmd) server() *serpent.Command {
	var (
		flags   serverFlags
		logOpts = clilog.New()
	)
	cmd := &serpent.Command{
		Use:        "server",
		Short:      "Run the activity exporter.",
		Middleware: serpent.RequireNArgs(0),
		Handler: func(inv *serpent.Invocation) error {
			ctx, cancel := context.WithCancel(inv.Context())
			defer cancel()

			if err := flags.valid(); err != nil {
				return err
			}
			folders, err := parseWorkspaceFolders(flags.WorkspaceFolders)
			if err != nil {
				return err
			}

			logger, closeLog, err := logOpts.Build(inv)
			if err != nil {
				return xerrors.Errorf("make logger: %w", err)
			}
			defer closeLog()

			reg := prometheus.NewRegistry()
			if flags.CollectProcessMetrics {
				reg.MustRegister(
					collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
					collectors.NewGoCollector(),
				)
			}

			engine, closeEngine, err := activity.NewEngine(ctx, reg,
				activity.WithLogger(logger.Named("activity")),
				activity.WithNamespace(flags.MetricsNamespace),
				activity.WithIdleTimeout(flags.IdleTimeout),
				activity.WithIdleHeartbeatInterval(flags.IdleHeartbeatInterval),
				activity.WithMinRegistrationInterval(flags.MinRegistrationInterval),
				activity.WithIncludeUntitled(flags.IncludeUntitled),
				activity.WithIdleOnBlur(flags.IdleOnBlur),
				activity.WithWorkspaceFolders(folders...),
				activity.WithQueueSize(int(flags.EventQueueSize)),
			)
			if err != nil {
				return xerrors.Errorf("create activity engine: %w", err)
			}
			defer closeEngine()

			api := exporterd.New(&exporterd.Options{
				Logger:             logger.Named("exporterd"),
				Engine:             engine,
				Gatherer:           reg,
				Registerer:         reg,
				IngestRateLimit:    int(flags.IngestRateLimit),
				CORSAllowedOrigins: flags.CORSAllowedOrigins,
			})

			ln, err := net.Listen("tcp", net.JoinHostPort(flags.Address, strconv.FormatInt(flags.Port, 10)))
			if err != nil {
				return xerrors.Errorf("listen: %w", err)
			}
			srv := exporterd.Serve(ctx, logger, api, ln)

			_, _ = fmt.Fprintf(inv.Stdout, "Serving metrics on http://%s/metrics\n", srv.Addr())
			for _, f := range folders {
				logger.Info(ctx, "workspace folder", slog.F("name", f.Name), slog.F("path", f.Path))
			}
			_, _ = fmt.Fprintln(inv.Stdout, "\n==> Logs will stream in below (press ctrl+c to gracefully exit):")

			notifyCtx, stop := inv.SignalNotifyContext(ctx, StopSignals...)
			defer stop()

			var exitErr error
			select {
			case <-notifyCtx.Done():
				exitErr = notifyCtx.Err()
				_, _ = fmt.Fprintln(inv.Stdout, "Interrupt caught, gracefully exiting. Use ctrl+\\ to force quit")
			case <-srv.Done():
				exitErr = srv.Err()
				if exitErr == nil {
					exitErr = xerrors.New("http server exited unexpectedly")
				}
				_, _ = fmt.Fprintf(inv.Stdout, "Unexpected error, shutting down server: %s\n", exitErr)
			}

			_, _ = fmt.Fprintln(inv.Stdout, "Shutting down API server...")
			if err := shutdownWithTimeout(srv, 5*time.Second); err != nil {
				_, _ = fmt.Fprintf(inv.Stderr, "API server shutdown took longer than 5s: %s\n", err)
			} else {
				_, _ = fmt.Fprintln(inv.Stdout, "Gracefully shut down API server")
			}
			return exitErr
		},
	}
	flags.attach(&cmd.Options)
	cmd.Options = append(cmd.Options, logOpts.Options(envPrefix)...)
	return cmd
}

func shutdownWithTimeout(s interface{ Shutdown(context.Context) error }, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(ctx)
}
