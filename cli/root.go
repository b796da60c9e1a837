package cli

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/pkg/browser"
	"golang.org/x/xerrors"

	"github.com/coder/activity-exporter/exportersdk"
	"github.com/coder/serpent"
)

const (
	envPrefix = "ACTIVITY_EXPORTER_"

	defaultPort = 9910
)

// RootCmd holds the options shared by every subcommand.
type RootCmd struct {
	clientURL *url.URL

	// openURL is replaced in tests.
	openURL func(string) error
}

// Command returns the root command with every subcommand attached.
func (r *RootCmd) Command() *serpent.Command {
	if r.clientURL == nil {
		r.clientURL = new(url.URL)
	}
	if r.openURL == nil {
		r.openURL = browser.OpenURL
	}

	cmd := &serpent.Command{
		Use:   "activity-exporter",
		Short: "Export editor activity as Prometheus metrics.",
		Long: `Receives editor events from a host extension and accrues them into
Prometheus counters and gauges.

  # Run the exporter.
  $ activity-exporter server --workspace-folder myapp=/home/me/src/myapp

  # Replay a recorded event log into a running exporter.
  $ activity-exporter events send --file events.jsonl`,
		Handler: func(inv *serpent.Invocation) error {
			return inv.Command.HelpHandler(inv)
		},
		Options: serpent.OptionSet{
			{
				Name:        "URL",
				Description: "URL of a running exporter.",
				Flag:        "url",
				Env:         envPrefix + "URL",
				Default:     fmt.Sprintf("http://127.0.0.1:%d", defaultPort),
				Value:       serpent.URLOf(r.clientURL),
			},
		},
	}
	cmd.AddSubcommands(
		r.server(),
		r.events(),
		r.status(),
		r.open(),
		r.version(),
	)
	return cmd
}

// InitClient sets client to talk to the exporter at --url.
func (r *RootCmd) InitClient(client *exportersdk.Client) serpent.MiddlewareFunc {
	return func(next serpent.HandlerFunc) serpent.HandlerFunc {
		return func(inv *serpent.Invocation) error {
			if r.clientURL == nil || r.clientURL.Host == "" {
				return xerrors.New("no exporter URL provided, set --url")
			}
			*client = *exportersdk.New(r.clientURL)
			return next(inv)
		}
	}
}

// RunMain runs the root command with the process arguments and exits.
func (r *RootCmd) RunMain() {
	cmd := r.Command()
	err := cmd.Invoke().WithOS().Run()
	if err == nil {
		return
	}
	// An interrupted server has already said why it is exiting.
	if !xerrors.Is(err, context.Canceled) {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}
