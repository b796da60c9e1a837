package cli

import (
	"fmt"

	"golang.org/x/xerrors"

	"github.com/coder/serpent"
)

func (r *RootCmd) open() *serpent.Command {
	var noOpen bool
	cmd := &serpent.Command{
		Use:        "open",
		Short:      "Open the metrics page of a running exporter in a browser.",
		Middleware: serpent.RequireNArgs(0),
		Options: serpent.OptionSet{
			{
				Name:        "No Open",
				Description: "Print the URL instead of opening it.",
				Flag:        "no-open",
				Value:       serpent.BoolOf(&noOpen),
			},
		},
		Handler: func(inv *serpent.Invocation) error {
			if r.clientURL == nil || r.clientURL.Host == "" {
				return xerrors.New("no exporter URL provided, set --url")
			}
			metricsURL := r.clientURL.JoinPath("metrics").String()
			if noOpen {
				_, _ = fmt.Fprintln(inv.Stdout, metricsURL)
				return nil
			}

			if err := r.openURL(metricsURL); err != nil {
				_, _ = fmt.Fprintf(inv.Stderr, "Could not open a browser, visit %s\n", metricsURL)
				return xerrors.Errorf("open browser: %w", err)
			}
			_, _ = fmt.Fprintf(inv.Stdout, "Opened %s\n", metricsURL)
			return nil
		},
	}
	return cmd
}
