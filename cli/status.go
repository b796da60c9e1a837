package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"golang.org/x/xerrors"

	"github.com/coder/activity-exporter/buildinfo"
	"github.com/coder/activity-exporter/exportersdk"
	"github.com/coder/serpent"
)

func (r *RootCmd) status() *serpent.Command {
	var (
		output        string
		showMetrics   bool
		metricsPrefix string
	)
	client := new(exportersdk.Client)
	cmd := &serpent.Command{
		Use:   "status",
		Short: "Show what a running exporter is tracking.",
		Middleware: serpent.Chain(
			serpent.RequireNArgs(0),
			r.InitClient(client),
		),
		Options: serpent.OptionSet{
			{
				Name:          "Output",
				Description:   "Output format.",
				Flag:          "output",
				FlagShorthand: "o",
				Default:       "table",
				Value:         serpent.EnumOf(&output, "table", "json"),
			},
			{
				Name:        "Metrics",
				Description: "Also print non-zero activity series.",
				Flag:        "metrics",
				Value:       serpent.BoolOf(&showMetrics),
			},
			{
				Name:        "Metrics Prefix",
				Description: "Only print series whose name starts with this prefix.",
				Flag:        "metrics-prefix",
				Default:     "vscode_",
				Value:       serpent.StringOf(&metricsPrefix),
			},
		},
		Handler: func(inv *serpent.Invocation) error {
			ctx := inv.Context()
			st, err := client.State(ctx)
			if err != nil {
				return xerrors.Errorf("get state: %w", err)
			}
			if info, err := client.BuildInfo(ctx); err == nil && !buildinfo.VersionsMatch(info.Version, buildinfo.Version()) {
				_, _ = fmt.Fprintf(inv.Stderr, "WARN: exporter is running %s but this binary is %s\n", info.Version, buildinfo.Version())
			}

			var samples []sample
			if showMetrics {
				res, err := client.Metrics(ctx)
				if err != nil {
					return xerrors.Errorf("get metrics: %w", err)
				}
				defer res.Body.Close()
				samples, err = decodeSamples(res.Body, expfmt.ResponseFormat(res.Header), metricsPrefix)
				if err != nil {
					return err
				}
			}

			if output == "json" {
				out := struct {
					State   exportersdk.State `json:"state"`
					Metrics []sample          `json:"metrics,omitempty"`
				}{State: st, Metrics: samples}
				enc := json.NewEncoder(inv.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			_, _ = fmt.Fprintln(inv.Stdout, stateTable(st))
			if showMetrics {
				_, _ = fmt.Fprintln(inv.Stdout)
				_, _ = fmt.Fprintln(inv.Stdout, samplesTable(samples))
			}
			return nil
		},
	}
	return cmd
}

func stateTable(st exportersdk.State) string {
	tableWriter := table.NewWriter()
	tableWriter.SetStyle(table.StyleLight)
	tableWriter.Style().Options.SeparateColumns = false
	tableWriter.AppendHeader(table.Row{"Field", "Value"})

	folders := make([]string, 0, len(st.WorkspaceFolders))
	for _, f := range st.WorkspaceFolders {
		folders = append(folders, f.Name+"="+f.Path)
	}
	heartbeat := ""
	if !st.Heartbeat.IsZero() {
		heartbeat = st.Heartbeat.Format(time.RFC3339)
	}
	tableWriter.AppendRows([]table.Row{
		{"Idle", st.Idle},
		{"Window Focused", st.WindowFocused},
		{"Document", st.Document},
		{"Heartbeat", heartbeat},
		{"Debugging", st.Debugging},
		{"Compiling", st.Compiling},
		{"Active Editor", st.ActiveEditor},
		{"Active Notebook", st.ActiveNotebook},
		{"Active Terminal", st.ActiveTerminal},
		{"Debug Sessions", strings.Join(st.DebugSessions, ", ")},
		{"Tasks", strings.Join(st.Tasks, ", ")},
		{"Terminals", strings.Join(st.Terminals, ", ")},
		{"Notebooks", strings.Join(st.Notebooks, ", ")},
		{"Breakpoints", fmt.Sprintf("%d (%d enabled)", st.Breakpoints, st.EnabledBreakpoints)},
		{"Workspace Folders", strings.Join(folders, ", ")},
	})
	return tableWriter.Render()
}

type sample struct {
	Series string  `json:"series"`
	Value  float64 `json:"value"`
}

// decodeSamples reads the counter and gauge series with a non-zero value
// from an exposition body.
func decodeSamples(r io.Reader, format expfmt.Format, prefix string) ([]sample, error) {
	var (
		dec     = expfmt.NewDecoder(r, format)
		samples []sample
	)
	for {
		var family dto.MetricFamily
		err := dec.Decode(&family)
		if xerrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, xerrors.Errorf("decode metrics: %w", err)
		}
		if !strings.HasPrefix(family.GetName(), prefix) {
			continue
		}
		for _, m := range family.GetMetric() {
			var v float64
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				v = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				v = m.GetGauge().GetValue()
			default:
				continue
			}
			if v == 0 {
				continue
			}
			samples = append(samples, sample{Series: seriesName(family.GetName(), m), Value: v})
		}
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Series < samples[j].Series
	})
	return samples, nil
}

func seriesName(name string, m *dto.Metric) string {
	labels := make([]string, 0, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		if lp.GetValue() == "" {
			continue
		}
		labels = append(labels, lp.GetName()+"="+strconv.Quote(lp.GetValue()))
	}
	if len(labels) == 0 {
		return name
	}
	return name + "{" + strings.Join(labels, ",") + "}"
}

func samplesTable(samples []sample) string {
	tableWriter := table.NewWriter()
	tableWriter.SetStyle(table.StyleLight)
	tableWriter.Style().Options.SeparateColumns = false
	tableWriter.AppendHeader(table.Row{"Series", "Value"})
	for _, s := range samples {
		tableWriter.AppendRow(table.Row{s.Series, strconv.FormatFloat(s.Value, 'f', -1, 64)})
	}
	return tableWriter.Render()
}
