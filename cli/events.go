package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/xerrors"

	"github.com/coder/activity-exporter/exportersdk"
	"github.com/coder/serpent"
)

// maxEventLine bounds a single JSON line. Visible editor lists can be long.
const maxEventLine = 1 << 20

func (r *RootCmd) events() *serpent.Command {
	cmd := &serpent.Command{
		Use:   "events",
		Short: "Send editor events to a running exporter.",
		Handler: func(inv *serpent.Invocation) error {
			return inv.Command.HelpHandler(inv)
		},
	}
	cmd.AddSubcommands(
		r.eventsSend(),
	)
	return cmd
}

func (r *RootCmd) eventsSend() *serpent.Command {
	var (
		file      string
		stream    bool
		batchSize int64
	)
	client := new(exportersdk.Client)
	cmd := &serpent.Command{
		Use:   "send",
		Short: "Send newline-delimited JSON events.",
		Long: `# Replay a recorded session.
$ activity-exporter events send --file session.jsonl

# Pipe events from another process over a single connection.
$ my-recorder | activity-exporter events send --stream`,
		Middleware: serpent.Chain(
			serpent.RequireNArgs(0),
			r.InitClient(client),
		),
		Options: serpent.OptionSet{
			{
				Name:          "File",
				Description:   "Read events from a file. Use - for stdin.",
				Flag:          "file",
				FlagShorthand: "f",
				Default:       "-",
				Value:         serpent.StringOf(&file),
			},
			{
				Name:        "Stream",
				Description: "Send events over a websocket instead of batched requests.",
				Flag:        "stream",
				Value:       serpent.BoolOf(&stream),
			},
			{
				Name:        "Batch Size",
				Description: "Events per request when not streaming.",
				Flag:        "batch-size",
				Default:     "100",
				Value:       serpent.Int64Of(&batchSize),
			},
		},
		Handler: func(inv *serpent.Invocation) error {
			ctx := inv.Context()
			if batchSize <= 0 {
				return xerrors.Errorf("batch size must be positive, got %d", batchSize)
			}

			in := inv.Stdin
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return xerrors.Errorf("open events file: %w", err)
				}
				defer f.Close()
				in = f
			}

			if stream {
				sent, err := streamEvents(ctx, client, in)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(inv.Stdout, "Streamed %d events\n", sent)
				return nil
			}

			var (
				batch    = make([]exportersdk.Event, 0, batchSize)
				accepted int
				dropped  int
			)
			flush := func() error {
				if len(batch) == 0 {
					return nil
				}
				res, err := client.PostEvents(ctx, exportersdk.PostEventsRequest{Events: batch})
				if err != nil {
					return xerrors.Errorf("post events: %w", err)
				}
				accepted += res.Accepted
				dropped += res.Dropped
				batch = batch[:0]
				return nil
			}
			err := readEvents(in, func(ev exportersdk.Event) error {
				batch = append(batch, ev)
				if int64(len(batch)) < batchSize {
					return nil
				}
				return flush()
			})
			if err != nil {
				return err
			}
			if err := flush(); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(inv.Stdout, "Sent %d events (%d dropped)\n", accepted, dropped)
			return nil
		},
	}
	return cmd
}

func streamEvents(ctx context.Context, client *exportersdk.Client, in io.Reader) (int, error) {
	stream, err := client.StreamEvents(ctx)
	if err != nil {
		return 0, xerrors.Errorf("open event stream: %w", err)
	}
	defer stream.Close()

	sent := 0
	err = readEvents(in, func(ev exportersdk.Event) error {
		if err := stream.Send(ctx, ev); err != nil {
			return xerrors.Errorf("send event %d: %w", sent+1, err)
		}
		sent++
		return nil
	})
	if err != nil {
		return sent, err
	}
	if err := stream.Close(); err != nil {
		return sent, xerrors.Errorf("close event stream: %w", err)
	}
	return sent, nil
}

// readEvents decodes one event per non-blank line and passes it to fn.
func readEvents(in io.Reader, fn func(exportersdk.Event) error) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var ev exportersdk.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return xerrors.Errorf("decode event on line %d: %w", line, err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return xerrors.Errorf("read events: %w", err)
	}
	return nil
}
