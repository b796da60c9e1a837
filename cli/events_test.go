package cli_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coder/activity-exporter/activity"
	"github.com/coder/activity-exporter/cli/clitest"
	"github.com/coder/activity-exporter/testutil"
)

const sessionLog = `{"type":"workspace_trust_granted"}

{"type":"focus_changed","document":{"path":"/ws/proj/main.go","language":"go","lines":12}}
{"type":"task_started","task":{"id":"1","name":"build","type":"shell","source":"Workspace"}}
`

func TestEventsSend(t *testing.T) {
	t.Parallel()

	t.Run("File", func(t *testing.T) {
		t.Parallel()
		exp := clitest.NewExporter(t)
		ctx := testutil.Context(t, testutil.WaitShort)

		path := filepath.Join(t.TempDir(), "session.jsonl")
		require.NoError(t, os.WriteFile(path, []byte(sessionLog), 0o600))

		inv, out := clitest.New(t, "events", "send", "--url", exp.URL.String(), "--file", path, "--batch-size", "2")
		require.NoError(t, inv.WithContext(ctx).Run())
		require.Equal(t, "Sent 3 events (0 dropped)\n", out.Stdout.String())

		st, err := exp.Engine.State(ctx)
		require.NoError(t, err)
		require.Equal(t, "/ws/proj/main.go", st.Document)
		require.True(t, st.Compiling)
	})

	t.Run("Stdin", func(t *testing.T) {
		t.Parallel()
		exp := clitest.NewExporter(t)
		ctx := testutil.Context(t, testutil.WaitShort)

		inv, out := clitest.New(t, "events", "send", "--url", exp.URL.String())
		inv.Stdin = strings.NewReader(sessionLog)
		require.NoError(t, inv.WithContext(ctx).Run())
		require.Equal(t, "Sent 3 events (0 dropped)\n", out.Stdout.String())
	})

	t.Run("Stream", func(t *testing.T) {
		t.Parallel()
		exp := clitest.NewExporter(t)
		ctx := testutil.Context(t, testutil.WaitShort)

		inv, out := clitest.New(t, "events", "send", "--url", exp.URL.String(), "--stream")
		inv.Stdin = strings.NewReader(sessionLog)
		require.NoError(t, inv.WithContext(ctx).Run())
		require.Equal(t, "Streamed 3 events\n", out.Stdout.String())

		testutil.Eventually(ctx, t, func(ctx context.Context) bool {
			st, err := exp.Engine.State(ctx)
			return err == nil && st.Compiling && st.Document == "/ws/proj/main.go"
		}, testutil.IntervalFast)
	})

	t.Run("MalformedLine", func(t *testing.T) {
		t.Parallel()
		exp := clitest.NewExporter(t)
		ctx := testutil.Context(t, testutil.WaitShort)

		inv, _ := clitest.New(t, "events", "send", "--url", exp.URL.String())
		inv.Stdin = strings.NewReader("{\"type\":\"workspace_trust_granted\"}\n{not json\n")
		err := inv.WithContext(ctx).Run()
		require.ErrorContains(t, err, "line 2")
	})

	t.Run("RejectedBatch", func(t *testing.T) {
		t.Parallel()
		exp := clitest.NewExporter(t)
		ctx := testutil.Context(t, testutil.WaitShort)

		inv, _ := clitest.New(t, "events", "send", "--url", exp.URL.String())
		inv.Stdin = strings.NewReader(`{"type":"focus_changed","document":{"path":"/ws/proj/a.go"}}
{"type":"document_saved"}
`)
		err := inv.WithContext(ctx).Run()
		require.ErrorContains(t, err, "events[1].document")

		st, err := exp.Engine.State(ctx)
		require.NoError(t, err)
		require.Empty(t, st.Document)
	})
}

func TestStatus(t *testing.T) {
	t.Parallel()

	exp := clitest.NewExporter(t, activity.WithWorkspaceFolders(activity.WorkspaceFolder{Name: "proj", Path: "/ws/proj"}))
	ctx := testutil.Context(t, testutil.WaitShort)

	a := activity.Document{Path: "/ws/proj/a.go", Language: "go"}
	b := activity.Document{Path: "/ws/proj/b.go", Language: "go"}
	require.NoError(t, exp.Engine.Submit(ctx, activity.FocusChanged{Document: &a}))
	exp.Clock.Advance(10 * time.Second).MustWait(ctx)
	require.NoError(t, exp.Engine.Submit(ctx, activity.FocusChanged{Document: &b}))

	t.Run("Table", func(t *testing.T) {
		t.Parallel()
		inv, out := clitest.New(t, "status", "--url", exp.URL.String(), "--metrics")
		require.NoError(t, inv.WithContext(ctx).Run())
		require.Contains(t, out.Stdout.String(), "/ws/proj/b.go")
		require.Contains(t, out.Stdout.String(), "proj=/ws/proj")
		require.Contains(t, out.Stdout.String(), `vscode_editing_seconds{extension="go",file="a.go",language="go",project="proj"}`)
		require.NotContains(t, out.Stderr.String(), "WARN")
	})

	t.Run("JSON", func(t *testing.T) {
		t.Parallel()
		inv, out := clitest.New(t, "status", "--url", exp.URL.String(), "--output", "json", "--metrics")
		require.NoError(t, inv.WithContext(ctx).Run())

		var got struct {
			State struct {
				Document string `json:"document"`
			} `json:"state"`
			Metrics []struct {
				Series string  `json:"series"`
				Value  float64 `json:"value"`
			} `json:"metrics"`
		}
		require.NoError(t, json.Unmarshal([]byte(out.Stdout.String()), &got))
		require.Equal(t, "/ws/proj/b.go", got.State.Document)

		var editing float64
		for _, m := range got.Metrics {
			if strings.HasPrefix(m.Series, "vscode_editing_seconds{") && strings.Contains(m.Series, `file="a.go"`) {
				editing = m.Value
			}
		}
		require.Equal(t, 10.0, editing)
	})
}
