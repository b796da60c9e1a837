package cli_test

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coder/activity-exporter/cli/clitest"
	"github.com/coder/activity-exporter/exportersdk"
	"github.com/coder/activity-exporter/testutil"
)

var servingRe = regexp.MustCompile(`Serving metrics on (http://\S+)/metrics`)

func TestServer(t *testing.T) {
	t.Parallel()

	waitCtx := testutil.Context(t, testutil.WaitLong)
	ctx, cancel := context.WithCancel(waitCtx)
	defer cancel()

	inv, out := clitest.New(t, "server",
		"--address", "127.0.0.1",
		"--port", "0",
		"--workspace-folder", "proj=/ws/proj",
		"--collect-process-metrics=false",
	)
	inv.Environ.Set("ACTIVITY_EXPORTER_METRICS_NAMESPACE", "editor")
	inv = inv.WithContext(ctx)
	errCh := clitest.Start(t, inv)

	var serverURL *url.URL
	testutil.Eventually(waitCtx, t, func(context.Context) bool {
		m := servingRe.FindStringSubmatch(out.Stdout.String())
		if m == nil {
			return false
		}
		u, err := url.Parse(m[1])
		require.NoError(t, err)
		serverURL = u
		return true
	}, testutil.IntervalFast)

	health := testutil.RequireEventuallyJSON[exportersdk.HealthcheckResponse](waitCtx, t, serverURL.JoinPath("healthz").String())
	require.True(t, health.Healthy)

	client := exportersdk.New(serverURL)
	res, err := client.PostEvents(waitCtx, exportersdk.PostEventsRequest{
		Events: []exportersdk.Event{{
			Type:     exportersdk.EventTypeFocusChanged,
			Document: &exportersdk.Document{Path: "/ws/proj/main.go", Language: "go"},
		}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Accepted)

	st, err := client.State(waitCtx)
	require.NoError(t, err)
	require.Equal(t, "/ws/proj/main.go", st.Document)
	require.Equal(t, []exportersdk.WorkspaceFolder{{Name: "proj", Path: "/ws/proj"}}, st.WorkspaceFolders)

	metrics, err := client.Metrics(waitCtx)
	require.NoError(t, err)
	body, err := io.ReadAll(metrics.Body)
	_ = metrics.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(body), "editor_exporter_idle")
	require.NotContains(t, string(body), "go_goroutines")

	cancel()
	err = testutil.RequireReceive(waitCtx, t, errCh)
	require.ErrorIs(t, err, context.Canceled)
	require.Contains(t, out.Stdout.String(), "Gracefully shut down API server")
}

func TestServerInvalidOptions(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("port: 70000\n"), 0o600))

	for _, tc := range []struct {
		name string
		args []string
		env  map[string]string
		err  string
	}{
		{
			name: "IdleTimeout",
			args: []string{"--idle-timeout", "0s"},
			err:  "idle timeout must be positive",
		},
		{
			name: "HeartbeatFromEnv",
			env:  map[string]string{"ACTIVITY_EXPORTER_IDLE_HEARTBEAT_INTERVAL": "-1s"},
			err:  "idle heartbeat interval must be positive",
		},
		{
			name: "QueueSize",
			args: []string{"--event-queue-size", "0"},
			err:  "event queue size must be positive",
		},
		{
			name: "WorkspaceFolder",
			args: []string{"--workspace-folder", "proj"},
			err:  "expected name=path",
		},
		{
			name: "ConfigFile",
			args: []string{"--config", configPath},
			err:  "port 70000 is out of range",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			inv, _ := clitest.New(t, append([]string{"server"}, tc.args...)...)
			for k, v := range tc.env {
				inv.Environ.Set(k, v)
			}
			err := inv.WithContext(testutil.Context(t, testutil.WaitShort)).Run()
			require.ErrorContains(t, err, tc.err)
		})
	}
}
