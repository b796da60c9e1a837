package clilog_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"cdr.dev/slog/v3"
	"github.com/coder/activity-exporter/cli/clilog"
	"github.com/coder/serpent"
)

func TestBuilder(t *testing.T) {
	t.Parallel()

	t.Run("HumanFile", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "exporter.log")
		logger, closeLog, err := clilog.New(clilog.WithHuman(path)).Build(invocation())
		require.NoError(t, err)
		logger.Info(context.Background(), "hello from the exporter")
		logger.Debug(context.Background(), "too quiet")
		closeLog()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(data), "hello from the exporter")
		require.NotContains(t, string(data), "too quiet")
	})

	t.Run("JSONVerbose", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "exporter.json")
		logger, closeLog, err := clilog.New(clilog.WithJSON(path), clilog.WithVerbose(true)).Build(invocation())
		require.NoError(t, err)
		logger.Debug(context.Background(), "debug line", slog.F("queue_depth", 3))
		closeLog()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(data), "debug line")
		require.Contains(t, string(data), "queue_depth")
	})

	t.Run("Filter", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "exporter.log")
		logger, closeLog, err := clilog.New(clilog.WithHuman(path), clilog.WithFilter("activity")).Build(invocation())
		require.NoError(t, err)
		logger.Named("activity").Debug(context.Background(), "engine detail")
		logger.Named("exporterd").Debug(context.Background(), "http detail")
		logger.Named("exporterd").Info(context.Background(), "http info")
		closeLog()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(data), "engine detail")
		require.NotContains(t, string(data), "http detail")
		require.Contains(t, string(data), "http info")
	})

	t.Run("BadFilter", func(t *testing.T) {
		t.Parallel()
		_, _, err := clilog.New(clilog.WithHuman("/dev/stderr"), clilog.WithFilter("(")).Build(invocation())
		require.ErrorContains(t, err, "compile filters")
	})

	t.Run("Stderr", func(t *testing.T) {
		t.Parallel()
		var stderr strings.Builder
		inv := invocation()
		inv.Stderr = &stderr
		logger, closeLog, err := clilog.New(clilog.WithHuman("/dev/stderr")).Build(inv)
		require.NoError(t, err)
		defer closeLog()
		logger.Info(context.Background(), "to the terminal")
		require.Contains(t, stderr.String(), "to the terminal")
	})
}

func TestLumberjackWriteCloseFixer(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.log")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := &clilog.LumberjackWriteCloseFixer{Writer: f}
	_, err = w.Write([]byte("one"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	_, err = w.Write([]byte("two"))
	require.ErrorIs(t, err, io.ErrClosedPipe)
}

func invocation() *serpent.Invocation {
	return (&serpent.Command{}).Invoke()
}
