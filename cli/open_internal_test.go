package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenBrowser(t *testing.T) {
	t.Parallel()

	t.Run("Opened", func(t *testing.T) {
		t.Parallel()
		var opened string
		r := &RootCmd{openURL: func(u string) error {
			opened = u
			return nil
		}}
		inv := r.Command().Invoke("open", "--url", "http://localhost:1234/")
		require.NoError(t, inv.Run())
		require.Equal(t, "http://localhost:1234/metrics", opened)
	})

	t.Run("NoBrowser", func(t *testing.T) {
		t.Parallel()
		r := &RootCmd{openURL: func(string) error {
			return errors.New("no browser")
		}}
		var stderr bytes.Buffer
		inv := r.Command().Invoke("open", "--url", "http://localhost:1234")
		inv.Stderr = &stderr
		err := inv.Run()
		require.ErrorContains(t, err, "no browser")
		require.Contains(t, stderr.String(), "http://localhost:1234/metrics")
	})
}

func TestParseWorkspaceFolders(t *testing.T) {
	t.Parallel()

	folders, err := parseWorkspaceFolders([]string{"app=/src/app", " lib = /src/lib "})
	require.NoError(t, err)
	require.Len(t, folders, 2)
	require.Equal(t, "lib", folders[1].Name)
	require.Equal(t, "/src/lib", folders[1].Path)

	for _, bad := range []string{"app", "=/src", "app="} {
		_, err := parseWorkspaceFolders([]string{bad})
		require.ErrorContains(t, err, "expected name=path", bad)
	}
}
