package activity_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/coder/activity-exporter/activity"
)

func TestDeriveLabels(t *testing.T) {
	t.Parallel()

	roots := []activity.WorkspaceFolder{
		{Name: "coder", Path: "/home/coder/src/coder"},
		{Name: "site", Path: "/home/coder/src/coder/site"},
		{Name: "dotfiles", Path: "/home/coder/dotfiles"},
	}

	for _, tc := range []struct {
		name   string
		path   string
		roots  []activity.WorkspaceFolder
		expect activity.FileLabels
	}{
		{
			name:   "Empty",
			path:   "",
			roots:  roots,
			expect: activity.FileLabels{},
		},
		{
			name:  "AtRoot",
			path:  "/home/coder/src/coder/go.mod",
			roots: roots,
			expect: activity.FileLabels{
				Project: "coder", Folder: "", File: "go.mod", Extension: "mod",
			},
		},
		{
			name:  "Nested",
			path:  "/home/coder/src/coder/cli/server/main.go",
			roots: roots,
			expect: activity.FileLabels{
				Project: "coder", Folder: "cli/server", File: "main.go", Extension: "go",
			},
		},
		{
			name:  "DeepestRootWins",
			path:  "/home/coder/src/coder/site/src/App.tsx",
			roots: roots,
			expect: activity.FileLabels{
				Project: "site", Folder: "src", File: "App.tsx", Extension: "tsx",
			},
		},
		{
			name:  "SiblingPrefixIsNotARoot",
			path:  "/home/coder/dotfiles-old/vimrc",
			roots: roots,
			expect: activity.FileLabels{
				Project: "", Folder: "home/coder/dotfiles-old", File: "vimrc", Extension: "",
			},
		},
		{
			name:  "OutsideEveryRoot",
			path:  "/etc/hosts",
			roots: roots,
			expect: activity.FileLabels{
				Project: "", Folder: "etc", File: "hosts", Extension: "",
			},
		},
		{
			name:  "SingleRootFallback",
			path:  "/tmp/scratch.py",
			roots: roots[:1],
			expect: activity.FileLabels{
				Project: "coder", Folder: "tmp", File: "scratch.py", Extension: "py",
			},
		},
		{
			name:  "NoRoots",
			path:  "/etc/hosts",
			roots: nil,
			expect: activity.FileLabels{
				Project: "", Folder: "etc", File: "hosts", Extension: "",
			},
		},
		{
			name:  "LastDotOnly",
			path:  "/home/coder/dotfiles/archive.tar.gz",
			roots: roots,
			expect: activity.FileLabels{
				Project: "dotfiles", Folder: "", File: "archive.tar.gz", Extension: "gz",
			},
		},
		{
			name:  "Untitled",
			path:  "Untitled-1",
			roots: nil,
			expect: activity.FileLabels{
				File: "Untitled-1",
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expect, activity.DeriveLabels(tc.path, tc.roots))
		})
	}
}

func TestDeriveLabelsIdempotent(t *testing.T) {
	t.Parallel()

	segment := rapid.StringMatching(`[a-z][a-z0-9_-]{0,7}(\.[a-z]{1,3})?`)
	rapid.Check(t, func(t *rapid.T) {
		parts := rapid.SliceOfN(segment, 1, 6).Draw(t, "parts")
		path := "/" + joinPath(parts)
		roots := []activity.WorkspaceFolder{
			{Name: "root", Path: "/" + joinPath(parts[:rapid.IntRange(0, len(parts)-1).Draw(t, "depth")])},
		}

		first := activity.DeriveLabels(path, roots)
		second := activity.DeriveLabels(path, roots)
		require.Equal(t, first, second)
		require.Equal(t, "root", first.Project)
		require.NotEmpty(t, first.File)
	})
}

func joinPath(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "/"
		}
		out += p
	}
	return out
}
