package activity

import (
	"path/filepath"
	"strconv"
	"strings"
)

// WorkspaceFolder is a named root directory open in the host.
type WorkspaceFolder struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// FileLabels is the dimension key derived from a file path.
type FileLabels struct {
	Project   string
	Folder    string
	File      string
	Extension string
}

// DeriveLabels maps an absolute path to its labels given the known
// workspace roots. It is pure: the same inputs always produce the same
// labels, and an empty path produces empty labels.
func DeriveLabels(path string, roots []WorkspaceFolder) FileLabels {
	if path == "" {
		return FileLabels{}
	}

	clean := filepath.Clean(path)
	dir := filepath.Dir(clean)
	labels := FileLabels{
		File:      filepath.Base(clean),
		Extension: strings.TrimPrefix(filepath.Ext(clean), "."),
	}

	if root, rel, ok := matchRoot(dir, roots); ok {
		labels.Project = root.Name
		labels.Folder = rel
		return labels
	}
	if len(roots) == 1 {
		labels.Project = roots[0].Name
	}
	if dir != "." {
		labels.Folder = strings.TrimPrefix(filepath.ToSlash(dir), "/")
	}
	return labels
}

// matchRoot returns the deepest root containing dir, and dir relative to it.
func matchRoot(dir string, roots []WorkspaceFolder) (WorkspaceFolder, string, bool) {
	var (
		best    WorkspaceFolder
		bestLen = -1
		rel     string
	)
	for _, root := range roots {
		if root.Path == "" {
			continue
		}
		rootPath := filepath.Clean(root.Path)
		if dir != rootPath && !strings.HasPrefix(dir, strings.TrimSuffix(rootPath, string(filepath.Separator))+string(filepath.Separator)) {
			continue
		}
		if len(rootPath) <= bestLen {
			continue
		}
		r, err := filepath.Rel(rootPath, dir)
		if err != nil {
			continue
		}
		if r == "." {
			r = ""
		}
		best, bestLen, rel = root, len(rootPath), filepath.ToSlash(r)
	}
	return best, rel, bestLen >= 0
}

// fileLabelValues orders the accrual labels for the editor vectors.
func fileLabelValues(l FileLabels, language string) []string {
	return []string{l.Project, l.Folder, l.File, l.Extension, language}
}

func documentLabelValues(doc Document, roots []WorkspaceFolder) []string {
	l := DeriveLabels(doc.Path, roots)
	return []string{l.Project, l.Folder, l.File, doc.Language, boolLabel(doc.Untitled)}
}

func notebookLabelValues(nb Notebook, roots []WorkspaceFolder) []string {
	l := DeriveLabels(nb.Path, roots)
	return []string{l.Project, l.Folder, l.File, nb.Type, boolLabel(nb.Untitled)}
}

func uriLabelValues(path string, roots []WorkspaceFolder) []string {
	l := DeriveLabels(path, roots)
	return []string{l.Project, l.Folder, l.File}
}

func boolLabel(b bool) string {
	return strconv.FormatBool(b)
}

func exitCodeLabel(code *int) string {
	if code == nil {
		return ""
	}
	return strconv.Itoa(*code)
}
