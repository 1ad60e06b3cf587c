// Package editor is the boundary to the hosting editor. The editor's
// UI chrome is an external collaborator; this package defines the small
// interfaces the rest of the client needs from it, plus a
// filesystem-backed workspace used by the command-line front end and
// tests.
package editor

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	lsp "github.com/sourcegraph/go-lsp"

	"github.com/elm-pilot/elm-pilot/internal/text"
)

// UI surfaces non-blocking notices to the user.
type UI interface {
	Notify(msg string)
	Warn(msg string)
	Error(msg string)
}

// Workspace is the editor-side view of the project tree.
type Workspace interface {
	// RootFor returns the workspace root owning path, or "" when the
	// path belongs to no workspace.
	RootFor(path string) string

	// ApplyEdit applies a multi-file edit set atomically: either every
	// file's edits land or no file is modified.
	ApplyEdit(changes map[lsp.DocumentURI][]lsp.TextEdit) error
}

// FSWorkspace applies workspace edits directly to files on disk.
type FSWorkspace struct {
	Roots []string
}

func (ws *FSWorkspace) RootFor(path string) string {
	best := ""
	for _, root := range ws.Roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if len(root) > len(best) {
			best = root
		}
	}
	return best
}

// ApplyEdit computes every file's new content before touching any of
// them, so a bad edit in one file leaves the whole batch unapplied.
func (ws *FSWorkspace) ApplyEdit(changes map[lsp.DocumentURI][]lsp.TextEdit) error {
	type pending struct {
		filename string
		content  []byte
		mode     os.FileMode
	}
	var writes []pending

	for uri, edits := range changes {
		filename := text.ToPath(uri)
		fi, err := os.Stat(filename)
		if err != nil {
			return errors.Wrapf(err, "cannot edit %v", filename)
		}
		body, err := os.ReadFile(filename)
		if err != nil {
			return errors.Wrapf(err, "cannot edit %v", filename)
		}
		f := text.BytesFile(body)
		if err := text.Edit(&f, edits); err != nil {
			return errors.Wrapf(err, "failed to apply edits to %v", filename)
		}
		writes = append(writes, pending{filename, []byte(f), fi.Mode()})
	}

	for _, w := range writes {
		tmp := w.filename + ".elm-pilot~"
		if err := os.WriteFile(tmp, w.content, w.mode); err != nil {
			return err
		}
		if err := os.Rename(tmp, w.filename); err != nil {
			os.Remove(tmp)
			return err
		}
	}
	return nil
}
