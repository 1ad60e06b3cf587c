// Package rename synchronizes editor file renames and moves with the
// elm-analyzer server, applying the returned cross-file edits before
// the rename is finalized.
package rename

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	lsp "github.com/sourcegraph/go-lsp"

	"github.com/elm-pilot/elm-pilot/internal/editor"
	lspclient "github.com/elm-pilot/elm-pilot/internal/lsp"
	"github.com/elm-pilot/elm-pilot/internal/text"
)

// SourceExt identifies files belonging to the analyzed language. Pairs
// where either side carries a different extension are ignored entirely.
const SourceExt = ".elm"

// Pair is one old/new path reported by the editor in a rename batch.
type Pair struct {
	OldPath string
	NewPath string
}

// Server is the subset of protocol operations the synchronizer issues.
type Server interface {
	RenameFile(ctx context.Context, uri lsp.DocumentURI, newBaseName string) (*lspclient.CommandResult, error)
	MoveFile(ctx context.Context, uri lsp.DocumentURI, newRelativePath string) (*lspclient.CommandResult, error)
}

// Result is the tagged outcome of processing one pair. A failed pair
// never aborts the rest of the batch; callers aggregate failures from
// here for reporting.
type Result struct {
	Pair    Pair
	Skipped bool // not a source-to-source rename; no command was issued
	Err     error

	OldName      string
	NewName      string
	FilesChanged int
}

// Synchronizer translates rename batches into protocol commands.
type Synchronizer struct {
	// Conn returns the current server connection. It is consulted per
	// pair rather than captured, because a restart can replace the
	// connection while the batch is in flight.
	Conn func() (Server, error)

	Workspace editor.Workspace
	UI        editor.UI
	Log       zerolog.Logger
}

// WillRename processes one editor rename batch. Commands are issued per
// pair; all returned edits accumulate into a single workspace edit that
// is applied atomically once every pair has been processed. The error
// return is non-nil only when applying the accumulated edit failed.
func (s *Synchronizer) WillRename(ctx context.Context, pairs []Pair) ([]Result, error) {
	results := make([]Result, 0, len(pairs))
	changes := make(map[lsp.DocumentURI][]lsp.TextEdit)

	for _, p := range pairs {
		res := s.processPair(ctx, p, changes)
		if res.Err != nil {
			s.Log.Warn().Err(res.Err).Str("old", p.OldPath).Str("new", p.NewPath).Msg("rename sync failed")
			if s.UI != nil {
				s.UI.Warn(res.Err.Error())
			}
		}
		results = append(results, res)
	}

	if len(changes) == 0 {
		return results, nil
	}
	if err := s.Workspace.ApplyEdit(changes); err != nil {
		return results, errors.Wrap(err, "failed to apply rename edits")
	}
	return results, nil
}

func (s *Synchronizer) processPair(ctx context.Context, p Pair, changes map[lsp.DocumentURI][]lsp.TextEdit) Result {
	res := Result{Pair: p}

	if !strings.HasSuffix(p.OldPath, SourceExt) || !strings.HasSuffix(p.NewPath, SourceExt) {
		res.Skipped = true
		return res
	}

	conn, err := s.Conn()
	if err != nil {
		res.Err = err
		return res
	}

	oldURI := text.ToURI(p.OldPath)
	var cmdRes *lspclient.CommandResult
	if filepath.Dir(p.OldPath) == filepath.Dir(p.NewPath) {
		cmdRes, err = conn.RenameFile(ctx, oldURI, filepath.Base(p.NewPath))
	} else {
		cmdRes, err = conn.MoveFile(ctx, oldURI, s.relativePath(p.NewPath))
	}
	if err != nil {
		res.Err = err
		return res
	}
	if !cmdRes.Success {
		res.Err = errors.New(cmdRes.Error)
		return res
	}

	res.OldName = cmdRes.OldName
	res.NewName = cmdRes.NewName
	res.FilesChanged = cmdRes.FilesChanged
	s.Log.Info().Msg(fmt.Sprintf("renamed module %v to %v (%v files updated)",
		cmdRes.OldName, cmdRes.NewName, cmdRes.FilesChanged))

	for uri, edits := range cmdRes.Edits {
		changes[uri] = append(changes[uri], edits...)
	}
	return res
}

// relativePath computes path relative to its owning workspace root,
// falling back to the absolute path when no root owns it.
func (s *Synchronizer) relativePath(path string) string {
	root := s.Workspace.RootFor(path)
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
