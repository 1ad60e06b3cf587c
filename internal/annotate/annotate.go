// Package annotate computes reference-count annotations for the
// declarations in a source document.
package annotate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/rs/zerolog"
	lsp "github.com/sourcegraph/go-lsp"

	lspclient "github.com/elm-pilot/elm-pilot/internal/lsp"
)

// Server is the subset of protocol operations the annotator issues.
type Server interface {
	DocumentSymbols(ctx context.Context, uri lsp.DocumentURI) ([]lsp.SymbolInformation, error)
	References(ctx context.Context, pos lsp.TextDocumentPositionParams) ([]lsp.Location, error)
}

// annotatedKinds are the declaration kinds that receive an annotation.
var annotatedKinds = map[lsp.SymbolKind]bool{
	lsp.SKFunction:  true,
	lsp.SKClass:     true,
	lsp.SKStruct:    true,
	lsp.SKEnum:      true,
	lsp.SKInterface: true,
}

// Lens is an annotation anchor at a declaration. Its label is resolved
// lazily, when the annotation becomes visible.
type Lens struct {
	URI   lsp.DocumentURI
	Range lsp.Range
	Name  string
	Kind  lsp.SymbolKind
}

// Label is a resolved annotation. An actionable label opens the
// editor's references view at Position when activated; a label for zero
// references is not actionable.
type Label struct {
	Text       string
	Actionable bool
	Position   lsp.Position
}

// invalidationDelay batches rapid successive document changes into one
// recomputation.
const invalidationDelay = 500 * time.Millisecond

// Annotator computes lenses per document and resolves their labels on
// demand. Every protocol failure degrades to "no annotation".
type Annotator struct {
	// Conn returns the current server connection, consulted per
	// request so restarts replace it mid-session.
	Conn func() (Server, error)

	Log zerolog.Logger

	mu          sync.Mutex
	unsupported bool
	debouncers  map[lsp.DocumentURI]func(func())
}

// Lenses requests the document's symbols and returns one lens per
// annotated declaration. Responses must be the flat shape, each entry
// carrying its location inline; errors degrade to no lenses.
func (a *Annotator) Lenses(ctx context.Context, uri lsp.DocumentURI) []Lens {
	a.mu.Lock()
	unsupported := a.unsupported
	a.mu.Unlock()
	if unsupported {
		return nil
	}

	conn, err := a.Conn()
	if err != nil {
		return nil
	}
	syms, err := conn.DocumentSymbols(ctx, uri)
	if err != nil {
		if lspclient.IsMethodNotFound(err) {
			a.mu.Lock()
			a.unsupported = true
			a.mu.Unlock()
			a.Log.Info().Msg("server does not support documentSymbol; reference annotations disabled")
		} else {
			a.Log.Debug().Err(err).Str("uri", string(uri)).Msg("documentSymbol failed")
		}
		return nil
	}

	var lenses []Lens
	for _, sym := range syms {
		if !annotatedKinds[sym.Kind] {
			continue
		}
		lenses = append(lenses, Lens{
			URI:   uri,
			Range: sym.Location.Range,
			Name:  sym.Name,
			Kind:  sym.Kind,
		})
	}
	return lenses
}

// Resolve requests the reference count at the lens's declaration,
// excluding the declaration itself. The second return value is false
// when resolution failed and no annotation should be shown.
func (a *Annotator) Resolve(ctx context.Context, lens Lens) (Label, bool) {
	conn, err := a.Conn()
	if err != nil {
		return Label{}, false
	}
	locs, err := conn.References(ctx, lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: lens.URI},
		Position:     lens.Range.Start,
	})
	if err != nil {
		a.Log.Debug().Err(err).Str("symbol", lens.Name).Msg("references failed")
		return Label{}, false
	}

	n := len(locs)
	text := fmt.Sprintf("%d references", n)
	if n == 1 {
		text = "1 reference"
	}
	return Label{
		Text:       text,
		Actionable: n > 0,
		Position:   lens.Range.Start,
	}, true
}

// DocumentChanged schedules recompute after the document at uri changed.
// Rapid change bursts are debounced into a single recomputation.
func (a *Annotator) DocumentChanged(uri lsp.DocumentURI, recompute func()) {
	a.mu.Lock()
	if a.debouncers == nil {
		a.debouncers = make(map[lsp.DocumentURI]func(func()))
	}
	d, ok := a.debouncers[uri]
	if !ok {
		d = debounce.New(invalidationDelay)
		a.debouncers[uri] = d
	}
	a.mu.Unlock()
	d(recompute)
}

// Reset clears per-connection state. Called after a restart so an
// "unsupported" verdict from the previous server does not outlive it.
func (a *Annotator) Reset() {
	a.mu.Lock()
	a.unsupported = false
	a.mu.Unlock()
}
