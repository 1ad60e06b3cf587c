package annotate

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"
)

type fakeServer struct {
	symbols    []lsp.SymbolInformation
	symbolsErr error
	refs       map[lsp.Position][]lsp.Location
	refsErr    error

	symbolCalls int32
}

func (f *fakeServer) DocumentSymbols(ctx context.Context, uri lsp.DocumentURI) ([]lsp.SymbolInformation, error) {
	atomic.AddInt32(&f.symbolCalls, 1)
	return f.symbols, f.symbolsErr
}

func (f *fakeServer) References(ctx context.Context, pos lsp.TextDocumentPositionParams) ([]lsp.Location, error) {
	if f.refsErr != nil {
		return nil, f.refsErr
	}
	return f.refs[pos.Position], nil
}

func sym(name string, kind lsp.SymbolKind, line int) lsp.SymbolInformation {
	return lsp.SymbolInformation{
		Name: name,
		Kind: kind,
		Location: lsp.Location{
			URI: "file:///proj/src/Main.elm",
			Range: lsp.Range{
				Start: lsp.Position{Line: line, Character: 0},
				End:   lsp.Position{Line: line, Character: len(name)},
			},
		},
	}
}

func newAnnotator(srv *fakeServer) *Annotator {
	return &Annotator{
		Conn: func() (Server, error) { return srv, nil },
		Log:  zerolog.Nop(),
	}
}

func TestLensesFilterKinds(t *testing.T) {
	srv := &fakeServer{
		symbols: []lsp.SymbolInformation{
			sym("view", lsp.SKFunction, 1),
			sym("Model", lsp.SKStruct, 2),
			sym("Msg", lsp.SKEnum, 3),
			sym("Renderable", lsp.SKInterface, 4),
			sym("Widget", lsp.SKClass, 5),
			sym("count", lsp.SKVariable, 6),
			sym("limit", lsp.SKConstant, 7),
			sym("Main", lsp.SKModule, 0),
		},
	}
	a := newAnnotator(srv)

	lenses := a.Lenses(context.Background(), "file:///proj/src/Main.elm")
	if len(lenses) != 5 {
		t.Fatalf("got %v lenses; expected 5: %+v", len(lenses), lenses)
	}
	for _, l := range lenses {
		if l.Name == "count" || l.Name == "limit" || l.Name == "Main" {
			t.Errorf("symbol %q of kind %v was annotated", l.Name, l.Kind)
		}
	}
	if lenses[0].Range.Start.Line != 1 {
		t.Errorf("lens anchored at %+v; expected the declaration range", lenses[0].Range)
	}
}

func TestResolveLabels(t *testing.T) {
	decl := lsp.Position{Line: 1, Character: 0}
	srv := &fakeServer{
		refs: map[lsp.Position][]lsp.Location{},
	}
	a := newAnnotator(srv)
	lens := Lens{
		URI:   "file:///proj/src/Main.elm",
		Range: lsp.Range{Start: decl},
		Name:  "view",
		Kind:  lsp.SKFunction,
	}

	for _, tc := range []struct {
		refs       int
		text       string
		actionable bool
	}{
		{0, "0 references", false},
		{1, "1 reference", true},
		{3, "3 references", true},
	} {
		locs := make([]lsp.Location, tc.refs)
		srv.refs[decl] = locs

		label, ok := a.Resolve(context.Background(), lens)
		if !ok {
			t.Fatalf("Resolve failed for %v references", tc.refs)
		}
		if label.Text != tc.text {
			t.Errorf("label for %v references is %q; expected %q", tc.refs, label.Text, tc.text)
		}
		if label.Actionable != tc.actionable {
			t.Errorf("label for %v references actionable=%v; expected %v", tc.refs, label.Actionable, tc.actionable)
		}
		if label.Position != decl {
			t.Errorf("label position is %+v; expected the declaration position %+v", label.Position, decl)
		}
	}
}

func TestErrorsDegradeToNoAnnotation(t *testing.T) {
	srv := &fakeServer{symbolsErr: errors.New("boom")}
	a := newAnnotator(srv)

	if lenses := a.Lenses(context.Background(), "file:///proj/src/Main.elm"); lenses != nil {
		t.Errorf("Lenses returned %+v despite a protocol error", lenses)
	}

	srv = &fakeServer{refsErr: errors.New("boom")}
	a = newAnnotator(srv)
	if _, ok := a.Resolve(context.Background(), Lens{URI: "file:///proj/src/Main.elm"}); ok {
		t.Errorf("Resolve succeeded despite a protocol error")
	}
}

func TestMethodNotFoundDisablesAnnotator(t *testing.T) {
	srv := &fakeServer{
		symbolsErr: &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "unhandled"},
	}
	a := newAnnotator(srv)

	a.Lenses(context.Background(), "file:///proj/src/Main.elm")
	a.Lenses(context.Background(), "file:///proj/src/Main.elm")

	if n := atomic.LoadInt32(&srv.symbolCalls); n != 1 {
		t.Fatalf("documentSymbol requested %v times after method-not-found; expected 1", n)
	}

	// a restart clears the verdict
	a.Reset()
	a.Lenses(context.Background(), "file:///proj/src/Main.elm")
	if n := atomic.LoadInt32(&srv.symbolCalls); n != 2 {
		t.Fatalf("documentSymbol not retried after Reset (calls=%v)", n)
	}
}

func TestDocumentChangedDebounces(t *testing.T) {
	a := newAnnotator(&fakeServer{})

	var recomputed int32
	for i := 0; i < 10; i++ {
		a.DocumentChanged("file:///proj/src/Main.elm", func() {
			atomic.AddInt32(&recomputed, 1)
		})
	}

	deadline := time.Now().Add(3 * time.Second)
	for atomic.LoadInt32(&recomputed) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	// a burst of changes collapses into one recomputation
	if n := atomic.LoadInt32(&recomputed); n != 1 {
		t.Fatalf("recomputed %v times; expected 1", n)
	}
}
