// Package lsp implements the connection to the elm-analyzer language
// server and the protocol requests this client consumes.
package lsp

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/elm-pilot/elm-pilot/internal/text"
)

// handler handles JSON-RPC requests and notifications sent by the
// server.
type handler struct {
	log zerolog.Logger
}

func (h *handler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if strings.HasPrefix(req.Method, "$/") {
		// Ignore server dependent notifications
		return
	}
	switch req.Method {
	case "textDocument/publishDiagnostics":
		var params lsp.PublishDiagnosticsParams
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			h.log.Warn().Err(err).Msg("diagnostics unmarshal failed")
			return
		}
		for _, diag := range params.Diagnostics {
			h.log.Debug().
				Str("file", text.ToPath(params.URI)).
				Int("line", diag.Range.Start.Line+1).
				Msg(diag.Message)
		}
	case "window/showMessage":
		var params lsp.ShowMessageParams
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			h.log.Warn().Err(err).Msg("window/showMessage unmarshal failed")
			return
		}
		h.log.Info().Msg(params.Message)
	case "window/logMessage":
		var params lsp.LogMessageParams
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			h.log.Warn().Err(err).Msg("window/logMessage unmarshal failed")
			return
		}
		h.log.Debug().Msg(params.Message)
	default:
		h.log.Debug().Str("method", req.Method).Msg("unhandled server request")
	}
}

// ClientConfig contains connection configuration values.
type ClientConfig struct {
	// RootDir is used to compute the root URI for initialization.
	RootDir string

	Log zerolog.Logger
}

// Conn is a connection to the elm-analyzer server.
type Conn struct {
	rpc *jsonrpc2.Conn
	log zerolog.Logger
}

// New performs the initialize handshake over conn and returns the
// connection.
func New(ctx context.Context, conn net.Conn, cfg ClientConfig) (*Conn, error) {
	stream := jsonrpc2.NewBufferedStream(conn, jsonrpc2.VSCodeObjectCodec{})
	rpc := jsonrpc2.NewConn(ctx, stream, &handler{log: cfg.Log})

	d, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, err
	}
	initp := &lsp.InitializeParams{
		RootURI: text.ToURI(d),
	}
	var initr lsp.InitializeResult
	if err := rpc.Call(ctx, "initialize", initp, &initr); err != nil {
		rpc.Close()
		return nil, errors.Wrap(err, "initialize failed")
	}
	if err := rpc.Notify(ctx, "initialized", struct{}{}); err != nil {
		rpc.Close()
		return nil, errors.Wrap(err, "initialized failed")
	}
	return &Conn{
		rpc: rpc,
		log: cfg.Log,
	}, nil
}

func (c *Conn) Close() error {
	return c.rpc.Close()
}

// Shutdown performs the shutdown/exit sequence before closing the
// connection.
func (c *Conn) Shutdown(ctx context.Context) error {
	if err := c.rpc.Call(ctx, "shutdown", nil, nil); err != nil {
		c.rpc.Close()
		return errors.Wrap(err, "shutdown failed")
	}
	c.rpc.Notify(ctx, "exit", nil)
	return c.rpc.Close()
}

// DisconnectNotify returns a channel that is closed when the underlying
// connection is closed, whether by Close or by the server going away.
func (c *Conn) DisconnectNotify() <-chan struct{} {
	return c.rpc.DisconnectNotify()
}

// IsMethodNotFound reports whether err is the server's "method not
// found" failure, which distinguishes an unsupported feature from a
// transient request failure.
func IsMethodNotFound(err error) bool {
	var rpcErr *jsonrpc2.Error
	return errors.As(err, &rpcErr) && rpcErr.Code == jsonrpc2.CodeMethodNotFound
}

// DocumentSymbols requests the symbols of the document at uri. Only the
// flat response shape is accepted: each entry carries its location
// inline.
func (c *Conn) DocumentSymbols(ctx context.Context, uri lsp.DocumentURI) ([]lsp.SymbolInformation, error) {
	params := &lsp.DocumentSymbolParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: uri},
	}
	var syms []lsp.SymbolInformation
	if err := c.rpc.Call(ctx, "textDocument/documentSymbol", params, &syms); err != nil {
		return nil, err
	}
	return syms, nil
}

// References requests the locations referencing the symbol at pos,
// excluding the declaration itself.
func (c *Conn) References(ctx context.Context, pos lsp.TextDocumentPositionParams) ([]lsp.Location, error) {
	params := &lsp.ReferenceParams{
		TextDocumentPositionParams: pos,
		Context: lsp.ReferenceContext{
			IncludeDeclaration: false,
		},
	}
	var locs []lsp.Location
	if err := c.rpc.Call(ctx, "textDocument/references", params, &locs); err != nil {
		return nil, err
	}
	return locs, nil
}

func (c *Conn) DidOpen(filename string, body []byte) error {
	params := &lsp.DidOpenTextDocumentParams{
		TextDocument: lsp.TextDocumentItem{
			URI:        text.ToURI(filename),
			LanguageID: "elm",
			Version:    0,
			Text:       string(body),
		},
	}
	return c.rpc.Notify(context.Background(), "textDocument/didOpen", params)
}

func (c *Conn) DidChange(filename string, body []byte, version int) error {
	params := &lsp.DidChangeTextDocumentParams{
		TextDocument: lsp.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: lsp.TextDocumentIdentifier{URI: text.ToURI(filename)},
			Version:                version,
		},
		ContentChanges: []lsp.TextDocumentContentChangeEvent{
			{Text: string(body)},
		},
	}
	return c.rpc.Notify(context.Background(), "textDocument/didChange", params)
}

func (c *Conn) DidClose(filename string) error {
	params := &lsp.DidCloseTextDocumentParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: text.ToURI(filename)},
	}
	return c.rpc.Notify(context.Background(), "textDocument/didClose", params)
}
