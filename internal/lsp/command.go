package lsp

import (
	"context"

	lsp "github.com/sourcegraph/go-lsp"
)

// Command names understood by elm-analyzer through
// workspace/executeCommand.
const (
	CmdRenameFile   = "elm-analyzer.rename-file"
	CmdMoveFile     = "elm-analyzer.move-file"
	CmdMoveFunction = "elm-analyzer.move-function"
	CmdGenerateERD  = "elm-analyzer.generate-erd"
)

// CommandResult is the payload every elm-analyzer command returns,
// discriminated by Success. On failure only Error is meaningful. Edits,
// OldName, NewName and FilesChanged are set by the rename and move
// commands; Text is set by generate-erd.
type CommandResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	Edits        map[lsp.DocumentURI][]lsp.TextEdit `json:"edits,omitempty"`
	OldName      string                             `json:"oldName,omitempty"`
	NewName      string                             `json:"newName,omitempty"`
	FilesChanged int                                `json:"filesChanged,omitempty"`

	Text string `json:"text,omitempty"`
}

func (c *Conn) executeCommand(ctx context.Context, command string, arg interface{}) (*CommandResult, error) {
	params := &lsp.ExecuteCommandParams{
		Command:   command,
		Arguments: []interface{}{arg},
	}
	var res CommandResult
	if err := c.rpc.Call(ctx, "workspace/executeCommand", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RenameFile asks the server to rename the file at uri to newBaseName
// within its directory and to compute the edits updating every module
// referencing it.
func (c *Conn) RenameFile(ctx context.Context, uri lsp.DocumentURI, newBaseName string) (*CommandResult, error) {
	return c.executeCommand(ctx, CmdRenameFile, struct {
		URI         lsp.DocumentURI `json:"uri"`
		NewBaseName string          `json:"newBaseName"`
	}{uri, newBaseName})
}

// MoveFile asks the server to move the file at uri to the path given
// relative to the workspace root.
func (c *Conn) MoveFile(ctx context.Context, uri lsp.DocumentURI, newRelativePath string) (*CommandResult, error) {
	return c.executeCommand(ctx, CmdMoveFile, struct {
		URI             lsp.DocumentURI `json:"uri"`
		NewRelativePath string          `json:"newRelativePath"`
	}{uri, newRelativePath})
}

// MoveFunction asks the server to move the function declared at the
// given position to the module at targetPath.
func (c *Conn) MoveFunction(ctx context.Context, uri lsp.DocumentURI, line, column int, targetPath string) (*CommandResult, error) {
	return c.executeCommand(ctx, CmdMoveFunction, struct {
		URI        lsp.DocumentURI `json:"uri"`
		Line       int             `json:"line"`
		Column     int             `json:"column"`
		TargetPath string          `json:"targetPath"`
	}{uri, line, column, targetPath})
}

// GenerateERD asks the server to render an entity-relationship diagram
// for the type declared in the file at uri.
func (c *Conn) GenerateERD(ctx context.Context, uri lsp.DocumentURI, typeName string) (*CommandResult, error) {
	return c.executeCommand(ctx, CmdGenerateERD, struct {
		URI      lsp.DocumentURI `json:"uri"`
		TypeName string          `json:"typeName"`
	}{uri, typeName})
}
