package rpcclient

import (
	"context"

	"github.com/firi/golsp/lspcatalog"
)

// The sugar methods below mirror the shape of the teacher's ClangdClient
// convenience methods (GetHover, GetDefinition, ...), but aimed the other
// direction: these are the calls a *server* makes back into the *client*,
// the half of the protocol the teacher's clangd-facing client never used
// since clangd never calls back into clangd-query.

func (c *Client) ShowMessage(ctx context.Context, level lspcatalog.MessageType, message string) error {
	return c.Notify(ctx, "window/showMessage", lspcatalog.ShowMessageParams{Type: level, Message: message})
}

func (c *Client) LogMessage(ctx context.Context, level lspcatalog.MessageType, message string) error {
	return c.Notify(ctx, "window/logMessage", lspcatalog.LogMessageParams{Type: level, Message: message})
}

func (c *Client) PublishDiagnostics(ctx context.Context, uri string, diagnostics []lspcatalog.Diagnostic) error {
	return c.Notify(ctx, "textDocument/publishDiagnostics", lspcatalog.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func (c *Client) ApplyEdit(ctx context.Context, label string, edit lspcatalog.WorkspaceEdit) (*lspcatalog.ApplyWorkspaceEditResult, error) {
	var result lspcatalog.ApplyWorkspaceEditResult
	if err := c.Request(ctx, "workspace/applyEdit", lspcatalog.ApplyWorkspaceEditParams{Label: label, Edit: edit}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) RegisterCapability(ctx context.Context, registrations ...lspcatalog.Registration) error {
	return c.Request(ctx, "client/registerCapability", lspcatalog.RegistrationParams{Registrations: registrations}, nil)
}

func (c *Client) UnregisterCapability(ctx context.Context, unregistrations ...lspcatalog.Unregistration) error {
	return c.Request(ctx, "client/unregisterCapability", lspcatalog.UnregistrationParams{Unregisterations: unregistrations}, nil)
}

// RegisterFileWatcher is sugar over RegisterCapability for the single most
// common dynamic registration an LSP server performs, supplementing the
// distilled spec's bare mention of register_capability with its most
// common real consumer.
func (c *Client) RegisterFileWatcher(ctx context.Context, id string, watchers ...lspcatalog.FileSystemWatcher) error {
	return c.RegisterCapability(ctx, lspcatalog.Registration{
		ID:     id,
		Method: lspcatalog.MethodDidChangeWatchedFiles,
		RegisterOptions: lspcatalog.DidChangeWatchedFilesRegistrationOptions{
			Watchers: watchers,
		},
	})
}

func (c *Client) WorkDoneProgressCreate(ctx context.Context, token lspcatalog.ProgressToken) error {
	return c.Request(ctx, "window/workDoneProgress/create", lspcatalog.WorkDoneProgressCreateParams{Token: token}, nil)
}

func (c *Client) Progress(ctx context.Context, token lspcatalog.ProgressToken, value interface{}) error {
	raw, err := marshalParams(value)
	if err != nil {
		return err
	}
	return c.Notify(ctx, "$/progress", lspcatalog.ProgressParams{Token: token, Value: raw})
}

func (c *Client) WorkspaceConfiguration(ctx context.Context, items ...lspcatalog.ConfigurationItem) ([]interface{}, error) {
	var result []interface{}
	if err := c.Request(ctx, "workspace/configuration", lspcatalog.ConfigurationParams{Items: items}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) WorkspaceFolders(ctx context.Context) ([]lspcatalog.WorkspaceFolder, error) {
	var result []lspcatalog.WorkspaceFolder
	if err := c.Request(ctx, "workspace/workspaceFolders", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}
