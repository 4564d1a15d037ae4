package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/dshills/lspbridge/internal/editor"
	"github.com/dshills/lspbridge/internal/lsp"
)

// NoActionsMessage is shown when a server offers no code actions.
const NoActionsMessage = "No actions available"

// DoubleEncode serializes v to JSON, then serializes that text again as a
// JSON string literal. The result survives being read back first by the
// editor's tokenizer and then by a TOML parser, which sees a basic string
// holding the first serialization.
func DoubleEncode(v any) (string, error) {
	first, err := marshal(v)
	if err != nil {
		return "", &lsp.SerializationError{What: "arguments", Err: err}
	}
	second, err := marshal(string(first))
	if err != nil {
		return "", &lsp.SerializationError{What: "arguments", Err: err}
	}
	// JSON leaves DEL unescaped, TOML basic strings reject it.
	return strings.ReplaceAll(string(second), "\x7f", `\u007f`), nil
}

// marshal is json.Marshal without HTML escaping.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// SelectCommand returns the editor command that runs entry when chosen from
// the menu.
func SelectCommand(entry lsp.MenuEntry) (string, error) {
	switch entry.Kind {
	case lsp.SelectExecuteCommand:
		args, err := DoubleEncode(entry.Args)
		if err != nil {
			return "", err
		}
		return "lsp-execute-command " + editor.Quote(entry.Command) + " " + editor.Quote(args), nil
	default:
		edit, err := DoubleEncode(entry.Edit)
		if err != nil {
			return "", err
		}
		return "lsp-apply-workspace-edit " + editor.Quote(edit), nil
	}
}

// Menu builds the menu command offering actions in the order given. An
// empty list yields lsp.ErrNoActionsAvailable.
func Menu(actions []lsp.ActionOrCommand) (string, error) {
	if len(actions) == 0 {
		return "", lsp.ErrNoActionsAvailable
	}

	pairs := make([]string, 0, len(actions))
	for _, a := range actions {
		entry := a.Normalize()
		cmd, err := SelectCommand(entry)
		if err != nil {
			return "", err
		}
		pairs = append(pairs, editor.Quote(entry.Title)+" "+editor.Quote(cmd))
	}
	return "menu " + strings.Join(pairs, " "), nil
}

// codeAction asks for the actions available at the cursor of req. The
// diagnostics covering the cursor are sent along as context.
func (c *Context) codeAction(req editor.Request) error {
	params, err := editor.DecodeParams[editor.CodeActionParams](req)
	if err != nil {
		return err
	}

	meta := req.Meta
	enc, err := c.encodingFor(meta)
	if err != nil {
		return err
	}
	pos, err := c.lspPosition(meta.Buffile, params.Position, enc)
	if err != nil {
		c.abandon(meta, req.Method, err)
		return nil
	}

	diags, _ := c.Diagnostics(meta.Buffile)
	covering := Covering(diags, pos)
	if covering == nil {
		covering = []lsp.Diagnostic{}
	}

	Call(c, meta, "textDocument/codeAction", lsp.CodeActionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: lsp.FilePathToURI(meta.Buffile)},
		Range:        lsp.Range{Start: pos, End: pos},
		Context:      lsp.CodeActionContext{Diagnostics: covering},
	}, func(c *Context, meta editor.Meta, result *[]lsp.ActionOrCommand) {
		// The buffer may have changed or closed while the request was in
		// flight.
		if _, err := c.lspPosition(meta.Buffile, params.Position, enc); err != nil {
			c.abandon(meta, "textDocument/codeAction", err)
			return
		}
		c.showActions(meta, result)
	})
	return nil
}

// showActions presents the server's actions as a menu. A null result means
// the server had nothing to say and shows nothing.
func (c *Context) showActions(meta editor.Meta, result *[]lsp.ActionOrCommand) {
	if result == nil {
		c.log.Debug().Str("buffile", meta.Buffile).Msg("null code action result")
		return
	}
	for _, a := range *result {
		c.log.Debug().Str("title", a.Title()).Bool("command", a.Command != nil).Msg("code action")
	}

	menu, err := Menu(*result)
	switch {
	case errors.Is(err, lsp.ErrNoActionsAvailable):
		c.Exec(meta, "lsp-show-error "+editor.Quote(NoActionsMessage))
	case err != nil:
		c.log.Error().Err(err).Str("buffile", meta.Buffile).Msg("build menu")
		c.showError(meta, err)
	default:
		c.Exec(meta, menu)
	}
}
