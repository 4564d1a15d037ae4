package bridge

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/dshills/lspbridge/internal/editor"
	"github.com/dshills/lspbridge/internal/lsp"
)

// executeCommand forwards a command chosen from the code action menu. Its
// arguments arrive as the JSON text produced by the first half of
// DoubleEncode.
func (c *Context) executeCommand(req editor.Request) error {
	params, err := editor.DecodeParams[editor.ExecuteCommandParams](req)
	if err != nil {
		return err
	}
	if params.Command == "" {
		return fmt.Errorf("%s: missing command", req.Method)
	}

	var args []json.RawMessage
	if text := strings.TrimSpace(params.Arguments); text != "" {
		if err := json.Unmarshal([]byte(text), &args); err != nil {
			return fmt.Errorf("%s: arguments: %w", req.Method, err)
		}
	}

	Call(c, req.Meta, "workspace/executeCommand", lsp.ExecuteCommandParams{
		Command:   params.Command,
		Arguments: args,
	}, func(c *Context, meta editor.Meta, result json.RawMessage) {
		c.log.Debug().Str("command", params.Command).RawJSON("result", result).Msg("command executed")
	})
	return nil
}

// applyEditRequest applies an edit chosen from the code action menu.
func (c *Context) applyEditRequest(req editor.Request) error {
	params, err := editor.DecodeParams[editor.ApplyEditParams](req)
	if err != nil {
		return err
	}

	var edit *lsp.WorkspaceEdit
	if text := strings.TrimSpace(params.Edit); text != "" {
		if err := json.Unmarshal([]byte(text), &edit); err != nil {
			return fmt.Errorf("%s: edit: %w", req.Method, err)
		}
	}
	if edit == nil {
		c.log.Debug().Str("buffile", req.Meta.Buffile).Msg("action has no edit")
		return nil
	}

	enc, err := c.encodingFor(req.Meta)
	if err != nil {
		return err
	}
	return c.applyWorkspaceEdit(req.Meta, enc, edit)
}

// applyWorkspaceEdit sends the editor one command per edited file. Nothing
// is sent if any edit cannot be translated.
func (c *Context) applyWorkspaceEdit(meta editor.Meta, enc lsp.OffsetEncoding, edit *lsp.WorkspaceEdit) error {
	var commands []string
	for _, file := range edit.Files() {
		path := lsp.URIToFilePath(file.URI)
		lines, err := c.linesOf(path)
		if err != nil {
			return err
		}
		cmd, err := TextEditCommand(path, lines, file.Edits, enc)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		commands = append(commands, cmd)
	}
	for _, cmd := range commands {
		c.Exec(meta, cmd)
	}
	return nil
}

// TextEditCommand renders edits to one buffer as
//
//	evaluate-commands -buffer <file> <lsp-text-edit <start> <end> <text> ...>
//
// where start and end are editor positions, end exclusive. Edits are listed
// from the end of the buffer backwards so earlier positions stay valid.
// Edits sharing a start are listed in reverse of their given order, so that
// inserting each one at that start leaves them in the given order.
func TextEditCommand(path string, lines *lsp.LineIndex, edits []lsp.TextEdit, enc lsp.OffsetEncoding) (string, error) {
	ordered := slices.Clone(edits)
	slices.Reverse(ordered)
	slices.SortStableFunc(ordered, func(a, b lsp.TextEdit) int {
		return lsp.ComparePositions(b.Range.Start, a.Range.Start)
	})

	block := make([]string, 0, len(ordered))
	for _, e := range ordered {
		start, err := editorPosition(lines, e.Range.Start, enc)
		if err != nil {
			return "", err
		}
		end, err := editorPosition(lines, e.Range.End, enc)
		if err != nil {
			return "", err
		}
		block = append(block, "lsp-text-edit "+start.String()+" "+end.String()+" "+editor.Quote(e.NewText))
	}
	return "evaluate-commands -buffer " + editor.Quote(path) + " " + editor.Quote(strings.Join(block, "\n")), nil
}
