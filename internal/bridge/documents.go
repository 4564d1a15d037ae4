package bridge

import (
	"fmt"
	"os"

	"github.com/dshills/lspbridge/internal/editor"
	"github.com/dshills/lspbridge/internal/lsp"
)

// document is the latest draft of an open buffer.
type document struct {
	meta  editor.Meta
	text  string
	lines *lsp.LineIndex
}

func newDocument(meta editor.Meta, text string) *document {
	return &document{meta: meta, text: text, lines: lsp.NewLineIndex(text)}
}

func (d *document) openParams() lsp.DidOpenTextDocumentParams {
	return lsp.DidOpenTextDocumentParams{
		TextDocument: lsp.TextDocumentItem{
			URI:        lsp.FilePathToURI(d.meta.Buffile),
			LanguageID: d.meta.Filetype,
			Version:    int(d.meta.Version),
			Text:       d.text,
		},
	}
}

// reopen replays didOpen for the tracked buffers of srv's route, so a
// restarted server sees the same drafts as its predecessor.
func (c *Context) reopen(srv *server) {
	for _, doc := range c.documents {
		route, _, err := c.routeFor(doc.meta)
		if err != nil || route != srv.route {
			continue
		}
		params := doc.openParams()
		srv.whenReady(func() {
			if err := srv.conn.Notify("textDocument/didOpen", params); err != nil {
				c.log.Error().Err(err).Str("route", srv.route.String()).Msg("reopen")
			}
		})
	}
}

// linesOf returns the line index of an open buffer, or of the file on disk
// for files the editor has not opened.
func (c *Context) linesOf(path string) (*lsp.LineIndex, error) {
	if doc, ok := c.documents[path]; ok {
		return doc.lines, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotOpen, path)
	}
	return lsp.NewLineIndex(string(data)), nil
}

// lspPosition translates an editor position in an open buffer into a
// protocol position under enc.
func (c *Context) lspPosition(buffile string, pos editor.Position, enc lsp.OffsetEncoding) (lsp.Position, error) {
	doc, ok := c.documents[buffile]
	if !ok {
		return lsp.Position{}, fmt.Errorf("%w: %s", ErrDocumentNotOpen, buffile)
	}
	return doc.lines.ProtocolPosition(pos.Line-1, pos.Column-1, enc)
}

// editorPosition translates a protocol position into an editor position.
// The position just past the last line maps to column 1 of the line after
// it.
func editorPosition(lines *lsp.LineIndex, pos lsp.Position, enc lsp.OffsetEncoding) (editor.Position, error) {
	if pos.Line == lines.LineCount() && pos.Character == 0 {
		return editor.Position{Line: pos.Line + 1, Column: 1}, nil
	}
	col, err := lines.ByteColumn(pos, enc)
	if err != nil {
		return editor.Position{}, err
	}
	return editor.Position{Line: pos.Line + 1, Column: col + 1}, nil
}

// encodingFor returns the offset encoding of meta's language.
func (c *Context) encodingFor(meta editor.Meta) (lsp.OffsetEncoding, error) {
	_, lang, err := c.language(meta)
	if err != nil {
		return 0, err
	}
	return lang.OffsetEncoding, nil
}

func (c *Context) didOpen(req editor.Request) error {
	params, err := editor.DecodeParams[editor.DraftParams](req)
	if err != nil {
		return err
	}
	meta := req.Meta
	if _, _, err := c.language(meta); err != nil {
		c.log.Debug().Str("filetype", meta.Filetype).Msg("no language, not tracking buffer")
		return nil
	}

	// Track the buffer after notifying: a server started by this request
	// replays the buffers it already knew about, not this one.
	delete(c.documents, meta.Buffile)
	doc := newDocument(meta, params.Draft)
	err = c.Notify(meta, "textDocument/didOpen", doc.openParams())
	c.documents[meta.Buffile] = doc
	return err
}

func (c *Context) didChange(req editor.Request) error {
	meta := req.Meta
	doc, ok := c.documents[meta.Buffile]
	if !ok {
		return c.didOpen(req)
	}
	if meta.Version <= doc.meta.Version {
		c.log.Debug().Str("buffile", meta.Buffile).Uint64("version", meta.Version).
			Uint64("current", doc.meta.Version).Msg("ignoring stale change")
		return nil
	}

	params, err := editor.DecodeParams[editor.DraftParams](req)
	if err != nil {
		return err
	}
	c.documents[meta.Buffile] = newDocument(meta, params.Draft)
	return c.Notify(meta, "textDocument/didChange", lsp.DidChangeTextDocumentParams{
		TextDocument: lsp.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: lsp.TextDocumentIdentifier{URI: lsp.FilePathToURI(meta.Buffile)},
			Version:                int(meta.Version),
		},
		ContentChanges: []lsp.TextDocumentContentChangeEvent{{Text: params.Draft}},
	})
}

func (c *Context) didClose(req editor.Request) error {
	meta := req.Meta
	if _, ok := c.documents[meta.Buffile]; !ok {
		return nil
	}
	delete(c.documents, meta.Buffile)
	return c.Notify(meta, "textDocument/didClose", lsp.DidCloseTextDocumentParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: lsp.FilePathToURI(meta.Buffile)},
	})
}
