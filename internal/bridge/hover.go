package bridge

import (
	"fmt"
	"strings"

	"github.com/dshills/lspbridge/internal/editor"
	"github.com/dshills/lspbridge/internal/lsp"
)

// HoverPrecedence decides how hover info and diagnostics at the cursor are
// combined.
type HoverPrecedence int

const (
	// PrecedenceInfoFirst shows hover info, a blank line, then diagnostics.
	PrecedenceInfoFirst HoverPrecedence = iota
	// PrecedenceDiagnosticsFirst shows diagnostics, a blank line, then hover info.
	PrecedenceDiagnosticsFirst
	// PrecedenceDiagnosticsOnly prefers diagnostics, falling back to hover info.
	PrecedenceDiagnosticsOnly
	// PrecedenceInfoOnly prefers hover info, falling back to diagnostics.
	PrecedenceInfoOnly
)

var precedenceNames = map[HoverPrecedence]string{
	PrecedenceInfoFirst:        "default",
	PrecedenceDiagnosticsFirst: "reverse",
	PrecedenceDiagnosticsOnly:  "diagnostics_only",
	PrecedenceInfoOnly:         "info_only",
}

func (p HoverPrecedence) String() string {
	if name, ok := precedenceNames[p]; ok {
		return name
	}
	return fmt.Sprintf("HoverPrecedence(%d)", int(p))
}

// ParseHoverPrecedence parses default, reverse, diagnostics_only or
// info_only.
func ParseHoverPrecedence(s string) (HoverPrecedence, error) {
	for p, name := range precedenceNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownPrecedence, s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *HoverPrecedence) UnmarshalText(text []byte) error {
	v, err := ParseHoverPrecedence(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// bulleted trims each item, drops empty ones, and joins the rest as a
// bulleted list.
func bulleted(items []string) string {
	var b strings.Builder
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("• ")
		b.WriteString(item)
	}
	return b.String()
}

// DiagnosticsText renders the messages of the diagnostics covering pos.
func DiagnosticsText(diags []lsp.Diagnostic, pos lsp.Position) string {
	covering := Covering(diags, pos)
	messages := make([]string, len(covering))
	for i, d := range covering {
		messages[i] = d.Message
	}
	return bulleted(messages)
}

// HoverText reduces a hover result to plain text. A nil hover is empty.
func HoverText(h *lsp.Hover) string {
	if h == nil {
		return ""
	}
	switch h.Contents.Kind {
	case lsp.HoverContentsArray:
		items := make([]string, len(h.Contents.Array))
		for i, m := range h.Contents.Array {
			items[i] = m.PlainText()
		}
		return bulleted(items)
	case lsp.HoverContentsMarkup:
		return h.Contents.Markup.Value
	default:
		return h.Contents.Scalar.PlainText()
	}
}

// ComposeHover combines hover and diagnostics text under p. ok is false
// when there is nothing to show, in which case no command is sent at all.
func ComposeHover(p HoverPrecedence, hover, diags string) (text string, ok bool) {
	switch {
	case hover == "" && diags == "":
		return "", false
	case hover == "":
		return diags, true
	case diags == "":
		return hover, true
	}

	switch p {
	case PrecedenceDiagnosticsOnly:
		return diags, true
	case PrecedenceInfoOnly:
		return hover, true
	case PrecedenceDiagnosticsFirst:
		return diags + "\n\n" + hover, true
	default:
		return hover + "\n\n" + diags, true
	}
}

// hover sends textDocument/hover for the cursor of req.
func (c *Context) hover(req editor.Request) error {
	params, err := editor.DecodeParams[editor.HoverParams](req)
	if err != nil {
		return err
	}
	precedence := c.precedence
	if params.HoverPrecedence != "" {
		if precedence, err = ParseHoverPrecedence(params.HoverPrecedence); err != nil {
			return err
		}
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

	Call(c, meta, "textDocument/hover", lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: lsp.FilePathToURI(meta.Buffile)},
		Position:     pos,
	}, func(c *Context, meta editor.Meta, result *lsp.Hover) {
		c.showHover(meta, params.Position, enc, precedence, result)
	})
	return nil
}

// showHover emits the fused hover text at the editor position at. The
// position is translated again because the buffer may have changed or
// closed while the request was in flight.
func (c *Context) showHover(meta editor.Meta, at editor.Position, enc lsp.OffsetEncoding, p HoverPrecedence, result *lsp.Hover) {
	pos, err := c.lspPosition(meta.Buffile, at, enc)
	if err != nil {
		c.abandon(meta, "textDocument/hover", err)
		return
	}

	diags, _ := c.Diagnostics(meta.Buffile)
	text, ok := ComposeHover(p, HoverText(result), DiagnosticsText(diags, pos))
	if !ok {
		return
	}
	c.Exec(meta, "lsp-show-hover "+at.String()+" "+editor.Quote(text))
}
