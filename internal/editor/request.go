package editor

import (
	"errors"
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// Request methods understood from the editor.
const (
	MethodDidOpen        = "textDocument/didOpen"
	MethodDidChange      = "textDocument/didChange"
	MethodDidClose       = "textDocument/didClose"
	MethodHover          = "textDocument/hover"
	MethodCodeAction     = "textDocument/codeAction"
	MethodExecuteCommand = "workspace/executeCommand"
	MethodApplyEdit      = "workspace/applyEdit"
	MethodStop           = "stop"
)

// ErrMissingMethod is returned for a request document without a method.
var ErrMissingMethod = errors.New("request has no method")

// Request is one editor request: its metadata, the method, and the raw
// document so method-specific params can be decoded later.
type Request struct {
	Meta   Meta
	Method string
	raw    []byte
}

type requestHeader struct {
	Meta
	Method string `toml:"method"`
}

// ParseRequest decodes the metadata and method of a TOML request document.
//
// Example:
//
//	session  = "main"
//	client   = "client0"
//	buffile  = "/src/main.go"
//	filetype = "go"
//	version  = 3
//	method   = "textDocument/hover"
//
//	[params]
//	position = { line = 4, column = 7 }
func ParseRequest(data []byte) (Request, error) {
	var h requestHeader
	if err := toml.Unmarshal(data, &h); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return Request{}, fmt.Errorf("parse request at %d:%d: %w", row, col, err)
		}
		return Request{}, fmt.Errorf("parse request: %w", err)
	}
	if h.Method == "" {
		return Request{}, ErrMissingMethod
	}
	return Request{Meta: h.Meta, Method: h.Method, raw: data}, nil
}

// NewRequest builds a request from already decoded parts, mostly for tests
// and for requests synthesized inside the bridge. params is encoded under
// the [params] table.
func NewRequest(meta Meta, method string, params any) (Request, error) {
	doc := struct {
		Meta
		Method string `toml:"method"`
		Params any    `toml:"params,omitempty"`
	}{meta, method, params}
	data, err := toml.Marshal(doc)
	if err != nil {
		return Request{}, fmt.Errorf("encode request: %w", err)
	}
	return Request{Meta: meta, Method: method, raw: data}, nil
}

// Raw returns the request document as received.
func (r Request) Raw() []byte {
	return r.raw
}

// DecodeParams decodes the [params] table of r into a T.
func DecodeParams[T any](r Request) (T, error) {
	var doc struct {
		Params T `toml:"params"`
	}
	if err := toml.Unmarshal(r.raw, &doc); err != nil {
		return doc.Params, fmt.Errorf("%s: decode params: %w", r.Method, err)
	}
	return doc.Params, nil
}

// Params of the individual request methods.

// DraftParams carries the full buffer text for didOpen and didChange.
type DraftParams struct {
	Draft string `toml:"draft"`
}

// HoverParams carries the cursor and, optionally, the precedence name for
// combining diagnostics with hover info.
type HoverParams struct {
	Position        Position `toml:"position"`
	HoverPrecedence string   `toml:"hover_precedence"`
}

// CodeActionParams carries the cursor.
type CodeActionParams struct {
	Position Position `toml:"position"`
}

// ExecuteCommandParams carries the command identifier and its arguments as
// JSON text.
type ExecuteCommandParams struct {
	Command   string `toml:"command"`
	Arguments string `toml:"arguments"`
}

// ApplyEditParams carries a workspace edit as JSON text.
type ApplyEditParams struct {
	Edit string `toml:"edit"`
}
