package bridge

import (
	"encoding/json"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lspbridge/internal/editor"
	"github.com/dshills/lspbridge/internal/lsp"
)

// unwrapArgument reverses DoubleEncode the way the editor side does: the
// encoded text is spliced into a TOML document as the value of a key, and
// the resulting string is then parsed as JSON.
func unwrapArgument(t *testing.T, encoded string) (string, any) {
	t.Helper()

	var doc struct {
		Arguments string `toml:"arguments"`
	}
	require.NoError(t, toml.Unmarshal([]byte("arguments = "+encoded+"\n"), &doc), "encoded: %s", encoded)

	var value any
	require.NoError(t, json.Unmarshal([]byte(doc.Arguments), &value))
	return doc.Arguments, value
}

// menuEntries tokenizes a menu command into (title, select command) pairs.
func menuEntries(t *testing.T, menu string) [][2]string {
	t.Helper()
	words, err := editor.Tokenize(menu)
	require.NoError(t, err)
	require.NotEmpty(t, words)
	require.Equal(t, "menu", words[0])
	require.Equal(t, 1, (len(words)-1)%2, "menu needs title/command pairs")

	var pairs [][2]string
	for i := 1; i+1 < len(words); i += 2 {
		pairs = append(pairs, [2]string{words[i], words[i+1]})
	}
	return pairs
}

func TestMenu_FixScenario(t *testing.T) {
	actions := []lsp.ActionOrCommand{
		{Command: &lsp.Command{Title: "Fix", Command: "fix", Arguments: []any{"x", "y"}}},
	}

	menu, err := Menu(actions)
	require.NoError(t, err)

	pairs := menuEntries(t, menu)
	require.Len(t, pairs, 1)
	assert.Equal(t, "Fix", pairs[0][0])

	words, err := editor.Tokenize(pairs[0][1])
	require.NoError(t, err)
	require.Len(t, words, 3)
	assert.Equal(t, "lsp-execute-command", words[0])
	assert.Equal(t, "fix", words[1])

	once, twice := unwrapArgument(t, words[2])
	assert.Equal(t, `["x","y"]`, once)
	assert.Equal(t, []any{"x", "y"}, twice)
}

func TestMenu_PreservesOrder(t *testing.T) {
	edit := &lsp.WorkspaceEdit{Changes: map[lsp.DocumentURI][]lsp.TextEdit{
		"file:///a.go": {{NewText: "x"}},
	}}
	actions := []lsp.ActionOrCommand{
		{Action: &lsp.CodeAction{Title: "Rewrite", Edit: edit}},
		{Command: &lsp.Command{Title: "Organize", Command: "organize"}},
		{Action: &lsp.CodeAction{Title: "Outer", Command: &lsp.Command{Title: "Inner", Command: "inner"}}},
	}

	menu, err := Menu(actions)
	require.NoError(t, err)

	pairs := menuEntries(t, menu)
	require.Len(t, pairs, 3, "one pair per action")
	assert.Equal(t, "Rewrite", pairs[0][0])
	assert.Equal(t, "Organize", pairs[1][0])
	assert.Equal(t, "Inner", pairs[2][0])

	words, err := editor.Tokenize(pairs[0][1])
	require.NoError(t, err)
	require.Len(t, words, 2)
	assert.Equal(t, "lsp-apply-workspace-edit", words[0])
	_, value := unwrapArgument(t, words[1])
	assert.Equal(t, map[string]any{
		"changes": map[string]any{
			"file:///a.go": []any{map[string]any{
				"range":   map[string]any{"start": map[string]any{"line": float64(0), "character": float64(0)}, "end": map[string]any{"line": float64(0), "character": float64(0)}},
				"newText": "x",
			}},
		},
	}, value)

	words, err = editor.Tokenize(pairs[2][1])
	require.NoError(t, err)
	assert.Equal(t, []string{"lsp-execute-command", "inner", `"null"`}, words)
}

func TestMenu_Empty(t *testing.T) {
	_, err := Menu(nil)
	assert.ErrorIs(t, err, lsp.ErrNoActionsAvailable)

	_, err = Menu([]lsp.ActionOrCommand{})
	assert.ErrorIs(t, err, lsp.ErrNoActionsAvailable)
}

func TestMenu_SerializationFailure(t *testing.T) {
	_, err := Menu([]lsp.ActionOrCommand{
		{Command: &lsp.Command{Title: "Bad", Command: "bad", Arguments: []any{make(chan int)}}},
	})
	assert.ErrorIs(t, err, lsp.ErrSerialization)
}

func TestDoubleEncode_RoundTrip(t *testing.T) {
	values := []any{
		[]any{"x", "y"},
		[]any{`say "hi"`, "it's", "line\nnext\ttab", "[[table]]", "key = 'value'", `back\slash`},
		map[string]any{"nested": []any{map[string]any{"a": "}{"}}, "n": float64(3)},
		[]any{"<html> & stuff", "del\x7fchar", "'''", `"""`, "é😀"},
		nil,
		"plain string",
		float64(42),
	}

	for _, v := range values {
		encoded, err := DoubleEncode(v)
		require.NoError(t, err)

		// Survive the editor's quoting first.
		words, err := editor.Tokenize("cmd " + editor.Quote(encoded))
		require.NoError(t, err)
		require.Equal(t, []string{"cmd", encoded}, words)

		once, twice := unwrapArgument(t, words[1])
		first, err := json.Marshal(v)
		require.NoError(t, err)
		assert.JSONEq(t, string(first), once)
		assert.Equal(t, v, twice)
	}
}

func TestCodeAction_Flow(t *testing.T) {
	h := newHarness(t)
	h.open("package main\nvar x = 1\n")
	h.publish(diag(1, 4, 1, 5, "x declared and not used"), diag(0, 0, 0, 7, "elsewhere"))

	at := editor.Position{Line: 2, Column: 5}
	h.handle(h.meta(), editor.MethodCodeAction, editor.CodeActionParams{Position: at})

	conn := h.conn()
	call := conn.lastCall(t, "textDocument/codeAction")
	params, ok := call.params.(lsp.CodeActionParams)
	require.True(t, ok)
	pos := lsp.Position{Line: 1, Character: 4}
	assert.Equal(t, lsp.Range{Start: pos, End: pos}, params.Range)
	require.Len(t, params.Context.Diagnostics, 1)
	assert.Equal(t, "x declared and not used", params.Context.Diagnostics[0].Message)

	h.respond(conn, call, []map[string]any{
		{"title": "Remove x", "kind": "quickfix", "command": map[string]any{"title": "Remove x", "command": "remove", "arguments": []any{"x"}}},
		{"title": "Organize imports", "command": "organize"},
	})

	require.Len(t, h.sink.commands, 1)
	pairs := menuEntries(t, h.sink.commands[0])
	require.Len(t, pairs, 2)
	assert.Equal(t, "Remove x", pairs[0][0])
	assert.Equal(t, "Organize imports", pairs[1][0])
}

func TestCodeAction_NoActions(t *testing.T) {
	h := newHarness(t)
	h.open("package main\n")

	h.handle(h.meta(), editor.MethodCodeAction, editor.CodeActionParams{Position: editor.Position{Line: 1, Column: 1}})
	conn := h.conn()
	call := conn.lastCall(t, "textDocument/codeAction")
	params := call.params.(lsp.CodeActionParams)
	assert.NotNil(t, params.Context.Diagnostics, "diagnostics are sent as an empty list")

	h.respond(conn, call, []any{})
	assert.Equal(t, []string{"lsp-show-error 'No actions available'"}, h.sink.commands)

	h.sink.commands = nil
	h.handle(h.meta(), editor.MethodCodeAction, editor.CodeActionParams{Position: editor.Position{Line: 1, Column: 1}})
	h.respond(conn, conn.lastCall(t, "textDocument/codeAction"), nil)
	assert.Empty(t, h.sink.commands, "null result shows nothing")
}

func TestCodeAction_StaleContinuation(t *testing.T) {
	h := newHarness(t)
	h.open("package main\n")

	h.handle(h.meta(), editor.MethodCodeAction, editor.CodeActionParams{Position: editor.Position{Line: 1, Column: 1}})
	conn := h.conn()
	call := conn.lastCall(t, "textDocument/codeAction")

	// The buffer closes while the request is in flight.
	h.handle(h.meta(), editor.MethodDidClose, nil)
	h.respond(conn, call, []map[string]any{{"title": "Organize", "command": "organize"}})
	assert.Empty(t, h.sink.commands)

	// A change that removes the line drops the menu too.
	h.handle(h.meta(), editor.MethodDidOpen, editor.DraftParams{Draft: "package main\n\nfunc f() {}\n"})
	h.handle(h.meta(), editor.MethodCodeAction, editor.CodeActionParams{Position: editor.Position{Line: 3, Column: 6}})
	call = conn.lastCall(t, "textDocument/codeAction")

	meta := h.meta()
	meta.Version = 2
	h.handle(meta, editor.MethodDidChange, editor.DraftParams{Draft: "package main\n"})
	h.respond(conn, call, []map[string]any{{"title": "Organize", "command": "organize"}})
	assert.Empty(t, h.sink.commands)
}
