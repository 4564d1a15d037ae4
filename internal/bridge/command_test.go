package bridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lspbridge/internal/editor"
	"github.com/dshills/lspbridge/internal/lsp"
)

func edit(sl, sc, el, ec int, text string) lsp.TextEdit {
	return lsp.TextEdit{
		Range:   lsp.Range{Start: lsp.Position{Line: sl, Character: sc}, End: lsp.Position{Line: el, Character: ec}},
		NewText: text,
	}
}

// editLines splits the body of an evaluate-commands -buffer command into
// its lsp-text-edit commands.
func editLines(t *testing.T, cmd string) (string, [][]string) {
	t.Helper()
	words, err := editor.Tokenize(cmd)
	require.NoError(t, err)
	require.Len(t, words, 4)
	require.Equal(t, []string{"evaluate-commands", "-buffer"}, words[:2])

	var edits [][]string
	body, err := editor.Tokenize(words[3])
	require.NoError(t, err)
	for i := 0; i < len(body); i += 4 {
		require.Equal(t, "lsp-text-edit", body[i])
		edits = append(edits, body[i+1:i+4])
	}
	return words[2], edits
}

func TestTextEditCommand(t *testing.T) {
	lines := lsp.NewLineIndex("a😀b\nsecond\n")
	edits := []lsp.TextEdit{
		edit(0, 0, 0, 1, "A"),
		edit(1, 0, 1, 6, "2nd"),
		edit(0, 3, 0, 4, "B"), // after the two UTF-16 units of 😀
		edit(2, 0, 2, 0, "tail\n"),
	}

	cmd, err := TextEditCommand("/tmp/x.go", lines, edits, lsp.OffsetEncodingUTF16)
	require.NoError(t, err)

	path, got := editLines(t, cmd)
	assert.Equal(t, "/tmp/x.go", path)
	assert.Equal(t, [][]string{
		{"3.1", "3.1", "tail\n"},
		{"2.1", "2.7", "2nd"},
		{"1.6", "1.7", "B"},
		{"1.1", "1.2", "A"},
	}, got)
}

func TestTextEditCommand_SameStart(t *testing.T) {
	lines := lsp.NewLineIndex("x\n")
	edits := []lsp.TextEdit{
		edit(0, 0, 0, 0, "first"),
		edit(0, 0, 0, 0, "second"),
		edit(0, 1, 0, 1, "end"),
	}

	cmd, err := TextEditCommand("f", lines, edits, lsp.OffsetEncodingUTF8)
	require.NoError(t, err)
	_, got := editLines(t, cmd)
	assert.Equal(t, [][]string{
		{"1.2", "1.2", "end"},
		{"1.1", "1.1", "second"},
		{"1.1", "1.1", "first"},
	}, got)
}

func TestTextEditCommand_OutOfRange(t *testing.T) {
	lines := lsp.NewLineIndex("x\n")
	_, err := TextEditCommand("f", lines, []lsp.TextEdit{edit(5, 0, 5, 1, "")}, lsp.OffsetEncodingUTF8)
	assert.ErrorIs(t, err, lsp.ErrPositionOutOfRange)
}

func TestExecuteCommand_Flow(t *testing.T) {
	h := newHarness(t)
	h.open("x\n")

	h.handle(h.meta(), editor.MethodExecuteCommand, editor.ExecuteCommandParams{
		Command:   "fix",
		Arguments: `["x", {"n": 1}]`,
	})

	conn := h.conn()
	call := conn.lastCall(t, "workspace/executeCommand")
	params, ok := call.params.(lsp.ExecuteCommandParams)
	require.True(t, ok)
	assert.Equal(t, "fix", params.Command)
	require.Len(t, params.Arguments, 2)
	assert.JSONEq(t, `"x"`, string(params.Arguments[0]))
	assert.JSONEq(t, `{"n":1}`, string(params.Arguments[1]))

	h.respond(conn, call, nil)
	assert.Empty(t, h.sink.commands)
}

func TestExecuteCommand_Errors(t *testing.T) {
	h := newHarness(t)
	h.open("x\n")

	h.handle(h.meta(), editor.MethodExecuteCommand, editor.ExecuteCommandParams{Arguments: "[]"})
	require.Len(t, h.sink.commands, 1)
	assert.Contains(t, h.sink.commands[0], "missing command")

	h.handle(h.meta(), editor.MethodExecuteCommand, editor.ExecuteCommandParams{Command: "fix", Arguments: "[oops"})
	require.Len(t, h.sink.commands, 2)
	assert.Contains(t, h.sink.commands[1], "arguments")
}

func TestApplyEdit_Flow(t *testing.T) {
	h := newHarness(t)
	h.open("hello world\n")

	we := lsp.WorkspaceEdit{Changes: map[lsp.DocumentURI][]lsp.TextEdit{
		lsp.FilePathToURI(h.file): {edit(0, 6, 0, 11, "there")},
	}}
	data, err := json.Marshal(we)
	require.NoError(t, err)

	h.handle(h.meta(), editor.MethodApplyEdit, editor.ApplyEditParams{Edit: string(data)})
	require.Len(t, h.sink.commands, 1)
	path, got := editLines(t, h.sink.commands[0])
	assert.Equal(t, h.file, path)
	assert.Equal(t, [][]string{{"1.7", "1.12", "there"}}, got)
}

func TestApplyEdit_NullEdit(t *testing.T) {
	h := newHarness(t)
	h.open("x\n")

	h.handle(h.meta(), editor.MethodApplyEdit, editor.ApplyEditParams{Edit: "null"})
	assert.Empty(t, h.sink.commands)
}

func TestApplyEdit_AllOrNothing(t *testing.T) {
	h := newHarness(t)
	h.open("x\n")

	we := &lsp.WorkspaceEdit{Changes: map[lsp.DocumentURI][]lsp.TextEdit{
		lsp.FilePathToURI(h.file):                  {edit(0, 0, 0, 1, "y")},
		lsp.FilePathToURI(h.root + "/missing.go"): {edit(0, 0, 0, 0, "z")},
	}}
	err := h.c.applyWorkspaceEdit(h.meta(), lsp.OffsetEncodingUTF8, we)
	assert.ErrorIs(t, err, ErrDocumentNotOpen)
	assert.Empty(t, h.sink.commands)
}
