package bridge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lspbridge/internal/config"
	"github.com/dshills/lspbridge/internal/editor"
	"github.com/dshills/lspbridge/internal/lsp"
)

// fakeSink records editor commands.
type fakeSink struct {
	commands []string
}

func (s *fakeSink) Exec(_ editor.Meta, command string) {
	s.commands = append(s.commands, command)
}

type sentCall struct {
	id     jsonrpc2.ID
	method string
	params any
}

type sentReply struct {
	id     jsonrpc2.ID
	result any
	err    *jsonrpc2.Error
}

// fakeConn records what the bridge sends to a server and lets tests feed
// messages back through the spawner's callbacks.
type fakeConn struct {
	nextID   uint64
	calls    []sentCall
	notifies []sentCall
	replies  []sentReply
	closed   bool

	deliver  func(lsp.ServerMessage)
	finished func(error)
}

func (f *fakeConn) Call(method string, params any) (jsonrpc2.ID, error) {
	if f.closed {
		return jsonrpc2.ID{}, lsp.ErrShutdown
	}
	f.nextID++
	id := jsonrpc2.ID{Num: f.nextID}
	f.calls = append(f.calls, sentCall{id: id, method: method, params: params})
	return id, nil
}

func (f *fakeConn) Notify(method string, params any) error {
	f.notifies = append(f.notifies, sentCall{method: method, params: params})
	return nil
}

func (f *fakeConn) Reply(id jsonrpc2.ID, result any, rerr *jsonrpc2.Error) error {
	f.replies = append(f.replies, sentReply{id: id, result: result, err: rerr})
	return nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

// lastCall returns the most recent request for method.
func (f *fakeConn) lastCall(t *testing.T, method string) sentCall {
	t.Helper()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].method == method {
			return f.calls[i]
		}
	}
	t.Fatalf("no %s call among %d calls", method, len(f.calls))
	return sentCall{}
}

func (f *fakeConn) notifyMethods() []string {
	methods := make([]string, len(f.notifies))
	for i, n := range f.notifies {
		methods[i] = n.method
	}
	return methods
}

// harness is a bridge with a fake spawner and sink.
type harness struct {
	t     *testing.T
	c     *Context
	sink  *fakeSink
	conns []*fakeConn
	root  string
	file  string
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0o600))
	file := filepath.Join(root, "main.go")

	cfg := &config.Config{
		Language: map[string]config.LanguageConfig{
			"go": {
				Filetypes:      []string{"go"},
				Roots:          []string{"go.mod"},
				Command:        "gopls",
				OffsetEncoding: lsp.OffsetEncodingUTF16,
			},
		},
		Server: config.ServerConfig{Timeout: 10},
	}

	h := &harness{t: t, sink: &fakeSink{}, root: root, file: file}
	spawner := func(_ context.Context, _ Route, _ config.LanguageConfig, deliver func(lsp.ServerMessage), finished func(error)) (Conn, error) {
		conn := &fakeConn{deliver: deliver, finished: finished}
		h.conns = append(h.conns, conn)
		return conn, nil
	}

	c, err := New(cfg, h.sink, zerolog.Nop(), append([]Option{WithSpawner(spawner)}, opts...)...)
	require.NoError(t, err)
	h.c = c
	return h
}

func (h *harness) meta() editor.Meta {
	return editor.Meta{Session: "main", Client: "client0", Buffile: h.file, Filetype: "go", Version: 1}
}

// conn returns the connection of the most recently spawned server.
func (h *harness) conn() *fakeConn {
	h.t.Helper()
	require.NotEmpty(h.t, h.conns, "no server spawned")
	return h.conns[len(h.conns)-1]
}

// handle runs an editor request on the loop state directly.
func (h *harness) handle(meta editor.Meta, method string, params any) {
	h.t.Helper()
	req, err := editor.NewRequest(meta, method, params)
	require.NoError(h.t, err)
	h.c.Handle(req)
	h.drain()
}

// drain runs queued events the way Run would.
func (h *harness) drain() {
	for {
		select {
		case ev := <-h.c.events:
			ev(h.c)
		default:
			return
		}
	}
}

// deliver feeds a raw JSON-RPC message from the server.
func (h *harness) deliver(conn *fakeConn, raw string) {
	h.t.Helper()
	msg, err := lsp.ParseServerMessage([]byte(raw))
	require.NoError(h.t, err)
	conn.deliver(msg)
	h.drain()
}

// respond answers call with result, which is marshaled to JSON.
func (h *harness) respond(conn *fakeConn, call sentCall, result any) {
	h.t.Helper()
	data, err := json.Marshal(result)
	require.NoError(h.t, err)
	raw := json.RawMessage(data)
	resp := &jsonrpc2.Response{ID: call.id, Result: &raw}
	conn.deliver(lsp.ServerMessage{Response: resp})
	h.drain()
}

// open opens the test buffer with text and completes the handshake.
func (h *harness) open(text string) {
	h.t.Helper()
	h.handle(h.meta(), editor.MethodDidOpen, editor.DraftParams{Draft: text})
	conn := h.conn()
	h.respond(conn, conn.lastCall(h.t, "initialize"), map[string]any{"capabilities": map[string]any{}})
}

// publish sends diagnostics for the test buffer.
func (h *harness) publish(diags ...lsp.Diagnostic) {
	h.t.Helper()
	params, err := json.Marshal(lsp.PublishDiagnosticsParams{URI: lsp.FilePathToURI(h.file), Diagnostics: diags})
	require.NoError(h.t, err)
	h.deliver(h.conn(), `{"jsonrpc":"2.0","method":"textDocument/publishDiagnostics","params":`+string(params)+`}`)
}

func diag(sl, sc, el, ec int, msg string) lsp.Diagnostic {
	return lsp.Diagnostic{
		Range:    lsp.Range{Start: lsp.Position{Line: sl, Character: sc}, End: lsp.Position{Line: el, Character: ec}},
		Severity: lsp.DiagnosticSeverityError,
		Message:  msg,
	}
}
