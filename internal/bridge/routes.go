package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/dshills/lspbridge/internal/config"
	"github.com/dshills/lspbridge/internal/editor"
	"github.com/dshills/lspbridge/internal/lsp"
)

// server is the state of one route's language server.
type server struct {
	route    Route
	lang     config.LanguageConfig
	conn     Conn
	encoding lsp.OffsetEncoding

	ready    bool
	stopping bool
	closed   bool
	queue   []func()
	pending map[jsonrpc2.ID]pendingCall

	// lastMeta is the editor context of the latest request on the route.
	// Server-initiated requests report back to it.
	lastMeta editor.Meta
}

// whenReady runs f now if the server is initialized, otherwise once it is.
func (s *server) whenReady(f func()) {
	if s.closed || s.stopping {
		return
	}
	if !s.ready {
		s.queue = append(s.queue, f)
		return
	}
	f()
}

// language resolves the language configured for meta's filetype.
func (c *Context) language(meta editor.Meta) (string, config.LanguageConfig, error) {
	name, lang, ok := c.cfg.LanguageForFiletype(meta.Filetype)
	if !ok {
		return "", config.LanguageConfig{}, fmt.Errorf("%w %q", config.ErrUnknownFiletype, meta.Filetype)
	}
	return name, lang, nil
}

// routeFor computes the route of meta.
func (c *Context) routeFor(meta editor.Meta) (Route, config.LanguageConfig, error) {
	name, lang, err := c.language(meta)
	if err != nil {
		return Route{}, lang, err
	}
	session := meta.Session
	if c.cfg.Server.Session != "" {
		session = c.cfg.Server.Session
	}
	return Route{
		Session:  session,
		Language: name,
		Root:     config.FindRoot(meta.Buffile, lang.Roots),
	}, lang, nil
}

// serverFor returns the server of meta's route, starting it on first use.
func (c *Context) serverFor(meta editor.Meta) (*server, error) {
	if c.stopped {
		return nil, lsp.ErrShutdown
	}
	route, lang, err := c.routeFor(meta)
	if err != nil {
		return nil, err
	}
	if srv, ok := c.servers[route]; ok {
		return srv, nil
	}

	srv := &server{
		route:    route,
		lang:     lang,
		encoding: lang.OffsetEncoding,
		pending:  make(map[jsonrpc2.ID]pendingCall),
		lastMeta: meta,
	}
	// Servers outlive the run context so that shutdown can still talk to
	// them. Close ends them.
	conn, err := c.spawn(context.WithoutCancel(c.runCtx), route, lang,
		func(msg lsp.ServerMessage) { c.post(func(c *Context) { c.onServerMessage(srv, msg) }) },
		func(err error) { c.post(func(c *Context) { c.onServerExit(srv, err) }) },
	)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", lang.Command, err)
	}
	srv.conn = conn
	c.servers[route] = srv
	c.log.Info().Str("route", route.String()).Str("command", lang.Command).Msg("server started")

	c.initialize(srv)
	c.reopen(srv)
	return srv, nil
}

// initialize performs the initialize handshake, then flushes requests
// queued in the meantime.
func (c *Context) initialize(srv *server) {
	params := lsp.InitializeParams{
		ProcessID:             os.Getpid(),
		RootURI:               lsp.FilePathToURI(srv.route.Root),
		RootPath:              srv.route.Root,
		Capabilities:          lsp.ClientCapabilitiesFor(srv.encoding, c.cfg.SnippetSupport),
		InitializationOptions: srv.lang.InitializationOptions,
		Trace:                 "off",
	}

	err := c.send(srv, srv.lastMeta, "initialize", params, func(c *Context, resp *jsonrpc2.Response) {
		var result lsp.InitializeResult
		if resp.Result != nil {
			if err := json.Unmarshal(*resp.Result, &result); err != nil {
				c.log.Warn().Err(err).Str("route", srv.route.String()).Msg("decode initialize result")
			}
		}
		if enc := result.Capabilities.PositionEncoding; enc != "" && enc != srv.encoding.String() {
			c.log.Warn().Str("route", srv.route.String()).Str("server", enc).
				Str("configured", srv.encoding.String()).Msg("server reports a different position encoding")
		}
		ev := c.log.Info().Str("route", srv.route.String())
		if result.ServerInfo != nil {
			ev = ev.Str("server", result.ServerInfo.Name).Str("version", result.ServerInfo.Version)
		}
		ev.Msg("server initialized")

		if err := srv.conn.Notify("initialized", lsp.InitializedParams{}); err != nil {
			c.log.Error().Err(err).Str("route", srv.route.String()).Msg("notify initialized")
		}
		srv.ready = true
		queue := srv.queue
		srv.queue = nil
		for _, f := range queue {
			f()
		}
	})
	if err != nil {
		c.closeServer(srv)
	}
}

// closeServer tears a route down. Its pending continuations are dropped
// without running.
func (c *Context) closeServer(srv *server) {
	if srv.closed {
		return
	}
	srv.closed = true
	if c.servers[srv.route] == srv {
		delete(c.servers, srv.route)
	}
	if len(srv.pending) > 0 {
		c.log.Debug().Str("route", srv.route.String()).Int("dropped", len(srv.pending)).Msg("dropping pending requests")
	}
	srv.pending = nil
	srv.queue = nil

	if err := srv.conn.Close(); err != nil {
		c.log.Debug().Err(err).Str("route", srv.route.String()).Msg("close")
	}
	c.log.Info().Str("route", srv.route.String()).Msg("server closed")
}

// stopServer asks an initialized server to shut down. exit is sent and the
// route closed once the shutdown reply arrives, whatever it says. Servers
// that never finished initializing are closed at once.
func (c *Context) stopServer(srv *server) {
	if srv.closed || srv.stopping {
		return
	}
	if !srv.ready {
		c.closeServer(srv)
		return
	}
	srv.stopping = true
	srv.queue = nil
	srv.pending = make(map[jsonrpc2.ID]pendingCall)

	id, err := srv.conn.Call("shutdown", nil)
	if err != nil {
		c.log.Debug().Err(err).Str("route", srv.route.String()).Msg("shutdown")
		c.closeServer(srv)
		return
	}
	srv.pending[id] = pendingCall{
		method:    "shutdown",
		sent:      c.now(),
		anyResult: true,
		handle: func(c *Context, resp *jsonrpc2.Response) {
			if resp.Error != nil {
				c.log.Debug().Str("route", srv.route.String()).Str("error", resp.Error.Message).Msg("shutdown refused")
			}
			if err := srv.conn.Notify("exit", nil); err != nil {
				c.log.Debug().Err(err).Str("route", srv.route.String()).Msg("exit")
			}
			c.closeServer(srv)
		},
	}
}

// beginShutdown refuses new servers and asks every route to shut down.
func (c *Context) beginShutdown() {
	c.stopped = true
	for _, srv := range c.servers {
		c.stopServer(srv)
	}
}

// shutdown stops every route. It keeps running events until all servers
// have answered shutdown or shutdownWait has passed, then closes whatever
// is left.
func (c *Context) shutdown() {
	c.beginShutdown()
	if len(c.servers) == 0 {
		return
	}

	deadline := time.NewTimer(c.shutdownWait)
	defer deadline.Stop()
	for len(c.servers) > 0 {
		select {
		case ev := <-c.events:
			ev(c)
		case <-deadline.C:
			for _, srv := range c.servers {
				c.log.Warn().Str("route", srv.route.String()).Msg("no shutdown reply")
				c.closeServer(srv)
			}
			return
		}
	}
}

// onServerExit handles the end of a server's output stream.
func (c *Context) onServerExit(srv *server, err error) {
	if srv.closed {
		return
	}
	if srv.stopping {
		c.log.Debug().Err(err).Str("route", srv.route.String()).Msg("server exited")
	} else {
		c.log.Warn().Err(err).Str("route", srv.route.String()).Msg("server exited")
	}
	c.closeServer(srv)
}

// onServerMessage dispatches one message read from srv.
func (c *Context) onServerMessage(srv *server, msg lsp.ServerMessage) {
	if srv.closed {
		return
	}
	switch {
	case msg.Response != nil:
		c.onResponse(srv, msg.Response)
	case msg.IsNotification():
		c.onNotification(srv, msg.Request)
	case msg.Request != nil:
		c.onServerRequest(srv, msg.Request)
	}
}

func (c *Context) onNotification(srv *server, req *jsonrpc2.Request) {
	switch req.Method {
	case "textDocument/publishDiagnostics":
		var params lsp.PublishDiagnosticsParams
		if err := lsp.DecodeParams(req, &params); err != nil {
			c.log.Warn().Err(err).Str("route", srv.route.String()).Msg("bad notification")
			return
		}
		path := lsp.URIToFilePath(params.URI)
		c.diagnostics.Replace(path, params.Version, params.Diagnostics)
		fd := c.diagnostics.File(path)
		c.log.Debug().Str("buffile", path).Int("errors", fd.ErrorCount).Int("warnings", fd.WarningCount).Msg("diagnostics")
	case "window/logMessage", "window/showMessage":
		var params struct {
			Type    int    `json:"type"`
			Message string `json:"message"`
		}
		if err := lsp.DecodeParams(req, &params); err == nil {
			c.log.Info().Str("route", srv.route.String()).Int("type", params.Type).Msg(params.Message)
		}
	default:
		c.log.Trace().Str("route", srv.route.String()).Str("method", req.Method).Msg("ignored notification")
	}
}

// onServerRequest answers a request the server sent us.
func (c *Context) onServerRequest(srv *server, req *jsonrpc2.Request) {
	var (
		result any
		rerr   *jsonrpc2.Error
	)
	switch req.Method {
	case "workspace/applyEdit":
		var params lsp.ApplyWorkspaceEditParams
		if err := lsp.DecodeParams(req, &params); err != nil {
			rerr = &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
			break
		}
		res := lsp.ApplyWorkspaceEditResult{Applied: true}
		if err := c.applyWorkspaceEdit(srv.lastMeta, srv.encoding, &params.Edit); err != nil {
			res = lsp.ApplyWorkspaceEditResult{Applied: false, FailureReason: err.Error()}
		}
		result = res
	case "window/workDoneProgress/create", "client/registerCapability", "client/unregisterCapability":
		result = nil
	default:
		rerr = &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not supported: " + req.Method}
	}

	if err := srv.conn.Reply(req.ID, result, rerr); err != nil {
		c.log.Error().Err(err).Str("route", srv.route.String()).Str("method", req.Method).Msg("reply")
	}
}
