package bridge

import (
	"encoding/json"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/dshills/lspbridge/internal/editor"
	"github.com/dshills/lspbridge/internal/lsp"
)

// pendingCall is a continuation waiting for the response to one request.
type pendingCall struct {
	method string
	meta   editor.Meta
	sent   time.Time
	handle func(c *Context, resp *jsonrpc2.Response)

	// anyResult passes error responses to handle instead of showing them.
	anyResult bool
}

// Call sends method with params on the route implied by meta. When the
// matching response arrives, its result is decoded into an R and k runs
// once on the loop goroutine. If the route closes first, or the request
// times out, k never runs. Error responses are shown to the user instead.
func Call[R any](c *Context, meta editor.Meta, method string, params any, k func(c *Context, meta editor.Meta, result R)) {
	srv, err := c.serverFor(meta)
	if err != nil {
		c.log.Warn().Err(err).Str("method", method).Msg("no server")
		c.showError(meta, err)
		return
	}
	c.request(srv, meta, method, params, func(c *Context, resp *jsonrpc2.Response) {
		var result R
		raw := []byte("null")
		if resp.Result != nil {
			raw = *resp.Result
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			c.log.Warn().Err(err).Str("method", method).Msg("decode result")
			c.showError(meta, &lsp.RPCError{Method: method, Code: jsonrpc2.CodeParseError, Message: err.Error()})
			return
		}
		k(c, meta, result)
	})
}

// Notify sends a notification on the route implied by meta.
func (c *Context) Notify(meta editor.Meta, method string, params any) error {
	srv, err := c.serverFor(meta)
	if err != nil {
		return err
	}
	srv.lastMeta = meta
	srv.whenReady(func() {
		if err := srv.conn.Notify(method, params); err != nil {
			c.log.Error().Err(err).Str("route", srv.route.String()).Str("method", method).Msg("notify")
		}
	})
	return nil
}

// request registers handle for the response to method on srv. Requests made
// before the server finished initializing are sent once it has.
func (c *Context) request(srv *server, meta editor.Meta, method string, params any, handle func(*Context, *jsonrpc2.Response)) {
	srv.lastMeta = meta
	srv.whenReady(func() {
		_ = c.send(srv, meta, method, params, handle)
	})
}

// send issues the request immediately. A failure is shown to the user and
// returned.
func (c *Context) send(srv *server, meta editor.Meta, method string, params any, handle func(*Context, *jsonrpc2.Response)) error {
	if srv.closed {
		return lsp.ErrShutdown
	}
	id, err := srv.conn.Call(method, params)
	if err != nil {
		c.log.Error().Err(err).Str("route", srv.route.String()).Str("method", method).Msg("call")
		c.showError(meta, err)
		return err
	}
	c.log.Debug().Str("route", srv.route.String()).Str("method", method).Str("id", id.String()).Msg("call")
	srv.pending[id] = pendingCall{method: method, meta: meta, sent: c.now(), handle: handle}
	return nil
}

// onResponse matches resp to its continuation. Unknown IDs belong to
// requests that timed out or to a previous incarnation of the route.
func (c *Context) onResponse(srv *server, resp *jsonrpc2.Response) {
	p, ok := srv.pending[resp.ID]
	if !ok {
		c.log.Debug().Str("route", srv.route.String()).Str("id", resp.ID.String()).Msg("response without pending request")
		return
	}
	delete(srv.pending, resp.ID)

	if resp.Error != nil && !p.anyResult {
		err := &lsp.RPCError{Method: p.method, Code: resp.Error.Code, Message: resp.Error.Message}
		c.log.Warn().Err(err).Str("route", srv.route.String()).Msg("error response")
		c.showError(p.meta, err)
		return
	}
	p.handle(c, resp)
}

// expire drops continuations that have waited longer than timeout.
func (c *Context) expire(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	now := c.now()
	for _, srv := range c.servers {
		for id, p := range srv.pending {
			if now.Sub(p.sent) < timeout {
				continue
			}
			delete(srv.pending, id)
			c.log.Warn().Str("route", srv.route.String()).Str("method", p.method).
				Str("id", id.String()).Dur("waited", now.Sub(p.sent)).Msg("request timed out")
		}
	}
}
