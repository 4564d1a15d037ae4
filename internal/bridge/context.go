package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/dshills/lspbridge/internal/config"
	"github.com/dshills/lspbridge/internal/editor"
	"github.com/dshills/lspbridge/internal/lsp"
)

// Route identifies one language server connection. No two servers share a
// route.
type Route struct {
	Session  string
	Language string
	Root     string
}

func (r Route) String() string {
	return r.Session + ":" + r.Language + ":" + r.Root
}

// Conn is the bridge's view of a language server connection.
// lsp.Transport implements it.
type Conn interface {
	Call(method string, params any) (jsonrpc2.ID, error)
	Notify(method string, params any) error
	Reply(id jsonrpc2.ID, result any, rerr *jsonrpc2.Error) error
	Close() error
}

// Spawner starts the server for route. Messages read from the server must be
// passed to deliver, and finished must be called once when its stream ends.
// Both may be called from any goroutine. ctx is never cancelled; the server
// runs until its Conn is closed.
type Spawner func(ctx context.Context, route Route, lang config.LanguageConfig,
	deliver func(lsp.ServerMessage), finished func(error)) (Conn, error)

// event is a unit of work run on the loop goroutine.
type event func(c *Context)

// Context owns all bridge state. Every method runs on the loop goroutine
// started by Run; other goroutines only hand work to it through post.
type Context struct {
	cfg        *config.Config
	log        zerolog.Logger
	sink       editor.Sink
	spawn      Spawner
	precedence HoverPrecedence

	events chan event
	done   chan struct{}
	runCtx context.Context

	servers     map[Route]*server
	documents   map[string]*document
	diagnostics *DiagnosticStore

	now          func() time.Time
	stopped      bool
	shutdownWait time.Duration
}

// Option configures a Context.
type Option func(*Context)

// WithSpawner replaces the process spawner, mostly for tests.
func WithSpawner(s Spawner) Option {
	return func(c *Context) {
		c.spawn = s
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Context) {
		c.now = now
	}
}

// New creates a bridge for cfg sending editor commands to sink.
func New(cfg *config.Config, sink editor.Sink, log zerolog.Logger, opts ...Option) (*Context, error) {
	precedence := PrecedenceInfoFirst
	if cfg.HoverPrecedence != "" {
		p, err := ParseHoverPrecedence(cfg.HoverPrecedence)
		if err != nil {
			return nil, fmt.Errorf("hover_precedence: %w", err)
		}
		precedence = p
	}

	c := &Context{
		cfg:         cfg,
		log:         log,
		sink:        sink,
		spawn:       SpawnProcess(log),
		precedence:  precedence,
		events:      make(chan event, 1024),
		done:        make(chan struct{}),
		runCtx:      context.Background(),
		servers:     make(map[Route]*server),
		documents:   make(map[string]*document),
		diagnostics: NewDiagnosticStore(),
		now:         time.Now,

		shutdownWait: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit hands an editor request to the loop. It is safe to call from any
// goroutine.
func (c *Context) Submit(req editor.Request) {
	c.post(func(c *Context) { c.Handle(req) })
}

// post queues ev for the loop. It drops ev once the loop has exited.
func (c *Context) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Run processes events until ctx is done or a stop request arrives. All
// servers are shut down before it returns, each given up to a second to
// answer the shutdown request. A stop request returns nil.
func (c *Context) Run(ctx context.Context) error {
	defer close(c.done)
	c.runCtx = ctx

	var tick <-chan time.Time
	if timeout := c.cfg.Timeout(); timeout > 0 {
		ticker := time.NewTicker(min(timeout/2, time.Second))
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case ev := <-c.events:
			ev(c)
			if c.stopped {
				c.shutdown()
				return nil
			}
		case <-tick:
			c.expire(c.cfg.Timeout())
		}
	}
}

// Exec sends command to the editor session of meta. Fire and forget.
func (c *Context) Exec(meta editor.Meta, command string) {
	c.log.Trace().Str("buffile", meta.Buffile).Str("command", command).Msg("exec")
	c.sink.Exec(meta, command)
}

// Diagnostics returns the current diagnostics of buffile, if any were
// published.
func (c *Context) Diagnostics(buffile string) ([]lsp.Diagnostic, bool) {
	return c.diagnostics.Get(buffile)
}

// showError surfaces err to the user of meta's client.
func (c *Context) showError(meta editor.Meta, err error) {
	c.Exec(meta, "lsp-show-error "+editor.Quote(err.Error()))
}

// abandon logs why an in-flight operation stopped without output.
func (c *Context) abandon(meta editor.Meta, op string, err error) {
	ev := c.log.Debug()
	if !errors.Is(err, lsp.ErrPositionOutOfRange) && !errors.Is(err, ErrDocumentNotOpen) {
		ev = c.log.Warn()
	}
	ev.Err(err).Str("buffile", meta.Buffile).Str("method", op).Msg("operation abandoned")
}

// Handle dispatches one editor request. It must run on the loop goroutine.
func (c *Context) Handle(req editor.Request) {
	c.log.Debug().Str("method", req.Method).Str("buffile", req.Meta.Buffile).
		Uint64("version", req.Meta.Version).Msg("handle")

	var err error
	switch req.Method {
	case editor.MethodDidOpen:
		err = c.didOpen(req)
	case editor.MethodDidChange:
		err = c.didChange(req)
	case editor.MethodDidClose:
		err = c.didClose(req)
	case editor.MethodHover:
		err = c.hover(req)
	case editor.MethodCodeAction:
		err = c.codeAction(req)
	case editor.MethodExecuteCommand:
		err = c.executeCommand(req)
	case editor.MethodApplyEdit:
		err = c.applyEditRequest(req)
	case editor.MethodStop:
		c.stopped = true
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownMethod, req.Method)
	}
	if err != nil {
		c.log.Warn().Err(err).Str("method", req.Method).Msg("request failed")
		c.showError(req.Meta, err)
	}
}
