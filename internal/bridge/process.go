package bridge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/lspbridge/internal/config"
	"github.com/dshills/lspbridge/internal/lsp"
)

// killGrace is how long a server may take to exit after its stdin closes.
const killGrace = 2 * time.Second

// process is a running language server.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *io.PipeReader
	exited chan struct{}
}

// Close closes the server's stdio and kills it if it has not exited within
// killGrace. It does not wait.
func (p *process) Close() error {
	err := p.stdin.Close()
	p.stdout.Close()
	go func() {
		select {
		case <-p.exited:
		case <-time.After(killGrace):
			_ = p.cmd.Process.Kill()
		}
	}()
	return err
}

// SpawnProcess returns a Spawner that runs the configured command in the
// route's root and speaks JSON-RPC over its stdio. The server's stderr is
// logged at debug level.
func SpawnProcess(log zerolog.Logger) Spawner {
	return func(ctx context.Context, route Route, lang config.LanguageConfig,
		deliver func(lsp.ServerMessage), finished func(error)) (Conn, error) {
		plog := log.With().Str("route", route.String()).Logger()

		cmd := exec.CommandContext(ctx, lang.Command, lang.Args...)
		cmd.Dir = route.Root

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		// io.Pipe rather than StdoutPipe: Wait must not race the reader.
		outR, outW := io.Pipe()
		errR, errW := io.Pipe()
		cmd.Stdout = outW
		cmd.Stderr = errW

		if err := cmd.Start(); err != nil {
			return nil, err
		}

		p := &process{cmd: cmd, stdin: stdin, stdout: outR, exited: make(chan struct{})}
		go func() {
			err := cmd.Wait()
			plog.Debug().Err(err).Msg("server process exited")
			outW.Close()
			errW.Close()
			close(p.exited)
		}()
		go func() {
			sc := bufio.NewScanner(errR)
			for sc.Scan() {
				plog.Debug().Str("stderr", sc.Text()).Msg("server")
			}
			_, _ = io.Copy(io.Discard, errR)
		}()

		t := lsp.NewTransport(outR, stdin, p, plog)
		t.Start(ctx, deliver, finished)
		return t, nil
	}
}
