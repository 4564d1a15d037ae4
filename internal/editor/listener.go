package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// SocketPath returns the request socket for session:
// $XDG_RUNTIME_DIR/lspbridge/<session>, falling back to the temp dir.
func SocketPath(session string) string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "lspbridge", session)
}

// Listen accepts editor requests on the unix socket at path until ctx is
// done. Each connection carries one TOML request document; the editor closes
// its write side when done. Parsed requests are passed to deliver from the
// accepting goroutine.
func Listen(ctx context.Context, path string, log zerolog.Logger, deliver func(Request)) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	// A socket left behind by a previous run would make bind fail.
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", path)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer os.Remove(path)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	log.Info().Str("socket", path).Msg("listening for editor requests")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go serveConn(conn, log, deliver)
	}
}

func serveConn(conn net.Conn, log zerolog.Logger, deliver func(Request)) {
	defer conn.Close()

	data, err := io.ReadAll(conn)
	if err != nil {
		log.Warn().Err(err).Msg("read editor request")
		return
	}
	req, err := ParseRequest(data)
	if err != nil {
		log.Warn().Err(err).Msg("invalid editor request")
		return
	}
	log.Debug().Str("method", req.Method).Str("buffile", req.Meta.Buffile).Msg("editor request")
	deliver(req)
}

// Send writes one request document to the socket at path.
func Send(path string, data []byte) error {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return fmt.Errorf("connect %s: %w", path, err)
	}
	defer conn.Close()

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		return uc.CloseWrite()
	}
	return nil
}
