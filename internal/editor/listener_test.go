package editor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketPath(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/run/user/1000/lspbridge/main", SocketPath("main"))
}

func TestListenAndSend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sock", "main")

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Request, 1)
	done := make(chan error, 1)
	go func() {
		done <- Listen(ctx, path, zerolog.Nop(), func(r Request) { got <- r })
	}()

	// The listener creates the socket asynchronously.
	require.Eventually(t, func() bool {
		return Send(path, []byte(hoverRequest)) == nil
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case req := <-got:
		assert.Equal(t, MethodHover, req.Method)
		assert.Equal(t, "/src/main.go", req.Meta.Buffile)
	case <-time.After(2 * time.Second):
		t.Fatal("request not delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}
