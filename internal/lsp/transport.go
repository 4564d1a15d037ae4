package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/jsonrpc2"
)

// Transport handles JSON-RPC 2.0 communication over stdio.
// It implements the LSP base protocol with Content-Length headers.
//
// Transport never waits for responses. Call returns the request ID and the
// caller matches it against responses delivered by the read loop.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer
	log    zerolog.Logger

	mu     sync.Mutex // serializes writes
	nextID atomic.Uint64

	closed atomic.Bool
	done   chan struct{}
}

// NewTransport creates a new transport over the given connection.
// The conn must support reading and writing (typically stdin/stdout pipes).
func NewTransport(r io.Reader, w io.Writer, c io.Closer, log zerolog.Logger) *Transport {
	return &Transport{
		reader: bufio.NewReaderSize(r, 64*1024),
		writer: w,
		closer: c,
		log:    log,
		done:   make(chan struct{}),
	}
}

// Start begins reading messages in a new goroutine. Each decoded message is
// passed to deliver. When the stream ends, finished is called once with the
// reason (nil after Close).
func (t *Transport) Start(ctx context.Context, deliver func(ServerMessage), finished func(error)) {
	go t.readLoop(ctx, deliver, finished)
}

// Close closes the transport and releases resources.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	close(t.done)
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

// IsClosed returns true if the transport has been closed.
func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}

// Call sends a request and returns its ID without waiting for the response.
func (t *Transport) Call(method string, params any) (jsonrpc2.ID, error) {
	if t.closed.Load() {
		return jsonrpc2.ID{}, ErrShutdown
	}

	p, err := ToParamsChecked(params)
	if err != nil {
		return jsonrpc2.ID{}, err
	}

	id := jsonrpc2.ID{Num: t.nextID.Add(1)}
	req := &jsonrpc2.Request{
		Method: method,
		Params: p.Raw(),
		ID:     id,
	}
	if err := t.send(req); err != nil {
		return jsonrpc2.ID{}, fmt.Errorf("send request: %w", err)
	}
	return id, nil
}

// Notify sends a notification (no response expected).
func (t *Transport) Notify(method string, params any) error {
	if t.closed.Load() {
		return ErrShutdown
	}

	p, err := ToParamsChecked(params)
	if err != nil {
		return err
	}

	return t.send(&jsonrpc2.Request{
		Method: method,
		Params: p.Raw(),
		Notif:  true,
	})
}

// Reply answers a server-initiated request. If rerr is non-nil it is sent
// instead of result.
func (t *Transport) Reply(id jsonrpc2.ID, result any, rerr *jsonrpc2.Error) error {
	if t.closed.Load() {
		return ErrShutdown
	}

	resp := &jsonrpc2.Response{ID: id, Error: rerr}
	if rerr == nil {
		if err := resp.SetResult(result); err != nil {
			return &SerializationError{What: "result", Err: err}
		}
	}
	return t.send(resp)
}

// send writes a message with LSP content-length header.
func (t *Transport) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return &SerializationError{What: "message", Err: err}
	}

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := io.WriteString(t.writer, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// readLoop reads messages from the connection.
func (t *Transport) readLoop(ctx context.Context, deliver func(ServerMessage), finished func(error)) {
	for {
		select {
		case <-ctx.Done():
			finished(ctx.Err())
			return
		case <-t.done:
			finished(nil)
			return
		default:
		}

		body, err := t.readMessage()
		if err != nil {
			if t.closed.Load() {
				finished(nil)
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.ErrUnexpectedEOF) {
				finished(err)
				return
			}
			t.log.Warn().Err(err).Msg("skipping unreadable message")
			continue
		}

		msg, err := ParseServerMessage(body)
		if err != nil {
			t.log.Warn().Err(err).Msg("skipping invalid message")
			continue
		}
		deliver(msg)
	}
}

// maxMessageSize bounds the body of one inbound message.
const maxMessageSize = 64 << 20

// readMessage reads a single LSP message.
func (t *Transport) readMessage() ([]byte, error) {
	var contentLength int
	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break // End of headers
		}
		if strings.HasPrefix(strings.ToLower(line), "content-length:") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				length, err := strconv.Atoi(strings.TrimSpace(parts[1]))
				if err == nil {
					contentLength = length
				}
			}
		}
		// Ignore Content-Type and other headers
	}

	if contentLength <= 0 {
		return nil, fmt.Errorf("missing or invalid Content-Length header")
	}
	if contentLength > maxMessageSize {
		return nil, fmt.Errorf("content length %d exceeds %d bytes", contentLength, maxMessageSize)
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(t.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
