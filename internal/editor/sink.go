package editor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Sink delivers commands to the editor. Delivery is fire-and-forget:
// failures are logged by the implementation, never reported back.
type Sink interface {
	Exec(meta Meta, command string)
}

// Wrap scopes command to the request's client so it runs in the right
// window. Commands for a fifo are already evaluated in the requesting
// client's context and are left unchanged.
func Wrap(meta Meta, command string) string {
	if meta.Fifo != "" || meta.Client == "" {
		return command
	}
	return "evaluate-commands -client " + Quote(meta.Client) + " " + Quote(command)
}

type delivery struct {
	meta    Meta
	command string
}

// KakSink sends commands with `kak -p <session>` or writes them to the
// request's fifo. Commands are delivered in order by a single worker.
type KakSink struct {
	binary string
	log    zerolog.Logger
	queue  chan delivery
}

// NewKakSink creates a sink invoking the given editor binary ("kak" when
// empty). Call Run to start delivering.
func NewKakSink(binary string, log zerolog.Logger) *KakSink {
	if binary == "" {
		binary = "kak"
	}
	return &KakSink{
		binary: binary,
		log:    log.With().Str("component", "sink").Logger(),
		queue:  make(chan delivery, 256),
	}
}

// Exec queues command for delivery.
func (s *KakSink) Exec(meta Meta, command string) {
	select {
	case s.queue <- delivery{meta: meta, command: command}:
	default:
		s.log.Warn().Str("session", meta.Session).Msg("editor command queue full, dropping command")
	}
}

// drainTimeout bounds the delivery of commands still queued when Run's
// context ends.
const drainTimeout = 2 * time.Second

// Run delivers queued commands until ctx is done, then delivers whatever is
// still queued before returning.
func (s *KakSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.drain(ctx)
			return
		case d := <-s.queue:
			s.send(ctx, d)
		}
	}
}

func (s *KakSink) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	for {
		select {
		case d := <-s.queue:
			if ctx.Err() != nil {
				s.log.Warn().Int("dropped", len(s.queue)+1).Msg("editor commands left undelivered")
				return
			}
			s.send(ctx, d)
		default:
			return
		}
	}
}

func (s *KakSink) send(ctx context.Context, d delivery) {
	if err := s.deliver(ctx, d); err != nil {
		s.log.Error().Err(err).Str("session", d.meta.Session).Msg("deliver editor command")
	}
}

func (s *KakSink) deliver(ctx context.Context, d delivery) error {
	command := Wrap(d.meta, d.command)
	s.log.Trace().Str("session", d.meta.Session).Str("command", command).Msg("to editor")

	if d.meta.Fifo != "" {
		f, err := os.OpenFile(d.meta.Fifo, os.O_WRONLY, 0)
		if err != nil {
			return fmt.Errorf("open fifo: %w", err)
		}
		defer f.Close()
		if _, err := f.WriteString(command); err != nil {
			return fmt.Errorf("write fifo: %w", err)
		}
		return nil
	}

	if d.meta.Session == "" {
		return fmt.Errorf("no session to send to")
	}
	cmd := exec.CommandContext(ctx, s.binary, "-p", d.meta.Session)
	cmd.Stdin = strings.NewReader(command)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s -p %s: %w: %s", s.binary, d.meta.Session, err, strings.TrimSpace(string(out)))
	}
	return nil
}
