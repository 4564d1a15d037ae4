// Package main is the entry point for lspbridge, which connects a Kakoune
// session to language servers.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dshills/lspbridge/internal/bridge"
	"github.com/dshills/lspbridge/internal/config"
	"github.com/dshills/lspbridge/internal/editor"
	"github.com/dshills/lspbridge/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type options struct {
	ConfigPath string
	Session    string
	Verbosity  int
	LogConsole bool
	LogFile    string
	Kak        string
	Request    bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	if opts.Request {
		if err := sendRequest(opts.Session, os.Stdin); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	out := io.Writer(os.Stderr)
	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: open log file: %v\n", err)
			return 1
		}
		defer f.Close()
		out = f
	}
	log := logging.New(out, cfg.Verbosity, opts.LogConsole)
	logging.Install(log)

	// Handle signals for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	if err := serve(ctx, cfg, opts); err != nil {
		log.Error().Stack().Err(err).Msg("bridge stopped")
		return 1
	}
	log.Info().Msg("bridge stopped")
	return 0
}

// serve runs the bridge until ctx is done or the editor asks it to stop.
func serve(ctx context.Context, cfg *config.Config, opts options) error {
	log := zerolog.Ctx(ctx)

	// The sink outlives the loop so that commands issued while shutting
	// down still reach the editor.
	sinkCtx, stopSink := context.WithCancel(context.WithoutCancel(ctx))
	sinkDone := make(chan struct{})
	sink := editor.NewKakSink(opts.Kak, log.With().Str("component", "sink").Logger())
	go func() {
		sink.Run(sinkCtx)
		close(sinkDone)
	}()
	defer func() {
		stopSink()
		<-sinkDone
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b, err := bridge.New(cfg, sink, *log)
	if err != nil {
		return errors.WithStack(err)
	}

	path := editor.SocketPath(cfg.Server.Session)
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- editor.Listen(ctx, path, log.With().Str("component", "listener").Logger(), b.Submit)
	}()
	log.Info().Str("socket", path).Strs("languages", cfg.LanguageNames()).Msg("bridge started")

	runErr := make(chan error, 1)
	go func() { runErr <- b.Run(ctx) }()

	select {
	case err := <-listenErr:
		cancel()
		<-runErr
		if err != nil {
			return errors.Wrap(err, "listen")
		}
		return nil
	case err := <-runErr:
		cancel()
		<-listenErr
		if err != nil && !errors.Is(err, context.Canceled) {
			return errors.WithStack(err)
		}
		return nil
	}
}

// loadConfig reads the configuration file and applies flags and the
// environment on top of it. Without an explicit path a missing file falls
// back to the built-in defaults.
func loadConfig(opts options) (*config.Config, error) {
	path := opts.ConfigPath
	explicit := path != ""
	if !explicit {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, errors.Wrap(err, "locate config directory")
		}
		path = filepath.Join(dir, "lspbridge", "config.toml")
	}

	cfg, err := config.Load(path)
	switch {
	case errors.Is(err, config.ErrFileNotFound) && !explicit:
		cfg = config.Default()
	case err != nil:
		return nil, err
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if opts.Session != "" {
		cfg.Server.Session = opts.Session
	}
	if opts.Verbosity > 0 {
		cfg.Verbosity = opts.Verbosity
	}
	if cfg.Server.Session == "" {
		return nil, errors.New("no session: pass -session or set " + config.EnvPrefix + "SESSION")
	}
	return cfg, cfg.Validate()
}

// sendRequest forwards one TOML request from r to the bridge of session.
func sendRequest(session string, r io.Reader) error {
	if session == "" {
		session = os.Getenv(config.EnvPrefix + "SESSION")
	}
	if session == "" {
		return errors.New("no session: pass -session")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "read request")
	}
	if _, err := editor.ParseRequest(data); err != nil {
		return err
	}
	return editor.Send(editor.SocketPath(session), data)
}

func parseFlags() options {
	var opts options
	var showVersion bool

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.Session, "session", "", "Kakoune session to serve")
	flag.StringVar(&opts.Session, "s", "", "Kakoune session to serve (shorthand)")
	flag.IntVar(&opts.Verbosity, "verbosity", 0, "Log verbosity (0 warn, 1 info, 2 debug, 3 trace)")
	flag.IntVar(&opts.Verbosity, "v", 0, "Log verbosity (shorthand)")
	flag.BoolVar(&opts.LogConsole, "log-console", false, "Human readable log output instead of JSON")
	flag.StringVar(&opts.LogFile, "log", "", "Append logs to this file instead of stderr")
	flag.StringVar(&opts.Kak, "kak", "kak", "Kakoune binary used to send commands")
	flag.BoolVar(&opts.Request, "request", false, "Send the TOML request read from stdin to a running bridge")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "lspbridge - language server bridge for Kakoune\n\n")
		fmt.Fprintf(os.Stderr, "Usage: lspbridge [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  lspbridge -s $kak_session -log-console     Serve a session\n")
		fmt.Fprintf(os.Stderr, "  lspbridge -s $kak_session -request < req     Forward a request\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("lspbridge %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	return opts
}
