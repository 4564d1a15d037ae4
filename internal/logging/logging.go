// Package logging configures zerolog for the bridge.
package logging

import (
	"io"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

// TimeFormat is used by the console writer.
const TimeFormat = `2006-01-02 15:04:05`

// Level maps a verbosity count to a log level: 0 warn, 1 info, 2 debug,
// 3 and above trace.
func Level(verbosity int) zerolog.Level {
	switch {
	case verbosity <= 0:
		return zerolog.WarnLevel
	case verbosity == 1:
		return zerolog.InfoLevel
	case verbosity == 2:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// New returns a timestamped logger writing to w. console selects the human
// readable console format instead of JSON lines.
func New(w io.Writer, verbosity int, console bool) zerolog.Logger {
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: TimeFormat}
	}
	return zerolog.New(w).Level(Level(verbosity)).With().Timestamp().Logger()
}

// Install makes log the process-wide default, for the global zerolog logger
// and for contexts that carry no logger.
func Install(log zerolog.Logger) {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zlog.Logger = log
	zerolog.DefaultContextLogger = &zlog.Logger
}
