package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a zerolog logger writing to stdout. Pretty output is meant for
// local runs; services log JSON.
func New(level string, pretty bool) zerolog.Logger {
	return NewWithWriter(os.Stdout, level, pretty)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(w io.Writer, level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
