package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. APP_ENV selects the format:
// dev/development get a human-friendly console writer, everything else
// ships JSON lines. Every event carries the service name.
func NewLogger(env string) zerolog.Logger {
	var out io.Writer = os.Stdout
	switch env {
	case "dev", "development":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().
		Timestamp().
		Str("service", "tchouf").
		Logger()
}
