// Package observability wires the ambient stack: zerolog logging, OTel
// tracing/metrics export, outbound HTTP instrumentation, and payload
// redaction.
package observability

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes the process-wide zerolog logger. When logPath is
// set, output goes only to that file so stdout stays clean for CLIs.
func InitLogger(logPath, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stdout
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			w = f
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "failed to open log file %q: %v\n", logPath, err)
		}
	}
	log.Logger = log.Output(w).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(parseLevel(level))

	// Capture stray standard-library logging from dependencies.
	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}

func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	if level == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// TenantLogger returns a child logger carrying the tenant scope, so every
// line a request produces can be attributed to a user and space.
func TenantLogger(userID, spaceID string) zerolog.Logger {
	ctx := log.Logger.With().Str("user_id", userID)
	if spaceID != "" {
		ctx = ctx.Str("space_id", spaceID)
	}
	return ctx.Logger()
}
