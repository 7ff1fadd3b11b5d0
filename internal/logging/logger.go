// Package logging provides the charm logger used by the commands.
// It is configured through environment variables.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/xyproto/env/v2"
)

// LoggerCloser wraps a logger and closes its output file, if any.
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
}

// Close closes the underlying writer if it's closeable
func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// Level maps SCTOOLS_LOG_LEVEL to a log level. Unknown values give info.
func Level() log.Level {
	switch strings.ToLower(env.Str("SCTOOLS_LOG_LEVEL")) {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// NewLoggerWithWriter creates a logger writing to w.
func NewLoggerWithWriter(w io.Writer) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           Level(),
	})

	var closer io.Closer
	if c, ok := w.(io.Closer); ok && w != os.Stderr {
		closer = c
	}
	return &LoggerCloser{
		Logger: lg.WithPrefix(env.Str("SCTOOLS_LOG_PREFIX", "sctools ")),
		closer: closer,
	}
}

// NewLogger creates a logger from the environment:
//
//	SCTOOLS_LOG_LEVEL    debug, info, warn, error (default: info)
//	SCTOOLS_LOG_PREFIX   message prefix (default: "sctools ")
//	SCTOOLS_LOG_TO_FILE  when true, log to a timestamped file instead of stderr
func NewLogger() *LoggerCloser {
	output := io.Writer(os.Stderr)
	if env.Bool("SCTOOLS_LOG_TO_FILE") {
		name := fmt.Sprintf("sctools-%s-debug.log", time.Now().Format("20060102-150405"))
		// stderr stays the output when the file cannot be created
		if f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644); err == nil {
			output = f
		}
	}
	return NewLoggerWithWriter(output)
}

// IsDebug reports whether debug logging is enabled.
func IsDebug() bool {
	return Level() == log.DebugLevel
}
