// Package sysutil holds process-level helpers used by the server entry point:
// logger setup, version selection and preparing the upload staging directory.
package sysutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetLogLevel configures the global zerolog level based on a string value.
// Supported values (case-insensitive): debug, info, warn, error, fatal, panic.
// Anything else means info.
func SetLogLevel(lvl string) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "panic":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// NewLogger builds the process logger: JSON lines by default, a console writer
// when pretty is set. Every event carries a timestamp and the given hooks.
func NewLogger(w io.Writer, pretty bool, hooks ...zerolog.Hook) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(w).With().Timestamp().Logger()
	for _, h := range hooks {
		l = l.Hook(h)
	}
	return l
}

// InstallLogger sets the global level and replaces log.Logger.
func InstallLogger(level string, pretty bool, hooks ...zerolog.Hook) {
	SetLogLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = NewLogger(os.Stderr, pretty, hooks...)
}

// FirstNonEmpty returns the first non-blank string from vals, or "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// EnsureWritableDir creates dir if needed and checks that files can be created
// in it. Uploads are staged there while the indexer works.
func EnsureWritableDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("directory path is empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".writecheck-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(filepath.Clean(name))
}
