package sysutil

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetLogLevel_AllVariants(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"  DeBuG  ", zerolog.DebugLevel}, // case + trim
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel}, // empty -> info
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel}, // alias
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"unknown", zerolog.InfoLevel}, // default
	}

	for _, tc := range cases {
		SetLogLevel(tc.in)
		if got := zerolog.GlobalLevel(); got != tc.want {
			t.Fatalf("SetLogLevel(%q) -> %v; want %v", tc.in, got, tc.want)
		}
	}
}

type tagHook struct{}

func (tagHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) { e.Str("hooked", "yes") }

func TestNewLogger_JSONAndPretty(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, false, tagHook{})
	l.Info().Msg("indexed")
	out := buf.String()
	if !strings.Contains(out, `"message":"indexed"`) || !strings.Contains(out, `"time":`) || !strings.Contains(out, `"hooked":"yes"`) {
		t.Fatalf("unexpected json line: %s", out)
	}

	buf.Reset()
	pl := NewLogger(&buf, true)
	pl.Info().Msg("indexed")
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") || !strings.Contains(buf.String(), "indexed") {
		t.Fatalf("expected console output, got %s", buf.String())
	}
}

func TestInstallLogger_ReplacesGlobal(t *testing.T) {
	prev, prevLvl := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLvl)
	})
	InstallLogger("error", false)
	if zerolog.GlobalLevel() != zerolog.ErrorLevel {
		t.Fatalf("level not applied")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := FirstNonEmpty(); got != "" {
		t.Fatalf("FirstNonEmpty() = %q; want \"\"", got)
	}
	if got := FirstNonEmpty(" ", "\t", "\n"); got != "" {
		t.Fatalf("FirstNonEmpty(empties) = %q; want \"\"", got)
	}
	// picks first non-empty (preserves original spacing)
	if got := FirstNonEmpty("   ", "  v1.2.0  ", "dev"); got != "  v1.2.0  " {
		t.Fatalf("FirstNonEmpty(...) = %q", got)
	}
}

func TestEnsureWritableDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads", "staging")
	if err := EnsureWritableDir(dir); err != nil {
		t.Fatalf("EnsureWritableDir: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("write-check file left behind: %v", entries)
	}

	if err := EnsureWritableDir("  "); err == nil {
		t.Fatalf("expected error for blank path")
	}

	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := EnsureWritableDir(filepath.Join(file, "sub")); err == nil {
		t.Fatalf("expected error when a parent is a file")
	}
}
