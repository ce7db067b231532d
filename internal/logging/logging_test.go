package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerVerbosity(t *testing.T) {
	var out, errOut bytes.Buffer
	l := Logger{Out: &out, Err: &errOut}

	l.Infof("hidden info")
	l.Debugf("hidden debug")
	l.Warnf("hidden warn")
	if out.Len() != 0 || errOut.Len() != 0 {
		t.Errorf("quiet logger wrote output: %q %q", out.String(), errOut.String())
	}

	l.WarnfAlways("shown %d", 1)
	if !strings.Contains(errOut.String(), "shown 1") {
		t.Errorf("WarnfAlways output missing, got %q", errOut.String())
	}

	l.Verbose = true
	l.Infof("visible info")
	if !strings.Contains(out.String(), "visible info") {
		t.Errorf("verbose Infof output missing, got %q", out.String())
	}
	l.Debugf("still hidden")
	if strings.Contains(out.String(), "still hidden") {
		t.Errorf("Debugf printed without --debug")
	}
}

func TestErrorfAndReturn(t *testing.T) {
	var errOut bytes.Buffer
	l := Logger{Err: &errOut}
	sentinel := errors.New("boom")

	err := l.ErrorfAndReturn("wrapped: %w", sentinel)
	if !errors.Is(err, sentinel) {
		t.Errorf("expected returned error to wrap sentinel, got %v", err)
	}
	if !strings.Contains(errOut.String(), "wrapped: boom") {
		t.Errorf("expected error to be logged, got %q", errOut.String())
	}
}

func TestBackendWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	b, err := New(path, "NOTICE", false)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	log := b.GetLogger("test")
	log.Notice("relay started")
	log.Debug("too chatty")
	if err := b.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "test: relay started") {
		t.Errorf("expected notice line, got %q", data)
	}
	if strings.Contains(string(data), "too chatty") {
		t.Errorf("debug line written at NOTICE level")
	}
}

func TestParseLevel(t *testing.T) {
	for _, lvl := range []string{"error", "WARNING", "Notice", "info", "DEBUG"} {
		if _, err := ParseLevel(lvl); err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", lvl, err)
		}
	}
	if _, err := ParseLevel("LOUD"); err == nil {
		t.Error("expected error for unknown level")
	}
}
